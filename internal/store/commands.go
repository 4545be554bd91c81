package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CommandRecord is one command accepted from a caller.
type CommandRecord struct {
	ID        string    `json:"id"`
	Handle    int       `json:"handle"`
	Op        string    `json:"op"`
	Source    string    `json:"source"` // api, mqtt, gateway
	Seq       uint32    `json:"seq,omitempty"`
	Code      uint32    `json:"code"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CommandRepository stores the command log.
type CommandRepository interface {
	Create(ctx context.Context, rec *CommandRecord) error
	List(ctx context.Context, handle, limit, offset int) ([]CommandRecord, error)
}

// SQLiteCommands implements CommandRepository over command_log.
type SQLiteCommands struct {
	db *sql.DB
}

// NewSQLiteCommands creates a command log repository.
func NewSQLiteCommands(db *sql.DB) *SQLiteCommands {
	return &SQLiteCommands{db: db}
}

// Create inserts rec. The ID and CreatedAt are generated if empty.
func (r *SQLiteCommands) Create(ctx context.Context, rec *CommandRecord) error {
	if rec.Op == "" || rec.Source == "" {
		return fmt.Errorf("%w: op and source", ErrMissingField)
	}
	if rec.ID == "" {
		rec.ID = "cmd-" + uuid.NewString()[:8]
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_log (id, handle, op, source, seq, code, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Handle, rec.Op, rec.Source, int64(rec.Seq), int64(rec.Code),
		nullableString(rec.Detail), formatTime(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting command record: %w", err)
	}
	return nil
}

// nullableString returns nil for empty strings so the column stores NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns the commands sent to handle, most recent first. A handle of
// 0 lists every device.
func (r *SQLiteCommands) List(ctx context.Context, handle, limit, offset int) ([]CommandRecord, error) {
	limit, offset = clampPage(limit, offset)

	query := "SELECT id, handle, op, source, seq, code, detail, created_at FROM command_log"
	var args []any
	if handle != 0 {
		query += " WHERE handle = ?"
		args = append(args, handle)
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying command log: %w", err)
	}
	defer rows.Close()

	records := []CommandRecord{}
	for rows.Next() {
		var rec CommandRecord
		var seq, code int64
		var detail sql.NullString
		var createdAt string
		if err := rows.Scan(&rec.ID, &rec.Handle, &rec.Op, &rec.Source, &seq, &code, &detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning command record: %w", err)
		}
		rec.Seq = uint32(seq)
		rec.Code = uint32(code)
		rec.Detail = detail.String
		if rec.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing command timestamp %q: %w", createdAt, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command log: %w", err)
	}
	return records, nil
}
