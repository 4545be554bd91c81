package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Page size limits shared by the List methods.
const (
	defaultLimit = 50
	maxLimit     = 500
)

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) { return time.Parse(timeLayout, s) }

// StatusRecord is one device state change.
type StatusRecord struct {
	ID         int64     `json:"id"`
	DeviceID   string    `json:"device_id"`
	Slot       int       `json:"slot"`
	State      string    `json:"state"`
	ErrorCode  uint32    `json:"error_code"`
	RecordedAt time.Time `json:"recorded_at"`
}

// HistoryFilter controls which records List returns.
type HistoryFilter struct {
	DeviceID string    // optional: one device, as 0x%08X
	Since    time.Time // optional: records at or after this time
	Limit    int       // default 50, max 500
	Offset   int
}

// HistoryRepository stores device state changes.
type HistoryRepository interface {
	Record(ctx context.Context, rec *StatusRecord) error
	List(ctx context.Context, filter HistoryFilter) ([]StatusRecord, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// SQLiteHistory implements HistoryRepository over status_history.
type SQLiteHistory struct {
	db *sql.DB
}

// NewSQLiteHistory creates a history repository.
func NewSQLiteHistory(db *sql.DB) *SQLiteHistory {
	return &SQLiteHistory{db: db}
}

// Record inserts rec. RecordedAt defaults to now; ID is set from the insert.
func (r *SQLiteHistory) Record(ctx context.Context, rec *StatusRecord) error {
	if rec.DeviceID == "" {
		return fmt.Errorf("%w: device id", ErrMissingField)
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO status_history (device_id, slot, state, error_code, recorded_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.DeviceID, rec.Slot, rec.State, int64(rec.ErrorCode),
		formatTime(rec.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting status record: %w", err)
	}
	if rec.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("reading status record id: %w", err)
	}
	return nil
}

// List returns records matching filter, most recent first.
func (r *SQLiteHistory) List(ctx context.Context, filter HistoryFilter) ([]StatusRecord, error) {
	limit, offset := clampPage(filter.Limit, filter.Offset)

	var conditions []string
	var args []any
	if filter.DeviceID != "" {
		conditions = append(conditions, "device_id = ?")
		args = append(args, filter.DeviceID)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "recorded_at >= ?")
		args = append(args, formatTime(filter.Since))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		"SELECT id, device_id, slot, state, error_code, recorded_at FROM status_history %s ORDER BY recorded_at DESC, id DESC LIMIT ? OFFSET ?",
		where,
	)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying status history: %w", err)
	}
	defer rows.Close()

	records := []StatusRecord{}
	for rows.Next() {
		var rec StatusRecord
		var code int64
		var recordedAt string
		if err := rows.Scan(&rec.ID, &rec.DeviceID, &rec.Slot, &rec.State, &code, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning status record: %w", err)
		}
		rec.ErrorCode = uint32(code)
		if rec.RecordedAt, err = parseTime(recordedAt); err != nil {
			return nil, fmt.Errorf("parsing status timestamp %q: %w", recordedAt, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating status history: %w", err)
	}
	return records, nil
}

// Prune deletes records older than before and returns how many were removed.
func (r *SQLiteHistory) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM status_history WHERE recorded_at < ?",
		formatTime(before),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning status history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned rows: %w", err)
	}
	return n, nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
