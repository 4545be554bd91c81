package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// OverrideRepository stores property values changed at runtime, keyed by
// slot section and property key.
type OverrideRepository interface {
	Load(ctx context.Context, section string) (map[string]string, error)
	Save(ctx context.Context, section, key, value string) error
	Delete(ctx context.Context, section, key string) error
}

// SQLiteOverrides implements OverrideRepository over property_overrides.
type SQLiteOverrides struct {
	db *sql.DB
}

// NewSQLiteOverrides creates an override repository.
func NewSQLiteOverrides(db *sql.DB) *SQLiteOverrides {
	return &SQLiteOverrides{db: db}
}

// Load returns every override of section. A section without overrides
// yields an empty map.
func (r *SQLiteOverrides) Load(ctx context.Context, section string) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT key, value FROM property_overrides WHERE section = ?", section)
	if err != nil {
		return nil, fmt.Errorf("querying overrides for %s: %w", section, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning override: %w", err)
		}
		out[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating overrides: %w", err)
	}
	return out, nil
}

// Save inserts or replaces one override.
func (r *SQLiteOverrides) Save(ctx context.Context, section, key, value string) error {
	if section == "" || key == "" {
		return fmt.Errorf("%w: section and key", ErrMissingField)
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO property_overrides (section, key, value, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (section, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		section, key, value, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("saving override %s.%s: %w", section, key, err)
	}
	return nil
}

// Delete removes one override so the slot file value applies again on the
// next load.
func (r *SQLiteOverrides) Delete(ctx context.Context, section, key string) error {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM property_overrides WHERE section = ? AND key = ?", section, key)
	if err != nil {
		return fmt.Errorf("deleting override %s.%s: %w", section, key, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: override %s.%s", ErrNotFound, section, key)
	}
	return nil
}
