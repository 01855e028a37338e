// Package timex centralizes the timestamp encoding used by the SQLite
// store: RFC3339Nano in UTC, NULL for absent values.
package timex

import (
	"database/sql"
	"fmt"
	"time"
)

// Format renders t for storage.
func Format(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Parse reads a stored timestamp.
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

// FormatPtr renders an optional timestamp, mapping nil to NULL.
func FormatPtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: Format(*t), Valid: true}
}

// ParsePtr reads an optional stored timestamp, mapping NULL to nil.
func ParsePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := Parse(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
