package storage

import (
	"database/sql"
	"strings"
	"time"
)

// timeLayout is fixed width so stored timestamps compare correctly as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Now returns the current time formatted for storage.
func Now() string {
	return FormatTime(time.Now())
}

// FormatTime renders t in the stored UTC layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// ParseTime parses a stored timestamp; invalid or empty values yield the zero time.
func ParseTime(value sql.NullString) time.Time {
	if !value.Valid || value.String == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(timeLayout, value.String); err == nil {
		return ts
	}
	if ts, err := time.Parse(time.RFC3339, value.String); err == nil {
		return ts
	}
	return time.Time{}
}

// NullableString converts empty strings to SQL NULL.
func NullableString(value string) sql.NullString {
	if strings.TrimSpace(value) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

// Placeholders returns "?, ?, ..." for n parameters.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// Chunk splits values into slices no longer than size. SQLite caps bound
// parameters per statement.
func Chunk[T any](values []T, size int) [][]T {
	if size <= 0 {
		size = len(values)
	}
	var out [][]T
	for start := 0; start < len(values); start += size {
		end := min(start+size, len(values))
		out = append(out, values[start:end])
	}
	return out
}
