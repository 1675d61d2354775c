package sqlitedb

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

// TimeLayout is the stored timestamp format. It is fixed width so that
// lexical order equals chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime encodes t in UTC using TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime decodes a stored timestamp. Legacy RFC3339 and SQLite
// CURRENT_TIMESTAMP values are accepted.
func ParseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(TimeLayout, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

// NullableString maps "" to SQL NULL.
func NullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// NullableTime maps nil to SQL NULL.
func NullableTime(value *time.Time) any {
	if value == nil || value.IsZero() {
		return nil
	}
	return FormatTime(*value)
}

// NullableInt64 maps zero to SQL NULL.
func NullableInt64(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

// TimeFromNull decodes a nullable timestamp column.
func TimeFromNull(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	t, err := ParseTime(value.String)
	if err != nil {
		return nil
	}
	return &t
}

// TimeFromString decodes a NOT NULL timestamp column, returning the zero time
// for unparsable values.
func TimeFromString(value string) time.Time {
	t, err := ParseTime(value)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Placeholders returns "?,?,?" for count parameters.
func Placeholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
