package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// timeLayout is fixed-width so that lexical ORDER BY on TEXT columns is
// chronological. All stored times are UTC.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t.UTC(), nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// marshalJSON encodes a structured column. nil values are stored as NULL.
// HTML escaping is disabled so stored blobs stay readable in ad-hoc queries.
func marshalJSON(v any) (any, error) {
	if isNil(v) {
		return nil, nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("marshal json: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

func isNil(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case map[string]any:
		return val == nil
	case map[string]string:
		return val == nil
	case []string:
		return val == nil
	}
	return false
}

// unmarshalJSON decodes a structured column into dst. Numbers decode as
// json.Number so integers beyond 2^53 survive the round trip.
// NULL leaves dst untouched.
func unmarshalJSON(ns sql.NullString, dst any) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	dec := json.NewDecoder(strings.NewReader(ns.String))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("unmarshal json: %w", err)
	}
	return nil
}

// nullInt64 converts an optional count to a driver value.
func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
