package stores

import (
	"encoding/json"
	"time"

	"github.com/oarkflow/date"
)

// scanTime normalizes the driver-dependent representations of timestamp
// columns (sqlite returns TEXT, postgres time.Time).
func scanTime(raw any) time.Time {
	switch v := raw.(type) {
	case time.Time:
		return v
	case string:
		if t, err := date.Parse(v); err == nil {
			return t
		}
	case []byte:
		if t, err := date.Parse(string(v)); err == nil {
			return t
		}
	}
	return time.Time{}
}

// scanTimePtr is scanTime for nullable columns.
func scanTimePtr(raw any) *time.Time {
	if raw == nil {
		return nil
	}
	t := scanTime(raw)
	if t.IsZero() {
		return nil
	}
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullableTenant maps a *string tenant to its column value (NULL = global).
func nullableTenant(t *string) any {
	if t == nil {
		return nil
	}
	return *t
}

// scanTenant maps a tenant column back to *string.
func scanTenant(raw any) *string {
	switch v := raw.(type) {
	case string:
		if v == "" {
			return nil
		}
		s := v
		return &s
	case []byte:
		if len(v) == 0 {
			return nil
		}
		s := string(v)
		return &s
	}
	return nil
}

func scanString(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return ""
}

func marshalJSON(v any) string {
	if v == nil {
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func unmarshalMap(raw any) map[string]any {
	s := scanString(raw)
	if s == "" || s == "null" {
		return nil
	}
	out := map[string]any{}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func unmarshalStrings(raw any) []string {
	s := scanString(raw)
	if s == "" || s == "null" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
