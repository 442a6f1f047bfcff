package audit

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Kind selects normalization and formatting for one diffed field.
type Kind int

const (
	KindText Kind = iota
	KindDate
	KindBool
	KindNumber
)

// Field describes one attribute of the entity under diff.
type Field struct {
	Key   string
	Label string
	Kind  Kind
}

// Change is one human-readable difference: the field label plus formatted
// before/after values.
type Change struct {
	Label  string `json:"campo"`
	Before string `json:"antes"`
	After  string `json:"depois"`
}

// placeholder is rendered for absent values.
const placeholder = "—"

// dateLayout is the short pt-BR date-time shown in history views.
const dateLayout = "02/01/2006 15:04"

// Diff computes the field-level delta between two versions of an entity.
// Equality is normalized (trimmed strings, dates compared by epoch millis)
// so representation-only differences produce no change entries.
func Diff(before, after map[string]any, fields []Field) []Change {
	var changes []Change
	for _, f := range fields {
		b, bok := normalize(before[f.Key], f.Kind)
		a, aok := normalize(after[f.Key], f.Kind)
		if bok == aok && b == a {
			continue
		}
		changes = append(changes, Change{
			Label:  f.Label,
			Before: format(before[f.Key], f.Kind),
			After:  format(after[f.Key], f.Kind),
		})
	}
	return changes
}

// normalize maps a raw value to a comparable form. The second return is false
// for absent values (nil, typed nil pointers).
func normalize(v any, kind Kind) (any, bool) {
	if v == nil {
		return nil, false
	}
	switch kind {
	case KindDate:
		if t, ok := asTime(v); ok {
			return t.UnixMilli(), true
		}
		return nil, false
	case KindBool:
		if b, ok := v.(bool); ok {
			return b, true
		}
		if b, ok := v.(*bool); ok && b != nil {
			return *b, true
		}
		return nil, false
	case KindNumber:
		if n, ok := asFloat(v); ok {
			return n, true
		}
		return nil, false
	default:
		s := asString(v)
		trimmed := strings.TrimSpace(s)
		if trimmed == "" {
			return nil, false
		}
		return trimmed, true
	}
}

func format(v any, kind Kind) string {
	if v == nil {
		return placeholder
	}
	switch kind {
	case KindDate:
		if t, ok := asTime(v); ok {
			return t.Format(dateLayout)
		}
		return placeholder
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			if p, pok := v.(*bool); pok && p != nil {
				b, ok = *p, true
			}
		}
		if !ok {
			return placeholder
		}
		if b {
			return "Sim"
		}
		return "Não"
	case KindNumber:
		if n, ok := asFloat(v); ok {
			return strconv.FormatFloat(n, 'f', -1, 64)
		}
		return placeholder
	default:
		s := strings.TrimSpace(asString(v))
		if s == "" {
			return placeholder
		}
		return s
	}
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case *string:
		if s == nil {
			return ""
		}
		return *s
	case json.Number:
		return s.String()
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return strings.Trim(string(data), `"`)
	}
}
