package draft

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// KeyField holds the local identity of an entry. It is never sent to the backend.
const KeyField = "_key"

// IDField holds the backend identity of a record or entry.
const IDField = "_id"

func newKey() string { return uuid.NewString() }

// IsReference reports whether s is a well-formed 24 character hex ObjectID.
func IsReference(s string) bool {
	_, ok := canonicalReference(s)
	return ok
}

func canonicalReference(s string) (string, bool) {
	oid, err := primitive.ObjectIDFromHex(strings.TrimSpace(s))
	if err != nil || oid.IsZero() {
		return "", false
	}
	return oid.Hex(), true
}

// plain converts v into the JSON-shaped representation stored in a Document,
// deep copying containers so callers never alias the tree.
func plain(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = plain(e)
		}
		return out
	case primitive.M:
		return plain(map[string]any(t))
	case primitive.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = plain(e.Value)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	case primitive.A:
		return plain([]any(t))
	case []map[string]any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return v
	}
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return plain(m).(map[string]any)
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case primitive.M:
		return map[string]any(t), true
	case primitive.D:
		return plain(t).(map[string]any), true
	}
	return nil, false
}

func asSlice(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case primitive.A:
		return []any(t), true
	case []map[string]any:
		return plain(t).([]any), true
	}
	return nil, false
}

func asFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case primitive.Decimal128:
		parsed, err := strconv.ParseFloat(t.String(), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// asInt accepts whole numbers only; 3.0 is 3, 3.5 is rejected.
func asInt(v any) (int, bool) {
	f, ok := asFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}
