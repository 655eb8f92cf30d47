// Package fixture holds the mutable in-memory state each device profile
// serves from: schemaless JSON-shaped records seeded from an embedded
// baseline, addressed by normalized hardware address.
package fixture

import "strings"

// NormalizeMAC canonicalizes a hardware address for comparison: lowercase,
// dash-separated, surrounding whitespace dropped. "AA:BB:CC:DD:EE:FF" and
// "aa-bb-cc-dd-ee-ff" normalize to the same key.
func NormalizeMAC(mac string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(mac), ":", "-"))
}

// Record is one JSON-shaped fixture entry. Device dialects are dictionaries
// with ad hoc nesting, so records stay map-backed; typed access goes through
// the getters and writes through Set/Merge.
type Record map[string]any

// Clone returns a deep copy. Handlers clone before returning records so a
// response snapshot can never alias live state.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return deepCopyMap(r)
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case Record:
		return Record(deepCopyMap(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}

// String returns the field as a string, or "" when absent or not a string.
func (r Record) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Int returns the field coerced to int. JSON numbers decode as float64, so
// both representations are accepted.
func (r Record) Int(key string) int {
	switch t := r[key].(type) {
	case float64:
		return int(t)
	case int:
		return t
	case int64:
		return int(t)
	default:
		return 0
	}
}

// Float returns the field coerced to float64.
func (r Record) Float(key string) float64 {
	switch t := r[key].(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return 0
	}
}

// Bool returns the field as a bool, or false when absent or mistyped.
func (r Record) Bool(key string) bool {
	b, _ := r[key].(bool)
	return b
}

// Map returns a nested object field as a Record, or nil.
func (r Record) Map(key string) Record {
	switch t := r[key].(type) {
	case map[string]any:
		return Record(t)
	case Record:
		return t
	default:
		return nil
	}
}

// Slice returns an array field, or nil.
func (r Record) Slice(key string) []any {
	s, _ := r[key].([]any)
	return s
}

// Records returns an array field as a slice of Records, skipping elements
// that are not objects.
func (r Record) Records(key string) []Record {
	raw := r.Slice(key)
	out := make([]Record, 0, len(raw))
	for _, e := range raw {
		if m, ok := e.(map[string]any); ok {
			out = append(out, Record(m))
		}
	}
	return out
}

// SetDefault stores value under key only when the key is absent or empty.
func (r Record) SetDefault(key string, value any) {
	if cur, ok := r[key]; !ok || cur == nil || cur == "" {
		r[key] = value
	}
}

// Merge copies every field of patch into the record, overwriting existing
// values. Used where the dialect applies patches verbatim.
func (r Record) Merge(patch map[string]any) {
	for k, v := range patch {
		r[k] = deepCopyValue(v)
	}
}

// MergeAllowed copies only the allow-listed fields of patch into the
// record. Unknown keys are dropped silently; the allow-list is the schema
// rail that keeps a sloppy client from corrupting fixture shape.
func (r Record) MergeAllowed(patch map[string]any, allowed []string) {
	for _, key := range allowed {
		if v, ok := patch[key]; ok {
			r[key] = deepCopyValue(v)
		}
	}
}
