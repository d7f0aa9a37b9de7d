package record

import (
	"encoding/json"
	"fmt"
)

// Fields holds one record's mergeable data, shaped as decoded JSON:
// strings, float64 numbers, bools, map[string]any and []any.
type Fields map[string]any

// Confidence maps field names to extraction confidence scores in [0, 1].
// A missing entry reads as 0.0.
type Confidence map[string]float64

func (c Confidence) Get(field string) float64 {
	return c[field]
}

// Set overwrites unconditionally; the overwrite decision lives in the merge
// layer, not here.
func (c *Confidence) Set(field string, value float64) {
	if *c == nil {
		*c = Confidence{}
	}
	(*c)[field] = value
}

// Candidate is one extraction pass's proposed field values, not yet merged.
type Candidate struct {
	Fields     Fields
	Confidence Confidence
	SourceInfo map[string]any
}

// ParseCandidate pulls field_confidence and source_info out of a raw decoded
// candidate and validates their shapes. A malformed candidate is a per-source
// error: the caller skips the source, it never aborts the upsert of others.
func ParseCandidate(raw map[string]any) (*Candidate, error) {
	if raw == nil {
		return nil, fmt.Errorf("candidate is not a JSON object")
	}

	cand := &Candidate{
		Fields:     Fields{},
		Confidence: Confidence{},
	}

	for key, value := range raw {
		switch key {
		case "field_confidence":
			confMap, ok := value.(map[string]any)
			if !ok {
				if value == nil {
					continue
				}
				return nil, fmt.Errorf("field_confidence is not an object")
			}
			for field, v := range confMap {
				score, ok := v.(float64)
				if !ok {
					return nil, fmt.Errorf("field_confidence[%s] is not a number", field)
				}
				if score < 0 || score > 1 {
					return nil, fmt.Errorf("field_confidence[%s] out of range: %v", field, score)
				}
				cand.Confidence[field] = score
			}
		case "source_info":
			if value == nil {
				continue
			}
			info, ok := value.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("source_info is not an object")
			}
			cand.SourceInfo = info
		default:
			if value == nil {
				continue
			}
			cand.Fields[key] = value
		}
	}

	return cand, nil
}

// Key returns the canonical string form of a JSON-shaped value, used for
// equality and list deduplication. encoding/json sorts map keys, so two
// semantically equal values always produce the same key.
func Key(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// Equal reports whether two JSON-shaped values are semantically equal,
// tolerating []string vs []any and int vs float64 representation drift.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return Key(a) == Key(b)
}

// StringSlice coerces a decoded JSON value into []string, dropping non-string
// elements. Nil input yields nil.
func StringSlice(v any) []string {
	switch list := v.(type) {
	case nil:
		return nil
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Clone deep-copies a Fields map via a JSON round trip so merges never alias
// the caller's containers.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	data, err := json.Marshal(f)
	if err != nil {
		out := make(Fields, len(f))
		for k, v := range f {
			out[k] = v
		}
		return out
	}
	var out Fields
	if err := json.Unmarshal(data, &out); err != nil {
		out = make(Fields, len(f))
		for k, v := range f {
			out[k] = v
		}
	}
	return out
}
