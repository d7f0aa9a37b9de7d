package merge

import (
	"strings"

	"github.com/edinburgh-finds/backend/internal/record"
)

// taxonomy-valued list fields dedupe case-insensitively, keeping the casing of
// whichever variant arrived first.
func isTaxonomyField(name string) bool {
	return name == "categories" || name == "additional_categories"
}

// Deep recursively merges src into a copy of dst and returns the result;
// neither input is mutated.
//
// Rules, applied per key:
//   - nil source values are skipped;
//   - maps merge recursively, and an empty merge result is never written so
//     absent and empty stay distinguishable downstream;
//   - lists append only genuinely new items in first-appearance order;
//   - scalars fill once — an existing non-nil value is never overwritten here
//     (the confidence gate, one layer up, owns scalar replacement).
func Deep(dst, src map[string]any) map[string]any {
	out := cloneMap(dst)

	for key, value := range src {
		if value == nil {
			continue
		}

		if key == "other_attributes" {
			if srcList, ok := asList(value); ok {
				dstList, _ := asList(out[key])
				if merged := AttributeList(dstList, srcList); len(merged) > 0 {
					out[key] = merged
				}
				continue
			}
		}

		if srcMap, ok := asMap(value); ok {
			if len(srcMap) == 0 {
				continue
			}
			dstMap, _ := asMap(out[key])
			if merged := Maps(dstMap, srcMap); len(merged) > 0 {
				out[key] = merged
			}
			continue
		}

		if srcList, ok := asList(value); ok {
			if len(srcList) == 0 {
				continue
			}
			dstList, _ := asList(out[key])
			if merged := Lists(dstList, srcList, isTaxonomyField(key)); len(merged) > 0 {
				out[key] = merged
			}
			continue
		}

		if existing, ok := out[key]; !ok || existing == nil {
			out[key] = value
		}
	}

	return out
}

// Maps merges src into a copy of dst with Deep's rules.
func Maps(dst, src map[string]any) map[string]any {
	return Deep(dst, src)
}

// Lists appends the items of src not already present in dst, preserving
// first-appearance order, and returns a new slice. Presence is judged by the
// canonical JSON form, or case-insensitively on the string itself for
// taxonomy fields.
func Lists(dst, src []any, caseInsensitive bool) []any {
	out := make([]any, 0, len(dst)+len(src))
	seen := make(map[string]struct{}, len(dst)+len(src))

	add := func(item any) {
		key := dedupKey(item, caseInsensitive)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}

	for _, item := range dst {
		add(item)
	}
	for _, item := range src {
		if item == nil {
			continue
		}
		if caseInsensitive {
			if _, ok := item.(string); !ok {
				continue
			}
		}
		add(item)
	}

	return out
}

// AttributeList merges the {key, value} list representation of
// other_attributes: an incoming item is appended only when its lower-cased
// key is new and its value is non-nil.
func AttributeList(dst, src []any) []any {
	out := make([]any, 0, len(dst)+len(src))
	seen := make(map[string]struct{}, len(dst)+len(src))

	for _, item := range dst {
		out = append(out, item)
		if key, ok := attributeKey(item); ok {
			seen[key] = struct{}{}
		}
	}

	for _, item := range src {
		key, ok := attributeKey(item)
		if !ok {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		attr, _ := asMap(item)
		if attr["value"] == nil {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}

	return out
}

func attributeKey(item any) (string, bool) {
	attr, ok := asMap(item)
	if !ok {
		return "", false
	}
	key, ok := attr["key"].(string)
	if !ok || key == "" {
		return "", false
	}
	return strings.ToLower(key), true
}

func dedupKey(item any, caseInsensitive bool) string {
	if caseInsensitive {
		if s, ok := item.(string); ok {
			return strings.ToLower(s)
		}
	}
	return record.Key(item)
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case record.Fields:
		return m, true
	default:
		return nil, false
	}
}

func asList(v any) ([]any, bool) {
	switch list := v.(type) {
	case []any:
		return list, true
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
