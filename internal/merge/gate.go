// Package merge implements the confidence-gated field updater and the deep
// merge rules for composite fields. It operates purely in memory on
// JSON-shaped values; persistence is the caller's problem.
package merge

import (
	"sort"

	"github.com/edinburgh-finds/backend/internal/record"
)

// ChangeMinConfidence is the absolute certainty bar: a value that differs from
// the stored one is accepted when its confidence reaches this threshold, even
// if the stored confidence is higher. The boundary is inclusive.
const ChangeMinConfidence = 0.7

// ApplyField decides whether one incoming (value, confidence) pair replaces
// the stored value for a field, and reports whether the stored value changed.
//
// Reaffirming the stored value only ratchets confidence upward. A differing
// value wins when it is more certain than what is on file, or crosses the
// absolute bar; otherwise nothing is mutated. When both stored and incoming
// values are container-shaped the deep-merge rules apply instead of
// whole-value replacement, and confidence follows the reaffirmation rule
// because nested data carries no per-key confidence signal.
func ApplyField(fields record.Fields, conf *record.Confidence, name string, value any, newConf float64) bool {
	old, exists := fields[name]
	oldConf := conf.Get(name)

	if exists && old != nil {
		if merged, ok := mergeComposite(name, old, value); ok {
			if record.Equal(merged, old) {
				conf.Set(name, maxFloat(oldConf, newConf))
				return false
			}
			fields[name] = merged
			conf.Set(name, maxFloat(oldConf, newConf))
			return true
		}
	}

	if record.Equal(old, value) {
		// No semantic change; confidence never degrades on reaffirmation.
		conf.Set(name, maxFloat(oldConf, newConf))
		return false
	}

	if newConf > oldConf || newConf >= ChangeMinConfidence {
		fields[name] = value
		conf.Set(name, newConf)
		return true
	}

	return false
}

// ApplyUpdates applies a set of incoming fields independently through
// ApplyField and returns the names of fields whose stored value changed.
// Incoming fields walk in sorted order so the change report is deterministic.
func ApplyUpdates(fields record.Fields, conf *record.Confidence, updates record.Fields, confidences record.Confidence) []string {
	names := make([]string, 0, len(updates))
	for name := range updates {
		names = append(names, name)
	}
	sort.Strings(names)

	changed := []string{}
	for _, name := range names {
		if ApplyField(fields, conf, name, updates[name], confidences.Get(name)) {
			changed = append(changed, name)
		}
	}

	return changed
}

// mergeComposite merges container-shaped old/new values per the deep-merge
// rules. The second return is false when the pair is not container/container,
// in which case the scalar gate applies.
func mergeComposite(name string, old, value any) (any, bool) {
	oldMap, oldIsMap := asMap(old)
	newMap, newIsMap := asMap(value)
	if oldIsMap && newIsMap {
		return Maps(oldMap, newMap), true
	}

	oldList, oldIsList := asList(old)
	newList, newIsList := asList(value)
	if oldIsList && newIsList {
		if name == "other_attributes" {
			return AttributeList(oldList, newList), true
		}
		return Lists(oldList, newList, isTaxonomyField(name)), true
	}

	return nil, false
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
