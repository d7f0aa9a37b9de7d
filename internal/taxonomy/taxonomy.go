// Package taxonomy maps free-form extracted category strings onto the fixed
// controlled set used for navigation and SEO. Unrecognised strings are dropped
// rather than passed through, so noise from extraction never reaches the
// controlled field.
package taxonomy

import (
	"sort"
	"strings"
)

var canonicalCategories = map[string]struct{}{
	"padel":        {},
	"pickleball":   {},
	"badminton":    {},
	"tennis":       {},
	"squash":       {},
	"table_tennis": {},
	"gym":          {},
	"swimming":     {},
	"spa":          {},
	"cafe":         {},
	"restaurant":   {},
	"chess":        {},
	"escape room":  {},
	"climbing":     {},
	"martial arts": {},
	"yoga":         {},
	"pilates":      {},
	"football":     {},
	"family":       {},
}

// categorySynonyms is many-to-one: every value must be a member of
// canonicalCategories.
var categorySynonyms = map[string]string{
	// racquet sports
	"paddle tennis":     "padel",
	"padel tennis":      "padel",
	"glass-back squash": "squash",
	"ping pong":         "table_tennis",

	// swimming
	"swimming pool": "swimming",
	"indoor pool":   "swimming",
	"outdoor pool":  "swimming",
	"aqua aerobics": "swimming",

	// spa / wellness
	"wellness":    "spa",
	"sauna":       "spa",
	"steam room":  "spa",
	"hydro pool":  "spa",
	"hot tub":     "spa",
	"spa retreat": "spa",

	// family / kids
	"creche":       "family",
	"childcare":    "family",
	"kids":         "family",
	"kids club":    "family",
	"junior":       "family",
	"holiday club": "family",

	// food & drink
	"dining": "restaurant",
	"coffee": "cafe",

	// football
	"5-a-side football": "football",
	"7-a-side football": "football",
}

// MapCategories converts raw extracted category strings into canonical
// categories: lower-case and trim, resolve synonyms, accept direct members,
// drop everything else. Output is deduplicated and sorted.
func MapCategories(raw []string) []string {
	mapped := map[string]struct{}{}

	for _, item := range raw {
		key := strings.ToLower(strings.TrimSpace(item))
		if key == "" {
			continue
		}

		if canonical, ok := categorySynonyms[key]; ok {
			mapped[canonical] = struct{}{}
			continue
		}

		if _, ok := canonicalCategories[key]; ok {
			mapped[key] = struct{}{}
		}
	}

	out := make([]string, 0, len(mapped))
	for category := range mapped {
		out = append(out, category)
	}
	sort.Strings(out)

	return out
}

// IsCanonical reports membership in the fixed taxonomy.
func IsCanonical(category string) bool {
	_, ok := canonicalCategories[category]
	return ok
}
