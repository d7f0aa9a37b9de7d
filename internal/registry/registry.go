// Package registry declares, statically, which candidate fields belong to the
// shared listing record and which to each entity-specific record. The split is
// a table, not something inferred from model metadata at runtime.
package registry

import (
	"errors"
	"fmt"
	"sort"
)

var ErrUnknownEntityType = errors.New("unknown entity type")

// EntityConfig describes one entity type's storage layout.
type EntityConfig struct {
	// EntityTable names the entity-specific table keyed by listing_id.
	EntityTable string
	// ListingFields are candidate fields persisted on the shared listing
	// record.
	ListingFields map[string]struct{}
	// EntityFields are candidate fields persisted on the entity-specific
	// record.
	EntityFields map[string]struct{}
}

var listingFields = fieldSet(
	"entity_name",
	"entity_type",
	"categories",
	"canonical_categories",
	"other_attributes",
	"street_address",
	"city",
	"postcode",
	"country",
	"latitude",
	"longitude",
	"phone",
	"email",
	"website_url",
	"instagram_url",
	"facebook_url",
	"twitter_url",
	"linkedin_url",
	"opening_hours",
)

var venueFields = fieldSet(
	"tennis_total_courts",
	"tennis_covered_courts",
	"tennis_floodlit_courts",
	"padel_total_courts",
	"padel_covered_courts",
	"padel_floodlit_courts",
	"squash_total_courts",
	"squash_covered_courts",
	"pickleball_total_courts",
	"pickleball_covered_courts",
	"table_tennis_total_tables",
)

var entityConfigs = map[string]*EntityConfig{
	"venue": {
		EntityTable:   "venues",
		ListingFields: listingFields,
		EntityFields:  venueFields,
	},
}

// Lookup returns the configuration for an entity type. Unknown types are a
// usage error surfaced before any storage I/O happens.
func Lookup(entityType string) (*EntityConfig, error) {
	cfg, ok := entityConfigs[entityType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, entityType)
	}
	return cfg, nil
}

// ExtractableFields lists every field the LLM may populate for an entity
// type, for prompt construction. Derived fields stay out of the prompt.
func ExtractableFields(entityType string) ([]string, error) {
	cfg, err := Lookup(entityType)
	if err != nil {
		return nil, err
	}

	internal := fieldSet("entity_name", "entity_type", "canonical_categories")

	out := make([]string, 0, len(cfg.ListingFields)+len(cfg.EntityFields))
	for field := range cfg.ListingFields {
		if _, skip := internal[field]; skip {
			continue
		}
		out = append(out, field)
	}
	for field := range cfg.EntityFields {
		out = append(out, field)
	}
	sort.Strings(out)
	return out, nil
}

func fieldSet(names ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}
