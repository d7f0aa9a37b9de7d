package models

import (
	"time"

	"github.com/edinburgh-finds/backend/internal/record"
)

// Listing is the entity-type-agnostic record: identity, location, contact,
// hours, provenance and per-field confidence. One row per
// (entity_name, entity_type) pair.
type Listing struct {
	ListingID  string
	EntityName string
	EntityType string
	Slug       string

	// Fields holds every mergeable listing field (including entity_name
	// and entity_type, which also live as columns for querying).
	Fields          record.Fields
	FieldConfidence record.Confidence
	SourceInfo      map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Venue is the entity-specific record for entity_type "venue": court counts
// and similar facility facts. Its lifecycle is subordinate to the Listing —
// created together, cascade-deleted together.
type Venue struct {
	ListingID string

	Fields          record.Fields
	FieldConfidence record.Confidence

	CreatedAt time.Time
	UpdatedAt time.Time
}
