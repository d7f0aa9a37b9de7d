// Package upsert ties discovery-extracted candidates to persisted records:
// locate-or-create the listing for an identity, apply the confidence gate
// field by field, and write listing plus entity sub-record in one transaction.
package upsert

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/edinburgh-finds/backend/internal/identity"
	"github.com/edinburgh-finds/backend/internal/merge"
	"github.com/edinburgh-finds/backend/internal/normalize"
	"github.com/edinburgh-finds/backend/internal/record"
	"github.com/edinburgh-finds/backend/internal/registry"
	"github.com/edinburgh-finds/backend/internal/storage/models"
	"github.com/edinburgh-finds/backend/internal/storage/sqlite"
	"github.com/edinburgh-finds/backend/internal/taxonomy"
	"github.com/edinburgh-finds/backend/pkg/logger"
)

// ChangeReport lists the field names whose stored value actually changed
// during one upsert, per sub-record.
type ChangeReport struct {
	ListingChanges []string `json:"listing_changes"`
	EntityChanges  []string `json:"entity_changes"`
}

type Orchestrator struct {
	db          *sqlite.Client
	phoneRegion string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(db *sqlite.Client, phoneRegion string) *Orchestrator {
	if phoneRegion == "" {
		phoneRegion = "GB"
	}
	return &Orchestrator{
		db:          db,
		phoneRegion: phoneRegion,
		locks:       map[string]*sync.Mutex{},
	}
}

// Upsert merges one candidate into the persisted record for
// (entityName, entityType), creating it on first sight. Concurrent upserts
// for the same identity are serialized; the final state depends on the set of
// observations, not their order, except that fill-once composite merging
// keeps whichever value arrived first.
//
// Re-submitting the same candidate is safe: the second pass reaffirms every
// value and reports zero changes.
func (o *Orchestrator) Upsert(ctx context.Context, cand *record.Candidate, entityName, entityType string) (*models.Listing, *models.Venue, *ChangeReport, error) {
	cfg, err := registry.Lookup(entityType)
	if err != nil {
		return nil, nil, nil, err
	}

	unlock := o.lockEntity(entityName, entityType)
	defer unlock()

	listingUpdates, listingConf := splitFields(cand, cfg.ListingFields)
	entityUpdates, entityConf := splitFields(cand, cfg.EntityFields)

	// canonical_categories is derived, never taken from the candidate.
	delete(listingUpdates, "canonical_categories")
	delete(listingConf, "canonical_categories")

	// Identity fields come from the caller, not the extraction, and are
	// maximally trusted.
	listingUpdates["entity_name"] = entityName
	listingUpdates["entity_type"] = entityType
	listingConf.Set("entity_name", 1.0)
	listingConf.Set("entity_type", 1.0)

	normalizeContact(listingUpdates, o.phoneRegion)

	now := time.Now()
	var listingChanges []string

	listing, err := o.db.GetListingByIdentity(ctx, entityName, entityType)
	switch {
	case errors.Is(err, sqlite.ErrNotFound):
		listing = &models.Listing{
			ListingID:       identity.GenerateListingID(entityType),
			EntityName:      entityName,
			EntityType:      entityType,
			Slug:            identity.GenerateSlug(entityName),
			Fields:          listingUpdates.Clone(),
			FieldConfidence: record.Confidence{},
			SourceInfo:      cand.SourceInfo,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		for field, conf := range listingConf {
			listing.FieldConfidence.Set(field, conf)
		}
		listingChanges = sortedKeys(listingUpdates)

		logger.Info("Creating listing",
			zap.String("listing_id", listing.ListingID),
			zap.String("entity_name", entityName),
			zap.String("entity_type", entityType),
		)
	case err != nil:
		return nil, nil, nil, fmt.Errorf("failed to load listing: %w", err)
	default:
		listingChanges = merge.ApplyUpdates(listing.Fields, &listing.FieldConfidence, listingUpdates, listingConf)
		mergeSourceInfo(listing, cand.SourceInfo)
		listing.UpdatedAt = now
	}

	// Recomputed over the full accumulated categories list on every
	// upsert, so a synonym-table change takes effect retroactively.
	if deriveCanonicalCategories(listing) {
		listingChanges = appendChange(listingChanges, "canonical_categories")
	}

	var entityChanges []string

	venue, err := o.db.GetVenue(ctx, listing.ListingID)
	switch {
	case errors.Is(err, sqlite.ErrNotFound):
		venue = &models.Venue{
			ListingID:       listing.ListingID,
			Fields:          entityUpdates.Clone(),
			FieldConfidence: record.Confidence{},
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		for field, conf := range entityConf {
			venue.FieldConfidence.Set(field, conf)
		}
		entityChanges = sortedKeys(entityUpdates)
	case err != nil:
		return nil, nil, nil, fmt.Errorf("failed to load venue: %w", err)
	default:
		entityChanges = merge.ApplyUpdates(venue.Fields, &venue.FieldConfidence, entityUpdates, entityConf)
		venue.UpdatedAt = now
	}

	if err := o.db.SaveRecords(ctx, listing, venue); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to persist records: %w", err)
	}

	logger.Debug("Upsert applied",
		zap.String("listing_id", listing.ListingID),
		zap.Int("listing_changes", len(listingChanges)),
		zap.Int("entity_changes", len(entityChanges)),
	)

	return listing, venue, &ChangeReport{
		ListingChanges: listingChanges,
		EntityChanges:  entityChanges,
	}, nil
}

// lockEntity serializes upserts per (entity_name, entity_type) so each merge
// is a single read-modify-write with no interleaving peer.
func (o *Orchestrator) lockEntity(entityName, entityType string) func() {
	key := entityType + "\x00" + entityName

	o.mu.Lock()
	lock, ok := o.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[key] = lock
	}
	o.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// splitFields picks the candidate fields belonging to one sub-record. Fields
// outside every known set are silently ignored.
func splitFields(cand *record.Candidate, known map[string]struct{}) (record.Fields, record.Confidence) {
	fields := record.Fields{}
	conf := record.Confidence{}

	for name, value := range cand.Fields {
		if _, ok := known[name]; ok {
			fields[name] = value
		}
	}
	for name, score := range cand.Confidence {
		if _, ok := known[name]; ok {
			conf[name] = score
		}
	}

	return fields, conf
}

// normalizeContact canonicalizes phone and coordinates before the gate runs,
// so formatting drift between sources does not read as a change.
func normalizeContact(updates record.Fields, region string) {
	if phone, ok := updates["phone"].(string); ok && phone != "" {
		updates["phone"] = normalize.Phone(phone, region)
	}
	if lat, ok := asFloat(updates["latitude"]); ok {
		updates["latitude"] = normalize.Coordinate(lat)
	}
	if lon, ok := asFloat(updates["longitude"]); ok {
		updates["longitude"] = normalize.Coordinate(lon)
	}
}

// deriveCanonicalCategories replaces (never merges) the derived taxonomy
// field from the accumulated raw categories, at confidence 1.0. Returns true
// when the stored value changed.
func deriveCanonicalCategories(listing *models.Listing) bool {
	canonical := taxonomy.MapCategories(record.StringSlice(listing.Fields["categories"]))

	changed := !record.Equal(listing.Fields["canonical_categories"], canonical)
	listing.Fields["canonical_categories"] = canonical
	listing.FieldConfidence.Set("canonical_categories", 1.0)

	return changed
}

// mergeSourceInfo merges provenance additively: the sources list only grows,
// other keys take the incoming value.
func mergeSourceInfo(listing *models.Listing, incoming map[string]any) {
	if len(incoming) == 0 {
		return
	}
	if listing.SourceInfo == nil {
		listing.SourceInfo = map[string]any{}
	}

	for key, value := range incoming {
		if key == "sources" {
			existing := anyList(listing.SourceInfo[key])
			listing.SourceInfo[key] = merge.Lists(existing, anyList(value), false)
			continue
		}
		if value == nil {
			continue
		}
		listing.SourceInfo[key] = value
	}
}

func anyList(v any) []any {
	switch list := v.(type) {
	case []any:
		return list
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out
	default:
		return nil
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func sortedKeys(fields record.Fields) []string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func appendChange(changes []string, name string) []string {
	for _, existing := range changes {
		if existing == name {
			return changes
		}
	}
	changes = append(changes, name)
	sort.Strings(changes)
	return changes
}
