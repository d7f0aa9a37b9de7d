// Package pipeline runs the full ingest path for one entity: discover
// sources, extract a candidate from each, and merge every candidate into the
// stored record. One bad source never sinks the run.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/edinburgh-finds/backend/internal/discovery"
	"github.com/edinburgh-finds/backend/internal/metrics"
	"github.com/edinburgh-finds/backend/internal/record"
	"github.com/edinburgh-finds/backend/internal/storage/models"
	"github.com/edinburgh-finds/backend/internal/upsert"
	"github.com/edinburgh-finds/backend/pkg/logger"
)

// Discoverer finds and scrapes candidate pages for an entity.
type Discoverer interface {
	Discover(ctx context.Context, entityName, entityType string, maxResults int) ([]discovery.Source, error)
}

// Extractor turns one page's text into a merge candidate.
type Extractor interface {
	ExtractFacts(ctx context.Context, entityName, entityType, sourceURL, pageText string) (*record.Candidate, error)
}

// Upserter merges one candidate into persistent storage.
type Upserter interface {
	Upsert(ctx context.Context, cand *record.Candidate, entityName, entityType string) (*models.Listing, *models.Venue, *upsert.ChangeReport, error)
}

// Invalidator drops a listing from the read cache after its record changed.
type Invalidator interface {
	InvalidateListing(ctx context.Context, listingID string) error
}

// ProgressFunc receives coarse stage updates while a run is in flight, for
// streaming surfaces. May be nil.
type ProgressFunc func(stage, message string)

// SourceOutcome records what happened to one discovered page.
type SourceOutcome struct {
	URL            string   `json:"url"`
	Status         string   `json:"status"`
	Error          string   `json:"error,omitempty"`
	FieldsProposed int      `json:"fields_proposed"`
	ListingChanges []string `json:"listing_changes,omitempty"`
	EntityChanges  []string `json:"entity_changes,omitempty"`
}

// RunReport summarizes one pipeline run.
type RunReport struct {
	EntityName     string          `json:"entity_name"`
	EntityType     string          `json:"entity_type"`
	ListingID      string          `json:"listing_id,omitempty"`
	Sources        []SourceOutcome `json:"sources"`
	ListingChanges []string        `json:"listing_changes"`
	EntityChanges  []string        `json:"entity_changes"`
	DurationMS     int64           `json:"duration_ms"`
}

type Runner struct {
	discoverer Discoverer
	extractor  Extractor
	upserter   Upserter
	cache      Invalidator
	maxURLs    int
}

// NewRunner wires the pipeline stages. cache may be nil when Redis is
// disabled.
func NewRunner(discoverer Discoverer, extractor Extractor, upserter Upserter, cache Invalidator, maxURLs int) *Runner {
	if maxURLs == 0 {
		maxURLs = 5
	}
	return &Runner{
		discoverer: discoverer,
		extractor:  extractor,
		upserter:   upserter,
		cache:      cache,
		maxURLs:    maxURLs,
	}
}

// Run ingests one entity end to end. Per-source failures are reported in the
// outcome list; Run itself only errors when discovery fails or no source
// could be processed at all.
func (r *Runner) Run(ctx context.Context, entityName, entityType string, progress ProgressFunc) (*RunReport, error) {
	start := time.Now()
	report := &RunReport{
		EntityName:     entityName,
		EntityType:     entityType,
		Sources:        []SourceOutcome{},
		ListingChanges: []string{},
		EntityChanges:  []string{},
	}

	notify(progress, "discovering", fmt.Sprintf("searching sources for %s", entityName))

	sources, err := r.discoverer.Discover(ctx, entityName, entityType, r.maxURLs)
	if err != nil {
		metrics.PipelineRuns.WithLabelValues(entityType, "discovery_failed").Inc()
		return nil, fmt.Errorf("failed to discover sources: %w", err)
	}
	if len(sources) > r.maxURLs {
		sources = sources[:r.maxURLs]
	}
	metrics.SourcesDiscovered.Observe(float64(len(sources)))

	listingSeen := map[string]struct{}{}
	entitySeen := map[string]struct{}{}

	for _, source := range sources {
		outcome, listingID := r.processSource(ctx, source, entityName, entityType, progress)

		for _, field := range outcome.ListingChanges {
			listingSeen[field] = struct{}{}
		}
		for _, field := range outcome.EntityChanges {
			entitySeen[field] = struct{}{}
		}
		if listingID != "" {
			report.ListingID = listingID
		}

		report.Sources = append(report.Sources, outcome)
	}

	merged := 0
	for _, outcome := range report.Sources {
		if outcome.Status == "merged" {
			merged++
		}
	}
	if len(sources) > 0 && merged == 0 {
		metrics.PipelineRuns.WithLabelValues(entityType, "failed").Inc()
		return report, fmt.Errorf("all %d sources failed for %s", len(sources), entityName)
	}

	report.ListingChanges = sortedSet(listingSeen)
	report.EntityChanges = sortedSet(entitySeen)
	report.DurationMS = time.Since(start).Milliseconds()

	metrics.PipelineRuns.WithLabelValues(entityType, "ok").Inc()
	metrics.PipelineDuration.WithLabelValues(entityType).Observe(time.Since(start).Seconds())

	notify(progress, "done", fmt.Sprintf("%d of %d sources merged", merged, len(sources)))

	logger.Info("Pipeline run completed",
		zap.String("entity_name", entityName),
		zap.String("entity_type", entityType),
		zap.Int("sources", len(sources)),
		zap.Int("merged", merged),
		zap.Int("listing_changes", len(report.ListingChanges)),
	)

	return report, nil
}

func (r *Runner) processSource(ctx context.Context, source discovery.Source, entityName, entityType string, progress ProgressFunc) (SourceOutcome, string) {
	outcome := SourceOutcome{URL: source.URL}

	if source.Content == "" {
		outcome.Status = "skipped"
		outcome.Error = "no content scraped"
		metrics.ExtractionTotal.WithLabelValues("skipped").Inc()
		return outcome, ""
	}

	notify(progress, "extracting", source.URL)

	cand, err := r.extractor.ExtractFacts(ctx, entityName, entityType, source.URL, source.Content)
	if err != nil {
		logger.Warn("Extraction failed for source",
			zap.String("url", source.URL),
			zap.Error(err),
		)
		outcome.Status = "extraction_failed"
		outcome.Error = err.Error()
		metrics.ExtractionTotal.WithLabelValues("failed").Inc()
		return outcome, ""
	}

	metrics.ExtractionTotal.WithLabelValues("ok").Inc()
	outcome.FieldsProposed = len(cand.Fields)
	for _, score := range cand.Confidence {
		metrics.FieldConfidence.Observe(score)
	}

	notify(progress, "merging", source.URL)

	listing, _, changes, err := r.upserter.Upsert(ctx, cand, entityName, entityType)
	if err != nil {
		logger.Warn("Upsert failed for source",
			zap.String("url", source.URL),
			zap.Error(err),
		)
		outcome.Status = "upsert_failed"
		outcome.Error = err.Error()
		metrics.UpsertTotal.WithLabelValues(entityType, "failed").Inc()
		return outcome, ""
	}

	metrics.UpsertTotal.WithLabelValues(entityType, "ok").Inc()
	metrics.FieldsChanged.WithLabelValues("listing").Observe(float64(len(changes.ListingChanges)))
	metrics.FieldsChanged.WithLabelValues("entity").Observe(float64(len(changes.EntityChanges)))

	if r.cache != nil {
		if err := r.cache.InvalidateListing(ctx, listing.ListingID); err != nil {
			logger.Warn("Cache invalidation failed", zap.String("listing_id", listing.ListingID), zap.Error(err))
		}
	}

	outcome.Status = "merged"
	outcome.ListingChanges = changes.ListingChanges
	outcome.EntityChanges = changes.EntityChanges
	return outcome, listing.ListingID
}

func notify(progress ProgressFunc, stage, message string) {
	if progress != nil {
		progress(stage, message)
	}
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for item := range set {
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}
