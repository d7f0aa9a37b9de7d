package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/edinburgh-finds/backend/internal/metrics"
	"github.com/edinburgh-finds/backend/internal/storage/models"
	"github.com/edinburgh-finds/backend/internal/storage/sqlite"
	"github.com/edinburgh-finds/backend/pkg/logger"
)

// ListingCache is the read-through cache in front of SQLite. Nil when Redis
// is disabled.
type ListingCache interface {
	GetListing(ctx context.Context, listingID string) (*models.Listing, bool, error)
	SetListing(ctx context.Context, listing *models.Listing) error
}

type ListingHandler struct {
	db    *sqlite.Client
	cache ListingCache
}

func NewListingHandler(db *sqlite.Client, cache ListingCache) *ListingHandler {
	return &ListingHandler{
		db:    db,
		cache: cache,
	}
}

func (h *ListingHandler) GetListing(c *fiber.Ctx) error {
	listingID := c.Params("id")
	if listingID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "listing id is required",
		})
	}

	if h.cache != nil {
		listing, hit, err := h.cache.GetListing(c.Context(), listingID)
		if err != nil {
			logger.Warn("Listing cache read failed", zap.Error(err))
		}
		if hit {
			metrics.CacheHits.WithLabelValues("listing").Inc()
			return h.renderListing(c, listing)
		}
		metrics.CacheMisses.WithLabelValues("listing").Inc()
	}

	listing, err := h.db.GetListingByID(c.Context(), listingID)
	if errors.Is(err, sqlite.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Listing not found",
		})
	}
	if err != nil {
		logger.Error("Failed to load listing", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load listing",
		})
	}

	if h.cache != nil {
		if err := h.cache.SetListing(c.Context(), listing); err != nil {
			logger.Warn("Listing cache write failed", zap.Error(err))
		}
	}

	return h.renderListing(c, listing)
}

// FindListing resolves a listing by its (entity_name, entity_type) identity.
func (h *ListingHandler) FindListing(c *fiber.Ctx) error {
	entityName := c.Query("entity_name")
	entityType := c.Query("entity_type")
	if entityName == "" || entityType == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "entity_name and entity_type are required",
		})
	}

	listing, err := h.db.GetListingByIdentity(c.Context(), entityName, entityType)
	if errors.Is(err, sqlite.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Listing not found",
		})
	}
	if err != nil {
		logger.Error("Failed to find listing", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to find listing",
		})
	}

	return h.renderListing(c, listing)
}

func (h *ListingHandler) GetVenue(c *fiber.Ctx) error {
	listingID := c.Params("id")

	venue, err := h.db.GetVenue(c.Context(), listingID)
	if errors.Is(err, sqlite.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Venue record not found",
		})
	}
	if err != nil {
		logger.Error("Failed to load venue", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load venue",
		})
	}

	return c.JSON(fiber.Map{
		"listing_id":       venue.ListingID,
		"fields":           venue.Fields,
		"field_confidence": venue.FieldConfidence,
		"updated_at":       venue.UpdatedAt.Unix(),
	})
}

func (h *ListingHandler) GetStats(c *fiber.Ctx) error {
	count, err := h.db.CountListings(c.Context(), "venue")
	if err != nil {
		logger.Error("Failed to count listings", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load stats",
		})
	}

	metrics.ListingsTotal.WithLabelValues("venue").Set(float64(count))

	return c.JSON(fiber.Map{
		"venues": count,
	})
}

func (h *ListingHandler) renderListing(c *fiber.Ctx, listing *models.Listing) error {
	return c.JSON(fiber.Map{
		"listing_id":       listing.ListingID,
		"entity_name":      listing.EntityName,
		"entity_type":      listing.EntityType,
		"slug":             listing.Slug,
		"fields":           listing.Fields,
		"field_confidence": listing.FieldConfidence,
		"source_info":      listing.SourceInfo,
		"created_at":       listing.CreatedAt.Unix(),
		"updated_at":       listing.UpdatedAt.Unix(),
	})
}
