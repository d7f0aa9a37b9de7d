package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/edinburgh-finds/backend/internal/pipeline"
	"github.com/edinburgh-finds/backend/internal/record"
	"github.com/edinburgh-finds/backend/internal/registry"
	"github.com/edinburgh-finds/backend/internal/upsert"
	"github.com/edinburgh-finds/backend/pkg/logger"
)

type IngestHandler struct {
	runner       *pipeline.Runner
	orchestrator *upsert.Orchestrator
}

func NewIngestHandler(runner *pipeline.Runner, orchestrator *upsert.Orchestrator) *IngestHandler {
	return &IngestHandler{
		runner:       runner,
		orchestrator: orchestrator,
	}
}

// HandleIngest runs the full discover-extract-merge pipeline for one entity
// and returns the run report.
func (h *IngestHandler) HandleIngest(c *fiber.Ctx) error {
	var req struct {
		EntityName string `json:"entity_name"`
		EntityType string `json:"entity_type"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.EntityName == "" || req.EntityType == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "entity_name and entity_type are required",
		})
	}

	report, err := h.runner.Run(c.Context(), req.EntityName, req.EntityType, nil)
	if err != nil {
		if errors.Is(err, registry.ErrUnknownEntityType) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		logger.Error("Pipeline run failed", zap.Error(err))
		status := fiber.StatusInternalServerError
		if report != nil {
			// partial report: every source failed but discovery worked
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error":  "No source could be processed",
				"report": report,
			})
		}
		return c.Status(status).JSON(fiber.Map{
			"error": "Failed to run ingest pipeline",
		})
	}

	return c.JSON(report)
}

// HandleCandidate merges one externally supplied candidate, bypassing
// discovery and extraction. Useful for backfills and manual corrections.
func (h *IngestHandler) HandleCandidate(c *fiber.Ctx) error {
	var req struct {
		EntityName string         `json:"entity_name"`
		EntityType string         `json:"entity_type"`
		Candidate  map[string]any `json:"candidate"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.EntityName == "" || req.EntityType == "" || req.Candidate == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "entity_name, entity_type and candidate are required",
		})
	}

	cand, err := record.ParseCandidate(req.Candidate)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	listing, _, changes, err := h.orchestrator.Upsert(c.Context(), cand, req.EntityName, req.EntityType)
	if err != nil {
		if errors.Is(err, registry.ErrUnknownEntityType) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		logger.Error("Failed to merge candidate", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to merge candidate",
		})
	}

	return c.JSON(fiber.Map{
		"listing_id":      listing.ListingID,
		"listing_changes": changes.ListingChanges,
		"entity_changes":  changes.EntityChanges,
	})
}
