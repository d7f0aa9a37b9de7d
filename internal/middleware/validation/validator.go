package validation

import (
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var (
	sqlInjectionPattern = regexp.MustCompile(`(?i)(union|select|insert|update|delete|drop|create|alter|exec|script|javascript|onerror|onload)`)
	xssPattern          = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)
)

type Config struct {
	MaxNameLength    int
	MaxCandidateSize int
	Logger           *zap.Logger
}

// Middleware validates the write-side request bodies before they reach a
// handler. Read endpoints pass through untouched.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxNameLength == 0 {
		cfg.MaxNameLength = 200
	}
	if cfg.MaxCandidateSize == 0 {
		cfg.MaxCandidateSize = 1024 * 1024
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != "POST" {
			return c.Next()
		}

		contentType := c.Get("Content-Type")
		if contentType != "" && !strings.Contains(contentType, "application/json") {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Unsupported content type",
			})
		}

		path := c.Path()
		if !strings.Contains(path, "/api/v1/ingest") && !strings.Contains(path, "/api/v1/candidates") {
			return c.Next()
		}

		var req map[string]interface{}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid JSON format",
			})
		}

		entityName, ok := req["entity_name"].(string)
		if !ok || strings.TrimSpace(entityName) == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "entity_name is required and must be a string",
			})
		}

		if len(entityName) > cfg.MaxNameLength {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "entity_name exceeds maximum length",
			})
		}

		if containsInjection(entityName) {
			cfg.Logger.Warn("Rejected suspicious entity name",
				zap.String("ip", c.IP()),
				zap.String("entity_name", entityName),
			)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid entity_name content",
			})
		}

		entityType, ok := req["entity_type"].(string)
		if !ok || strings.TrimSpace(entityType) == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "entity_type is required and must be a string",
			})
		}

		if strings.Contains(path, "/api/v1/candidates") {
			if len(c.Body()) > cfg.MaxCandidateSize {
				return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
					"error": "Candidate exceeds maximum size",
				})
			}
			if _, ok := req["candidate"].(map[string]interface{}); !ok {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "candidate is required and must be an object",
				})
			}
		}

		return c.Next()
	}
}

func containsInjection(input string) bool {
	return sqlInjectionPattern.MatchString(input) || xssPattern.MatchString(input)
}
