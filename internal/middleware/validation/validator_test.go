package validation

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testApp() *fiber.App {
	app := fiber.New()
	app.Use(Middleware(Config{Logger: zap.NewNop()}))
	app.Post("/api/v1/ingest", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})
	app.Post("/api/v1/candidates", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})
	app.Get("/api/v1/listings/abc", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})
	return app
}

func post(t *testing.T, app *fiber.App, path, body string) int {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestMiddleware_ValidIngestPasses(t *testing.T) {
	status := post(t, testApp(), "/api/v1/ingest",
		`{"entity_name": "Thistle Padel Club", "entity_type": "venue"}`)
	require.Equal(t, fiber.StatusOK, status)
}

func TestMiddleware_MissingEntityNameRejected(t *testing.T) {
	status := post(t, testApp(), "/api/v1/ingest", `{"entity_type": "venue"}`)
	require.Equal(t, fiber.StatusBadRequest, status)
}

func TestMiddleware_MissingEntityTypeRejected(t *testing.T) {
	status := post(t, testApp(), "/api/v1/ingest", `{"entity_name": "Thistle Padel Club"}`)
	require.Equal(t, fiber.StatusBadRequest, status)
}

func TestMiddleware_SuspiciousNameRejected(t *testing.T) {
	status := post(t, testApp(), "/api/v1/ingest",
		`{"entity_name": "<script>alert(1)</script>", "entity_type": "venue"}`)
	require.Equal(t, fiber.StatusBadRequest, status)
}

func TestMiddleware_OverlongNameRejected(t *testing.T) {
	name := strings.Repeat("a", 300)
	status := post(t, testApp(), "/api/v1/ingest",
		`{"entity_name": "`+name+`", "entity_type": "venue"}`)
	require.Equal(t, fiber.StatusBadRequest, status)
}

func TestMiddleware_CandidateMustBeObject(t *testing.T) {
	status := post(t, testApp(), "/api/v1/candidates",
		`{"entity_name": "Thistle Padel Club", "entity_type": "venue", "candidate": "not an object"}`)
	require.Equal(t, fiber.StatusBadRequest, status)

	status = post(t, testApp(), "/api/v1/candidates",
		`{"entity_name": "Thistle Padel Club", "entity_type": "venue", "candidate": {"phone": "x", "field_confidence": {"phone": 0.9}}}`)
	require.Equal(t, fiber.StatusOK, status)
}

func TestMiddleware_WrongContentTypeRejected(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/v1/ingest", strings.NewReader("entity_name=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := testApp().Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestMiddleware_ReadsPassThrough(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/listings/abc", nil)
	resp, err := testApp().Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}
