package handlers

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/edinburgh-finds/backend/internal/pipeline"
	"github.com/edinburgh-finds/backend/pkg/logger"
)

type WebSocketHandler struct {
	runner *pipeline.Runner
}

func NewWebSocketHandler(runner *pipeline.Runner) *WebSocketHandler {
	return &WebSocketHandler{
		runner: runner,
	}
}

// HandleConnection serves one client: each "ingest" message triggers a
// pipeline run whose stage transitions stream back as they happen.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type       string `json:"type"`
			EntityName string `json:"entity_name"`
			EntityType string `json:"entity_type"`
		}

		err := c.ReadJSON(&msg)
		if err != nil {
			logger.Error("Failed to read WebSocket message", zap.Error(err))
			break
		}

		if msg.Type != "ingest" {
			continue
		}

		if msg.EntityName == "" || msg.EntityType == "" {
			h.sendError(c, "entity_name and entity_type are required")
			continue
		}

		logger.Info("Processing WebSocket ingest",
			zap.String("entity_name", msg.EntityName),
			zap.String("entity_type", msg.EntityType),
		)

		err = h.streamRun(c, msg.EntityName, msg.EntityType)
		if err != nil {
			logger.Error("Failed to stream ingest run", zap.Error(err))
			h.sendError(c, "Failed to run ingest pipeline")
		}
	}
}

func (h *WebSocketHandler) streamRun(c *websocket.Conn, entityName, entityType string) error {
	ctx := context.Background()

	progress := func(stage, message string) {
		h.sendProgress(c, stage, message)
	}

	report, err := h.runner.Run(ctx, entityName, entityType, progress)
	if err != nil {
		return err
	}

	return c.WriteJSON(map[string]interface{}{
		"type":   "complete",
		"report": report,
	})
}

func (h *WebSocketHandler) sendProgress(c *websocket.Conn, stage, message string) {
	msg := map[string]interface{}{
		"type":    "progress",
		"stage":   stage,
		"message": message,
	}

	if err := c.WriteJSON(msg); err != nil {
		logger.Warn("Failed to send progress update", zap.Error(err))
	}
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	msg := map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	}

	c.WriteJSON(msg)
}
