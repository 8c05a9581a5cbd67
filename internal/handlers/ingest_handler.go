package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jedmorris/CRM-manager/internal/config"
	"github.com/jedmorris/CRM-manager/internal/services"
)

// IngestHandler is the unauthenticated entry point for provider events:
// direct ClickUp webhooks addressed by webhook_id, and Gmail Pub/Sub push
// notifications.
type IngestHandler struct {
	dispatch *services.DispatchService
	watches  *services.WatchService
	cfg      *config.Config
}

func NewIngestHandler(dispatch *services.DispatchService, watches *services.WatchService, cfg *config.Config) *IngestHandler {
	return &IngestHandler{dispatch: dispatch, watches: watches, cfg: cfg}
}

// pubSubPush is the Pub/Sub push wrapper; Data carries the base64-encoded
// Gmail notification envelope.
type pubSubPush struct {
	Message struct {
		Data      string `json:"data"`
		MessageID string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// Ingest routes an inbound event. A webhook_id query parameter marks a
// direct provider webhook; otherwise the body is treated as a Pub/Sub
// push. Unknown webhook ids get a 404 so the provider disables delivery;
// every other terminal state is a 200 to stop retries.
func (h *IngestHandler) Ingest(c *gin.Context) {
	ctx, cancel := h.boundedContext(c)
	defer cancel()

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid body", Message: err.Error()})
		return
	}

	if webhookID := c.Query("webhook_id"); webhookID != "" {
		outcome := h.dispatch.HandleDirectWebhook(ctx, webhookID, body)
		if outcome.Status == services.OutcomeNotFound {
			c.JSON(http.StatusNotFound, outcome)
			return
		}
		c.JSON(http.StatusOK, outcome)
		return
	}

	var push pubSubPush
	if err := json.Unmarshal(body, &push); err != nil || push.Message.Data == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: "expected webhook_id or pub/sub push body"})
		return
	}
	decoded, err := base64.StdEncoding.DecodeString(push.Message.Data)
	if err != nil {
		// Push payloads may arrive URL-safe encoded.
		decoded, err = base64.URLEncoding.DecodeString(push.Message.Data)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: "malformed pub/sub data"})
		return
	}
	var envelope services.PushEnvelope
	if err := json.Unmarshal(decoded, &envelope); err != nil || envelope.EmailAddress == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: "malformed notification envelope"})
		return
	}

	summary := h.dispatch.HandleGmailNotification(ctx, &envelope)
	c.JSON(http.StatusOK, summary)
}

// RenewWatches runs the expiring-watch sweep. Mounted behind the internal
// secret middleware; invoked by the external scheduler.
func (h *IngestHandler) RenewWatches(c *gin.Context) {
	ctx, cancel := h.boundedContext(c)
	defer cancel()

	lookahead := h.cfg.Scheduler.RenewalLookahead
	if lookahead <= 0 {
		lookahead = 24 * time.Hour
	}
	summary, err := h.watches.RenewExpiringWatches(ctx, lookahead)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Renewal sweep failed", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *IngestHandler) boundedContext(c *gin.Context) (context.Context, context.CancelFunc) {
	timeout := h.cfg.Ingest.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(c.Request.Context(), timeout)
}
