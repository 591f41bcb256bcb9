package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/repositories/binding"
	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/fernerr"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/queue"
	"github.com/Ramsey-B/fern/pkg/relay"
)

// Relayer is the slice of the relay pipeline the handler needs
type Relayer interface {
	Relay(ctx context.Context, binding *models.TenantBinding, msg *models.CanonicalMessage) error
}

// Deduper claims event ids so redelivered webhooks are processed once
type Deduper interface {
	Claim(ctx context.Context, id string) bool
	Release(ctx context.Context, id string)
}

// WebhookHandler ingests gateway webhook deliveries. Filtered and failed
// events are still acknowledged; gateways retry on non-2xx and a retry storm
// of permanently rejected events helps no one.
type WebhookHandler struct {
	bindings binding.BindingRepository
	deduper  Deduper
	pool     *queue.Pool
	relayer  Relayer
	logger   ectologger.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(bindings binding.BindingRepository, deduper Deduper, pool *queue.Pool, relayer Relayer, logger ectologger.Logger) *WebhookHandler {
	return &WebhookHandler{
		bindings: bindings,
		deduper:  deduper,
		pool:     pool,
		relayer:  relayer,
		logger:   logger,
	}
}

// WebhookAck is the acknowledgment body returned to the gateway
type WebhookAck struct {
	Status string `json:"status"`
}

// RegisterRoutes registers the webhook ingress route
func (h *WebhookHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/webhook/:gatewayName", h.Receive)
}

// Receive handles POST /webhook/:gatewayName
func (h *WebhookHandler) Receive(c echo.Context) error {
	ctx := c.Request().Context()

	gatewayName := c.Param("gatewayName")
	if gatewayName == "" {
		return BadRequest("missing gatewayName")
	}
	ctx = appctx.SetGatewayName(ctx, gatewayName)

	var event models.GatewayEvent
	if err := c.Bind(&event); err != nil {
		metrics.WebhooksReceivedTotal.WithLabelValues("malformed").Inc()
		h.logger.WithContext(ctx).WithError(err).Warn("unparseable webhook body")
		return c.JSON(http.StatusOK, WebhookAck{Status: "ignored"})
	}

	bnd, err := h.bindings.GetByGatewayName(ctx, gatewayName)
	if err != nil {
		if errors.Is(err, fernerr.ErrNoBinding) {
			metrics.WebhooksReceivedTotal.WithLabelValues("unknown_gateway").Inc()
			return DomainError(err)
		}
		return err
	}

	msg, reason := relay.Normalize(gatewayName, &event)
	if reason != relay.Accepted {
		metrics.WebhooksReceivedTotal.WithLabelValues("rejected").Inc()
		h.logger.WithContext(ctx).WithFields(map[string]any{
			"reason": string(reason),
		}).Debug("webhook event filtered")
		return c.JSON(http.StatusOK, WebhookAck{Status: "ignored"})
	}

	dedupeKey := gatewayName + ":" + event.Payload.ID
	if !h.deduper.Claim(ctx, dedupeKey) {
		metrics.WebhooksReceivedTotal.WithLabelValues("duplicate").Inc()
		return c.JSON(http.StatusOK, WebhookAck{Status: "duplicate"})
	}

	job := queue.Job{
		ID:       event.Payload.ID,
		TenantID: bnd.TenantID,
		Run: func(jobCtx context.Context) error {
			return h.relayer.Relay(jobCtx, bnd, msg)
		},
	}
	if err := h.pool.Submit(ctx, job); err != nil {
		// release the claim so the gateway's retry is processed, not
		// answered as a duplicate. Still acknowledged; the drop is
		// observable through logs and metrics.
		h.deduper.Release(ctx, dedupeKey)
		metrics.WebhooksReceivedTotal.WithLabelValues("dropped").Inc()
		h.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": bnd.TenantID,
		}).Error("failed to enqueue relay job")
		return c.JSON(http.StatusOK, WebhookAck{Status: "dropped"})
	}

	metrics.WebhooksReceivedTotal.WithLabelValues("queued").Inc()
	return c.JSON(http.StatusAccepted, WebhookAck{Status: "queued"})
}
