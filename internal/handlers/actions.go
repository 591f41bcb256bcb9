package handlers

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/repositories/binding"
	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Sender is the slice of the outbound dispatcher the handler needs
type Sender interface {
	Dispatch(ctx context.Context, binding *models.TenantBinding, phone, body string) error
}

// ActionsHandler handles CRM-initiated outbound sends
type ActionsHandler struct {
	bindings   binding.BindingRepository
	dispatcher Sender
}

// NewActionsHandler creates a new actions handler
func NewActionsHandler(bindings binding.BindingRepository, dispatcher Sender) *ActionsHandler {
	return &ActionsHandler{
		bindings:   bindings,
		dispatcher: dispatcher,
	}
}

// SendMessageRequest is the request body for an outbound send. CRM workflow
// triggers address the tenant by locationId; API clients may omit it and are
// resolved by their authenticated tenant instead.
type SendMessageRequest struct {
	LocationID string `json:"locationId"`
	Phone      string `json:"phone" validate:"required"`
	Message    string `json:"message" validate:"required"`
}

// SendMessageResponse acknowledges a dispatched send
type SendMessageResponse struct {
	Status string `json:"status"`
}

// RegisterRoutes registers the action routes
func (h *ActionsHandler) RegisterRoutes(g *echo.Group) {
	actions := g.Group("/actions")
	actions.POST("/send-message", h.SendMessage)
}

// SendMessage handles POST /actions/send-message
func (h *ActionsHandler) SendMessage(c echo.Context) error {
	ctx := c.Request().Context()

	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}

	var bnd *models.TenantBinding
	var err error
	if req.LocationID != "" {
		bnd, err = h.bindings.GetByCrmAccountID(ctx, req.LocationID)
	} else {
		tenantID := appctx.GetTenantID(ctx)
		if tenantID == "" {
			return BadRequest("locationId is required")
		}
		bnd, err = h.bindings.GetByTenantID(ctx, tenantID)
	}
	if err != nil {
		return DomainError(err)
	}

	if err := h.dispatcher.Dispatch(ctx, bnd, req.Phone, req.Message); err != nil {
		return DomainError(err)
	}

	return SuccessResponse(c, SendMessageResponse{Status: "sent"})
}
