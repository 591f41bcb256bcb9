package handlers

import (
	"context"
	"net/url"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/repositories/binding"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/vault"
)

// minimum length for a static CRM API key
const minCrmKeyLength = 32

// InstanceService is the slice of the provisioner the handler needs
type InstanceService interface {
	Provision(ctx context.Context, tenantID string) (*models.TenantBinding, error)
	Deprovision(ctx context.Context, tenantID string) error
}

// InstanceHandler handles gateway instance lifecycle requests
type InstanceHandler struct {
	instances InstanceService
	bindings  binding.BindingRepository
	vault     *vault.Vault
}

// NewInstanceHandler creates a new instance handler
func NewInstanceHandler(instances InstanceService, bindings binding.BindingRepository, v *vault.Vault) *InstanceHandler {
	return &InstanceHandler{
		instances: instances,
		bindings:  bindings,
		vault:     v,
	}
}

// UpdateWebhookRequest is the request body for setting the outbound sink URL
type UpdateWebhookRequest struct {
	WebhookURL string `json:"webhook_url" validate:"required,url"`
}

// UpdateCrmKeyRequest is the request body for storing a static CRM API key
type UpdateCrmKeyRequest struct {
	APIKey string `json:"api_key" validate:"required,min=32"`
}

// RegisterRoutes registers the instance routes
func (h *InstanceHandler) RegisterRoutes(g *echo.Group) {
	instances := g.Group("/instances")
	instances.POST("", h.Create)
	instances.GET("", h.Get)
	instances.DELETE("", h.Delete)
	instances.PATCH("/webhook", h.UpdateWebhook)
	instances.PATCH("/crm-key", h.UpdateCrmKey)
}

// Create handles POST /instances
func (h *InstanceHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	bnd, err := h.instances.Provision(ctx, tenantID)
	if err != nil {
		return DomainError(err)
	}

	return CreatedResponse(c, bnd)
}

// Get handles GET /instances
func (h *InstanceHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	bnd, err := h.bindings.GetByTenantID(ctx, tenantID)
	if err != nil {
		return DomainError(err)
	}

	return SuccessResponse(c, bnd)
}

// Delete handles DELETE /instances
func (h *InstanceHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	if err := h.instances.Deprovision(ctx, tenantID); err != nil {
		return DomainError(err)
	}

	return NoContentResponse(c)
}

// UpdateWebhook handles PATCH /instances/webhook
func (h *InstanceHandler) UpdateWebhook(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	var req UpdateWebhookRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}

	parsed, err := url.Parse(req.WebhookURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return BadRequest("webhook_url must be a valid http(s) URL")
	}

	bnd, err := h.bindings.UpdateWebhookURL(ctx, tenantID, req.WebhookURL)
	if err != nil {
		return DomainError(err)
	}

	return SuccessResponse(c, bnd)
}

// UpdateCrmKey handles PATCH /instances/crm-key
func (h *InstanceHandler) UpdateCrmKey(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	var req UpdateCrmKeyRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}

	if len(req.APIKey) < minCrmKeyLength {
		return BadRequest("api_key is too short")
	}

	encrypted, err := h.vault.Encrypt(req.APIKey)
	if err != nil {
		return err
	}

	bnd, err := h.bindings.UpdateCrmKey(ctx, tenantID, encrypted)
	if err != nil {
		return DomainError(err)
	}

	return SuccessResponse(c, bnd)
}
