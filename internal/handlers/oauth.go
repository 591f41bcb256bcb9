package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
)

// AuthorizationBroker is the slice of the OAuth broker the handler needs
type AuthorizationBroker interface {
	BeginAuthorization(ctx context.Context, tenantID string) (string, error)
	CompleteAuthorization(ctx context.Context, code, state string) (*models.TenantBinding, error)
}

// OAuthHandler handles the CRM authorization flow
type OAuthHandler struct {
	broker AuthorizationBroker
}

// NewOAuthHandler creates a new OAuth handler
func NewOAuthHandler(broker AuthorizationBroker) *OAuthHandler {
	return &OAuthHandler{broker: broker}
}

// RegisterConnectRoute registers the authenticated connect route
func (h *OAuthHandler) RegisterConnectRoute(g *echo.Group) {
	g.GET("/oauth/connect", h.Connect)
}

// RegisterCallbackRoute registers the callback route. The CRM redirects the
// browser here, so it cannot carry our auth; the state token is the proof.
func (h *OAuthHandler) RegisterCallbackRoute(g *echo.Group) {
	g.GET("/oauth/callback", h.Callback)
}

// Connect handles GET /oauth/connect
func (h *OAuthHandler) Connect(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	redirectURL, err := h.broker.BeginAuthorization(ctx, tenantID)
	if err != nil {
		return DomainError(err)
	}

	return c.Redirect(http.StatusFound, redirectURL)
}

// Callback handles GET /oauth/callback
func (h *OAuthHandler) Callback(c echo.Context) error {
	ctx := c.Request().Context()

	code := c.QueryParam("code")
	state := c.QueryParam("state")
	if code == "" || state == "" {
		return BadRequest("code and state are required")
	}

	bnd, err := h.broker.CompleteAuthorization(ctx, code, state)
	if err != nil {
		return DomainError(err)
	}

	return SuccessResponse(c, bnd)
}
