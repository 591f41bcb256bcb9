package handlers

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/fernerr"
)

// GetTenantID extracts the tenant ID from context
func GetTenantID(c echo.Context) (string, error) {
	ctx := c.Request().Context()
	tenantID := appctx.GetTenantID(ctx)
	if tenantID == "" {
		return "", httperror.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	return tenantID, nil
}

// SuccessResponse returns a 200 OK with data
func SuccessResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, data)
}

// CreatedResponse returns a 201 Created with data
func CreatedResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusCreated, data)
}

// NoContentResponse returns a 204 No Content
func NoContentResponse(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}

// BadRequest returns a 400 Bad Request error
func BadRequest(message string) error {
	return httperror.NewHTTPError(http.StatusBadRequest, message)
}

// Unauthorized returns a 401 Unauthorized error
func Unauthorized(message string) error {
	return httperror.NewHTTPError(http.StatusUnauthorized, message)
}

// DomainError maps the service's sentinel errors onto HTTP errors. Errors
// that are already HTTP errors pass through unchanged.
func DomainError(err error) error {
	if err == nil {
		return nil
	}
	if httperror.IsHTTPError(err) {
		return err
	}

	switch {
	case errors.Is(err, fernerr.ErrAlreadyProvisioned):
		return httperror.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, fernerr.ErrNoBinding):
		return httperror.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, fernerr.ErrInvalidState), errors.Is(err, fernerr.ErrMissingFields):
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, fernerr.ErrProvisioningTimeout):
		return httperror.NewHTTPError(http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, fernerr.ErrWebhookConfigFailed),
		errors.Is(err, fernerr.ErrTokenExchangeFailed),
		errors.Is(err, fernerr.ErrSendFailed):
		return httperror.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	return err
}
