package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/fern/pkg/fernerr"
	"github.com/Ramsey-B/fern/pkg/models"
)

type fakeBroker struct {
	beginCalls    []string
	completeCalls [][2]string
	beginErr      error
	completeErr   error
}

func (f *fakeBroker) BeginAuthorization(ctx context.Context, tenantID string) (string, error) {
	if f.beginErr != nil {
		return "", f.beginErr
	}
	f.beginCalls = append(f.beginCalls, tenantID)
	return "https://marketplace.example.com/oauth/chooselocation?state=" + tenantID + ".nonce", nil
}

func (f *fakeBroker) CompleteAuthorization(ctx context.Context, code, state string) (*models.TenantBinding, error) {
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	f.completeCalls = append(f.completeCalls, [2]string{code, state})
	return &models.TenantBinding{TenantID: "tenant-1", IsConnected: true}, nil
}

func setupOAuth(broker *fakeBroker) *OAuthHandler {
	return NewOAuthHandler(broker)
}

func TestOAuthHandler_Connect_Redirects(t *testing.T) {
	broker := &fakeBroker{}
	e := newTestEcho()
	h := setupOAuth(broker)
	h.RegisterConnectRoute(e.Group("/api/v1"))

	rec := makeRequest(t, e, http.MethodGet, "/api/v1/oauth/connect", "tenant-1", nil)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "chooselocation")
	assert.Equal(t, []string{"tenant-1"}, broker.beginCalls)
}

func TestOAuthHandler_Connect_NoBinding(t *testing.T) {
	broker := &fakeBroker{beginErr: fernerr.ErrNoBinding}
	e := newTestEcho()
	setupOAuth(broker).RegisterConnectRoute(e.Group("/api/v1"))

	rec := makeRequest(t, e, http.MethodGet, "/api/v1/oauth/connect", "tenant-1", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOAuthHandler_Connect_RequiresAuth(t *testing.T) {
	broker := &fakeBroker{}
	e := newTestEcho()
	setupOAuth(broker).RegisterConnectRoute(e.Group("/api/v1"))

	rec := makeRequest(t, e, http.MethodGet, "/api/v1/oauth/connect", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, broker.beginCalls)
}

func TestOAuthHandler_Callback(t *testing.T) {
	broker := &fakeBroker{}
	e := newTestEcho()
	setupOAuth(broker).RegisterCallbackRoute(e.Group("/api/v1"))

	rec := makeRequest(t, e, http.MethodGet, "/api/v1/oauth/callback?code=abc&state=tenant-1.nonce", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, [][2]string{{"abc", "tenant-1.nonce"}}, broker.completeCalls)
	assert.Contains(t, rec.Body.String(), `"is_connected":true`)
}

func TestOAuthHandler_Callback_MissingParams(t *testing.T) {
	broker := &fakeBroker{}
	e := newTestEcho()
	setupOAuth(broker).RegisterCallbackRoute(e.Group("/api/v1"))

	rec := makeRequest(t, e, http.MethodGet, "/api/v1/oauth/callback?code=abc", "", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, broker.completeCalls)
}

func TestOAuthHandler_Callback_InvalidState(t *testing.T) {
	broker := &fakeBroker{completeErr: fernerr.ErrInvalidState}
	e := newTestEcho()
	setupOAuth(broker).RegisterCallbackRoute(e.Group("/api/v1"))

	rec := makeRequest(t, e, http.MethodGet, "/api/v1/oauth/callback?code=abc&state=garbage", "", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOAuthHandler_Callback_ExchangeFailed(t *testing.T) {
	broker := &fakeBroker{completeErr: fernerr.ErrTokenExchangeFailed}
	e := newTestEcho()
	setupOAuth(broker).RegisterCallbackRoute(e.Group("/api/v1"))

	rec := makeRequest(t, e, http.MethodGet, "/api/v1/oauth/callback?code=abc&state=tenant-1.nonce", "", nil)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
