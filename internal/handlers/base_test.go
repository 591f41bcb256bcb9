package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/fernerr"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/models"
)

func getTestLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newTestEcho() *echo.Echo {
	e := echo.New()
	e.Use(middleware.Context())
	e.HTTPErrorHandler = middleware.Error(getTestLogger())
	return e
}

func makeRequest(t *testing.T, e *echo.Echo, method, path, tenantID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(data)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if tenantID != "" {
		req.Header.Set(middleware.HeaderTenantID, tenantID)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

// fakeBindingRepo is an in-memory binding store for handler tests
type fakeBindingRepo struct {
	byTenant map[string]*models.TenantBinding
}

func newFakeBindingRepo(bindings ...*models.TenantBinding) *fakeBindingRepo {
	repo := &fakeBindingRepo{byTenant: map[string]*models.TenantBinding{}}
	for _, b := range bindings {
		repo.byTenant[b.TenantID] = b
	}
	return repo
}

func (f *fakeBindingRepo) Create(ctx context.Context, b *models.TenantBinding) (*models.TenantBinding, error) {
	if _, ok := f.byTenant[b.TenantID]; ok {
		return nil, fernerr.ErrAlreadyProvisioned
	}
	f.byTenant[b.TenantID] = b
	return b, nil
}

func (f *fakeBindingRepo) GetByTenantID(ctx context.Context, tenantID string) (*models.TenantBinding, error) {
	b, ok := f.byTenant[tenantID]
	if !ok {
		return nil, fernerr.ErrNoBinding
	}
	return b, nil
}

func (f *fakeBindingRepo) GetByGatewayName(ctx context.Context, gatewayName string) (*models.TenantBinding, error) {
	for _, b := range f.byTenant {
		if b.GatewayName == gatewayName {
			return b, nil
		}
	}
	return nil, fernerr.ErrNoBinding
}

func (f *fakeBindingRepo) GetByCrmAccountID(ctx context.Context, accountID string) (*models.TenantBinding, error) {
	for _, b := range f.byTenant {
		if b.CrmAccountID != nil && *b.CrmAccountID == accountID {
			return b, nil
		}
	}
	return nil, fernerr.ErrNoBinding
}

func (f *fakeBindingRepo) UpdateTokens(ctx context.Context, tenantID string, accessToken, refreshToken, accountID, agentID string) (*models.TenantBinding, error) {
	b, ok := f.byTenant[tenantID]
	if !ok {
		return nil, fernerr.ErrNoBinding
	}
	b.CrmAccessToken = &accessToken
	b.CrmRefreshToken = &refreshToken
	b.CrmAccountID = &accountID
	b.CrmAgentID = &agentID
	b.IsConnected = true
	return b, nil
}

func (f *fakeBindingRepo) UpdateWebhookURL(ctx context.Context, tenantID string, webhookURL string) (*models.TenantBinding, error) {
	b, ok := f.byTenant[tenantID]
	if !ok {
		return nil, fernerr.ErrNoBinding
	}
	b.OutboundWebhookURL = &webhookURL
	return b, nil
}

func (f *fakeBindingRepo) UpdateCrmKey(ctx context.Context, tenantID string, crmKey string) (*models.TenantBinding, error) {
	b, ok := f.byTenant[tenantID]
	if !ok {
		return nil, fernerr.ErrNoBinding
	}
	b.CrmAPIKey = &crmKey
	return b, nil
}

func (f *fakeBindingRepo) Delete(ctx context.Context, tenantID string) error {
	if _, ok := f.byTenant[tenantID]; !ok {
		return fernerr.ErrNoBinding
	}
	delete(f.byTenant, tenantID)
	return nil
}
