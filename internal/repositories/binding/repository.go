package binding

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/fernerr"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const pgUniqueViolation = "23505"

// BindingRepository defines the interface for binding data access
type BindingRepository interface {
	Create(ctx context.Context, binding *models.TenantBinding) (*models.TenantBinding, error)
	GetByTenantID(ctx context.Context, tenantID string) (*models.TenantBinding, error)
	GetByGatewayName(ctx context.Context, gatewayName string) (*models.TenantBinding, error)
	GetByCrmAccountID(ctx context.Context, accountID string) (*models.TenantBinding, error)
	UpdateTokens(ctx context.Context, tenantID string, accessToken, refreshToken, accountID, agentID string) (*models.TenantBinding, error)
	UpdateWebhookURL(ctx context.Context, tenantID string, webhookURL string) (*models.TenantBinding, error)
	UpdateCrmKey(ctx context.Context, tenantID string, crmKey string) (*models.TenantBinding, error)
	Delete(ctx context.Context, tenantID string) error
}

// Repository implements BindingRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new binding repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create persists a new binding. A second binding for the same tenant or a
// reused gateway name fails with fernerr.ErrAlreadyProvisioned.
func (r *Repository) Create(ctx context.Context, binding *models.TenantBinding) (*models.TenantBinding, error) {
	ctx, span := tracing.StartSpan(ctx, "BindingRepository.Create")
	defer span.End()

	// Generate ID if not provided
	if binding.ID == "" {
		binding.ID = uuid.New().String()
	}

	now := Now()
	binding.CreatedAt = now
	binding.UpdatedAt = now

	row := FromBinding(binding)
	ib := bindingStruct.InsertInto(bindingsTable, row)
	sql, args := ib.Build()

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":           binding.ID,
		"tenant_id":    binding.TenantID,
		"gateway_name": binding.GatewayName,
	}).Debug("Creating binding")

	_, err := r.db.ExecContext(ctx, sql, args...)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
			return nil, fernerr.ErrAlreadyProvisioned
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create binding")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create binding")
	}

	return binding, nil
}

// GetByTenantID retrieves the binding for a tenant
func (r *Repository) GetByTenantID(ctx context.Context, tenantID string) (*models.TenantBinding, error) {
	ctx, span := tracing.StartSpan(ctx, "BindingRepository.GetByTenantID")
	defer span.End()

	return r.getBy(ctx, "tenant_id", tenantID)
}

// GetByGatewayName retrieves the binding owning a gateway name
func (r *Repository) GetByGatewayName(ctx context.Context, gatewayName string) (*models.TenantBinding, error) {
	ctx, span := tracing.StartSpan(ctx, "BindingRepository.GetByGatewayName")
	defer span.End()

	return r.getBy(ctx, "gateway_name", gatewayName)
}

// GetByCrmAccountID retrieves the binding connected to a CRM account
func (r *Repository) GetByCrmAccountID(ctx context.Context, accountID string) (*models.TenantBinding, error) {
	ctx, span := tracing.StartSpan(ctx, "BindingRepository.GetByCrmAccountID")
	defer span.End()

	return r.getBy(ctx, "crm_account_id", accountID)
}

func (r *Repository) getBy(ctx context.Context, column, value string) (*models.TenantBinding, error) {
	sb := bindingStruct.SelectFrom(bindingsTable)
	sb.Where(sb.Equal(column, value))

	query, args := sb.Build()

	r.logger.WithContext(ctx).WithFields(map[string]any{
		column: value,
	}).Debug("Getting binding")

	var row BindingRow
	err := r.db.GetContext(ctx, &row, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fernerr.ErrNoBinding
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get binding")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get binding")
	}

	return ToBinding(&row), nil
}

// UpdateTokens persists the CRM credentials from a completed token exchange
// and marks the binding connected. Token values are vault ciphertext.
func (r *Repository) UpdateTokens(ctx context.Context, tenantID string, accessToken, refreshToken, accountID, agentID string) (*models.TenantBinding, error) {
	ctx, span := tracing.StartSpan(ctx, "BindingRepository.UpdateTokens")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(bindingsTable)
	ub.Set(
		ub.Assign("crm_access_token", accessToken),
		ub.Assign("crm_refresh_token", refreshToken),
		ub.Assign("crm_account_id", accountID),
		ub.Assign("crm_agent_id", agentID),
		ub.Assign("is_connected", true),
		ub.Assign("updated_at", Now()),
	)
	ub.Where(ub.Equal("tenant_id", tenantID))

	query, args := ub.Build()

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":      tenantID,
		"crm_account_id": accountID,
	}).Debug("Updating binding tokens")

	if err := r.execExpectingRow(ctx, query, args, "failed to update binding tokens"); err != nil {
		return nil, err
	}

	return r.GetByTenantID(ctx, tenantID)
}

// UpdateWebhookURL sets the tenant's outbound webhook sink
func (r *Repository) UpdateWebhookURL(ctx context.Context, tenantID string, webhookURL string) (*models.TenantBinding, error) {
	ctx, span := tracing.StartSpan(ctx, "BindingRepository.UpdateWebhookURL")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(bindingsTable)
	ub.Set(
		ub.Assign("outbound_webhook_url", webhookURL),
		ub.Assign("updated_at", Now()),
	)
	ub.Where(ub.Equal("tenant_id", tenantID))

	query, args := ub.Build()

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": tenantID,
	}).Debug("Updating binding webhook url")

	if err := r.execExpectingRow(ctx, query, args, "failed to update binding webhook url"); err != nil {
		return nil, err
	}

	return r.GetByTenantID(ctx, tenantID)
}

// UpdateCrmKey stores the encrypted static CRM API key variant
func (r *Repository) UpdateCrmKey(ctx context.Context, tenantID string, crmKey string) (*models.TenantBinding, error) {
	ctx, span := tracing.StartSpan(ctx, "BindingRepository.UpdateCrmKey")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(bindingsTable)
	ub.Set(
		ub.Assign("crm_api_key", crmKey),
		ub.Assign("updated_at", Now()),
	)
	ub.Where(ub.Equal("tenant_id", tenantID))

	query, args := ub.Build()

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": tenantID,
	}).Debug("Updating binding crm key")

	if err := r.execExpectingRow(ctx, query, args, "failed to update binding crm key"); err != nil {
		return nil, err
	}

	return r.GetByTenantID(ctx, tenantID)
}

// Delete removes a binding. Used only for cleanup after failed provisioning.
func (r *Repository) Delete(ctx context.Context, tenantID string) error {
	ctx, span := tracing.StartSpan(ctx, "BindingRepository.Delete")
	defer span.End()

	db := bindingStruct.DeleteFrom(bindingsTable)
	db.Where(db.Equal("tenant_id", tenantID))

	query, args := db.Build()

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": tenantID,
	}).Debug("Deleting binding")

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete binding")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete binding")
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fernerr.ErrNoBinding
	}

	return nil
}

func (r *Repository) execExpectingRow(ctx context.Context, query string, args []any, failMsg string) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error(failMsg)
		return httperror.NewHTTPError(http.StatusInternalServerError, failMsg)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fernerr.ErrNoBinding
	}

	return nil
}
