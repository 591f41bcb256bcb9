// Package oauth drives the authorization-code exchange with the CRM and owns
// the server-side state nonces that tie callbacks back to tenants.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/internal/repositories/binding"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/fernerr"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/vault"
)

const (
	stateKeyPrefix = "oauthstate:"
	nonceBytes     = 16
)

// TokenExchanger is the slice of the CRM client the broker needs
type TokenExchanger interface {
	AuthorizeURL(redirectURI, state string) string
	ExchangeCode(ctx context.Context, code, redirectURI string) (*models.TokenSet, error)
	Refresh(ctx context.Context, refreshToken string) (*models.TokenSet, error)
}

// Broker runs the UNAUTHORIZED -> AUTHORIZING -> CONNECTED flow for tenants
type Broker struct {
	bindings    binding.BindingRepository
	crm         TokenExchanger
	vault       *vault.Vault
	states      *redis.Client
	emitter     events.Emitter
	logger      ectologger.Logger
	redirectURI string
	stateTTL    time.Duration
}

// New creates an OAuth broker. redirectURI must match the CRM app's
// registered callback.
func New(
	bindings binding.BindingRepository,
	crm TokenExchanger,
	v *vault.Vault,
	states *redis.Client,
	emitter events.Emitter,
	logger ectologger.Logger,
	redirectURI string,
	stateTTL time.Duration,
) *Broker {
	return &Broker{
		bindings:    bindings,
		crm:         crm,
		vault:       v,
		states:      states,
		emitter:     emitter,
		logger:      logger,
		redirectURI: redirectURI,
		stateTTL:    stateTTL,
	}
}

// BeginAuthorization builds the CRM authorization redirect for a tenant.
// The state is tenantID "." nonce; the nonce is held server-side with a TTL
// so a forged or replayed state cannot complete.
func (b *Broker) BeginAuthorization(ctx context.Context, tenantID string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "OAuthBroker.BeginAuthorization")
	defer span.End()

	if _, err := b.bindings.GetByTenantID(ctx, tenantID); err != nil {
		return "", err
	}

	nonce := make([]byte, nonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate state nonce: %w", err)
	}

	state := tenantID + "." + hex.EncodeToString(nonce)
	if err := b.states.Set(ctx, stateKeyPrefix+state, tenantID, b.stateTTL); err != nil {
		return "", fmt.Errorf("failed to store state nonce: %w", err)
	}

	b.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": tenantID,
	}).Info("beginning crm authorization")

	return b.crm.AuthorizeURL(b.redirectURI, state), nil
}

// CompleteAuthorization resolves the state, exchanges the code, and persists
// the encrypted tokens and CRM identity against the tenant's binding.
// An unresolvable state fails ErrInvalidState before any network call.
func (b *Broker) CompleteAuthorization(ctx context.Context, code, state string) (*models.TenantBinding, error) {
	ctx, span := tracing.StartSpan(ctx, "OAuthBroker.CompleteAuthorization")
	defer span.End()

	tenantID, _, found := strings.Cut(state, ".")
	if !found || tenantID == "" {
		return nil, fernerr.ErrInvalidState
	}

	// claim the nonce; a second callback with the same state fails
	stored, err := b.states.GetDel(ctx, stateKeyPrefix+state)
	if err != nil || stored != tenantID {
		return nil, fernerr.ErrInvalidState
	}

	if _, err := b.bindings.GetByTenantID(ctx, tenantID); err != nil {
		return nil, err
	}

	tokens, err := b.crm.ExchangeCode(ctx, code, b.redirectURI)
	if err != nil {
		b.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": tenantID,
		}).Error("token exchange failed")
		return nil, err
	}

	accessEnc, err := b.vault.Encrypt(tokens.AccessToken)
	if err != nil {
		return nil, err
	}
	refreshEnc, err := b.vault.Encrypt(tokens.RefreshToken)
	if err != nil {
		return nil, err
	}

	updated, err := b.bindings.UpdateTokens(ctx, tenantID, accessEnc, refreshEnc, tokens.AccountID, tokens.AgentID)
	if err != nil {
		return nil, err
	}

	b.emitter.Emit(ctx, events.EventCrmConnected, tenantID, updated.GatewayName, map[string]any{
		"crm_account_id": tokens.AccountID,
	})

	b.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":      tenantID,
		"crm_account_id": tokens.AccountID,
	}).Info("crm connected")

	return updated, nil
}

// Refresh trades the stored refresh token for a fresh token set and persists
// it. Called lazily before CRM calls whose token is near expiry.
func (b *Broker) Refresh(ctx context.Context, tenantID string) (*models.TenantBinding, error) {
	ctx, span := tracing.StartSpan(ctx, "OAuthBroker.Refresh")
	defer span.End()

	current, err := b.bindings.GetByTenantID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if current.CrmRefreshToken == nil {
		return nil, fmt.Errorf("%w: tenant has no refresh token", fernerr.ErrTokenExchangeFailed)
	}

	refreshToken, err := b.vault.Decrypt(*current.CrmRefreshToken)
	if err != nil {
		return nil, err
	}

	tokens, err := b.crm.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	accessEnc, err := b.vault.Encrypt(tokens.AccessToken)
	if err != nil {
		return nil, err
	}
	refreshEnc, err := b.vault.Encrypt(tokens.RefreshToken)
	if err != nil {
		return nil, err
	}

	// the CRM may omit identity fields on refresh; keep what we have
	accountID := tokens.AccountID
	if accountID == "" && current.CrmAccountID != nil {
		accountID = *current.CrmAccountID
	}
	agentID := tokens.AgentID
	if agentID == "" && current.CrmAgentID != nil {
		agentID = *current.CrmAgentID
	}

	return b.bindings.UpdateTokens(ctx, tenantID, accessEnc, refreshEnc, accountID, agentID)
}
