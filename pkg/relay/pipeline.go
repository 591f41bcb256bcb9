package relay

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/fernerr"
	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/vault"
)

// CrmAPI is the slice of the CRM client the pipeline needs
type CrmAPI interface {
	SearchContact(ctx context.Context, accessToken, phone string) (string, error)
	CreateContact(ctx context.Context, accessToken, accountID, phone, name string) (string, error)
	SearchConversation(ctx context.Context, accessToken, contactID string) string
	AppendMessage(ctx context.Context, accessToken, contactID, conversationID, body string, direction models.Direction, agentID string) error
}

// TokenRefresher renews a tenant's CRM tokens after the CRM rejects the
// current access token
type TokenRefresher interface {
	Refresh(ctx context.Context, tenantID string) (*models.TenantBinding, error)
}

// Pipeline forwards one canonical message into the CRM: resolve the contact
// for the counterparty, then append the message to its conversation.
type Pipeline struct {
	crm       CrmAPI
	vault     *vault.Vault
	emitter   events.Emitter
	sink      *httpclient.Client
	refresher TokenRefresher
	logger    ectologger.Logger
}

// NewPipeline creates a relay pipeline. A nil refresher disables the
// refresh-and-retry on rejected tokens.
func NewPipeline(crm CrmAPI, v *vault.Vault, emitter events.Emitter, sink *httpclient.Client, refresher TokenRefresher, logger ectologger.Logger) *Pipeline {
	return &Pipeline{
		crm:       crm,
		vault:     v,
		emitter:   emitter,
		sink:      sink,
		refresher: refresher,
		logger:    logger,
	}
}

// Relay resolves a CRM contact for the message's counterparty and appends the
// message, direction-tagged. When the CRM rejects the access token the tokens
// are refreshed once and the relay retried. A resolution failure aborts the
// relay; an append failure after resolution does not roll back contact
// creation.
func (p *Pipeline) Relay(ctx context.Context, binding *models.TenantBinding, msg *models.CanonicalMessage) error {
	ctx, span := tracing.StartSpan(ctx, "Pipeline.Relay")
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.RelayDuration.Observe(time.Since(start).Seconds())
	}()

	err := p.relay(ctx, binding, msg)
	if err != nil && p.refresher != nil && fernerr.UpstreamStatus(err) == http.StatusUnauthorized {
		refreshed, rerr := p.refresher.Refresh(ctx, binding.TenantID)
		if rerr != nil {
			p.logger.WithContext(ctx).WithError(rerr).WithFields(map[string]any{
				"tenant_id": binding.TenantID,
			}).Warn("token refresh failed, keeping original relay error")
		} else {
			binding = refreshed
			err = p.relay(ctx, binding, msg)
		}
	}

	status := "success"
	eventType := events.EventMessageRelayed
	if err != nil {
		status = "failure"
		eventType = events.EventMessageRelayFailed
	}

	metrics.RelayOutcomesTotal.WithLabelValues(string(msg.Direction), status).Inc()
	p.emitter.Emit(ctx, eventType, binding.TenantID, binding.GatewayName, map[string]any{
		"direction":          string(msg.Direction),
		"counterparty_phone": msg.CounterpartyPhone,
	})
	p.notifySink(ctx, binding, msg, status)

	return err
}

func (p *Pipeline) relay(ctx context.Context, binding *models.TenantBinding, msg *models.CanonicalMessage) error {
	if !binding.IsConnected || binding.CrmAccessToken == nil || binding.CrmAccountID == nil {
		return fmt.Errorf("%w: tenant %s is not connected to the crm", fernerr.ErrContactResolution, binding.TenantID)
	}

	accessToken, err := p.vault.Decrypt(*binding.CrmAccessToken)
	if err != nil {
		return fmt.Errorf("%w: %v", fernerr.ErrContactResolution, err)
	}

	contactID, err := p.resolveContact(ctx, accessToken, binding, msg)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": binding.TenantID,
			"phone":     msg.CounterpartyPhone,
			"direction": msg.Direction,
		}).Error("contact resolution failed, aborting relay")
		return err
	}

	agentID := ""
	if binding.CrmAgentID != nil {
		agentID = *binding.CrmAgentID
	}

	// best-effort; the CRM opens a conversation implicitly when none is found
	conversationID := p.crm.SearchConversation(ctx, accessToken, contactID)

	if err := p.crm.AppendMessage(ctx, accessToken, contactID, conversationID, msg.Body, msg.Direction, agentID); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id":  binding.TenantID,
			"contact_id": contactID,
			"direction":  msg.Direction,
		}).Error("conversation append failed")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":  binding.TenantID,
		"contact_id": contactID,
		"direction":  msg.Direction,
	}).Info("message relayed")

	return nil
}

// resolveContact searches for an existing contact and creates one when none
// matches. Creation conflicts reconcile to the existing contact inside the
// CRM client, so concurrent relays for the same phone land on one contact.
func (p *Pipeline) resolveContact(ctx context.Context, accessToken string, binding *models.TenantBinding, msg *models.CanonicalMessage) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "Pipeline.resolveContact")
	defer span.End()

	contactID, err := p.crm.SearchContact(ctx, accessToken, msg.CounterpartyPhone)
	if err != nil {
		return "", err
	}
	if contactID != "" {
		return contactID, nil
	}

	return p.crm.CreateContact(ctx, accessToken, *binding.CrmAccountID, msg.CounterpartyPhone, msg.CounterpartyName)
}

// sinkPayload is the body POSTed to a tenant's outbound webhook sink
type sinkPayload struct {
	TenantID          string `json:"tenant_id"`
	GatewayName       string `json:"gateway_name"`
	Direction         string `json:"direction"`
	CounterpartyPhone string `json:"counterparty_phone"`
	CounterpartyName  string `json:"counterparty_name"`
	Body              string `json:"body"`
	HasMedia          bool   `json:"has_media"`
	Status            string `json:"status"`
}

// notifySink forwards the relay outcome to the tenant's configured webhook
// sink. Best-effort: sink failures are logged and never fail the relay.
func (p *Pipeline) notifySink(ctx context.Context, binding *models.TenantBinding, msg *models.CanonicalMessage, status string) {
	if binding.OutboundWebhookURL == nil || *binding.OutboundWebhookURL == "" {
		return
	}

	payload := sinkPayload{
		TenantID:          binding.TenantID,
		GatewayName:       binding.GatewayName,
		Direction:         string(msg.Direction),
		CounterpartyPhone: msg.CounterpartyPhone,
		CounterpartyName:  msg.CounterpartyName,
		Body:              msg.Body,
		HasMedia:          msg.HasMedia,
		Status:            status,
	}

	resp, err := p.sink.PostJSON(ctx, *binding.OutboundWebhookURL, payload, nil)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": binding.TenantID,
		}).Warn("outbound webhook sink unreachable")
		return
	}
	if !resp.IsSuccess() {
		p.logger.WithContext(ctx).WithFields(map[string]any{
			"tenant_id": binding.TenantID,
			"status":    resp.StatusCode,
		}).Warn("outbound webhook sink rejected payload")
	}
}
