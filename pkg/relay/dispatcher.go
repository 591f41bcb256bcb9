package relay

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/fernerr"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/vault"
)

// GatewaySender is the slice of the gateway client the dispatcher needs
type GatewaySender interface {
	SendText(ctx context.Context, endpoint, apiKey, phone, text string) error
}

// Dispatcher forwards CRM-initiated sends to the tenant's gateway
type Dispatcher struct {
	gateways GatewaySender
	vault    *vault.Vault
	logger   ectologger.Logger
}

// NewDispatcher creates an outbound dispatcher
func NewDispatcher(gateways GatewaySender, v *vault.Vault, logger ectologger.Logger) *Dispatcher {
	return &Dispatcher{
		gateways: gateways,
		vault:    v,
		logger:   logger,
	}
}

// Dispatch sends one message through the tenant's gateway. Phone and body are
// validated before any network call.
func (d *Dispatcher) Dispatch(ctx context.Context, binding *models.TenantBinding, phone, body string) error {
	ctx, span := tracing.StartSpan(ctx, "Dispatcher.Dispatch")
	defer span.End()

	if phone == "" || body == "" {
		return fmt.Errorf("%w: phone and body are required", fernerr.ErrMissingFields)
	}

	apiKey, err := d.vault.Decrypt(binding.GatewayAPIKey)
	if err != nil {
		metrics.GatewaySendsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: %v", fernerr.ErrSendFailed, err)
	}

	if err := d.gateways.SendText(ctx, binding.GatewayEndpoint, apiKey, phone, body); err != nil {
		metrics.GatewaySendsTotal.WithLabelValues("failure").Inc()
		d.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id":    binding.TenantID,
			"gateway_name": binding.GatewayName,
		}).Error("gateway send failed")
		return err
	}

	metrics.GatewaySendsTotal.WithLabelValues("success").Inc()
	d.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":    binding.TenantID,
		"gateway_name": binding.GatewayName,
	}).Info("message dispatched to gateway")

	return nil
}
