// Package provisioner drives the create-instance state machine: allocate a
// port, launch an isolated gateway process, poll it to readiness, point its
// webhooks at the relay ingress, and persist the tenant binding.
package provisioner

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/internal/repositories/binding"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/fernerr"
	"github.com/Ramsey-B/fern/pkg/gateway"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/vault"
)

const (
	// gateway API key entropy in bytes, hex-encoded on the wire
	apiKeyBytes = 16
	// random suffix appended to the tenant id to form the gateway name
	nameSuffixBytes = 4
	// teardownTimeout bounds cleanup of a failed provisioning attempt
	teardownTimeout = 30 * time.Second
)

// GatewayAPI is the slice of the gateway client the provisioner needs
type GatewayAPI interface {
	Health(ctx context.Context, endpoint, apiKey string) error
	ConfigureWebhook(ctx context.Context, endpoint, apiKey, targetURL string) error
}

// Options holds the static provisioning parameters
type Options struct {
	// Image for gateway containers
	Image string
	// Network the containers join; gateway names resolve as hostnames on it
	Network string
	// ContainerPort the gateway listens on inside its container
	ContainerPort int
	// PollInterval between readiness checks
	PollInterval time.Duration
	// ReadyTimeout bounds the readiness poll
	ReadyTimeout time.Duration
	// IngressBaseURL is this service's base URL as reachable from inside the
	// container network; the webhook target is built from it
	IngressBaseURL string
}

// Provisioner creates per-tenant gateway instances
type Provisioner struct {
	bindings binding.BindingRepository
	runtime  gateway.ContainerRuntime
	gateways GatewayAPI
	vault    *vault.Vault
	emitter  events.Emitter
	ports    PortAllocator
	logger   ectologger.Logger
	opts     Options
}

// New creates a provisioner
func New(
	bindings binding.BindingRepository,
	runtime gateway.ContainerRuntime,
	gateways GatewayAPI,
	v *vault.Vault,
	emitter events.Emitter,
	ports PortAllocator,
	logger ectologger.Logger,
	opts Options,
) *Provisioner {
	return &Provisioner{
		bindings: bindings,
		runtime:  runtime,
		gateways: gateways,
		vault:    v,
		emitter:  emitter,
		ports:    ports,
		logger:   logger,
		opts:     opts,
	}
}

// Provision creates a gateway instance for the tenant and persists its
// binding. A tenant with an existing binding fails ErrAlreadyProvisioned.
// Any failure after the container started tears the container down before
// the error propagates.
func (p *Provisioner) Provision(ctx context.Context, tenantID string) (*models.TenantBinding, error) {
	ctx, span := tracing.StartSpan(ctx, "Provisioner.Provision")
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.ProvisionDuration.Observe(time.Since(start).Seconds())
	}()

	_, err := p.bindings.GetByTenantID(ctx, tenantID)
	if err == nil {
		metrics.ProvisionAttemptsTotal.WithLabelValues("already_provisioned").Inc()
		return nil, fernerr.ErrAlreadyProvisioned
	}
	if !errors.Is(err, fernerr.ErrNoBinding) {
		metrics.ProvisionAttemptsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	port, err := p.ports.Allocate()
	if err != nil {
		metrics.ProvisionAttemptsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	gatewayName, err := generateGatewayName(tenantID)
	if err != nil {
		metrics.ProvisionAttemptsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	apiKey, err := generateAPIKey()
	if err != nil {
		metrics.ProvisionAttemptsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	// The gateway is addressed by its container name inside the shared network
	endpoint := fmt.Sprintf("http://%s:%d", gatewayName, p.opts.ContainerPort)

	spec := gateway.ContainerSpec{
		Name:          gatewayName,
		Image:         p.opts.Image,
		Network:       p.opts.Network,
		HostPort:      port,
		ContainerPort: p.opts.ContainerPort,
		Env: map[string]string{
			"WHATSAPP_API_KEY":      apiKey,
			"WHATSAPP_API_PORT":     strconv.Itoa(p.opts.ContainerPort),
			"WHATSAPP_API_HOSTNAME": gatewayName,
		},
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":    tenantID,
		"gateway_name": gatewayName,
		"host_port":    port,
	}).Info("starting gateway container")

	containerID, err := p.runtime.Start(ctx, spec)
	if err != nil {
		metrics.ProvisionAttemptsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to start gateway: %w", err)
	}

	if err := p.waitReady(ctx, endpoint, apiKey); err != nil {
		p.teardown(ctx, containerID, gatewayName)
		metrics.ProvisionAttemptsTotal.WithLabelValues("timeout").Inc()
		return nil, err
	}

	webhookTarget := fmt.Sprintf("%s/api/v1/webhook/%s", p.opts.IngressBaseURL, gatewayName)
	if err := p.gateways.ConfigureWebhook(ctx, endpoint, apiKey, webhookTarget); err != nil {
		p.teardown(ctx, containerID, gatewayName)
		metrics.ProvisionAttemptsTotal.WithLabelValues("webhook_config_failed").Inc()
		return nil, err
	}

	encryptedKey, err := p.vault.Encrypt(apiKey)
	if err != nil {
		p.teardown(ctx, containerID, gatewayName)
		metrics.ProvisionAttemptsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	created, err := p.bindings.Create(ctx, &models.TenantBinding{
		TenantID:        tenantID,
		GatewayName:     gatewayName,
		GatewayEndpoint: endpoint,
		GatewayAPIKey:   encryptedKey,
		IsConnected:     false,
	})
	if err != nil {
		p.teardown(ctx, containerID, gatewayName)
		if errors.Is(err, fernerr.ErrAlreadyProvisioned) {
			metrics.ProvisionAttemptsTotal.WithLabelValues("already_provisioned").Inc()
		} else {
			metrics.ProvisionAttemptsTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	metrics.ProvisionAttemptsTotal.WithLabelValues("success").Inc()
	p.emitter.Emit(ctx, events.EventInstanceProvisioned, tenantID, gatewayName, map[string]any{
		"gateway_endpoint": endpoint,
	})

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":    tenantID,
		"gateway_name": gatewayName,
	}).Info("gateway provisioned")

	return created, nil
}

// Deprovision stops the tenant's gateway container and deletes its binding.
// A stop failure is logged but does not keep the binding alive; the binding
// row is the source of truth and a stale container can be reaped manually.
func (p *Provisioner) Deprovision(ctx context.Context, tenantID string) error {
	ctx, span := tracing.StartSpan(ctx, "Provisioner.Deprovision")
	defer span.End()

	bnd, err := p.bindings.GetByTenantID(ctx, tenantID)
	if err != nil {
		return err
	}

	// container names double as runtime identifiers
	if err := p.runtime.Stop(ctx, bnd.GatewayName); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"gateway_name": bnd.GatewayName,
		}).Warn("failed to stop gateway container during deprovision")
	}

	if err := p.bindings.Delete(ctx, tenantID); err != nil {
		return err
	}

	p.emitter.Emit(ctx, events.EventInstanceDeprovisioned, tenantID, bnd.GatewayName, nil)

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":    tenantID,
		"gateway_name": bnd.GatewayName,
	}).Info("gateway deprovisioned")

	return nil
}

// waitReady polls the gateway's status endpoint until it answers or the
// deadline passes
func (p *Provisioner) waitReady(ctx context.Context, endpoint, apiKey string) error {
	deadline := time.Now().Add(p.opts.ReadyTimeout)
	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	for {
		if err := p.gateways.Health(ctx, endpoint, apiKey); err == nil {
			return nil
		} else {
			p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"endpoint": endpoint,
			}).Debug("gateway not ready yet")
		}

		if time.Now().After(deadline) {
			return fernerr.ErrProvisioningTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// teardown captures the container's logs for diagnosis, then stops and
// removes it. Teardown failures are logged and never mask the original error.
// Runs on a detached context: a canceled request must not leave the
// container running.
func (p *Provisioner) teardown(ctx context.Context, containerID, gatewayName string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()

	if logs, err := p.runtime.Logs(ctx, containerID); err == nil {
		p.logger.WithContext(ctx).WithFields(map[string]any{
			"gateway_name":   gatewayName,
			"container_logs": logs,
		}).Error("gateway provisioning failed, captured container logs")
	} else {
		p.logger.WithContext(ctx).WithError(err).Warn("failed to capture container logs")
	}

	if err := p.runtime.Stop(ctx, containerID); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"gateway_name": gatewayName,
		}).Error("failed to tear down gateway container")
	}
}

func generateGatewayName(tenantID string) (string, error) {
	suffix := make([]byte, nameSuffixBytes)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("failed to generate gateway name: %w", err)
	}
	return fmt.Sprintf("%s-%s", tenantID, hex.EncodeToString(suffix)), nil
}

func generateAPIKey() (string, error) {
	key := make([]byte, apiKeyBytes)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	return hex.EncodeToString(key), nil
}
