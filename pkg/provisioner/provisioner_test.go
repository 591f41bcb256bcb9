package provisioner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/fernerr"
	"github.com/Ramsey-B/fern/pkg/gateway"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBindingRepo struct {
	mu       sync.Mutex
	byTenant map[string]*models.TenantBinding
}

func newFakeBindingRepo() *fakeBindingRepo {
	return &fakeBindingRepo{byTenant: map[string]*models.TenantBinding{}}
}

func (r *fakeBindingRepo) Create(ctx context.Context, b *models.TenantBinding) (*models.TenantBinding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byTenant[b.TenantID]; ok {
		return nil, fernerr.ErrAlreadyProvisioned
	}
	r.byTenant[b.TenantID] = b
	return b, nil
}

func (r *fakeBindingRepo) GetByTenantID(ctx context.Context, tenantID string) (*models.TenantBinding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.byTenant[tenantID]; ok {
		return b, nil
	}
	return nil, fernerr.ErrNoBinding
}

func (r *fakeBindingRepo) GetByGatewayName(ctx context.Context, name string) (*models.TenantBinding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.byTenant {
		if b.GatewayName == name {
			return b, nil
		}
	}
	return nil, fernerr.ErrNoBinding
}

func (r *fakeBindingRepo) GetByCrmAccountID(ctx context.Context, accountID string) (*models.TenantBinding, error) {
	return nil, fernerr.ErrNoBinding
}

func (r *fakeBindingRepo) UpdateTokens(ctx context.Context, tenantID string, accessToken, refreshToken, accountID, agentID string) (*models.TenantBinding, error) {
	return nil, fernerr.ErrNoBinding
}

func (r *fakeBindingRepo) UpdateWebhookURL(ctx context.Context, tenantID string, webhookURL string) (*models.TenantBinding, error) {
	return nil, fernerr.ErrNoBinding
}

func (r *fakeBindingRepo) UpdateCrmKey(ctx context.Context, tenantID string, crmKey string) (*models.TenantBinding, error) {
	return nil, fernerr.ErrNoBinding
}

func (r *fakeBindingRepo) Delete(ctx context.Context, tenantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byTenant, tenantID)
	return nil
}

type fakeRuntime struct {
	mu      sync.Mutex
	started []gateway.ContainerSpec
	running map[string]bool
	stopped []string
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{running: map[string]bool{}}
}

func (r *fakeRuntime) Start(ctx context.Context, spec gateway.ContainerSpec) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, spec)
	id := fmt.Sprintf("container-%d", len(r.started))
	r.running[id] = true
	return id, nil
}

func (r *fakeRuntime) Stop(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running[id] = false
	r.stopped = append(r.stopped, id)
	return nil
}

func (r *fakeRuntime) Inspect(ctx context.Context, id string) (gateway.ContainerState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return gateway.ContainerState{ID: id, Running: r.running[id]}, nil
}

func (r *fakeRuntime) Logs(ctx context.Context, id string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "fake container logs", nil
}

func (r *fakeRuntime) runningCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, running := range r.running {
		if running {
			count++
		}
	}
	return count
}

type fakeGatewayAPI struct {
	mu             sync.Mutex
	healthErr      error
	healthyAfter   int
	healthCalls    int
	cancelOnHealth context.CancelFunc
	webhookErr     error
	webhookTargets []string
}

func (g *fakeGatewayAPI) Health(ctx context.Context, endpoint, apiKey string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.healthCalls++
	if g.cancelOnHealth != nil {
		g.cancelOnHealth()
	}
	if g.healthErr != nil {
		return g.healthErr
	}
	if g.healthCalls <= g.healthyAfter {
		return errors.New("connection refused")
	}
	return nil
}

func (g *fakeGatewayAPI) ConfigureWebhook(ctx context.Context, endpoint, apiKey, targetURL string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.webhookErr != nil {
		return g.webhookErr
	}
	g.webhookTargets = append(g.webhookTargets, targetURL)
	return nil
}

type fixedAllocator struct{ port int }

func (a fixedAllocator) Allocate() (int, error) { return a.port, nil }

func testOptions() Options {
	return Options{
		Image:          "devlikeapro/whatsapp-http-api:latest",
		Network:        "fern_network",
		ContainerPort:  3000,
		PollInterval:   time.Millisecond,
		ReadyTimeout:   50 * time.Millisecond,
		IngressBaseURL: "http://fern-api:3004",
	}
}

func newTestProvisioner(t *testing.T, repo *fakeBindingRepo, runtime *fakeRuntime, api *fakeGatewayAPI) *Provisioner {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	v, err := vault.New("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	return New(repo, runtime, api, v, events.NoopEmitter{}, fixedAllocator{port: 49152}, logger, testOptions())
}

func TestProvisioner_Provision(t *testing.T) {
	repo := newFakeBindingRepo()
	runtime := newFakeRuntime()
	api := &fakeGatewayAPI{}

	p := newTestProvisioner(t, repo, runtime, api)

	b, err := p.Provision(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.NotNil(t, b)

	assert.Equal(t, "tenant-1", b.TenantID)
	assert.True(t, strings.HasPrefix(b.GatewayName, "tenant-1-"))
	assert.Equal(t, fmt.Sprintf("http://%s:3000", b.GatewayName), b.GatewayEndpoint)
	assert.False(t, b.IsConnected)
	// persisted key is ciphertext, not the raw hex key
	assert.NotEmpty(t, b.GatewayAPIKey)
	assert.NotEqual(t, runtime.started[0].Env["WHATSAPP_API_KEY"], b.GatewayAPIKey)

	require.Len(t, runtime.started, 1)
	spec := runtime.started[0]
	assert.Equal(t, b.GatewayName, spec.Name)
	assert.Equal(t, 49152, spec.HostPort)
	assert.Len(t, spec.Env["WHATSAPP_API_KEY"], 32)

	require.Len(t, api.webhookTargets, 1)
	assert.Equal(t, "http://fern-api:3004/api/v1/webhook/"+b.GatewayName, api.webhookTargets[0])

	// binding queryable both ways
	got, err := repo.GetByGatewayName(context.Background(), b.GatewayName)
	require.NoError(t, err)
	assert.Equal(t, b.TenantID, got.TenantID)
}

func TestProvisioner_Provision_AlreadyProvisioned(t *testing.T) {
	repo := newFakeBindingRepo()
	runtime := newFakeRuntime()
	api := &fakeGatewayAPI{}

	p := newTestProvisioner(t, repo, runtime, api)

	_, err := p.Provision(context.Background(), "tenant-1")
	require.NoError(t, err)

	_, err = p.Provision(context.Background(), "tenant-1")
	assert.ErrorIs(t, err, fernerr.ErrAlreadyProvisioned)

	// exactly one binding and one container
	assert.Len(t, repo.byTenant, 1)
	assert.Len(t, runtime.started, 1)
}

func TestProvisioner_Provision_ReadinessTimeout(t *testing.T) {
	repo := newFakeBindingRepo()
	runtime := newFakeRuntime()
	api := &fakeGatewayAPI{healthErr: errors.New("connection refused")}

	p := newTestProvisioner(t, repo, runtime, api)

	_, err := p.Provision(context.Background(), "tenant-1")
	assert.ErrorIs(t, err, fernerr.ErrProvisioningTimeout)

	// no orphaned container, no persisted binding
	assert.Equal(t, 0, runtime.runningCount())
	assert.Len(t, runtime.stopped, 1)
	assert.Empty(t, repo.byTenant)
	assert.Empty(t, api.webhookTargets)
}

func TestProvisioner_Provision_CanceledRequestStillTearsDown(t *testing.T) {
	repo := newFakeBindingRepo()
	runtime := newFakeRuntime()

	// the client disconnects while the readiness poll is still failing
	ctx, cancel := context.WithCancel(context.Background())
	api := &fakeGatewayAPI{
		healthErr:      errors.New("connection refused"),
		cancelOnHealth: cancel,
	}

	p := newTestProvisioner(t, repo, runtime, api)

	_, err := p.Provision(ctx, "tenant-1")
	assert.ErrorIs(t, err, context.Canceled)

	// cleanup ran despite the dead request context
	assert.Equal(t, 0, runtime.runningCount())
	assert.Len(t, runtime.stopped, 1)
	assert.Empty(t, repo.byTenant)
}

func TestProvisioner_Provision_SlowReadiness(t *testing.T) {
	repo := newFakeBindingRepo()
	runtime := newFakeRuntime()
	api := &fakeGatewayAPI{healthyAfter: 3}

	p := newTestProvisioner(t, repo, runtime, api)

	_, err := p.Provision(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, api.healthCalls, 4)
}

func TestProvisioner_Provision_WebhookConfigFailed(t *testing.T) {
	repo := newFakeBindingRepo()
	runtime := newFakeRuntime()
	api := &fakeGatewayAPI{webhookErr: fernerr.ErrWebhookConfigFailed}

	p := newTestProvisioner(t, repo, runtime, api)

	_, err := p.Provision(context.Background(), "tenant-1")
	assert.ErrorIs(t, err, fernerr.ErrWebhookConfigFailed)

	assert.Equal(t, 0, runtime.runningCount())
	assert.Empty(t, repo.byTenant)
}

func TestProvisioner_Deprovision(t *testing.T) {
	repo := newFakeBindingRepo()
	runtime := newFakeRuntime()
	api := &fakeGatewayAPI{}

	p := newTestProvisioner(t, repo, runtime, api)

	created, err := p.Provision(context.Background(), "tenant-1")
	require.NoError(t, err)

	err = p.Deprovision(context.Background(), "tenant-1")
	require.NoError(t, err)

	_, err = repo.GetByTenantID(context.Background(), "tenant-1")
	assert.ErrorIs(t, err, fernerr.ErrNoBinding)
	assert.Contains(t, runtime.stopped, created.GatewayName)
}

func TestProvisioner_Deprovision_NoBinding(t *testing.T) {
	p := newTestProvisioner(t, newFakeBindingRepo(), newFakeRuntime(), &fakeGatewayAPI{})

	err := p.Deprovision(context.Background(), "tenant-1")
	assert.ErrorIs(t, err, fernerr.ErrNoBinding)
}

func TestEphemeralPortAllocator(t *testing.T) {
	port, err := EphemeralPortAllocator{}.Allocate()
	require.NoError(t, err)
	assert.Greater(t, port, 0)
	assert.LessOrEqual(t, port, 65535)
}
