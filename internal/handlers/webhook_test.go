package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/queue"
)

type fakeRelayer struct {
	mu     sync.Mutex
	relays []*models.CanonicalMessage
}

func (f *fakeRelayer) Relay(ctx context.Context, binding *models.TenantBinding, msg *models.CanonicalMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.relays = append(f.relays, msg)
	return nil
}

func (f *fakeRelayer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.relays)
}

type fakeDeduper struct {
	mu      sync.Mutex
	claimed map[string]bool
}

func newFakeDeduper() *fakeDeduper {
	return &fakeDeduper{claimed: map[string]bool{}}
}

func (f *fakeDeduper) Claim(ctx context.Context, id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimed[id] {
		return false
	}
	f.claimed[id] = true
	return true
}

func (f *fakeDeduper) Release(ctx context.Context, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.claimed, id)
}

type webhookHarness struct {
	e       *echo.Echo
	pool    *queue.Pool
	relayer *fakeRelayer
	deduper *fakeDeduper
}

func setupWebhook(t *testing.T, repo *fakeBindingRepo) *webhookHarness {
	t.Helper()

	pool := queue.NewPool(queue.PoolConfig{WorkerCount: 2, QueueSize: 8}, getTestLogger())
	require.NoError(t, pool.Start(context.Background()))
	t.Cleanup(func() { _ = pool.Stop(context.Background()) })

	relayer := &fakeRelayer{}
	deduper := newFakeDeduper()

	e := newTestEcho()
	h := NewWebhookHandler(repo, deduper, pool, relayer, getTestLogger())
	h.RegisterRoutes(e.Group("/api/v1"))

	return &webhookHarness{e: e, pool: pool, relayer: relayer, deduper: deduper}
}

func (h *webhookHarness) awaitResult(t *testing.T) queue.Result {
	t.Helper()
	select {
	case result := <-h.pool.Results():
		return result
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for relay job")
		return queue.Result{}
	}
}

func connectedBinding() *models.TenantBinding {
	accountID := "loc-1"
	token := "ct-token"
	return &models.TenantBinding{
		TenantID:       "tenant-1",
		GatewayName:    "tenant-1-abcd1234",
		IsConnected:    true,
		CrmAccountID:   &accountID,
		CrmAccessToken: &token,
	}
}

func messageBody(id, from, body string) models.GatewayEvent {
	return models.GatewayEvent{
		Event:   "message",
		Session: "default",
		Payload: models.GatewayPayload{
			ID:   id,
			From: from,
			To:   "5521888@c.us",
			Body: body,
		},
	}
}

func TestWebhookHandler_QueuesMessage(t *testing.T) {
	h := setupWebhook(t, newFakeBindingRepo(connectedBinding()))

	rec := makeRequest(t, h.e, http.MethodPost, "/api/v1/webhook/tenant-1-abcd1234", "",
		messageBody("msg-1", "5511999@c.us", "hi"))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "queued")

	result := h.awaitResult(t)
	assert.NoError(t, result.Err)
	assert.Equal(t, "tenant-1", result.TenantID)

	require.Equal(t, 1, h.relayer.count())
	msg := h.relayer.relays[0]
	assert.Equal(t, "5511999", msg.CounterpartyPhone)
	assert.Equal(t, models.DirectionInbound, msg.Direction)
	assert.Equal(t, "hi", msg.Body)
}

func TestWebhookHandler_UnknownGateway(t *testing.T) {
	h := setupWebhook(t, newFakeBindingRepo())

	rec := makeRequest(t, h.e, http.MethodPost, "/api/v1/webhook/nobody", "",
		messageBody("msg-1", "5511999@c.us", "hi"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 0, h.relayer.count())
}

func TestWebhookHandler_AcksFilteredEvents(t *testing.T) {
	h := setupWebhook(t, newFakeBindingRepo(connectedBinding()))

	tests := []struct {
		name  string
		event models.GatewayEvent
	}{
		{"broadcast", messageBody("msg-1", "status@broadcast", "hi")},
		{"group chat", messageBody("msg-2", "123456@g.us", "hi")},
		{"empty body", messageBody("msg-3", "5511999@c.us", "")},
		{"session status", models.GatewayEvent{Event: "session.status", Session: "default"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := makeRequest(t, h.e, http.MethodPost, "/api/v1/webhook/tenant-1-abcd1234", "", tt.event)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Body.String(), "ignored")
		})
	}

	assert.Equal(t, 0, h.relayer.count())
}

func TestWebhookHandler_AcksMalformedBody(t *testing.T) {
	h := setupWebhook(t, newFakeBindingRepo(connectedBinding()))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/tenant-1-abcd1234",
		strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, h.relayer.count())
}

func TestWebhookHandler_DeduplicatesRedelivery(t *testing.T) {
	h := setupWebhook(t, newFakeBindingRepo(connectedBinding()))

	event := messageBody("msg-1", "5511999@c.us", "hi")
	first := makeRequest(t, h.e, http.MethodPost, "/api/v1/webhook/tenant-1-abcd1234", "", event)
	assert.Equal(t, http.StatusAccepted, first.Code)
	h.awaitResult(t)

	second := makeRequest(t, h.e, http.MethodPost, "/api/v1/webhook/tenant-1-abcd1234", "", event)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Contains(t, second.Body.String(), "duplicate")

	assert.Equal(t, 1, h.relayer.count())
}

func TestWebhookHandler_DropReleasesClaimForRetry(t *testing.T) {
	// pool not started: every Submit fails and the delivery is dropped
	pool := queue.NewPool(queue.PoolConfig{WorkerCount: 1, QueueSize: 1}, getTestLogger())

	relayer := &fakeRelayer{}
	deduper := newFakeDeduper()
	e := newTestEcho()
	h := NewWebhookHandler(newFakeBindingRepo(connectedBinding()), deduper, pool, relayer, getTestLogger())
	h.RegisterRoutes(e.Group("/api/v1"))

	event := messageBody("msg-1", "5511999@c.us", "hi")
	first := makeRequest(t, e, http.MethodPost, "/api/v1/webhook/tenant-1-abcd1234", "", event)
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Contains(t, first.Body.String(), "dropped")

	// the gateway retries once capacity is back; the retry must not be
	// treated as a duplicate of the dropped delivery
	require.NoError(t, pool.Start(context.Background()))
	t.Cleanup(func() { _ = pool.Stop(context.Background()) })

	second := makeRequest(t, e, http.MethodPost, "/api/v1/webhook/tenant-1-abcd1234", "", event)
	assert.Equal(t, http.StatusAccepted, second.Code)
	assert.Contains(t, second.Body.String(), "queued")

	select {
	case <-pool.Results():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for relay job")
	}
	assert.Equal(t, 1, relayer.count())
}

func TestWebhookHandler_DistinctEventsBothRelay(t *testing.T) {
	h := setupWebhook(t, newFakeBindingRepo(connectedBinding()))

	first := makeRequest(t, h.e, http.MethodPost, "/api/v1/webhook/tenant-1-abcd1234", "",
		messageBody("msg-1", "5511999@c.us", "hi"))
	assert.Equal(t, http.StatusAccepted, first.Code)

	second := makeRequest(t, h.e, http.MethodPost, "/api/v1/webhook/tenant-1-abcd1234", "",
		messageBody("msg-2", "5511999@c.us", "hello again"))
	assert.Equal(t, http.StatusAccepted, second.Code)

	h.awaitResult(t)
	h.awaitResult(t)
	assert.Equal(t, 2, h.relayer.count())
}
