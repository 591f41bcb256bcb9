package relay

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/fernerr"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentText struct {
	Endpoint string
	APIKey   string
	Phone    string
	Text     string
}

type fakeSender struct {
	err  error
	sent []sentText
}

func (f *fakeSender) SendText(ctx context.Context, endpoint, apiKey, phone, text string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentText{Endpoint: endpoint, APIKey: apiKey, Phone: phone, Text: text})
	return nil
}

func newTestDispatcher(t *testing.T, sender *fakeSender) (*Dispatcher, *models.TenantBinding) {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	v, err := vault.New("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	keyEnc, err := v.Encrypt("gateway-key")
	require.NoError(t, err)

	binding := &models.TenantBinding{
		TenantID:        "tenant-1",
		GatewayName:     "tenant-1-abcd",
		GatewayEndpoint: "http://tenant-1-abcd:3000",
		GatewayAPIKey:   keyEnc,
	}

	return NewDispatcher(sender, v, logger), binding
}

func TestDispatcher_Dispatch(t *testing.T) {
	sender := &fakeSender{}
	d, binding := newTestDispatcher(t, sender)

	err := d.Dispatch(context.Background(), binding, "5511999", "ok")
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "http://tenant-1-abcd:3000", sender.sent[0].Endpoint)
	// the stored key is decrypted before use
	assert.Equal(t, "gateway-key", sender.sent[0].APIKey)
	assert.Equal(t, "5511999", sender.sent[0].Phone)
	assert.Equal(t, "ok", sender.sent[0].Text)
}

func TestDispatcher_Dispatch_MissingFields(t *testing.T) {
	sender := &fakeSender{}
	d, binding := newTestDispatcher(t, sender)

	tests := []struct {
		name  string
		phone string
		body  string
	}{
		{name: "missing phone", phone: "", body: "ok"},
		{name: "missing body", phone: "5511999", body: ""},
		{name: "missing both", phone: "", body: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := d.Dispatch(context.Background(), binding, tt.phone, tt.body)
			assert.ErrorIs(t, err, fernerr.ErrMissingFields)
		})
	}

	// validation happens before any send attempt
	assert.Empty(t, sender.sent)
}

func TestDispatcher_Dispatch_SendFailed(t *testing.T) {
	sender := &fakeSender{err: fernerr.ErrSendFailed}
	d, binding := newTestDispatcher(t, sender)

	err := d.Dispatch(context.Background(), binding, "5511999", "ok")
	assert.ErrorIs(t, err, fernerr.ErrSendFailed)
}
