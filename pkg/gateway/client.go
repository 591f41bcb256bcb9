// Package gateway talks to per-tenant WhatsApp gateway processes: health,
// session webhook configuration, and outbound sends.
package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/fernerr"
	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	// APIKeyHeader authenticates requests to a gateway process
	APIKeyHeader = "X-Api-Key"

	statusPath  = "/api/server/status"
	sendPath    = "/api/sendText"
	sessionPath = "/api/sessions/default"

	// ChatSuffix is the device suffix on individual chat identifiers
	ChatSuffix = "@c.us"
	// GroupSuffix marks group-chat identifiers
	GroupSuffix = "@g.us"
	// BroadcastSentinel is the status-broadcast pseudo counterparty
	BroadcastSentinel = "status@broadcast"
	// MediaPlaceholder substitutes for an empty body on media messages
	MediaPlaceholder = "[media message]"
)

// Client calls a gateway process's HTTP API
type Client struct {
	http   *httpclient.Client
	logger ectologger.Logger
}

// NewClient creates a new gateway client
func NewClient(http *httpclient.Client, logger ectologger.Logger) *Client {
	return &Client{
		http:   http,
		logger: logger,
	}
}

// Health checks a gateway's server status endpoint. A nil error means the
// gateway answered 200 and is ready.
func (c *Client) Health(ctx context.Context, endpoint, apiKey string) error {
	ctx, span := tracing.StartSpan(ctx, "GatewayClient.Health")
	defer span.End()

	resp, err := c.http.Get(ctx, endpoint+statusPath, map[string]string{APIKeyHeader: apiKey})
	if err != nil {
		return err
	}

	if !resp.IsSuccess() {
		return fmt.Errorf("gateway status returned %d", resp.StatusCode)
	}

	return nil
}

// webhookConfig is the session body pushed to a gateway to point its webhooks
// at our relay ingress
type webhookConfig struct {
	Config struct {
		Webhooks []webhook `json:"webhooks"`
	} `json:"config"`
}

type webhook struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

// ConfigureWebhook points the gateway's default session at the given target URL
// for message and session.status events
func (c *Client) ConfigureWebhook(ctx context.Context, endpoint, apiKey, targetURL string) error {
	ctx, span := tracing.StartSpan(ctx, "GatewayClient.ConfigureWebhook")
	defer span.End()

	var body webhookConfig
	body.Config.Webhooks = []webhook{
		{
			URL:    targetURL,
			Events: []string{"message", "session.status"},
		},
	}

	resp, err := c.http.PutJSON(ctx, endpoint+sessionPath, body, map[string]string{APIKeyHeader: apiKey})
	if err != nil {
		return fmt.Errorf("%w: %v", fernerr.ErrWebhookConfigFailed, err)
	}

	if !resp.IsSuccess() {
		c.logger.WithContext(ctx).WithFields(map[string]any{
			"status": resp.StatusCode,
			"body":   string(resp.Body),
		}).Error("gateway rejected webhook configuration")
		return fernerr.Upstream(fernerr.ErrWebhookConfigFailed, resp.StatusCode, resp.Body)
	}

	return nil
}

type sendTextRequest struct {
	ChatID string `json:"chatId"`
	Text   string `json:"text"`
}

// SendText delivers one text message through the gateway. The phone is
// normalized to the gateway's chat address form if the suffix is absent.
func (c *Client) SendText(ctx context.Context, endpoint, apiKey, phone, text string) error {
	ctx, span := tracing.StartSpan(ctx, "GatewayClient.SendText")
	defer span.End()

	req := sendTextRequest{
		ChatID: NormalizeChatID(phone),
		Text:   text,
	}

	resp, err := c.http.PostJSON(ctx, endpoint+sendPath, req, map[string]string{APIKeyHeader: apiKey})
	if err != nil {
		return fmt.Errorf("%w: %v", fernerr.ErrSendFailed, err)
	}

	if !resp.IsSuccess() {
		c.logger.WithContext(ctx).WithFields(map[string]any{
			"status":  resp.StatusCode,
			"body":    string(resp.Body),
			"chat_id": req.ChatID,
		}).Error("gateway rejected send")
		return fernerr.Upstream(fernerr.ErrSendFailed, resp.StatusCode, resp.Body)
	}

	return nil
}

// NormalizeChatID appends the chat suffix when the identifier lacks one
func NormalizeChatID(phone string) string {
	if strings.HasSuffix(phone, ChatSuffix) || strings.HasSuffix(phone, GroupSuffix) {
		return phone
	}
	return phone + ChatSuffix
}

// StripDeviceSuffix removes the gateway addressing suffix from an identifier
func StripDeviceSuffix(identifier string) string {
	return strings.TrimSuffix(identifier, ChatSuffix)
}
