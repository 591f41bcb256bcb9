// Package crm is the client for the CRM's OAuth, contact, and conversation
// APIs.
package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/fernerr"
	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	// APIVersion is the CRM's required versioning header value
	APIVersion = "2021-07-28"

	// ContactSource attributes contacts created by this service
	ContactSource = "fern-whatsapp-relay"

	tokenPath         = "/oauth/token"
	contactLookupPath = "/contacts/lookup"
	contactCreatePath = "/contacts/"
	convSearchPath    = "/conversations/search"
	messagePathFmt    = "/conversations/messages/contact/%s"
)

// Config holds CRM endpoints and app credentials
type Config struct {
	// APIBaseURL is the CRM REST API base
	APIBaseURL string
	// AuthorizeBaseURL is the OAuth authorization page
	AuthorizeBaseURL string
	// ClientID of the marketplace app
	ClientID string
	// ClientSecret of the marketplace app
	ClientSecret string
	// Scopes requested during authorization, space-separated
	Scopes string
}

// Client calls the CRM API
type Client struct {
	http   *httpclient.Client
	logger ectologger.Logger
	cfg    Config
}

// NewClient creates a CRM client
func NewClient(http *httpclient.Client, logger ectologger.Logger, cfg Config) *Client {
	return &Client{
		http:   http,
		logger: logger,
		cfg:    cfg,
	}
}

// AuthorizeURL builds the OAuth authorization redirect for a tenant
func (c *Client) AuthorizeURL(redirectURI, state string) string {
	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("redirect_uri", redirectURI)
	params.Set("client_id", c.cfg.ClientID)
	params.Set("scope", c.cfg.Scopes)
	params.Set("state", state)

	return c.cfg.AuthorizeBaseURL + "?" + params.Encode()
}

// ExchangeCode trades an authorization code for tokens and CRM identity
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (*models.TokenSet, error) {
	ctx, span := tracing.StartSpan(ctx, "CrmClient.ExchangeCode")
	defer span.End()

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("redirect_uri", redirectURI)

	return c.requestTokens(ctx, form)
}

// Refresh trades a refresh token for a new token set
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*models.TokenSet, error) {
	ctx, span := tracing.StartSpan(ctx, "CrmClient.Refresh")
	defer span.End()

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)

	return c.requestTokens(ctx, form)
}

func (c *Client) requestTokens(ctx context.Context, form url.Values) (*models.TokenSet, error) {
	resp, err := c.http.PostForm(ctx, c.cfg.APIBaseURL+tokenPath, form, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fernerr.ErrTokenExchangeFailed, err)
	}

	metrics.CrmRequestsTotal.WithLabelValues("token", strconv.Itoa(resp.StatusCode)).Inc()

	if !resp.IsSuccess() {
		c.logger.WithContext(ctx).WithFields(map[string]any{
			"status": resp.StatusCode,
			"body":   string(resp.Body),
		}).Error("crm token endpoint rejected the exchange")
		return nil, fernerr.Upstream(fernerr.ErrTokenExchangeFailed, resp.StatusCode, resp.Body)
	}

	var tokens models.TokenSet
	if err := resp.DecodeJSON(&tokens); err != nil {
		return nil, fmt.Errorf("%w: %v", fernerr.ErrTokenExchangeFailed, err)
	}

	if tokens.AccessToken == "" {
		return nil, fmt.Errorf("%w: response carried no access token", fernerr.ErrTokenExchangeFailed)
	}

	return &tokens, nil
}

func (c *Client) authHeaders(accessToken string) map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + accessToken,
		"Version":       APIVersion,
		"Accept":        "application/json",
	}
}

type contactLookupResponse struct {
	Contacts []struct {
		ID string `json:"id"`
	} `json:"contacts"`
}

// SearchContact looks up a contact by phone. Returns the empty string when no
// contact matches.
func (c *Client) SearchContact(ctx context.Context, accessToken, phone string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "CrmClient.SearchContact")
	defer span.End()

	query := url.Values{}
	query.Set("query", phone)

	resp, err := c.http.Get(ctx, c.cfg.APIBaseURL+contactLookupPath+"?"+query.Encode(), c.authHeaders(accessToken))
	if err != nil {
		return "", fmt.Errorf("%w: %v", fernerr.ErrContactResolution, err)
	}

	metrics.CrmRequestsTotal.WithLabelValues("contact_lookup", strconv.Itoa(resp.StatusCode)).Inc()

	if !resp.IsSuccess() {
		c.logger.WithContext(ctx).WithFields(map[string]any{
			"status": resp.StatusCode,
			"body":   string(resp.Body),
			"phone":  phone,
		}).Error("crm contact lookup failed")
		return "", fernerr.Upstream(fernerr.ErrContactResolution, resp.StatusCode, resp.Body)
	}

	var lookup contactLookupResponse
	if err := resp.DecodeJSON(&lookup); err != nil {
		return "", fmt.Errorf("%w: %v", fernerr.ErrContactResolution, err)
	}

	if len(lookup.Contacts) == 0 {
		return "", nil
	}

	return lookup.Contacts[0].ID, nil
}

type createContactRequest struct {
	Name       string `json:"name,omitempty"`
	Phone      string `json:"phone"`
	LocationID string `json:"locationId"`
	Source     string `json:"source"`
}

type createContactResponse struct {
	Contact struct {
		ID string `json:"id"`
	} `json:"contact"`
}

// duplicateContactError is the CRM's duplicate rejection body; the existing
// contact id rides in meta
type duplicateContactError struct {
	Message string `json:"message"`
	Meta    struct {
		ContactID string `json:"contactId"`
	} `json:"meta"`
}

// CreateContact creates a contact for (phone, accountID). When the CRM
// rejects the create as a duplicate, the existing contact id is extracted
// from the error body and returned; concurrent creations reconcile to the
// same contact.
func (c *Client) CreateContact(ctx context.Context, accessToken, accountID, phone, name string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "CrmClient.CreateContact")
	defer span.End()

	req := createContactRequest{
		Name:       name,
		Phone:      phone,
		LocationID: accountID,
		Source:     ContactSource,
	}

	headers := c.authHeaders(accessToken)
	resp, err := c.http.PostJSON(ctx, c.cfg.APIBaseURL+contactCreatePath, req, headers)
	if err != nil {
		return "", fmt.Errorf("%w: %v", fernerr.ErrContactResolution, err)
	}

	metrics.CrmRequestsTotal.WithLabelValues("contact_create", strconv.Itoa(resp.StatusCode)).Inc()

	if resp.IsSuccess() {
		var created createContactResponse
		if err := resp.DecodeJSON(&created); err != nil {
			return "", fmt.Errorf("%w: %v", fernerr.ErrContactResolution, err)
		}
		if created.Contact.ID == "" {
			return "", fmt.Errorf("%w: create response carried no contact id", fernerr.ErrContactResolution)
		}
		return created.Contact.ID, nil
	}

	// duplicate rejection carries the existing contact id
	var dup duplicateContactError
	if err := json.Unmarshal(resp.Body, &dup); err == nil && dup.Meta.ContactID != "" {
		c.logger.WithContext(ctx).WithFields(map[string]any{
			"contact_id": dup.Meta.ContactID,
			"phone":      phone,
		}).Info("crm reported duplicate contact, reconciling to existing id")
		return dup.Meta.ContactID, nil
	}

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"status": resp.StatusCode,
		"body":   string(resp.Body),
		"phone":  phone,
	}).Error("crm contact create failed")
	return "", fernerr.Upstream(fernerr.ErrContactResolution, resp.StatusCode, resp.Body)
}

type conversationSearchResponse struct {
	Conversations []struct {
		ID string `json:"id"`
	} `json:"conversations"`
}

// SearchConversation finds an existing conversation for a contact.
// Best-effort: any failure or empty result returns the empty string so the
// caller falls back to addressing by contact id.
func (c *Client) SearchConversation(ctx context.Context, accessToken, contactID string) string {
	ctx, span := tracing.StartSpan(ctx, "CrmClient.SearchConversation")
	defer span.End()

	query := url.Values{}
	query.Set("contactId", contactID)

	resp, err := c.http.Get(ctx, c.cfg.APIBaseURL+convSearchPath+"?"+query.Encode(), c.authHeaders(accessToken))
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Debug("conversation search failed, falling back to contact id")
		return ""
	}

	metrics.CrmRequestsTotal.WithLabelValues("conversation_search", strconv.Itoa(resp.StatusCode)).Inc()

	if !resp.IsSuccess() {
		return ""
	}

	var search conversationSearchResponse
	if err := resp.DecodeJSON(&search); err != nil || len(search.Conversations) == 0 {
		return ""
	}

	return search.Conversations[0].ID
}

type appendMessageRequest struct {
	Type           string `json:"type"`
	Message        string `json:"message"`
	Direction      string `json:"direction"`
	ConversationID string `json:"conversationId,omitempty"`
	UserID         string `json:"userId,omitempty"`
}

// AppendMessage adds a message to the contact's conversation timeline,
// tagged with direction. Outbound messages carry the acting agent id so they
// are attributable; inbound messages carry none.
func (c *Client) AppendMessage(ctx context.Context, accessToken, contactID, conversationID, body string, direction models.Direction, agentID string) error {
	ctx, span := tracing.StartSpan(ctx, "CrmClient.AppendMessage")
	defer span.End()

	req := appendMessageRequest{
		Type:           "SMS",
		Message:        body,
		Direction:      string(direction),
		ConversationID: conversationID,
	}
	if direction == models.DirectionOutbound {
		req.UserID = agentID
	}

	path := fmt.Sprintf(messagePathFmt, contactID)
	resp, err := c.http.PostJSON(ctx, c.cfg.APIBaseURL+path, req, c.authHeaders(accessToken))
	if err != nil {
		return fmt.Errorf("%w: %v", fernerr.ErrConversationAppend, err)
	}

	metrics.CrmRequestsTotal.WithLabelValues("message_append", strconv.Itoa(resp.StatusCode)).Inc()

	if !resp.IsSuccess() {
		c.logger.WithContext(ctx).WithFields(map[string]any{
			"status":     resp.StatusCode,
			"body":       string(resp.Body),
			"contact_id": contactID,
			"direction":  direction,
		}).Error("crm rejected message append")
		return fernerr.Upstream(fernerr.ErrConversationAppend, resp.StatusCode, resp.Body)
	}

	return nil
}
