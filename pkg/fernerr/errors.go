// Package fernerr defines the error taxonomy shared across fern components.
package fernerr

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyProvisioned is returned when a tenant already has a gateway binding
	ErrAlreadyProvisioned = errors.New("tenant already has a provisioned gateway")

	// ErrProvisioningTimeout is returned when a gateway never becomes healthy
	ErrProvisioningTimeout = errors.New("gateway did not become ready before the deadline")

	// ErrWebhookConfigFailed is returned when the gateway rejects webhook configuration
	ErrWebhookConfigFailed = errors.New("failed to configure gateway webhook")

	// ErrNoBinding is returned when no binding exists for the tenant
	ErrNoBinding = errors.New("no gateway binding for tenant")

	// ErrInvalidState is returned when an OAuth state token cannot be resolved
	ErrInvalidState = errors.New("oauth state is invalid")

	// ErrTokenExchangeFailed is returned when the CRM token endpoint rejects an exchange
	ErrTokenExchangeFailed = errors.New("crm token exchange failed")

	// ErrContactResolution is returned when a CRM contact cannot be found or created
	ErrContactResolution = errors.New("crm contact resolution failed")

	// ErrConversationAppend is returned when a message cannot be appended to a conversation
	ErrConversationAppend = errors.New("crm conversation append failed")

	// ErrSendFailed is returned when the gateway rejects an outbound send
	ErrSendFailed = errors.New("gateway send failed")

	// ErrMissingFields is returned when a request lacks required fields
	ErrMissingFields = errors.New("missing required fields")
)

type upstreamError struct {
	sentinel error
	status   int
	body     string
}

func (e *upstreamError) Error() string {
	return fmt.Sprintf("%s: upstream status %d: %s", e.sentinel, e.status, e.body)
}

func (e *upstreamError) Unwrap() error { return e.sentinel }

// Upstream wraps a sentinel with the upstream status and body for diagnosis
func Upstream(sentinel error, status int, body []byte) error {
	return &upstreamError{sentinel: sentinel, status: status, body: string(body)}
}

// UpstreamStatus returns the upstream HTTP status carried by err, or 0 when
// err carries none
func UpstreamStatus(err error) int {
	var ue *upstreamError
	if errors.As(err, &ue) {
		return ue.status
	}
	return 0
}
