// Package relay normalizes inbound gateway webhooks and forwards the
// resulting messages into the CRM's conversation timeline.
package relay

import (
	"strings"

	"github.com/Ramsey-B/fern/pkg/gateway"
	"github.com/Ramsey-B/fern/pkg/models"
)

// RejectReason explains why an event was filtered out. Rejections are
// non-fatal: the webhook producer is acknowledged and nothing is relayed.
type RejectReason string

const (
	// Accepted means the event normalized into a message
	Accepted RejectReason = ""
	// RejectNotMessage filters non-message event types
	RejectNotMessage RejectReason = "not_a_message_event"
	// RejectBroadcast filters status-broadcast events
	RejectBroadcast RejectReason = "broadcast"
	// RejectGroup filters group-chat events
	RejectGroup RejectReason = "group_chat"
	// RejectEmptyBody filters events with no text and no media
	RejectEmptyBody RejectReason = "empty_body"
)

const messageEventType = "message"

// Normalize validates and shapes one raw gateway event into a
// CanonicalMessage. Pure: no I/O, no side effects.
func Normalize(gatewayName string, event *models.GatewayEvent) (*models.CanonicalMessage, RejectReason) {
	if event.Event != messageEventType {
		return nil, RejectNotMessage
	}

	payload := event.Payload

	// outbound events name the counterparty in "to", inbound in "from"
	counterparty := payload.From
	if payload.FromMe {
		counterparty = payload.To
	}

	if counterparty == gateway.BroadcastSentinel {
		return nil, RejectBroadcast
	}
	if strings.HasSuffix(counterparty, gateway.GroupSuffix) {
		return nil, RejectGroup
	}

	body := payload.Body
	if body == "" {
		body = payload.Caption
	}
	if strings.TrimSpace(body) == "" {
		if !payload.HasMedia {
			return nil, RejectEmptyBody
		}
		body = gateway.MediaPlaceholder
	}

	phone := gateway.StripDeviceSuffix(counterparty)

	name := phone
	if payload.Data != nil && payload.Data.NotifyName != "" {
		name = payload.Data.NotifyName
	}

	direction := models.DirectionInbound
	if payload.FromMe {
		direction = models.DirectionOutbound
	}

	return &models.CanonicalMessage{
		GatewayName:       gatewayName,
		Direction:         direction,
		CounterpartyPhone: phone,
		CounterpartyName:  name,
		Body:              body,
		HasMedia:          payload.HasMedia,
	}, Accepted
}
