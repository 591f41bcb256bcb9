package relay

import (
	"testing"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func messageEvent(mutate func(*models.GatewayEvent)) *models.GatewayEvent {
	event := &models.GatewayEvent{
		Event:   "message",
		Session: "default",
		Payload: models.GatewayPayload{
			From: "5511999@c.us",
			To:   "5522888@c.us",
			Body: "hi",
		},
	}
	if mutate != nil {
		mutate(event)
	}
	return event
}

func TestNormalize_InboundMessage(t *testing.T) {
	msg, reason := Normalize("tenant-1-abcd", messageEvent(nil))
	require.Equal(t, Accepted, reason)
	require.NotNil(t, msg)

	assert.Equal(t, "tenant-1-abcd", msg.GatewayName)
	assert.Equal(t, models.DirectionInbound, msg.Direction)
	assert.Equal(t, "5511999", msg.CounterpartyPhone)
	assert.Equal(t, "5511999", msg.CounterpartyName)
	assert.Equal(t, "hi", msg.Body)
	assert.False(t, msg.HasMedia)
}

func TestNormalize_OutboundUsesToAsCounterparty(t *testing.T) {
	msg, reason := Normalize("gw", messageEvent(func(e *models.GatewayEvent) {
		e.Payload.FromMe = true
	}))
	require.Equal(t, Accepted, reason)

	assert.Equal(t, models.DirectionOutbound, msg.Direction)
	assert.Equal(t, "5522888", msg.CounterpartyPhone)
}

func TestNormalize_NotifyNameFallback(t *testing.T) {
	msg, reason := Normalize("gw", messageEvent(func(e *models.GatewayEvent) {
		e.Payload.Data = &models.GatewayPayloadData{NotifyName: "Alice"}
	}))
	require.Equal(t, Accepted, reason)
	assert.Equal(t, "Alice", msg.CounterpartyName)
}

func TestNormalize_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.GatewayEvent)
		want   RejectReason
	}{
		{
			name:   "non-message event type",
			mutate: func(e *models.GatewayEvent) { e.Event = "session.status" },
			want:   RejectNotMessage,
		},
		{
			name:   "broadcast sentinel",
			mutate: func(e *models.GatewayEvent) { e.Payload.From = "status@broadcast" },
			want:   RejectBroadcast,
		},
		{
			name:   "group chat suffix",
			mutate: func(e *models.GatewayEvent) { e.Payload.From = "12345-67890@g.us" },
			want:   RejectGroup,
		},
		{
			name: "group chat on outbound counterparty",
			mutate: func(e *models.GatewayEvent) {
				e.Payload.FromMe = true
				e.Payload.To = "12345-67890@g.us"
			},
			want: RejectGroup,
		},
		{
			name: "empty body without media",
			mutate: func(e *models.GatewayEvent) {
				e.Payload.Body = ""
				e.Payload.Caption = ""
			},
			want: RejectEmptyBody,
		},
		{
			name: "blank body without media",
			mutate: func(e *models.GatewayEvent) {
				e.Payload.Body = "   "
			},
			want: RejectEmptyBody,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, reason := Normalize("gw", messageEvent(tt.mutate))
			assert.Equal(t, tt.want, reason)
			assert.Nil(t, msg)
		})
	}
}

func TestNormalize_MediaPlaceholder(t *testing.T) {
	msg, reason := Normalize("gw", messageEvent(func(e *models.GatewayEvent) {
		e.Payload.Body = ""
		e.Payload.HasMedia = true
	}))
	require.Equal(t, Accepted, reason)
	assert.Equal(t, "[media message]", msg.Body)
	assert.True(t, msg.HasMedia)
}

func TestNormalize_CaptionFallback(t *testing.T) {
	msg, reason := Normalize("gw", messageEvent(func(e *models.GatewayEvent) {
		e.Payload.Body = ""
		e.Payload.Caption = "photo caption"
		e.Payload.HasMedia = true
	}))
	require.Equal(t, Accepted, reason)
	assert.Equal(t, "photo caption", msg.Body)
}
