package models

// Direction tags which way a message moved relative to the tenant
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// CanonicalMessage is the normalized, validated form of one gateway chat event.
// It is ephemeral; nothing persists it.
type CanonicalMessage struct {
	GatewayName       string    `json:"gateway_name"`
	Direction         Direction `json:"direction"`
	CounterpartyPhone string    `json:"counterparty_phone"`
	CounterpartyName  string    `json:"counterparty_name"`
	Body              string    `json:"body"`
	HasMedia          bool      `json:"has_media"`
}

// GatewayEvent is the raw webhook payload pushed by a gateway process
type GatewayEvent struct {
	Event   string         `json:"event"`
	Session string         `json:"session"`
	Payload GatewayPayload `json:"payload"`
}

// GatewayPayload carries the message fields of a gateway event
type GatewayPayload struct {
	ID       string              `json:"id"`
	From     string              `json:"from"`
	To       string              `json:"to"`
	FromMe   bool                `json:"fromMe"`
	Body     string              `json:"body"`
	Caption  string              `json:"caption"`
	HasMedia bool                `json:"hasMedia"`
	Data     *GatewayPayloadData `json:"_data,omitempty"`
}

// GatewayPayloadData holds gateway-internal fields we care about
type GatewayPayloadData struct {
	NotifyName string `json:"notifyName"`
}
