// Package events handles event emission for gateway and relay lifecycle changes
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Event types emitted by fern
const (
	EventInstanceProvisioned   = "instance.provisioned"
	EventInstanceDeprovisioned = "instance.deprovisioned"
	EventCrmConnected          = "crm.connected"
	EventMessageRelayed        = "message.relayed"
	EventMessageRelayFailed    = "message.relay_failed"
)

// Emitter publishes lifecycle events for downstream consumers
type Emitter interface {
	Emit(ctx context.Context, eventType, tenantID, gatewayName string, data map[string]any)
}

// KafkaEmitter emits events through a Kafka producer
type KafkaEmitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewKafkaEmitter creates a new event emitter
func NewKafkaEmitter(producer *kafka.Producer, logger ectologger.Logger) *KafkaEmitter {
	return &KafkaEmitter{
		producer: producer,
		logger:   logger,
	}
}

// Emit publishes one lifecycle event. Emission is best-effort: a publish
// failure is logged and never fails the operation that triggered it.
func (e *KafkaEmitter) Emit(ctx context.Context, eventType, tenantID, gatewayName string, data map[string]any) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.Emit")
	defer span.End()

	if data == nil {
		data = map[string]any{}
	}
	data["schema_version"] = SchemaVersion

	payload, err := json.Marshal(data)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to encode event payload")
		return
	}

	event := &kafka.LifecycleEvent{
		EventType:   eventType,
		TenantID:    tenantID,
		GatewayName: gatewayName,
		Data:        payload,
	}

	if err := e.producer.PublishLifecycleEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type": eventType,
			"tenant_id":  tenantID,
		}).Error("Failed to emit lifecycle event")
	}
}

// NoopEmitter drops all events. Used when event emission is disabled.
type NoopEmitter struct{}

// Emit does nothing
func (NoopEmitter) Emit(ctx context.Context, eventType, tenantID, gatewayName string, data map[string]any) {
}
