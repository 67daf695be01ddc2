package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"bip-service/internal/models"
	"bip-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing bip lifecycle events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func bipKey(bipID int64) string {
	return fmt.Sprintf("bip-%d", bipID)
}

// PublishBipCreated publishes BipCreated event
func (ep *EventPublisher) PublishBipCreated(ctx context.Context, event *models.BipCreatedEvent) error {
	return ep.producer.PublishEvent(ctx, bipKey(event.BipID), event.EventType, event)
}

// PublishBipVerified publishes BipVerified event
func (ep *EventPublisher) PublishBipVerified(ctx context.Context, event *models.BipVerifiedEvent) error {
	return ep.producer.PublishEvent(ctx, bipKey(event.BipID), event.EventType, event)
}

// PublishBipCancelled publishes BipCancelled event
func (ep *EventPublisher) PublishBipCancelled(ctx context.Context, event *models.BipCancelledEvent) error {
	return ep.producer.PublishEvent(ctx, bipKey(event.BipID), event.EventType, event)
}

// PublishBipReactivated publishes BipReactivated event
func (ep *EventPublisher) PublishBipReactivated(ctx context.Context, event *models.BipReactivatedEvent) error {
	return ep.producer.PublishEvent(ctx, bipKey(event.BipID), event.EventType, event)
}

// PublishBipUnmatched publishes BipUnmatched event
func (ep *EventPublisher) PublishBipUnmatched(ctx context.Context, event *models.BipUnmatchedEvent) error {
	return ep.producer.PublishEvent(ctx, bipKey(event.BipID), event.EventType, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onBipCreated    func(context.Context, *models.BipCreatedEvent) error
	onSaleRecorded  func(context.Context, *models.SaleRecordedEvent) error
	onSaleCancelled func(context.Context, *models.SaleCancelledEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnBipCreated registers a handler for BipCreated events
func (eh *EventHandler) OnBipCreated(handler func(context.Context, *models.BipCreatedEvent) error) {
	eh.onBipCreated = handler
}

// OnSaleRecorded registers a handler for SaleRecorded events
func (eh *EventHandler) OnSaleRecorded(handler func(context.Context, *models.SaleRecordedEvent) error) {
	eh.onSaleRecorded = handler
}

// OnSaleCancelled registers a handler for SaleCancelled events
func (eh *EventHandler) OnSaleCancelled(handler func(context.Context, *models.SaleCancelledEvent) error) {
	eh.onSaleCancelled = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	eventType := EventType(msg)
	if eventType == "" {
		var baseEvent models.BaseEvent
		if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
			return fmt.Errorf("failed to unmarshal base event: %w", err)
		}
		eventType = baseEvent.EventType
	}

	util.GetLogger().Debug("Handling event", zap.String("type", eventType))

	switch eventType {
	case models.EventTypeBipCreated:
		if eh.onBipCreated != nil {
			var event models.BipCreatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal BipCreated event: %w", err)
			}
			return eh.onBipCreated(ctx, &event)
		}

	case models.EventTypeSaleRecorded:
		if eh.onSaleRecorded != nil {
			var event models.SaleRecordedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal SaleRecorded event: %w", err)
			}
			return eh.onSaleRecorded(ctx, &event)
		}

	case models.EventTypeSaleCancelled:
		if eh.onSaleCancelled != nil {
			var event models.SaleCancelledEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal SaleCancelled event: %w", err)
			}
			return eh.onSaleCancelled(ctx, &event)
		}
	}

	return nil
}
