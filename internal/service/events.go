package service

import (
	"context"
	"fmt"
	"time"

	"bip-service/internal/models"
	"bip-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

// handleOnce runs fn unless event was already processed, and records it
// afterwards. Events without an id are always handled.
func handleOnce(ctx context.Context, log EventLog, event models.BaseEvent, fn func() error) error {
	if event.EventID != "" {
		processed, err := log.IsEventProcessed(ctx, event.EventID)
		if err != nil {
			return fmt.Errorf("failed to check event processed: %w", err)
		}
		if processed {
			util.LoggerFromContext(ctx).Info("Event already processed",
				zap.String("event_id", event.EventID),
				zap.String("event_type", event.EventType))
			return nil
		}
	}

	if err := fn(); err != nil {
		return err
	}

	if event.EventID != "" {
		if err := log.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
			util.LoggerFromContext(ctx).Error("Failed to mark event processed", zap.Error(err))
		}
	}
	return nil
}
