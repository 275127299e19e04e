package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/inkroute/inkroute-backend/pkg/dedupe"
	"github.com/inkroute/inkroute-backend/pkg/enums"
	"github.com/inkroute/inkroute-backend/pkg/logger"
	"github.com/inkroute/inkroute-backend/pkg/outbox"
)

const fulfillmentAlertsConsumer = "fulfillment-alerts"

type ownerLookup interface {
	OrderOwner(ctx context.Context, orderID uuid.UUID) (orderOwner, error)
}

// Consumer turns fulfillment failure events into notifications for the store owner.
type Consumer struct {
	owners       ownerLookup
	notifier     Service
	subscription *pubsub.Subscriber
	guard        *dedupe.Guard
	logg         *logger.Logger
}

// NewConsumer builds the fulfillment alert consumer.
func NewConsumer(repo Repository, notifier Service, subscription *pubsub.Subscriber, guard *dedupe.Guard, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifications service required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("fulfillment subscription required")
	}
	if guard == nil {
		return nil, fmt.Errorf("dedupe guard required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		owners:       repo,
		notifier:     notifier,
		subscription: subscription,
		guard:        guard,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg.ID, msg.Attributes, msg.Data) {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// process handles one message and reports whether it should be redelivered.
func (c *Consumer) process(ctx context.Context, messageID string, attributes map[string]string, data []byte) bool {
	eventType := enums.OutboxEventType(attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": eventType,
	})

	if eventType != enums.EventJobExhausted && eventType != enums.EventOrderOrphaned {
		c.logg.Debug(logCtx, "skipping event")
		return false
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return false
	}
	if envelope.EventID == "" {
		c.logg.Warn(logCtx, "envelope without event id")
		return false
	}

	claimed, err := c.guard.Claim(ctx, fulfillmentAlertsConsumer, envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "dedupe claim failed", err)
		return true
	}
	if !claimed {
		c.logg.Info(logCtx, "event already processed")
		return false
	}

	if err := c.handle(ctx, eventType, envelope.Data); err != nil {
		c.logg.Error(logCtx, "fulfillment alert failed", err)
		_ = c.guard.Release(ctx, fulfillmentAlertsConsumer, envelope.EventID)
		return true
	}
	return false
}

func (c *Consumer) handle(ctx context.Context, eventType enums.OutboxEventType, data json.RawMessage) error {
	var orderID uuid.UUID
	var message string

	switch eventType {
	case enums.EventJobExhausted:
		var payload outbox.JobEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("decode job event: %w", err)
		}
		orderID = payload.OrderID
		message = fmt.Sprintf("Production could not be started after %d attempts", payload.Attempts)
		if payload.LastError != "" {
			message += ": " + payload.LastError
		}
	case enums.EventOrderOrphaned:
		var payload outbox.OrderEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("decode order event: %w", err)
		}
		orderID = payload.OrderID
		message = "The order arrived without any line items and cannot be produced"
	}
	if orderID == uuid.Nil {
		return errors.New("order id missing")
	}

	owner, err := c.owners.OrderOwner(ctx, orderID)
	if err != nil {
		return fmt.Errorf("resolve order owner: %w", err)
	}

	storeID := owner.StoreID
	return c.notifier.Notify(ctx, Input{
		UserID:  owner.OwnerUserID,
		StoreID: &storeID,
		Type:    enums.NotificationTypeFulfillmentFailed,
		Title:   fmt.Sprintf("Order %s needs attention", owner.ExternalOrderID),
		Message: message,
		Link:    fmt.Sprintf("/orders/%s", orderID),
	})
}
