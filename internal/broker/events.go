package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"hub-order-service/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing order lifecycle events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func orderKey(orderID int64) string {
	return fmt.Sprintf("order-%d", orderID)
}

// PublishOrderPlaced publishes OrderPlaced event
func (ep *EventPublisher) PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderApproved publishes OrderApproved event
func (ep *EventPublisher) PublishOrderApproved(ctx context.Context, event *models.OrderApprovedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderPendingStock publishes OrderPendingStock event
func (ep *EventPublisher) PublishOrderPendingStock(ctx context.Context, event *models.OrderPendingStockEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishRestockRequested publishes RestockRequested event
func (ep *EventPublisher) PublishRestockRequested(ctx context.Context, event *models.RestockRequestedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishRestockFulfilled publishes RestockFulfilled event
func (ep *EventPublisher) PublishRestockFulfilled(ctx context.Context, event *models.RestockFulfilledEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderArrived publishes OrderArrived event
func (ep *EventPublisher) PublishOrderArrived(ctx context.Context, event *models.OrderArrivedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOtpIssued publishes OtpIssued event
func (ep *EventPublisher) PublishOtpIssued(ctx context.Context, event *models.OtpIssuedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderDelivered publishes OrderDelivered event
func (ep *EventPublisher) PublishOrderDelivered(ctx context.Context, event *models.OrderDeliveredEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderCancelled publishes OrderCancelled event
func (ep *EventPublisher) PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// EventHandler routes consumed messages to registered handlers
type EventHandler struct {
	onOrderApproved     func(context.Context, *models.OrderApprovedEvent) error
	onOrderPendingStock func(context.Context, *models.OrderPendingStockEvent) error
	onRestockRequested  func(context.Context, *models.RestockRequestedEvent) error
	onRestockFulfilled  func(context.Context, *models.RestockFulfilledEvent) error
	onOtpIssued         func(context.Context, *models.OtpIssuedEvent) error
	onOrderDelivered    func(context.Context, *models.OrderDeliveredEvent) error
	onOrderCancelled    func(context.Context, *models.OrderCancelledEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnOrderApproved registers a handler for OrderApproved events
func (eh *EventHandler) OnOrderApproved(h func(context.Context, *models.OrderApprovedEvent) error) {
	eh.onOrderApproved = h
}

// OnOrderPendingStock registers a handler for OrderPendingStock events
func (eh *EventHandler) OnOrderPendingStock(h func(context.Context, *models.OrderPendingStockEvent) error) {
	eh.onOrderPendingStock = h
}

// OnRestockRequested registers a handler for RestockRequested events
func (eh *EventHandler) OnRestockRequested(h func(context.Context, *models.RestockRequestedEvent) error) {
	eh.onRestockRequested = h
}

// OnRestockFulfilled registers a handler for RestockFulfilled events
func (eh *EventHandler) OnRestockFulfilled(h func(context.Context, *models.RestockFulfilledEvent) error) {
	eh.onRestockFulfilled = h
}

// OnOtpIssued registers a handler for OtpIssued events
func (eh *EventHandler) OnOtpIssued(h func(context.Context, *models.OtpIssuedEvent) error) {
	eh.onOtpIssued = h
}

// OnOrderDelivered registers a handler for OrderDelivered events
func (eh *EventHandler) OnOrderDelivered(h func(context.Context, *models.OrderDeliveredEvent) error) {
	eh.onOrderDelivered = h
}

// OnOrderCancelled registers a handler for OrderCancelled events
func (eh *EventHandler) OnOrderCancelled(h func(context.Context, *models.OrderCancelledEvent) error) {
	eh.onOrderCancelled = h
}

// HandleMessage routes messages to the appropriate handler
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypeOrderApproved:
		if eh.onOrderApproved != nil {
			var event models.OrderApprovedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderApproved event: %w", err)
			}
			return eh.onOrderApproved(ctx, &event)
		}

	case models.EventTypeOrderPendingStock:
		if eh.onOrderPendingStock != nil {
			var event models.OrderPendingStockEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderPendingStock event: %w", err)
			}
			return eh.onOrderPendingStock(ctx, &event)
		}

	case models.EventTypeRestockRequested:
		if eh.onRestockRequested != nil {
			var event models.RestockRequestedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal RestockRequested event: %w", err)
			}
			return eh.onRestockRequested(ctx, &event)
		}

	case models.EventTypeRestockFulfilled:
		if eh.onRestockFulfilled != nil {
			var event models.RestockFulfilledEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal RestockFulfilled event: %w", err)
			}
			return eh.onRestockFulfilled(ctx, &event)
		}

	case models.EventTypeOtpIssued:
		if eh.onOtpIssued != nil {
			var event models.OtpIssuedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OtpIssued event: %w", err)
			}
			return eh.onOtpIssued(ctx, &event)
		}

	case models.EventTypeOrderDelivered:
		if eh.onOrderDelivered != nil {
			var event models.OrderDeliveredEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderDelivered event: %w", err)
			}
			return eh.onOrderDelivered(ctx, &event)
		}

	case models.EventTypeOrderCancelled:
		if eh.onOrderCancelled != nil {
			var event models.OrderCancelledEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderCancelled event: %w", err)
			}
			return eh.onOrderCancelled(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
