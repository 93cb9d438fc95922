package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"hub-order-service/internal/broker"
	"hub-order-service/internal/models"
	"hub-order-service/internal/notify"
	"hub-order-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// NotificationStore is the slice of the store the notification worker needs
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// NotificationWorker turns lifecycle events into notification rows for
// admins and hub managers. Notifications are a side channel: a failure here
// never touches order or stock state.
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        NotificationStore
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, store NotificationStore) *NotificationWorker {
	w := &NotificationWorker{
		consumer: consumer,
		store:    store,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnRestockRequested(w.handleRestockRequested)
	eventHandler.OnRestockFulfilled(w.handleRestockFulfilled)
	eventHandler.OnOrderApproved(w.handleOrderApproved)
	eventHandler.OnOrderCancelled(w.handleOrderCancelled)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	log.Println("Starting notification worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	log.Println("Stopping notification worker...")
	return w.consumer.Close()
}

func (w *NotificationWorker) handleRestockRequested(ctx context.Context, event *models.RestockRequestedEvent) error {
	return w.notifyOnce(ctx, event.EventID, event.EventType, &models.Notification{
		RecipientRole: models.RoleAdmin,
		Message: fmt.Sprintf("Restock needed: hub %d short %d of product %d for order %d",
			event.HubID, event.Quantity, event.ProductID, event.OrderID),
		EntityID: event.RequestID,
	})
}

func (w *NotificationWorker) handleRestockFulfilled(ctx context.Context, event *models.RestockFulfilledEvent) error {
	return w.notifyOnce(ctx, event.EventID, event.EventType, &models.Notification{
		RecipientRole: models.RoleAdmin,
		Message: fmt.Sprintf("Restock request %d fulfilled for hub %d product %d",
			event.RequestID, event.HubID, event.ProductID),
		EntityID: event.RequestID,
	})
}

func (w *NotificationWorker) handleOrderApproved(ctx context.Context, event *models.OrderApprovedEvent) error {
	return w.notifyOnce(ctx, event.EventID, event.EventType, &models.Notification{
		RecipientRole: models.RoleHubManager,
		Message:       fmt.Sprintf("Order %d approved for collection at hub %d", event.OrderID, event.HubID),
		EntityID:      event.OrderID,
	})
}

func (w *NotificationWorker) handleOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	return w.notifyOnce(ctx, event.EventID, event.EventType, &models.Notification{
		RecipientRole: models.RoleHubManager,
		Message:       fmt.Sprintf("Order %d cancelled, stock returned at hub %d", event.OrderID, event.HubID),
		EntityID:      event.OrderID,
	})
}

// notifyOnce writes a notification unless this event was already handled
func (w *NotificationWorker) notifyOnce(ctx context.Context, eventID, eventType string, n *models.Notification) error {
	processed, err := w.store.IsEventProcessed(ctx, eventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		return nil
	}

	if err := w.store.CreateNotification(ctx, n); err != nil {
		w.logger.Error("Failed to write notification",
			zap.String("event_id", eventID),
			zap.Error(err))
		return nil // side channel, do not block the consumer
	}

	if err := w.store.MarkEventProcessed(ctx, eventID, eventType); err != nil {
		w.logger.Error("Failed to mark event processed", zap.Error(err))
	}
	return nil
}

// OtpEmailWorker delivers pickup codes to customers. Send failures are
// logged and counted; the committed code stays valid regardless.
type OtpEmailWorker struct {
	consumer *broker.Consumer
	sender   notify.EmailSender
	logger   *zap.Logger
}

// NewOtpEmailWorker creates a new OTP email worker
func NewOtpEmailWorker(consumer *broker.Consumer, sender notify.EmailSender) *OtpEmailWorker {
	return &OtpEmailWorker{
		consumer: consumer,
		sender:   sender,
		logger:   util.GetLogger(),
	}
}

// Start starts the worker
func (w *OtpEmailWorker) Start(ctx context.Context) error {
	log.Println("Starting OTP email worker...")

	return w.consumer.StartConsuming(ctx, func(ctx context.Context, msg kafka.Message) error {
		var baseEvent models.BaseEvent
		if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
			w.logger.Error("Failed to unmarshal event", zap.Error(err))
			return err
		}

		if baseEvent.EventType != models.EventTypeOtpIssued {
			return nil
		}

		var event models.OtpIssuedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return fmt.Errorf("failed to unmarshal OtpIssued event: %w", err)
		}

		email := notify.Email{
			To:      event.CustomerEmail,
			Subject: fmt.Sprintf("Pickup code for order %d", event.OrderID),
			Body:    fmt.Sprintf("Your collection code is %s. It expires shortly; show it at the hub counter.", event.Code),
		}

		if err := w.sender.Send(ctx, email); err != nil {
			util.EmailSendFailuresTotal.Inc()
			w.logger.Error("Failed to send pickup code email",
				zap.Int64("order_id", event.OrderID),
				zap.Error(err))
		}
		return nil
	})
}

// Stop stops the worker
func (w *OtpEmailWorker) Stop() error {
	log.Println("Stopping OTP email worker...")
	return w.consumer.Close()
}
