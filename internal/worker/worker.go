package worker

import (
	"context"
	"fmt"

	"shop-service/internal/broker"
	"shop-service/internal/models"
	"shop-service/internal/store"
	"shop-service/internal/util"

	"go.uber.org/zap"
)

// Notifier tells a customer about their order
type Notifier interface {
	NotifyOrder(ctx context.Context, customer *models.User, event *models.OrderCreatedEvent) error
}

// LogNotifier writes order confirmations to the log
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: util.GetLogger()}
}

func (n *LogNotifier) NotifyOrder(ctx context.Context, customer *models.User, event *models.OrderCreatedEvent) error {
	n.logger.Info("Order confirmation",
		zap.String("to", customer.Email),
		zap.Int64("order_id", event.OrderID),
		zap.String("payment_status", event.PaymentStatus),
		zap.Int64("total_minor", event.TotalMinor),
		zap.Int("items", len(event.Items)))
	return nil
}

// NotificationWorker consumes ORDER_CREATED events and notifies customers
// once per event.
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	repo         store.Querier
	notifier     Notifier
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker. consumer may be
// nil when events are fed to HandleOrderCreated directly.
func NewNotificationWorker(consumer *broker.Consumer, repo store.Querier, notifier Notifier) *NotificationWorker {
	w := &NotificationWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		repo:         repo,
		notifier:     notifier,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnOrderCreated(w.HandleOrderCreated)
	return w
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}

// HandleOrderCreated notifies the customer of an order. Redelivered events
// are skipped.
func (w *NotificationWorker) HandleOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	ctx, span := util.StartSpan(ctx, "NotificationWorker.HandleOrderCreated")
	defer span.End()

	processed, err := w.repo.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		w.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	customer, err := w.repo.GetUserByID(ctx, event.CustomerID)
	if err != nil {
		return fmt.Errorf("failed to load customer %d: %w", event.CustomerID, err)
	}

	if err := w.notifier.NotifyOrder(ctx, customer, event); err != nil {
		return fmt.Errorf("failed to notify customer: %w", err)
	}
	util.NotificationsSentTotal.Inc()

	if err := w.repo.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		w.logger.Error("Failed to mark event processed", zap.Error(err))
	}
	return nil
}
