package worker

import (
	"context"
	"errors"
	"testing"

	"shop-service/internal/models"
	"shop-service/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	sent []string
	err  error
}

func (n *recordingNotifier) NotifyOrder(ctx context.Context, customer *models.User, event *models.OrderCreatedEvent) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, customer.Email)
	return nil
}

func orderEvent(customerID int64) *models.OrderCreatedEvent {
	return &models.OrderCreatedEvent{
		BaseEvent:     models.BaseEvent{EventID: "evt-1", EventType: models.EventTypeOrderCreated},
		OrderID:       1,
		CustomerID:    customerID,
		PaymentStatus: models.PaymentStatusComplete,
		TotalMinor:    1000,
	}
}

func TestNotificationWorker_NotifiesOnce(t *testing.T) {
	repo := storetest.NewMemory()
	customer := repo.SeedUser(models.User{Username: "alice", Email: "alice@example.com"})
	notifier := &recordingNotifier{}
	w := NewNotificationWorker(nil, repo, notifier)
	ctx := context.Background()

	require.NoError(t, w.HandleOrderCreated(ctx, orderEvent(customer.ID)))
	require.NoError(t, w.HandleOrderCreated(ctx, orderEvent(customer.ID)))

	assert.Equal(t, []string{"alice@example.com"}, notifier.sent)
	processed, err := repo.IsEventProcessed(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestNotificationWorker_FailureLeavesEventUnprocessed(t *testing.T) {
	repo := storetest.NewMemory()
	customer := repo.SeedUser(models.User{Username: "alice", Email: "alice@example.com"})
	notifier := &recordingNotifier{err: errors.New("smtp down")}
	w := NewNotificationWorker(nil, repo, notifier)
	ctx := context.Background()

	assert.Error(t, w.HandleOrderCreated(ctx, orderEvent(customer.ID)))
	processed, err := repo.IsEventProcessed(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, processed)

	assert.Error(t, w.HandleOrderCreated(ctx, orderEvent(9999)))
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier()
	assert.NoError(t, n.NotifyOrder(context.Background(), &models.User{Email: "a@b.c"}, orderEvent(1)))
}
