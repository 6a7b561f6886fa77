package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"shop-service/internal/models"
	"shop-service/internal/payment"
	"shop-service/internal/store/storetest"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrderFixture(t *testing.T) (*fixture, *OrderService, *fakeGateway, string) {
	t.Helper()
	f := newFixture()
	gw := &fakeGateway{}
	svc := NewOrderService(f.repo, gw, nil, time.Minute)

	carts := NewCartService(f.repo)
	cart, err := carts.CreateCart(context.Background())
	require.NoError(t, err)
	_, err = carts.AddItem(context.Background(), cart.ID, f.product.ID, 2)
	require.NoError(t, err)
	return f, svc, gw, cart.ID
}

func TestTotalMinorUnits(t *testing.T) {
	assert.Equal(t, int64(1000), TotalMinorUnits(decimal.RequireFromString("10.00")))
	assert.Equal(t, int64(1999), TotalMinorUnits(decimal.RequireFromString("19.99")))
	assert.Equal(t, int64(1000), TotalMinorUnits(decimal.RequireFromString("10.009")))
	assert.Equal(t, int64(0), TotalMinorUnits(decimal.Zero))
}

func TestOrderService_CreateOrder(t *testing.T) {
	f, svc, gw, cartID := newOrderFixture(t)
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, f.customer.ID, cartID)
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusComplete, order.PaymentStatus)
	assert.Equal(t, f.customer.ID, order.CustomerID)
	require.Len(t, order.Items, 1)
	assert.Equal(t, f.product.ID, order.Items[0].ProductID)
	assert.Equal(t, 2, order.Items[0].Quantity)
	assert.True(t, order.Items[0].UnitPrice.Equal(decimal.RequireFromString("10.00")))

	require.Len(t, gw.requests, 1)
	assert.Equal(t, int64(1000), gw.requests[0].AmountMinor)
	assert.Equal(t, order.ID, gw.requests[0].OrderID)

	stored, err := f.repo.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusComplete, stored.PaymentStatus)

	// the cart is gone after checkout
	_, err = f.repo.GetCart(ctx, cartID)
	assert.Error(t, err)
	items, err := f.repo.ListCartItems(ctx, cartID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestOrderService_UnitPriceSnapshot(t *testing.T) {
	f, svc, _, cartID := newOrderFixture(t)
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, f.customer.ID, cartID)
	require.NoError(t, err)

	f.repo.SetProductPrice(f.product.ID, decimal.RequireFromString("99.00"))

	got, err := svc.GetOrder(ctx, &f.customer, order.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.True(t, got.Items[0].UnitPrice.Equal(decimal.RequireFromString("10.00")))
}

func TestOrderService_EmptyCart(t *testing.T) {
	f := newFixture()
	gw := &fakeGateway{}
	svc := NewOrderService(f.repo, gw, nil, time.Minute)
	ctx := context.Background()

	cart, err := NewCartService(f.repo).CreateCart(ctx)
	require.NoError(t, err)

	_, err = svc.CreateOrder(ctx, f.customer.ID, cart.ID)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, strings.ToLower(verr.Error()), "cart is empty")
	assert.Equal(t, 0, f.repo.OrderCount())
	assert.Empty(t, gw.requests)
}

func TestOrderService_UnknownCart(t *testing.T) {
	f := newFixture()
	svc := NewOrderService(f.repo, &fakeGateway{}, nil, time.Minute)
	ctx := context.Background()

	for _, id := range []string{"", "nope", "0b1f3c4e-9f3a-4c55-8e0f-5c1b2a3d4e5f"} {
		_, err := svc.CreateOrder(ctx, f.customer.ID, id)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, id)
		assert.Contains(t, strings.ToLower(verr.Error()), "no cart found")
	}
	assert.Equal(t, 0, f.repo.OrderCount())
}

func TestOrderService_CustomerWithoutAddress(t *testing.T) {
	f, svc, gw, cartID := newOrderFixture(t)
	ctx := context.Background()

	nobody := f.repo.SeedUser(models.User{Username: "bob", Email: "bob@example.com", Phone: "123"})

	_, err := svc.CreateOrder(ctx, nobody.ID, cartID)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "address")
	assert.NotContains(t, verr.Fields, "phone")
	assert.Equal(t, 0, f.repo.OrderCount())
	assert.Empty(t, gw.requests)

	// the cart is untouched
	items, err := f.repo.ListCartItems(ctx, cartID)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestOrderService_OrderAndItemsAreAtomic(t *testing.T) {
	f, svc, gw, cartID := newOrderFixture(t)
	ctx := context.Background()

	f.repo.Fail("CreateOrderItems", errBoom)

	_, err := svc.CreateOrder(ctx, f.customer.ID, cartID)
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 0, f.repo.OrderCount())
	assert.Equal(t, 0, f.repo.OrderItemCount())
	assert.Empty(t, gw.requests)

	_, err = f.repo.GetCart(ctx, cartID)
	assert.NoError(t, err)
}

func TestOrderService_PaymentDeclined(t *testing.T) {
	f, svc, gw, cartID := newOrderFixture(t)
	ctx := context.Background()
	gw.result = &payment.ChargeResult{Succeeded: false, DeclineReason: "card_declined"}

	order, err := svc.CreateOrder(ctx, f.customer.ID, cartID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, order.PaymentStatus)

	// the order persists and the cart is still deleted
	stored, err := f.repo.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, stored.PaymentStatus)
	_, err = f.repo.GetCart(ctx, cartID)
	assert.Error(t, err)
}

func TestOrderService_PaymentProcessorError(t *testing.T) {
	f, svc, gw, cartID := newOrderFixture(t)
	ctx := context.Background()
	gw.err = errors.New("processor unreachable")

	var hooked []int64
	svc.AddHook(OrderHookFunc{HookName: "record", Fn: func(ctx context.Context, o *models.OrderDetail) error {
		hooked = append(hooked, o.ID)
		return nil
	}})

	order, err := svc.CreateOrder(ctx, f.customer.ID, cartID)
	assert.Nil(t, order)

	var perr *PaymentError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, models.PaymentStatusFailed, perr.Order.PaymentStatus)
	assert.ErrorIs(t, err, gw.err)

	stored, err := f.repo.GetOrder(ctx, perr.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, stored.PaymentStatus)

	_, err = f.repo.GetCart(ctx, cartID)
	assert.Error(t, err)
	assert.Equal(t, []int64{perr.Order.ID}, hooked)
}

func TestOrderService_HooksAreIsolated(t *testing.T) {
	f, svc, _, cartID := newOrderFixture(t)
	ctx := context.Background()

	var calls []string
	svc.AddHook(OrderHookFunc{HookName: "panics", Fn: func(ctx context.Context, o *models.OrderDetail) error {
		calls = append(calls, "panics")
		panic("listener exploded")
	}})
	svc.AddHook(OrderHookFunc{HookName: "fails", Fn: func(ctx context.Context, o *models.OrderDetail) error {
		calls = append(calls, "fails")
		return errBoom
	}})
	svc.AddHook(OrderHookFunc{HookName: "works", Fn: func(ctx context.Context, o *models.OrderDetail) error {
		calls = append(calls, "works")
		return nil
	}})

	order, err := svc.CreateOrder(ctx, f.customer.ID, cartID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusComplete, order.PaymentStatus)
	assert.Equal(t, []string{"panics", "fails", "works"}, calls)
}

func TestRunHooksReportsFailures(t *testing.T) {
	order := &models.OrderDetail{Order: models.Order{ID: 7}}
	hooks := []OrderHook{
		OrderHookFunc{HookName: "a", Fn: func(context.Context, *models.OrderDetail) error { panic("x") }},
		OrderHookFunc{HookName: "b", Fn: func(context.Context, *models.OrderDetail) error { return nil }},
		OrderHookFunc{HookName: "c", Fn: func(context.Context, *models.OrderDetail) error { return errBoom }},
	}

	failures := runHooks(context.Background(), testLogger(), hooks, order)
	require.Len(t, failures, 2)
	assert.Equal(t, "a", failures[0].Hook)
	assert.Contains(t, failures[0].Err.Error(), "panic")
	assert.Equal(t, "c", failures[1].Hook)
	assert.ErrorIs(t, failures[1].Err, errBoom)
}

func TestOrderService_CheckoutLock(t *testing.T) {
	f, _, gw, cartID := newOrderFixture(t)
	ctx := context.Background()

	locker := newFakeLocker()
	svc := NewOrderService(f.repo, gw, locker, time.Minute)

	locker.held["checkout:"+cartID] = "someone-else"
	_, err := svc.CreateOrder(ctx, f.customer.ID, cartID)
	assert.ErrorIs(t, err, ErrCheckoutInProgress)
	assert.Equal(t, 0, f.repo.OrderCount())

	delete(locker.held, "checkout:"+cartID)
	_, err = svc.CreateOrder(ctx, f.customer.ID, cartID)
	require.NoError(t, err)
	assert.Equal(t, []string{"checkout:" + cartID}, locker.released)
	assert.Empty(t, locker.held)
}

func TestOrderService_LockBackendDown(t *testing.T) {
	f, _, gw, cartID := newOrderFixture(t)
	locker := newFakeLocker()
	locker.err = errors.New("redis: connection refused")
	svc := NewOrderService(f.repo, gw, locker, time.Minute)

	order, err := svc.CreateOrder(context.Background(), f.customer.ID, cartID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusComplete, order.PaymentStatus)
}

func TestOrderService_ConcurrentCheckoutSameCart(t *testing.T) {
	f, _, gw, cartID := newOrderFixture(t)
	svc := NewOrderService(f.repo, gw, newFakeLocker(), time.Minute)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CreateOrder(context.Background(), f.customer.ID, cartID)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, f.repo.OrderCount())
}

func TestOrderService_ListAndGetScoping(t *testing.T) {
	f, svc, _, cartID := newOrderFixture(t)
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, f.customer.ID, cartID)
	require.NoError(t, err)

	other := f.repo.SeedUser(models.User{Username: "carol", Email: "carol@example.com"})

	mine, err := svc.ListOrders(ctx, &f.customer)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Len(t, mine[0].Items, 1)

	theirs, err := svc.ListOrders(ctx, &other)
	require.NoError(t, err)
	assert.Empty(t, theirs)

	all, err := svc.ListOrders(ctx, &f.staff)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = svc.GetOrder(ctx, &other, order.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := svc.GetOrder(ctx, &f.staff, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
}

func TestOrderService_UpdatePaymentStatus(t *testing.T) {
	f := newFixture()
	svc := NewOrderService(f.repo, &fakeGateway{}, nil, time.Minute)
	ctx := context.Background()

	pending := &models.Order{CustomerID: f.customer.ID}
	require.NoError(t, f.repo.CreateOrder(ctx, pending))

	updated, err := svc.UpdatePaymentStatus(ctx, pending.ID, models.PaymentStatusComplete)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusComplete, updated.PaymentStatus)

	// same status again is a no-op
	_, err = svc.UpdatePaymentStatus(ctx, pending.ID, models.PaymentStatusComplete)
	require.NoError(t, err)

	_, err = svc.UpdatePaymentStatus(ctx, pending.ID, models.PaymentStatusFailed)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = svc.UpdatePaymentStatus(ctx, pending.ID, "SHIPPED")
	require.ErrorAs(t, err, &verr)

	_, err = svc.UpdatePaymentStatus(ctx, 9999, models.PaymentStatusFailed)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOrderService_DeleteOrder(t *testing.T) {
	f, svc, _, cartID := newOrderFixture(t)
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, f.customer.ID, cartID)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteOrder(ctx, order.ID))
	assert.Equal(t, 0, f.repo.OrderItemCount())
	assert.ErrorIs(t, svc.DeleteOrder(ctx, order.ID), ErrNotFound)
}

// ctxRepo fails post-commit writes once their context is done, as the
// database driver does.
type ctxRepo struct {
	*storetest.Memory
}

func (r ctxRepo) UpdateOrderPaymentStatus(ctx context.Context, orderID int64, from, to string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.Memory.UpdateOrderPaymentStatus(ctx, orderID, from, to)
}

func (r ctxRepo) DeleteCart(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.Memory.DeleteCart(ctx, id)
}

// cancellingGateway simulates the client disconnecting mid-charge.
type cancellingGateway struct {
	cancel context.CancelFunc
}

func (g *cancellingGateway) Charge(ctx context.Context, req payment.ChargeRequest) (*payment.ChargeResult, error) {
	g.cancel()
	return nil, ctx.Err()
}

func TestOrderService_FinalizesAfterClientDisconnect(t *testing.T) {
	f := newFixture()
	carts := NewCartService(f.repo)
	cart, err := carts.CreateCart(context.Background())
	require.NoError(t, err)
	_, err = carts.AddItem(context.Background(), cart.ID, f.product.ID, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := NewOrderService(ctxRepo{f.repo}, &cancellingGateway{cancel: cancel}, nil, time.Minute)

	var hookErr error
	svc.AddHook(OrderHookFunc{HookName: "record", Fn: func(ctx context.Context, o *models.OrderDetail) error {
		hookErr = ctx.Err()
		return nil
	}})

	_, err = svc.CreateOrder(ctx, f.customer.ID, cart.ID)
	var perr *PaymentError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, context.Canceled)

	stored, err := f.repo.GetOrder(context.Background(), perr.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, stored.PaymentStatus)

	_, err = f.repo.GetCart(context.Background(), cart.ID)
	assert.Error(t, err)
	assert.NoError(t, hookErr)
}
