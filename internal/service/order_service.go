package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"shop-service/internal/models"
	"shop-service/internal/payment"
	"shop-service/internal/store"
	"shop-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CheckoutLocker serializes checkouts of the same cart across instances
type CheckoutLocker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, name, token string) error
}

// OrderService handles order business logic
type OrderService struct {
	repo    store.Repository
	gateway payment.Gateway
	locker  CheckoutLocker
	lockTTL time.Duration
	hooks   []OrderHook
	logger  *zap.Logger
}

// NewOrderService creates a new order service. locker may be nil.
func NewOrderService(repo store.Repository, gateway payment.Gateway, locker CheckoutLocker, lockTTL time.Duration) *OrderService {
	return &OrderService{
		repo:    repo,
		gateway: gateway,
		locker:  locker,
		lockTTL: lockTTL,
		logger:  util.GetLogger(),
	}
}

// AddHook registers a hook run after every order creation, in registration order
func (s *OrderService) AddHook(h OrderHook) {
	s.hooks = append(s.hooks, h)
}

// finalizeTimeout bounds the post-charge writes of a checkout
const finalizeTimeout = 10 * time.Second

var hundred = decimal.NewFromInt(100)

// TotalMinorUnits converts an order total to integer cents, truncating
func TotalMinorUnits(total decimal.Decimal) int64 {
	return total.Mul(hundred).IntPart()
}

// CreateOrder turns a cart into an order and charges it.
//
// The order and its items are written in one transaction. The charge, the
// status update and the cart deletion happen after commit; a crash between
// them can leave a PENDING order or an orphaned cart.
//
// A declined charge returns the FAILED order without error. A processor
// error returns *PaymentError carrying the FAILED order.
func (s *OrderService) CreateOrder(ctx context.Context, customerID int64, cartID string) (*models.OrderDetail, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if _, err := uuid.Parse(cartID); err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_cart").Inc()
		return nil, NewValidationError("cart_id", "No cart found with the given ID.")
	}

	release, err := s.lockCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		detail   *models.OrderDetail
		customer *models.User
	)
	err = s.repo.InTx(ctx, func(q store.Querier) error {
		items, err := s.loadCart(ctx, q, cartID)
		if err != nil {
			return err
		}
		customer, err = s.loadCustomer(ctx, q, customerID)
		if err != nil {
			return err
		}
		detail, err = s.placeOrder(ctx, q, customerID, items)
		return err
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", detail.ID),
		zap.Int64("customer_id", customerID),
		zap.Int("items", len(detail.Items)))

	result, chargeErr := s.charge(ctx, detail, customer)

	// The order is committed; finish it even if the caller has gone away.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	status := models.PaymentStatusFailed
	if chargeErr == nil && result.Succeeded {
		status = models.PaymentStatusComplete
	}
	statusErr := s.repo.UpdateOrderPaymentStatus(ctx, detail.ID, models.PaymentStatusPending, status)
	if statusErr == nil {
		detail.PaymentStatus = status
	}

	if err := s.repo.DeleteCart(ctx, cartID); err != nil {
		s.logger.Error("Failed to delete cart after checkout",
			zap.String("cart_id", cartID),
			zap.Int64("order_id", detail.ID),
			zap.Error(err))
	}

	if statusErr != nil {
		s.logger.Error("Failed to record payment status",
			zap.Int64("order_id", detail.ID),
			zap.String("status", status),
			zap.Error(statusErr))
		return nil, fmt.Errorf("failed to record payment status for order %d: %w", detail.ID, statusErr)
	}

	runHooks(ctx, s.logger, s.hooks, detail)

	if chargeErr != nil {
		util.RecordError(span, chargeErr)
		return nil, &PaymentError{Order: detail, Err: chargeErr}
	}
	return detail, nil
}

// lockCart takes the checkout lock for a cart. When the lock backend is
// unavailable the checkout proceeds unlocked.
func (s *OrderService) lockCart(ctx context.Context, cartID string) (func(), error) {
	noop := func() {}
	if s.locker == nil {
		return noop, nil
	}

	name := "checkout:" + cartID
	token, ok, err := s.locker.Acquire(ctx, name, s.lockTTL)
	if err != nil {
		s.logger.Warn("Checkout lock unavailable, continuing without it",
			zap.String("cart_id", cartID), zap.Error(err))
		return noop, nil
	}
	if !ok {
		return nil, ErrCheckoutInProgress
	}

	return func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), name, token); err != nil {
			s.logger.Warn("Failed to release checkout lock", zap.String("cart_id", cartID), zap.Error(err))
		}
	}, nil
}

func (s *OrderService) loadCart(ctx context.Context, q store.Querier, cartID string) ([]models.CartItem, error) {
	if _, err := q.GetCart(ctx, cartID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			util.OrdersFailedTotal.WithLabelValues("invalid_cart").Inc()
			return nil, NewValidationError("cart_id", "No cart found with the given ID.")
		}
		return nil, err
	}

	items, err := q.ListCartItems(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		util.OrdersFailedTotal.WithLabelValues("empty_cart").Inc()
		return nil, NewValidationError("cart_id", "The cart is empty.")
	}
	return items, nil
}

func (s *OrderService) loadCustomer(ctx context.Context, q store.Querier, customerID int64) (*models.User, error) {
	customer, err := q.GetUserByID(ctx, customerID)
	if err != nil {
		return nil, translateStoreError(err)
	}

	verr := &ValidationError{}
	if strings.TrimSpace(customer.Address) == "" {
		verr.Add("address", "Set an address in your profile before placing an order.")
	}
	if strings.TrimSpace(customer.Phone) == "" {
		verr.Add("phone", "Set a phone number in your profile before placing an order.")
	}
	if err := verr.OrNil(); err != nil {
		util.OrdersFailedTotal.WithLabelValues("missing_contact").Inc()
		return nil, err
	}
	return customer, nil
}

// placeOrder writes a PENDING order and snapshots each cart line with the
// product's current unit price.
func (s *OrderService) placeOrder(ctx context.Context, q store.Querier, customerID int64, cartItems []models.CartItem) (*models.OrderDetail, error) {
	ids := make([]int64, len(cartItems))
	for i, it := range cartItems {
		ids[i] = it.ProductID
	}
	products, err := q.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	prices := make(map[int64]decimal.Decimal, len(products))
	for _, p := range products {
		prices[p.ID] = p.UnitPrice
	}

	order := &models.Order{CustomerID: customerID, PaymentStatus: models.PaymentStatusPending}
	if err := q.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	items := make([]models.OrderItem, 0, len(cartItems))
	for _, it := range cartItems {
		price, ok := prices[it.ProductID]
		if !ok {
			return nil, NewValidationError("cart_id", fmt.Sprintf("Product %d is no longer available.", it.ProductID))
		}
		items = append(items, models.OrderItem{
			OrderID:   order.ID,
			ProductID: it.ProductID,
			UnitPrice: price,
			Quantity:  it.Quantity,
		})
	}
	if err := q.CreateOrderItems(ctx, items); err != nil {
		return nil, fmt.Errorf("failed to create order items: %w", err)
	}

	return &models.OrderDetail{Order: *order, Items: items}, nil
}

func (s *OrderService) charge(ctx context.Context, order *models.OrderDetail, customer *models.User) (*payment.ChargeResult, error) {
	util.PaymentAttemptsTotal.Inc()
	start := time.Now()
	defer func() {
		util.PaymentProcessingLatency.Observe(time.Since(start).Seconds())
	}()

	amount := TotalMinorUnits(order.Total())
	s.logger.Info("Processing payment",
		zap.Int64("order_id", order.ID),
		zap.Int64("amount", amount))

	result, err := s.gateway.Charge(ctx, payment.ChargeRequest{
		OrderID:       order.ID,
		AmountMinor:   amount,
		CustomerEmail: customer.Email,
		CustomerName:  strings.TrimSpace(customer.FirstName + " " + customer.LastName),
	})
	if err != nil {
		util.PaymentFailedTotal.WithLabelValues("processor_error").Inc()
		util.OrdersFailedTotal.WithLabelValues("payment_error").Inc()
		s.logger.Error("Payment processor error",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
		return nil, err
	}

	if !result.Succeeded {
		util.PaymentFailedTotal.WithLabelValues("declined").Inc()
		util.OrdersFailedTotal.WithLabelValues("payment_declined").Inc()
		s.logger.Warn("Payment declined",
			zap.Int64("order_id", order.ID),
			zap.String("reason", result.DeclineReason))
		return result, nil
	}

	util.PaymentSuccessTotal.Inc()
	s.logger.Info("Payment succeeded",
		zap.Int64("order_id", order.ID),
		zap.String("provider_ref", result.ProviderRef))
	return result, nil
}

// ListOrders returns the caller's orders, or every order for staff
func (s *OrderService) ListOrders(ctx context.Context, user *models.User) ([]models.OrderDetail, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders")
	defer span.End()

	var (
		orders []models.Order
		err    error
	)
	if user.IsStaff {
		orders, err = s.repo.ListAllOrders(ctx)
	} else {
		orders, err = s.repo.ListOrders(ctx, user.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return s.withItems(ctx, orders)
}

// GetOrder returns an order visible to the user. Other customers' orders
// are reported as not found.
func (s *OrderService) GetOrder(ctx context.Context, user *models.User, orderID int64) (*models.OrderDetail, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, translateStoreError(err)
	}
	if !user.IsStaff && order.CustomerID != user.ID {
		return nil, fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}

	details, err := s.withItems(ctx, []models.Order{*order})
	if err != nil {
		return nil, err
	}
	return &details[0], nil
}

// UpdatePaymentStatus moves an order out of PENDING. Setting the current
// status again is a no-op.
func (s *OrderService) UpdatePaymentStatus(ctx context.Context, orderID int64, status string) (*models.OrderDetail, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdatePaymentStatus")
	defer span.End()

	switch status {
	case models.PaymentStatusPending, models.PaymentStatusComplete, models.PaymentStatusFailed:
	default:
		return nil, NewValidationError("payment_status", fmt.Sprintf("%q is not a valid choice.", status))
	}

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, translateStoreError(err)
	}
	if order.PaymentStatus != status {
		if !models.CanTransition(order.PaymentStatus, status) {
			return nil, NewValidationError("payment_status",
				fmt.Sprintf("Cannot change payment status from %s to %s.", order.PaymentStatus, status))
		}
		err := s.repo.UpdateOrderPaymentStatus(ctx, orderID, order.PaymentStatus, status)
		if errors.Is(err, store.ErrStaleStatus) {
			return nil, NewValidationError("payment_status", "Payment status has already been finalized.")
		}
		if err != nil {
			return nil, translateStoreError(err)
		}
		s.logger.Info("Order payment status updated",
			zap.Int64("order_id", orderID),
			zap.String("from", order.PaymentStatus),
			zap.String("to", status))
		order.PaymentStatus = status
	}

	details, err := s.withItems(ctx, []models.Order{*order})
	if err != nil {
		return nil, err
	}
	return &details[0], nil
}

func (s *OrderService) DeleteOrder(ctx context.Context, orderID int64) error {
	ctx, span := util.StartSpan(ctx, "OrderService.DeleteOrder")
	defer span.End()

	if err := s.repo.DeleteOrder(ctx, orderID); err != nil {
		return translateStoreError(err)
	}
	s.logger.Info("Order deleted", zap.Int64("order_id", orderID))
	return nil
}

func (s *OrderService) withItems(ctx context.Context, orders []models.Order) ([]models.OrderDetail, error) {
	details := make([]models.OrderDetail, 0, len(orders))
	if len(orders) == 0 {
		return details, nil
	}

	ids := make([]int64, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	items, err := s.repo.ListOrderItems(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	byOrder := make(map[int64][]models.OrderItem)
	for _, it := range items {
		byOrder[it.OrderID] = append(byOrder[it.OrderID], it)
	}

	for _, o := range orders {
		its := byOrder[o.ID]
		if its == nil {
			its = []models.OrderItem{}
		}
		details = append(details, models.OrderDetail{Order: o, Items: its})
	}
	return details, nil
}
