package service

import (
	"context"
	"fmt"

	"shop-service/internal/models"
	"shop-service/internal/util"

	"go.uber.org/zap"
)

// OrderHook runs after an order has been created and its payment settled.
type OrderHook interface {
	Name() string
	OrderCreated(ctx context.Context, order *models.OrderDetail) error
}

// OrderHookFunc adapts a function to OrderHook.
type OrderHookFunc struct {
	HookName string
	Fn       func(ctx context.Context, order *models.OrderDetail) error
}

func (f OrderHookFunc) Name() string { return f.HookName }

func (f OrderHookFunc) OrderCreated(ctx context.Context, order *models.OrderDetail) error {
	return f.Fn(ctx, order)
}

// HookFailure records one hook that returned an error or panicked.
type HookFailure struct {
	Hook string
	Err  error
}

// runHooks invokes every hook in order. A failing hook never stops the
// others; failures are logged, counted and returned.
func runHooks(ctx context.Context, logger *zap.Logger, hooks []OrderHook, order *models.OrderDetail) []HookFailure {
	var failures []HookFailure
	for _, h := range hooks {
		if err := runHook(ctx, h, order); err != nil {
			util.OrderHookFailuresTotal.WithLabelValues(h.Name()).Inc()
			logger.Error("Order hook failed",
				zap.String("hook", h.Name()),
				zap.Int64("order_id", order.ID),
				zap.Error(err))
			failures = append(failures, HookFailure{Hook: h.Name(), Err: err})
		}
	}
	return failures
}

func runHook(ctx context.Context, h OrderHook, order *models.OrderDetail) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.OrderCreated(ctx, order)
}
