package payment

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"shop-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SimulatedGateway approves charges with a fixed probability. It is used
// when no processor credentials are configured.
type SimulatedGateway struct {
	mu          sync.Mutex
	rng         *rand.Rand
	successRate float64 // 0.0 - 1.0
	logger      *zap.Logger
}

func NewSimulatedGateway(successRate float64, seed int64) *SimulatedGateway {
	return &SimulatedGateway{
		rng:         rand.New(rand.NewSource(seed)),
		successRate: successRate,
		logger:      util.GetLogger(),
	}
}

func (g *SimulatedGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.AmountMinor < 0 {
		return nil, fmt.Errorf("invalid amount %d", req.AmountMinor)
	}

	g.mu.Lock()
	success := g.rng.Float64() < g.successRate
	g.mu.Unlock()

	ref := fmt.Sprintf("SIM-%s", uuid.New().String()[:8])
	if !success {
		g.logger.Warn("Simulated payment declined", zap.Int64("order_id", req.OrderID))
		return &ChargeResult{Succeeded: false, ProviderRef: ref, DeclineReason: "simulated_decline"}, nil
	}

	g.logger.Info("Simulated payment approved",
		zap.Int64("order_id", req.OrderID),
		zap.Int64("amount", req.AmountMinor),
		zap.String("tx_id", ref))
	return &ChargeResult{Succeeded: true, ProviderRef: ref}, nil
}
