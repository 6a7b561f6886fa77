package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"shop-service/internal/models"
	"shop-service/internal/payment"
	"shop-service/internal/store/storetest"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type fakeGateway struct {
	mu       sync.Mutex
	requests []payment.ChargeRequest
	result   *payment.ChargeResult
	err      error
}

func (g *fakeGateway) Charge(ctx context.Context, req payment.ChargeRequest) (*payment.ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	if g.result != nil {
		return g.result, nil
	}
	return &payment.ChargeResult{Succeeded: true, ProviderRef: "test"}, nil
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]string
	err      error
	released []string
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: map[string]string{}}
}

func (l *fakeLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return "", false, l.err
	}
	if _, ok := l.held[name]; ok {
		return "", false, nil
	}
	l.held[name] = "token-" + name
	return l.held[name], true, nil
}

func (l *fakeLocker) Release(ctx context.Context, name, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] == token {
		delete(l.held, name)
		l.released = append(l.released, name)
	}
	return nil
}

type fakeCache struct {
	mu          sync.Mutex
	items       map[int64]models.ProductDetail
	getErr      error
	invalidated []int64
}

func newFakeCache() *fakeCache {
	return &fakeCache{items: map[int64]models.ProductDetail{}}
}

func (c *fakeCache) Get(ctx context.Context, id int64) (*models.ProductDetail, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	d, ok := c.items[id]
	if !ok {
		return nil, false, nil
	}
	return &d, true, nil
}

func (c *fakeCache) Set(ctx context.Context, d *models.ProductDetail) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[d.ID] = *d
	return nil
}

func (c *fakeCache) Invalidate(ctx context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, id)
	c.invalidated = append(c.invalidated, id)
	return nil
}

var errBoom = errors.New("boom")

type fixture struct {
	repo     *storetest.Memory
	category models.Category
	product  models.Product
	customer models.User
	staff    models.User
}

func newFixture() *fixture {
	repo := storetest.NewMemory()
	f := &fixture{repo: repo}
	f.category = repo.SeedCategory("Kitchen")
	f.product = repo.SeedProduct(models.Product{
		Title:      "Kettle",
		Slug:       "kettle",
		Inventory:  5,
		UnitPrice:  decimal.RequireFromString("10.00"),
		CategoryID: f.category.ID,
	})
	f.customer = repo.SeedUser(models.User{
		Username: "alice",
		Email:    "alice@example.com",
		Phone:    "+1 555 0100",
		Address:  "1 Main St",
	})
	f.staff = repo.SeedUser(models.User{
		Username: "admin",
		Email:    "admin@example.com",
		IsStaff:  true,
	})
	return f
}

func ptr[T any](v T) *T { return &v }

func testLogger() *zap.Logger { return zap.NewNop() }
