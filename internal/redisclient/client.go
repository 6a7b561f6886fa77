package redisclient

import (
	"context"
	"crypto/rand"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"shop-service/internal/models"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
}

// NewClient creates a new Redis client with the lock script loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func productKey(productID int64) string {
	return fmt.Sprintf("product:%d", productID)
}

func lockKey(name string) string {
	return fmt.Sprintf("lock:%s", name)
}

// ProductCache stores product detail documents as JSON with a TTL.
type ProductCache struct {
	client *Client
	ttl    time.Duration
}

func NewProductCache(client *Client, ttl time.Duration) *ProductCache {
	return &ProductCache{client: client, ttl: ttl}
}

// Get returns the cached product, or ok=false on a miss.
func (p *ProductCache) Get(ctx context.Context, productID int64) (*models.ProductDetail, bool, error) {
	raw, err := p.client.rdb.Get(ctx, productKey(productID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}

	var detail models.ProductDetail
	if err := json.Unmarshal(raw, &detail); err != nil {
		return nil, false, fmt.Errorf("cache decode: %w", err)
	}
	return &detail, true, nil
}

func (p *ProductCache) Set(ctx context.Context, detail *models.ProductDetail) error {
	raw, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	return p.client.rdb.Set(ctx, productKey(detail.ID), raw, p.ttl).Err()
}

func (p *ProductCache) Invalidate(ctx context.Context, productID int64) error {
	return p.client.rdb.Del(ctx, productKey(productID)).Err()
}

// Locker hands out owner-tokened locks backed by SET NX.
type Locker struct {
	client *Client
}

func NewLocker(client *Client) *Locker {
	return &Locker{client: client}
}

// Acquire tries to take the named lock. The returned token must be passed
// to Release; ok is false when somebody else holds the lock.
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (token string, ok bool, err error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", false, fmt.Errorf("lock token: %w", err)
	}
	token = hex.EncodeToString(buf)

	ok, err = l.client.rdb.SetNX(ctx, lockKey(name), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return token, ok, nil
}

// Release drops the lock only if token still owns it
func (l *Locker) Release(ctx context.Context, name, token string) error {
	_, err := l.client.releaseScript.Run(ctx, l.client.rdb, []string{lockKey(name)}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}
