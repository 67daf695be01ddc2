package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/claim_key.lua
var claimKeyScript string

//go:embed scripts/release_lock.lua
var releaseLockScript string

// PendingValue marks an idempotency key whose first delivery is still being persisted.
const PendingValue = "pending"

type Client struct {
	rdb           *redis.Client
	claimScript   *redis.Script
	releaseScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
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
		claimScript:   redis.NewScript(claimKeyScript),
		releaseScript: redis.NewScript(releaseLockScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks Redis connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}

// ClaimIdempotencyKey atomically claims key for ttl. When the key is already
// held it returns false together with the value stored under it.
func (c *Client) ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, string, error) {
	res, err := c.claimScript.Run(ctx, c.rdb, []string{idempotencyKey(key)},
		PendingValue, ttl.Milliseconds()).Result()
	if err != nil {
		return false, "", fmt.Errorf("claim idempotency script failed: %w", err)
	}

	return decodeClaim(res)
}

// decodeClaim reads the {claimed, value} pair returned by the claim script.
func decodeClaim(res interface{}) (bool, string, error) {
	pair, ok := res.([]interface{})
	if !ok || len(pair) != 2 {
		return false, "", fmt.Errorf("unexpected claim script result %T", res)
	}
	claimed, ok := pair[0].(int64)
	if !ok {
		return false, "", fmt.Errorf("unexpected claim flag %T", pair[0])
	}
	value, ok := pair[1].(string)
	if !ok {
		return false, "", fmt.Errorf("unexpected claim value %T", pair[1])
	}
	return claimed == 1, value, nil
}

// SetIdempotencyKey stores the final value of a claimed key, keeping ttl
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.rdb.Set(ctx, idempotencyKey(key), value, ttl).Err()
}

// ReleaseIdempotencyKey drops a claim whose delivery failed so a retry can proceed.
func (c *Client) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, idempotencyKey(key)).Err()
}

// ErrLockHeld is returned by AcquireLock when another owner holds the lock.
var ErrLockHeld = errors.New("lock held by another owner")

// Lock is a held distributed lock.
type Lock struct {
	client *Client
	key    string
	token  string
}

// AcquireLock acquires a distributed lock owned by a random token.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (*Lock, error) {
	key := fmt.Sprintf("lock:%s", lockKey)
	token := uuid.New().String()

	ok, err := c.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lock{client: c, key: key, token: token}, nil
}

// Release releases the lock if it is still owned by this holder.
func (l *Lock) Release(ctx context.Context) error {
	_, err := l.client.releaseScript.Run(ctx, l.client.rdb, []string{l.key}, l.token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}

// TryWithLock runs fn while holding lockKey. It returns false without
// running fn when the lock is held elsewhere.
func (c *Client) TryWithLock(ctx context.Context, lockKey string, ttl time.Duration, fn func(context.Context) error) (bool, error) {
	lock, err := c.AcquireLock(ctx, lockKey, ttl)
	if errors.Is(err, ErrLockHeld) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", lockKey, err)
	}
	defer lock.Release(context.Background())

	return true, fn(ctx)
}
