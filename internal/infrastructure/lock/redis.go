// Package lock provides the distributed locks that serialize auto-match
// runs per tenant.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	appreconciliation "github.com/erp/reconciliation/internal/application/reconciliation"
	"github.com/erp/reconciliation/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultKeyPrefix = "lock:"

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisLocker implements Locker with bsm/redislock
type RedisLocker struct {
	client    *redislock.Client
	keyPrefix string
	logger    *zap.Logger
}

// RedisLockerOption configures a RedisLocker
type RedisLockerOption func(*RedisLocker)

// WithKeyPrefix overrides the "lock:" key prefix
func WithKeyPrefix(prefix string) RedisLockerOption {
	return func(l *RedisLocker) {
		l.keyPrefix = prefix
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) RedisLockerOption {
	return func(l *RedisLocker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewRedisLocker creates a locker over an existing client
func NewRedisLocker(client redis.UniversalClient, opts ...RedisLockerOption) *RedisLocker {
	l := &RedisLocker{
		client:    redislock.New(client),
		keyPrefix: defaultKeyPrefix,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Obtain tries once to take key for ttl. A key held by someone else yields
// ErrLockNotObtained.
func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (appreconciliation.Lock, error) {
	lk, err := l.client.Obtain(ctx, l.keyPrefix+key, ttl, &redislock.Options{
		RetryStrategy: redislock.NoRetry(),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		l.logger.Debug("lock held elsewhere", zap.String("key", key))
		return nil, appreconciliation.ErrLockNotObtained
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return &redisLock{lock: lk}, nil
}

type redisLock struct {
	lock *redislock.Lock
}

func (r *redisLock) Refresh(ctx context.Context, ttl time.Duration) error {
	err := r.lock.Refresh(ctx, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return appreconciliation.ErrLockNotObtained
	}
	return err
}

// Release is idempotent; releasing an expired lock is not an error.
func (r *redisLock) Release(ctx context.Context) error {
	err := r.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return nil
	}
	return err
}

var _ appreconciliation.Locker = (*RedisLocker)(nil)
