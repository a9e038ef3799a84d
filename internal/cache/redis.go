// Package cache keeps each organization's current alert set in Redis so
// API replicas and dashboards read it without touching the database.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/repsync/internal/core"
)

// DefaultKeyPrefix namespaces every key written by AlertCache.
const DefaultKeyPrefix = "repsync"

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int

	// KeyPrefix defaults to DefaultKeyPrefix.
	KeyPrefix string

	// TTL expires alert sets that are not refreshed. Zero keeps them until
	// replaced.
	TTL time.Duration

	// ConnectTimeout bounds the retries of the initial ping. Zero means a
	// single attempt.
	ConnectTimeout time.Duration
}

// AlertCache is a core.AlertSink backed by Redis.
type AlertCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ core.AlertSink = (*AlertCache)(nil)

// Open connects to Redis and pings it, retrying with exponential backoff.
func Open(ctx context.Context, opts Options) (*AlertCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = opts.ConnectTimeout
	var policy backoff.BackOff = bo
	if opts.ConnectTimeout <= 0 {
		policy = backoff.WithMaxRetries(bo, 0)
	}

	err := backoff.RetryNotify(func() error {
		return client.Ping(ctx).Err()
	}, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
		slog.Warn("redis not ready, retrying", "addr", opts.Addr, "error", err, "wait", wait)
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", opts.Addr, err)
	}

	slog.Info("redis alert cache connected", "addr", opts.Addr, "db", opts.DB)
	return New(client, opts.KeyPrefix, opts.TTL), nil
}

// New wraps an existing client.
func New(client *redis.Client, prefix string, ttl time.Duration) *AlertCache {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &AlertCache{client: client, prefix: prefix, ttl: ttl}
}

// AlertsKey returns the key holding an organization's alert set.
func AlertsKey(prefix, orgCode string) string {
	return fmt.Sprintf("%s:alerts:%s", prefix, orgCode)
}

// ReplaceAlerts overwrites the organization's alert set with one SET, so
// readers see either the old or the new set.
func (c *AlertCache) ReplaceAlerts(ctx context.Context, orgCode string, alerts []core.Alert) error {
	if alerts == nil {
		alerts = []core.Alert{}
	}
	payload, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("marshal alerts: %w", err)
	}
	if err := c.client.Set(ctx, AlertsKey(c.prefix, orgCode), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set alerts %s: %w", orgCode, err)
	}
	return nil
}

// Alerts returns the cached set; a missing key is an empty set.
func (c *AlertCache) Alerts(ctx context.Context, orgCode string) ([]core.Alert, error) {
	payload, err := c.client.Get(ctx, AlertsKey(c.prefix, orgCode)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get alerts %s: %w", orgCode, err)
	}
	var alerts []core.Alert
	if err := json.Unmarshal(payload, &alerts); err != nil {
		return nil, fmt.Errorf("decode alerts %s: %w", orgCode, err)
	}
	return alerts, nil
}

// Ping checks the connection. Used by the health endpoint.
func (c *AlertCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the client.
func (c *AlertCache) Close() error {
	return c.client.Close()
}
