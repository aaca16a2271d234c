// Package core provides the shared kernel for the council orchestration
// engine: logging and telemetry interfaces, the error taxonomy, state
// storage, and configuration.
//
// This file implements a Redis-backed Memory store. It is used for the
// provider health cache and as an optional backing store for the cost
// ledger, so that multiple council replicas observe the same provider
// state.
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore implements Memory on top of go-redis with key namespacing.
type RedisStore struct {
	client    *redis.Client
	namespace string
	logger    Logger
}

// RedisStoreOptions configures the Redis store
type RedisStoreOptions struct {
	RedisURL  string
	Namespace string // Key namespace for organization, e.g. "council:health"
	Logger    Logger // Optional logger
}

// NewRedisStore creates a new Redis-backed store with specified options
func NewRedisStore(opts RedisStoreOptions) (*RedisStore, error) {
	logger := opts.Logger
	if logger == nil {
		logger = &NoOpLogger{}
	}

	if opts.RedisURL == "" {
		logger.Error("Failed to initialize Redis store", map[string]interface{}{
			"error":      "Redis URL is required",
			"error_type": "ErrInvalidConfiguration",
		})
		return nil, fmt.Errorf("redis URL is required: %w", ErrInvalidConfiguration)
	}

	redisOpt, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		logger.Error("Failed to parse Redis URL", map[string]interface{}{
			"error":     err,
			"redis_url": opts.RedisURL,
		})
		return nil, fmt.Errorf("invalid Redis URL: %w", ErrInvalidConfiguration)
	}

	client := redis.NewClient(redisOpt)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error("Failed to connect to Redis", map[string]interface{}{
			"error":     err,
			"namespace": opts.Namespace,
		})
		return nil, fmt.Errorf("failed to connect to Redis: %w", ErrConnectionFailed)
	}

	rs := &RedisStore{
		client:    client,
		namespace: opts.Namespace,
		logger:    logger,
	}

	rs.logger.Info("Redis store connected", map[string]interface{}{
		"namespace": opts.Namespace,
	})

	return rs, nil
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	r.logger.Info("Closing Redis store connection", map[string]interface{}{
		"namespace": r.namespace,
	})
	return r.client.Close()
}

// formatKey formats a key with the namespace
func (r *RedisStore) formatKey(key string) string {
	if r.namespace != "" {
		return fmt.Sprintf("%s:%s", r.namespace, key)
	}
	return key
}

// Get retrieves a value. Missing keys return an empty string, matching
// the Memory contract.
func (r *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, r.formatKey(key)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

// Set stores a value with optional TTL
func (r *RedisStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, r.formatKey(key), value, ttl).Err()
}

// Delete removes a key
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.formatKey(key)).Err()
}

// Exists checks if a key exists
func (r *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.formatKey(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// HealthCheck verifies Redis connectivity
func (r *RedisStore) HealthCheck(ctx context.Context) error {
	err := r.client.Ping(ctx).Err()
	if err != nil {
		r.logger.Error("Redis health check failed", map[string]interface{}{
			"error":     err,
			"namespace": r.namespace,
		})
	}
	return err
}
