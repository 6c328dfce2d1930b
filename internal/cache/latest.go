// Package cache keeps the most recent reading of each sensor type in redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ev-monitor/backend/internal/config"
	"github.com/ev-monitor/backend/internal/monitoring"
	"github.com/go-redis/redis/v8"
)

// ErrCacheMiss is returned when no reading is cached for a sensor type
var ErrCacheMiss = errors.New("cache miss")

const keyPrefix = "ev-monitor:sensor:latest:"

// LatestReading is a reading together with the band it was classified into
type LatestReading struct {
	Reading monitoring.SensorReading `json:"reading"`
	Band    monitoring.Band          `json:"band"`
}

// LatestStore abstracts the latest-reading cache so services can run without redis
type LatestStore interface {
	Get(ctx context.Context, sensorType monitoring.SensorType) (*LatestReading, error)
	Set(ctx context.Context, latest LatestReading) error
}

// NewRedisClient creates a redis client from configuration
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// RedisLatestStore implements LatestStore on go-redis
type RedisLatestStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLatestStore creates a store; ttl <= 0 keeps entries until overwritten
func NewRedisLatestStore(client *redis.Client, ttl time.Duration) *RedisLatestStore {
	return &RedisLatestStore{client: client, ttl: ttl}
}

// Ping checks the redis connection
func (s *RedisLatestStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Get returns the cached reading of sensorType
func (s *RedisLatestStore) Get(ctx context.Context, sensorType monitoring.SensorType) (*LatestReading, error) {
	val, err := s.client.Get(ctx, keyPrefix+string(sensorType)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to read latest %s: %w", sensorType, err)
	}

	var latest LatestReading
	if err := json.Unmarshal(val, &latest); err != nil {
		return nil, fmt.Errorf("failed to decode latest %s: %w", sensorType, err)
	}
	return &latest, nil
}

// Set stores latest unless a newer reading of the same type is already cached
func (s *RedisLatestStore) Set(ctx context.Context, latest LatestReading) error {
	current, err := s.Get(ctx, latest.Reading.SensorType)
	if err == nil && current.Reading.Timestamp.After(latest.Reading.Timestamp) {
		return nil
	}

	payload, err := json.Marshal(latest)
	if err != nil {
		return fmt.Errorf("failed to encode latest reading: %w", err)
	}

	ttl := s.ttl
	if ttl < 0 {
		ttl = 0
	}
	return s.client.Set(ctx, keyPrefix+string(latest.Reading.SensorType), payload, ttl).Err()
}

// Close closes the redis connection
func (s *RedisLatestStore) Close() error {
	return s.client.Close()
}
