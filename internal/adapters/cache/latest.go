package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"spotstore/internal/domain"
	"spotstore/internal/ports"
)

// kv is the subset of *redis.Client the cache needs.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

// LatestCache is a ports.LatestRepository that keeps single-symbol lookups in
// Redis. Writes go to the wrapped repository first and then drop the cached
// keys they touched. Redis failures are logged, never returned.
type LatestCache struct {
	ports.LatestRepository
	client kv
	table  string
	ttl    time.Duration
	logger ports.Logger
}

// NewLatestCache wraps repo. table namespaces the keys so stores with
// different latest intervals can share one Redis database.
func NewLatestCache(repo ports.LatestRepository, client kv, table string, ttl time.Duration, logger ports.Logger) *LatestCache {
	if logger == nil {
		logger = ports.NopLogger{}
	}
	return &LatestCache{
		LatestRepository: repo,
		client:           client,
		table:            table,
		ttl:              ttl,
		logger:           logger,
	}
}

func (c *LatestCache) key(symbol string) string {
	return fmt.Sprintf("spotstore:latest:%s:%s", c.table, symbol)
}

// FindLatest serves from Redis when possible and fills the key on a miss.
func (c *LatestCache) FindLatest(ctx context.Context, symbol string) (*domain.LatestSnapshot, error) {
	key := c.key(symbol)
	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var snap domain.LatestSnapshot
		jsonErr := json.Unmarshal(data, &snap)
		if jsonErr == nil {
			return &snap, nil
		}
		c.logger.Warn(ctx, "Discarding undecodable cached snapshot", map[string]interface{}{"key": key, "error": jsonErr.Error()})
	case !errors.Is(err, redis.Nil):
		c.logger.Warn(ctx, "Latest cache read failed", map[string]interface{}{"key": key, "error": err.Error()})
	}

	snap, err := c.LatestRepository.FindLatest(ctx, symbol)
	if err != nil {
		return nil, err
	}

	data, err = json.Marshal(snap)
	if err != nil {
		c.logger.Warn(ctx, "Failed to encode snapshot for cache", map[string]interface{}{"key": key, "error": err.Error()})
		return snap, nil
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn(ctx, "Latest cache write failed", map[string]interface{}{"key": key, "error": err.Error()})
	}
	return snap, nil
}

// InsertLatest writes through and invalidates the inserted symbols.
func (c *LatestCache) InsertLatest(ctx context.Context, snaps ...domain.LatestSnapshot) error {
	if err := c.LatestRepository.InsertLatest(ctx, snaps...); err != nil {
		return err
	}
	c.invalidate(ctx, snapshotSymbols(snaps))
	return nil
}

// UpsertLatest writes through and invalidates the upserted symbols.
func (c *LatestCache) UpsertLatest(ctx context.Context, snaps ...domain.LatestSnapshot) error {
	if err := c.LatestRepository.UpsertLatest(ctx, snaps...); err != nil {
		return err
	}
	c.invalidate(ctx, snapshotSymbols(snaps))
	return nil
}

// SetActive writes through and invalidates every symbol in status.
func (c *LatestCache) SetActive(ctx context.Context, status map[string]bool) (int64, error) {
	n, err := c.LatestRepository.SetActive(ctx, status)
	if err != nil {
		return n, err
	}
	symbols := make([]string, 0, len(status))
	for s := range status {
		symbols = append(symbols, s)
	}
	c.invalidate(ctx, symbols)
	return n, nil
}

func (c *LatestCache) invalidate(ctx context.Context, symbols []string) {
	if len(symbols) == 0 {
		return
	}
	keys := make([]string, len(symbols))
	for i, s := range symbols {
		keys[i] = c.key(s)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn(ctx, "Latest cache invalidation failed", map[string]interface{}{"keys": keys, "error": err.Error()})
	}
}

func snapshotSymbols(snaps []domain.LatestSnapshot) []string {
	out := make([]string, len(snaps))
	for i, s := range snaps {
		out[i] = s.Symbol
	}
	return out
}
