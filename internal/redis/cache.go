package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/creature-backend/internal/config"
	"github.com/creature-backend/internal/domain"
)

// PlayerCache provides a Redis-backed read cache of player documents keyed
// by player_id. It is an optimization only: every mutation invalidates the
// cached entry and the store remains the source of truth.
type PlayerCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewPlayerCache creates a new Redis player cache
func NewPlayerCache(cfg *config.CacheConfig, logger *slog.Logger) (*PlayerCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &PlayerCache{
		client: client,
		ttl:    cfg.TTL,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (c *PlayerCache) Close() error {
	return c.client.Close()
}

// playerKey returns the Redis key for a cached player document
func (c *PlayerCache) playerKey(playerID string) string {
	return fmt.Sprintf("player:%s:doc", playerID)
}

// Get returns the cached player document, or nil on a miss
func (c *PlayerCache) Get(ctx context.Context, playerID string) (*domain.Player, error) {
	doc, err := c.client.Get(ctx, c.playerKey(playerID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting cached player: %w", err)
	}

	var player domain.Player
	if err := json.Unmarshal(doc, &player); err != nil {
		// A corrupt entry is treated as a miss
		c.logger.Warn("dropping corrupt cache entry", "player_id", playerID, "error", err)
		c.client.Del(ctx, c.playerKey(playerID))
		return nil, nil
	}
	return &player, nil
}

// Set caches a player document with the configured TTL
func (c *PlayerCache) Set(ctx context.Context, player *domain.Player) error {
	doc, err := json.Marshal(player)
	if err != nil {
		return fmt.Errorf("marshaling player for cache: %w", err)
	}
	if err := c.client.Set(ctx, c.playerKey(player.PlayerID), doc, c.ttl).Err(); err != nil {
		return fmt.Errorf("caching player: %w", err)
	}
	return nil
}

// Invalidate drops the cached document for a player
func (c *PlayerCache) Invalidate(ctx context.Context, playerID string) error {
	if err := c.client.Del(ctx, c.playerKey(playerID)).Err(); err != nil {
		return fmt.Errorf("invalidating cached player: %w", err)
	}
	return nil
}
