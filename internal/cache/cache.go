// Package cache exposes the current regime state through Redis so consumers
// that poll faster than the scoring cadence read a cheap key instead of
// hitting Postgres. The cache is advisory: a miss or a Redis outage degrades
// to the database, never to an error surfaced to the caller.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/breadthlab/regimed/internal/config"
	"github.com/breadthlab/regimed/internal/domain"
)

const stateKey = "regimed:state"

// StateCache stores the live RegimeState with a TTL.
type StateCache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(cfg config.RedisConfig) *StateCache {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,

		MaxRetries:      3,
		MinRetryBackoff: 100 * time.Millisecond,
		MaxRetryBackoff: 500 * time.Millisecond,
	})
	return &StateCache{client: client, ttl: cfg.StateTTL()}
}

// SetState publishes the held state. Failures are logged, not returned; the
// database copy stays authoritative.
func (c *StateCache) SetState(ctx context.Context, state domain.RegimeState) {
	payload, err := json.Marshal(state)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal regime state for cache")
		return
	}
	if err := c.client.Set(ctx, stateKey, payload, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Msg("Failed to cache regime state")
	}
}

// State returns the cached state and whether it was present.
func (c *StateCache) State(ctx context.Context) (domain.RegimeState, bool) {
	raw, err := c.client.Get(ctx, stateKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Msg("Regime state cache read failed")
		}
		return domain.RegimeState{}, false
	}

	var state domain.RegimeState
	if err := json.Unmarshal(raw, &state); err != nil {
		log.Warn().Err(err).Msg("Cached regime state unreadable, treating as miss")
		return domain.RegimeState{}, false
	}
	return state, true
}

// Ping verifies connectivity for health checks.
func (c *StateCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close releases the client pool.
func (c *StateCache) Close() error {
	return c.client.Close()
}
