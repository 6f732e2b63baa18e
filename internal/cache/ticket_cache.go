// Package cache provides a Redis-backed read-through cache for ticket
// projections. Every operation degrades to a no-op when Redis is absent,
// so callers never branch on cache availability.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/devdesk/ticket-lifecycle/internal/domain"
)

const keyPrefix = "ticket:"

// TicketCache stores ticket snapshots keyed by id.
type TicketCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewTicketCache instantiates the cache. A nil client disables it.
func NewTicketCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *TicketCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketCache{client: client, ttl: ttl, logger: logger}
}

// Get returns the cached ticket, or nil on miss or any cache failure.
// Cache errors never propagate; the caller falls through to the store.
func (c *TicketCache) Get(ctx context.Context, id string) *domain.Ticket {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := c.client.Get(ctx, keyPrefix+id).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Debug("ticket cache read failed", zap.String("ticket_id", id), zap.Error(err))
		}
		return nil
	}
	var ticket domain.Ticket
	if err := json.Unmarshal(raw, &ticket); err != nil {
		c.logger.Debug("ticket cache entry corrupt", zap.String("ticket_id", id), zap.Error(err))
		return nil
	}
	return &ticket
}

// Put stores the ticket snapshot under the configured TTL.
func (c *TicketCache) Put(ctx context.Context, ticket *domain.Ticket) {
	if c == nil || c.client == nil || ticket == nil {
		return
	}
	raw, err := json.Marshal(ticket)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, keyPrefix+ticket.ID, raw, c.ttl).Err(); err != nil {
		c.logger.Debug("ticket cache write failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
}

// Invalidate drops the cached snapshot after a mutation.
func (c *TicketCache) Invalidate(ctx context.Context, id string) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, keyPrefix+id).Err(); err != nil {
		c.logger.Debug("ticket cache invalidation failed", zap.String("ticket_id", id), zap.Error(err))
	}
}
