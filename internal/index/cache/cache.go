// Package cache puts a Redis read-through cache in front of an index store.
//
// Only single-entry reads are cached. Every write goes to the backing store
// first and then evicts the cached entry, so a stale read lasts at most until
// the next write or the TTL. Redis failures never fail a call: reads fall
// back to the store, and a circuit breaker stops consulting Redis while it is
// unhealthy.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"shikkha/internal/index/models"
	"shikkha/internal/index/store"
	id "shikkha/pkg/domain"
	"shikkha/pkg/platform/circuit"
)

const keyPrefix = "index:cert:"

// Cached wraps a store.Store.
type Cached struct {
	store.Store
	client  *redis.Client
	ttl     time.Duration
	breaker *circuit.Breaker
	logger  *slog.Logger
}

type Option func(*Cached)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cached) {
		c.logger = logger
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Cached) {
		c.breaker = b
	}
}

func New(backing store.Store, client *redis.Client, ttl time.Duration, opts ...Option) *Cached {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c := &Cached{
		Store:   backing,
		client:  client,
		ttl:     ttl,
		breaker: circuit.New("index-cache"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func key(cid id.CertificateID) string {
	return keyPrefix + cid.String()
}

func (c *Cached) FindByID(ctx context.Context, cid id.CertificateID) (*models.Entry, error) {
	if !c.breaker.IsOpen() {
		raw, err := c.client.Get(ctx, key(cid)).Bytes()
		switch {
		case err == nil:
			var e models.Entry
			if jsonErr := json.Unmarshal(raw, &e); jsonErr == nil {
				c.recordSuccess()
				return &e, nil
			}
			c.logger.WarnContext(ctx, "discarding unreadable cached index entry", "certificate_id", cid.String())
		case errors.Is(err, redis.Nil):
			c.recordSuccess()
		default:
			c.recordFailure(ctx, err)
		}
	}

	e, err := c.Store.FindByID(ctx, cid)
	if err != nil {
		return nil, err
	}
	c.fill(ctx, e)
	return e, nil
}

func (c *Cached) Upsert(ctx context.Context, entry *models.Entry) error {
	if err := c.Store.Upsert(ctx, entry); err != nil {
		return err
	}
	c.evict(ctx, entry.CertificateID)
	return nil
}

func (c *Cached) Project(ctx context.Context, entry *models.Entry) (bool, error) {
	changed, err := c.Store.Project(ctx, entry)
	if err != nil {
		return false, err
	}
	if changed {
		c.evict(ctx, entry.CertificateID)
	}
	return changed, nil
}

func (c *Cached) MarkRevoked(ctx context.Context, cid id.CertificateID, at time.Time) error {
	if err := c.Store.MarkRevoked(ctx, cid, at); err != nil {
		return err
	}
	c.evict(ctx, cid)
	return nil
}

func (c *Cached) SetOrphaned(ctx context.Context, cid id.CertificateID, orphaned bool, at time.Time) error {
	if err := c.Store.SetOrphaned(ctx, cid, orphaned, at); err != nil {
		return err
	}
	c.evict(ctx, cid)
	return nil
}

// fill also tries Redis while the circuit is open.
func (c *Cached) fill(ctx context.Context, e *models.Entry) {
	raw, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key(e.CertificateID), raw, c.ttl).Err(); err != nil {
		c.recordFailure(ctx, err)
		return
	}
	c.recordSuccess()
}

func (c *Cached) evict(ctx context.Context, cid id.CertificateID) {
	if err := c.client.Del(ctx, key(cid)).Err(); err != nil {
		c.recordFailure(ctx, err)
		return
	}
	c.recordSuccess()
}

func (c *Cached) recordSuccess() {
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.Info("index cache recovered", "breaker", c.breaker.Name())
	}
}

func (c *Cached) recordFailure(ctx context.Context, err error) {
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.logger.WarnContext(ctx, "index cache disabled after repeated failures",
			"breaker", c.breaker.Name(),
			"error", err,
		)
	}
}
