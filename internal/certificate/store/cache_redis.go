package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"certify/internal/certificate/models"
)

const loadTimeout = 5 * time.Second

// Backend is the store a cache sits in front of.
type Backend interface {
	Insert(ctx context.Context, record *models.CertificateRecord) error
	FindByInternalID(ctx context.Context, internalID models.InternalID) (*models.CertificateRecord, error)
	FindByNumber(ctx context.Context, number models.CertificateNumber) (*models.CertificateRecord, error)
	ListAll(ctx context.Context) ([]*models.CertificateRecord, error)
	Count(ctx context.Context) (int, error)
}

// CacheObserver receives hit/miss/error outcomes. *metrics.Metrics satisfies it.
type CacheObserver interface {
	IncrementCacheLookup(outcome string)
}

// RedisCache is a read-through cache for single-record lookups. Records are
// immutable, so a cached entry can never be stale. Only found records are
// cached: a number issued a moment ago must resolve on its first lookup.
// Redis failures fall through to the backend.
type RedisCache struct {
	next     Backend
	client   redis.UniversalClient
	ttl      time.Duration
	logger   *slog.Logger
	observer CacheObserver
	group    singleflight.Group
}

type CacheOption func(*RedisCache)

func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *RedisCache) {
		c.logger = logger
	}
}

func WithCacheObserver(o CacheObserver) CacheOption {
	return func(c *RedisCache) {
		c.observer = o
	}
}

func NewRedisCache(next Backend, client redis.UniversalClient, ttl time.Duration, opts ...CacheOption) *RedisCache {
	c := &RedisCache{next: next, client: client, ttl: ttl, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func numberKey(n models.CertificateNumber) string { return "certify:cert:number:" + string(n) }

func idKey(internalID models.InternalID) string { return "certify:cert:id:" + internalID.String() }

// Insert writes through to the backend only. Lookups populate the cache.
func (c *RedisCache) Insert(ctx context.Context, record *models.CertificateRecord) error {
	return c.next.Insert(ctx, record)
}

func (c *RedisCache) FindByNumber(ctx context.Context, number models.CertificateNumber) (*models.CertificateRecord, error) {
	return c.readThrough(ctx, numberKey(number), func(ctx context.Context) (*models.CertificateRecord, error) {
		return c.next.FindByNumber(ctx, number)
	})
}

func (c *RedisCache) FindByInternalID(ctx context.Context, internalID models.InternalID) (*models.CertificateRecord, error) {
	return c.readThrough(ctx, idKey(internalID), func(ctx context.Context) (*models.CertificateRecord, error) {
		return c.next.FindByInternalID(ctx, internalID)
	})
}

// ListAll and Count always hit the backend; they change with every issuance.
func (c *RedisCache) ListAll(ctx context.Context) ([]*models.CertificateRecord, error) {
	return c.next.ListAll(ctx)
}

func (c *RedisCache) Count(ctx context.Context) (int, error) {
	return c.next.Count(ctx)
}

func (c *RedisCache) readThrough(
	ctx context.Context,
	key string,
	load func(context.Context) (*models.CertificateRecord, error),
) (*models.CertificateRecord, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var record models.CertificateRecord
		if jsonErr := json.Unmarshal(raw, &record); jsonErr == nil {
			c.observe("hit")
			return &record, nil
		}
		c.logger.WarnContext(ctx, "discarding undecodable cache entry", "key", key)
	case errors.Is(err, redis.Nil):
		c.observe("miss")
	default:
		c.observe("error")
		c.logger.WarnContext(ctx, "certificate cache unavailable, reading backend",
			"key", key,
			"error", err,
		)
	}

	// the flight outlives any one caller so a cancelled request cannot fail the
	// others collapsed onto it
	ch := c.group.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		record, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		c.fill(loadCtx, key, record)
		return record, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		// callers sharing a flight must not share a pointer
		return res.Val.(*models.CertificateRecord).Clone(), nil
	}
}

func (c *RedisCache) fill(ctx context.Context, key string, record *models.CertificateRecord) {
	payload, err := json.Marshal(record)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "failed to populate certificate cache",
			"key", key,
			"error", err,
		)
	}
}

func (c *RedisCache) observe(outcome string) {
	if c.observer != nil {
		c.observer.IncrementCacheLookup(outcome)
	}
}
