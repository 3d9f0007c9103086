package bucket

import (
	"context"
	"log/slog"
	"time"

	"certify/internal/ratelimit/models"
)

type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error)
}

// FallbackStore answers from secondary whenever primary fails, so a Redis
// outage degrades limiting to per-instance instead of switching it off.
type FallbackStore struct {
	primary   Store
	secondary Store
	logger    *slog.Logger
}

func NewFallbackStore(primary, secondary Store, logger *slog.Logger) *FallbackStore {
	return &FallbackStore{primary: primary, secondary: secondary, logger: logger}
}

func (f *FallbackStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error) {
	result, err := f.primary.Allow(ctx, key, limit, window)
	if err == nil {
		return result, nil
	}
	f.logger.WarnContext(ctx, "primary rate limit store failed, using local fallback", "error", err)
	return f.secondary.Allow(ctx, key, limit, window)
}
