package store

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certify/internal/certificate/models"
	"certify/pkg/platform/sentinel"
)

type countingObserver struct {
	outcomes map[string]int
}

func (o *countingObserver) IncrementCacheLookup(outcome string) {
	o.outcomes[outcome]++
}

// An unreachable Redis must never make a stored certificate unverifiable.
func TestRedisCacheFallsBackWhenRedisIsDown(t *testing.T) {
	backend := NewInMemoryStore()
	ctx := context.Background()
	require.NoError(t, backend.Insert(ctx, newRecord("PSU-down0001", time.Now().UTC())))

	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	observer := &countingObserver{outcomes: map[string]int{}}
	cache := NewRedisCache(backend, client, time.Minute,
		WithCacheLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithCacheObserver(observer),
	)

	found, err := cache.FindByNumber(ctx, "PSU-down0001")
	require.NoError(t, err)
	assert.Equal(t, "Amina Yusuf", found.StudentName)

	_, err = cache.FindByNumber(ctx, "PSU-missing1")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	assert.Equal(t, 2, observer.outcomes["error"])
}

type blockingBackend struct {
	*InMemoryStore
	entered chan struct{}
	release chan struct{}
}

func (b *blockingBackend) FindByNumber(ctx context.Context, number models.CertificateNumber) (*models.CertificateRecord, error) {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	<-b.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.InMemoryStore.FindByNumber(ctx, number)
}

// A caller that gives up must not fail the lookups collapsed onto its flight.
func TestRedisCacheCancelledCallerDoesNotFailSharedLoad(t *testing.T) {
	backend := &blockingBackend{
		InMemoryStore: NewInMemoryStore(),
		entered:       make(chan struct{}, 1),
		release:       make(chan struct{}),
	}
	require.NoError(t, backend.Insert(context.Background(), newRecord("PSU-share001", time.Now().UTC())))

	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	cache := NewRedisCache(backend, client, time.Minute,
		WithCacheLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cache.FindByNumber(firstCtx, "PSU-share001")
		firstErr <- err
	}()
	<-backend.entered

	type result struct {
		record *models.CertificateRecord
		err    error
	}
	second := make(chan result, 1)
	go func() {
		record, err := cache.FindByNumber(context.Background(), "PSU-share001")
		second <- result{record, err}
	}()

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)
	close(backend.release)

	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, "Amina Yusuf", got.record.StudentName)
}
