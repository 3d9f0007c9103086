package bucket

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"certify/internal/ratelimit/models"
)

const (
	testLimit  = 10
	testWindow = time.Minute
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	clock time.Time
	ctx   context.Context
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.clock = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s.store.now = func() time.Time { return s.clock }
	s.ctx = context.Background()
}

func (s *InMemoryStoreSuite) advance(d time.Duration) {
	s.clock = s.clock.Add(d)
}

func (s *InMemoryStoreSuite) TestAllow() {
	s.Run("first request allowed", func() {
		result, err := s.store.Allow(s.ctx, "ip:first", testLimit, testWindow)
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.Equal(testLimit, result.Limit)
		s.Equal(testLimit-1, result.Remaining)
		s.Zero(result.RetryAfter)
	})

	s.Run("requests up to limit allowed", func() {
		var result *models.Result
		var err error
		for range testLimit {
			result, err = s.store.Allow(s.ctx, "ip:limit", testLimit, testWindow)
		}
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.Equal(0, result.Remaining)
	})

	s.Run("request over limit denied with retry hint", func() {
		for range testLimit {
			_, err := s.store.Allow(s.ctx, "ip:over", testLimit, testWindow)
			s.Require().NoError(err)
		}
		s.advance(20 * time.Second)
		result, err := s.store.Allow(s.ctx, "ip:over", testLimit, testWindow)
		s.Require().NoError(err)
		s.False(result.Allowed)
		s.Equal(testLimit, result.Limit)
		s.Equal(0, result.Remaining)
		s.Equal(40, result.RetryAfter)
	})
}

func (s *InMemoryStoreSuite) TestWindowSlides() {
	for range testLimit {
		_, err := s.store.Allow(s.ctx, "ip:slide", testLimit, testWindow)
		s.Require().NoError(err)
	}
	s.advance(testWindow - time.Second)
	result, _ := s.store.Allow(s.ctx, "ip:slide", testLimit, testWindow)
	s.False(result.Allowed, "still inside the window")

	s.advance(time.Second)
	result, _ = s.store.Allow(s.ctx, "ip:slide", testLimit, testWindow)
	s.True(result.Allowed, "oldest requests have left the window")
}

func (s *InMemoryStoreSuite) TestKeysAreIndependent() {
	for range testLimit {
		_, _ = s.store.Allow(s.ctx, "ip:a", testLimit, testWindow)
	}
	result, _ := s.store.Allow(s.ctx, "ip:b", testLimit, testWindow)
	s.True(result.Allowed)
}

func (s *InMemoryStoreSuite) TestSweep() {
	_, _ = s.store.Allow(s.ctx, "ip:old", testLimit, testWindow)
	s.advance(30 * time.Second)
	_, _ = s.store.Allow(s.ctx, "ip:new", testLimit, testWindow)
	s.advance(31 * time.Second)

	s.Equal(1, s.store.Sweep())
	s.Len(s.store.buckets, 1)
}

func (s *InMemoryStoreSuite) TestConcurrentAllowNeverExceedsLimit() {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.store.Allow(s.ctx, "ip:race", testLimit, testWindow)
			if err == nil && result.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	s.Equal(testLimit, allowed)
}

type failingStore struct{}

func (failingStore) Allow(context.Context, string, int, time.Duration) (*models.Result, error) {
	return nil, errors.New("redis: connection refused")
}

func TestFallbackStoreUsesSecondaryOnError(t *testing.T) {
	secondary := NewInMemoryStore()
	f := NewFallbackStore(failingStore{}, secondary, slog.New(slog.NewTextHandler(io.Discard, nil)))

	result, err := f.Allow(context.Background(), "ip:x", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	result, err = f.Allow(context.Background(), "ip:x", 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, result.Allowed, "secondary still enforces the limit")
}
