// Package publisher fans audit events out to a Store without making request
// paths wait on sink I/O.
//
// In async mode events go through a bounded buffer drained by one goroutine.
// A full buffer drops the event and counts it; callers are never blocked.
// A circuit breaker sheds events while the sink keeps failing, and an
// optional Sampler thins out operations events before they are queued.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	audit "certify/pkg/platform/audit"
)

var (
	ErrBufferFull = errors.New("audit buffer full")
	ErrClosed     = errors.New("audit publisher closed")
)

const sinkTimeout = 5 * time.Second

type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
	breaker *CircuitBreaker
	sampler *Sampler

	bufferSize int
	inbox      chan audit.Event
	done       chan struct{}

	mu     sync.RWMutex
	closed bool
}

type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to async mode with a buffer of n events.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		p.bufferSize = n
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(p *Publisher) {
		p.breaker = cb
	}
}

func WithSampler(s *Sampler) Option {
	return func(p *Publisher) {
		p.sampler = s
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:   store,
		logger:  slog.Default(),
		breaker: NewCircuitBreaker(5, 30*time.Second),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufferSize > 0 {
		p.inbox = make(chan audit.Event, p.bufferSize)
		p.done = make(chan struct{})
		go p.drain()
	}
	return p
}

// Emit records an event. In async mode it returns ErrBufferFull instead of
// waiting when the buffer is saturated.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	if p.sampler != nil && event.Category == audit.CategoryOperations && !p.sampler.Keep(event.Action) {
		if p.metrics != nil {
			p.metrics.IncDropped("sampled")
		}
		return nil
	}

	if p.inbox == nil {
		return p.deliver(ctx, event)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case p.inbox <- event:
		return nil
	default:
		if p.metrics != nil {
			p.metrics.IncDropped("buffer_full")
		}
		p.logger.WarnContext(ctx, "audit event dropped",
			"action", event.Action,
			"reason", "buffer_full",
		)
		return ErrBufferFull
	}
}

func (p *Publisher) drain() {
	defer close(p.done)
	for event := range p.inbox {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		_ = p.deliver(ctx, event)
		cancel()
	}
}

func (p *Publisher) deliver(ctx context.Context, event audit.Event) error {
	if !p.breaker.Allow() {
		if p.metrics != nil {
			p.metrics.IncDropped("circuit_open")
		}
		return nil
	}

	if err := p.store.Append(ctx, event); err != nil {
		p.breaker.RecordFailure()
		if p.metrics != nil {
			p.metrics.IncPersistFailures()
			p.metrics.SetCircuitBreakerState(p.breaker.IsOpen())
		}
		p.logger.ErrorContext(ctx, "audit sink append failed",
			"action", event.Action,
			"subject", event.Subject,
			"error", err,
		)
		return err
	}

	p.breaker.RecordSuccess()
	if p.metrics != nil {
		p.metrics.IncPublished(string(event.Category))
		p.metrics.SetCircuitBreakerState(false)
	}
	return nil
}

// Close stops accepting events and waits for buffered ones to reach the store.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.inbox != nil {
		close(p.inbox)
	}
	p.mu.Unlock()

	if p.done != nil {
		<-p.done
	}
	return nil
}

// Pending reports how many events are buffered and not yet delivered.
func (p *Publisher) Pending() int {
	if p.inbox == nil {
		return 0
	}
	return len(p.inbox)
}
