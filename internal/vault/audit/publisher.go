package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"receiptvault/internal/sentinel"
	"receiptvault/internal/vault/models"
	dErrors "receiptvault/pkg/domain-errors"
	"receiptvault/pkg/platform/circuit"
)

// Sink persists or streams audit events.
type Sink interface {
	Append(ctx context.Context, event models.Event) error
}

// Publisher forwards events to a Sink, either inline or from a background
// goroutine fed by a bounded queue.
type Publisher struct {
	sink    Sink
	events  chan models.Event
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	logger  *slog.Logger
	metrics *Metrics
	breaker *circuit.Breaker
	async   bool
}

// PublisherOption configures the Publisher.
type PublisherOption func(*Publisher)

// WithAsyncBuffer enables async processing with the specified buffer size.
// Events are queued and persisted in a background goroutine.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.events = make(chan models.Event, size)
			p.async = true
		}
	}
}

// WithPublisherLogger sets a logger for async error reporting.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithPublisherMetrics records queue and delivery metrics.
func WithPublisherMetrics(m *Metrics) PublisherOption {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithBreaker tracks consecutive sink failures; Check reports the sink as
// unavailable while the breaker is open.
func WithBreaker(b *circuit.Breaker) PublisherOption {
	return func(p *Publisher) {
		p.breaker = b
	}
}

func NewPublisher(sink Sink, opts ...PublisherOption) *Publisher {
	p := &Publisher{sink: sink}
	for _, opt := range opts {
		opt(p)
	}
	if p.async {
		p.wg.Add(1)
		go p.processEvents()
	}
	return p
}

// processEvents runs in a goroutine and persists events from the channel.
func (p *Publisher) processEvents() {
	defer p.wg.Done()
	for event := range p.events {
		if p.metrics != nil {
			p.metrics.QueueDepth.Set(float64(len(p.events)))
		}
		p.deliver(context.Background(), event)
	}
}

func (p *Publisher) deliver(ctx context.Context, event models.Event) error {
	start := time.Now()
	err := p.sink.Append(ctx, event)
	if p.metrics != nil {
		p.metrics.PersistDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			p.metrics.PersistFailures.Inc()
		} else {
			p.metrics.EventsProcessed.Inc()
		}
	}
	p.track(err)
	if err != nil && p.logger != nil {
		p.logger.Error("failed to persist audit event",
			"error", err,
			"seq", event.Seq,
			"event_type", string(event.Type),
			"artifact_id", event.ArtifactID,
		)
	}
	return err
}

func (p *Publisher) track(err error) {
	if p.breaker == nil {
		return
	}
	var change circuit.StateChange
	if err != nil {
		change = p.breaker.RecordFailure()
	} else {
		change = p.breaker.RecordSuccess()
	}
	if p.logger == nil {
		return
	}
	switch {
	case change.Opened:
		p.logger.Warn("audit sink degraded", "breaker", p.breaker.Name())
	case change.Closed:
		p.logger.Info("audit sink recovered", "breaker", p.breaker.Name())
	}
}

// Check fails while the sink breaker is open.
func (p *Publisher) Check(_ context.Context) error {
	if p.breaker != nil && p.breaker.IsOpen() {
		return dErrors.New(dErrors.CodeUnavailable, "audit sink failing repeatedly")
	}
	return nil
}

// Close shuts down the async publisher and waits for pending events to drain.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	if p.async && p.events != nil {
		close(p.events)
		p.wg.Wait()
	}
}

func (p *Publisher) Emit(ctx context.Context, event models.Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return sentinel.ErrClosed
	}

	if p.async {
		// Non-blocking send with context cancellation support
		select {
		case p.events <- event:
			if p.metrics != nil {
				p.metrics.EventsEnqueued.Inc()
				p.metrics.QueueDepth.Set(float64(len(p.events)))
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
			if p.metrics != nil {
				p.metrics.EventsDropped.Inc()
			}
			if p.logger != nil {
				p.logger.Warn("audit buffer full, event dropped",
					"seq", event.Seq,
					"event_type", string(event.Type),
				)
			}
			return dErrors.New(dErrors.CodeUnavailable, "audit buffer full")
		}
	}
	return p.deliver(ctx, event)
}

// MultiSink fans an event out to several sinks. Every sink is attempted and
// the first error is returned.
type MultiSink []Sink

func (m MultiSink) Append(ctx context.Context, event models.Event) error {
	var firstErr error
	for _, s := range m {
		if err := s.Append(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
