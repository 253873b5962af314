// Package events publishes decode events to Kafka for offline analysis.
// Publishing is asynchronous and lossy under backpressure: a full buffer
// drops events rather than stalling request handling.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/syntaxmt/forest-decoder/pkg/kafka"
	"github.com/syntaxmt/forest-decoder/pkg/metrics"
	"github.com/syntaxmt/forest-decoder/pkg/resilience"
)

// DecodeEvent describes one completed (or failed) decode request.
type DecodeEvent struct {
	RequestID   string    `json:"requestId,omitempty"`
	RequestHash string    `json:"requestHash"`
	Status      string    `json:"status"`
	Cached      bool      `json:"cached"`
	BestScore   float64   `json:"bestScore,omitempty"`
	Hypotheses  int       `json:"hypotheses"`
	CubePops    int       `json:"cubePops"`
	GlueRules   int       `json:"glueRules"`
	DurationMs  int64     `json:"durationMs"`
	Timestamp   time.Time `json:"timestamp"`
}

// Collector buffers decode events and ships them to Kafka on a background
// goroutine. A nil *Collector is valid and discards events.
type Collector struct {
	producer *kafka.Producer
	breaker  *resilience.CircuitBreaker
	metrics  *metrics.Metrics
	eventCh  chan DecodeEvent
	logger   *slog.Logger
	done     chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewCollector creates a Collector over the given producer. metrics may be
// nil. bufferSize <= 0 selects a default.
func NewCollector(producer *kafka.Producer, bufferSize int, m *metrics.Metrics) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		producer: producer,
		breaker:  resilience.NewCircuitBreaker("kafka-events", resilience.CircuitBreakerConfig{}),
		metrics:  m,
		eventCh:  make(chan DecodeEvent, bufferSize),
		logger:   slog.Default().With("component", "event-collector"),
		done:     make(chan struct{}),
	}
}

// Start launches the background publisher. It returns immediately; the
// goroutine exits when ctx is cancelled or Close is called.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					return
				}
				c.publish(ctx, event)
			case <-ctx.Done():
				c.drainRemaining()
				return
			}
		}
	}()
	c.logger.Info("event collector started", "buffer_size", cap(c.eventCh))
}

// Track enqueues an event. It never blocks; events are dropped when the
// buffer is full, and discarded once Close has run (a request still in
// flight during shutdown must not hit a closed channel).
func (c *Collector) Track(event DecodeEvent) {
	if c == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("decode event dropped (buffer full)")
	}
}

// Close stops accepting events and waits for the buffer to flush. It is
// idempotent.
func (c *Collector) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.eventCh)
	c.mu.Unlock()
	<-c.done
}

func (c *Collector) publish(ctx context.Context, event DecodeEvent) {
	err := c.breaker.Execute(func() error {
		return c.producer.Publish(ctx, kafka.Event{
			Key:   event.RequestHash,
			Value: event,
		})
	})
	c.observeBreaker()
	if err != nil {
		c.logger.Error("failed to publish decode event", "error", err)
	}
}

func (c *Collector) drainRemaining() {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			c.publish(context.Background(), event)
		default:
			return
		}
	}
}

func (c *Collector) observeBreaker() {
	if c.metrics == nil {
		return
	}
	c.metrics.CircuitBreakerState.WithLabelValues("kafka-events").Set(float64(c.breaker.GetState()))
}
