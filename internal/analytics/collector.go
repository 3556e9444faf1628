package analytics

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/kafka"
)

// Tracker accepts analytics events without blocking the caller.
type Tracker interface {
	Track(event Event)
}

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Collector buffers events on a channel and publishes them from a single
// goroutine. Events are dropped when the buffer is full.
type Collector struct {
	publisher Publisher
	eventCh   chan Event
	logger    *slog.Logger
	done      chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewCollector(publisher Publisher, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		publisher: publisher,
		eventCh:   make(chan Event, bufferSize),
		logger:    slog.Default().With("component", "analytics-collector"),
		done:      make(chan struct{}),
	}
}

// Start launches the publish loop. Close must only be called after Start.
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
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh))
}

func (c *Collector) Track(event Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("analytics event dropped (buffer full)", "key", event.Key())
	}
}

// Close stops accepting events and waits for buffered ones to be published.
func (c *Collector) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.eventCh)
	}
	c.mu.Unlock()
	<-c.done
}

func (c *Collector) publish(ctx context.Context, event Event) {
	if err := c.publisher.Publish(ctx, kafka.Event{Key: event.Key(), Value: event}); err != nil {
		c.logger.Error("failed to publish analytics event", "key", event.Key(), "error", err)
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

// Tee fans each event out to every non-nil tracker.
type Tee []Tracker

func (t Tee) Track(event Event) {
	for _, tr := range t {
		if tr != nil {
			tr.Track(event)
		}
	}
}
