// Package event delivers change notifications from the mutation layer to
// notification sinks on a single background dispatcher.
package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/simp-lee/rbacflow/internal/domain"
)

var (
	// ErrBusFull is returned by Publish when the buffer has no free slot.
	ErrBusFull = errors.New("event bus is full")
	// ErrBusClosed is returned by Publish after Close.
	ErrBusClosed = errors.New("event bus is closed")
)

const (
	DefaultBufferSize      = 1024
	DefaultDeliveryTimeout = 5 * time.Second
)

// Drop reasons reported to the Observer.
const (
	DropFull   = "full"
	DropClosed = "closed"
)

// Sink receives every event the bus dispatches.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev domain.Event) error
}

// Observer is notified about bus activity, e.g. for metrics.
type Observer interface {
	EventPublished(eventType string)
	EventDropped(reason string)
	SinkFailed(sink string)
}

// Options configures a Bus.
type Options struct {
	BufferSize      int
	DeliveryTimeout time.Duration
	Logger          *slog.Logger
	Observer        Observer
}

// Bus is a buffered, non-blocking event queue with one dispatch goroutine.
// Events are delivered to sinks in publish order.
type Bus struct {
	queue   chan domain.Event
	timeout time.Duration
	logger  *slog.Logger
	obs     Observer

	mu     sync.RWMutex
	sinks  []Sink
	closed bool

	startOnce sync.Once
	wg        sync.WaitGroup
}

// NewBus creates a Bus. Call Start to begin dispatching.
func NewBus(opts Options) *Bus {
	if opts.BufferSize < 1 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = DefaultDeliveryTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Bus{
		queue:   make(chan domain.Event, opts.BufferSize),
		timeout: opts.DeliveryTimeout,
		logger:  opts.Logger,
		obs:     opts.Observer,
	}
}

// Subscribe adds a sink. Sinks added after Start see only later events.
func (b *Bus) Subscribe(s Sink) {
	if s == nil {
		return
	}
	b.mu.Lock()
	b.sinks = append(b.sinks, s)
	b.mu.Unlock()
}

// Start launches the dispatcher. Subsequent calls are no-ops.
func (b *Bus) Start() {
	b.startOnce.Do(func() {
		b.wg.Add(1)
		go b.loop()
	})
}

// Publish enqueues ev without blocking.
func (b *Bus) Publish(ev domain.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.dropped(DropClosed)
		return ErrBusClosed
	}
	select {
	case b.queue <- ev:
		if b.obs != nil {
			b.obs.EventPublished(string(ev.Type))
		}
		return nil
	default:
		b.dropped(DropFull)
		return ErrBusFull
	}
}

// Close stops accepting events and waits until the dispatcher has
// delivered everything already queued, or ctx is done.
func (b *Bus) Close(ctx context.Context) error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.queue)
	}
	b.mu.Unlock()

	// Drain pending events even if Start was never called.
	b.startOnce.Do(func() {
		b.wg.Add(1)
		go b.loop()
	})

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain event bus: %w", ctx.Err())
	}
}

// Pending returns the number of queued, undelivered events.
func (b *Bus) Pending() int {
	return len(b.queue)
}

func (b *Bus) loop() {
	defer b.wg.Done()
	for ev := range b.queue {
		b.dispatch(ev)
	}
}

func (b *Bus) dispatch(ev domain.Event) {
	b.mu.RLock()
	sinks := append([]Sink(nil), b.sinks...)
	b.mu.RUnlock()

	for _, s := range sinks {
		b.deliver(s, ev)
	}
}

func (b *Bus) deliver(s Sink, ev domain.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event sink panicked",
				"sink", s.Name(),
				"event_type", ev.Type,
				"entity_type", ev.EntityType,
				"entity_id", ev.EntityID,
				"panic", r,
			)
			b.sinkFailed(s.Name())
		}
	}()

	if err := s.Deliver(ctx, ev); err != nil {
		b.logger.Warn("event delivery failed",
			"sink", s.Name(),
			"event_type", ev.Type,
			"entity_type", ev.EntityType,
			"entity_id", ev.EntityID,
			"error", err,
		)
		b.sinkFailed(s.Name())
	}
}

func (b *Bus) dropped(reason string) {
	if b.obs != nil {
		b.obs.EventDropped(reason)
	}
}

func (b *Bus) sinkFailed(name string) {
	if b.obs != nil {
		b.obs.SinkFailed(name)
	}
}
