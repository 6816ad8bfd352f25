package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/amirasaad/corebank/pkg/domain/events"
	"github.com/amirasaad/corebank/pkg/eventbus"
)

// ErrBusClosed is returned by Emit once the bus has been closed.
var ErrBusClosed = errors.New("event bus closed")

// MemoryEventBus dispatches events synchronously to in-process handlers.
// Handler errors are logged, never returned: the emitter has already committed.
type MemoryEventBus struct {
	handlers  map[events.EventType][]eventbus.HandlerFunc
	mu        sync.RWMutex
	logger    *slog.Logger
	record    bool
	published []events.Event
}

// MemoryOption configures a MemoryEventBus.
type MemoryOption func(*MemoryEventBus)

// WithRecording keeps every emitted event for Published. Recorded OTPIssued
// events hold the plain code and the log is never trimmed, so only tests
// should record.
func WithRecording() MemoryOption {
	return func(b *MemoryEventBus) { b.record = true }
}

// NewWithMemory creates a synchronous in-memory event bus.
func NewWithMemory(logger *slog.Logger, opts ...MemoryOption) *MemoryEventBus {
	b := &MemoryEventBus{
		handlers: make(map[events.EventType][]eventbus.HandlerFunc),
		logger:   logger.With("bus", "memory"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register adds a handler for eventType.
func (b *MemoryEventBus) Register(eventType events.EventType, handler eventbus.HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Emit dispatches the event to all registered handlers for its type.
func (b *MemoryEventBus) Emit(ctx context.Context, event events.Event) error {
	eventType := events.EventType(event.Type())

	b.mu.Lock()
	if b.record {
		b.published = append(b.published, event)
	}
	handlers := append([]eventbus.HandlerFunc(nil), b.handlers[eventType]...)
	b.mu.Unlock()

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			b.logger.Error("handler error", "error", err, "event_type", eventType)
		}
	}
	return nil
}

// Published returns a copy of every event emitted so far. It is empty unless
// the bus was built WithRecording.
func (b *MemoryEventBus) Published() []events.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]events.Event(nil), b.published...)
}

// ClearPublished forgets previously emitted events.
func (b *MemoryEventBus) ClearPublished() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = nil
}

var _ eventbus.Bus = (*MemoryEventBus)(nil)

type queuedEvent struct {
	ctx   context.Context
	event events.Event
}

// MemoryAsyncEventBus queues events and delivers them on a background
// goroutine, so Emit never waits on a handler.
type MemoryAsyncEventBus struct {
	handlers map[events.EventType][]eventbus.HandlerFunc
	mu       sync.RWMutex
	sendMu   sync.RWMutex
	closed   bool
	eventCh  chan queuedEvent
	wg       sync.WaitGroup
	once     sync.Once
	log      *slog.Logger
}

// NewWithMemoryAsync creates an asynchronous in-memory event bus.
func NewWithMemoryAsync(logger *slog.Logger) *MemoryAsyncEventBus {
	b := &MemoryAsyncEventBus{
		handlers: make(map[events.EventType][]eventbus.HandlerFunc),
		eventCh:  make(chan queuedEvent, 100),
		log:      logger.With("bus", "memory-async"),
	}
	b.wg.Add(1)
	go b.process()
	return b
}

func (b *MemoryAsyncEventBus) Register(eventType events.EventType, handler eventbus.HandlerFunc) {
	b.mu.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.mu.Unlock()
}

// Emit queues event for delivery. It fails with ErrBusClosed after Close.
func (b *MemoryAsyncEventBus) Emit(ctx context.Context, event events.Event) error {
	b.sendMu.RLock()
	defer b.sendMu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}
	// Handlers outlive the request that emitted the event.
	b.eventCh <- queuedEvent{ctx: context.WithoutCancel(ctx), event: event}
	return nil
}

// Close stops accepting events and waits for queued ones to be delivered.
func (b *MemoryAsyncEventBus) Close() error {
	b.once.Do(func() {
		b.sendMu.Lock()
		b.closed = true
		close(b.eventCh)
		b.sendMu.Unlock()
	})
	b.wg.Wait()
	return nil
}

func (b *MemoryAsyncEventBus) process() {
	defer b.wg.Done()
	for q := range b.eventCh {
		eventType := events.EventType(q.event.Type())
		b.mu.RLock()
		handlers := append([]eventbus.HandlerFunc(nil), b.handlers[eventType]...)
		b.mu.RUnlock()
		executeHandlers(q.ctx, b.log, eventType, q.event, handlers, "")
	}
}

var _ eventbus.Bus = (*MemoryAsyncEventBus)(nil)
