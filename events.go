package notifykit

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/notifykit/notifykit/logger"
)

// EventKind enumerates the lifecycle events fanned out by the engine.
type EventKind string

const (
	EventCreated        EventKind = "created"
	EventUpdated        EventKind = "updated"
	EventDelivered      EventKind = "delivered"
	EventRead           EventKind = "read"
	EventAcknowledged   EventKind = "acknowledged"
	EventDismissed      EventKind = "dismissed"
	EventDeleted        EventKind = "deleted"
	EventBatchProcessed EventKind = "batch:processed"
	EventQueueEmpty     EventKind = "queue:empty"
	EventQueueFull      EventKind = "queue:full"
	EventFailed         EventKind = "failed"
)

// Event is the payload delivered to bus subscribers. Notification is a
// copy; subscribers must tolerate events for records that have since been
// superseded.
type Event struct {
	Kind         EventKind     `json:"kind"`
	Notification *Notification `json:"notification,omitempty"`
	QueueID      string        `json:"queue_id,omitempty"`
	BatchID      string        `json:"batch_id,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}

// EventHandler receives lifecycle events synchronously.
type EventHandler func(Event)

// Subscription identifies a registered handler so it can be removed.
// Function values are not comparable in Go, so On hands out tokens
// instead of matching handlers by identity.
type Subscription string

type busEntry struct {
	id Subscription
	fn EventHandler
}

// Bus is a synchronous publish/subscribe registry keyed by event kind.
// Handlers for one emit run in registration order; a panicking handler is
// recovered and logged so the remaining handlers still run.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventKind][]busEntry
	logger   *slog.Logger
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithBusLogger sets the logger used to report panicking handlers.
func WithBusLogger(logger *slog.Logger) BusOption {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBus creates an empty event bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		handlers: make(map[EventKind][]busEntry),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// On registers a handler for an event kind and returns its subscription
// token. Nil handlers are ignored and yield an empty token.
func (b *Bus) On(kind EventKind, fn EventHandler) Subscription {
	if fn == nil {
		return ""
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := Subscription(uuid.New().String())
	b.handlers[kind] = append(b.handlers[kind], busEntry{id: id, fn: fn})
	return id
}

// Off removes a previously registered handler. Unknown tokens are a no-op.
func (b *Bus) Off(kind EventKind, sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.handlers[kind]
	for i, e := range entries {
		if e.id == sub {
			b.handlers[kind] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// Emit invokes all handlers registered for the event's kind, in
// registration order. Ordering across different kinds is not guaranteed.
func (b *Bus) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	entries := append([]busEntry(nil), b.handlers[event.Kind]...)
	b.mu.RUnlock()

	for _, e := range entries {
		b.invoke(e, event)
	}
}

func (b *Bus) invoke(e busEntry, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				logger.EventKind(string(event.Kind)),
				slog.Any("panic", r))
		}
	}()
	e.fn(event)
}
