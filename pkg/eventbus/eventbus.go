package eventbus

import (
	"context"

	"github.com/amirasaad/corebank/pkg/domain/events"
)

// HandlerFunc processes one event. A returned error marks the delivery failed.
type HandlerFunc func(ctx context.Context, event events.Event) error

// Bus defines the contract for publishing and subscribing to domain events.
type Bus interface {
	Register(eventType events.EventType, handler HandlerFunc)
	Emit(ctx context.Context, event events.Event) error
}
