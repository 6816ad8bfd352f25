package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/amirasaad/corebank/pkg/domain/events"
	"github.com/amirasaad/corebank/pkg/eventbus"
)

// ErrUnknownEventType is returned when an envelope names a type missing from
// events.EventTypes.
var ErrUnknownEventType = errors.New("unknown event type")

// envelope is the wire form shared by the Redis and Kafka buses.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func encodeEnvelope(event events.Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", event.Type(), err)
	}
	raw, err := json.Marshal(envelope{Type: event.Type(), Payload: data})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope %s: %w", event.Type(), err)
	}
	return raw, nil
}

func decodeEnvelope(raw []byte) (events.EventType, events.Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	eventType := events.EventType(env.Type)
	constructor, ok := events.EventTypes[eventType]
	if !ok {
		return eventType, nil, fmt.Errorf("%w: %q", ErrUnknownEventType, env.Type)
	}
	evt := constructor()
	if err := json.Unmarshal(env.Payload, evt); err != nil {
		return eventType, nil, fmt.Errorf("unmarshal %s payload: %w", env.Type, err)
	}
	return eventType, evt, nil
}

// executeHandlers runs every handler concurrently and reports whether all of
// them succeeded. Panics count as failures.
func executeHandlers(
	ctx context.Context,
	logger *slog.Logger,
	eventType events.EventType,
	evt events.Event,
	handlers []eventbus.HandlerFunc,
	msgID string,
) bool {
	var wg sync.WaitGroup
	var mu sync.Mutex
	success := true

	for _, handler := range handlers {
		wg.Add(1)
		go func(h eventbus.HandlerFunc) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					success = false
					mu.Unlock()
					logger.Error("handler panic recovered", "panic", r, "event_type", eventType, "msg_id", msgID)
				}
			}()
			if err := h(ctx, evt); err != nil {
				mu.Lock()
				success = false
				mu.Unlock()
				logger.Error("handler error", "error", err, "event_type", eventType, "msg_id", msgID)
			}
		}(handler)
	}

	wg.Wait()
	return success
}
