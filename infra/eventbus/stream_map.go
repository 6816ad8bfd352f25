package eventbus

import (
	"strings"

	"github.com/amirasaad/corebank/pkg/domain/events"
)

// streamNameFor maps "Transfer.Completed" under prefix "corebank:events" to
// "corebank:events:transfer:completed".
func streamNameFor(prefix string, eventType events.EventType) string {
	return nameFor(prefix, eventType)
}

// dlqStreamName returns the dead-letter stream for eventType.
func dlqStreamName(prefix string, eventType events.EventType) string {
	return nameFor(prefix+":dlq", eventType)
}

func nameFor(prefix string, eventType events.EventType) string {
	parts := strings.Split(strings.ToLower(eventType.String()), ".")
	return prefix + ":" + strings.Join(parts, ":")
}
