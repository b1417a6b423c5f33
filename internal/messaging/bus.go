package messaging

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Bus is a buffered, in-process event channel between driver and controller.
// Publishing never blocks the driver: when the controller is not draining the
// channel, events are dropped, matching the fire-and-forget semantics of the
// protocol.
type Bus struct {
	events chan Event
	log    *zap.Logger

	mu     sync.Mutex
	closed bool
}

var _ Notifier = (*Bus)(nil)

// NewBus creates a bus with the given buffer size.
func NewBus(buffer int, logger *zap.Logger) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{
		events: make(chan Event, buffer),
		log:    logger.Named("bus"),
	}
}

// Events returns the receive side for the controller.
func (b *Bus) Events() <-chan Event {
	return b.events
}

// Log publishes a narration message.
func (b *Bus) Log(message string, severity Severity) {
	b.publish(LogMessage{Message: message, Severity: severity, Timestamp: time.Now()})
}

// Progress publishes a numeric progress update.
func (b *Bus) Progress(current, total int) {
	b.publish(ProgressUpdate{Current: current, Total: total})
}

// Complete publishes the terminal run outcome.
func (b *Bus) Complete(outcome RunComplete) {
	b.publish(outcome)
}

// Close closes the event channel. Publishing after Close is a silent no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.events)
}

func (b *Bus) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	select {
	case b.events <- ev:
	default:
		b.log.Debug("event dropped, no consumer draining the bus")
	}
}
