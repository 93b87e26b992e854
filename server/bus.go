package server

import (
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Bus is the event bus adapter: three logical channels (match_found,
// dashboard_events, wakeups) delivered to same-process subscribers.
// Delivery is not guaranteed: an event is dropped for any subscriber
// whose 64-event buffer is full, and counted by Dropped.
type Bus struct {
	logger *zap.Logger

	mu   sync.RWMutex
	subs map[string][]chan Event

	dropped atomic.Int64
}

// NewBus builds an in-process event bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		logger: logger,
		subs:   make(map[string][]chan Event),
	}
}

// Dropped returns the number of events discarded so far because a
// subscriber's buffer was full, for operators to watch alongside the
// engine's own metrics.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Subscribe returns a channel that receives every Event published on
// channel from this point on. The returned channel is buffered; a slow
// subscriber drops events rather than blocking the publisher, since
// cross-process delivery is already documented as best-effort.
func (b *Bus) Subscribe(channel string) <-chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers evt to every current subscriber of channel. A full
// subscriber channel is logged and skipped rather than blocking the
// caller; bus delivery is best-effort and never rolls back a commit.
func (b *Bus) Publish(channel string, evt Event) {
	b.mu.RLock()
	subs := b.subs[channel]
	b.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- evt:
		default:
			b.dropped.Inc()
			if b.logger != nil {
				b.logger.Warn("bus: subscriber full, dropping event",
					zap.String("channel", channel))
			}
		}
	}
}

// PublishDashboardLog is a convenience used throughout the scheduler to
// mirror a log line to the dashboard_events channel.
func (b *Bus) PublishDashboardLog(level, message string, ts float64) {
	b.Publish(ChannelDashboard, DashboardLogEvent{Message: message, Level: level, Timestamp: ts})
}
