package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBusPublishDeliversToSubscriber(t *testing.T) {
	bus := NewBus(zap.NewNop())
	sub := bus.Subscribe(ChannelDashboard)

	bus.PublishDashboardLog("info", "hello", 123)

	select {
	case evt := <-sub:
		log, ok := evt.(DashboardLogEvent)
		require.True(t, ok)
		assert.Equal(t, "hello", log.Message)
	default:
		t.Fatal("expected an event on the subscriber channel")
	}
}

func TestBusPublishWithNoSubscribersDoesNotBlock(t *testing.T) {
	bus := NewBus(zap.NewNop())
	// No Subscribe call: Publish must still return promptly.
	bus.Publish(ChannelWakeups, DashboardLogEvent{Message: "noop"})
}

func TestBusDroppedCountsFullSubscribers(t *testing.T) {
	bus := NewBus(zap.NewNop())
	sub := bus.Subscribe(ChannelWakeups)

	for i := 0; i < 100; i++ {
		bus.Publish(ChannelWakeups, DashboardLogEvent{Message: "spam"})
	}

	assert.Greater(t, bus.Dropped(), int64(0), "a 64-buffer subscriber fed 100 events must drop some")
	<-sub // drain one so the test doesn't leak a goroutine-visible buildup
}

func TestBusMultipleSubscribersEachReceive(t *testing.T) {
	bus := NewBus(zap.NewNop())
	subA := bus.Subscribe(ChannelMatchFound)
	subB := bus.Subscribe(ChannelMatchFound)

	bus.Publish(ChannelMatchFound, MatchFoundEvent{MatchID: "m1"})

	for _, sub := range []<-chan Event{subA, subB} {
		select {
		case evt := <-sub:
			mf := evt.(MatchFoundEvent)
			assert.Equal(t, "m1", mf.MatchID)
		default:
			t.Fatal("expected every subscriber to receive the published event")
		}
	}
}
