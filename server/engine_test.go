package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEngineTickFormsMatchAndDrainsPool(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	clock := NewFakeClock(time.Unix(1000, 0))
	bus := NewBus(zap.NewNop())

	for i, id := range []string{"t1", "t2", "t3", "t4"} {
		ticket := soloTicket(id, 100+i*5, 1000)
		ticket.LatencyData = map[string]int{"us-east": 20}
		seedTicket(t, ctx, store, "duel", ticket)
	}

	rules := NewRulesRegistry(map[string]ModeRules{
		"duel": {TeamSize: 2, NumTeams: 2, SkillTolerance: 50, MaxLatency: 100},
	})

	engine := NewEngine(rules, store, bus, EngineConfig{TickInterval: time.Second}, clock, zap.NewNop(), NopMetrics())
	sub := bus.Subscribe(ChannelMatchFound)

	require.NoError(t, engine.Tick(ctx))

	select {
	case evt := <-sub:
		_, ok := evt.(MatchFoundEvent)
		assert.True(t, ok)
	default:
		t.Fatal("expected a match_found event after Tick(), got none")
	}

	size, err := store.Pool("duel").Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, size)
}

func TestEngineTickNoMatchLeavesPoolUntouched(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	clock := NewFakeClock(time.Unix(1000, 0))
	bus := NewBus(zap.NewNop())

	seedTicket(t, ctx, store, "duel", soloTicket("lonely", 100, 1000))

	rules := NewRulesRegistry(map[string]ModeRules{
		"duel": {TeamSize: 2, NumTeams: 2, SkillTolerance: 50},
	})

	engine := NewEngine(rules, store, bus, EngineConfig{TickInterval: time.Second}, clock, zap.NewNop(), NopMetrics())
	require.NoError(t, engine.Tick(ctx))

	size, err := store.Pool("duel").Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size, "below match size, the ticket must stay queued")
}

func TestEngineTickNoViableRegionReinsertsAnchor(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	clock := NewFakeClock(time.Unix(1000, 0))
	bus := NewBus(zap.NewNop())

	a := soloTicket("a", 100, 1000)
	a.LatencyData = map[string]int{"us-east": 10}
	b := soloTicket("b", 100, 1000)
	b.LatencyData = map[string]int{"eu-west": 10}
	seedTicket(t, ctx, store, "duo", a)
	seedTicket(t, ctx, store, "duo", b)

	rules := NewRulesRegistry(map[string]ModeRules{
		"duo": {TeamSize: 1, NumTeams: 2, SkillTolerance: 50, MaxLatency: 100},
	})

	engine := NewEngine(rules, store, bus, EngineConfig{TickInterval: time.Second}, clock, zap.NewNop(), NopMetrics())
	require.NoError(t, engine.Tick(ctx))

	size, err := store.Pool("duo").Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, size, "no shared region exists, both tickets must remain queued")
}

func TestEngineRunStopsOnCancel(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	bus := NewBus(zap.NewNop())
	rules := NewRulesRegistry(map[string]ModeRules{
		"duel": {TeamSize: 2, NumTeams: 2, SkillTolerance: 50},
	})

	engine := NewEngine(rules, store, bus, EngineConfig{TickInterval: 5 * time.Millisecond}, nil, zap.NewNop(), NopMetrics())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		engine.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() must return promptly after cancellation")
	}
}

func TestEngineTickMultipleModesIndependent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	clock := NewFakeClock(time.Unix(1000, 0))
	bus := NewBus(zap.NewNop())

	for _, id := range []string{"a1", "a2"} {
		ticket := soloTicket(id, 100, 1000)
		ticket.LatencyData = map[string]int{"us-east": 20}
		seedTicket(t, ctx, store, "alpha", ticket)
	}
	seedTicket(t, ctx, store, "beta", soloTicket("b1", 100, 1000))

	rules := NewRulesRegistry(map[string]ModeRules{
		"alpha": {TeamSize: 1, NumTeams: 2, SkillTolerance: 50},
		"beta":  {TeamSize: 1, NumTeams: 2, SkillTolerance: 50},
	})

	engine := NewEngine(rules, store, bus, EngineConfig{TickInterval: time.Second}, clock, zap.NewNop(), NopMetrics())
	require.NoError(t, engine.Tick(ctx))

	alphaSize, _ := store.Pool("alpha").Size(ctx)
	betaSize, _ := store.Pool("beta").Size(ctx)
	assert.Equal(t, 0, alphaSize, "alpha had enough players to match")
	assert.Equal(t, 1, betaSize, "beta must be untouched by alpha's round")
}
