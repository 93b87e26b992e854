package server

import (
	"context"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Engine wires the rules registry, ticket store, event bus and the
// per-mode round logic into a periodic scheduler. It is constructed
// explicitly at startup; there is no package-level mutable state.
type Engine struct {
	rules  *RulesRegistry
	store  Store
	bus    *Bus
	clock  Clock
	logger *zap.Logger
	mx     *Metrics

	tickInterval time.Duration

	builder   *ProposalBuilder
	committer *Committer
}

// NewEngine constructs an Engine ready to Run.
func NewEngine(rules *RulesRegistry, store Store, bus *Bus, cfg EngineConfig, clock Clock, logger *zap.Logger, mx *Metrics) *Engine {
	if clock == nil {
		clock = SystemClock{}
	}
	if mx == nil {
		mx = NopMetrics()
	}
	tickInterval := cfg.TickInterval
	if tickInterval <= 0 {
		tickInterval = 2 * time.Second
	}

	return &Engine{
		rules:        rules,
		store:        store,
		bus:          bus,
		clock:        clock,
		logger:       logger,
		mx:           mx,
		tickInterval: tickInterval,
		builder:      NewProposalBuilder(store, clock, logger),
		committer:    NewCommitter(store, bus, clock, logger, mx),
	}
}

// Run drives the scheduler until ctx is cancelled. Shutdown is
// cooperative: the in-flight round finishes before Run returns, so a
// commit is never abandoned halfway.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick runs one full pass across every configured mode. A mode round
// error is logged and folded into a multierr summary; it never aborts
// the tick, and the next mode proceeds regardless.
func (e *Engine) Tick(ctx context.Context) error {
	e.mx.Tick()

	var summary error
	for _, mode := range e.rules.Modes() {
		// Shutdown is cooperative at round granularity: an in-flight
		// round always completes, but a cancelled context stops the tick
		// before the next mode starts.
		select {
		case <-ctx.Done():
			return summary
		default:
		}
		rules, ok := e.rules.Lookup(mode)
		if !ok {
			continue // rules changed out from under us mid-tick; skip
		}
		if err := e.round(ctx, mode, rules); err != nil {
			summary = multierr.Append(summary, err)
			e.mx.RoundError()
			if e.logger != nil {
				e.logger.Error("round failed", zap.String("game_mode", mode), zap.Error(err))
			}
		}
	}
	return summary
}

// round runs the propose→select-region→balance→commit sequence once
// for mode. It returns an error only for a genuine store or bus
// failure; an under-filled pool, an unpackable fill, or a missing
// viable region simply mean no match formed this round.
func (e *Engine) round(ctx context.Context, mode string, rules ModeRules) error {
	e.mx.Round()
	start := e.clock.Now()
	defer func() { e.mx.ObserveRound(e.clock.Now().Sub(start)) }()

	proposal, err := e.builder.Build(ctx, mode, rules)
	if err != nil {
		return err
	}
	if proposal == nil {
		return nil
	}

	region, ok := SelectRegion(proposal.Tickets, rules.MaxLatency)
	if !ok {
		// No viable region: only the anchor was ever popped, so only
		// the anchor needs to go back.
		return e.committer.ReinsertAnchor(ctx, mode, proposal.Anchor)
	}

	teams := BalanceTeams(proposal.Tickets, rules.NumTeams)

	// The anchor left the pool at PopMin. Put it back so Commit's single
	// RemoveMany takes every proposal ticket at once and its removed
	// count reflects only competitors.
	if err := e.store.Pool(mode).Insert(ctx, proposal.Anchor.TicketID, proposal.Anchor.AverageSkill()); err != nil {
		return wrapStore(err)
	}

	match, err := e.committer.Commit(ctx, proposal, teams, region)
	if err != nil {
		return err
	}
	if match == nil {
		return nil // partial removal, already reconciled by the committer
	}

	if e.logger != nil {
		e.logger.Info("match formed",
			zap.String("match_id", match.MatchID),
			zap.String("game_mode", match.GameMode),
			zap.String("region", match.Region),
			zap.Int("players", proposal.PlayerCount()))
	}
	return nil
}
