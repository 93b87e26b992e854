package server

import (
	"context"
	"fmt"

	uuid "github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// Committer finalizes proposals: atomic removal of matched tickets,
// rollback on partial removal, and event emission on success.
type Committer struct {
	store  Store
	bus    *Bus
	clock  Clock
	logger *zap.Logger
	mx     *Metrics
}

func NewCommitter(store Store, bus *Bus, clock Clock, logger *zap.Logger, mx *Metrics) *Committer {
	if mx == nil {
		mx = NopMetrics()
	}
	return &Committer{store: store, bus: bus, clock: clock, logger: logger, mx: mx}
}

// Commit finalizes a proposal that has a balanced team assignment and
// a chosen region. On success it returns the assembled Match and
// publishes match_found + the dashboard mirror events. Every proposal
// ticket, the anchor included, is expected to be in the pool. On a
// partial removal it reinserts whatever needs reinserting and returns
// (nil, nil) — that is not itself an engine error, it is a round that
// simply did not produce a match this tick. A store error from the
// removal is returned as an error.
func (c *Committer) Commit(ctx context.Context, proposal *Proposal, teams []Team, region string) (*Match, error) {
	pool := c.store.Pool(proposal.GameMode)
	ids := proposal.TicketIDs()

	removed, err := pool.RemoveMany(ctx, ids)
	if err != nil {
		c.mx.RoundError()
		return nil, wrapStore(err)
	}

	if removed < len(ids) {
		// A competitor won the race for at least one ticket. Reconcile:
		// re-insert whichever ids still have a live record. We cannot
		// distinguish "removed by the competitor" from "never removed"
		// except by asking the store what is still retrievable.
		c.mx.Rollback()
		for _, t := range proposal.Tickets {
			if _, found, gerr := c.store.GetTicket(ctx, t.TicketID); gerr == nil && found {
				_ = pool.Insert(ctx, t.TicketID, t.AverageSkill())
			}
		}
		if c.logger != nil {
			c.logger.Warn("commit: partial removal, round aborted",
				zap.String("game_mode", proposal.GameMode),
				zap.Int("requested", len(ids)), zap.Int("removed", removed))
		}
		return nil, nil
	}

	matchID, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("matchengine: generating match id: %w", err)
	}

	teamMap := make(map[string]Team, len(teams))
	for i, t := range teams {
		teamMap[fmt.Sprintf("team_%d", i+1)] = t
	}

	ts := nowSeconds(c.clock.Now())
	match := &Match{
		MatchID:   matchID.String(),
		GameMode:  proposal.GameMode,
		Region:    region,
		Teams:     teams,
		TicketIDs: ids,
		Timestamp: ts,
	}

	c.bus.Publish(ChannelMatchFound, MatchFoundEvent{
		MatchID:   match.MatchID,
		GameMode:  match.GameMode,
		Region:    match.Region,
		Teams:     teamMap,
		TicketIDs: match.TicketIDs,
		Timestamp: ts,
	})
	c.bus.PublishDashboardLog("info", fmt.Sprintf(
		"MATCH FOUND: %s | Mode: %s | Region: %s | Players: %d",
		match.MatchID, match.GameMode, match.Region, proposal.PlayerCount()), ts)
	c.bus.Publish(ChannelDashboard, PoolUpdatedEvent{
		GameMode: proposal.GameMode, Action: "match_created", Timestamp: ts,
	})

	if imbalanced, spread := teamImbalance(teams); imbalanced {
		c.bus.PublishDashboardLog("warn", fmt.Sprintf(
			"team size imbalance in match %s: spread=%d", match.MatchID, spread), ts)
	}

	c.mx.MatchFormed()
	return match, nil
}

// ReinsertAnchor re-inserts a single ticket with its original pool
// score. Used when no viable region exists, where only the anchor was
// ever popped and the other candidates never left the pool.
func (c *Committer) ReinsertAnchor(ctx context.Context, mode string, t Ticket) error {
	c.mx.AnchorReinserted()
	return wrapStore(c.store.Pool(mode).Insert(ctx, t.TicketID, t.AverageSkill()))
}

// teamImbalance reports whether team sizes differ by more than one
// player, and the spread between the largest and smallest team. Mixed
// party sizes are accepted, not
// rejected, but operators should be able to see when it happens.
func teamImbalance(teams []Team) (bool, int) {
	if len(teams) == 0 {
		return false, 0
	}
	min, max := len(teams[0].Players), len(teams[0].Players)
	for _, t := range teams[1:] {
		n := len(t.Players)
		if n < min {
			min = n
		}
		if n > max {
			max = n
		}
	}
	return max-min > 1, max - min
}
