package server

import (
	"context"
	"sort"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// packState is the fold accumulator for the greedy packing step: the
// tickets accepted into the fill so far, and the player count still
// needed to reach the match size.
type packState struct {
	tickets []Ticket
	need    int
}

// ProposalBuilder assembles match proposals: anchor selection, dynamic
// tolerance, candidate scan, and party-aware packing.
type ProposalBuilder struct {
	store  Store
	clock  Clock
	logger *zap.Logger
}

func NewProposalBuilder(store Store, clock Clock, logger *zap.Logger) *ProposalBuilder {
	return &ProposalBuilder{store: store, clock: clock, logger: logger}
}

// Build attempts to assemble one proposal for mode. Returns (proposal,
// nil) on success, (nil, nil) when the round simply found nothing this
// tick (an under-filled pool or an unpackable fill, neither an error),
// or (nil, err) for a real failure.
func (b *ProposalBuilder) Build(ctx context.Context, mode string, rules ModeRules) (*Proposal, error) {
	pool := b.store.Pool(mode)
	matchSize := rules.MatchSize()

	size, err := pool.Size(ctx)
	if err != nil {
		return nil, wrapStore(err)
	}
	if size == 0 {
		// Nothing queued. Size counts tickets, not players, and a party
		// ticket fills several seats, so a pool holding fewer tickets than
		// matchSize can still hold enough players; a pool with too few
		// players ends the round at the packing step below instead, with
		// the anchor re-inserted.
		return nil, nil
	}

	anchorID, anchorScore, ok, err := pool.PopMin(ctx)
	if err != nil {
		return nil, wrapStore(err)
	}
	if !ok {
		return nil, nil
	}

	anchor, found, err := b.store.GetTicket(ctx, anchorID)
	if err != nil {
		return nil, wrapStore(err)
	}
	if !found {
		// StaleTicket: the pool entry outlived its record. Drop it and
		// let the next tick retry; do not re-insert a ticket that no
		// longer exists.
		if b.logger != nil {
			b.logger.Warn("proposal: dropping stale anchor", zap.String("ticket_id", anchorID), zap.String("mode", mode))
		}
		return nil, nil
	}

	waitTime := nowSeconds(b.clock.Now()) - anchor.CreationTime
	tolerance := rules.EffectiveTolerance(waitTime)
	anchorAvg := anchor.AverageSkill()

	candidateIDs, err := pool.RangeByScore(ctx, anchorAvg-tolerance, anchorAvg+tolerance)
	if err != nil {
		_ = pool.Insert(ctx, anchorID, anchorScore)
		return nil, wrapStore(err)
	}

	candidateIDs = lo.Filter(candidateIDs, func(id string, _ int) bool { return id != anchorID })

	candidates := make([]Ticket, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		t, found, err := b.store.GetTicket(ctx, id)
		if err != nil {
			_ = pool.Insert(ctx, anchorID, anchorScore)
			return nil, wrapStore(err)
		}
		if !found {
			continue // StaleTicket: silently dropped from this round's scan
		}
		candidates = append(candidates, t)
	}

	// Sort by party size descending, ties by ascending score then
	// ascending ticket id, for a fully deterministic order.
	sort.SliceStable(candidates, func(i, j int) bool {
		ci, cj := candidates[i], candidates[j]
		if len(ci.Players) != len(cj.Players) {
			return len(ci.Players) > len(cj.Players)
		}
		si, sj := ci.AverageSkill(), cj.AverageSkill()
		if si != sj {
			return si < sj
		}
		return ci.TicketID < cj.TicketID
	})

	// Greedy party-aware packing, folded over the sorted candidates
	// with lo.Reduce. A candidate joins the fill only if its whole
	// party still fits the remaining need.
	packed := lo.Reduce(candidates, func(fill packState, cand Ticket, _ int) packState {
		if len(cand.Players) > fill.need {
			return fill
		}
		fill.tickets = append(fill.tickets, cand)
		fill.need -= len(cand.Players)
		return fill
	}, packState{tickets: []Ticket{anchor}, need: matchSize - len(anchor.Players)})

	proposal, need := packed.tickets, packed.need

	if need > 0 {
		// No packable fill: re-insert the anchor with its original score
		// and let the round end; widening tolerance next tick is the
		// natural remedy.
		if err := pool.Insert(ctx, anchorID, anchorScore); err != nil {
			return nil, wrapStore(err)
		}
		return nil, nil
	}

	return &Proposal{
		GameMode:  mode,
		Tolerance: tolerance,
		Anchor:    anchor,
		Tickets:   proposal,
	}, nil
}

// candidateAverages extracts the average skill of each ticket in order,
// for tests asserting the step 7 sort without duplicating its comparator.
func candidateAverages(tickets []Ticket) []float64 {
	return lo.Map(tickets, func(t Ticket, _ int) float64 { return t.AverageSkill() })
}
