package server

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SessionResolver is the read-only view the core holds onto the socket
// collaborator's playerId → sessionId map. The core reads it and never
// mutates it.
type SessionResolver interface {
	SessionID(playerID string) (string, bool)
}

// Dispatcher delivers one send_notify payload to a live session.
type Dispatcher interface {
	Deliver(ctx context.Context, sessionID string, payload NotifyPayload) error
}

// NotifyPayload is the per-recipient delivery body.
type NotifyPayload struct {
	Message string          `json:"message"`
	MatchID string          `json:"matchId"`
	Region  string          `json:"region"`
	Teams   map[string]Team `json:"teams"`
}

// Notifier translates match_found events into per-player socket
// deliveries.
type Notifier struct {
	sessions SessionResolver
	dispatch Dispatcher
	logger   *zap.Logger
}

func NewNotifier(sessions SessionResolver, dispatch Dispatcher, logger *zap.Logger) *Notifier {
	return &Notifier{sessions: sessions, dispatch: dispatch, logger: logger}
}

// Run consumes events until the channel closes or ctx is cancelled; on
// cancellation it drains whatever has already arrived before returning,
// so a committed match is never left unannounced by a shutdown.
func (n *Notifier) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			n.handle(ctx, evt)
		case <-ctx.Done():
			n.drain(events)
			return
		}
	}
}

func (n *Notifier) drain(events <-chan Event) {
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			n.handle(context.Background(), evt)
		default:
			return
		}
	}
}

func (n *Notifier) handle(ctx context.Context, evt Event) {
	mf, ok := evt.(MatchFoundEvent)
	if !ok {
		return
	}

	payload := NotifyPayload{
		Message: "Match " + mf.MatchID + " is ready!",
		MatchID: mf.MatchID,
		Region:  mf.Region,
		Teams:   mf.Teams,
	}

	// Per-recipient dispatch for a single match runs concurrently: a
	// slow or dead session must not delay the others. Each goroutine
	// swallows and logs its own error so one bad delivery never stops
	// the rest; a missing session id means the player is offline and
	// is dropped silently.
	g, gctx := errgroup.WithContext(ctx)
	for _, team := range mf.Teams {
		for _, player := range team.Players {
			player := player
			g.Go(func() error {
				sid, ok := n.sessions.SessionID(player.PlayerName)
				if !ok {
					return nil // offline, drop silently
				}
				if err := n.dispatch.Deliver(gctx, sid, payload); err != nil && n.logger != nil {
					n.logger.Warn("notify: delivery failed",
						zap.String("match_id", mf.MatchID),
						zap.String("player", player.PlayerName),
						zap.Error(err))
				}
				return nil
			})
		}
	}
	_ = g.Wait()
}
