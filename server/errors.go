package server

import "errors"

// Typed error kinds. The scheduler and ingress layer branch on these
// with errors.Is rather than string sentinels so a caller several
// layers up can still classify a failure.
var (
	// ErrConfigMissing means the rules document was absent at startup.
	// Fatal: the engine must refuse to start.
	ErrConfigMissing = errors.New("matchengine: config missing")

	// ErrUnknownMode means the requested game mode has no entry in the
	// rules registry.
	ErrUnknownMode = errors.New("matchengine: unknown game mode")

	// ErrInvalidTicket means the ingress payload failed validation.
	ErrInvalidTicket = errors.New("matchengine: invalid ticket")

	// ErrStaleTicket means a pooled ticket id has no backing record.
	// The caller should drop the pool entry and continue.
	ErrStaleTicket = errors.New("matchengine: stale ticket")

	// ErrEmptyPool is not a failure; it means the pool does not hold
	// enough players to fill a match yet.
	ErrEmptyPool = errors.New("matchengine: pool below match size")

	// ErrNoMatchProposal means no combination of candidates could fill
	// the match size around the anchor this round.
	ErrNoMatchProposal = errors.New("matchengine: no match proposal")

	// ErrNoViableRegion means no server region is within budget for
	// every ticket in the proposal.
	ErrNoViableRegion = errors.New("matchengine: no viable region")

	// ErrPartialRemoval means a concurrent remover won the race for at
	// least one ticket id during commit.
	ErrPartialRemoval = errors.New("matchengine: partial removal")

	// ErrStore wraps an underlying store failure.
	ErrStore = errors.New("matchengine: store error")

	// ErrBus wraps an underlying event bus failure. Never rolls back a
	// commit; the bus is best-effort.
	ErrBus = errors.New("matchengine: bus error")
)

// wrapStore annotates err with ErrStore so callers can errors.Is(err,
// ErrStore) regardless of the backend that produced it.
func wrapStore(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(ErrStore, err)
}
