package server

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/go-playground/validator/v10"
	uuid "github.com/gofrs/uuid/v5"
)

// PlayerPayload is the player half of the ingress request: the HTTP
// collaborator constructs one of these from the incoming request body.
type PlayerPayload struct {
	PlayerName       string             `validate:"required"`
	Skill            int                `validate:"gte=0"`
	RegionPreference []RegionPreference `validate:"omitempty,dive,dive,gt=0"`
	LatencyData      map[string]int     `validate:"omitempty"`
}

// Ingress is the normalized ticket creation surface for the HTTP
// collaborator. gameMode is checked against the rules registry first
// (ErrUnknownMode), then playerData against go-playground/validator
// struct tags (ErrInvalidTicket).
type Ingress struct {
	rules    *RulesRegistry
	store    Store
	bus      *Bus
	clock    Clock
	validate *validator.Validate

	// fallbackRegions is the deterministic pool of region names used to
	// synthesize latencyData when a request omits it.
	fallbackRegions []string
}

func NewIngress(rules *RulesRegistry, store Store, bus *Bus, clock Clock, fallbackRegions []string) *Ingress {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Ingress{
		rules:           rules,
		store:           store,
		bus:             bus,
		clock:           clock,
		validate:        validator.New(),
		fallbackRegions: fallbackRegions,
	}
}

// CreateTicket validates, persists and enqueues a new ticket, returning
// its id.
func (ing *Ingress) CreateTicket(ctx context.Context, gameMode string, player PlayerPayload) (string, error) {
	if _, ok := ing.rules.Lookup(gameMode); !ok {
		return "", ErrUnknownMode
	}

	if err := ing.validate.Struct(player); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTicket, err)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return "", fmt.Errorf("matchengine: generating ticket id: %w", err)
	}

	latency := player.LatencyData
	if len(latency) == 0 {
		latency = ing.syntheticLatency(player.PlayerName)
	}

	ticket := Ticket{
		TicketID:         id.String(),
		Players:          []Player{{PlayerName: player.PlayerName, Skill: player.Skill, RegionPreference: player.RegionPreference}},
		GameMode:         gameMode,
		RegionPreference: player.RegionPreference,
		LatencyData:      latency,
		CreationTime:     nowSeconds(ing.clock.Now()),
		Status:           StatusSearching,
	}

	if err := ing.store.PutTicket(ctx, ticket); err != nil {
		return "", wrapStore(err)
	}
	if err := ing.store.Pool(gameMode).Insert(ctx, ticket.TicketID, ticket.AverageSkill()); err != nil {
		return "", wrapStore(err)
	}

	ing.bus.Publish(ChannelDashboard, PoolUpdatedEvent{
		GameMode:  gameMode,
		Action:    "enqueued",
		Timestamp: ticket.CreationTime,
	})

	return ticket.TicketID, nil
}

// syntheticLatency produces a deterministic fallback latency map keyed
// by a hash of the player's identity, used when a request omits
// latencyData outright. This is not geo-IP resolution; it never looks
// at network information, only the player name already on the request.
func (ing *Ingress) syntheticLatency(playerName string) map[string]int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(playerName))
	base := int(h.Sum32() % 80)

	latency := make(map[string]int, len(ing.fallbackRegions))
	for i, region := range ing.fallbackRegions {
		latency[region] = 40 + base + i*7
	}
	return latency
}
