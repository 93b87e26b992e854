package server

import "time"

// RegionPreference is a weighted region preference entry: region name to
// a positive weight. Appears on both Player and Ticket.
type RegionPreference map[string]int

// Player is nested inside a Ticket and represents one seat of the party.
type Player struct {
	PlayerName       string             `json:"playerName" validate:"required"`
	Skill            int                `json:"skill" validate:"gte=0"`
	RegionPreference []RegionPreference `json:"regionPreference" validate:"dive"`
}

// TicketStatus is the lifecycle state of a Ticket.
type TicketStatus string

const (
	StatusSearching TicketStatus = "searching"
	StatusMatched   TicketStatus = "matched"
	StatusCancelled TicketStatus = "cancelled"
)

// Ticket is immutable once created. It represents a party of one or more
// players wanting to play a given game mode.
type Ticket struct {
	TicketID         string             `json:"ticketId"`
	Players          []Player           `json:"players"`
	GameMode         string             `json:"gameMode"`
	RegionPreference []RegionPreference `json:"regionPreference"`
	LatencyData      map[string]int     `json:"latencyData"`
	CreationTime     float64            `json:"creationTime"`
	Status           TicketStatus       `json:"status"`
}

// AverageSkill returns the party average skill, sum of skills over the
// player count. Always computed on demand, never persisted as a
// separate field.
func (t *Ticket) AverageSkill() float64 {
	if len(t.Players) == 0 {
		return 0
	}
	sum := 0
	for _, p := range t.Players {
		sum += p.Skill
	}
	return float64(sum) / float64(len(t.Players))
}

// SumSkill returns the sum of player skills across the ticket, used by
// the team balancer to update a team's running total.
func (t *Ticket) SumSkill() int {
	sum := 0
	for _, p := range t.Players {
		sum += p.Skill
	}
	return sum
}

// ExpandStep is one entry of a ModeRules expansion schedule.
type ExpandStep struct {
	AfterSeconds float64 `json:"afterSeconds" yaml:"afterSeconds"`
	NewTolerance float64 `json:"newTolerance" yaml:"newTolerance"`
}

// ModeRules is the per-mode configuration loaded by the rules registry.
type ModeRules struct {
	TeamSize           int          `json:"teamSize" yaml:"teamSize"`
	NumTeams           int          `json:"numTeams" yaml:"numTeams"`
	SkillTolerance     float64      `json:"skillTolerance" yaml:"skillTolerance"`
	ExpandSearchSteps  []ExpandStep `json:"expandSearchSteps" yaml:"expandSearchSteps"`
	MaxLatency         int          `json:"maxLatency" yaml:"maxLatency"`
}

// MatchSize is teamSize × numTeams, the exact player count a proposal
// must sum to.
func (r ModeRules) MatchSize() int {
	return r.TeamSize * r.NumTeams
}

// EffectiveTolerance returns rules.SkillTolerance widened by whichever
// ExpandSearchSteps entry is applicable at the given wait time. The
// latest applicable step wins; steps are monotonic non-decreasing and
// sorted ascending by AfterSeconds by construction, see config.go.
func (r ModeRules) EffectiveTolerance(waitSeconds float64) float64 {
	tolerance := r.SkillTolerance
	for _, step := range r.ExpandSearchSteps {
		if waitSeconds >= step.AfterSeconds {
			tolerance = step.NewTolerance
		}
	}
	return tolerance
}

// Proposal is an ordered list of tickets whose player counts sum exactly
// to a mode's match size. The first element is always the anchor.
type Proposal struct {
	GameMode  string
	Tolerance float64
	Anchor    Ticket
	Tickets   []Ticket
}

// PlayerCount returns the total player count across the proposal.
func (p Proposal) PlayerCount() int {
	n := 0
	for _, t := range p.Tickets {
		n += len(t.Players)
	}
	return n
}

// TicketIDs returns the ticket ids participating in the proposal.
func (p Proposal) TicketIDs() []string {
	ids := make([]string, 0, len(p.Tickets))
	for _, t := range p.Tickets {
		ids = append(ids, t.TicketID)
	}
	return ids
}

// Team is one part of a balanced partition of proposal tickets: the
// player records assigned to it. BalanceTeams places whole parties, so
// every player of a ticket lands in the same Team; the source ticket id
// is not recorded on the team.
type Team struct {
	Players []Player
}

// SumSkill returns the team's total skill.
func (tm Team) SumSkill() int {
	sum := 0
	for _, p := range tm.Players {
		sum += p.Skill
	}
	return sum
}

// Match is the fully-assembled result of a successful round: the
// committed proposal, its balanced teams and the chosen region.
type Match struct {
	MatchID   string
	GameMode  string
	Region    string
	Teams     []Team
	TicketIDs []string
	Timestamp float64
}

// nowSeconds is the float64-epoch-seconds representation used throughout
// the data model (matches the original system's wire format).
func nowSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
