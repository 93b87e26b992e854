package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTicketAverageSkill(t *testing.T) {
	ticket := Ticket{Players: []Player{{Skill: 10}, {Skill: 20}, {Skill: 30}}}
	assert.Equal(t, 20.0, ticket.AverageSkill())
}

func TestTicketAverageSkillEmpty(t *testing.T) {
	ticket := Ticket{}
	assert.Equal(t, 0.0, ticket.AverageSkill())
}

func TestTicketSumSkill(t *testing.T) {
	ticket := Ticket{Players: []Player{{Skill: 10}, {Skill: 20}}}
	assert.Equal(t, 30, ticket.SumSkill())
}

func TestModeRulesMatchSize(t *testing.T) {
	rules := ModeRules{TeamSize: 5, NumTeams: 2}
	assert.Equal(t, 10, rules.MatchSize())
}

func TestModeRulesEffectiveTolerance(t *testing.T) {
	rules := ModeRules{
		SkillTolerance: 50,
		ExpandSearchSteps: []ExpandStep{
			{AfterSeconds: 10, NewTolerance: 100},
			{AfterSeconds: 30, NewTolerance: 200},
		},
	}

	tests := []struct {
		name string
		wait float64
		want float64
	}{
		{"before any step", 0, 50},
		{"just before first step", 9.9, 50},
		{"exactly at first step", 10, 100},
		{"between steps", 25, 100},
		{"exactly at second step", 30, 200},
		{"well past last step", 1000, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rules.EffectiveTolerance(tt.wait))
		})
	}
}

func TestProposalPlayerCountAndIDs(t *testing.T) {
	p := Proposal{Tickets: []Ticket{
		{TicketID: "a", Players: []Player{{}, {}}},
		{TicketID: "b", Players: []Player{{}}},
	}}
	assert.Equal(t, 3, p.PlayerCount())
	assert.Equal(t, []string{"a", "b"}, p.TicketIDs())
}

func TestTeamSumSkill(t *testing.T) {
	team := Team{Players: []Player{{Skill: 5}, {Skill: 7}}}
	assert.Equal(t, 12, team.SumSkill())
}
