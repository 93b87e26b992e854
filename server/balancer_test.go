package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBalanceTeamsPartyCohesion(t *testing.T) {
	tickets := []Ticket{
		{TicketID: "solo1", Players: []Player{{PlayerName: "a", Skill: 100}}, CreationTime: 1},
		{TicketID: "solo2", Players: []Player{{PlayerName: "b", Skill: 90}}, CreationTime: 2},
		{TicketID: "duo", Players: []Player{{PlayerName: "c", Skill: 80}, {PlayerName: "d", Skill: 70}}, CreationTime: 3},
		{TicketID: "solo3", Players: []Player{{PlayerName: "e", Skill: 60}}, CreationTime: 4},
	}

	teams := BalanceTeams(tickets, 2)
	a := assert.New(t)
	a.Len(teams, 2)

	total := 0
	for _, team := range teams {
		total += len(team.Players)
	}
	a.Equal(5, total)

	for _, team := range teams {
		hasC, hasD := false, false
		for _, p := range team.Players {
			if p.PlayerName == "c" {
				hasC = true
			}
			if p.PlayerName == "d" {
				hasD = true
			}
		}
		a.Equal(hasC, hasD, "party members must land on the same team")
	}
}

func TestBalanceTeamsDeterministic(t *testing.T) {
	tickets := []Ticket{
		{TicketID: "t1", Players: []Player{{Skill: 100}}, CreationTime: 1},
		{TicketID: "t2", Players: []Player{{Skill: 100}}, CreationTime: 2},
		{TicketID: "t3", Players: []Player{{Skill: 50}}, CreationTime: 3},
		{TicketID: "t4", Players: []Player{{Skill: 50}}, CreationTime: 4},
	}

	first := BalanceTeams(tickets, 2)
	second := BalanceTeams(tickets, 2)
	assert.Equal(t, first, second, "balancing the same pool twice must produce the same partition")
}

func TestBalanceTeamsMinimizesSkillSpread(t *testing.T) {
	tickets := []Ticket{
		{TicketID: "t1", Players: []Player{{Skill: 100}}, CreationTime: 1},
		{TicketID: "t2", Players: []Player{{Skill: 80}}, CreationTime: 2},
		{TicketID: "t3", Players: []Player{{Skill: 60}}, CreationTime: 3},
		{TicketID: "t4", Players: []Player{{Skill: 40}}, CreationTime: 4},
	}

	totals := teamTotals(BalanceTeams(tickets, 2))
	diff := totals[0] - totals[1]
	if diff < 0 {
		diff = -diff
	}
	assert.LessOrEqual(t, diff, 20)
}

func TestBalanceTeamsExactFillSoloPartition(t *testing.T) {
	// Four solos at 100..130: the greedy lowest-total walk over the
	// descending sort places 130 and 100 together against 120 and 110,
	// the tightest split available (230 vs 230).
	tickets := []Ticket{
		{TicketID: "t1", Players: []Player{{PlayerName: "p1", Skill: 100}}, CreationTime: 1},
		{TicketID: "t2", Players: []Player{{PlayerName: "p2", Skill: 110}}, CreationTime: 2},
		{TicketID: "t3", Players: []Player{{PlayerName: "p3", Skill: 120}}, CreationTime: 3},
		{TicketID: "t4", Players: []Player{{PlayerName: "p4", Skill: 130}}, CreationTime: 4},
	}

	teams := BalanceTeams(tickets, 2)
	assert.Equal(t, []int{230, 230}, teamTotals(teams))
	assert.Equal(t, "p4", teams[0].Players[0].PlayerName)
	assert.Equal(t, "p1", teams[0].Players[1].PlayerName)
	assert.Equal(t, "p3", teams[1].Players[0].PlayerName)
	assert.Equal(t, "p2", teams[1].Players[1].PlayerName)
}

func TestBalanceTeamsUnevenPartySizesStayWithinBound(t *testing.T) {
	// 2+1+3 players into two teams of nominal size 3: team sizes may
	// differ by up to max(party size) - 1.
	tickets := []Ticket{
		{TicketID: "trio", Players: []Player{{Skill: 100}, {Skill: 100}, {Skill: 100}}, CreationTime: 1},
		{TicketID: "duo", Players: []Player{{Skill: 100}, {Skill: 100}}, CreationTime: 2},
		{TicketID: "solo", Players: []Player{{Skill: 100}}, CreationTime: 3},
	}

	teams := BalanceTeams(tickets, 2)
	sizes := []int{len(teams[0].Players), len(teams[1].Players)}
	assert.Equal(t, 6, sizes[0]+sizes[1])

	diff := sizes[0] - sizes[1]
	if diff < 0 {
		diff = -diff
	}
	assert.LessOrEqual(t, diff, 2, "team sizes may differ by at most max(party size)-1")
}

func TestLowestTotalTeamTieBreak(t *testing.T) {
	assert.Equal(t, 0, lowestTotalTeam([]int{5, 5, 5}))
}
