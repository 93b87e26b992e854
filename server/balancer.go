package server

import (
	"sort"

	"github.com/samber/lo"
)

// BalanceTeams deterministically partitions proposal tickets into
// numTeams teams minimizing skill imbalance. Whole tickets (parties)
// are indivisible; every player of a ticket lands in the same team.
func BalanceTeams(tickets []Ticket, numTeams int) []Team {
	sorted := append([]Ticket(nil), tickets...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ai, aj := sorted[i].AverageSkill(), sorted[j].AverageSkill()
		if ai != aj {
			return ai > aj
		}
		if sorted[i].CreationTime != sorted[j].CreationTime {
			return sorted[i].CreationTime < sorted[j].CreationTime
		}
		return sorted[i].TicketID < sorted[j].TicketID
	})

	teams := make([]Team, numTeams)
	totals := make([]int, numTeams)

	for _, t := range sorted {
		idx := lowestTotalTeam(totals)
		teams[idx].Players = append(teams[idx].Players, t.Players...)
		totals[idx] += t.SumSkill()
	}

	return teams
}

// indexedTotal pairs a team index with its running skill total, so
// lo.MinBy has something to compare besides the bare int.
type indexedTotal struct {
	idx   int
	total int
}

// lowestTotalTeam returns the index of the team with the smallest
// running total. lo.MinBy keeps the earliest element it has not been
// strictly beaten by, so ties break to the lowest index.
func lowestTotalTeam(totals []int) int {
	candidates := make([]indexedTotal, len(totals))
	for i, total := range totals {
		candidates[i] = indexedTotal{idx: i, total: total}
	}
	lowest := lo.MinBy(candidates, func(a, b indexedTotal) bool { return a.total < b.total })
	return lowest.idx
}

// teamTotals extracts each team's running skill total, used by tests
// asserting the balance bound.
func teamTotals(teams []Team) []int {
	return lo.Map(teams, func(t Team, _ int) int { return t.SumSkill() })
}
