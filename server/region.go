package server

import (
	"sort"

	"github.com/bits-and-blooms/bitset"
)

// SelectRegion intersects the regions viable for every ticket in the
// proposal under maxLatency, then ranks the survivors by preference and
// latency.
//
// Viability is computed as a bitset per ticket over a stable
// region-name→index mapping built from the regions observed across the
// proposal's latencyData, then intersected across tickets. A region
// missing a latency entry on any ticket (bit never set) is disqualified
// just as surely as one whose latency exceeds budget.
func SelectRegion(proposal []Ticket, maxLatency int) (string, bool) {
	regionIndex, regions := indexRegions(proposal)
	if len(regions) == 0 {
		return "", false
	}

	var viable *bitset.BitSet
	for _, t := range proposal {
		ticketBits := bitset.New(uint(len(regions)))
		for region, latency := range t.LatencyData {
			if latency <= maxLatency {
				if idx, ok := regionIndex[region]; ok {
					ticketBits.Set(uint(idx))
				}
			}
		}
		if viable == nil {
			viable = ticketBits
		} else {
			viable.InPlaceIntersection(ticketBits)
		}
	}

	viableRegions := make([]string, 0, len(regions))
	for i, r := range regions {
		if viable.Test(uint(i)) {
			viableRegions = append(viableRegions, r)
		}
	}

	if len(viableRegions) == 0 {
		return "", false
	}
	if len(viableRegions) == 1 {
		return viableRegions[0], true
	}

	best := ""
	bestScore := -1.0
	for _, r := range viableRegions {
		score := 3*preferenceScore(proposal, r) + latencyScore(proposal, r)
		if score > bestScore || (score == bestScore && r < best) {
			best = r
			bestScore = score
		}
	}
	return best, true
}

// indexRegions builds a stable, sorted region-name→index mapping over
// every region name observed in the proposal's latency data, so the
// per-ticket bitsets share one coordinate space.
func indexRegions(proposal []Ticket) (map[string]int, []string) {
	seen := map[string]bool{}
	for _, t := range proposal {
		for region := range t.LatencyData {
			seen[region] = true
		}
	}
	regions := make([]string, 0, len(seen))
	for r := range seen {
		regions = append(regions, r)
	}
	sort.Strings(regions)

	idx := make(map[string]int, len(regions))
	for i, r := range regions {
		idx[r] = i
	}
	return idx, regions
}

func preferenceScore(proposal []Ticket, region string) float64 {
	total := 0
	for _, t := range proposal {
		for _, p := range t.Players {
			for _, pref := range p.RegionPreference {
				if w, ok := pref[region]; ok && w > 0 {
					total += w
				}
			}
		}
	}
	return float64(total)
}

func latencyScore(proposal []Ticket, region string) float64 {
	total, count := 0, 0
	for _, t := range proposal {
		lat, ok := t.LatencyData[region]
		if !ok {
			continue
		}
		for range t.Players {
			total += lat
			count++
		}
	}
	if count == 0 {
		return 0
	}
	avg := float64(total) / float64(count)
	score := 200 - avg
	if score < 0 {
		return 0
	}
	return score
}
