package match

import (
	"github.com/wegman-software/osmconflate/internal/network"
	"github.com/wegman-software/osmconflate/internal/spatial"
)

// maxChainLength bounds the number of ways in one combination
const maxChainLength = 8

// assessment is the scoring outcome for one base way
type assessment struct {
	way     *network.Way
	near    []int64    // ways of the other network within the radius
	best    *Candidate // nil when every combination was filtered out
	options int        // combinations surviving the filters
}

// assess scores every combination of nearby ways for a base way and keeps
// the best one that passes the overlap and length ratio filters
func (m *Matcher) assess(base *network.Way, idx *spatial.Index, accept func(int64) bool) *assessment {
	a := &assessment{way: base}

	p := buildProfile(base, idx, m.cfg.ProximityRadius, m.cfg.SampleInterval, accept)
	a.near = p.ids
	if p.empty() {
		return a
	}

	other := idx.Network()
	minOverlap := m.cfg.MinOverlapFor(m.cfg.Mode)

	for _, ways := range combinations(p, other, m.cfg.MinChainShare) {
		sc := p.score(ways)
		if sc.Overlap < minOverlap {
			continue
		}
		if lengthRatio(base.Length(), totalLength(other, ways)) > m.cfg.MaxLengthRatio {
			continue
		}

		c := Candidate{Base: base.ID(), Origin: base.Origin(), Ways: ways, Score: sc}
		a.options++
		if a.best == nil || better(c, *a.best) {
			a.best = &c
		}
	}
	return a
}

// combinations lists the way sets worth scoring: every nearby way on its
// own, plus runs of end-to-end connected ways that take turns being nearest
// along the base way
func combinations(p *profile, other *network.Network, minShare float64) [][]int64 {
	combos := make([][]int64, 0, len(p.ids)+1)
	for _, id := range p.ids {
		combos = append(combos, []int64{id})
	}

	for _, chain := range splitChains(chainOrder(p, minShare), other) {
		for i := 0; i < len(chain); i++ {
			for j := i + 2; j <= len(chain) && j-i <= maxChainLength; j++ {
				combos = append(combos, append([]int64(nil), chain[i:j]...))
			}
		}
	}
	return combos
}

// chainOrder returns the ways that are nearest for at least minShare of the
// base length, in order of first appearance along the base way
func chainOrder(p *profile, minShare float64) []int64 {
	seq := p.nearestSequence()

	share := make(map[int]float64)
	for i, k := range seq {
		if k >= 0 {
			share[k] += p.samples[i].Weight
		}
	}

	var order []int64
	seen := make(map[int]bool)
	for _, k := range seq {
		if k < 0 || seen[k] {
			continue
		}
		seen[k] = true
		if p.total > 0 && share[k]/p.total >= minShare {
			order = append(order, p.ids[k])
		}
	}
	return order
}

// splitChains cuts an ordered way list into maximal runs where each way
// continues the previous one from its free end
func splitChains(order []int64, net *network.Network) [][]int64 {
	var chains [][]int64
	var cur []int64
	entry := -1 // end of the last way the chain arrived through

	for _, id := range order {
		if len(cur) > 0 {
			last := cur[len(cur)-1]
			if endA, endB, ok := net.SharedEnd(last, id); ok && endA != entry {
				cur = append(cur, id)
				entry = endB
				continue
			}
			if len(cur) > 1 {
				chains = append(chains, cur)
			}
		}
		cur = []int64{id}
		entry = -1
	}
	if len(cur) > 1 {
		chains = append(chains, cur)
	}
	return chains
}
