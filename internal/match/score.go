package match

import (
	"math"
	"sort"

	"github.com/wegman-software/osmconflate/internal/geo"
	"github.com/wegman-software/osmconflate/internal/network"
	"github.com/wegman-software/osmconflate/internal/spatial"
)

// distanceEpsilon is the average distance difference treated as a tie
const distanceEpsilon = 1e-6

// profile holds, for every sample of a base way, the exact distance to each
// nearby way of the other network. Any combination of those ways can then be
// scored without touching the index again.
type profile struct {
	base    *network.Way
	samples []geo.Sample
	total   float64
	dist    map[int64][]float64 // +Inf where the way is beyond the radius
	ids     []int64             // keys of dist, ascending
}

// buildProfile samples the base way and queries the index of the other
// network at every sample. Ways rejected by accept are ignored.
func buildProfile(base *network.Way, idx *spatial.Index, radius, interval float64, accept func(int64) bool) *profile {
	p := &profile{
		base:    base,
		samples: geo.SampleLine(base.Line(), interval),
		dist:    make(map[int64][]float64),
	}

	for i, s := range p.samples {
		p.total += s.Weight
		for _, hit := range idx.Nearest(s.Point, radius, accept) {
			d, ok := p.dist[hit.WayID]
			if !ok {
				d = make([]float64, len(p.samples))
				for j := range d {
					d[j] = math.Inf(1)
				}
				p.dist[hit.WayID] = d
				p.ids = append(p.ids, hit.WayID)
			}
			d[i] = hit.Distance
		}
	}

	sort.Slice(p.ids, func(i, j int) bool { return p.ids[i] < p.ids[j] })
	return p
}

// empty reports whether no way of the other network came within the radius
func (p *profile) empty() bool { return len(p.ids) == 0 }

// score computes average distance and overlap of a combination. Each sample
// takes its distance to the closest way of the combination.
func (p *profile) score(ways []int64) Score {
	var sc Score
	var coveredWeight, weighted float64

	for i, s := range p.samples {
		d := math.Inf(1)
		for _, id := range ways {
			if v := p.dist[id]; v != nil && v[i] < d {
				d = v[i]
			}
		}
		if math.IsInf(d, 1) {
			sc.Excluded++
			continue
		}
		sc.Covered++
		coveredWeight += s.Weight
		weighted += d * s.Weight
	}

	if p.total > 0 {
		sc.Overlap = math.Min(1, coveredWeight/p.total)
	}
	if coveredWeight > 0 {
		sc.AvgDistance = weighted / coveredWeight
	} else {
		sc.AvgDistance = math.Inf(1)
	}
	return sc
}

// nearestSequence returns, per sample, the position in ids of the closest
// way, or -1 when none is within the radius. Equal distances go to the lower
// id.
func (p *profile) nearestSequence() []int {
	seq := make([]int, len(p.samples))
	for i := range p.samples {
		seq[i] = -1
		best := math.Inf(1)
		for k, id := range p.ids {
			if d := p.dist[id][i]; d < best {
				best = d
				seq[i] = k
			}
		}
	}
	return seq
}

// better reports whether a ranks above b: lower average distance, then higher
// overlap, then the lower id sequence
func better(a, b Candidate) bool {
	if math.Abs(a.AvgDistance-b.AvgDistance) > distanceEpsilon {
		return a.AvgDistance < b.AvgDistance
	}
	if a.Overlap != b.Overlap {
		return a.Overlap > b.Overlap
	}
	return lessIDs(a.Ways, b.Ways)
}

// lessIDs orders id sequences lexicographically
func lessIDs(a, b []int64) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// lengthRatio returns the larger of two lengths divided by the smaller
func lengthRatio(a, b float64) float64 {
	if a <= 0 || b <= 0 {
		return math.Inf(1)
	}
	if a > b {
		return a / b
	}
	return b / a
}
