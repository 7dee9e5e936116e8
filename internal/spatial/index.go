// Package spatial indexes the segments of one network for proximity queries
package spatial

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/tidwall/rtree"

	"github.com/wegman-software/osmconflate/internal/geo"
	"github.com/wegman-software/osmconflate/internal/network"
)

// SegmentRef points at segment Index (points Index and Index+1) of a way
type SegmentRef struct {
	WayID int64
	Index int
}

// Hit is the exact distance from a query point to the closest segment of a way
type Hit struct {
	WayID    int64
	Segment  int
	Distance float64
}

// Index is an R-tree over segment bounding boxes. It is read-only once built
// and safe for concurrent queries.
type Index struct {
	net  *network.Network
	tree rtree.RTree
	size int
}

// Build indexes every segment of a network
func Build(net *network.Network) *Index {
	idx := &Index{net: net}

	for _, w := range net.Ways() {
		for i := 0; i+1 < w.NumPoints(); i++ {
			a, b := w.Point(i), w.Point(i+1)
			idx.tree.Insert(
				[2]float64{min(a.Lon(), b.Lon()), min(a.Lat(), b.Lat())},
				[2]float64{max(a.Lon(), b.Lon()), max(a.Lat(), b.Lat())},
				SegmentRef{WayID: w.ID(), Index: i},
			)
			idx.size++
		}
	}

	return idx
}

// Network returns the indexed network
func (idx *Index) Network() *network.Network { return idx.net }

// Len returns the number of indexed segments
func (idx *Index) Len() int { return idx.size }

// Query returns the segments whose bounding boxes come within radius metres
// of p. The result may contain segments farther away than radius but never
// misses one that is closer. Refs are ordered by way id, then segment.
func (idx *Index) Query(p orb.Point, radius float64) []SegmentRef {
	box := geo.Expand(orb.Bound{Min: p, Max: p}, radius)

	var refs []SegmentRef
	idx.tree.Search(
		[2]float64{box.Min.Lon(), box.Min.Lat()},
		[2]float64{box.Max.Lon(), box.Max.Lat()},
		func(min, max [2]float64, data interface{}) bool {
			if ref, ok := data.(SegmentRef); ok {
				refs = append(refs, ref)
			}
			return true
		},
	)

	sort.Slice(refs, func(i, j int) bool {
		if refs[i].WayID != refs[j].WayID {
			return refs[i].WayID < refs[j].WayID
		}
		return refs[i].Index < refs[j].Index
	})
	return refs
}

// Nearest returns, per way, the closest segment within radius metres of p.
// Hits are ordered by way id. Ways rejected by accept are skipped; accept
// may be nil.
func (idx *Index) Nearest(p orb.Point, radius float64, accept func(wayID int64) bool) []Hit {
	var hits []Hit
	for _, ref := range idx.Query(p, radius) {
		if accept != nil && !accept(ref.WayID) {
			continue
		}
		w, ok := idx.net.Way(ref.WayID)
		if !ok {
			continue
		}

		d, _ := geo.PointSegmentDistance(p, w.Point(ref.Index), w.Point(ref.Index+1))
		if d > radius {
			continue
		}

		if n := len(hits); n > 0 && hits[n-1].WayID == ref.WayID {
			if d < hits[n-1].Distance {
				hits[n-1].Distance = d
				hits[n-1].Segment = ref.Index
			}
			continue
		}
		hits = append(hits, Hit{WayID: ref.WayID, Segment: ref.Index, Distance: d})
	}
	return hits
}

// NearestDistance returns the exact distance from p to a way of the indexed
// network, without a radius limit. Unknown ways give +Inf.
func (idx *Index) NearestDistance(p orb.Point, wayID int64) float64 {
	w, ok := idx.net.Way(wayID)
	if !ok {
		return math.Inf(1)
	}
	best := math.Inf(1)
	for i := 0; i+1 < w.NumPoints(); i++ {
		if d, _ := geo.PointSegmentDistance(p, w.Point(i), w.Point(i+1)); d < best {
			best = d
		}
	}
	return best
}
