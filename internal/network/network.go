// Package network holds the immutable way snapshots of one dataset together
// with the endpoint topology used to chain fragmented ways.
package network

import (
	"fmt"
	"sort"
)

// Network is the set of ways loaded from one dataset
type Network struct {
	origin Origin
	ways   map[int64]*Way
	order  []int64
	ends   map[endpointKey][]int64
}

// New creates an empty network
func New(origin Origin) *Network {
	return &Network{
		origin: origin,
		ways:   make(map[int64]*Way),
		ends:   make(map[endpointKey][]int64),
	}
}

// Origin returns the dataset the network represents
func (n *Network) Origin() Origin { return n.origin }

// Add inserts a way. The way must carry the network's origin and an id not
// yet present.
func (n *Network) Add(w *Way) error {
	if w.origin != n.origin {
		return fmt.Errorf("way %d is a %s way, network holds %s ways", w.id, w.origin, n.origin)
	}
	if _, ok := n.ways[w.id]; ok {
		return fmt.Errorf("duplicate way id %d", w.id)
	}

	n.ways[w.id] = w
	// keep ids ordered; loaders mostly deliver them ascending
	if k := len(n.order); k == 0 || n.order[k-1] < w.id {
		n.order = append(n.order, w.id)
	} else {
		i := sort.Search(k, func(i int) bool { return n.order[i] > w.id })
		n.order = append(n.order, 0)
		copy(n.order[i+1:], n.order[i:])
		n.order[i] = w.id
	}

	first := w.endKey(0)
	last := w.endKey(len(w.line) - 1)
	n.ends[first] = append(n.ends[first], w.id)
	if last != first {
		n.ends[last] = append(n.ends[last], w.id)
	}
	return nil
}

// Len returns the number of ways
func (n *Network) Len() int { return len(n.ways) }

// Way returns a way by id
func (n *Network) Way(id int64) (*Way, bool) {
	w, ok := n.ways[id]
	return w, ok
}

// IDs returns all way ids in ascending order
func (n *Network) IDs() []int64 {
	return append([]int64(nil), n.order...)
}

// Ways returns all ways in ascending id order
func (n *Network) Ways() []*Way {
	ids := n.IDs()
	out := make([]*Way, len(ids))
	for i, id := range ids {
		out[i] = n.ways[id]
	}
	return out
}

// Neighbours returns the ids of ways sharing an endpoint with the given way
func (n *Network) Neighbours(id int64) []int64 {
	w, ok := n.ways[id]
	if !ok {
		return nil
	}

	seen := map[int64]bool{id: true}
	var out []int64
	for _, key := range []endpointKey{w.endKey(0), w.endKey(len(w.line) - 1)} {
		for _, other := range n.ends[key] {
			if !seen[other] {
				seen[other] = true
				out = append(out, other)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SharedEnd reports whether two ways touch at an endpoint, and which end of
// each touches: 0 for the first point, 1 for the last
func (n *Network) SharedEnd(a, b int64) (endA, endB int, ok bool) {
	wa, okA := n.ways[a]
	wb, okB := n.ways[b]
	if !okA || !okB || a == b {
		return 0, 0, false
	}

	keysA := [2]endpointKey{wa.endKey(0), wa.endKey(len(wa.line) - 1)}
	keysB := [2]endpointKey{wb.endKey(0), wb.endKey(len(wb.line) - 1)}
	for i, ka := range keysA {
		for j, kb := range keysB {
			if ka == kb {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

// Degree returns how many ways end at the given endpoint of a way, the way
// itself included
func (n *Network) Degree(id int64, end int) int {
	w, ok := n.ways[id]
	if !ok {
		return 0
	}
	i := 0
	if end == 1 {
		i = len(w.line) - 1
	}
	return len(n.ends[w.endKey(i)])
}
