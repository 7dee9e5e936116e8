package match

import (
	"github.com/paulmach/orb"

	"github.com/wegman-software/osmconflate/internal/geo"
	"github.com/wegman-software/osmconflate/internal/network"
)

// JoinWays concatenates ways of one network into a single line, reversing
// ways where needed so that each one starts where the previous one ends.
// The first way keeps its direction unless that would break the chain.
func JoinWays(net *network.Network, ids []int64) orb.LineString {
	lines := make([]orb.LineString, 0, len(ids))
	for _, id := range ids {
		if w, ok := net.Way(id); ok {
			lines = append(lines, w.Line())
		}
	}
	if len(lines) == 0 {
		return nil
	}

	if len(lines) > 1 {
		first, second := lines[0], lines[1]
		if endDistance(first[0], second) < endDistance(first[len(first)-1], second) {
			lines[0] = geo.Reverse(first)
		}
	}

	out := lines[0]
	for _, line := range lines[1:] {
		tail := out[len(out)-1]
		if geo.Distance(tail, line[len(line)-1]) < geo.Distance(tail, line[0]) {
			line = geo.Reverse(line)
		}
		out = geo.Join(out, line)
	}
	return out
}

// endDistance is the distance from p to the nearer end of a line
func endDistance(p orb.Point, line orb.LineString) float64 {
	return min(geo.Distance(p, line[0]), geo.Distance(p, line[len(line)-1]))
}

// totalLength sums the lengths of ways of one network
func totalLength(net *network.Network, ids []int64) float64 {
	total := 0.0
	for _, id := range ids {
		if w, ok := net.Way(id); ok {
			total += w.Length()
		}
	}
	return total
}

// splitShared cuts a candidate way into one piece per reference way of an
// end-to-end reference chain ordered along the candidate. Each cut lies at
// the candidate vertex nearest the point where two consecutive reference
// ways meet, which must lie within tolerance metres of it.
func splitShared(candWay *network.Way, ref *network.Network, refs []int64, tolerance float64) ([]orb.LineString, bool) {
	rest := candWay.Line()
	pieces := make([]orb.LineString, 0, len(refs))

	for i := 0; i+1 < len(refs); i++ {
		endA, _, ok := ref.SharedEnd(refs[i], refs[i+1])
		if !ok {
			return nil, false
		}
		w, _ := ref.Way(refs[i])
		at := w.Point(0)
		if endA == 1 {
			at = w.Point(w.NumPoints() - 1)
		}

		head, tail, ok := geo.SplitAt(rest, at, tolerance)
		if !ok {
			return nil, false
		}
		pieces = append(pieces, head)
		rest = tail
	}
	return append(pieces, rest), true
}
