// Package decide turns match results into output features according to the
// selected mode.
package decide

import (
	"sort"

	"github.com/paulmach/orb"

	"github.com/wegman-software/osmconflate/internal/geo"
	"github.com/wegman-software/osmconflate/internal/match"
	"github.com/wegman-software/osmconflate/internal/network"
)

// Action is the JOSM action attribute of an output feature
type Action string

const (
	ActionNone   Action = "none"
	ActionModify Action = "modify"
	ActionCreate Action = "create"
)

// Diagnostic tag keys
const (
	TagNoMatch    = "NO_MATCH"
	TagEdit       = "EDIT"
	TagConsider   = "CONSIDER"
	TagDiff       = "DIFF"
	TagNewSegment = "NEW_SEGMENT"

	// debug
	TagOSMID    = "OSMID"
	TagDistance = "DISTANCE"
	TagOverlap  = "OVERLAP"
)

// NodeRef identifies the node behind a feature point. ID 0 marks a point
// with no source node.
type NodeRef struct {
	Origin network.Origin
	ID     int64
}

// Feature is one way of the output file
type Feature struct {
	ID      int64          // way id within Origin
	Origin  network.Origin // dataset the id belongs to
	Action  Action
	Line    orb.LineString
	Nodes   []NodeRef // one per point of Line
	Tags    map[string]string
	Sources []int64 // candidate ways the geometry or tags came from
	State   match.State
}

// TagKeys returns the tag keys in sorted order
func (f Feature) TagKeys() []string {
	keys := make([]string, 0, len(f.Tags))
	for k := range f.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Length returns the length of the feature geometry in metres
func (f Feature) Length() float64 {
	return geo.Length(f.Line)
}

// wayNodes returns the node refs of a way's own points
func wayNodes(w *network.Way) []NodeRef {
	refs := make([]NodeRef, w.NumPoints())
	for i := range refs {
		refs[i] = NodeRef{Origin: w.Origin(), ID: w.NodeID(i)}
	}
	return refs
}

// lookupNodes maps the points of a derived line back to the nodes of the
// ways it was built from. Points no source way has become ID 0.
func lookupNodes(line orb.LineString, net *network.Network, ids []int64) []NodeRef {
	known := make(map[orb.Point]int64)
	for _, id := range ids {
		w, ok := net.Way(id)
		if !ok {
			continue
		}
		for i := 0; i < w.NumPoints(); i++ {
			if n := w.NodeID(i); n != 0 {
				known[w.Point(i)] = n
			}
		}
	}

	refs := make([]NodeRef, len(line))
	for i, p := range line {
		refs[i] = NodeRef{Origin: net.Origin(), ID: known[p]}
	}
	return refs
}
