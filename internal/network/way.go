package network

import (
	"errors"
	"fmt"
	"sort"

	"github.com/paulmach/orb"

	"github.com/wegman-software/osmconflate/internal/geo"
)

// Origin tells which dataset a way was loaded from
type Origin int

const (
	Reference Origin = iota // existing network (OSM)
	Candidate               // incoming network (NVDB/Elveg)
)

// String returns the origin name used in logs and reports
func (o Origin) String() string {
	switch o {
	case Reference:
		return "reference"
	case Candidate:
		return "candidate"
	default:
		return fmt.Sprintf("origin(%d)", int(o))
	}
}

// Opposite returns the other network's origin
func (o Origin) Opposite() Origin {
	if o == Reference {
		return Candidate
	}
	return Reference
}

// ErrDegenerateGeometry marks ways with fewer than two points or no length
var ErrDegenerateGeometry = errors.New("degenerate geometry")

// Way is an immutable road polyline with tags
type Way struct {
	id     int64
	origin Origin
	line   orb.LineString
	nodes  []int64
	tags   map[string]string
	length float64
}

// NewWay builds a way from its points. nodes may be nil; when given it must
// hold one node id per point. Points and tags are copied.
func NewWay(id int64, origin Origin, line orb.LineString, nodes []int64, tags map[string]string) (*Way, error) {
	if len(line) < 2 {
		return nil, fmt.Errorf("way %d has %d points: %w", id, len(line), ErrDegenerateGeometry)
	}
	if nodes != nil && len(nodes) != len(line) {
		return nil, fmt.Errorf("way %d has %d node ids for %d points", id, len(nodes), len(line))
	}

	length := geo.Length(line)
	if length == 0 {
		return nil, fmt.Errorf("way %d has zero length: %w", id, ErrDegenerateGeometry)
	}

	w := &Way{
		id:     id,
		origin: origin,
		line:   append(orb.LineString(nil), line...),
		tags:   make(map[string]string, len(tags)),
		length: length,
	}
	if nodes != nil {
		w.nodes = append([]int64(nil), nodes...)
	}
	for k, v := range tags {
		w.tags[k] = v
	}
	return w, nil
}

// ID returns the way id within its network
func (w *Way) ID() int64 { return w.id }

// Origin returns the network the way belongs to
func (w *Way) Origin() Origin { return w.origin }

// Length returns the way length in metres
func (w *Way) Length() float64 { return w.length }

// NumPoints returns the number of points
func (w *Way) NumPoints() int { return len(w.line) }

// Point returns the i-th point
func (w *Way) Point(i int) orb.Point { return w.line[i] }

// Line returns a copy of the geometry
func (w *Way) Line() orb.LineString {
	return append(orb.LineString(nil), w.line...)
}

// NodeIDs returns a copy of the node ids, or nil when the source had none
func (w *Way) NodeIDs() []int64 {
	if w.nodes == nil {
		return nil
	}
	return append([]int64(nil), w.nodes...)
}

// NodeID returns the node id of the i-th point, 0 when unknown
func (w *Way) NodeID(i int) int64 {
	if w.nodes == nil {
		return 0
	}
	return w.nodes[i]
}

// Bound returns the bounding box of the geometry
func (w *Way) Bound() orb.Bound { return w.line.Bound() }

// Tag returns a tag value, empty when absent
func (w *Way) Tag(key string) string { return w.tags[key] }

// HasTag reports whether the key is present
func (w *Way) HasTag(key string) bool {
	_, ok := w.tags[key]
	return ok
}

// Highway returns the highway classification
func (w *Way) Highway() string { return w.tags["highway"] }

// Tags returns a copy of the tag map
func (w *Way) Tags() map[string]string {
	out := make(map[string]string, len(w.tags))
	for k, v := range w.tags {
		out[k] = v
	}
	return out
}

// TagKeys returns the tag keys in sorted order
func (w *Way) TagKeys() []string {
	keys := make([]string, 0, len(w.tags))
	for k := range w.tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WithTags returns a copy of the way carrying other tags
func (w *Way) WithTags(tags map[string]string) *Way {
	c := *w
	c.tags = make(map[string]string, len(tags))
	for k, v := range tags {
		c.tags[k] = v
	}
	return &c
}

// endpointKey identifies a way end for topology. Node ids are used when the
// source provides them, otherwise the coordinate rounded to 1e-7 degrees.
type endpointKey struct {
	node     int64
	lon, lat int64
}

func (w *Way) endKey(i int) endpointKey {
	if id := w.NodeID(i); id != 0 {
		return endpointKey{node: id}
	}
	p := w.line[i]
	return endpointKey{lon: roundE7(p.Lon()), lat: roundE7(p.Lat())}
}

func roundE7(v float64) int64 {
	if v < 0 {
		return int64(v*1e7 - 0.5)
	}
	return int64(v*1e7 + 0.5)
}
