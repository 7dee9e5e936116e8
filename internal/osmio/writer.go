package osmio

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/paulmach/orb"

	"github.com/wegman-software/osmconflate/internal/decide"
	"github.com/wegman-software/osmconflate/internal/network"
)

type xmlOSM struct {
	XMLName   xml.Name  `xml:"osm"`
	Version   string    `xml:"version,attr"`
	Generator string    `xml:"generator,attr"`
	Upload    string    `xml:"upload,attr,omitempty"`
	Nodes     []xmlNode `xml:"node"`
	Ways      []xmlWay  `xml:"way"`
}

type xmlNode struct {
	ID      int64    `xml:"id,attr"`
	Action  string   `xml:"action,attr,omitempty"`
	Version int      `xml:"version,attr,omitempty"`
	Lat     string   `xml:"lat,attr"`
	Lon     string   `xml:"lon,attr"`
	Tags    []xmlTag `xml:"tag"`
}

type xmlWay struct {
	ID      int64    `xml:"id,attr"`
	Action  string   `xml:"action,attr,omitempty"`
	Version int      `xml:"version,attr,omitempty"`
	Nds     []xmlNd  `xml:"nd"`
	Tags    []xmlTag `xml:"tag"`
}

type xmlNd struct {
	Ref int64 `xml:"ref,attr"`
}

type xmlTag struct {
	K string `xml:"k,attr"`
	V string `xml:"v,attr"`
}

// Writer serialises output features as OSM XML for JOSM. Existing objects
// keep their ids; candidate and synthesized objects get fresh negative ids.
type Writer struct {
	Generator string
	// KeepReferenceNodes writes every node of the reference file. Untagged
	// nodes released by a modified way and referenced by no other reference
	// way, loaded or skipped, are marked for deletion. Otherwise only nodes
	// used by output ways are written.
	KeepReferenceNodes bool
}

// WriteFile writes the features to path
func (wr *Writer) WriteFile(path string, features []decide.Feature, ref, cand *Dataset) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := wr.Write(f, features, ref, cand); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// releasedNodes returns the reference nodes only held by ways the output
// modifies. Nodes of any other reference way stay referenced.
func releasedNodes(features []decide.Feature, ref *Dataset) map[int64]bool {
	modified := make(map[int64]bool)
	for _, f := range features {
		if f.Origin == network.Reference && f.Action == decide.ActionModify {
			modified[f.ID] = true
		}
	}

	released := make(map[int64]bool)
	kept := make(map[int64]bool, len(ref.SkippedNodes))
	for id := range ref.SkippedNodes {
		kept[id] = true
	}
	for _, w := range ref.Network.Ways() {
		target := kept
		if modified[w.ID()] {
			target = released
		}
		for _, id := range w.NodeIDs() {
			target[id] = true
		}
	}
	for id := range kept {
		delete(released, id)
	}
	return released
}

// Write writes the features as one OSM document
func (wr *Writer) Write(out io.Writer, features []decide.Feature, ref, cand *Dataset) error {
	doc := xmlOSM{Version: "0.6", Generator: wr.Generator, Upload: "false"}

	ids := newAllocator(ref)
	used := make(map[int64]bool)
	var created []xmlNode

	for _, f := range features {
		if len(f.Line) != len(f.Nodes) {
			return fmt.Errorf("feature %s %d has %d points and %d node refs", f.Origin, f.ID, len(f.Line), len(f.Nodes))
		}

		way := xmlWay{Tags: xmlTags(f.Tags)}
		switch f.Origin {
		case network.Reference:
			way.ID = f.ID
			if ref != nil {
				way.Version = ref.WayVersions[f.ID]
			}
			if f.Action == decide.ActionModify {
				way.Action = "modify"
			}
		default:
			way.ID = ids.next()
		}

		for i, nr := range f.Nodes {
			id, isNew := ids.node(nr, f.Line[i])
			if isNew {
				created = append(created, newNode(id, nr, f.Line[i], cand))
			}
			if nr.Origin == network.Reference && nr.ID != 0 {
				used[nr.ID] = true
			}
			way.Nds = append(way.Nds, xmlNd{Ref: id})
		}
		doc.Ways = append(doc.Ways, way)
	}

	if ref != nil {
		released := releasedNodes(features, ref)
		for _, id := range sortedNodeIDs(ref.Nodes) {
			n := ref.Nodes[id]
			node := xmlNode{ID: n.ID, Version: n.Version, Lat: formatCoord(n.Point.Lat()), Lon: formatCoord(n.Point.Lon()), Tags: xmlTags(n.Tags)}
			switch {
			case used[id]:
			case !wr.KeepReferenceNodes:
				continue
			case released[id] && !n.Tagged():
				node.Action = "delete"
			}
			doc.Nodes = append(doc.Nodes, node)
		}
	}
	doc.Nodes = append(doc.Nodes, created...)

	if _, err := io.WriteString(out, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(out)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode OSM XML: %w", err)
	}
	_, err := io.WriteString(out, "\n")
	return err
}

// allocator hands out negative ids below every id of the reference file
type allocator struct {
	last  int64
	nodes map[decide.NodeRef]int64
	synth map[orb.Point]int64
}

func newAllocator(ref *Dataset) *allocator {
	a := &allocator{nodes: make(map[decide.NodeRef]int64), synth: make(map[orb.Point]int64)}
	if ref != nil {
		for id := range ref.Nodes {
			a.last = min(a.last, id)
		}
		for _, id := range ref.Network.IDs() {
			a.last = min(a.last, id)
		}
	}
	return a
}

func (a *allocator) next() int64 {
	a.last--
	return a.last
}

// node returns the output id of a feature point and whether it is new
func (a *allocator) node(nr decide.NodeRef, p orb.Point) (int64, bool) {
	switch {
	case nr.Origin == network.Reference && nr.ID != 0:
		return nr.ID, false
	case nr.ID != 0:
		if id, ok := a.nodes[nr]; ok {
			return id, false
		}
		id := a.next()
		a.nodes[nr] = id
		return id, true
	default:
		if id, ok := a.synth[p]; ok {
			return id, false
		}
		id := a.next()
		a.synth[p] = id
		return id, true
	}
}

func newNode(id int64, nr decide.NodeRef, p orb.Point, cand *Dataset) xmlNode {
	n := xmlNode{ID: id, Lat: formatCoord(p.Lat()), Lon: formatCoord(p.Lon())}
	if cand != nil && nr.Origin == network.Candidate && nr.ID != 0 {
		if src, ok := cand.Nodes[nr.ID]; ok {
			n.Tags = xmlTags(src.Tags)
		}
	}
	return n
}

func xmlTags(tags map[string]string) []xmlTag {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]xmlTag, len(keys))
	for i, k := range keys {
		out[i] = xmlTag{K: k, V: tags[k]}
	}
	return out
}

func sortedNodeIDs(nodes map[int64]*Node) []int64 {
	ids := make([]int64, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 7, 64)
}
