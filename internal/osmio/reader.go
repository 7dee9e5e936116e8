// Package osmio reads OSM files into networks and writes output features
// as JOSM-compatible OSM XML or GeoJSON.
package osmio

import (
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"
	"go.uber.org/zap"

	"github.com/wegman-software/osmconflate/internal/logger"
	"github.com/wegman-software/osmconflate/internal/network"
)

// Node is a node of a loaded file
type Node struct {
	ID      int64
	Version int
	Point   orb.Point
	Tags    map[string]string
}

// Tagged reports whether the node carries tags of its own
func (n *Node) Tagged() bool { return len(n.Tags) > 0 }

// Dataset is one loaded file
type Dataset struct {
	Path         string
	Network      *network.Network
	Nodes        map[int64]*Node
	WayVersions  map[int64]int
	Skipped      int // ways that could not be turned into a network way
	MissingNodes int // node references without a node in the file
	// SkippedNodes are nodes referenced by skipped ways. They are never
	// deleted on output.
	SkippedNodes map[int64]bool
}

// TagTransform rewrites way tags before they enter the network
type TagTransform func(tags map[string]string, origin network.Origin) (map[string]string, error)

// Options control loading
type Options struct {
	Transform TagTransform
}

// Load reads an .osm, .osm.gz, .osm.bz2 or .osm.pbf file
func Load(ctx context.Context, path string, origin network.Origin, opts Options) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".pbf"):
		scanner := osmpbf.New(ctx, f, runtime.NumCPU())
		defer scanner.Close()
		return read(path, scanner, origin, opts)
	case strings.HasSuffix(lower, ".gz"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	case strings.HasSuffix(lower, ".bz2"):
		r = bzip2.NewReader(f)
	}

	scanner := osmxml.New(ctx, r)
	defer scanner.Close()
	return read(path, scanner, origin, opts)
}

// Read loads OSM XML from a reader
func Read(ctx context.Context, r io.Reader, origin network.Origin, opts Options) (*Dataset, error) {
	scanner := osmxml.New(ctx, r)
	defer scanner.Close()
	return read("", scanner, origin, opts)
}

func read(path string, scanner osm.Scanner, origin network.Origin, opts Options) (*Dataset, error) {
	log := logger.Get()

	ds := &Dataset{
		Path:         path,
		Network:      network.New(origin),
		Nodes:        make(map[int64]*Node),
		WayVersions:  make(map[int64]int),
		SkippedNodes: make(map[int64]bool),
	}

	// Ways are built after the scan so that files listing ways before
	// their nodes still load
	var ways []*osm.Way
	for scanner.Scan() {
		switch o := scanner.Object().(type) {
		case *osm.Node:
			ds.Nodes[int64(o.ID)] = &Node{
				ID:      int64(o.ID),
				Version: o.Version,
				Point:   orb.Point{o.Lon, o.Lat},
				Tags:    tagMap(o.Tags),
			}
		case *osm.Way:
			ways = append(ways, o)
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read %s data: %w", origin, err)
	}

	for _, ow := range ways {
		id := int64(ow.ID)
		line := make(orb.LineString, 0, len(ow.Nodes))
		nodes := make([]int64, 0, len(ow.Nodes))
		complete := true
		for _, wn := range ow.Nodes {
			n, ok := ds.Nodes[int64(wn.ID)]
			if !ok {
				complete = false
				ds.MissingNodes++
				continue
			}
			line = append(line, n.Point)
			nodes = append(nodes, n.ID)
		}
		if !complete {
			log.Warn("Skipping incomplete way", zap.String("origin", origin.String()), zap.Int64("way_id", id))
			ds.skip(nodes)
			continue
		}

		tags := tagMap(ow.Tags)
		if opts.Transform != nil {
			t, err := opts.Transform(tags, origin)
			if err != nil {
				return nil, fmt.Errorf("tag transform of way %d: %w", id, err)
			}
			tags = t
		}

		w, err := network.NewWay(id, origin, line, nodes, tags)
		if err != nil {
			log.Warn("Skipping way", zap.String("origin", origin.String()), zap.Int64("way_id", id), zap.Error(err))
			ds.skip(nodes)
			continue
		}
		if err := ds.Network.Add(w); err != nil {
			log.Warn("Skipping way", zap.String("origin", origin.String()), zap.Int64("way_id", id), zap.Error(err))
			ds.skip(nodes)
			continue
		}
		ds.WayVersions[id] = ow.Version
	}

	log.Info("Loaded dataset",
		zap.String("origin", origin.String()),
		zap.String("path", path),
		zap.Int("nodes", len(ds.Nodes)),
		zap.Int("ways", ds.Network.Len()),
		zap.Int("skipped", ds.Skipped))

	return ds, nil
}

func tagMap(tags osm.Tags) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	return tags.Map()
}

func (ds *Dataset) skip(nodes []int64) {
	ds.Skipped++
	for _, id := range nodes {
		ds.SkippedNodes[id] = true
	}
}
