// Package proj projects WGS84 road geometry for the review table
package proj

import (
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
)

// Supported SRIDs
const (
	SRID4326 = 4326 // WGS84 (lon/lat)
	SRID3857 = 3857 // Web Mercator
)

const (
	// WGS84 semi-major axis, metres
	earthRadius = 6378137.0
	maxExtent   = 20037508.342789244
	// latitude where Web Mercator turns square
	maxLat = 85.06
)

// Transformer projects lon/lat coordinates to a target SRID
type Transformer struct {
	TargetSRID int
}

// NewTransformer creates a transformer from WGS84 to the target SRID
func NewTransformer(targetSRID int) (*Transformer, error) {
	if targetSRID != SRID4326 && targetSRID != SRID3857 {
		return nil, fmt.Errorf("unsupported target SRID: %d (only 4326 and 3857 supported)", targetSRID)
	}
	return &Transformer{TargetSRID: targetSRID}, nil
}

// NeedsTransform reports whether coordinates change at all
func (t *Transformer) NeedsTransform() bool {
	return t.TargetSRID != SRID4326
}

// Point projects one point
func (t *Transformer) Point(p orb.Point) orb.Point {
	if !t.NeedsTransform() {
		return p
	}
	return webMercator(p)
}

// LineString returns a projected copy of the line
func (t *Transformer) LineString(line orb.LineString) orb.LineString {
	out := make(orb.LineString, len(line))
	for i, p := range line {
		out[i] = t.Point(p)
	}
	return out
}

func webMercator(p orb.Point) orb.Point {
	lat := math.Max(-maxLat, math.Min(maxLat, p.Lat()))
	x := p.Lon() * maxExtent / 180.0
	y := math.Log(math.Tan(math.Pi/4.0+lat*math.Pi/360.0)) * earthRadius
	return orb.Point{x, y}
}

// ParseSRID accepts "4326", "3857" and their "EPSG:" forms
func ParseSRID(s string) (int, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "4326", "EPSG:4326":
		return SRID4326, nil
	case "3857", "EPSG:3857":
		return SRID3857, nil
	default:
		return 0, fmt.Errorf("unsupported projection: %s (supported: 4326, 3857)", s)
	}
}
