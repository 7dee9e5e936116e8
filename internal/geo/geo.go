// Package geo holds the distance primitives shared by the whole engine.
//
// All distances use the same equirectangular approximation so that the
// thresholds applied by the index, the scorer and the decision engine stay
// comparable. The approximation is accurate to well below a metre for the
// sub-kilometre distances conflation works with.
package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// EarthRadius is the mean earth radius in metres
const EarthRadius = 6371000.0

// MetersPerDegree is the length of one degree of latitude under EarthRadius
const MetersPerDegree = EarthRadius * math.Pi / 180.0

const (
	pi180    = math.Pi / 180.0
	pi180Rev = 180.0 / math.Pi
)

// Distance returns the distance in metres between two points
func Distance(a, b orb.Point) float64 {
	lat1 := a.Lat() * pi180
	lat2 := b.Lat() * pi180
	x := (b.Lon() - a.Lon()) * pi180 * math.Cos(0.5*(lat1+lat2))
	y := lat2 - lat1
	return EarthRadius * math.Sqrt(x*x+y*y)
}

// PointSegmentDistance returns the distance in metres from p to the closest
// point of segment a-b, clamped to the segment endpoints, together with the
// projection parameter t in [0, 1]. Zero-length segments give +Inf.
func PointSegmentDistance(p, a, b orb.Point) (float64, float64) {
	if a == b {
		return math.Inf(1), 0
	}

	// Local planar frame centred on p
	k := math.Cos(p.Lat() * pi180)
	ax, ay := (a.Lon()-p.Lon())*k, a.Lat()-p.Lat()
	bx, by := (b.Lon()-p.Lon())*k, b.Lat()-p.Lat()

	dx, dy := bx-ax, by-ay
	den := dx*dx + dy*dy
	if den == 0 {
		return math.Inf(1), 0
	}

	t := -(ax*dx + ay*dy) / den
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}

	return Distance(p, Interpolate(a, b, t)), t
}

// Interpolate returns the point at parameter t along a-b
func Interpolate(a, b orb.Point, t float64) orb.Point {
	return orb.Point{
		a.Lon() + (b.Lon()-a.Lon())*t,
		a.Lat() + (b.Lat()-a.Lat())*t,
	}
}

// Length returns the length of a line in metres
func Length(line orb.LineString) float64 {
	total := 0.0
	for i := 1; i < len(line); i++ {
		total += Distance(line[i-1], line[i])
	}
	return total
}

// Bearing returns the initial bearing from a to b in degrees [0, 360)
func Bearing(a, b orb.Point) float64 {
	lat1 := a.Lat() * pi180
	lat2 := b.Lat() * pi180
	dLon := (b.Lon() - a.Lon()) * pi180

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)

	deg := math.Atan2(y, x) * pi180Rev
	if deg < 0 {
		deg += 360
	}
	return deg
}

// Sample is a point on a line standing in for Weight metres of it
type Sample struct {
	Point  orb.Point
	Weight float64
}

// SampleLine places samples along a line so that no sample represents more
// than interval metres. Each segment is cut into equal pieces and sampled at
// the piece midpoints, so the weights add up to the line length.
func SampleLine(line orb.LineString, interval float64) []Sample {
	if len(line) < 2 || interval <= 0 {
		return nil
	}

	samples := make([]Sample, 0, len(line))
	for i := 1; i < len(line); i++ {
		segLen := Distance(line[i-1], line[i])
		if segLen == 0 {
			continue
		}
		n := int(math.Ceil(segLen / interval))
		step := 1.0 / float64(n)
		for j := 0; j < n; j++ {
			samples = append(samples, Sample{
				Point:  Interpolate(line[i-1], line[i], (float64(j)+0.5)*step),
				Weight: segLen * step,
			})
		}
	}
	return samples
}

// Expand grows a bound by the given distance in metres
func Expand(b orb.Bound, meters float64) orb.Bound {
	dLat := meters / MetersPerDegree
	maxAbsLat := math.Max(math.Abs(b.Min.Lat()), math.Abs(b.Max.Lat())) + dLat
	if maxAbsLat > 89 {
		maxAbsLat = 89
	}
	dLon := meters / (MetersPerDegree * math.Cos(maxAbsLat*pi180))

	return orb.Bound{
		Min: orb.Point{b.Min.Lon() - dLon, b.Min.Lat() - dLat},
		Max: orb.Point{b.Max.Lon() + dLon, b.Max.Lat() + dLat},
	}
}

// Reverse returns a reversed copy of a line
func Reverse(line orb.LineString) orb.LineString {
	out := make(orb.LineString, len(line))
	for i, p := range line {
		out[len(line)-1-i] = p
	}
	return out
}

// Join concatenates lines that continue each other, dropping the repeated
// point where one line ends and the next begins
func Join(lines ...orb.LineString) orb.LineString {
	var out orb.LineString
	for _, line := range lines {
		for i, p := range line {
			if i == 0 && len(out) > 0 && out[len(out)-1] == p {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}

// Project returns the segment index, parameter and distance of the point on
// line closest to p
func Project(line orb.LineString, p orb.Point) (int, float64, float64) {
	bestSeg, bestT, best := -1, 0.0, math.Inf(1)
	for i := 1; i < len(line); i++ {
		d, t := PointSegmentDistance(p, line[i-1], line[i])
		if d < best {
			bestSeg, bestT, best = i-1, t, d
		}
	}
	return bestSeg, bestT, best
}

// SplitAt cuts a line at its interior vertex nearest to p. The cut is
// refused when no interior vertex lies within tolerance metres of p, so a
// line is never cut mid-segment. Both pieces share the cut vertex.
func SplitAt(line orb.LineString, p orb.Point, tolerance float64) (orb.LineString, orb.LineString, bool) {
	idx, best := -1, math.Inf(1)
	for i := 1; i < len(line)-1; i++ {
		if d := Distance(line[i], p); d < best {
			idx, best = i, d
		}
	}
	if idx < 0 || best > tolerance {
		return nil, nil, false
	}

	head := append(orb.LineString(nil), line[:idx+1]...)
	tail := append(orb.LineString(nil), line[idx:]...)
	return head, tail, true
}

// Offset moves a point by the given east/north distances in metres
func Offset(p orb.Point, east, north float64) orb.Point {
	dLat := north / MetersPerDegree
	dLon := east / (MetersPerDegree * math.Cos(p.Lat()*pi180))
	return orb.Point{p.Lon() + dLon, p.Lat() + dLat}
}
