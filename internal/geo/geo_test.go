package geo

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
)

var origin = orb.Point{10.75, 59.91} // Oslo

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name       string
		east, north float64
		want       float64
	}{
		{"same point", 0, 0, 0},
		{"100 m east", 100, 0, 100},
		{"100 m north", 0, 100, 100},
		{"diagonal", 30, 40, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Offset(origin, tt.east, tt.north)
			got := Distance(origin, p)
			if !almostEqual(got, tt.want, 0.05) {
				t.Errorf("Distance = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestPointSegmentDistance(t *testing.T) {
	a := origin
	b := Offset(origin, 100, 0)

	tests := []struct {
		name        string
		east, north float64
		wantDist    float64
		wantT       float64
	}{
		{"perpendicular middle", 50, 5, 5, 0.5},
		{"on segment", 20, 0, 0, 0.2},
		{"before start clamps", -30, 40, 50, 0},
		{"after end clamps", 103, 4, 5, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Offset(origin, tt.east, tt.north)
			d, tp := PointSegmentDistance(p, a, b)
			if !almostEqual(d, tt.wantDist, 0.05) {
				t.Errorf("distance = %f, want %f", d, tt.wantDist)
			}
			if !almostEqual(tp, tt.wantT, 0.001) {
				t.Errorf("t = %f, want %f", tp, tt.wantT)
			}
		})
	}
}

func TestPointSegmentDistanceDegenerate(t *testing.T) {
	d, _ := PointSegmentDistance(Offset(origin, 5, 5), origin, origin)
	if !math.IsInf(d, 1) {
		t.Errorf("zero-length segment distance = %f, want +Inf", d)
	}
}

func TestLength(t *testing.T) {
	line := orb.LineString{origin, Offset(origin, 60, 0), Offset(origin, 60, 80)}
	if got := Length(line); !almostEqual(got, 140, 0.1) {
		t.Errorf("Length = %f, want 140", got)
	}
	if got := Length(orb.LineString{origin}); got != 0 {
		t.Errorf("single point length = %f, want 0", got)
	}
}

func TestBearing(t *testing.T) {
	tests := []struct {
		name        string
		east, north float64
		want        float64
	}{
		{"north", 0, 100, 0},
		{"east", 100, 0, 90},
		{"south", 0, -100, 180},
		{"west", -100, 0, 270},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Bearing(origin, Offset(origin, tt.east, tt.north))
			if !almostEqual(got, tt.want, 0.1) {
				t.Errorf("Bearing = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestSampleLineWeightsSumToLength(t *testing.T) {
	line := orb.LineString{origin, Offset(origin, 37, 0), Offset(origin, 37, 12)}
	samples := SampleLine(line, 5)

	total := 0.0
	for _, s := range samples {
		if s.Weight > 5+1e-9 {
			t.Errorf("sample weight %f exceeds interval", s.Weight)
		}
		total += s.Weight
	}
	if !almostEqual(total, Length(line), 1e-6) {
		t.Errorf("weights sum to %f, want %f", total, Length(line))
	}
	// ceil(37/5) + ceil(12/5)
	if len(samples) != 8+3 {
		t.Errorf("expected 11 samples, got %d", len(samples))
	}
}

func TestExpandCoversRadius(t *testing.T) {
	b := orb.LineString{origin, Offset(origin, 100, 0)}.Bound()
	e := Expand(b, 25)

	for _, p := range []orb.Point{
		Offset(origin, -24.9, 0),
		Offset(origin, 0, 24.9),
		Offset(origin, 50, -24.9),
		Offset(origin, 124.9, 0),
	} {
		if !e.Contains(p) {
			t.Errorf("expanded bound does not contain %v", p)
		}
	}
}

func TestJoinAndReverse(t *testing.T) {
	a := orb.LineString{origin, Offset(origin, 10, 0)}
	b := orb.LineString{Offset(origin, 10, 0), Offset(origin, 20, 0)}

	joined := Join(a, b)
	if len(joined) != 3 {
		t.Fatalf("expected 3 points, got %d", len(joined))
	}

	rev := Reverse(joined)
	if rev[0] != joined[2] || rev[2] != joined[0] {
		t.Errorf("Reverse did not reverse %v", joined)
	}
}

func TestSplitAt(t *testing.T) {
	line := orb.LineString{origin, Offset(origin, 50, 0), Offset(origin, 100, 0)}

	t.Run("cuts at nearest vertex", func(t *testing.T) {
		head, tail, ok := SplitAt(line, Offset(origin, 53, 3), 5)
		if !ok {
			t.Fatal("expected a cut")
		}
		if len(head) != 2 || len(tail) != 2 {
			t.Fatalf("expected 2+2 points, got %d+%d", len(head), len(tail))
		}
		if head[1] != line[1] || tail[0] != line[1] {
			t.Errorf("split not at existing vertex")
		}
		if !almostEqual(Length(head)+Length(tail), Length(line), 1e-6) {
			t.Errorf("pieces do not add up to the line")
		}
	})

	t.Run("refuses mid-segment cut", func(t *testing.T) {
		if _, _, ok := SplitAt(line, Offset(origin, 25, 2), 5); ok {
			t.Error("expected no cut when no vertex is near")
		}
	})

	t.Run("endpoints are not cut points", func(t *testing.T) {
		if _, _, ok := SplitAt(line, Offset(origin, -1, 0), 5); ok {
			t.Error("expected no cut at an endpoint")
		}
		two := orb.LineString{origin, Offset(origin, 100, 0)}
		if _, _, ok := SplitAt(two, Offset(origin, 50, 0), 100); ok {
			t.Error("a two-point line has no interior vertex")
		}
	})
}
