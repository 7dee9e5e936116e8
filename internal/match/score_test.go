package match

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wegman-software/osmconflate/internal/network"
	"github.com/wegman-software/osmconflate/internal/spatial"
)

func TestOverlapIsMonotonic(t *testing.T) {
	ref := buildNet(t, network.Reference, road(1, [2]float64{0, 0}, [2]float64{100, 0}))
	base, _ := ref.Way(1)

	prev := -1.0
	for _, length := range []float64{10, 30, 50, 70, 90, 110} {
		cand := buildNet(t, network.Candidate, road(-1, [2]float64{-10, 6}, [2]float64{-10 + length, 6}))
		p := buildProfile(base, spatial.Build(cand), 25, 5, nil)

		sc := p.score([]int64{-1})
		assert.GreaterOrEqual(t, sc.Overlap, prev, "candidate length %g", length)
		assert.Equal(t, len(p.samples), sc.Covered+sc.Excluded)
		prev = sc.Overlap
	}
	assert.InDelta(t, 1.0, prev, 1e-9)
}

func TestProfileDistancesAreExact(t *testing.T) {
	ref := buildNet(t, network.Reference, road(1, [2]float64{0, 0}, [2]float64{50, 10}, [2]float64{100, 0}))
	cand := buildNet(t, network.Candidate, road(-1, [2]float64{0, 8}, [2]float64{100, 8}))
	base, _ := ref.Way(1)
	idx := spatial.Build(cand)

	p := buildProfile(base, idx, 25, 5, nil)
	require.Equal(t, []int64{-1}, p.ids)

	for i, s := range p.samples {
		assert.InDelta(t, idx.NearestDistance(s.Point, -1), p.dist[-1][i], 1e-9)
	}
}

func TestScoreTakesClosestWayPerSample(t *testing.T) {
	ref := buildNet(t, network.Reference, road(1, [2]float64{0, 0}, [2]float64{100, 0}))
	cand := buildNet(t, network.Candidate,
		road(-1, [2]float64{0, 2}, [2]float64{100, 2}),
		road(-2, [2]float64{0, 10}, [2]float64{100, 10}),
	)
	base, _ := ref.Way(1)
	p := buildProfile(base, spatial.Build(cand), 25, 5, nil)

	both := p.score([]int64{-1, -2})
	near := p.score([]int64{-1})
	far := p.score([]int64{-2})

	assert.InDelta(t, near.AvgDistance, both.AvgDistance, 1e-9)
	assert.InDelta(t, 10.0, far.AvgDistance, 0.05)
	assert.True(t, math.IsInf(p.score([]int64{-3}).AvgDistance, 1))
}

func TestBetter(t *testing.T) {
	tests := []struct {
		name string
		a, b Candidate
		want bool
	}{
		{
			name: "lower distance wins",
			a:    Candidate{Ways: []int64{2}, Score: Score{AvgDistance: 3, Overlap: 0.5}},
			b:    Candidate{Ways: []int64{1}, Score: Score{AvgDistance: 4, Overlap: 1}},
			want: true,
		},
		{
			name: "equal distance prefers overlap",
			a:    Candidate{Ways: []int64{2}, Score: Score{AvgDistance: 3, Overlap: 0.9}},
			b:    Candidate{Ways: []int64{1}, Score: Score{AvgDistance: 3, Overlap: 0.8}},
			want: true,
		},
		{
			name: "full tie prefers lower ids",
			a:    Candidate{Ways: []int64{1, 5}, Score: Score{AvgDistance: 3, Overlap: 1}},
			b:    Candidate{Ways: []int64{2}, Score: Score{AvgDistance: 3, Overlap: 1}},
			want: true,
		},
		{
			name: "prefix sorts first",
			a:    Candidate{Ways: []int64{1, 5}, Score: Score{AvgDistance: 3, Overlap: 1}},
			b:    Candidate{Ways: []int64{1}, Score: Score{AvgDistance: 3, Overlap: 1}},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, better(tt.a, tt.b))
		})
	}
}

func TestSplitChains(t *testing.T) {
	cand := buildNet(t, network.Candidate,
		road(-1, [2]float64{0, 0}, [2]float64{50, 0}),
		road(-2, [2]float64{50, 0}, [2]float64{100, 0}),
		road(-3, [2]float64{100, 0}, [2]float64{150, 0}),
		road(-4, [2]float64{300, 0}, [2]float64{350, 0}),
		// branches off the start of -2, where -1 already enters it
		road(-5, [2]float64{50, 0}, [2]float64{50, 50}),
	)

	tests := []struct {
		name  string
		order []int64
		want  [][]int64
	}{
		{"straight chain", []int64{-1, -2, -3}, [][]int64{{-1, -2, -3}}},
		{"gap splits", []int64{-1, -2, -4}, [][]int64{{-1, -2}}},
		{"single way", []int64{-4}, nil},
		{"no reuse of entry end", []int64{-1, -2, -5}, [][]int64{{-1, -2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitChains(tt.order, cand))
		})
	}
}

func TestJoinWaysOrientsSegments(t *testing.T) {
	cand := buildNet(t, network.Candidate,
		road(-1, [2]float64{100, 0}, [2]float64{0, 0}),
		road(-2, [2]float64{200, 0}, [2]float64{100, 0}),
	)

	line := JoinWays(cand, []int64{-1, -2})
	require.Len(t, line, 3)
	assert.Equal(t, at(0, 0), line[0])
	assert.Equal(t, at(200, 0), line[2])
	assert.Nil(t, JoinWays(cand, []int64{-9}))
}
