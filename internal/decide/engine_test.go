package decide

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wegman-software/osmconflate/internal/config"
	"github.com/wegman-software/osmconflate/internal/geo"
	"github.com/wegman-software/osmconflate/internal/match"
	"github.com/wegman-software/osmconflate/internal/network"
)

var testOrigin = orb.Point{10.75, 59.91}

func at(east, north float64) orb.Point { return geo.Offset(testOrigin, east, north) }

type wayDef struct {
	id    int64
	from  [2]float64
	to    [2]float64
	nodes []int64
	tags  map[string]string
}

func buildNet(t *testing.T, origin network.Origin, defs ...wayDef) *network.Network {
	t.Helper()
	n := network.New(origin)
	for _, d := range defs {
		w, err := network.NewWay(d.id, origin, orb.LineString{at(d.from[0], d.from[1]), at(d.to[0], d.to[1])}, d.nodes, d.tags)
		require.NoError(t, err)
		require.NoError(t, n.Add(w))
	}
	return n
}

func residential(extra map[string]string) map[string]string {
	tags := map[string]string{"highway": "residential"}
	for k, v := range extra {
		tags[k] = v
	}
	return tags
}

func decideAll(t *testing.T, cfg *config.Config, ref, cand *network.Network) []Feature {
	t.Helper()
	res, err := match.New(cfg, nil).Run(context.Background(), ref, cand)
	require.NoError(t, err)

	engine, err := NewEngine(cfg, nil)
	require.NoError(t, err)
	return engine.Decide(ref, cand, res)
}

func modeConfig(mode config.Mode) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Mode = mode
	cfg.Workers = 2
	return cfg
}

func find(fs []Feature, origin network.Origin, id int64) (Feature, bool) {
	for _, f := range fs {
		if f.Origin == origin && f.ID == id {
			return f, true
		}
	}
	return Feature{}, false
}

func TestTagRefEditsDifferingMaxspeed(t *testing.T) {
	ref := buildNet(t, network.Reference, wayDef{
		id: 10, from: [2]float64{0, 0}, to: [2]float64{100, 0},
		tags: map[string]string{"highway": "secondary", "ref": "Fv123", "maxspeed": "50", "surface": "asphalt"},
	})
	cand := buildNet(t, network.Candidate, wayDef{
		id: -10, from: [2]float64{0, 3}, to: [2]float64{100, 3},
		tags: map[string]string{"highway": "secondary", "ref": "Fv123", "maxspeed": "60", "surface": "asphalt", "nvdb:id": "778"},
	})

	fs := decideAll(t, modeConfig(config.ModeTagRef), ref, cand)
	require.Len(t, fs, 1)

	f := fs[0]
	assert.Equal(t, int64(10), f.ID)
	assert.Equal(t, ActionModify, f.Action)
	assert.Equal(t, "Modified maxspeed=50 to 60", f.Tags[TagEdit])
	assert.Equal(t, "60", f.Tags["maxspeed"])
	assert.Equal(t, "Fv123", f.Tags["ref"])
	assert.NotContains(t, f.Tags, TagConsider)
	assert.NotContains(t, f.Tags, TagDiff)
	assert.NotContains(t, f.Tags, "nvdb:id")

	// geometry stays the reference geometry
	assert.Equal(t, orb.LineString{at(0, 0), at(100, 0)}, f.Line)
}

func TestTagModeSurfacesConsiderAndDiff(t *testing.T) {
	ref := buildNet(t, network.Reference, wayDef{
		id: 1, from: [2]float64{0, 0}, to: [2]float64{100, 0},
		tags: residential(map[string]string{"surface": "gravel"}),
	})
	cand := buildNet(t, network.Candidate, wayDef{
		id: -1, from: [2]float64{0, 2}, to: [2]float64{100, 2},
		tags: residential(map[string]string{"surface": "asphalt", "oneway": "yes", "name": "Bakkeveien"}),
	})

	fs := decideAll(t, modeConfig(config.ModeTagLocal), ref, cand)
	require.Len(t, fs, 1)

	f := fs[0]
	assert.Equal(t, "Added name=Bakkeveien", f.Tags[TagEdit])
	assert.Equal(t, "Added oneway=yes", f.Tags[TagConsider])
	assert.Equal(t, "surface=gravel vs asphalt", f.Tags[TagDiff])
	assert.Equal(t, "gravel", f.Tags["surface"])
	assert.NotContains(t, f.Tags, "oneway")
}

func TestTagRefLeavesLocalRoadsAlone(t *testing.T) {
	ref := buildNet(t, network.Reference, wayDef{
		id: 1, from: [2]float64{0, 0}, to: [2]float64{100, 0},
		tags: residential(map[string]string{"maxspeed": "30"}),
	})
	cand := buildNet(t, network.Candidate, wayDef{
		id: -1, from: [2]float64{0, 2}, to: [2]float64{100, 2},
		tags: residential(map[string]string{"maxspeed": "40"}),
	})

	fs := decideAll(t, modeConfig(config.ModeTagRef), ref, cand)
	require.Len(t, fs, 1)
	assert.Equal(t, ActionNone, fs[0].Action)
	assert.Equal(t, "30", fs[0].Tags["maxspeed"])
	assert.NotContains(t, fs[0].Tags, TagEdit)
}

func TestTagModeFlagsUnmatchedReference(t *testing.T) {
	ref := buildNet(t, network.Reference, wayDef{
		id: 1, from: [2]float64{0, 0}, to: [2]float64{100, 0},
		tags: map[string]string{"highway": "tertiary"},
	})
	// Covers only about a fifth of the reference
	cand := buildNet(t, network.Candidate, wayDef{
		id: -1, from: [2]float64{10, 22}, to: [2]float64{10, 122},
		tags: map[string]string{"highway": "tertiary"},
	})

	fs := decideAll(t, modeConfig(config.ModeTagRef), ref, cand)
	require.Len(t, fs, 1)
	assert.Equal(t, "yes", fs[0].Tags[TagNoMatch])
}

func TestOffsetDropsAlignedPair(t *testing.T) {
	ref := buildNet(t, network.Reference, wayDef{id: 1, from: [2]float64{0, 0}, to: [2]float64{100, 0}, tags: residential(nil)})
	cand := buildNet(t, network.Candidate, wayDef{id: -1, from: [2]float64{0, 5}, to: [2]float64{100, 5}, tags: residential(nil)})

	cfg := modeConfig(config.ModeOffset)
	cfg.OffsetThreshold = 10
	assert.Empty(t, decideAll(t, cfg, ref, cand))
}

func TestOffsetEmitsDistantPair(t *testing.T) {
	ref := buildNet(t, network.Reference, wayDef{id: 1, from: [2]float64{0, 0}, to: [2]float64{100, 0}, tags: residential(nil)})
	cand := buildNet(t, network.Candidate, wayDef{
		id: -1, from: [2]float64{0, 12}, to: [2]float64{100, 12},
		tags: map[string]string{"highway": "unclassified"},
	})

	cfg := modeConfig(config.ModeOffset)
	cfg.OffsetThreshold = 10
	cfg.OffsetEmitBoth = true
	cfg.Debug = true
	fs := decideAll(t, cfg, ref, cand)
	require.Len(t, fs, 2)

	r, ok := find(fs, network.Reference, 1)
	require.True(t, ok)
	assert.Equal(t, "average offset 12.0 m", r.Tags[TagConsider])

	c, ok := find(fs, network.Candidate, -1)
	require.True(t, ok)
	assert.Equal(t, ActionCreate, c.Action)
	assert.Equal(t, "residential", c.Tags["highway"])
	assert.Equal(t, "unclassified", c.Tags["NVDB"])
	assert.Equal(t, "1", c.Tags[TagOSMID])
	assert.Equal(t, "12", c.Tags[TagDistance])
	assert.Equal(t, "100%", c.Tags[TagOverlap])
}

func TestNewModeAddsMissingRoads(t *testing.T) {
	ref := buildNet(t, network.Reference,
		wayDef{id: 1, from: [2]float64{0, 0}, to: [2]float64{100, 0}, tags: residential(nil)},
		wayDef{id: 2, from: [2]float64{0, 50}, to: [2]float64{100, 50}, tags: map[string]string{"building": "yes"}},
	)
	cand := buildNet(t, network.Candidate,
		wayDef{id: -1, from: [2]float64{0, 2}, to: [2]float64{100, 2}, tags: residential(nil)},
		wayDef{id: -2, from: [2]float64{0, 400}, to: [2]float64{100, 400}, tags: residential(map[string]string{"nvdb:date": "2024-01-01"})},
	)

	fs := decideAll(t, modeConfig(config.ModeNew), ref, cand)
	require.Len(t, fs, 3)

	for _, id := range []int64{1, 2} {
		f, ok := find(fs, network.Reference, id)
		require.True(t, ok)
		assert.Equal(t, ActionNone, f.Action)
	}

	f, ok := find(fs, network.Candidate, -2)
	require.True(t, ok)
	assert.Equal(t, ActionCreate, f.Action)
	assert.Equal(t, orb.LineString{at(0, 400), at(100, 400)}, f.Line)
	assert.NotContains(t, f.Tags, "nvdb:date")
	assert.NotContains(t, f.Tags, TagNewSegment)

	_, ok = find(fs, network.Candidate, -1)
	assert.False(t, ok, "matched candidate must not be added")
}

func TestNewModeKeepsLaneTaggedRoads(t *testing.T) {
	ref := buildNet(t, network.Reference,
		wayDef{id: 1, from: [2]float64{0, 0}, to: [2]float64{100, 0}, tags: map[string]string{
			"highway": "primary", "turn:lanes": "left|through", "destination": "Drammen",
		}},
	)
	cand := buildNet(t, network.Candidate,
		wayDef{id: -1, from: [2]float64{0, 2}, to: [2]float64{100, 2}, tags: map[string]string{"highway": "primary"}},
	)

	fs := decideAll(t, modeConfig(config.ModeNew), ref, cand)

	_, ok := find(fs, network.Candidate, -1)
	assert.False(t, ok, "candidate next to an existing primary must not be added")
	f, ok := find(fs, network.Reference, 1)
	require.True(t, ok)
	assert.Equal(t, match.Matched, f.State)
}

func TestModeAliasesUseCanonicalPolicy(t *testing.T) {
	ref := buildNet(t, network.Reference,
		wayDef{id: 1, from: [2]float64{0, 0}, to: [2]float64{100, 0}, tags: residential(nil)},
	)
	cand := buildNet(t, network.Candidate,
		wayDef{id: -1, from: [2]float64{0, 400}, to: [2]float64{100, 400}, tags: residential(nil)},
	)

	cfg := modeConfig("NEW")
	fs := decideAll(t, cfg, ref, cand)
	assert.Equal(t, config.ModeNew, cfg.Mode)
	assert.Equal(t, 0.6, cfg.MinOverlapFor(cfg.Mode))

	f, ok := find(fs, network.Candidate, -1)
	require.True(t, ok)
	assert.Equal(t, ActionCreate, f.Action)
}

func TestReplaceSwapsGeometryAndTags(t *testing.T) {
	ref := buildNet(t, network.Reference,
		wayDef{
			id: 1, from: [2]float64{0, 0}, to: [2]float64{100, 0}, nodes: []int64{11, 12},
			tags: residential(map[string]string{"name": "Old Road", "surface": "gravel", "source": "survey"}),
		},
		wayDef{id: 2, from: [2]float64{0, 300}, to: [2]float64{100, 300}, nodes: []int64{21, 22}, tags: residential(nil)},
	)
	cand := buildNet(t, network.Candidate,
		wayDef{
			id: -1, from: [2]float64{0, 3}, to: [2]float64{100, 3}, nodes: []int64{-11, -12},
			tags: map[string]string{"highway": "unclassified", "name": "New Road", "nvdb:id": "5"},
		},
		wayDef{id: -2, from: [2]float64{0, 600}, to: [2]float64{6, 600}, tags: map[string]string{"highway": "gang_og_sykkel"}},
	)

	fs := decideAll(t, modeConfig(config.ModeReplace), ref, cand)
	require.Len(t, fs, 3)

	f, ok := find(fs, network.Reference, 1)
	require.True(t, ok)
	assert.Equal(t, ActionModify, f.Action)
	assert.Equal(t, orb.LineString{at(0, 3), at(100, 3)}, f.Line)
	assert.Equal(t, []NodeRef{{network.Candidate, -11}, {network.Candidate, -12}}, f.Nodes)
	assert.Equal(t, map[string]string{
		"highway": "residential",
		"NVDB":    "unclassified",
		"name":    "New Road",
		"surface": "gravel",
	}, f.Tags)

	f, ok = find(fs, network.Reference, 2)
	require.True(t, ok)
	assert.Equal(t, "yes", f.Tags[TagNoMatch])
	assert.Equal(t, ActionNone, f.Action)

	f, ok = find(fs, network.Candidate, -2)
	require.True(t, ok)
	assert.Equal(t, "gang_og_sykkel", f.Tags["NVDB"])
	assert.Equal(t, "6.0 m", f.Tags[TagNewSegment])
}

func TestDecideIsIdempotent(t *testing.T) {
	ref := buildNet(t, network.Reference,
		wayDef{id: 1, from: [2]float64{0, 0}, to: [2]float64{100, 0}, tags: residential(map[string]string{"maxspeed": "30"})},
		wayDef{id: 2, from: [2]float64{100, 0}, to: [2]float64{200, 0}, tags: residential(nil)},
		wayDef{id: 3, from: [2]float64{0, -4}, to: [2]float64{100, -4}, tags: residential(nil)},
	)
	cand := buildNet(t, network.Candidate,
		wayDef{id: -1, from: [2]float64{0, 3}, to: [2]float64{200, 3}, tags: residential(map[string]string{"maxspeed": "40"})},
		wayDef{id: -2, from: [2]float64{0, 500}, to: [2]float64{100, 500}, tags: residential(nil)},
	)

	for _, mode := range config.Modes {
		t.Run(string(mode), func(t *testing.T) {
			first := decideAll(t, modeConfig(mode), ref, cand)
			second := decideAll(t, modeConfig(mode), ref, cand)
			assert.Equal(t, first, second)
		})
	}
}

func TestDecideDoesNotMutateInputs(t *testing.T) {
	ref := buildNet(t, network.Reference, wayDef{
		id: 1, from: [2]float64{0, 0}, to: [2]float64{100, 0},
		tags: map[string]string{"highway": "primary", "maxspeed": "70"},
	})
	cand := buildNet(t, network.Candidate, wayDef{
		id: -1, from: [2]float64{0, 2}, to: [2]float64{100, 2},
		tags: map[string]string{"highway": "primary", "maxspeed": "80"},
	})

	decideAll(t, modeConfig(config.ModeTagRef), ref, cand)
	decideAll(t, modeConfig(config.ModeReplace), ref, cand)

	w, _ := ref.Way(1)
	assert.Equal(t, map[string]string{"highway": "primary", "maxspeed": "70"}, w.Tags())
}

func TestNewEngineRejectsInvalidConfig(t *testing.T) {
	cfg := modeConfig("merge")
	_, err := NewEngine(cfg, nil)
	assert.True(t, errors.Is(err, config.ErrInvalidConfig))
}

func TestLoadPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tags:\n  surface: edit\n  lanes: ignore\n"), 0644))

	p, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, Edit, p.TreatmentOf("surface"))
	assert.Equal(t, Ignore, p.TreatmentOf("lanes"))
	assert.Equal(t, Edit, p.TreatmentOf("maxspeed"), "defaults kept")
	assert.Equal(t, Ignore, p.TreatmentOf("smoothness"))

	require.NoError(t, os.WriteFile(path, []byte("tags:\n  surface: maybe\n"), 0644))
	_, err = LoadPolicy(path)
	assert.Error(t, err)
}
