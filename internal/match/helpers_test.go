package match

import (
	"testing"

	"github.com/paulmach/orb"

	"github.com/wegman-software/osmconflate/internal/config"
	"github.com/wegman-software/osmconflate/internal/geo"
	"github.com/wegman-software/osmconflate/internal/network"
)

var testOrigin = orb.Point{10.75, 59.91}

// at returns the point east/north metres from the test origin
func at(east, north float64) orb.Point { return geo.Offset(testOrigin, east, north) }

type wayDef struct {
	id   int64
	pts  [][2]float64
	tags map[string]string
}

func road(id int64, pts ...[2]float64) wayDef {
	return wayDef{id: id, pts: pts}
}

func (d wayDef) with(tags map[string]string) wayDef {
	d.tags = tags
	return d
}

func buildNet(t *testing.T, origin network.Origin, defs ...wayDef) *network.Network {
	t.Helper()
	n := network.New(origin)
	for _, d := range defs {
		line := make(orb.LineString, len(d.pts))
		for i, p := range d.pts {
			line[i] = at(p[0], p[1])
		}
		tags := d.tags
		if tags == nil {
			tags = map[string]string{"highway": "residential"}
		}
		w, err := network.NewWay(d.id, origin, line, nil, tags)
		if err != nil {
			t.Fatalf("NewWay(%d): %v", d.id, err)
		}
		if err := n.Add(w); err != nil {
			t.Fatalf("Add(%d): %v", d.id, err)
		}
	}
	return n
}

func testConfig(mode config.Mode) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Mode = mode
	cfg.Workers = 4
	return cfg
}
