package decide

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Treatment says how a tag difference between matched ways is surfaced
type Treatment string

const (
	Ignore   Treatment = "ignore"
	Edit     Treatment = "edit"     // candidate value is applied
	Consider Treatment = "consider" // needs human judgment
	Diff     Treatment = "diff"     // informational only
)

// Policy holds the per-key tables of the decision engine
type Policy struct {
	// Tags maps a key to its treatment in the tag modes. Keys not listed
	// are ignored.
	Tags map[string]Treatment `yaml:"tags"`

	// ReplaceKeys are dropped from a reference way before candidate tags
	// are copied onto it in replace mode
	ReplaceKeys []string `yaml:"replace_keys"`

	// HighwayClasses are the recognised OSM highway values. New candidate
	// ways of another class get the source marker.
	HighwayClasses []string `yaml:"highway_classes"`

	// NumberedClasses put a way in tagref scope even without a ref tag
	NumberedClasses []string `yaml:"numbered_classes"`
}

// DefaultPolicy returns the tables tuned for NVDB/Elveg input
func DefaultPolicy() *Policy {
	return &Policy{
		Tags: map[string]Treatment{
			"ref":       Edit,
			"name":      Edit,
			"maxspeed":  Edit,
			"maxheight": Edit,
			"bridge":    Edit,
			"tunnel":    Edit,
			"layer":     Edit,

			"access":        Consider,
			"motor_vehicle": Consider,
			"motorcar":      Consider,
			"hgv":           Consider,
			"bicycle":       Consider,
			"foot":          Consider,
			"oneway":        Consider,
			"junction":      Consider,
			"lanes":         Consider,
			"maxweight":     Consider,
			"maxlength":     Consider,
			"maxwidth":      Consider,

			"highway": Diff,
			"surface": Diff,
			"lit":     Diff,
			"width":   Diff,
		},
		ReplaceKeys: []string{"ref", "name", "maxspeed", "oneway", "junction", "foot", "bridge", "tunnel", "layer", "source"},
		HighwayClasses: []string{
			"motorway", "trunk", "primary", "secondary", "tertiary", "unclassified", "residential", "service",
			"motorway_link", "trunk_link", "primary_link", "secondary_link", "tertiary_link",
			"living_street", "pedestrian", "track", "road", "busway",
			"footway", "cycleway", "path", "steps", "bridleway",
		},
		NumberedClasses: []string{
			"trunk", "primary", "secondary", "tertiary",
			"trunk_link", "primary_link", "secondary_link", "tertiary_link",
		},
	}
}

// LoadPolicy overlays a YAML file onto the default tables. Tag entries are
// merged key by key, lists are replaced.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	p := DefaultPolicy()
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse policy YAML: %w", err)
	}
	for k, t := range p.Tags {
		switch t {
		case Ignore, Edit, Consider, Diff:
		default:
			return nil, fmt.Errorf("unknown treatment %q for tag %q", t, k)
		}
	}
	return p, nil
}

// TreatmentOf returns how differences of a tag are surfaced
func (p *Policy) TreatmentOf(key string) Treatment {
	if t, ok := p.Tags[key]; ok {
		return t
	}
	return Ignore
}

func (p *Policy) replaceKey(key string) bool {
	return contains(p.ReplaceKeys, key)
}

func (p *Policy) recognised(highway string) bool {
	return contains(p.HighwayClasses, highway)
}

func (p *Policy) numbered(highway string) bool {
	return contains(p.NumberedClasses, highway)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
