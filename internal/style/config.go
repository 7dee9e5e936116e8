package style

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wegman-software/osmconflate/internal/config"
)

// Config holds the participation rules deciding which ways take part in
// matching. Excluded ways are passed through untouched.
type Config struct {
	// Reference filters ways of the existing network
	Reference *FilterConfig `yaml:"reference,omitempty"`
	// Candidate filters ways of the incoming network
	Candidate *FilterConfig `yaml:"candidate,omitempty"`
	// NewMode replaces Reference in "new" runs. Only the classification
	// is checked there, so tagged major roads still count as existing.
	NewMode *FilterConfig `yaml:"new_mode,omitempty"`
	// TagModes is applied on top of Reference and Candidate in
	// tagref/taglocal runs
	TagModes *FilterConfig `yaml:"tag_modes,omitempty"`
	// PathClasses are the highway values only matched among themselves
	PathClasses []string `yaml:"path_classes,omitempty"`
	// PathCompatible may additionally match a candidate path class
	PathCompatible []string `yaml:"path_compatible,omitempty"`
}

// FilterConfig defines filtering rules for one network
type FilterConfig struct {
	// Include specifies which tag keys/values to include
	// If empty, all tags are included (no filtering)
	Include map[string][]string `yaml:"include,omitempty"`
	// Exclude specifies which tag keys/values to exclude
	// Applied after include rules. A key ending in "*" matches any key with
	// that prefix.
	Exclude map[string][]string `yaml:"exclude,omitempty"`
	// RequireAny specifies that at least one of these tags must be present
	// If empty, no requirement
	RequireAny []string `yaml:"require_any,omitempty"`
}

// LoadConfig loads participation rules from a YAML file. Sections missing
// from the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read style file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse style YAML: %w", err)
	}

	return cfg, nil
}

var excludedHighways = []string{"path", "bus_stop", "rest_area", "platform", "construction", "proposed"}

// DefaultConfig returns the rules tuned for OSM against NVDB/Elveg
func DefaultConfig() *Config {
	return &Config{
		Reference: &FilterConfig{
			RequireAny: []string{"highway"},
			Exclude: map[string][]string{
				"highway":           excludedHighways,
				"area":              nil,
				"railway":           nil,
				"piste:type":        nil,
				"snowmobile":        nil,
				"turn:lanes*":       nil,
				"destination*":      nil,
				"mtb:scale":         nil,
				"class:bicycle:mtb": nil,
			},
		},
		Candidate: &FilterConfig{
			RequireAny: []string{"highway"},
		},
		NewMode: &FilterConfig{
			RequireAny: []string{"highway"},
			Exclude: map[string][]string{
				"highway": excludedHighways,
			},
		},
		TagModes: &FilterConfig{
			Exclude: map[string][]string{
				"highway": {"cycleway", "footway", "steps"},
			},
		},
		PathClasses:    []string{"cycleway", "footway"},
		PathCompatible: []string{"track"},
	}
}

// Filter checks if tags match the filter configuration
type Filter struct {
	cfg *FilterConfig
}

// NewFilter creates a filter from configuration
func NewFilter(cfg *FilterConfig) *Filter {
	if cfg == nil {
		return &Filter{cfg: &FilterConfig{}}
	}
	return &Filter{cfg: cfg}
}

// Match checks if the given tags match the filter rules
// Returns true if the way should take part in matching
func (f *Filter) Match(tags map[string]string) bool {
	if f.cfg == nil {
		return true
	}

	// At least one required tag must be present
	if len(f.cfg.RequireAny) > 0 {
		found := false
		for _, key := range f.cfg.RequireAny {
			if _, ok := tags[key]; ok {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(f.cfg.Include) > 0 {
		matched := false
		for key, values := range f.cfg.Include {
			if tagValue, ok := tags[key]; ok && valueListed(values, tagValue, true) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	for key, values := range f.cfg.Exclude {
		if prefix, ok := strings.CutSuffix(key, "*"); ok {
			for k, v := range tags {
				if strings.HasPrefix(k, prefix) && valueListed(values, v, true) {
					return false
				}
			}
			continue
		}
		if tagValue, ok := tags[key]; ok && valueListed(values, tagValue, true) {
			return false
		}
	}

	return true
}

// valueListed reports whether v is in values; an empty list matches
// anything when emptyMatches is set
func valueListed(values []string, v string, emptyMatches bool) bool {
	if len(values) == 0 {
		return emptyMatches
	}
	for _, candidate := range values {
		if candidate == v || candidate == "*" {
			return true
		}
	}
	return false
}

// HasFilter returns true if filtering is enabled
func (f *Filter) HasFilter() bool {
	if f.cfg == nil {
		return false
	}
	return len(f.cfg.Include) > 0 || len(f.cfg.Exclude) > 0 || len(f.cfg.RequireAny) > 0
}

// Rules bundles the compiled filters of a Config
type Rules struct {
	reference      *Filter
	candidate      *Filter
	newMode        *Filter
	tagModes       *Filter
	pathClasses    map[string]bool
	pathCompatible map[string]bool
}

// Compile builds the filters of a Config
func (c *Config) Compile() *Rules {
	r := &Rules{
		reference:      NewFilter(c.Reference),
		candidate:      NewFilter(c.Candidate),
		newMode:        NewFilter(c.NewMode),
		tagModes:       NewFilter(c.TagModes),
		pathClasses:    make(map[string]bool),
		pathCompatible: make(map[string]bool),
	}
	for _, v := range c.PathClasses {
		r.pathClasses[v] = true
	}
	for _, v := range c.PathCompatible {
		r.pathCompatible[v] = true
	}
	return r
}

// AcceptReference reports whether a reference way takes part in matching
// in the given mode
func (r *Rules) AcceptReference(tags map[string]string, mode config.Mode) bool {
	switch {
	case mode == config.ModeNew:
		return r.newMode.Match(tags)
	case mode.IsTagMode():
		return r.reference.Match(tags) && r.tagModes.Match(tags)
	default:
		return r.reference.Match(tags)
	}
}

// AcceptCandidate reports whether a candidate way takes part in matching
// in the given mode
func (r *Rules) AcceptCandidate(tags map[string]string, mode config.Mode) bool {
	if !r.candidate.Match(tags) {
		return false
	}
	return !mode.IsTagMode() || r.tagModes.Match(tags)
}

// Compatible reports whether a reference and a candidate classification may
// describe the same road. Path classes (cycleway, footway) only match each
// other; a candidate path may also match a reference track.
func (r *Rules) Compatible(refHighway, candHighway string) bool {
	refPath := r.pathClasses[refHighway]
	candPath := r.pathClasses[candHighway]
	switch {
	case candPath:
		return refPath || r.pathCompatible[refHighway]
	case refPath:
		return false
	default:
		return true
	}
}
