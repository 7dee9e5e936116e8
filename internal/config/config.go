package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Mode selects the decision policy applied to match results
type Mode string

const (
	ModeNew      Mode = "new"
	ModeReplace  Mode = "replace"
	ModeOffset   Mode = "offset"
	ModeTagRef   Mode = "tagref"
	ModeTagLocal Mode = "taglocal"
)

// Modes lists every supported mode
var Modes = []Mode{ModeNew, ModeReplace, ModeOffset, ModeTagRef, ModeTagLocal}

// ParseMode parses a mode name. Case is ignored, as is a leading dash so
// that the historic "-replace" spelling keeps working.
func ParseMode(s string) (Mode, error) {
	name := strings.ToLower(strings.TrimLeft(strings.TrimSpace(s), "-"))
	if name == "tag" {
		return ModeTagRef, nil
	}
	for _, m := range Modes {
		if string(m) == name {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown mode %q (supported: new, replace, offset, tagref, taglocal): %w", s, ErrInvalidConfig)
}

// IsTagMode reports whether the mode only retags existing geometry
func (m Mode) IsTagMode() bool {
	return m == ModeTagRef || m == ModeTagLocal
}

// Overlap holds the minimum overlap ratio per mode group
type Overlap struct {
	// New applies to the "new" mode, which must not treat a weak match as
	// finding the road
	New float64 `yaml:"new"`
	// Default applies to replace, offset and the tag modes
	Default float64 `yaml:"default"`
}

// Config holds the thresholds and switches of one conflation run.
// The numeric defaults come from empirical tuning against NVDB/Elveg data;
// they are tunable, not semantically meaningful.
type Config struct {
	Mode Mode `yaml:"mode"`

	// Matching thresholds
	ProximityRadius  float64 `yaml:"proximity_radius_m"`   // index query and sample inclusion radius
	MinOverlap       Overlap `yaml:"min_overlap"`          // discard below this covered fraction
	MaxLengthRatio   float64 `yaml:"max_length_ratio"`     // discard when lengths differ more
	SampleInterval   float64 `yaml:"sample_interval_m"`    // spacing of scoring samples
	MinChainShare    float64 `yaml:"min_chain_share"`      // share of base length needed to join a combination
	OffsetThreshold  float64 `yaml:"offset_threshold_m"`   // offset mode emits pairs above this average distance
	MinSegmentLength float64 `yaml:"min_segment_length_m"` // new geometry shorter than this gets NEW_SEGMENT

	// Output switches
	OffsetEmitBoth bool     `yaml:"offset_emit_both"` // offset mode also emits the reference way
	MarkerKey      string   `yaml:"marker_key"`       // key carrying candidate classification on disagreement
	StripTags      []string `yaml:"strip_tags"`       // removed from every output feature
	Debug          bool     `yaml:"debug"`            // add OSMID/DISTANCE/OVERLAP tags

	// Optional inputs
	StyleFile  string `yaml:"style_file"`  // YAML participation rules
	TagScript  string `yaml:"tag_script"`  // Lua tag transform
	PolicyFile string `yaml:"policy_file"` // YAML tag policy overrides

	// Processing settings
	Workers int `yaml:"workers"`

	// Logging and metrics
	Verbose         bool          `yaml:"-"`
	LogFile         string        `yaml:"log_file"`
	MetricsInterval time.Duration `yaml:"metrics_interval"`
}

// DefaultConfig returns a configuration with the tuned defaults
func DefaultConfig() *Config {
	return &Config{
		Mode:             ModeReplace,
		ProximityRadius:  25,
		MinOverlap:       Overlap{New: 0.6, Default: 0.3},
		MaxLengthRatio:   5,
		SampleInterval:   5,
		MinChainShare:    0.05,
		OffsetThreshold:  5,
		MinSegmentLength: 10,
		MarkerKey:        "NVDB",
		StripTags:        []string{"nvdb:id", "nvdb:date"},
		Workers:          runtime.NumCPU(),
		MetricsInterval:  30 * time.Second,
	}
}

// MinOverlapFor returns the minimum overlap ratio applied in a mode
func (c *Config) MinOverlapFor(m Mode) float64 {
	if m == ModeNew {
		return c.MinOverlap.New
	}
	return c.MinOverlap.Default
}

// LoadFile overlays settings from a YAML file onto the configuration.
// Keys missing from the file keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return nil
}

// Validate checks that the configuration is usable before any matching
// work starts. Mode aliases such as "NEW" or "-tag" are replaced by the
// canonical mode.
func (c *Config) Validate() error {
	mode, err := ParseMode(string(c.Mode))
	if err != nil {
		return err
	}
	c.Mode = mode
	if c.ProximityRadius <= 0 {
		return fmt.Errorf("proximity radius must be positive, got %g: %w", c.ProximityRadius, ErrInvalidConfig)
	}
	if c.SampleInterval <= 0 {
		return fmt.Errorf("sample interval must be positive, got %g: %w", c.SampleInterval, ErrInvalidConfig)
	}
	if c.SampleInterval > c.ProximityRadius {
		return fmt.Errorf("sample interval %g must not exceed proximity radius %g: %w", c.SampleInterval, c.ProximityRadius, ErrInvalidConfig)
	}
	for name, v := range map[string]float64{"new": c.MinOverlap.New, "default": c.MinOverlap.Default} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("min overlap (%s) must be in (0, 1], got %g: %w", name, v, ErrInvalidConfig)
		}
	}
	if c.MaxLengthRatio < 1 {
		return fmt.Errorf("max length ratio must be at least 1, got %g: %w", c.MaxLengthRatio, ErrInvalidConfig)
	}
	if c.MinChainShare < 0 || c.MinChainShare >= 1 {
		return fmt.Errorf("min chain share must be in [0, 1), got %g: %w", c.MinChainShare, ErrInvalidConfig)
	}
	if c.OffsetThreshold < 0 {
		return fmt.Errorf("offset threshold must not be negative, got %g: %w", c.OffsetThreshold, ErrInvalidConfig)
	}
	if c.MinSegmentLength < 0 {
		return fmt.Errorf("min segment length must not be negative, got %g: %w", c.MinSegmentLength, ErrInvalidConfig)
	}
	if c.MarkerKey == "" {
		return fmt.Errorf("marker key must not be empty: %w", ErrInvalidConfig)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1: %w", ErrInvalidConfig)
	}
	return nil
}
