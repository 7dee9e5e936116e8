package style

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wegman-software/osmconflate/internal/config"
)

func TestDefaultReferenceRules(t *testing.T) {
	rules := DefaultConfig().Compile()

	tests := []struct {
		name string
		tags map[string]string
		mode config.Mode
		want bool
	}{
		{"plain road", map[string]string{"highway": "residential"}, config.ModeReplace, true},
		{"no highway", map[string]string{"name": "Storgata"}, config.ModeReplace, false},
		{"excluded class", map[string]string{"highway": "construction"}, config.ModeReplace, false},
		{"area", map[string]string{"highway": "pedestrian", "area": "yes"}, config.ModeReplace, false},
		{"turn lanes prefix", map[string]string{"highway": "primary", "turn:lanes:forward": "left|through"}, config.ModeReplace, false},
		{"destination prefix", map[string]string{"highway": "trunk", "destination:ref": "E6"}, config.ModeOffset, false},
		{"footway in replace", map[string]string{"highway": "footway"}, config.ModeReplace, true},
		{"footway in tag mode", map[string]string{"highway": "footway"}, config.ModeTagRef, false},
		{"road in tag mode", map[string]string{"highway": "tertiary"}, config.ModeTagLocal, true},
		{"turn lanes in new mode", map[string]string{"highway": "primary", "turn:lanes": "left|through"}, config.ModeNew, true},
		{"destination in new mode", map[string]string{"highway": "trunk", "destination": "Oslo"}, config.ModeNew, true},
		{"excluded class in new mode", map[string]string{"highway": "proposed"}, config.ModeNew, false},
		{"no highway in new mode", map[string]string{"railway": "rail"}, config.ModeNew, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rules.AcceptReference(tt.tags, tt.mode); got != tt.want {
				t.Errorf("AcceptReference(%v, %s) = %v, want %v", tt.tags, tt.mode, got, tt.want)
			}
		})
	}
}

func TestDefaultCandidateRules(t *testing.T) {
	rules := DefaultConfig().Compile()

	tests := []struct {
		name string
		tags map[string]string
		mode config.Mode
		want bool
	}{
		{"road", map[string]string{"highway": "residential"}, config.ModeReplace, true},
		{"no highway", map[string]string{"name": "Storgata"}, config.ModeNew, false},
		{"footway in replace", map[string]string{"highway": "footway"}, config.ModeReplace, true},
		{"footway in tagref", map[string]string{"highway": "footway"}, config.ModeTagRef, false},
		{"cycleway in taglocal", map[string]string{"highway": "cycleway"}, config.ModeTagLocal, false},
		{"steps in taglocal", map[string]string{"highway": "steps"}, config.ModeTagLocal, false},
		{"road in taglocal", map[string]string{"highway": "unclassified"}, config.ModeTagLocal, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rules.AcceptCandidate(tt.tags, tt.mode); got != tt.want {
				t.Errorf("AcceptCandidate(%v, %s) = %v, want %v", tt.tags, tt.mode, got, tt.want)
			}
		})
	}
}

func TestCompatible(t *testing.T) {
	rules := DefaultConfig().Compile()

	tests := []struct {
		ref, cand string
		want      bool
	}{
		{"residential", "residential", true},
		{"residential", "unclassified", true},
		{"footway", "cycleway", true},
		{"track", "cycleway", true},
		{"residential", "footway", false},
		{"cycleway", "residential", false},
		{"cycleway", "track", false},
	}

	for _, tt := range tests {
		if got := rules.Compatible(tt.ref, tt.cand); got != tt.want {
			t.Errorf("Compatible(%q, %q) = %v, want %v", tt.ref, tt.cand, got, tt.want)
		}
	}
}

func TestFilterInclude(t *testing.T) {
	f := NewFilter(&FilterConfig{
		Include: map[string][]string{"highway": {"primary", "secondary"}},
	})

	if !f.Match(map[string]string{"highway": "primary"}) {
		t.Error("primary should be included")
	}
	if f.Match(map[string]string{"highway": "service"}) {
		t.Error("service should not be included")
	}
	if !f.HasFilter() {
		t.Error("expected HasFilter")
	}
	if NewFilter(nil).HasFilter() {
		t.Error("nil config should not filter")
	}
}

func TestLoadConfigKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "style.yaml")
	data := []byte(`
candidate:
  require_any: [highway]
  exclude:
    highway: [steps]
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	rules := cfg.Compile()

	if rules.AcceptCandidate(map[string]string{"highway": "steps"}, config.ModeReplace) {
		t.Error("steps should be excluded by the loaded rules")
	}
	if rules.AcceptReference(map[string]string{"highway": "proposed"}, config.ModeReplace) {
		t.Error("default reference rules should still apply")
	}
}
