package flex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wegman-software/osmconflate/internal/network"
)

const nvdbScript = `
function transform_tags(tags, origin)
	if origin == "reference" then
		return tags
	end
	local out = filter_tags(tags, {"highway", "ref", "maxspeed", "name"})
	if out.maxspeed then
		out.maxspeed = conflate.transforms.parse_maxspeed(out.maxspeed)
	end
	if out.ref then
		out.ref = conflate.transforms.normalize_ref(out.ref)
	end
	if out.name then
		out.name = conflate.transforms.clean_spaces(out.name)
	end
	return out
end
`

func TestNewRuntime(t *testing.T) {
	r := NewRuntime()
	defer r.Close()

	if r.L == nil {
		t.Fatal("Lua state should not be nil")
	}
	if err := r.L.DoString(`assert(conflate.transforms.trim ~= nil)`); err != nil {
		t.Errorf("transforms not registered: %v", err)
	}
}

func TestRuntimeTransform(t *testing.T) {
	r := NewRuntime()
	defer r.Close()
	if err := r.LoadString(nvdbScript); err != nil {
		t.Fatalf("LoadString: %v", err)
	}

	in := map[string]string{
		"highway":   "primary",
		"ref":       "Fv 123",
		"maxspeed":  "60 km/h",
		"name":      "  Store   gate ",
		"nvdb:id":   "42",
		"nvdb:date": "2020-01-01",
	}

	got, err := r.Transform(in, network.Candidate)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	want := map[string]string{"highway": "primary", "ref": "123", "maxspeed": "60", "name": "Store gate"}
	if len(got) != len(want) {
		t.Fatalf("Transform = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("tag %s = %q, want %q", k, got[k], v)
		}
	}

	ref, err := r.Transform(in, network.Reference)
	if err != nil {
		t.Fatalf("Transform reference: %v", err)
	}
	if ref["nvdb:id"] != "42" {
		t.Errorf("reference tags should pass through: %v", ref)
	}
	if r.Calls() != 2 {
		t.Errorf("Calls = %d, want 2", r.Calls())
	}
}

func TestRuntimeReturnValues(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		want    map[string]string
		wantErr bool
	}{
		{
			name:   "nil drops tags",
			script: `function transform_tags(tags, origin) return nil end`,
			want:   nil,
		},
		{
			name:   "numbers and booleans",
			script: `function transform_tags(tags, origin) return {lanes = 2, oneway = true, bridge = false} end`,
			want:   map[string]string{"lanes": "2", "oneway": "yes", "bridge": "no"},
		},
		{
			name:    "string return",
			script:  `function transform_tags(tags, origin) return "x" end`,
			wantErr: true,
		},
		{
			name:    "nested table",
			script:  `function transform_tags(tags, origin) return {a = {}} end`,
			wantErr: true,
		},
		{
			name:    "runtime error",
			script:  `function transform_tags(tags, origin) error("boom") end`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRuntime()
			defer r.Close()
			if err := r.LoadString(tt.script); err != nil {
				t.Fatalf("LoadString: %v", err)
			}
			got, err := r.Transform(map[string]string{"highway": "track"}, network.Reference)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("tag %s = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestRuntimeMissingCallback(t *testing.T) {
	r := NewRuntime()
	defer r.Close()
	if err := r.LoadString(`x = 1`); err == nil {
		t.Error("expected error for script without transform_tags")
	}
	if _, err := r.Transform(nil, network.Reference); err == nil {
		t.Error("expected error when no script is loaded")
	}
}

func TestLoadTransform(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transform.lua")
	if err := os.WriteFile(path, []byte(nvdbScript), 0644); err != nil {
		t.Fatal(err)
	}
	r, err := LoadTransform(path)
	if err != nil {
		t.Fatalf("LoadTransform: %v", err)
	}
	defer r.Close()

	if _, err := LoadTransform(filepath.Join(t.TempDir(), "missing.lua")); err == nil {
		t.Error("expected error for missing file")
	}
}
