// Package flex runs Lua scripts that rewrite way tags before matching
package flex

import (
	"fmt"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/wegman-software/osmconflate/internal/logger"
	"github.com/wegman-software/osmconflate/internal/network"
)

// CallbackName is the global function a script must define. It receives the
// tags table and the origin ("reference" or "candidate") and returns the new
// tags table. Returning nil drops all tags, which removes the way from
// matching.
const CallbackName = "transform_tags"

// Runtime holds one Lua state. Calls are serialised.
type Runtime struct {
	L         *lua.LState
	mu        sync.Mutex
	transform lua.LValue
	calls     int
}

// NewRuntime creates a Lua state with the transform helpers registered
func NewRuntime() *Runtime {
	L := lua.NewState(lua.Options{SkipOpenLibs: false})
	r := &Runtime{L: L}
	r.registerAPI()
	return r
}

// Close releases Lua resources
func (r *Runtime) Close() {
	r.L.Close()
}

func (r *Runtime) registerAPI() {
	conflate := r.L.NewTable()
	conflate.RawSetString("version", lua.LString("1.0.0"))
	r.L.SetGlobal("conflate", conflate)

	RegisterTransforms(r.L)

	r.L.SetGlobal("print", r.L.NewFunction(r.luaPrint))
}

// LoadFile loads and executes a transform script
func (r *Runtime) LoadFile(path string) error {
	if err := r.L.DoFile(path); err != nil {
		return fmt.Errorf("failed to load Lua file: %w", err)
	}
	return r.extractCallback()
}

// LoadString loads and executes Lua code from a string
func (r *Runtime) LoadString(code string) error {
	if err := r.L.DoString(code); err != nil {
		return fmt.Errorf("failed to load Lua code: %w", err)
	}
	return r.extractCallback()
}

func (r *Runtime) extractCallback() error {
	fn := r.L.GetGlobal(CallbackName)
	if fn.Type() != lua.LTFunction {
		return fmt.Errorf("script does not define %s(tags, origin)", CallbackName)
	}
	r.transform = fn
	return nil
}

// Transform runs the script on one tag set
func (r *Runtime) Transform(tags map[string]string, origin network.Origin) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.transform == nil {
		return nil, fmt.Errorf("no transform script loaded")
	}

	in := r.L.NewTable()
	for k, v := range tags {
		in.RawSetString(k, lua.LString(v))
	}

	if err := r.L.CallByParam(lua.P{
		Fn:      r.transform,
		NRet:    1,
		Protect: true,
	}, in, lua.LString(origin.String())); err != nil {
		return nil, fmt.Errorf("lua callback error: %w", err)
	}
	ret := r.L.Get(-1)
	r.L.Pop(1)
	r.calls++

	switch v := ret.(type) {
	case *lua.LNilType:
		return nil, nil
	case *lua.LTable:
		return tableToTags(v)
	default:
		return nil, fmt.Errorf("%s returned %s, want a table", CallbackName, ret.Type())
	}
}

// Calls returns how many tag sets the script has transformed
func (r *Runtime) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// tableToTags converts a returned table. Numbers and booleans are
// formatted the OSM way and nested tables are rejected.
func tableToTags(tbl *lua.LTable) (map[string]string, error) {
	out := make(map[string]string)
	var err error
	tbl.ForEach(func(key, value lua.LValue) {
		if err != nil {
			return
		}
		k, ok := key.(lua.LString)
		if !ok {
			err = fmt.Errorf("tag key %s is not a string", key.String())
			return
		}
		switch v := value.(type) {
		case lua.LString:
			out[string(k)] = string(v)
		case lua.LNumber:
			out[string(k)] = v.String()
		case lua.LBool:
			if v {
				out[string(k)] = "yes"
			} else {
				out[string(k)] = "no"
			}
		default:
			err = fmt.Errorf("tag %s has unsupported value type %s", k, value.Type())
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// luaPrint sends script output to the log
func (r *Runtime) luaPrint(L *lua.LState) int {
	n := L.GetTop()
	parts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	logger.Named("lua").Info(strings.Join(parts, "\t"))
	return 0
}

// LoadTransform loads a script file and returns its transform function
func LoadTransform(path string) (*Runtime, error) {
	r := NewRuntime()
	if err := r.LoadFile(path); err != nil {
		r.Close()
		return nil, err
	}
	logger.Get().Info("Loaded tag transform script", zap.String("path", path))
	return r, nil
}
