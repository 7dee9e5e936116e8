package decide

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/wegman-software/osmconflate/internal/config"
	"github.com/wegman-software/osmconflate/internal/logger"
	"github.com/wegman-software/osmconflate/internal/match"
	"github.com/wegman-software/osmconflate/internal/network"
)

// Decider implements the output policy of one mode. Deciders return new
// features and never modify the ways they are given.
type Decider interface {
	Mode() config.Mode
	// Reference decides the output for a reference way
	Reference(env *Env, w *network.Way) []Feature
	// Candidate decides the output for a candidate way
	Candidate(env *Env, w *network.Way) []Feature
}

// For returns the decider of a mode
func For(mode config.Mode) (Decider, error) {
	switch mode {
	case config.ModeNew:
		return newDecider{}, nil
	case config.ModeReplace:
		return replaceDecider{}, nil
	case config.ModeOffset:
		return offsetDecider{}, nil
	case config.ModeTagRef:
		return tagDecider{mode: config.ModeTagRef}, nil
	case config.ModeTagLocal:
		return tagDecider{mode: config.ModeTagLocal}, nil
	default:
		return nil, fmt.Errorf("no decider for mode %q: %w", mode, config.ErrInvalidConfig)
	}
}

// Env gives deciders read access to the run inputs
type Env struct {
	Config *config.Config
	Policy *Policy
	Ref    *network.Network
	Cand   *network.Network
	Result *match.Result
}

// Engine produces the output feature set of a run
type Engine struct {
	cfg     *config.Config
	policy  *Policy
	decider Decider
}

// NewEngine selects the decider for the configured mode. A nil policy
// means the default tables.
func NewEngine(cfg *config.Config, policy *Policy) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if policy == nil {
		policy = DefaultPolicy()
	}
	d, err := For(cfg.Mode)
	if err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, policy: policy, decider: d}, nil
}

// Mode returns the mode of the selected decider
func (e *Engine) Mode() config.Mode { return e.decider.Mode() }

// Decide walks the reference ways, then the candidate ways, in id order and
// collects the features the decider emits for them
func (e *Engine) Decide(ref, cand *network.Network, res *match.Result) []Feature {
	log := logger.Named("decide")

	env := &Env{Config: e.cfg, Policy: e.policy, Ref: ref, Cand: cand, Result: res}

	var out []Feature
	for _, w := range ref.Ways() {
		out = append(out, e.decider.Reference(env, w)...)
	}
	for _, w := range cand.Ways() {
		out = append(out, e.decider.Candidate(env, w)...)
	}

	counts := make(map[string]int)
	for i := range out {
		env.finish(&out[i])
		for _, k := range []string{TagNoMatch, TagEdit, TagConsider, TagDiff, TagNewSegment} {
			if _, ok := out[i].Tags[k]; ok {
				counts[k]++
			}
		}
	}

	log.Info("Decisions complete",
		zap.String("mode", string(e.decider.Mode())),
		zap.Int("features", len(out)),
		zap.Int("no_match", counts[TagNoMatch]),
		zap.Int("edit", counts[TagEdit]),
		zap.Int("consider", counts[TagConsider]),
		zap.Int("diff", counts[TagDiff]),
		zap.Int("new_segment", counts[TagNewSegment]))

	return out
}

// finish applies the rules shared by every mode: flagged short new
// geometry and stripped source tags
func (env *Env) finish(f *Feature) {
	if f.Action == ActionCreate && f.Origin == network.Candidate {
		if l := f.Length(); l < env.Config.MinSegmentLength {
			f.Tags[TagNewSegment] = fmt.Sprintf("%.1f m", l)
		}
	}
	for _, k := range env.Config.StripTags {
		delete(f.Tags, k)
	}
}

// passthrough returns a way unchanged
func (env *Env) passthrough(w *network.Way) Feature {
	return Feature{
		ID:     w.ID(),
		Origin: w.Origin(),
		Action: ActionNone,
		Line:   w.Line(),
		Nodes:  wayNodes(w),
		Tags:   w.Tags(),
		State:  env.Result.State(w.Origin(), w.ID()),
	}
}

// created returns a candidate way as new geometry
func (env *Env) created(w *network.Way) Feature {
	f := env.passthrough(w)
	f.Action = ActionCreate
	f.Sources = []int64{w.ID()}
	return f
}

// markClass adds the source marker when a candidate classification is not a
// recognised OSM highway value
func (env *Env) markClass(f *Feature) {
	if hw := f.Tags["highway"]; hw != "" && !env.Policy.recognised(hw) {
		f.Tags[env.Config.MarkerKey] = hw
	}
}

// debug adds the match diagnostics when debug output is enabled
func (env *Env) debug(f *Feature, refIDs []int64, sc match.Score) {
	if !env.Config.Debug {
		return
	}
	f.Tags[TagOSMID] = joinIDs(refIDs)
	f.Tags[TagDistance] = strconv.Itoa(int(math.Round(sc.AvgDistance)))
	f.Tags[TagOverlap] = strconv.Itoa(int(math.Round(sc.Overlap*100))) + "%"
}

// unmatchedNote is the NO_MATCH value of a reference way without a match
func (env *Env) unmatchedNote(w *network.Way) string {
	if note := env.Result.Note(network.Reference, w.ID()); note != "" {
		return note
	}
	return "yes"
}

// leadCandidate returns the longest candidate way of a match. Its tags
// stand for the whole combination.
func (env *Env) leadCandidate(m match.Match) *network.Way {
	var lead *network.Way
	for _, id := range m.Candidates {
		if w, ok := env.Cand.Way(id); ok && (lead == nil || w.Length() > lead.Length()) {
			lead = w
		}
	}
	return lead
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ";")
}
