package decide

import (
	"fmt"
	"strings"

	"github.com/wegman-software/osmconflate/internal/config"
	"github.com/wegman-software/osmconflate/internal/match"
	"github.com/wegman-software/osmconflate/internal/network"
)

// newDecider keeps the reference network and adds the candidate ways
// nothing in it matches
type newDecider struct{}

func (newDecider) Mode() config.Mode { return config.ModeNew }

func (newDecider) Reference(env *Env, w *network.Way) []Feature {
	return []Feature{env.passthrough(w)}
}

func (newDecider) Candidate(env *Env, w *network.Way) []Feature {
	if env.Result.State(network.Candidate, w.ID()) != match.Unmatched {
		return nil
	}
	return []Feature{env.created(w)}
}

// replaceDecider swaps matched reference geometry for candidate geometry
type replaceDecider struct{}

func (replaceDecider) Mode() config.Mode { return config.ModeReplace }

func (replaceDecider) Reference(env *Env, w *network.Way) []Feature {
	switch env.Result.State(network.Reference, w.ID()) {
	case match.Matched:
	case match.Unmatched, match.Ambiguous:
		f := env.passthrough(w)
		f.Tags[TagNoMatch] = env.unmatchedNote(w)
		return []Feature{f}
	default:
		return []Feature{env.passthrough(w)}
	}

	m, _ := env.Result.MatchFor(w.ID())
	line := m.Geometry(env.Cand)

	tags := w.Tags()
	for k := range tags {
		if env.Policy.replaceKey(k) {
			delete(tags, k)
		}
	}
	if lead := env.leadCandidate(m); lead != nil {
		for _, k := range lead.TagKeys() {
			v := lead.Tag(k)
			if k == "highway" {
				if v != w.Highway() {
					tags[env.Config.MarkerKey] = v
				}
				continue
			}
			tags[k] = v
		}
	}

	f := Feature{
		ID:      w.ID(),
		Origin:  network.Reference,
		Action:  ActionModify,
		Line:    line,
		Nodes:   lookupNodes(line, env.Cand, m.Candidates),
		Tags:    tags,
		Sources: append([]int64(nil), m.Candidates...),
		State:   match.Matched,
	}
	env.debug(&f, []int64{w.ID()}, m.Score)
	return []Feature{f}
}

func (replaceDecider) Candidate(env *Env, w *network.Way) []Feature {
	switch env.Result.State(network.Candidate, w.ID()) {
	case match.Unmatched:
		f := env.created(w)
		env.markClass(&f)
		return []Feature{f}
	case match.Ambiguous:
		f := env.created(w)
		env.markClass(&f)
		f.Tags[TagConsider] = env.Result.Note(network.Candidate, w.ID())
		return []Feature{f}
	default:
		return nil
	}
}

// offsetDecider emits matched pairs that lie too far apart for review.
// Everything else is left out.
type offsetDecider struct{}

func (offsetDecider) Mode() config.Mode { return config.ModeOffset }

func offsetNote(sc match.Score) string {
	return fmt.Sprintf("average offset %.1f m", sc.AvgDistance)
}

func (offsetDecider) Reference(env *Env, w *network.Way) []Feature {
	if !env.Config.OffsetEmitBoth {
		return nil
	}
	m, ok := env.Result.MatchFor(w.ID())
	if !ok || m.AvgDistance <= env.Config.OffsetThreshold {
		return nil
	}
	f := env.passthrough(w)
	f.Tags[TagConsider] = offsetNote(m.Score)
	return []Feature{f}
}

func (offsetDecider) Candidate(env *Env, w *network.Way) []Feature {
	refs := env.Result.ReferencesOf(w.ID())
	if len(refs) == 0 {
		return nil
	}

	// a split candidate is reported once with the worst of its pieces
	var worst match.Match
	var worstRef *network.Way
	for _, id := range refs {
		m, ok := env.Result.MatchFor(id)
		if !ok {
			continue
		}
		if worstRef == nil || m.AvgDistance > worst.AvgDistance {
			worst = m
			worstRef, _ = env.Ref.Way(id)
		}
	}
	if worstRef == nil || worst.AvgDistance <= env.Config.OffsetThreshold {
		return nil
	}

	f := env.created(w)
	if hw := w.Highway(); hw != worstRef.Highway() {
		f.Tags["highway"] = worstRef.Highway()
		f.Tags[env.Config.MarkerKey] = hw
	}
	f.Tags[TagConsider] = offsetNote(worst.Score)
	env.debug(&f, refs, worst.Score)
	return []Feature{f}
}

// tagDecider updates tags of matched reference ways and leaves their
// geometry alone. tagref covers numbered roads, taglocal the rest.
type tagDecider struct {
	mode config.Mode
}

func (d tagDecider) Mode() config.Mode { return d.mode }

// inScope reports whether a reference way belongs to the decider's road
// group. The candidate may be nil.
func (d tagDecider) inScope(env *Env, w, cand *network.Way) bool {
	numbered := w.HasTag("ref") || env.Policy.numbered(w.Highway())
	if cand != nil && cand.HasTag("ref") {
		numbered = true
	}
	if d.mode == config.ModeTagRef {
		return numbered
	}
	return !numbered
}

func (d tagDecider) Reference(env *Env, w *network.Way) []Feature {
	f := env.passthrough(w)

	switch f.State {
	case match.Matched:
	case match.Unmatched, match.Ambiguous:
		if d.inScope(env, w, nil) {
			f.Tags[TagNoMatch] = env.unmatchedNote(w)
		}
		return []Feature{f}
	default:
		return []Feature{f}
	}

	m, _ := env.Result.MatchFor(w.ID())
	lead := env.leadCandidate(m)
	if lead == nil || !d.inScope(env, w, lead) {
		return []Feature{f}
	}

	var edits, considers, diffs []string
	for _, k := range lead.TagKeys() {
		cv := lead.Tag(k)
		rv, has := f.Tags[k]
		if has && rv == cv {
			continue
		}

		switch env.Policy.TreatmentOf(k) {
		case Edit:
			edits = append(edits, describeChange(k, rv, cv, has))
			f.Tags[k] = cv
		case Consider:
			considers = append(considers, describeChange(k, rv, cv, has))
		case Diff:
			if !has {
				rv = "none"
			}
			diffs = append(diffs, fmt.Sprintf("%s=%s vs %s", k, rv, cv))
		}
	}

	if len(edits) > 0 {
		f.Action = ActionModify
		f.Tags[TagEdit] = strings.Join(edits, ";")
	}
	if len(considers) > 0 {
		f.Tags[TagConsider] = strings.Join(considers, ";")
	}
	if len(diffs) > 0 {
		f.Tags[TagDiff] = strings.Join(diffs, ";")
	}
	if len(edits)+len(considers)+len(diffs) > 0 {
		f.Sources = append([]int64(nil), m.Candidates...)
		env.debug(&f, []int64{w.ID()}, m.Score)
	}
	return []Feature{f}
}

// Candidate emits only short unmatched fragments, which are candidates for
// merging into a neighbouring way
func (d tagDecider) Candidate(env *Env, w *network.Way) []Feature {
	if env.Result.State(network.Candidate, w.ID()) != match.Unmatched {
		return nil
	}
	if w.Length() >= env.Config.MinSegmentLength {
		return nil
	}
	f := env.created(w)
	env.markClass(&f)
	return []Feature{f}
}

func describeChange(key, from, to string, had bool) string {
	if !had {
		return fmt.Sprintf("Added %s=%s", key, to)
	}
	return fmt.Sprintf("Modified %s=%s to %s", key, from, to)
}
