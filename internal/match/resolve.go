package match

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/wegman-software/osmconflate/internal/network"
)

// Result is the resolved outcome of a run. It is immutable once returned.
type Result struct {
	matches []Match
	byRef   map[int64]int
	byCand  map[int64][]int64

	states [2]map[int64]State
	notes  [2]map[int64]string
	best   [2]map[int64]Candidate
}

func newResult() *Result {
	r := &Result{
		byRef:  make(map[int64]int),
		byCand: make(map[int64][]int64),
	}
	for i := range r.states {
		r.states[i] = make(map[int64]State)
		r.notes[i] = make(map[int64]string)
		r.best[i] = make(map[int64]Candidate)
	}
	return r
}

// Matches returns the accepted matches in reference id order
func (r *Result) Matches() []Match {
	return append([]Match(nil), r.matches...)
}

// MatchFor returns the match accepted for a reference way
func (r *Result) MatchFor(refID int64) (Match, bool) {
	i, ok := r.byRef[refID]
	if !ok {
		return Match{}, false
	}
	return r.matches[i], true
}

// ReferencesOf returns the reference ways matched to a candidate way. More
// than one means the candidate was split between them.
func (r *Result) ReferencesOf(candID int64) []int64 {
	return append([]int64(nil), r.byCand[candID]...)
}

// State returns the resolution state of a way. Ways that never took part
// in matching are Unseen.
func (r *Result) State(origin network.Origin, id int64) State {
	return r.states[origin][id]
}

// Note returns the diagnostic note of an ambiguous way
func (r *Result) Note(origin network.Origin, id int64) string {
	return r.notes[origin][id]
}

// Best returns the best scored combination found for a way, accepted or not
func (r *Result) Best(origin network.Origin, id int64) (Candidate, bool) {
	c, ok := r.best[origin][id]
	return c, ok
}

// Stats counts the outcome per state
func (r *Result) Stats() Stats {
	var s Stats
	for _, st := range r.states[network.Reference] {
		s.References++
		switch st {
		case Matched:
			s.Matched++
		case Ambiguous:
			s.Ambiguous++
		case Unmatched:
			s.Unmatched++
		}
	}
	for _, st := range r.states[network.Candidate] {
		s.Candidates++
		switch st {
		case Matched:
			s.CandidatesMatched++
		case Ambiguous:
			s.CandidatesAmbiguous++
		case Unmatched:
			s.CandidatesUnmatched++
		}
	}

	total := 0.0
	for _, m := range r.matches {
		if len(m.Candidates) > 1 {
			s.Combinations++
		}
		if m.Shared() {
			s.Shared++
		}
		total += m.AvgDistance
	}
	if len(r.matches) > 0 {
		s.AvgDistance = total / float64(len(r.matches))
	}
	return s
}

// resolver runs the serial global assignment
type resolver struct {
	ref, cand *network.Network
	fwd, rev  map[int64]*assessment
	res       *Result
	consumed  map[int64]int64 // candidate -> reference that took it
	decided   map[int64]bool  // references with a final state
	snap      float64         // max distance from a reference break to a candidate cut vertex
}

// resolve accepts mutually best pairings in priority order. A pairing is
// accepted when the reference's best combination consists of candidate ways
// whose own best is exactly that reference. A candidate may only be shared
// when its best is a reference chain whose members all pick it alone; it is
// then split at its vertices nearest the chain's break points.
func resolve(ref, cand *network.Network, fwd, rev map[int64]*assessment, snap float64) *Result {
	rs := &resolver{
		ref:      ref,
		cand:     cand,
		fwd:      fwd,
		rev:      rev,
		res:      newResult(),
		consumed: make(map[int64]int64),
		decided:  make(map[int64]bool),
		snap:     snap,
	}
	rs.seed(network.Reference, fwd)
	rs.seed(network.Candidate, rev)

	var order []Candidate
	for _, id := range sortedKeys(fwd) {
		if b := fwd[id].best; b != nil {
			order = append(order, *b)
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return better(order[i], order[j]) })

	for _, c := range order {
		if !rs.decided[c.Base] {
			rs.resolveReference(c)
		}
	}

	rs.finish()
	sort.Slice(rs.res.matches, func(i, j int) bool {
		return rs.res.matches[i].Reference < rs.res.matches[j].Reference
	})
	for i, m := range rs.res.matches {
		rs.res.byRef[m.Reference] = i
	}
	return rs.res
}

// seed records the scoring outcome of every assessed way
func (rs *resolver) seed(origin network.Origin, as map[int64]*assessment) {
	for id, a := range as {
		if len(a.near) > 0 {
			rs.res.states[origin][id] = CandidateFound
		} else {
			rs.res.states[origin][id] = Unmatched
		}
		if a.best != nil {
			rs.res.best[origin][id] = *a.best
		}
	}
}

func (rs *resolver) resolveReference(fb Candidate) {
	id := fb.Base

	for _, c := range fb.Ways {
		if by, ok := rs.consumed[c]; ok {
			rs.ambiguous(network.Reference, id, fmt.Sprintf("candidate way %d already matched to reference way %d", c, by))
			return
		}
	}

	mutual := true
	for _, c := range fb.Ways {
		rb, ok := rs.res.best[network.Candidate][c]
		if !ok || !rb.IsSingle(id) {
			mutual = false
			break
		}
	}
	if mutual {
		rs.accept(Match{Reference: id, Candidates: fb.Ways, Score: fb.Score})
		return
	}

	if len(fb.Ways) == 1 && rs.share(id, fb.Ways[0]) {
		return
	}

	rs.ambiguous(network.Reference, id, rs.describeMismatch(fb))
}

// share splits a candidate between the reference chain it best matches
func (rs *resolver) share(id, c int64) bool {
	rb, ok := rs.res.best[network.Candidate][c]
	if !ok || len(rb.Ways) < 2 || !rb.Contains(id) {
		return false
	}
	for _, rid := range rb.Ways {
		if rs.decided[rid] {
			return false
		}
		fb, ok := rs.res.best[network.Reference][rid]
		if !ok || !fb.IsSingle(c) {
			return false
		}
	}

	w, ok := rs.cand.Way(c)
	if !ok {
		return false
	}
	pieces, ok := splitShared(w, rs.ref, rb.Ways, rs.snap)
	if !ok {
		return false
	}

	for i, rid := range rb.Ways {
		fb := rs.res.best[network.Reference][rid]
		rs.accept(Match{
			Reference:  rid,
			Candidates: []int64{c},
			Score:      fb.Score,
			Portion:    pieces[i],
		})
	}
	return true
}

func (rs *resolver) accept(m Match) {
	rs.res.matches = append(rs.res.matches, m)
	rs.res.states[network.Reference][m.Reference] = Matched
	rs.decided[m.Reference] = true
	for _, c := range m.Candidates {
		if _, ok := rs.consumed[c]; !ok {
			rs.consumed[c] = m.Reference
		}
		rs.res.byCand[c] = append(rs.res.byCand[c], m.Reference)
	}
}

func (rs *resolver) ambiguous(origin network.Origin, id int64, note string) {
	rs.res.states[origin][id] = Ambiguous
	rs.res.notes[origin][id] = note
	if origin == network.Reference {
		rs.decided[id] = true
	}
}

func (rs *resolver) describeMismatch(fb Candidate) string {
	for _, c := range fb.Ways {
		rb, ok := rs.res.best[network.Candidate][c]
		if !ok {
			return fmt.Sprintf("candidate way %d has no reverse match", c)
		}
		if !rb.IsSingle(fb.Base) {
			return fmt.Sprintf("candidate way %d prefers reference way %s", c, joinIDs(rb.Ways))
		}
	}
	return "no mutual match"
}

// finish moves the remaining ways into terminal states. A way some other
// way wanted but that ended up without a match is ambiguous, not unmatched.
func (rs *resolver) finish() {
	wantedBy := make(map[int64]int64) // candidate -> first reference preferring it
	for _, id := range sortedKeys(rs.fwd) {
		if b := rs.fwd[id].best; b != nil && rs.res.states[network.Reference][id] != Matched {
			for _, c := range b.Ways {
				if _, ok := wantedBy[c]; !ok {
					wantedBy[c] = id
				}
			}
		}
	}

	preferredBy := make(map[int64]int64) // reference -> first candidate preferring it
	for _, id := range sortedKeys(rs.rev) {
		if _, used := rs.consumed[id]; used {
			continue
		}
		if b := rs.rev[id].best; b != nil {
			for _, r := range b.Ways {
				if _, ok := preferredBy[r]; !ok {
					preferredBy[r] = id
				}
			}
		}
	}

	for _, id := range sortedKeys(rs.fwd) {
		if rs.decided[id] {
			continue
		}
		if c, ok := preferredBy[id]; ok {
			rs.ambiguous(network.Reference, id, fmt.Sprintf("candidate way %d prefers this way", c))
			continue
		}
		rs.res.states[network.Reference][id] = Unmatched
		rs.decided[id] = true
	}

	for _, id := range sortedKeys(rs.rev) {
		if _, used := rs.consumed[id]; used {
			rs.res.states[network.Candidate][id] = Matched
			continue
		}
		if b := rs.rev[id].best; b != nil {
			rs.ambiguous(network.Candidate, id, rs.describeReverse(*b))
			continue
		}
		if r, ok := wantedBy[id]; ok {
			rs.ambiguous(network.Candidate, id, fmt.Sprintf("reference way %d prefers this way", r))
			continue
		}
		rs.res.states[network.Candidate][id] = Unmatched
	}
}

func (rs *resolver) describeReverse(b Candidate) string {
	for _, r := range b.Ways {
		if m, ok := rs.matchOf(r); ok {
			return fmt.Sprintf("best reference way %d matched candidate way %s", r, joinIDs(m.Candidates))
		}
	}
	return fmt.Sprintf("best reference way %s is not mutual", joinIDs(b.Ways))
}

func (rs *resolver) matchOf(refID int64) (Match, bool) {
	for _, m := range rs.res.matches {
		if m.Reference == refID {
			return m, true
		}
	}
	return Match{}, false
}

func sortedKeys(m map[int64]*assessment) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, "+")
}
