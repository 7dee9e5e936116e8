// Package match pairs the ways of a reference network with the ways of a
// candidate network.
//
// Every participating way is scored against the other network (forward for
// reference ways, reverse for candidate ways). A serial resolver then accepts
// the pairings both directions agree on.
package match

import (
	"fmt"

	"github.com/paulmach/orb"

	"github.com/wegman-software/osmconflate/internal/network"
)

// State is the resolution state of a way
type State int

const (
	Unseen         State = iota // excluded from matching
	CandidateFound              // scored, not yet resolved
	Matched
	Ambiguous
	Unmatched
)

// String returns the state name used in reports
func (s State) String() string {
	switch s {
	case Unseen:
		return "unseen"
	case CandidateFound:
		return "candidate_found"
	case Matched:
		return "matched"
	case Ambiguous:
		return "ambiguous"
	case Unmatched:
		return "unmatched"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Score summarises how well ways of one network follow a base way
type Score struct {
	AvgDistance float64 // weighted mean distance of covered samples, metres
	Overlap     float64 // covered share of the base length
	Covered     int     // samples within the proximity radius
	Excluded    int     // samples farther than the radius from every way
}

// Candidate is a tentative pairing of a base way with one or more ways of
// the other network, ordered along the base way
type Candidate struct {
	Base   int64
	Origin network.Origin // origin of the base way
	Ways   []int64
	Score
}

// Contains reports whether a way is part of the combination
func (c Candidate) Contains(id int64) bool {
	for _, w := range c.Ways {
		if w == id {
			return true
		}
	}
	return false
}

// IsSingle reports whether the combination is exactly the given way
func (c Candidate) IsSingle(id int64) bool {
	return len(c.Ways) == 1 && c.Ways[0] == id
}

// Match is an accepted pairing of a reference way with candidate ways
type Match struct {
	Reference  int64
	Candidates []int64
	Score
	// Portion is the piece of a shared candidate way assigned to this
	// reference. Nil when the whole candidate geometry applies.
	Portion orb.LineString
}

// Shared reports whether the match received a piece of a split candidate
func (m Match) Shared() bool { return m.Portion != nil }

// Geometry returns the candidate geometry replacing the reference way
func (m Match) Geometry(cand *network.Network) orb.LineString {
	if m.Portion != nil {
		return append(orb.LineString(nil), m.Portion...)
	}
	return JoinWays(cand, m.Candidates)
}

// Stats counts the outcome of a run
type Stats struct {
	References int // participating reference ways
	Candidates int // participating candidate ways

	Matched   int
	Ambiguous int
	Unmatched int

	CandidatesMatched   int
	CandidatesAmbiguous int
	CandidatesUnmatched int

	Combinations int // matches with more than one candidate way
	Shared       int // matches on a piece of a split candidate way

	AvgDistance float64 // mean average distance over all matches
}
