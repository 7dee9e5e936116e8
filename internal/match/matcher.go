package match

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/osmconflate/internal/config"
	"github.com/wegman-software/osmconflate/internal/logger"
	"github.com/wegman-software/osmconflate/internal/network"
	"github.com/wegman-software/osmconflate/internal/spatial"
	"github.com/wegman-software/osmconflate/internal/style"
)

// Matcher runs candidate generation, scoring and resolution over two
// networks. Scoring is spread over cfg.Workers goroutines; resolution is a
// single serial pass so results do not depend on scheduling.
type Matcher struct {
	cfg   *config.Config
	rules *style.Rules

	scored atomic.Int64
	total  atomic.Int64
}

// New creates a matcher. Nil rules fall back to the default participation
// rules.
func New(cfg *config.Config, rules *style.Rules) *Matcher {
	if rules == nil {
		rules = style.DefaultConfig().Compile()
	}
	return &Matcher{cfg: cfg, rules: rules}
}

// Progress returns the number of ways scored so far and the number to score
func (m *Matcher) Progress() (done, total int64) {
	return m.scored.Load(), m.total.Load()
}

// Run matches the reference network against the candidate network. The
// configuration is validated before any work starts. Neither network is
// modified.
func (m *Matcher) Run(ctx context.Context, ref, cand *network.Network) (*Result, error) {
	log := logger.Named("match")

	if err := m.cfg.Validate(); err != nil {
		return nil, err
	}
	if ref.Origin() != network.Reference || cand.Origin() != network.Candidate {
		return nil, fmt.Errorf("expected reference and candidate networks, got %s and %s", ref.Origin(), cand.Origin())
	}

	start := time.Now()
	mode := m.cfg.Mode

	refWays, refSet := participating(ref, func(w *network.Way) bool {
		return m.rules.AcceptReference(w.Tags(), mode)
	})
	candWays, candSet := participating(cand, func(w *network.Way) bool {
		return m.rules.AcceptCandidate(w.Tags(), mode)
	})

	log.Info("Building spatial indexes",
		zap.Int("reference_ways", ref.Len()),
		zap.Int("candidate_ways", cand.Len()),
		zap.Int("reference_participating", len(refWays)),
		zap.Int("candidate_participating", len(candWays)))

	refIdx := spatial.Build(ref)
	candIdx := spatial.Build(cand)

	m.scored.Store(0)
	m.total.Store(int64(len(refWays) + len(candWays)))

	fwd, err := m.assessAll(ctx, refWays, candIdx, m.acceptor(candSet))
	if err != nil {
		return nil, fmt.Errorf("scoring reference ways: %w", err)
	}
	rev, err := m.assessAll(ctx, candWays, refIdx, m.acceptor(refSet))
	if err != nil {
		return nil, fmt.Errorf("scoring candidate ways: %w", err)
	}

	log.Debug("Scoring complete", zap.Duration("elapsed", time.Since(start)))

	res := resolve(ref, cand, fwd, rev, m.cfg.ProximityRadius)

	st := res.Stats()
	log.Info("Matching complete",
		zap.Int("matched", st.Matched),
		zap.Int("ambiguous", st.Ambiguous),
		zap.Int("unmatched", st.Unmatched),
		zap.Int("combinations", st.Combinations),
		zap.Int("shared", st.Shared),
		zap.Float64("avg_distance_m", st.AvgDistance),
		zap.Duration("elapsed", time.Since(start)))

	return res, nil
}

// assessAll scores base ways in parallel. Results are stored by way id, so
// the outcome does not depend on goroutine scheduling.
func (m *Matcher) assessAll(ctx context.Context, ways []*network.Way, idx *spatial.Index, accept func(*network.Way) func(int64) bool) (map[int64]*assessment, error) {
	out := make([]*assessment, len(ways))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Workers)

	for i, w := range ways {
		i, w := i, w
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = m.assess(w, idx, accept(w))
			m.scored.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := make(map[int64]*assessment, len(out))
	for _, a := range out {
		result[a.way.ID()] = a
	}
	return result, nil
}

// acceptor returns, per base way, the filter applied to ways of the other
// network: they must participate and carry a compatible classification
func (m *Matcher) acceptor(otherSet map[int64]*network.Way) func(*network.Way) func(int64) bool {
	return func(base *network.Way) func(int64) bool {
		return func(id int64) bool {
			other, ok := otherSet[id]
			if !ok {
				return false
			}
			if base.Origin() == network.Reference {
				return m.rules.Compatible(base.Highway(), other.Highway())
			}
			return m.rules.Compatible(other.Highway(), base.Highway())
		}
	}
}

// participating returns the ways accepted by the filter in id order
func participating(net *network.Network, accept func(*network.Way) bool) ([]*network.Way, map[int64]*network.Way) {
	var ways []*network.Way
	set := make(map[int64]*network.Way)
	for _, w := range net.Ways() {
		if accept(w) {
			ways = append(ways, w)
			set[w.ID()] = w
		}
	}
	return ways, set
}
