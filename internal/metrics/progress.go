package metrics

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ProgressFunc reports work done out of a total
type ProgressFunc func() (done, total int64)

// ProgressTicker logs progress of a long running step at a fixed interval
type ProgressTicker struct {
	name     string
	progress ProgressFunc
	interval time.Duration
	logger   *zap.Logger
	start    time.Time
}

// NewProgressTicker creates a ticker for the named step
func NewProgressTicker(name string, progress ProgressFunc, interval time.Duration, logger *zap.Logger) *ProgressTicker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &ProgressTicker{
		name:     name,
		progress: progress,
		interval: interval,
		logger:   logger,
	}
}

// Run logs until the context is cancelled
func (p *ProgressTicker) Run(ctx context.Context) {
	p.start = time.Now()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.report(time.Since(p.start))
		}
	}
}

func (p *ProgressTicker) report(elapsed time.Duration) {
	done, total := p.progress()
	if total == 0 {
		return
	}
	p.logger.Info("Progress",
		zap.String("step", p.name),
		zap.Int64("done", done),
		zap.Int64("total", total),
		zap.Float64("pct", Percent(done, total)),
		zap.Float64("per_sec", Rate(done, elapsed)),
	)
}

// Percent returns done as a percentage of total, rounded to one decimal
func Percent(done, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(done*1000/total) / 10
}

// Rate returns items per second
func Rate(done int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(done) / elapsed.Seconds()
}
