package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/osmconflate/internal/config"
	"github.com/wegman-software/osmconflate/internal/decide"
	"github.com/wegman-software/osmconflate/internal/flex"
	"github.com/wegman-software/osmconflate/internal/logger"
	"github.com/wegman-software/osmconflate/internal/match"
	"github.com/wegman-software/osmconflate/internal/metrics"
	"github.com/wegman-software/osmconflate/internal/network"
	"github.com/wegman-software/osmconflate/internal/osmio"
	"github.com/wegman-software/osmconflate/internal/report"
	"github.com/wegman-software/osmconflate/internal/review"
	"github.com/wegman-software/osmconflate/internal/style"
)

// outputs holds the per-run output flags shared by all mode commands
type outputs struct {
	osmFile            string
	geojsonFile        string
	reportFile         string
	reviewTable        string
	envFile            string
	keepReferenceNodes bool
}

var out outputs

var modeCommands = []struct {
	mode  config.Mode
	short string
}{
	{config.ModeReplace, "Replace matched reference geometry with candidate geometry"},
	{config.ModeOffset, "Report matched pairs whose average distance exceeds the offset threshold"},
	{config.ModeNew, "Add candidate roads that have no counterpart in the reference"},
	{config.ModeTagRef, "Update tags of numbered roads from their matched candidates"},
	{config.ModeTagLocal, "Update tags of local roads from their matched candidates"},
}

func init() {
	for _, mc := range modeCommands {
		rootCmd.AddCommand(newModeCommand(mc.mode, mc.short))
	}
}

func newModeCommand(mode config.Mode, short string) *cobra.Command {
	c := &cobra.Command{
		Use:   string(mode) + " <reference.osm> <candidate.osm>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			runConflate(mode, args[0], args[1])
		},
	}

	c.Flags().StringVarP(&out.osmFile, "output", "o", "", "Output OSM file (default <reference>_"+string(mode)+".osm)")
	c.Flags().StringVar(&out.geojsonFile, "geojson", "", "Also write the output as GeoJSON")
	c.Flags().StringVar(&out.reportFile, "report", "", "Write a Parquet report with the outcome of every way")
	c.Flags().StringVar(&out.reviewTable, "review-table", "", "Load the output into this PostGIS table")
	c.Flags().StringVar(&out.envFile, "env-file", ".env", "Env file with PG* settings for the review table")
	c.Flags().BoolVar(&out.keepReferenceNodes, "keep-reference-nodes", false, "Write all reference nodes and mark unused ones for deletion")
	return c
}

// defaultOutput derives <reference>_<mode>.osm from the reference path
func defaultOutput(reference string, mode config.Mode) string {
	base := reference
	for _, ext := range []string{".gz", ".bz2", ".pbf", ".osm", ".xml"} {
		if strings.HasSuffix(strings.ToLower(base), ext) {
			base = base[:len(base)-len(ext)]
		}
	}
	return base + "_" + string(mode) + ".osm"
}

func runConflate(mode config.Mode, refPath, candPath string) {
	log := logger.Get()
	cfg.Mode = mode

	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}
	if out.osmFile == "" {
		out.osmFile = defaultOutput(refPath, mode)
	}

	rules, err := loadRules(cfg.StyleFile)
	if err != nil {
		exitWithError("failed to load style", err)
	}
	policy := decide.DefaultPolicy()
	if cfg.PolicyFile != "" {
		if policy, err = decide.LoadPolicy(cfg.PolicyFile); err != nil {
			exitWithError("failed to load tag policy", err)
		}
	}
	engine, err := decide.NewEngine(cfg, policy)
	if err != nil {
		exitWithError("invalid configuration", err)
	}

	var opts osmio.Options
	if cfg.TagScript != "" {
		rt, err := flex.LoadTransform(cfg.TagScript)
		if err != nil {
			exitWithError("failed to load tag script", err)
		}
		defer rt.Close()
		opts.Transform = rt.Transform
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if cfg.MetricsInterval > 0 {
		mctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go metrics.NewCollector(cfg.MetricsInterval, logger.Named("metrics")).Start(mctx)
	}

	totalStart := time.Now()
	log.Info("Starting conflation",
		zap.String("mode", string(mode)),
		zap.String("reference", refPath),
		zap.String("candidate", candPath),
		zap.String("output", out.osmFile),
		zap.Int("workers", cfg.Workers),
		zap.Float64("radius_m", cfg.ProximityRadius),
	)

	ref, cand, err := loadInputs(ctx, refPath, candPath, opts)
	if err != nil {
		exitWithError("failed to load input", err)
	}

	matcher := match.New(cfg, rules)
	pctx, cancelProgress := context.WithCancel(ctx)
	go metrics.NewProgressTicker("match", matcher.Progress, 5*time.Second, logger.Named("match")).Run(pctx)
	res, err := matcher.Run(ctx, ref.Network, cand.Network)
	cancelProgress()
	if err != nil {
		exitWithError("matching failed", err)
	}

	features := engine.Decide(ref.Network, cand.Network, res)

	writer := &osmio.Writer{Generator: "osmconflate " + string(mode), KeepReferenceNodes: out.keepReferenceNodes}
	if err := writer.WriteFile(out.osmFile, features, ref, cand); err != nil {
		exitWithError("failed to write output", err)
	}
	if err := writeExtras(ctx, ref.Network, cand.Network, res, features); err != nil {
		exitWithError("failed to write output", err)
	}

	logSummary(res.Stats(), features, time.Since(totalStart))
}

func loadRules(path string) (*style.Rules, error) {
	if path == "" {
		return style.DefaultConfig().Compile(), nil
	}
	sc, err := style.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return sc.Compile(), nil
}

// loadInputs reads both files concurrently
func loadInputs(ctx context.Context, refPath, candPath string, opts osmio.Options) (ref, cand *osmio.Dataset, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ref, err = osmio.Load(gctx, refPath, network.Reference, opts)
		return err
	})
	g.Go(func() error {
		var err error
		cand, err = osmio.Load(gctx, candPath, network.Candidate, opts)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return ref, cand, nil
}

func writeExtras(ctx context.Context, ref, cand *network.Network, res *match.Result, features []decide.Feature) error {
	log := logger.Get()

	if out.geojsonFile != "" {
		if err := osmio.WriteGeoJSONFile(out.geojsonFile, features); err != nil {
			return err
		}
		log.Info("Wrote GeoJSON", zap.String("path", out.geojsonFile), zap.Int("features", len(features)))
	}

	if out.reportFile != "" {
		rows := report.Rows(ref, cand, res)
		if err := report.WriteFile(out.reportFile, rows); err != nil {
			return err
		}
		log.Info("Wrote report", zap.String("path", out.reportFile), zap.Int("rows", len(rows)))
	}

	if out.reviewTable != "" {
		settings, err := review.SettingsFromEnv(out.envFile)
		if err != nil {
			return err
		}
		loader, err := review.NewLoader(ctx, settings)
		if err != nil {
			return err
		}
		defer loader.Close()
		if err := loader.PrepareTable(ctx, out.reviewTable); err != nil {
			return err
		}
		if _, err := loader.Load(ctx, out.reviewTable, features); err != nil {
			return fmt.Errorf("review table: %w", err)
		}
	}
	return nil
}

func logSummary(s match.Stats, features []decide.Feature, elapsed time.Duration) {
	var modified, created int
	for _, f := range features {
		switch f.Action {
		case decide.ActionModify:
			modified++
		case decide.ActionCreate:
			created++
		}
	}

	logger.Get().Info("Conflation complete",
		zap.Duration("total_time", elapsed.Round(time.Millisecond)),
		zap.Int("references", s.References),
		zap.Int("matched", s.Matched),
		zap.Int("ambiguous", s.Ambiguous),
		zap.Int("unmatched", s.Unmatched),
		zap.Int("candidates", s.Candidates),
		zap.Int("candidates_unmatched", s.CandidatesUnmatched),
		zap.Int("combinations", s.Combinations),
		zap.Int("shared", s.Shared),
		zap.String("avg_offset", fmt.Sprintf("%.1f m", s.AvgDistance)),
		zap.Int("features", len(features)),
		zap.Int("modified", modified),
		zap.Int("created", created),
		zap.String("output", filepath.Base(out.osmFile)),
	)
}
