package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/wegman-software/osmconflate/internal/config"
	"github.com/wegman-software/osmconflate/internal/logger"
)

var (
	cfg             = config.DefaultConfig()
	verbose         bool
	logFile         string
	configFile      string
	metricsInterval time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "osmconflate",
	Short: "Conflate an OSM road network with an authoritative road dataset",
	Long: `osmconflate matches the ways of a reference road network (usually an
OSM extract) against a candidate network (such as NVDB/Elveg) and writes a
JOSM-ready OSM file for manual review.

Modes:
  replace   replace matched reference geometry with candidate geometry
  offset    report matched pairs that lie too far apart
  new       add candidate roads missing from the reference
  tagref    update tags of numbered roads
  taglocal  update tags of local roads`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg.Verbose = verbose
		cfg.LogFile = logFile
		cfg.MetricsInterval = metricsInterval

		if logFile != "" {
			logger.InitWithFile(verbose, logFile)
		} else {
			logger.Init(verbose)
		}

		if configFile != "" {
			return loadConfigFile(cmd.Flags(), configFile)
		}
		return nil
	},
}

func Execute() error {
	defer logger.Sync()
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()

	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	flags.StringVar(&logFile, "log-file", "", "Path to log file for persistent logging (JSON format)")
	flags.DurationVar(&metricsInterval, "metrics-interval", cfg.MetricsInterval, "Interval for system metrics logging (e.g., 10s, 1m), 0 disables")
	flags.StringVarP(&configFile, "config", "c", "", "YAML file with thresholds and switches; flags given explicitly win")
	flags.IntVarP(&cfg.Workers, "workers", "j", cfg.Workers, "Number of parallel scoring workers")

	// Matching thresholds
	flags.Float64Var(&cfg.ProximityRadius, "radius", cfg.ProximityRadius, "Proximity radius in metres")
	flags.Float64Var(&cfg.MaxLengthRatio, "max-length-ratio", cfg.MaxLengthRatio, "Discard pairings whose lengths differ more than this factor")
	flags.Float64Var(&cfg.SampleInterval, "sample-interval", cfg.SampleInterval, "Distance between scoring samples in metres")
	flags.Float64Var(&cfg.OffsetThreshold, "offset-threshold", cfg.OffsetThreshold, "Average distance in metres above which offset mode reports a pair")
	flags.Float64Var(&cfg.MinSegmentLength, "min-segment-length", cfg.MinSegmentLength, "New geometry shorter than this is tagged NEW_SEGMENT")

	// Output switches
	flags.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Add OSMID, DISTANCE and OVERLAP tags")
	flags.BoolVar(&cfg.OffsetEmitBoth, "emit-both", cfg.OffsetEmitBoth, "Offset mode also emits the reference way")
	flags.StringVar(&cfg.MarkerKey, "marker-key", cfg.MarkerKey, "Tag key marking highway class disagreement")

	// Optional inputs
	flags.StringVarP(&cfg.StyleFile, "style", "S", "", "Style YAML file with participation rules")
	flags.StringVar(&cfg.PolicyFile, "policy", "", "YAML tag policy for the tag modes")
	flags.StringVar(&cfg.TagScript, "tag-script", "", "Lua script defining transform_tags(tags, origin)")
}

// loadConfigFile overlays the file on the defaults and then reapplies the
// flags the user set explicitly
func loadConfigFile(flags *pflag.FlagSet, path string) error {
	changed := make(map[string]string)
	flags.Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})

	if err := cfg.LoadFile(path); err != nil {
		return err
	}
	for name, value := range changed {
		if err := flags.Set(name, value); err != nil {
			return err
		}
	}
	logger.Get().Debug("Loaded config file", zap.String("path", path))
	return nil
}

func exitWithError(msg string, err error) {
	log := logger.Get()
	if err != nil {
		log.Error(msg, zap.Error(err))
	} else {
		log.Error(msg)
	}
	logger.Sync()
	os.Exit(1)
}
