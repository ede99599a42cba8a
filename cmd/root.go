package cmd

import (
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/osmstream/internal/config"
	"github.com/wegman-software/osmstream/internal/logger"
)

var (
	cfg             = config.DefaultConfig()
	verbose         bool
	logFile         string
	metricsInterval time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "osmstream",
	Short: "Streaming OSM PBF/XML decoder",
	Long: `osmstream reads OpenStreetMap data files (PBF, XML, and gzip/bzip2
compressed XML) as a lazy stream of nodes, ways and relations.

Features:
  - Bounded-memory streaming decode of multi-gigabyte planet extracts
  - Uniform feature stream across the PBF and XML formats
  - Tag filtering via YAML style files or Lua scripts
  - NDJSON and Parquet output`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg.Verbose = verbose
		cfg.LogFile = logFile
		cfg.MetricsInterval = metricsInterval

		logger.Init(verbose, logFile)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&cfg.Format, "format", "f", "", "Input format: xml, gz, bz2 or pbf (default: guess from extension)")

	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Path to log file for persistent logging (JSON format)")
	rootCmd.PersistentFlags().DurationVar(&metricsInterval, "metrics-interval", 30*time.Second, "Interval for system metrics logging (e.g., 10s, 1m)")
}

func exitWithError(msg string, err error) {
	log := logger.Get()
	if err != nil {
		log.Error(msg, zap.Error(err))
	} else {
		log.Error(msg)
	}
	os.Exit(1)
}
