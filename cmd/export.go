package cmd

import (
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/osmstream/internal/export"
	"github.com/wegman-software/osmstream/internal/logger"
	"github.com/wegman-software/osmstream/osmfile"
)

var exportCmd = &cobra.Command{
	Use:   "export <input>",
	Short: "Export OSM data to Parquet files",
	Long: `Decode an OSM data file and write the features to Parquet files:

  nodes.parquet     (id, lat, lon, tags)
  ways.parquet      (id, refs, tags)
  relations.parquet (id, members, tags)

With --extra-attributes each file also carries the version, timestamp,
changeset, uid and user columns.`,
	Args: cobra.ExactArgs(1),
	Run:  runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&cfg.OutputDir, "output-dir", "o", cfg.OutputDir, "Directory for Parquet files")
	exportCmd.Flags().IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Rows per Parquet row group")
	exportCmd.Flags().BoolVar(&cfg.ExtraAttributes, "extra-attributes", false, "Include version, timestamp, changeset, uid and user columns")
}

func runExport(cmd *cobra.Command, args []string) {
	cfg.InputFile = args[0]
	log := logger.Get()

	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}
	format, err := osmfile.ParseFormat(cfg.Format)
	if err != nil {
		exitWithError("invalid format", err)
	}

	f, err := osmfile.Open(cfg.InputFile, format)
	if err != nil {
		exitWithError("failed to open input", err)
	}
	defer f.Close()

	writer, err := export.NewWriter(cfg.OutputDir, cfg.BatchSize, cfg.ExtraAttributes)
	if err != nil {
		exitWithError("failed to create Parquet writers", err)
	}

	log.Info("Starting export",
		zap.String("input", cfg.InputFile),
		zap.String("output", cfg.OutputDir),
	)

	start := time.Now()
	var count int64
	for f.Scan() {
		if err := writer.Write(f.Feature()); err != nil {
			writer.Close()
			exitWithError("failed to write feature", err)
		}
		count++
	}
	if err := f.Err(); err != nil {
		writer.Close()
		exitWithError("decode failed", err)
	}
	if err := writer.Close(); err != nil {
		exitWithError("failed to close Parquet writers", err)
	}

	log.Info("Export complete",
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)),
		zap.Int64("features", count),
	)
}
