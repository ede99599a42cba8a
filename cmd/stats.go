package cmd

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spf13/cobra"
	"github.com/wegman-software/osmstream/internal/logger"
	"github.com/wegman-software/osmstream/internal/metrics"
	"github.com/wegman-software/osmstream/osm"
	"github.com/wegman-software/osmstream/osmfile"
)

var statsCmd = &cobra.Command{
	Use:   "stats <input>",
	Short: "Count the features in an OSM data file",
	Long: `Decode the whole file once and report feature and tag counts.

Works on PBF, XML and gzip/bzip2 compressed XML inputs. Useful both as a
quick inventory and as a full-file integrity check, since any framing or
encoding error aborts the run.`,
	Args: cobra.ExactArgs(1),
	Run:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) {
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

	var size int64
	if info, err := os.Stat(cfg.InputFile); err == nil {
		size = info.Size()
	}

	log.Info("Counting features",
		zap.String("input", cfg.InputFile),
		zap.String("format", string(f.Format())),
	)

	start := time.Now()
	var nodes, ways, relations, tags int64

	g, ctx := errgroup.WithContext(context.Background())
	ctx, cancel := context.WithCancel(ctx)

	g.Go(func() error {
		collector := metrics.NewCollector(cfg.MetricsInterval, log)
		collector.Start(ctx)
		return nil
	})

	g.Go(func() error {
		defer cancel()
		for f.Scan() {
			switch o := f.Feature().(type) {
			case *osm.Node:
				nodes++
				tags += int64(len(o.Tags))
			case *osm.Way:
				ways++
				tags += int64(len(o.Tags))
			case *osm.Relation:
				relations++
				tags += int64(len(o.Tags))
			}
		}
		return f.Err()
	})

	if err := g.Wait(); err != nil {
		exitWithError("decode failed", err)
	}

	elapsed := time.Since(start)
	fields := []zap.Field{
		zap.Duration("duration", elapsed.Round(time.Millisecond)),
		zap.Int64("nodes", nodes),
		zap.Int64("ways", ways),
		zap.Int64("relations", relations),
		zap.Int64("tags", tags),
	}
	if size > 0 && elapsed > 0 {
		fields = append(fields, zap.Float64("throughput_mb_s", float64(size)/(1024*1024)/elapsed.Seconds()))
	}
	log.Info("Count complete", fields...)
}
