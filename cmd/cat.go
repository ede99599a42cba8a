package cmd

import (
	"bufio"
	"encoding/json"
	"os"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/osmstream/internal/config"
	"github.com/wegman-software/osmstream/internal/logger"
	"github.com/wegman-software/osmstream/internal/script"
	"github.com/wegman-software/osmstream/internal/style"
	"github.com/wegman-software/osmstream/osm"
	"github.com/wegman-software/osmstream/osmfile"
)

var (
	catBBox string
)

var catCmd = &cobra.Command{
	Use:   "cat <input>",
	Short: "Stream features as NDJSON",
	Long: `Decode an OSM data file and print one JSON object per feature to
stdout, in file order.

Optional filters:
  --style  YAML tag filter (include/exclude/require_any per feature kind)
  --lua    Lua script with process_node/process_way/process_relation hooks
  --bbox   keep only nodes inside minlon,minlat,maxlon,maxlat`,
	Args: cobra.ExactArgs(1),
	Run:  runCat,
}

func init() {
	rootCmd.AddCommand(catCmd)

	catCmd.Flags().StringVar(&cfg.StyleFile, "style", "", "Path to style YAML file")
	catCmd.Flags().StringVar(&cfg.LuaScript, "lua", "", "Path to Lua filter script")
	catCmd.Flags().StringVar(&catBBox, "bbox", "", "Bounding box filter: minlon,minlat,maxlon,maxlat")
}

// featureJSON is the NDJSON shape of one feature
type featureJSON struct {
	Type    osm.Type     `json:"type"`
	ID      int64        `json:"id"`
	Lat     *float64     `json:"lat,omitempty"`
	Lon     *float64     `json:"lon,omitempty"`
	Tags    osm.Tags     `json:"tags,omitempty"`
	Refs    []int64      `json:"refs,omitempty"`
	Members []osm.Member `json:"members,omitempty"`
	Info    *osm.Info    `json:"info,omitempty"`
}

func toFeatureJSON(f osm.Feature) featureJSON {
	out := featureJSON{Type: f.Type(), ID: f.FeatureID()}
	switch o := f.(type) {
	case *osm.Node:
		out.Lat = &o.Lat
		out.Lon = &o.Lon
		out.Tags = o.Tags
		out.Info = o.Info
	case *osm.Way:
		out.Refs = o.Refs
		out.Tags = o.Tags
		out.Info = o.Info
	case *osm.Relation:
		out.Members = o.Members
		out.Tags = o.Tags
		out.Info = o.Info
	}
	return out
}

func runCat(cmd *cobra.Command, args []string) {
	cfg.InputFile = args[0]
	log := logger.Get()

	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}
	format, err := osmfile.ParseFormat(cfg.Format)
	if err != nil {
		exitWithError("invalid format", err)
	}

	bbox, err := config.ParseBBox(catBBox)
	if err != nil {
		exitWithError("invalid bbox", err)
	}

	var styleCfg *style.Config
	if cfg.StyleFile != "" {
		if styleCfg, err = style.LoadConfig(cfg.StyleFile); err != nil {
			exitWithError("failed to load style file", err)
		}
	}

	var runtime *script.Runtime
	if cfg.LuaScript != "" {
		runtime = script.NewRuntime()
		defer runtime.Close()
		if err := runtime.LoadFile(cfg.LuaScript); err != nil {
			exitWithError("failed to load Lua script", err)
		}
	}

	f, err := osmfile.Open(cfg.InputFile, format)
	if err != nil {
		exitWithError("failed to open input", err)
	}
	defer f.Close()

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	enc := json.NewEncoder(out)

	var emitted, dropped int64
	for f.Scan() {
		feature := f.Feature()

		if node, ok := feature.(*osm.Node); ok && !bbox.Contains(node.Lat, node.Lon) {
			dropped++
			continue
		}
		if styleCfg != nil {
			filter := style.NewFilter(styleCfg.For(feature.Type()))
			if !matchFeature(filter, feature) {
				dropped++
				continue
			}
		}
		if runtime != nil {
			keep, err := runtime.Process(feature)
			if err != nil {
				exitWithError("lua filter failed", err)
			}
			if !keep {
				dropped++
				continue
			}
		}

		if err := enc.Encode(toFeatureJSON(feature)); err != nil {
			exitWithError("failed to write feature", err)
		}
		emitted++
	}
	if err := f.Err(); err != nil {
		exitWithError("decode failed", err)
	}

	log.Info("Stream complete", zap.Int64("emitted", emitted), zap.Int64("dropped", dropped))
}

func matchFeature(filter *style.Filter, f osm.Feature) bool {
	switch o := f.(type) {
	case *osm.Node:
		return filter.Match(o.Tags)
	case *osm.Way:
		return filter.Match(o.Tags)
	case *osm.Relation:
		return filter.Match(o.Tags)
	}
	return true
}
