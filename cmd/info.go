package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wegman-software/osmstream/osmpbf"
)

var infoCmd = &cobra.Command{
	Use:   "info <input.osm.pbf>",
	Short: "Print the header of a PBF file",
	Long: `Read only the leading OSMHeader frame of a PBF file and print its
metadata: required and optional features, bounding box, writing program
and replication state.`,
	Args: cobra.ExactArgs(1),
	Run:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) {
	f, err := os.Open(args[0])
	if err != nil {
		exitWithError("failed to open input", err)
	}
	defer f.Close()

	scanner := osmpbf.NewScanner(f)
	defer scanner.Close()

	header, err := scanner.Header()
	if err != nil {
		exitWithError("failed to read header", err)
	}

	fmt.Printf("required features: %s\n", strings.Join(header.RequiredFeatures, ", "))
	if len(header.OptionalFeatures) > 0 {
		fmt.Printf("optional features: %s\n", strings.Join(header.OptionalFeatures, ", "))
	}
	if header.BBox != nil {
		fmt.Printf("bbox:              %.7f,%.7f,%.7f,%.7f\n",
			header.BBox.Left, header.BBox.Bottom, header.BBox.Right, header.BBox.Top)
	}
	if header.WritingProgram != "" {
		fmt.Printf("writing program:   %s\n", header.WritingProgram)
	}
	if header.Source != "" {
		fmt.Printf("source:            %s\n", header.Source)
	}
	if !header.ReplicationTimestamp.IsZero() {
		fmt.Printf("replication time:  %s\n", header.ReplicationTimestamp)
	}
	if header.ReplicationSequenceNumber != 0 {
		fmt.Printf("replication seq:   %d\n", header.ReplicationSequenceNumber)
	}
	if header.ReplicationBaseURL != "" {
		fmt.Printf("replication url:   %s\n", header.ReplicationBaseURL)
	}
}
