package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/drawscan/hexmark/internal/marker"
	"github.com/drawscan/hexmark/internal/pipeline"
	"github.com/drawscan/hexmark/internal/utils"
)

// detectCmd runs the detection stage standalone.
var detectCmd = &cobra.Command{
	Use:   "detect <image>",
	Short: "Detect marker candidates in a drawing",
	Long: `Submit a drawing to the detection provider and persist the detection
record and the annotated overlay into the session directory.

Examples:
  hexmark detect drawing.png --dir out
  hexmark detect drawing.png --dir out --display-threshold 0.6`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if cmd.Flags().Changed("display-threshold") {
			cfg.Detect.DisplayThreshold, _ = cmd.Flags().GetFloat64("display-threshold")
		}
		if noEnhance, _ := cmd.Flags().GetBool("no-enhance"); noEnhance {
			cfg.Annotate.Enhance = false
		}
		if !utils.IsSupportedImage(args[0]) {
			return errors.New("unsupported image format")
		}

		detector, err := buildDetector(cfg)
		if err != nil {
			return err
		}
		dir, _ := cmd.Flags().GetString("dir")
		session, err := stageSession(dir, args[0])
		if err != nil {
			return err
		}

		orch := pipeline.NewOrchestrator(session, detector, nil, pipelineOptions(cfg))
		if err := orch.RunStage(cmd.Context(), pipeline.StageDetection); err != nil {
			return err
		}
		if _, err := os.Stat(session.DetectionsPath()); err != nil {
			return fmt.Errorf("detection record was not persisted: %w", err)
		}

		var record marker.DetectionRecord
		if err := marker.ReadJSON(session.DetectionsPath(), &record); err != nil {
			return err
		}
		printDetectionSummary(cmd.OutOrStdout(), record.Summary)

		fmt.Fprintf(cmd.OutOrStdout(), "Detection record: %s\n", session.DetectionsPath())
		fmt.Fprintf(cmd.OutOrStdout(), "Annotated image:  %s\n", session.AnnotatedPath())
		return nil
	},
}

// printDetectionSummary writes the per-label detection counts in stable
// label order.
func printDetectionSummary(w io.Writer, summary marker.DetectionSummary) {
	fmt.Fprintf(w, "Detections: %d\n", summary.Total)
	labels := make([]string, 0, len(summary.ByLabel))
	for label := range summary.ByLabel {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		fmt.Fprintf(w, "  %s: %d\n", label, summary.ByLabel[label])
	}
}

func init() {
	rootCmd.AddCommand(detectCmd)
	detectCmd.Flags().StringP("dir", "d", "hexmark-session", "session directory for stage outputs")
	detectCmd.Flags().Float64("display-threshold", 0.5, "minimum confidence for a detection to be kept")
	detectCmd.Flags().Bool("no-enhance", false, "skip the sharpen/contrast/brightness enhancement on the overlay")
}
