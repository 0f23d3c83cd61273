package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/drawscan/hexmark/internal/pipeline"
)

// extractCmd runs the extraction stage standalone against a persisted
// detection record.
var extractCmd = &cobra.Command{
	Use:   "extract <image>",
	Short: "Crop high-confidence detections into artifacts",
	Long: `Read the detection record from the session directory and cut every
high-confidence detection out of the drawing as a padded PNG crop.

Examples:
  hexmark extract drawing.png --dir out
  hexmark extract drawing.png --dir out --threshold 0.8 --padding 0.15`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if cmd.Flags().Changed("threshold") {
			cfg.Annotate.ExtractionThreshold, _ = cmd.Flags().GetFloat64("threshold")
		}
		if cmd.Flags().Changed("padding") {
			cfg.Annotate.Padding, _ = cmd.Flags().GetFloat64("padding")
		}

		dir, _ := cmd.Flags().GetString("dir")
		session, err := stageSession(dir, args[0])
		if err != nil {
			return err
		}

		orch := pipeline.NewOrchestrator(session, nil, nil, pipelineOptions(cfg))
		if err := orch.RunStage(cmd.Context(), pipeline.StageExtraction); err != nil {
			return err
		}
		if _, err := os.Stat(session.ManifestPath()); err != nil {
			return fmt.Errorf("artifact manifest was not persisted: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Artifact manifest: %s\n", session.ManifestPath())
		fmt.Fprintf(cmd.OutOrStdout(), "Artifacts:         %s\n", session.ArtifactsDir())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().StringP("dir", "d", "hexmark-session", "session directory for stage outputs")
	extractCmd.Flags().Float64("threshold", 0.70, "minimum confidence for a detection to be extracted")
	extractCmd.Flags().Float64("padding", 0.10, "per-side padding ratio for crops")
}
