package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/drawscan/hexmark/internal/pipeline"
)

// mapCmd runs the mapping stage standalone against persisted validation
// results.
var mapCmd = &cobra.Command{
	Use:   "map <image>",
	Short: "Reconcile validated markers into the instance report",
	Long: `Group the session's validated markers by their printed text, surface
duplicates, and draw every validated marker back onto the original drawing.

Examples:
  hexmark map drawing.png --dir out`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		dir, _ := cmd.Flags().GetString("dir")
		session, err := stageSession(dir, args[0])
		if err != nil {
			return err
		}

		orch := pipeline.NewOrchestrator(session, nil, nil, pipelineOptions(cfg))
		if err := orch.RunStage(cmd.Context(), pipeline.StageMapping); err != nil {
			return err
		}
		if _, err := os.Stat(session.ReportPath()); err != nil {
			return fmt.Errorf("instance report was not persisted: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Instance report: %s\n", session.ReportPath())
		fmt.Fprintf(cmd.OutOrStdout(), "Mapped image:    %s\n", session.MappedPath())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mapCmd)
	mapCmd.Flags().StringP("dir", "d", "hexmark-session", "session directory for stage outputs")
}
