package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/drawscan/hexmark/internal/pipeline"
)

// validateCmd runs the validation stage standalone against a persisted
// artifact manifest.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Judge extracted artifacts with the vision provider",
	Long: `Submit every artifact in the session's manifest to the vision-language
provider and persist the per-artifact judgments. Results are written after
every completed judgment, so an interrupted run keeps what it recorded.

Examples:
  hexmark validate --dir out`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := GetConfig()

		judge, err := buildJudge(cfg)
		if err != nil {
			return err
		}
		dir, _ := cmd.Flags().GetString("dir")
		session, err := stageSession(dir, "")
		if err != nil {
			return err
		}

		orch := pipeline.NewOrchestrator(session, nil, judge, pipelineOptions(cfg))
		if err := orch.RunStage(cmd.Context(), pipeline.StageValidation); err != nil {
			return err
		}
		if _, err := os.Stat(session.ValidationPath()); err != nil {
			return fmt.Errorf("validation results were not persisted: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Validation results: %s\n", session.ValidationPath())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringP("dir", "d", "hexmark-session", "session directory for stage outputs")
}
