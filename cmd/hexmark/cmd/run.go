package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/drawscan/hexmark/internal/config"
	"github.com/drawscan/hexmark/internal/pdfinput"
	"github.com/drawscan/hexmark/internal/pipeline"
	"github.com/drawscan/hexmark/internal/utils"
)

// runCmd executes the full four-stage pipeline over one or more inputs.
var runCmd = &cobra.Command{
	Use:   "run <input>...",
	Short: "Run the full pipeline over drawings or PDF drawing sets",
	Long: `Run detection, extraction, validation and mapping over each input.
Image inputs are processed directly; PDF inputs are split into their embedded
page images first. Every input gets an isolated session directory under the
work directory.

Examples:
  hexmark run drawing.png
  hexmark run drawings/*.png --workers 4
  hexmark run plans.pdf`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if cmd.Flags().Changed("workers") {
			cfg.Batch.Workers, _ = cmd.Flags().GetInt("workers")
		}
		if cmd.Flags().Changed("continue-on-error") {
			cfg.Batch.ContinueOnError, _ = cmd.Flags().GetBool("continue-on-error")
		}
		if noEnhance, _ := cmd.Flags().GetBool("no-enhance"); noEnhance {
			cfg.Annotate.Enhance = false
		}

		detector, err := buildDetector(cfg)
		if err != nil {
			return err
		}
		judge, err := buildJudge(cfg)
		if err != nil {
			return err
		}

		inputs, err := expandInputs(cfg, args)
		if err != nil {
			return err
		}

		failures := runBatch(cmd.Context(), cmd, cfg, detector, judge, inputs)
		if failures > 0 {
			return fmt.Errorf("%d of %d runs did not complete", failures, len(inputs))
		}
		return nil
	},
}

// expandInputs resolves the argument list into image paths, splitting PDFs
// into page images.
func expandInputs(cfg *config.Config, args []string) ([]string, error) {
	var inputs []string
	for _, arg := range args {
		switch {
		case strings.EqualFold(filepath.Ext(arg), ".pdf"):
			destDir := filepath.Join(cfg.WorkDir, "pdf-pages",
				strings.TrimSuffix(filepath.Base(arg), filepath.Ext(arg)))
			pages, err := pdfinput.ExtractPages(arg, destDir, nil)
			if err != nil {
				return nil, err
			}
			if len(pages) == 0 {
				return nil, fmt.Errorf("no page images found in %s", arg)
			}
			for _, p := range pages {
				inputs = append(inputs, p.Path)
			}
		case utils.IsSupportedImage(arg):
			inputs = append(inputs, arg)
		default:
			return nil, fmt.Errorf("unsupported input: %s", arg)
		}
	}
	if len(inputs) == 0 {
		return nil, errors.New("no inputs to process")
	}
	return inputs, nil
}

// runBatch drives one pipeline run per input with bounded parallelism and
// returns the number of runs that did not complete.
func runBatch(ctx context.Context, cmd *cobra.Command, cfg *config.Config,
	detector pipeline.Detector, judge pipeline.Judge, inputs []string,
) int {
	opts := pipelineOptions(cfg)

	var (
		mu       sync.Mutex
		failures int
		stop     bool
	)
	sem := make(chan struct{}, cfg.Batch.Workers)
	var wg sync.WaitGroup

	for _, input := range inputs {
		mu.Lock()
		halted := stop
		mu.Unlock()
		if halted {
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(input string) {
			defer wg.Done()
			defer func() { <-sem }()

			err := runOne(ctx, cmd, cfg, detector, judge, opts, input)
			if err != nil {
				mu.Lock()
				failures++
				if !cfg.Batch.ContinueOnError {
					stop = true
				}
				mu.Unlock()
				slog.Error("run failed", "input", input, "error", err)
			}
		}(input)
	}

	wg.Wait()
	return failures
}

func runOne(ctx context.Context, cmd *cobra.Command, cfg *config.Config,
	detector pipeline.Detector, judge pipeline.Judge, opts pipeline.Options, input string,
) error {
	session, err := pipeline.NewSession(cfg.WorkDir, "", input)
	if err != nil {
		return err
	}

	orch := pipeline.NewOrchestrator(session, detector, judge, opts)
	runErr := orch.Run(ctx)
	snap := orch.Snapshot()

	if snap.Stage == pipeline.StageCompleted {
		degraded := ""
		if snap.Degraded {
			degraded = " (degraded: synthetic placements in report)"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: completed, %d validated markers%s\n  report: %s\n",
			input, snap.ValidatedCount, degraded, session.ReportPath())
		return nil
	}
	if runErr == nil {
		runErr = fmt.Errorf("halted: %s", snap.HaltReason)
	}
	return runErr
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Int("workers", 1, "number of inputs processed in parallel")
	runCmd.Flags().Bool("continue-on-error", true, "keep processing remaining inputs after a failure")
	runCmd.Flags().Bool("no-enhance", false, "skip the sharpen/contrast/brightness enhancement on the overlay")
}
