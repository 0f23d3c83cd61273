package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/drawscan/hexmark/internal/config"
	"github.com/drawscan/hexmark/internal/pipeline"
	"github.com/drawscan/hexmark/internal/provider"
	"github.com/drawscan/hexmark/internal/provider/detect"
	"github.com/drawscan/hexmark/internal/provider/vision"
)

// buildDetector constructs the detection provider client from configuration.
func buildDetector(cfg *config.Config) (*detect.Client, error) {
	client, err := detect.NewClient(detect.Config{
		Endpoint:      cfg.Detect.Endpoint,
		ProjectID:     cfg.Detect.ProjectID,
		ModelName:     cfg.Detect.ModelName,
		PredictionKey: cfg.Detect.PredictionKey,
		Timeout:       cfg.DetectTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("detection provider: %w", err)
	}
	return client, nil
}

// buildJudge constructs the vision provider client from configuration.
func buildJudge(cfg *config.Config) (*vision.Client, error) {
	client, err := vision.NewClient(vision.Config{
		Endpoint:    cfg.Vision.Endpoint,
		APIKey:      cfg.Vision.APIKey,
		Model:       cfg.Vision.Model,
		MaxTokens:   cfg.Vision.MaxTokens,
		Temperature: cfg.Vision.Temperature,
		Timeout:     cfg.VisionTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("vision provider: %w", err)
	}
	return client, nil
}

// pipelineOptions maps configuration to pipeline run options.
func pipelineOptions(cfg *config.Config) pipeline.Options {
	return pipeline.Options{
		DisplayThreshold:    cfg.Detect.DisplayThreshold,
		ExtractionThreshold: cfg.Annotate.ExtractionThreshold,
		Upscale:             cfg.Annotate.Upscale,
		Enhance:             cfg.Annotate.Enhance,
		Padding:             cfg.Annotate.Padding,
		Pacing:              cfg.VisionPacing(),
		MaxConcurrent:       cfg.Vision.MaxConcurrent,
		Retry: provider.RetryPolicy{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			InitialBackoff: time.Duration(cfg.Retry.InitialBackoffMS) * time.Millisecond,
			MaxBackoff:     time.Duration(cfg.Retry.MaxBackoffMS) * time.Millisecond,
		},
		BreakerThreshold: cfg.Retry.BreakerThreshold,
		BreakerCooldown:  time.Duration(cfg.Retry.BreakerCooldownSec) * time.Second,
	}
}

// stageSession opens an existing session directory (creating it if needed)
// for standalone stage invocation.
func stageSession(dir, imagePath string) (*pipeline.Session, error) {
	if dir == "" {
		return nil, fmt.Errorf("session directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &pipeline.Session{ID: dir, Dir: dir, ImagePath: imagePath}, nil
}
