//nolint:lll
package config

import (
	"fmt"
	"time"
)

// Config represents the complete configuration for the hexmark application.
// It covers all commands (detect, extract, validate, map, run, serve) and
// supports loading from configuration files, environment variables, and
// command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`
	WorkDir  string `mapstructure:"work_dir" yaml:"work_dir" json:"work_dir"`

	// Object-detection provider settings
	Detect DetectConfig `mapstructure:"detect" yaml:"detect" json:"detect"`

	// Vision-language provider settings
	Vision VisionConfig `mapstructure:"vision" yaml:"vision" json:"vision"`

	// Annotation and extraction settings
	Annotate AnnotateConfig `mapstructure:"annotate" yaml:"annotate" json:"annotate"`

	// Provider retry behavior
	Retry RetryConfig `mapstructure:"retry" yaml:"retry" json:"retry"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	// Batch processing configuration
	Batch BatchConfig `mapstructure:"batch" yaml:"batch" json:"batch"`
}

// DetectConfig contains settings for the remote object-detection provider.
type DetectConfig struct {
	Endpoint         string  `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
	ProjectID        string  `mapstructure:"project_id" yaml:"project_id" json:"project_id"`
	ModelName        string  `mapstructure:"model_name" yaml:"model_name" json:"model_name"`
	PredictionKey    string  `mapstructure:"prediction_key" yaml:"prediction_key" json:"-"`
	DisplayThreshold float64 `mapstructure:"display_threshold" yaml:"display_threshold" json:"display_threshold"`
	TimeoutSec       int     `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
}

// VisionConfig contains settings for the vision-language validation provider.
type VisionConfig struct {
	Endpoint      string  `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
	APIKey        string  `mapstructure:"api_key" yaml:"api_key" json:"-"`
	Model         string  `mapstructure:"model" yaml:"model" json:"model"`
	MaxTokens     int     `mapstructure:"max_tokens" yaml:"max_tokens" json:"max_tokens"`
	Temperature   float64 `mapstructure:"temperature" yaml:"temperature" json:"temperature"`
	TimeoutSec    int     `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	PacingMS      int     `mapstructure:"pacing_ms" yaml:"pacing_ms" json:"pacing_ms"`
	MaxConcurrent int     `mapstructure:"max_concurrent" yaml:"max_concurrent" json:"max_concurrent"`
}

// AnnotateConfig contains annotation and crop-extraction settings.
type AnnotateConfig struct {
	Upscale             float64 `mapstructure:"upscale" yaml:"upscale" json:"upscale"`
	ExtractionThreshold float64 `mapstructure:"extraction_threshold" yaml:"extraction_threshold" json:"extraction_threshold"`
	Padding             float64 `mapstructure:"padding" yaml:"padding" json:"padding"`
	Enhance             bool    `mapstructure:"enhance" yaml:"enhance" json:"enhance"`
}

// RetryConfig contains retry and circuit-breaker settings for provider calls.
type RetryConfig struct {
	MaxAttempts        int `mapstructure:"max_attempts" yaml:"max_attempts" json:"max_attempts"`
	InitialBackoffMS   int `mapstructure:"initial_backoff_ms" yaml:"initial_backoff_ms" json:"initial_backoff_ms"`
	MaxBackoffMS       int `mapstructure:"max_backoff_ms" yaml:"max_backoff_ms" json:"max_backoff_ms"`
	BreakerThreshold   int `mapstructure:"breaker_threshold" yaml:"breaker_threshold" json:"breaker_threshold"`
	BreakerCooldownSec int `mapstructure:"breaker_cooldown_sec" yaml:"breaker_cooldown_sec" json:"breaker_cooldown_sec"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// BatchConfig contains batch processing settings.
type BatchConfig struct {
	Workers         int  `mapstructure:"workers" yaml:"workers" json:"workers"`
	ContinueOnError bool `mapstructure:"continue_on_error" yaml:"continue_on_error" json:"continue_on_error"`
}

// DefaultConfig returns a configuration populated with the standard defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Verbose:  false,
		WorkDir:  "hexmark-output",
		Detect: DetectConfig{
			DisplayThreshold: 0.5,
			TimeoutSec:       30,
		},
		Vision: VisionConfig{
			Model:         "gpt-4o",
			MaxTokens:     500,
			Temperature:   0.1,
			TimeoutSec:    30,
			PacingMS:      1000,
			MaxConcurrent: 1,
		},
		Annotate: AnnotateConfig{
			Upscale:             4.0,
			ExtractionThreshold: 0.70,
			Padding:             0.10,
			Enhance:             true,
		},
		Retry: RetryConfig{
			MaxAttempts:        3,
			InitialBackoffMS:   500,
			MaxBackoffMS:       8000,
			BreakerThreshold:   5,
			BreakerCooldownSec: 30,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     50,
			TimeoutSec:      300,
			ShutdownTimeout: 10,
		},
		Batch: BatchConfig{
			Workers:         1,
			ContinueOnError: true,
		},
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q (must be debug, info, warn or error)", c.LogLevel)
	}

	if c.Detect.DisplayThreshold < 0 || c.Detect.DisplayThreshold > 1 {
		return fmt.Errorf("detect.display_threshold must be in [0,1], got %v", c.Detect.DisplayThreshold)
	}
	if c.Annotate.ExtractionThreshold < 0 || c.Annotate.ExtractionThreshold > 1 {
		return fmt.Errorf("annotate.extraction_threshold must be in [0,1], got %v", c.Annotate.ExtractionThreshold)
	}
	if c.Annotate.ExtractionThreshold < c.Detect.DisplayThreshold {
		return fmt.Errorf("annotate.extraction_threshold (%v) must not be below detect.display_threshold (%v)",
			c.Annotate.ExtractionThreshold, c.Detect.DisplayThreshold)
	}
	if c.Annotate.Upscale < 1.0 {
		return fmt.Errorf("annotate.upscale must be >= 1.0, got %v", c.Annotate.Upscale)
	}
	if c.Annotate.Padding < 0 || c.Annotate.Padding >= 0.5 {
		return fmt.Errorf("annotate.padding must be in [0,0.5), got %v", c.Annotate.Padding)
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Vision.MaxConcurrent < 1 {
		return fmt.Errorf("vision.max_concurrent must be >= 1, got %d", c.Vision.MaxConcurrent)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1,65535], got %d", c.Server.Port)
	}
	if c.Batch.Workers < 1 {
		return fmt.Errorf("batch.workers must be >= 1, got %d", c.Batch.Workers)
	}

	return nil
}

// DetectTimeout returns the detection provider timeout as a duration.
func (c *Config) DetectTimeout() time.Duration {
	return time.Duration(c.Detect.TimeoutSec) * time.Second
}

// VisionTimeout returns the vision provider timeout as a duration.
func (c *Config) VisionTimeout() time.Duration {
	return time.Duration(c.Vision.TimeoutSec) * time.Second
}

// VisionPacing returns the minimum delay between vision provider calls.
func (c *Config) VisionPacing() time.Duration {
	return time.Duration(c.Vision.PacingMS) * time.Millisecond
}
