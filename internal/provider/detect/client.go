// Package detect implements the client for the remote object-detection
// provider that finds hexagonal marker candidates in drawing images.
package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/drawscan/hexmark/internal/marker"
	"github.com/drawscan/hexmark/internal/provider"
)

const providerName = "detection"

// Config holds the connection settings for the detection provider.
type Config struct {
	Endpoint      string
	ProjectID     string
	ModelName     string
	PredictionKey string
	Timeout       time.Duration
}

// Client calls the hosted prediction endpoint with raw image bytes and
// returns candidate detections in normalized coordinates.
type Client struct {
	cfg    Config
	client *http.Client
}

// NewClient creates a detection client. Endpoint, project, model and key are
// required.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" || cfg.ProjectID == "" || cfg.ModelName == "" {
		return nil, errors.New("detection provider requires endpoint, project_id and model_name")
	}
	if cfg.PredictionKey == "" {
		return nil, errors.New("detection provider requires a prediction key")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// predictionResponse mirrors the provider's JSON payload.
type predictionResponse struct {
	Predictions []struct {
		Probability float64 `json:"probability"`
		TagName     string  `json:"tagName"`
		BoundingBox struct {
			Left   float64 `json:"left"`
			Top    float64 `json:"top"`
			Width  float64 `json:"width"`
			Height float64 `json:"height"`
		} `json:"boundingBox"`
	} `json:"predictions"`
}

func (c *Client) url() string {
	return fmt.Sprintf("%s/customvision/v3.0/Prediction/%s/detect/iterations/%s/image",
		strings.TrimRight(c.cfg.Endpoint, "/"), c.cfg.ProjectID, c.cfg.ModelName)
}

// Detect submits the image bytes and returns every prediction in provider
// order, unfiltered. Threshold filtering is the caller's concern.
func (c *Client) Detect(ctx context.Context, imageData []byte) ([]marker.Detection, error) {
	if len(imageData) == 0 {
		return nil, &provider.Error{Provider: providerName, Err: errors.New("empty image payload")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(), bytes.NewReader(imageData))
	if err != nil {
		return nil, &provider.Error{Provider: providerName, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Prediction-Key", c.cfg.PredictionKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, provider.NewTransportError(providerName, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.NewTransportError(providerName, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, provider.NewHTTPError(providerName, resp.StatusCode,
			fmt.Errorf("prediction request failed: %s", strings.TrimSpace(string(body))))
	}

	var parsed predictionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &provider.Error{Provider: providerName, Err: fmt.Errorf("parse response: %w", err)}
	}

	detections := make([]marker.Detection, 0, len(parsed.Predictions))
	for _, p := range parsed.Predictions {
		detections = append(detections, marker.Detection{
			Label:      p.TagName,
			Confidence: p.Probability,
			Box: marker.Box{
				Left:   p.BoundingBox.Left,
				Top:    p.BoundingBox.Top,
				Width:  p.BoundingBox.Width,
				Height: p.BoundingBox.Height,
			},
		})
	}
	return detections, nil
}
