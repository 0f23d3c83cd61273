// Package vision implements the client for the vision-language provider
// that judges whether an extracted crop really is a hexagonal marker and
// reads the two text lines printed inside it.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
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

const providerName = "vision"

// markerPrompt asks for a strict JSON verdict on a single crop.
const markerPrompt = `You are inspecting a cropped region from a technical drawing.
Decide whether the crop shows a hexagonal marker: a hexagon outline containing
exactly two short lines of printed text, one above the other.

Answer with JSON only, no prose, in exactly this shape:
{"is_hexagon": true/false, "upper_line": "...", "lower_line": "...", "reason": "..."}

Transcribe the text lines exactly as printed, preserving case. If the crop is
not a hexagonal marker, set is_hexagon to false and leave the lines empty.`

// Config holds the connection settings for the vision provider.
type Config struct {
	Endpoint    string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Client calls a chat-completions style endpoint with a base64 image payload.
type Client struct {
	cfg    Config
	client *http.Client
}

// NewClient creates a vision client. The API key is required.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("vision provider requires an API key")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Judge submits one PNG crop and returns the provider's judgment. A reply
// that cannot be parsed as JSON is preserved as raw text with a best-effort
// verdict, so the crop is never silently dropped.
func (c *Client) Judge(ctx context.Context, pngData []byte) (marker.Judgment, error) {
	if len(pngData) == 0 {
		return marker.Judgment{}, &provider.Error{Provider: providerName, Err: errors.New("empty image payload")}
	}

	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngData)
	payload := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: markerPrompt},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
			},
		}},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return marker.Judgment{}, &provider.Error{Provider: providerName, Err: fmt.Errorf("marshal request: %w", err)}
	}

	url := strings.TrimRight(c.cfg.Endpoint, "/") + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return marker.Judgment{}, &provider.Error{Provider: providerName, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return marker.Judgment{}, provider.NewTransportError(providerName, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return marker.Judgment{}, provider.NewTransportError(providerName, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return marker.Judgment{}, provider.NewHTTPError(providerName, resp.StatusCode,
			fmt.Errorf("chat request failed: %s", strings.TrimSpace(string(respBody))))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return marker.Judgment{}, &provider.Error{Provider: providerName, Err: fmt.Errorf("parse response: %w", err)}
	}
	if parsed.Error != nil {
		return marker.Judgment{}, &provider.Error{Provider: providerName, Err: errors.New(parsed.Error.Message)}
	}
	if len(parsed.Choices) == 0 {
		return marker.Judgment{}, &provider.Error{Provider: providerName, Err: errors.New("response has no choices")}
	}

	return ParseJudgment(parsed.Choices[0].Message.Content), nil
}

// ParseJudgment extracts the structured verdict from the model's reply. The
// reply may wrap the JSON in prose or code fences, so the outermost braces
// are located first. When no JSON can be recovered the raw text is kept and
// the verdict defaults to true unless the text plainly denies a marker.
func ParseJudgment(content string) marker.Judgment {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		var j struct {
			IsHexagon bool   `json:"is_hexagon"`
			UpperLine string `json:"upper_line"`
			LowerLine string `json:"lower_line"`
			Reason    string `json:"reason"`
		}
		if err := json.Unmarshal([]byte(content[start:end+1]), &j); err == nil {
			return marker.Judgment{
				IsMarker:  j.IsHexagon,
				UpperLine: j.UpperLine,
				LowerLine: j.LowerLine,
				Reason:    j.Reason,
			}
		}
	}

	lower := strings.ToLower(content)
	isMarker := !strings.Contains(lower, "not a hexagon") && !strings.Contains(lower, "no hexagon")
	return marker.Judgment{
		IsMarker: isMarker,
		RawText:  strings.TrimSpace(content),
	}
}
