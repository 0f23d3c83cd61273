package marker

import (
	"encoding/json"
	"fmt"
	"os"
)

// WriteJSON marshals v with indentation and writes it to path.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ReadJSON reads path and unmarshals it into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: session-scoped record path
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// MarkersOnly filters results down to those judged to be actual markers,
// preserving order.
func MarkersOnly(results []ValidationResult) []ValidationResult {
	out := make([]ValidationResult, 0, len(results))
	for _, r := range results {
		if r.IsMarker {
			out = append(out, r)
		}
	}
	return out
}
