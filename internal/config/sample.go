package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const sampleHeader = `# hexmark configuration file.
#
# Every key can also be supplied through the environment using the HEXMARK_
# prefix with dots replaced by underscores, e.g. HEXMARK_DETECT_PREDICTION_KEY.
# Command-line flags take precedence over both.

`

// WriteSampleConfig writes a commented sample configuration file with all
// defaults to the given path. It refuses to overwrite an existing file.
func WriteSampleConfig(path string) error {
	if path == "" {
		path = ConfigFileName + ".yaml"
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshal sample config: %w", err)
	}

	out := append([]byte(sampleHeader), data...)
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("write sample config %s: %w", path, err)
	}
	return nil
}
