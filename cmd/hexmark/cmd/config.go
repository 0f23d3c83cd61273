package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/drawscan/hexmark/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and generate configuration",
}

// configInitCmd writes a commented sample configuration file.
var configInitCmd = &cobra.Command{
	Use:          "init [path]",
	Short:        "Write a sample configuration file with all defaults",
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		if err := config.WriteSampleConfig(path); err != nil {
			return err
		}
		if path == "" {
			path = config.ConfigFileName + ".yaml"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

// configShowCmd prints the resolved configuration.
var configShowCmd = &cobra.Command{
	Use:          "show",
	Short:        "Print the resolved configuration",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := GetConfig()
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		if used := GetConfigLoader().GetConfigFileUsed(); used != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "# loaded from %s\n", used)
		}
		fmt.Fprint(cmd.OutOrStdout(), string(data))
		return nil
	},
}

// configPathsCmd lists the configuration search paths.
var configPathsCmd = &cobra.Command{
	Use:          "paths",
	Short:        "List configuration file search paths",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		for _, p := range config.GetConfigSearchPaths() {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathsCmd)
}
