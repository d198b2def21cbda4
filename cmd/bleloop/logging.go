package main

import (
	"github.com/spf13/cobra"

	"github.com/bleloop/bleloop/pkg/config"
)

// loadConfig resolves the effective configuration: the optional YAML
// file named by --config, with --log-level and --log-format taking
// precedence over the file. Returns a validated config or an error the
// user can act on.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	// Flags win over file values
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.Log.Format = format
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
