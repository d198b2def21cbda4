package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bleloop/bleloop/internal/stacksim"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate config and scenario files without running",
	Long: `Parse and validate the configuration file and, when one is named, the
scenario file. Exits non-zero on the first problem found.`,
	RunE: runCheck,
}

var checkScenario string

func init() {
	checkCmd.Flags().StringVarP(&checkScenario, "scenario", "s", "", "YAML scenario file to validate (overrides the config file)")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	path := cfg.Scenario
	if checkScenario != "" {
		path = checkScenario
	}
	if path == "" {
		fmt.Println("Config OK")
		return nil
	}

	sc, err := stacksim.LoadScenario(path)
	if err != nil {
		return err
	}
	fmt.Printf("Config OK; scenario %q: %d steps\n", sc.Name, len(sc.Steps))
	return nil
}
