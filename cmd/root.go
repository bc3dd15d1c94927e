package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/argus/internal/agent"
	"github.com/nextlevelbuilder/argus/internal/config"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "0.1.0"

var (
	cfgFile    string
	taskText   string
	forceAgent string
	runDoctor  bool
	verbose    bool
	maxRetries int
	autoYes    bool
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "argus",
		Short: "Multi-agent desktop automation: a GUI agent and a code agent behind one router",
		Long: `argus routes a natural-language task to a GUI agent (screenshots, mouse, keyboard)
or a code agent (bash, python, javascript, starlark), falls back to the other
strategy on failure and asks a human when both fail.

Without --task an interactive prompt reads one task at a time.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if runDoctor {
				doctor()
				return nil
			}
			if forceAgent != "" && forceAgent != agent.StrategyGUI && forceAgent != agent.StrategyCode {
				return fmt.Errorf("--force must be %q or %q, got %q", agent.StrategyGUI, agent.StrategyCode, forceAgent)
			}
			return run(cmd.Context(), taskText)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&cfgFile, "config", "", "config file (default ~/.argus/config.json5, env ARGUS_CONFIG)")
	f.BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.Flags().StringVarP(&taskText, "task", "t", "", "task to run; omit for the interactive prompt")
	root.Flags().StringVarP(&forceAgent, "force", "f", "", "force a strategy: gui or code")
	root.Flags().BoolVar(&runDoctor, "doctor", false, "check the environment and exit")
	root.Flags().IntVar(&maxRetries, "max-retries", 0, "human-assisted retry rounds (default from config)")
	root.Flags().BoolVarP(&autoYes, "yes", "y", false, "approve every code execution without asking")

	root.AddCommand(doctorCmd())
	root.AddCommand(configCmd())
	root.AddCommand(secretCmd())
	root.AddCommand(versionCmd())
	return root
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return config.ExpandHome(cfgFile)
	}
	if v := os.Getenv(config.EnvConfigPath); v != "" {
		return config.ExpandHome(v)
	}
	return config.DefaultPath()
}
