package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/argus/internal/agent"
	"github.com/nextlevelbuilder/argus/internal/config"
)

const keyringService = "argus"

func secretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Store API keys in the OS keychain",
	}
	cmd.AddCommand(secretSetCmd())
	return cmd
}

func secretSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "set {gui|code}",
		Short:     "Save an agent's API key in the keychain and print the config reference",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{agent.StrategyGUI, agent.StrategyCode},
		Run: func(cmd *cobra.Command, args []string) {
			var field string
			switch args[0] {
			case agent.StrategyGUI:
				field = "gui_agent"
			case agent.StrategyCode:
				field = "code_agent"
			default:
				fmt.Fprintf(os.Stderr, "Unknown agent %q (want gui or code)\n", args[0])
				os.Exit(1)
			}

			key, err := promptPassword("API key for "+field, "Stored in the OS keychain, never written to the config file.")
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			if key == "" {
				fmt.Fprintln(os.Stderr, "Empty key, nothing stored.")
				os.Exit(1)
			}
			ref, err := config.StoreSecret(keyringService, field, key)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			fmt.Printf("Stored. Set %s.api_key to:\n  %s\n", field, ref)
		},
	}
}
