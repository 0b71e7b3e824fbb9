// Package commands provides the CLI commands for the ftq tool.
package commands

import (
	"errors"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// ErrFindings is returned by check when a file has error findings or
// could not be analyzed. It carries no message of its own.
var ErrFindings = errors.New("error findings reported")

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "ftq",
	Short: "flowtype - flow-sensitive type narrowing for Python",
	Long: `ftq answers flow-sensitive type questions about Python source files.

Commands:
  narrow      Narrowed type of a reference at a line
  reach       Reachability of a line
  dump        Print the flow graph of a file
  check       Report unbound names, unreachable code and reveal_type results
  config      Write or show the configuration

Use "ftq [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
			color.NoColor = true
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.PersistentFlags().String("config", "", "Config file path (default: ~/.ftq/config.yaml then .ftq/config.yaml)")
	RootCmd.PersistentFlags().Bool("verbose", false, "Debug logging on stderr")
	RootCmd.PersistentFlags().Bool("json-logs", false, "Log as JSON lines")
	RootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	RootCmd.AddCommand(narrowCmd)
	RootCmd.AddCommand(reachCmd)
	RootCmd.AddCommand(dumpCmd)
	RootCmd.AddCommand(checkCmd)
	RootCmd.AddCommand(configCmd)
}
