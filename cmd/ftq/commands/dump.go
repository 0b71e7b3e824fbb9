package commands

import (
	"bufio"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/l3aro/flowtype/pkg/engine"
)

// dumpCmd represents the dump command
var dumpCmd = &cobra.Command{
	Use:   "dump <file>",
	Short: "Print the flow graph of a file",
	Long: `Prints the flow graph reachable backward from a node: the end of the module
by default, or the statement starting on --line.

Formats:
  text      one node per line with its antecedents (default)
  json      snapshot as JSON
  msgpack   snapshot as msgpack, for tooling`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		line, _ := cmd.Flags().GetInt("line")
		formatName, _ := cmd.Flags().GetString("format")
		reach, _ := cmd.Flags().GetBool("reach")

		format, err := engine.ParseFormat(formatName)
		if err != nil {
			return err
		}

		u, err := loadUnit(cmd, args[0])
		if err != nil {
			return err
		}
		// At resolves lines past the last statement to the end of the module.
		if line < 1 {
			line = u.Module.Span().EndLine + 1
		}
		root, err := u.At(line)
		if err != nil {
			return err
		}

		w := bufio.NewWriter(cmd.OutOrStdout())
		err = u.Session().Dump(cmd.Context(), w, root, engine.DumpOptions{
			Format:       format,
			Color:        format == engine.FormatText && !color.NoColor,
			Reachability: reach,
		})
		if err != nil {
			return err
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("writing dump: %w", err)
		}
		return nil
	},
}

func init() {
	dumpCmd.Flags().Int("line", 0, "Dump from the statement starting on this line")
	dumpCmd.Flags().StringP("format", "f", "text", "Output format (text, json, msgpack)")
	dumpCmd.Flags().Bool("reach", false, "Annotate every node with its reachability")
}
