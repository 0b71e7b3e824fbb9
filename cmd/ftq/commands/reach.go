package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/l3aro/flowtype/pkg/flow"
)

// reachOutput is the JSON form of a reachability result.
type reachOutput struct {
	Line      int    `json:"line"`
	From      int    `json:"from,omitempty"`
	Status    string `json:"status"`
	Reachable bool   `json:"reachable"`
	Aborted   bool   `json:"aborted"`
	Reason    string `json:"reason,omitempty"`
}

// reachCmd represents the reach command
var reachCmd = &cobra.Command{
	Use:   "reach <file> <line>",
	Short: "Show whether a line is reachable",
	Long: `Reports whether the first statement starting on the given line can be
reached, and if not, why: structurally (after return, raise, break or
continue), by a static condition (TYPE_CHECKING, sys.platform,
sys.version_info), or by analysis (after a call that never returns or a test
that can never pass).

With --from, reports whether the line can be reached from the statement
starting on that line.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		line, err := parseLine(args[1])
		if err != nil {
			return err
		}
		from, _ := cmd.Flags().GetInt("from")
		ignoreNoReturn, _ := cmd.Flags().GetBool("ignore-noreturn")

		u, err := loadUnit(cmd, args[0])
		if err != nil {
			return err
		}
		at, err := u.At(line)
		if err != nil {
			return err
		}
		source := flow.NoNode
		if from > 0 {
			if source, err = u.At(from); err != nil {
				return err
			}
		}

		r := u.Session().Reachable(cmd.Context(), at, source, ignoreNoReturn)
		out := reachOutput{
			Line:      line,
			From:      from,
			Status:    string(r.Status),
			Reachable: r.Status.IsReachable(),
			Aborted:   r.Aborted,
			Reason:    string(r.Reason),
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return writeJSON(cmd.OutOrStdout(), out)
		}
		status := color.New(color.FgGreen).Sprint(out.Status)
		if !out.Reachable {
			status = color.New(color.FgYellow).Sprint(out.Status)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "line %d: %s\n", line, status)
		if out.Aborted {
			fmt.Fprintf(cmd.OutOrStdout(), "  (aborted: %s)\n", out.Reason)
		}
		return nil
	},
}

func init() {
	reachCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	reachCmd.Flags().Int("from", 0, "Line of the statement to start from (default: scope entry)")
	reachCmd.Flags().Bool("ignore-noreturn", false, "Treat every call as returning")
}
