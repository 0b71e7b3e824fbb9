package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/l3aro/flowtype/pkg/flow"
	"github.com/l3aro/flowtype/pkg/pyparse"
	"github.com/l3aro/flowtype/pkg/types"
)

// narrowOutput is the JSON form of a narrowing result.
type narrowOutput struct {
	Expr     string `json:"expr"`
	Line     int    `json:"line"`
	Type     string `json:"type"`
	Complete bool   `json:"complete"`
	Aborted  bool   `json:"aborted"`
	Reason   string `json:"reason,omitempty"`
}

// narrowCmd represents the narrow command
var narrowCmd = &cobra.Command{
	Use:   "narrow <file> <line> <expr>",
	Short: "Show the narrowed type of a reference at a line",
	Long: `Evaluates a reference expression (a name, member access chain or
subscript with a literal index) as if it were written just before the first
statement starting on the given line, and prints its narrowed type.

Example:
  ftq narrow app.py 12 user.profile`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, exprSrc := args[0], args[2]
		line, err := parseLine(args[1])
		if err != nil {
			return err
		}
		expr, err := pyparse.ParseExpr(exprSrc)
		if err != nil {
			return fmt.Errorf("parsing expression: %w", err)
		}
		if _, ok := flow.KeyOf(expr); !ok {
			return fmt.Errorf("%q is not a reference expression (name, member access or literal subscript)", exprSrc)
		}

		u, err := loadUnit(cmd, path)
		if err != nil {
			return err
		}
		at, err := u.At(line)
		if err != nil {
			return err
		}
		r, err := u.Eval.Narrow(cmd.Context(), expr, at)
		if err != nil {
			return err
		}

		t := r.Type
		if t == nil {
			t = types.Unknown
		}
		out := narrowOutput{
			Expr:     exprSrc,
			Line:     line,
			Type:     t.String(),
			Complete: r.Complete,
			Aborted:  r.Aborted,
			Reason:   string(r.Reason),
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return writeJSON(cmd.OutOrStdout(), out)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", out.Expr, out.Type)
		switch {
		case out.Aborted:
			fmt.Fprintf(cmd.OutOrStdout(), "  (aborted: %s)\n", out.Reason)
		case !out.Complete:
			fmt.Fprintln(cmd.OutOrStdout(), "  (incomplete)")
		}
		return nil
	},
}

func init() {
	narrowCmd.Flags().BoolP("json", "j", false, "Output as JSON")
}
