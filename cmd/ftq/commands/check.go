package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/l3aro/flowtype/internal/scanner"
	"github.com/l3aro/flowtype/pkg/checker"
)

var severityColors = map[checker.Severity]*color.Color{
	checker.SeverityInfo:    color.New(color.FgCyan),
	checker.SeverityWarning: color.New(color.FgYellow),
	checker.SeverityError:   color.New(color.FgRed, color.Bold),
}

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check [path...]",
	Short: "Report unbound names, unreachable code and reveal_type results",
	Long: `Checks Python files and directories (default: the current directory).
Directories are scanned for .py files, honoring .ftqignore files.

Findings:
  unbound            a name read where it is unbound on every path
  possibly_unbound   a name read where it is unbound on some path
  unreachable        the first statement of unreachable code
  reveal_type        the narrowed type passed to reveal_type()
  too_complex        a scope too complex to analyze
  syntax_error       a file that does not parse

Exits with status 1 when any file has an error finding.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			args = []string{"."}
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("workers") {
			cfg.Workers, _ = cmd.Flags().GetInt("workers")
		}
		if cmd.Flags().Changed("cache-dir") {
			cfg.CacheDir, _ = cmd.Flags().GetString("cache-dir")
		}
		if noCache, _ := cmd.Flags().GetBool("no-cache"); noCache {
			cfg.CacheDir = ""
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		logger := newLogger(cfg)

		scanOpts := scanner.DefaultOptions()
		scanOpts.IncludeStubs, _ = cmd.Flags().GetBool("stubs")
		paths, err := scanner.New(scanOpts).Expand(args)
		if err != nil {
			return fmt.Errorf("collecting files: %w", err)
		}
		logger.Debug("collected files", "count", len(paths))

		c := checker.New(checker.Options{
			Binder:   cfg.BinderOptions(),
			Engine:   cfg.EngineOptions(nil),
			Workers:  cfg.Workers,
			CacheDir: cfg.CacheDir,
			Logger:   logger,
		})
		if err := c.LoadCache(); err != nil {
			logger.Warn("failed to load cache", "dir", cfg.CacheDir, "error", err)
		}

		start := time.Now()
		reports, err := c.CheckFiles(cmd.Context(), paths)
		if err != nil {
			return err
		}
		if err := c.SaveCache(); err != nil {
			logger.Warn("failed to save cache", "dir", cfg.CacheDir, "error", err)
		}
		logger.Debug("check finished", "files", len(reports), "elapsed", time.Since(start).String())

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			if err := writeJSON(cmd.OutOrStdout(), reports); err != nil {
				return err
			}
		} else {
			printReports(cmd.OutOrStdout(), reports)
		}

		if checker.HasErrors(reports) {
			return ErrFindings
		}
		return nil
	},
}

// printReports prints one line per finding and a summary.
func printReports(w io.Writer, reports []*checker.Report) {
	counts := make(map[checker.Severity]int)
	failed, cached := 0, 0
	for _, r := range reports {
		if r.Error != "" {
			failed++
			fmt.Fprintf(w, "%s: %s: %s\n", r.Path, severityColors[checker.SeverityError].Sprint("error"), r.Error)
			continue
		}
		if r.Cached {
			cached++
		}
		for _, f := range r.Findings {
			counts[f.Severity]++
			fmt.Fprintf(w, "%s:%d:%d: %s: %s [%s]\n",
				f.Path, f.Line, f.Col+1, severityColors[f.Severity].Sprint(string(f.Severity)), f.Message, f.Kind)
		}
	}

	fmt.Fprintf(w, "\n%d errors, %d warnings, %d infos in %d files",
		counts[checker.SeverityError], counts[checker.SeverityWarning], counts[checker.SeverityInfo], len(reports))
	if cached > 0 {
		fmt.Fprintf(w, " (%d cached)", cached)
	}
	if failed > 0 {
		fmt.Fprintf(w, ", %d failed", failed)
	}
	fmt.Fprintln(w)
}

func init() {
	checkCmd.Flags().BoolP("json", "j", false, "Output reports as JSON")
	checkCmd.Flags().IntP("workers", "w", 0, "Files analyzed at once (default: config workers)")
	checkCmd.Flags().String("cache-dir", "", "Directory for the hash and findings cache (default: config cache_dir)")
	checkCmd.Flags().Bool("no-cache", false, "Do not read or write the cache")
	checkCmd.Flags().Bool("stubs", false, "Check .pyi stubs found in directories too")
}
