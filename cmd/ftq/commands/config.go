package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/l3aro/flowtype/internal/config"
)

// configCmd groups the config subcommands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Write or show the configuration",
}

// configInitCmd represents the config init command
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the defaults",
	Long: `Writes the default configuration to .ftq/config.yaml, or to
~/.ftq/config.yaml with --global. With --interactive, asks for the target
interpreter and the analysis limits first.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		global, _ := cmd.Flags().GetBool("global")
		force, _ := cmd.Flags().GetBool("force")
		interactive, _ := cmd.Flags().GetBool("interactive")

		path := config.ProjectConfigFilePath()
		if global {
			path = config.GlobalConfigFilePath()
		}
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
		}

		cfg := config.DefaultConfig()
		if interactive {
			if err := askConfig(cfg); err != nil {
				return err
			}
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := cfg.Save(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

// configShowCmd represents the config show command
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Prints the configuration after merging the global and project config
files and FTQ_* environment variables.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return writeJSON(cmd.OutOrStdout(), cfg)
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshaling YAML: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

// askConfig prompts for the settings most projects change.
func askConfig(cfg *config.Config) error {
	workers := strconv.Itoa(cfg.Workers)
	complexity := strconv.Itoa(cfg.MaxScopeComplexity)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Python version").
				Description("Target interpreter for sys.version_info checks").
				Options(huh.NewOptions("3.8", "3.9", "3.10", "3.11", "3.12", "3.13")...).
				Value(&cfg.PythonVersion),
			huh.NewSelect[string]().
				Title("Python platform").
				Description("Target platform for sys.platform checks").
				Options(huh.NewOptions("linux", "darwin", "win32")...).
				Value(&cfg.PythonPlatform),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Workers").
				Description("Files checked at once").
				Value(&workers).
				Validate(positiveInt),
			huh.NewInput().
				Title("Max scope complexity").
				Description("Scopes above this score are reported as too complex").
				Value(&complexity).
				Validate(positiveInt),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	cfg.Workers, _ = strconv.Atoi(workers)
	cfg.MaxScopeComplexity, _ = strconv.Atoi(complexity)
	return nil
}

func positiveInt(s string) error {
	if n, err := strconv.Atoi(s); err != nil || n < 1 {
		return fmt.Errorf("enter a positive number")
	}
	return nil
}

func init() {
	configInitCmd.Flags().Bool("global", false, "Write ~/.ftq/config.yaml instead of .ftq/config.yaml")
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing config file")
	configInitCmd.Flags().BoolP("interactive", "i", false, "Ask for the main settings")
	configShowCmd.Flags().BoolP("json", "j", false, "Output as JSON")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}
