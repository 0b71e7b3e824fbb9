package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/l3aro/flowtype/internal/config"
	"github.com/l3aro/flowtype/internal/log"
	"github.com/l3aro/flowtype/pkg/checker"
)

// loadConfig reads the file named by --config, or the global and project
// config files, then applies the logging flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		cfg.Verbose = true
	}
	if v, _ := cmd.Flags().GetBool("json-logs"); v {
		cfg.JSONLogs = true
	}
	return cfg, nil
}

// newLogger logs warnings and errors, or everything when verbose.
func newLogger(cfg *config.Config) log.Logger {
	level := log.WarnLevel
	if cfg.Verbose {
		level = log.DebugLevel
	}
	return log.New(log.LoggerConfig{
		Level:      level,
		JSONOutput: cfg.JSONLogs,
		Output:     os.Stderr,
	})
}

// loadUnit reads one Python file and builds its analysis unit.
func loadUnit(cmd *cobra.Command, path string) (*checker.Unit, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	logger := newLogger(cfg)
	u, err := checker.Load(path, src, cfg.BinderOptions(), cfg.EngineOptions(logger)...)
	if err != nil {
		return nil, err
	}
	logger.Debug("loaded file", "path", path, "nodes", u.Graph().Len(), "scopes", len(u.Graph().Scopes()))
	return u, nil
}

// parseLine parses a 1-based line number argument.
func parseLine(s string) (int, error) {
	line, err := strconv.Atoi(s)
	if err != nil || line < 1 {
		return 0, fmt.Errorf("invalid line %q: want a positive number", s)
	}
	return line, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
