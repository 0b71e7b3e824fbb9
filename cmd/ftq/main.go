// Package main implements the flowtype query CLI (ftq).
// It answers flow-sensitive narrowing and reachability questions about
// Python files and reports findings for whole directories.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/l3aro/flowtype/cmd/ftq/commands"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	commands.RootCmd.Version = version
	commands.RootCmd.SetVersionTemplate(`ftq version {{.Version}}
`)

	err := commands.RootCmd.ExecuteContext(ctx)
	if err == nil {
		return
	}
	if errors.Is(err, commands.ErrFindings) {
		stop()
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	stop()
	os.Exit(2)
}
