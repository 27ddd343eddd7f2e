// Command wf2wf converts workflows between Snakemake, DAGMan, Nextflow, CWL,
// WDL, Galaxy and BCO through a shared intermediate representation, tracking
// anything a target format cannot express in a loss side-car.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/csmcal/wf2wf/pkg/environ"
	"github.com/csmcal/wf2wf/pkg/exporters"
	"github.com/csmcal/wf2wf/pkg/importers"
	"github.com/csmcal/wf2wf/pkg/loss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

// Exit codes.
const (
	exitOK         = 0
	exitValidation = 1
	exitUsage      = 2
	exitExternal   = 3
)

func main() {
	loss.Version = version
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps error kinds onto the documented exit codes.
func exitCodeFor(err error) int {
	var usageErr *usageError
	if errors.As(err, &usageErr) {
		return exitUsage
	}
	var toolErr *environ.ExternalToolError
	if errors.As(err, &toolErr) {
		return exitExternal
	}
	var impErr *importers.ImportError
	var expErr *exporters.ExportError
	if errors.As(err, &impErr) || errors.As(err, &expErr) {
		return exitValidation
	}
	return exitValidation
}

// usageError marks bad CLI input (exit code 2).
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func newRootCmd() *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:           "wf2wf",
		Short:         "Convert workflows between formats via a shared IR",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newConvertCmd(&verbose))
	root.AddCommand(newValidateCmd(&verbose))
	root.AddCommand(newInfoCmd())
	root.AddCommand(newBCOCmd())
	return root
}

// newLogger builds the process logger: nop unless verbose.
func newLogger(verbose bool) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	cfg := zap.NewDevelopmentConfig()
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}
