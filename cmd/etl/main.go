// Command etl runs the job-posting pipeline, or one of its stages, from the
// command line.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"jobs-etl/internal/config"
	"jobs-etl/internal/pkg/logging"

	"github.com/spf13/cobra"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
	// exitPartial means the run finished but some records failed to load.
	exitPartial = 3
)

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(exitFailure)
	}
	os.Exit(exitOK)
}

type rootOptions struct {
	logLevel string
}

func newRootCmd() *cobra.Command {
	var opts rootOptions

	cmd := &cobra.Command{
		Use:           "etl",
		Short:         "Extract, transform and load job postings into Postgres",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (default: LOG_LEVEL or info)")

	cmd.AddCommand(
		newRunCmd(&opts),
		newSchemaCmd(&opts),
		newExtractCmd(&opts),
		newTransformCmd(&opts),
		newLoadCmd(&opts),
		newTokenCmd(&opts),
	)
	return cmd
}

func (o *rootOptions) logger(cfg config.Config) *logging.Logger {
	level := cfg.App.LogLevel
	if o.logLevel != "" {
		level = o.logLevel
	}
	return logging.New(level)
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func stagingPath(dir, name string) string {
	return filepath.Join(dir, name)
}
