package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/caffeineduck/plbridge/executor"
	"github.com/caffeineduck/plbridge/plerr"
)

var rootCmd = &cobra.Command{
	Use:   "plbridge",
	Short: "Run database functions written in Iceberg",
	Long: `plbridge - call functions stored in a database catalog through the
Iceberg interpreter.

Each call looks the function up (PostgreSQL pg_proc, a local SQLite store or a
YAML file), declares its arguments in front of the stored source, runs the
program in a fresh interpreter and decodes the last line it prints.

Every flag can also be set through the environment: --log-level is read from
PLBRIDGE_LOG_LEVEL, --dsn from PLBRIDGE_DSN, and so on.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return applyEnv(cmd.Root().PersistentFlags(), os.LookupEnv)
	},
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		reportError(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.PersistentFlags()
	f.String("catalog", "", "YAML catalog file")
	f.String("store", "", "SQLite catalog store")
	f.String("dsn", "", "PostgreSQL connection string (reads pg_proc)")
	f.String("pg-language", "iceberg", "pg_language name of bridged functions")
	f.String("runtime", "process", "Interpreter runtime: process, wasm")
	f.String("wasm", "", "WASI build of the interpreter (--runtime wasm)")
	f.String("java", "java", "Java binary")
	f.String("jar", "/usr/lib/iceberg/iceberg.jar", "Iceberg compiler jar")
	f.StringSlice("jvm-flag", nil, "Extra JVM flag (repeatable)")
	f.Duration("timeout", executor.DefaultTimeout, "Interpreter timeout per call")
	f.String("tmpdir", "", "Directory for program files (default: system temp)")
	f.Bool("env-args", false, "Also pass arguments as ARG<i> environment variables")
	f.String("log-level", "info", "Log level: debug, info, warn, error")
	f.String("log-format", "console", "Log format: console, json")
}

// envName maps a flag name to its environment variable.
func envName(flag string) string {
	return "PLBRIDGE_" + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

// applyEnv fills flags that were not given on the command line from the
// environment.
func applyEnv(flags *pflag.FlagSet, lookup func(string) (string, bool)) error {
	var firstErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Changed || firstErr != nil {
			return
		}
		v, ok := lookup(envName(f.Name))
		if !ok {
			return
		}
		if err := flags.Set(f.Name, v); err != nil {
			firstErr = errors.Wrap(err, envName(f.Name))
		}
	})
	return firstErr
}

// reportError prints err the way the host engine reports a failed call:
// severity, SQLSTATE and message, then any details.
func reportError(w io.Writer, err error) {
	fmt.Fprintf(w, "ERROR:  %s: %v\n", plerr.SQLState(err), err)
	for _, d := range plerr.Details(err) {
		for _, line := range strings.Split(strings.TrimRight(d, "\n"), "\n") {
			fmt.Fprintf(w, "DETAIL:  %s\n", line)
		}
	}
}
