package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive function calls",
	Long: `Start an interactive session that calls catalog functions.

Each line is a function name or oid followed by its arguments. Quote text
arguments that contain blanks: greet "Mary Ann".

Commands:
  \assemble <function> [args...]   Print the program instead of running it
  \list                             List catalog functions

Type 'exit' or 'quit' to end the session, or press Ctrl+D.`,
	Args: cobra.NoArgs,
	RunE: runRepl,
}

func init() {
	replCmd.Flags().String("history", "", "History file path (default: ~/.plbridge_history)")
	rootCmd.AddCommand(replCmd)
}

func runRepl(cmd *cobra.Command, args []string) error {
	historyFile, _ := cmd.Flags().GetString("history")
	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".plbridge_history")
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.withHandler(cmd.Context()); err != nil {
		return err
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "plbridge> ",
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return errors.Wrap(err, "initialize readline")
	}
	defer rl.Close()

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	fmt.Fprintf(errOut, "plbridge %s REPL (type 'exit' to quit, Ctrl+D to exit)\n", a.handler.Language().Name())

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				fmt.Fprintln(out)
				return nil
			}
			return errors.Wrap(err, "read input")
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}
		if err := a.replLine(cmd, line); err != nil {
			reportError(errOut, err)
		}
		if cmd.Context().Err() != nil {
			return nil
		}
	}
}

func (a *app) replLine(cmd *cobra.Command, line string) error {
	words, err := splitArgs(line)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch words[0] {
	case `\list`:
		return listFunctions(ctx, out, a.catalog)
	case `\assemble`:
		if len(words) < 2 {
			return errors.New(`usage: \assemble <function> [args...]`)
		}
		call, err := buildCall(ctx, a.catalog, words[1], words[2:])
		if err != nil {
			return err
		}
		prog, err := a.handler.Prepare(ctx, call)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, prog.String())
		return nil
	}

	call, err := buildCall(ctx, a.catalog, words[0], words[1:])
	if err != nil {
		return err
	}
	v, err := a.handler.Call(ctx, call)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, v.String())
	return nil
}
