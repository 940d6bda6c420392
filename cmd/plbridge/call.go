package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/plbridge/bridge"
	"github.com/caffeineduck/plbridge/catalog"
)

var callCmd = &cobra.Command{
	Use:   "call <function> [args...]",
	Short: "Call a function and print its result",
	Long: `Call a catalog function by name or oid and print the value it returns.

Arguments are read as the function's declared parameter types. The word NULL
passes a null for integer and boolean parameters. A NULL result prints as
null.

  plbridge call --catalog funcs.yaml double_it 21
  plbridge call --store plbridge.db greet "O'Brien"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCall,
}

var assembleCmd = &cobra.Command{
	Use:   "assemble <function> [args...]",
	Short: "Print the program a call would run",
	Long: `Print the program that calling the function with the given arguments
would hand to the interpreter, without running it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAssemble,
}

func init() {
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(assembleCmd)
}

// buildCall resolves ref and parses raw against the function's signature.
func buildCall(ctx context.Context, cat catalog.Catalog, ref string, raw []string) (bridge.Call, error) {
	id, err := catalog.ResolveRef(ctx, cat, ref)
	if err != nil {
		return bridge.Call{}, err
	}
	fn, err := cat.Lookup(ctx, id)
	if err != nil {
		return bridge.Call{}, err
	}
	vals, err := parseArgs(fn, raw)
	if err != nil {
		return bridge.Call{}, err
	}
	return bridge.Call{Func: id, Args: vals}, nil
}

func runCall(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.withHandler(cmd.Context()); err != nil {
		return err
	}

	call, err := buildCall(cmd.Context(), a.catalog, args[0], args[1:])
	if err != nil {
		return err
	}
	v, err := a.handler.Call(cmd.Context(), call)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), v.String())
	return nil
}

func runAssemble(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.withHandler(cmd.Context()); err != nil {
		return err
	}

	call, err := buildCall(cmd.Context(), a.catalog, args[0], args[1:])
	if err != nil {
		return err
	}
	prog, err := a.handler.Prepare(cmd.Context(), call)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), prog.String())
	return nil
}
