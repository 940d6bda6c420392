package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/caffeineduck/plbridge/catalog"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage function catalogs",
	Long: `Inspect a catalog, or maintain the local SQLite store.

import and drop need --store; list and show work with any catalog.`,
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Load a YAML catalog into the store",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogImport,
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog functions",
	Args:  cobra.NoArgs,
	RunE:  runCatalogList,
}

var catalogShowCmd = &cobra.Command{
	Use:   "show <function>",
	Short: "Print a function definition as YAML",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogShow,
}

var catalogDropCmd = &cobra.Command{
	Use:   "drop <function>",
	Short: "Remove a function from the store",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogDrop,
}

func init() {
	catalogCmd.AddCommand(catalogImportCmd, catalogListCmd, catalogShowCmd, catalogDropCmd)
	rootCmd.AddCommand(catalogCmd)
}

func openStore(cmd *cobra.Command) (*app, *catalog.Store, error) {
	a, err := newApp(cmd)
	if err != nil {
		return nil, nil, err
	}
	st, ok := a.catalog.(*catalog.Store)
	if !ok {
		a.Close()
		return nil, nil, errors.New("this command needs a catalog store: use --store")
	}
	return a, st, nil
}

func runCatalogImport(cmd *cobra.Command, args []string) error {
	a, st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return errors.Wrap(err, "read catalog file")
	}
	funcs, err := catalog.ParseFile(data)
	if err != nil {
		return errors.Wrapf(err, "%s", args[0])
	}
	for _, fn := range funcs {
		if err := st.Define(cmd.Context(), fn); err != nil {
			return err
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d functions\n", len(funcs))
	return nil
}

func runCatalogList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return listFunctions(cmd.Context(), cmd.OutOrStdout(), a.catalog)
}

func listFunctions(ctx context.Context, w io.Writer, cat catalog.Catalog) error {
	l, ok := cat.(catalog.Lister)
	if !ok {
		return errors.New("catalog cannot list functions")
	}
	funcs, err := l.List(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OID\tNAME\tARGS\tRETURNS")
	for _, fn := range funcs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", fn.ID, fn.Name, signature(fn.Args), fn.Returns)
	}
	return tw.Flush()
}

func signature(args []catalog.Arg) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		if arg.Name == "" {
			parts[i] = arg.Type.String()
			continue
		}
		parts[i] = arg.Name + " " + arg.Type.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func runCatalogShow(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := catalog.ResolveRef(cmd.Context(), a.catalog, args[0])
	if err != nil {
		return err
	}
	fn, err := a.catalog.Lookup(cmd.Context(), id)
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(fn); err != nil {
		return errors.Wrap(err, "encode function")
	}
	return enc.Close()
}

func runCatalogDrop(cmd *cobra.Command, args []string) error {
	a, st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := catalog.ResolveRef(cmd.Context(), st, args[0])
	if err != nil {
		return err
	}
	if err := st.Drop(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "dropped function oid %d\n", id)
	return nil
}
