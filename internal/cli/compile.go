package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"qindex/internal/config"
	"qindex/internal/engine"
	"qindex/internal/metadata"
	"qindex/internal/query"
	"qindex/internal/store"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Dialect string
	OrderBy string
	First   int
	Max     int
	Count   bool
}

// NewCompileCommand creates the compile command. It needs no database: the
// registry is built as it would be for a fresh index.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <type> [where]",
		Short: "Print the SQL a query compiles to",
		Long: `Compile a query against the schema and print the statement, its
parameters and their declared types.

Example:
  qindexctl compile Person 'yearOfBirth > 1973 and "food" in tags' --order name`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			search := engine.Search{Type: args[0], OrderBy: opts.OrderBy, First: opts.First, Max: opts.Max, Count: opts.Count}
			if len(args) == 2 {
				search.Where = args[1]
			}
			return runCompile(cmd, opts, search)
		},
	}

	cmd.Flags().StringVarP(&opts.Dialect, "dialect", "d", "postgres", "SQL dialect (postgres|sqlite)")
	cmd.Flags().StringVarP(&opts.OrderBy, "order", "o", "", "ordering, e.g. 'name desc, yearOfBirth'")
	cmd.Flags().IntVar(&opts.First, "first", 0, "index of the first result")
	cmd.Flags().IntVar(&opts.Max, "max", 0, "maximum number of results (0 = unbounded)")
	cmd.Flags().BoolVar(&opts.Count, "count", false, "compile a count query")

	return cmd
}

func runCompile(cmd *cobra.Command, opts *CompileOptions, search engine.Search) error {
	if opts.Dialect != "postgres" && opts.Dialect != "sqlite" {
		return fmt.Errorf("invalid dialect %q: must be postgres or sqlite", opts.Dialect)
	}

	var cfg *config.Config
	if opts.Config != "" {
		var err error
		if cfg, err = config.Load(opts.Config); err != nil {
			return err
		}
	}
	schema, err := opts.loadSchema(cfg)
	if err != nil {
		return err
	}
	buildOpts := metadata.BuildOptions{}
	if cfg != nil {
		buildOpts.TablePrefix = cfg.Index.TablePrefix
	}
	reg, err := metadata.Build(schema, metadata.Snapshot{}, buildOpts)
	if err != nil {
		return err
	}

	req, err := search.Request(reg)
	if err != nil {
		return err
	}
	compiled, err := query.NewCompiler(reg, store.NewDialect(opts.Dialect)).Compile(req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		return writeJSON(out, compiled)
	}
	fmt.Fprintln(out, compiled.SQL)
	if len(compiled.Params) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, bold("Parameters:"))
	for i, p := range compiled.Params {
		fmt.Fprintf(out, "  %s %-8s %v\n", yellow(fmt.Sprintf("$%d", i+1)), compiled.ParamTypes[i], formatParam(p))
	}
	return nil
}

func formatParam(v any) string {
	if s, ok := v.(string); ok {
		return "'" + strings.ReplaceAll(s, "'", "''") + "'"
	}
	return fmt.Sprint(v)
}
