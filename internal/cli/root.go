package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"qindex/internal/config"
	"qindex/internal/fixture"
	"qindex/internal/metadata"
	"qindex/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Config string // path to app.yaml; empty searches the default locations
	Format string // "json" | "text"
	Schema string // schema file overriding the configured one
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// NewRootCommand creates the root command for the qindexctl CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "qindexctl",
		Short: "Manage and query a relational entity index",
		Long: `qindexctl compiles queries against the qualified name registry,
synchronizes the index schema and inspects the index database.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "config file (default ./app.yaml)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Schema, "schema", "", "schema file (default: configured schema or bundled sample)")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))

	return cmd
}

// loadSchema resolves the schema from the flag, then the config, then the
// bundled sample.
func (o *RootOptions) loadSchema(cfg *config.Config) (*metadata.Schema, error) {
	path := o.Schema
	if path == "" && cfg != nil {
		path = cfg.Schema.Path
	}
	if path == "" {
		return fixture.Schema()
	}
	return metadata.LoadSchemaFile(path)
}

// open loads the config, connects and synchronizes the index schema.
func (o *RootOptions) open(ctx context.Context) (*config.Config, *store.Store, *metadata.Registry, error) {
	cfg, err := config.Load(o.Config)
	if err != nil {
		return nil, nil, nil, err
	}
	schema, err := o.loadSchema(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	s, err := store.New(ctx, cfg.Database)
	if err != nil {
		return nil, nil, nil, err
	}
	reg, err := store.NewMigrator(s).Sync(ctx, schema, syncOptions(cfg))
	if err != nil {
		s.Close()
		return nil, nil, nil, err
	}
	return cfg, s, reg, nil
}

func syncOptions(cfg *config.Config) store.SyncOptions {
	return store.SyncOptions{Prefix: cfg.Index.TablePrefix, AppVersion: cfg.Index.AppVersion}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
