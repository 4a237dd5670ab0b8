package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"qindex/internal/fixture"
	"qindex/internal/indexing"
	"qindex/internal/store"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Create or update the index tables for the schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, reg, err := rootOpts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			versions, err := store.AppVersions(cmd.Context(), s.DB)
			if err != nil {
				return err
			}
			summary := map[string]any{
				"dialect":      s.Dialect.Name(),
				"qnames":       len(reg.Descriptors()),
				"entity_types": len(reg.Types().Entities()),
				"app_versions": versions,
			}
			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), summary)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s index: %d qualified names, %d entity types\n",
				green("synchronized"), s.Dialect.Name(), len(reg.Descriptors()), len(reg.Types().Entities()))
			return nil
		},
	}
}

// NewSeedCommand creates the seed command, which indexes the bundled sample
// entities or the entities of a YAML file.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Index sample entities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, s, reg, err := rootOpts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			states, err := fixture.Entities()
			if file != "" {
				states, err = readEntities(file)
			}
			if err != nil {
				return err
			}

			written, err := indexing.NewWriter(s, reg, cfg.Index.AppVersion).Index(cmd.Context(), states...)
			if err != nil {
				return err
			}
			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), written)
			}
			for _, st := range written {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", green("indexed"), st.Type, st.Identity)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML document of the form {entities: [...]}")
	return cmd
}

func readEntities(path string) ([]indexing.EntityState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read entities: %w", err)
	}
	return fixture.ParseEntities(data)
}
