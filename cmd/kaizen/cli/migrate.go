package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kaizenpbi/kaizen/internal/config"
	"github.com/kaizenpbi/kaizen/internal/store"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the credential store schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(context.Background(), func(_ *config.Config, st *store.Store) error {
				if err := st.Migrate(); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
				version, _, err := st.SchemaVersion()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Schema is at version %d (%s).\n", version, st.Driver())
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(context.Background(), func(_ *config.Config, st *store.Store) error {
				version, dirty, err := st.SchemaVersion()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				switch {
				case version == 0:
					fmt.Fprintln(out, "No migrations applied. Run 'kaizen migrate up'.")
				case dirty:
					fmt.Fprintf(out, "%d (dirty)\n", version)
				default:
					fmt.Fprintf(out, "%d\n", version)
				}
				return nil
			})
		},
	})

	return cmd
}
