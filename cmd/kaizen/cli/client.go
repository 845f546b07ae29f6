package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kaizenpbi/kaizen/internal/config"
	"github.com/kaizenpbi/kaizen/internal/license"
	"github.com/kaizenpbi/kaizen/internal/model"
	"github.com/kaizenpbi/kaizen/internal/store"
)

func newClientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Manage clients",
		Long:  "Register the tenants whose prefix appears in their license strings.",
	}

	cmd.AddCommand(newClientAddCmd())
	cmd.AddCommand(newClientListCmd())

	return cmd
}

// ---------- client add ----------

func newClientAddCmd() *cobra.Command {
	var prefix, name string

	cmd := &cobra.Command{
		Use:     "add",
		Short:   "Register a client",
		Example: `  kaizen client add --prefix ACME --name "Acme Corp"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := license.NormalizePrefix(prefix)
			if !license.ValidPrefix(p) {
				return fmt.Errorf("invalid prefix %q: want 2 to 6 letters", prefix)
			}
			if name == "" {
				name = p
			}
			return withStore(context.Background(), func(_ *config.Config, st *store.Store) error {
				err := st.CreateClient(context.Background(), &model.Client{Prefix: p, Name: name})
				if errors.Is(err, store.ErrConflict) {
					return fmt.Errorf("client %s already exists", p)
				}
				if err != nil {
					return fmt.Errorf("create client: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Client %s (%s) created.\n", p, name)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "License prefix, 2 to 6 letters (required)")
	cmd.Flags().StringVar(&name, "name", "", "Display name (defaults to the prefix)")
	_ = cmd.MarkFlagRequired("prefix")

	return cmd
}

// ---------- client list ----------

func newClientListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(context.Background(), func(_ *config.Config, st *store.Store) error {
				clients, err := st.ListClients(context.Background())
				if err != nil {
					return fmt.Errorf("list clients: %w", err)
				}
				out := cmd.OutOrStdout()
				if jsonOutput {
					if clients == nil {
						clients = []model.Client{}
					}
					return printJSON(out, clients)
				}
				if len(clients) == 0 {
					fmt.Fprintln(out, "No clients registered. Use 'kaizen client add' to create one.")
					return nil
				}
				fmt.Fprintf(out, "%-8s %-32s %-20s\n", "PREFIX", "NAME", "CREATED")
				fmt.Fprintf(out, "%-8s %-32s %-20s\n", "------", "----", "-------")
				for _, c := range clients {
					fmt.Fprintf(out, "%-8s %-32s %-20s\n", c.Prefix, c.Name, c.CreatedAt.UTC().Format("2006-01-02 15:04"))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
