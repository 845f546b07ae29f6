package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kaizenpbi/kaizen/internal/config"
	"github.com/kaizenpbi/kaizen/internal/license"
	"github.com/kaizenpbi/kaizen/internal/model"
	"github.com/kaizenpbi/kaizen/internal/store"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the login audit log",
	}
	cmd.AddCommand(newAuditTailCmd())
	return cmd
}

// ---------- audit tail ----------

func newAuditTailCmd() *cobra.Command {
	var (
		prefix, outcome, since string
		limit                  int
		jsonOutput             bool
	)

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the most recent login attempts",
		Example: `  kaizen audit tail --prefix ACME --since 24h
  kaizen audit tail --outcome failed --limit 20 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := store.LoginEventFilter{Prefix: license.NormalizePrefix(prefix), Outcome: outcome, Limit: limit}
			switch outcome {
			case "", model.OutcomeSuccess, model.OutcomeFailed, model.OutcomeRateLimited:
			default:
				return fmt.Errorf("invalid --outcome %q", outcome)
			}
			if since != "" {
				d, err := config.ParseDuration(since)
				if err != nil {
					return fmt.Errorf("invalid --since: %w", err)
				}
				f.Since = time.Now().Add(-d)
			}

			return withStore(context.Background(), func(_ *config.Config, st *store.Store) error {
				events, err := st.ListLoginEvents(context.Background(), f)
				if err != nil {
					return fmt.Errorf("list login events: %w", err)
				}
				out := cmd.OutOrStdout()
				if jsonOutput {
					if events == nil {
						events = []model.LoginEvent{}
					}
					return printJSON(out, events)
				}
				if len(events) == 0 {
					fmt.Fprintln(out, "No login events.")
					return nil
				}
				fmt.Fprintf(out, "%-20s %-8s %-13s %-24s %-9s %-18s\n", "TIME", "PREFIX", "OUTCOME", "REASON", "SOURCE", "IP")
				for _, ev := range events {
					fmt.Fprintf(out, "%-20s %-8s %-13s %-24s %-9s %-18s\n",
						ev.CreatedAt.UTC().Format("2006-01-02 15:04:05"), ev.ClientPrefix, ev.Outcome,
						ev.Reason, ev.Source, ev.IPMasked)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "Only events for this client prefix")
	cmd.Flags().StringVar(&outcome, "outcome", "", "Only events with this outcome (success, failed, rate-limited)")
	cmd.Flags().StringVar(&since, "since", "", "Only events newer than this age (e.g. 2h, 7d)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows to show (up to 1000)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
