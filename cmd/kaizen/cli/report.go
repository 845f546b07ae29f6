package cli

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kaizenpbi/kaizen/internal/config"
	"github.com/kaizenpbi/kaizen/internal/license"
	"github.com/kaizenpbi/kaizen/internal/model"
	"github.com/kaizenpbi/kaizen/internal/store"
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Manage client reports",
		Long:  "Register embedded dashboards and grant them to individual licenses.",
	}

	cmd.AddCommand(newReportAddCmd())
	cmd.AddCommand(newReportGrantCmd())
	cmd.AddCommand(newReportToggleCmd("enable", true))
	cmd.AddCommand(newReportToggleCmd("disable", false))

	return cmd
}

// ---------- report add ----------

func newReportAddCmd() *cobra.Command {
	var (
		prefix, code, name, embedURL string
		isDefault                    bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a report for a client",
		Example: `  kaizen report add --prefix ACME --code HOME --name Home --url https://app.powerbi.com/... --default
  kaizen report add --prefix ACME --code SALES --name Sales --url https://app.powerbi.com/...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := license.NormalizePrefix(prefix)
			if !license.ValidPrefix(p) {
				return fmt.Errorf("invalid prefix %q", prefix)
			}
			code = strings.ToUpper(strings.TrimSpace(code))
			if code == "" {
				return errors.New("--code is required")
			}
			if u, err := url.Parse(embedURL); err != nil || !u.IsAbs() {
				return fmt.Errorf("--url must be an absolute URL")
			}
			if name == "" {
				name = code
			}

			return withStore(context.Background(), func(_ *config.Config, st *store.Store) error {
				ctx := context.Background()
				if _, err := st.GetClient(ctx, p); err != nil {
					return clientErr(p, err)
				}
				r := &model.Report{
					ClientPrefix: p,
					Code:         code,
					Name:         name,
					EmbedURL:     embedURL,
					IsDefault:    isDefault,
					IsActive:     true,
				}
				err := st.CreateReport(ctx, r)
				if errors.Is(err, store.ErrConflict) {
					return fmt.Errorf("report %s/%s already exists", p, code)
				}
				if err != nil {
					return fmt.Errorf("create report: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Report %s/%s created (id %d).\n", p, code, r.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "Client prefix (required)")
	cmd.Flags().StringVar(&code, "code", "", "Report code (required)")
	cmd.Flags().StringVar(&name, "name", "", "Display name (defaults to the code)")
	cmd.Flags().StringVar(&embedURL, "url", "", "Embed URL (required)")
	cmd.Flags().BoolVar(&isDefault, "default", false, "Mark as the client's default report, replacing any current default")
	_ = cmd.MarkFlagRequired("prefix")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("url")

	return cmd
}

// ---------- report grant ----------

func newReportGrantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "grant <license-id> <code>...",
		Short:   "Grant reports to a license",
		Example: `  kaizen report grant 12 SALES FINANCE`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid license id %q", args[0])
			}
			return withStore(context.Background(), func(_ *config.Config, st *store.Store) error {
				ctx := context.Background()
				lic, err := st.GetLicense(ctx, id)
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("license %d not found", id)
				}
				if err != nil {
					return err
				}
				if err := grantReports(ctx, st, lic, args[1:]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Granted %d report(s) to license %d.\n", len(args)-1, id)
				return nil
			})
		},
	}
	return cmd
}

// grantReports links each code of the license's client to the license.
func grantReports(ctx context.Context, st *store.Store, lic *model.License, codes []string) error {
	for _, code := range codes {
		code = strings.ToUpper(strings.TrimSpace(code))
		r, err := st.GetReport(ctx, lic.ClientPrefix, code)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("report %s/%s not found", lic.ClientPrefix, code)
		}
		if err != nil {
			return err
		}
		if err := st.GrantReport(ctx, lic.ID, r.ID); err != nil && !errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("grant %s: %w", code, err)
		}
	}
	return nil
}

// ---------- report enable / disable ----------

func newReportToggleCmd(verb string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <prefix> <code>",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " a report",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := license.NormalizePrefix(args[0])
			code := strings.ToUpper(strings.TrimSpace(args[1]))
			return withStore(context.Background(), func(_ *config.Config, st *store.Store) error {
				err := st.SetReportActive(context.Background(), p, code, active)
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("report %s/%s not found", p, code)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Report %s/%s %sd.\n", p, code, verb)
				return nil
			})
		},
	}
}

func clientErr(prefix string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("client %s not found; create it with 'kaizen client add'", prefix)
	}
	return err
}
