package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kaizenpbi/kaizen/internal/config"
	"github.com/kaizenpbi/kaizen/internal/license"
	"github.com/kaizenpbi/kaizen/internal/model"
	"github.com/kaizenpbi/kaizen/internal/store"
)

func newLicenseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "license",
		Short: "Issue, revoke and inspect licenses",
		Long: `Licenses are stored only as a peppered hash. The raw license string is shown
once, when it is issued, and cannot be recovered afterwards.`,
	}

	cmd.AddCommand(newLicenseIssueCmd())
	cmd.AddCommand(newLicenseRevokeCmd())
	cmd.AddCommand(newLicenseListCmd())
	cmd.AddCommand(newLicenseCheckCmd())

	return cmd
}

// ---------- license issue ----------

func newLicenseIssueCmd() *cobra.Command {
	var (
		prefix   string
		expires  string
		allowAll bool
		reports  []string
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a new license for a client",
		Example: `  kaizen license issue --prefix ACME --allow-all
  kaizen license issue --prefix ACME --expires 2027-01-31 --report SALES --report FINANCE
  kaizen license issue --prefix ACME --expires 90d`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := license.NormalizePrefix(prefix)
			if !license.ValidPrefix(p) {
				return fmt.Errorf("invalid prefix %q: want 2 to 6 letters", prefix)
			}
			expiresAt, err := parseExpiry(expires, time.Now())
			if err != nil {
				return err
			}
			if allowAll && len(reports) > 0 {
				return errors.New("--allow-all and --report are mutually exclusive")
			}

			return withStore(context.Background(), func(cfg *config.Config, st *store.Store) error {
				ctx := context.Background()
				resolver, err := newResolver(cfg, st)
				if err != nil {
					return err
				}
				if _, err := st.GetClient(ctx, p); err != nil {
					return clientErr(p, err)
				}

				key, err := license.Generate(p)
				if err != nil {
					return err
				}
				lic := &model.License{
					ClientPrefix:    p,
					Hash:            license.Hash(resolver.Pepper(), key),
					ExpiresAt:       expiresAt,
					AllowAllReports: allowAll,
				}
				if err := st.CreateLicense(ctx, lic); err != nil {
					return fmt.Errorf("create license: %w", err)
				}
				if err := grantReports(ctx, st, lic, reports); err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, "License issued. Store it now; it will not be shown again.")
				fmt.Fprintln(out)
				fmt.Fprintf(out, "  License: %s\n", key.String())
				fmt.Fprintf(out, "  ID:      %d\n", lic.ID)
				fmt.Fprintf(out, "  Masked:  %s\n", license.Mask(key))
				if expiresAt != nil {
					fmt.Fprintf(out, "  Expires: %s\n", expiresAt.Format(time.RFC3339))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "Client prefix (required)")
	cmd.Flags().StringVar(&expires, "expires", "", "Expiry: YYYY-MM-DD (end of that day, UTC), RFC 3339, or an age like 90d")
	cmd.Flags().BoolVar(&allowAll, "allow-all", false, "Show every active report of the client")
	cmd.Flags().StringSliceVar(&reports, "report", nil, "Report code to grant (repeatable)")
	_ = cmd.MarkFlagRequired("prefix")

	return cmd
}

// parseExpiry turns the --expires value into an instant. A bare date means
// the license stays valid for the whole of that day, UTC.
func parseExpiry(s string, now time.Time) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if d, err := time.Parse(time.DateOnly, s); err == nil {
		t := d.AddDate(0, 0, 1)
		return &t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		t = t.UTC()
		return &t, nil
	}
	d, err := config.ParseDuration(s)
	if err != nil || d <= 0 {
		return nil, fmt.Errorf("invalid --expires %q: want YYYY-MM-DD, RFC 3339 or a positive age", s)
	}
	t := now.UTC().Add(d)
	return &t, nil
}

// ---------- license revoke ----------

func newLicenseRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke a license",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid license id %q", args[0])
			}
			return withStore(context.Background(), func(_ *config.Config, st *store.Store) error {
				err := st.SetLicenseStatus(context.Background(), id, model.LicenseRevoked)
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("license %d not found", id)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "License %d revoked.\n", id)
				return nil
			})
		},
	}
}

// ---------- license list ----------

func newLicenseListCmd() *cobra.Command {
	var (
		prefix     string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List licenses",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(context.Background(), func(_ *config.Config, st *store.Store) error {
				licenses, err := st.ListLicenses(context.Background(), license.NormalizePrefix(prefix))
				if err != nil {
					return fmt.Errorf("list licenses: %w", err)
				}
				out := cmd.OutOrStdout()
				if jsonOutput {
					if licenses == nil {
						licenses = []model.License{}
					}
					return printJSON(out, licenses)
				}
				if len(licenses) == 0 {
					fmt.Fprintln(out, "No licenses. Use 'kaizen license issue' to create one.")
					return nil
				}
				fmt.Fprintf(out, "%-6s %-8s %-8s %-21s %-10s %-16s\n", "ID", "PREFIX", "STATUS", "EXPIRES", "REPORTS", "LAST USED")
				fmt.Fprintf(out, "%-6s %-8s %-8s %-21s %-10s %-16s\n", "--", "------", "------", "-------", "-------", "---------")
				for _, l := range licenses {
					fmt.Fprintf(out, "%-6d %-8s %-8s %-21s %-10s %-16s\n",
						l.ID, l.ClientPrefix, l.Status, formatTime(l.ExpiresAt, time.RFC3339), reportScope(l), formatTime(l.LastUsedAt, "2006-01-02 15:04"))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "Only licenses of this client")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func formatTime(t *time.Time, layout string) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(layout)
}

func reportScope(l model.License) string {
	if l.AllowAllReports {
		return "all"
	}
	return "granted"
}

// ---------- license check ----------

func newLicenseCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <license>",
		Short: "Resolve a license without recording an attempt",
		Long: `Check canonicalizes and hashes the license with the configured pepper and
reports what a login would answer. Nothing is written to the audit log.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(context.Background(), func(cfg *config.Config, st *store.Store) error {
				resolver, err := newResolver(cfg, st)
				if err != nil {
					return err
				}
				res, err := resolver.Resolve(context.Background(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Status: %s\n", res.Status)
				if res.Prefix != "" {
					fmt.Fprintf(out, "Prefix: %s\n", res.Prefix)
				}
				if res.License != nil {
					fmt.Fprintf(out, "ID:     %d\n", res.License.ID)
					fmt.Fprintf(out, "Expires: %s\n", formatTime(res.License.ExpiresAt, time.RFC3339))
				}
				if res.Status == model.StatusMismatch {
					fmt.Fprintf(out, "Pepper fingerprint: %s\n", license.Fingerprint(resolver.Pepper()))
				}
				return nil
			})
		},
	}
}
