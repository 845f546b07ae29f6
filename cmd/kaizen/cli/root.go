package cli

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	envFiles   []string
	appVersion string // set in Execute, reported by /openapi.json
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	return newRootCmd(version, commit, date).Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kaizen",
		Short: "License gate for embedded dashboards",
		Long: `Kaizen validates client licenses, resolves the dashboards each license may open,
and hands browsers a cookie session through an edge service.

Run 'kaizen serve' for both services, or 'kaizen serve auth' and 'kaizen serve edge'
separately. Licenses, clients and reports are managed from this CLI.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./kaizen.yaml)")
	cmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load before reading the environment (default .env)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newLicenseCmd())
	cmd.AddCommand(newClientCmd())
	cmd.AddCommand(newReportCmd())
	cmd.AddCommand(newAuditCmd())
	cmd.AddCommand(newPepperCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))

	return cmd
}
