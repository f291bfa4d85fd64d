package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-identity/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "identityd",
	Short: "Identity and secret management service",
	Long: `identityd serves local and federated sign in, session tokens,
account linking and encrypted third-party API secrets.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		applyFlags(cmd, cfg)
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("http-addr", "", "HTTP bind address (env: IDENTITY_HTTP_ADDR)")
	flags.String("db-driver", "", "Database driver, sqlite or postgres (env: IDENTITY_DB_DRIVER)")
	flags.String("db-dsn", "", "Database DSN (env: IDENTITY_DB_DSN)")
	flags.Bool("debug", false, "Enable debug logging and query logs (env: IDENTITY_DEBUG)")
}

// applyFlags overrides environment values with flags set on the command line.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("http-addr") {
		c.HTTPAddr, _ = flags.GetString("http-addr")
	}
	if flags.Changed("db-driver") {
		c.DBDriver, _ = flags.GetString("db-driver")
	}
	if flags.Changed("db-dsn") {
		c.DBDSN, _ = flags.GetString("db-dsn")
	}
	if flags.Changed("debug") {
		c.Debug, _ = flags.GetBool("debug")
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
