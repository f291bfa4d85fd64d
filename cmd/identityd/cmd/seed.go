package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-identity"
)

var (
	seedEmail    string
	seedName     string
	seedUsername string
	seedPassword string
)

var seedDemoCmd = &cobra.Command{
	Use:   "seed-demo",
	Short: "Create the demo identity",
	Long:  `Creates a demo identity whose id is derived from its email. Running it again reports the existing identity.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if seedEmail == "" {
			return fmt.Errorf("--email flag is required")
		}
		if err := cfg.ValidateDatabase(); err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		app, err := newStoreApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		user, created, err := app.provisioner.SeedDemo(ctx, identity.DemoIdentity{
			Email:       seedEmail,
			Username:    seedUsername,
			DisplayName: seedName,
			Password:    seedPassword,
		})
		if err != nil {
			return err
		}

		state := "existing"
		if created {
			state = "created"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s demo identity %s (%s)\n", state, user.Username, user.ID)
		return nil
	},
}

func init() {
	seedDemoCmd.Flags().StringVar(&seedEmail, "email", "", "Demo identity email (required)")
	seedDemoCmd.Flags().StringVar(&seedName, "name", "", "Display name")
	seedDemoCmd.Flags().StringVar(&seedUsername, "username", "", "Preferred username")
	seedDemoCmd.Flags().StringVar(&seedPassword, "password", "", "Password, none when empty")
	rootCmd.AddCommand(seedDemoCmd)
}
