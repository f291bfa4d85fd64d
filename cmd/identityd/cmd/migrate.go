package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-identity/migrations"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down|status]",
	Short:     "Manage the identity schema",
	Long:      `Applies pending migrations (up, the default), rolls back the last group (down) or lists migration status.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"up", "down", "status"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateDatabase(); err != nil {
			return err
		}

		direction := "up"
		if len(args) == 1 {
			direction = args[0]
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

		logger := app.GetLogger("migrate")

		switch direction {
		case "up":
			group, err := migrations.Up(ctx, app.db)
			if err != nil {
				return err
			}
			if group == 0 {
				logger.Info("no new migrations to apply")
			} else {
				logger.Info("applied migration group", "group", group)
			}
		case "down":
			group, err := migrations.Down(ctx, app.db)
			if err != nil {
				return err
			}
			if group == 0 {
				logger.Info("no migrations to roll back")
			} else {
				logger.Info("rolled back migration group", "group", group)
			}
		case "status":
			ms, err := migrations.Status(ctx, app.db)
			if err != nil {
				return err
			}
			for _, m := range ms {
				status := "pending"
				if m.GroupID > 0 {
					status = fmt.Sprintf("applied (group %d)", m.GroupID)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", m.Name, status)
			}
		default:
			return fmt.Errorf("unknown migrate direction %q", direction)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
