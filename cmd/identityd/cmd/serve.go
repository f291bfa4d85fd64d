package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	"github.com/spf13/cobra"

	"github.com/goliatone/go-identity/migrations"
)

var autoMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the identity HTTP server",
	Long:  `Starts the HTTP server with the login, session, account, secret and federation routes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		app, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		logger := app.GetLogger("serve")

		if autoMigrate {
			group, err := migrations.Up(ctx, app.db)
			if err != nil {
				return err
			}
			logger.Info("migrations applied", "group", group)
		}

		srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
			return router.DefaultFiberOptions(fiber.New(fiber.Config{
				UnescapePath:          true,
				StrictRouting:         false,
				DisableStartupMessage: !cfg.Debug,
			}))
		})
		srv.Router().WithLogger(app.GetLogger("router"))

		app.RegisterRoutes(srv.Router())

		serveErr := make(chan error, 1)
		go func() {
			logger.Info("listening", "addr", cfg.HTTPAddr)
			serveErr <- srv.Serve(cfg.HTTPAddr)
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		for {
			select {
			case err := <-serveErr:
				if err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
				serveErr = nil
			case sig := <-shutdown:
				logger.Info("shutting down", "signal", sig.String())
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		}
	},
}

func init() {
	serveCmd.Flags().BoolVar(&autoMigrate, "migrate", false, "Apply pending migrations before serving")
	rootCmd.AddCommand(serveCmd)
}
