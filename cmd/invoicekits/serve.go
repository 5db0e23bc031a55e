package main

import (
	"github.com/invoicekits/invoicekits/internal/migration"
	"github.com/invoicekits/invoicekits/internal/scheduler"
	"github.com/invoicekits/invoicekits/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API on HTTP_ADDR after applying database migrations.

The background scheduler runs in the same process when SCHEDULER_ENABLED is
true.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := fx.New(
			core(),
			migration.Module,
			server.Module,
			scheduler.Module,
		)
		app.Run()
		return app.Err()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
