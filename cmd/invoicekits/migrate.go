package main

import (
	"context"
	"fmt"

	"github.com/invoicekits/invoicekits/internal/config"
	"github.com/invoicekits/invoicekits/internal/migration"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Apply database migrations. Postgres uses the embedded SQL migrations; other
dialects are migrated from the models.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			conn *gorm.DB
			cfg  config.Config
		)
		return runOnce(cmd.Context(), func(ctx context.Context) error {
			if cfg.DBType != "postgres" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s schema migrated\n", cfg.DBType)
				return nil
			}
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			version, dirty, err := migration.Version(sqlDB)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d (dirty=%t)\n", version, dirty)
			return nil
		}, migration.Module, fx.Populate(&conn, &cfg))
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
