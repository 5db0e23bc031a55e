package main

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/invoicekits/invoicekits/internal/clock"
	"github.com/invoicekits/invoicekits/internal/config"
	"github.com/invoicekits/invoicekits/internal/observability"
	"github.com/invoicekits/invoicekits/pkg/db"
	"go.uber.org/fx"
)

// core is the infrastructure every subcommand needs.
func core() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
	)
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}

// runOnce starts an fx app built from opts, calls fn and stops the app.
// Targets passed through fx.Populate in opts are filled before fn runs.
func runOnce(ctx context.Context, fn func(context.Context) error, opts ...fx.Option) error {
	app := fx.New(append([]fx.Option{core(), fx.NopLogger}, opts...)...)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	runErr := fn(ctx)

	stopCtx, cancelStop := context.WithTimeout(context.WithoutCancel(ctx), app.StopTimeout())
	defer cancelStop()
	return errors.Join(runErr, app.Stop(stopCtx))
}
