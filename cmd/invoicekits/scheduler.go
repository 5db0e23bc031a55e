package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/invoicekits/invoicekits/internal/scheduler"
	"github.com/invoicekits/invoicekits/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the background jobs without the HTTP API",
	Long: `Run the invoice and batch jobs: mark_overdue, late_fees,
payment_reminders, stale_batches and pending_batches.

Without --once the jobs repeat every SCHEDULER_INTERVAL until the process is
stopped.`,
	Example: `  # Run every job forever
  invoicekits scheduler

  # Run a single pass of two jobs, e.g. from cron
  invoicekits scheduler --once --jobs mark_overdue,late_fees`,
	Args: cobra.NoArgs,
	RunE: runScheduler,
}

func init() {
	rootCmd.AddCommand(schedulerCmd)

	schedulerCmd.Flags().Bool("once", false, "run each enabled job once and exit")
	schedulerCmd.Flags().StringSlice("jobs", nil, "comma separated jobs to run (default all)")
}

func runScheduler(cmd *cobra.Command, args []string) error {
	once, _ := cmd.Flags().GetBool("once")
	jobs, _ := cmd.Flags().GetStringSlice("jobs")

	enabled := make([]string, 0, len(jobs))
	for _, job := range jobs {
		if job = strings.TrimSpace(job); job != "" {
			enabled = append(enabled, job)
		}
	}

	schedulerOpts := fx.Options(
		server.Services,
		fx.Provide(scheduler.ProvideConfig),
		fx.Decorate(func(cfg scheduler.Config) scheduler.Config {
			cfg.EnabledJobs = enabled
			return cfg
		}),
		fx.Provide(scheduler.New),
	)

	if once {
		var sched *scheduler.Scheduler
		return runOnce(cmd.Context(), func(ctx context.Context) error {
			if err := sched.RunOnce(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "scheduler pass finished")
			return nil
		}, schedulerOpts, fx.Populate(&sched))
	}

	app := fx.New(
		core(),
		schedulerOpts,
		fx.Invoke(StartScheduler),
	)
	app.Run()
	return app.Err()
}

func StartScheduler(lc fx.Lifecycle, s *scheduler.Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
