package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	batchdomain "github.com/invoicekits/invoicekits/internal/batch/domain"
	"github.com/invoicekits/invoicekits/internal/clock"
	companydomain "github.com/invoicekits/invoicekits/internal/company/domain"
	invoicedomain "github.com/invoicekits/invoicekits/internal/invoice/domain"
	obsmetrics "github.com/invoicekits/invoicekits/internal/observability/metrics"
	"github.com/invoicekits/invoicekits/internal/providers/email"
	"github.com/invoicekits/invoicekits/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	JobMarkOverdue      = "mark_overdue"
	JobLateFees         = "late_fees"
	JobPaymentReminders = "payment_reminders"
	JobStaleBatches     = "stale_batches"
	JobPendingBatches   = "pending_batches"
)

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	InvoiceRepo invoicedomain.Repository
	InvoiceSvc  invoicedomain.Service
	CompanyRepo companydomain.Repository
	BatchSvc    batchdomain.Service
	Email       email.Provider      `optional:"true"`
	Locker      *ratelimit.Locker   `optional:"true"`
	Metrics     *obsmetrics.Metrics `optional:"true"`
	Config      Config              `optional:"true"`
}

type Scheduler struct {
	db          *gorm.DB
	log         *zap.Logger
	cfg         Config
	genID       *snowflake.Node
	clock       clock.Clock
	invoiceRepo invoicedomain.Repository
	invoiceSvc  invoicedomain.Service
	companyRepo companydomain.Repository
	batchSvc    batchdomain.Service
	email       email.Provider
	locker      *ratelimit.Locker
	metrics     *obsmetrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.InvoiceRepo == nil || p.InvoiceSvc == nil || p.CompanyRepo == nil || p.BatchSvc == nil {
		return nil, ErrInvalidConfig
	}
	mailer := p.Email
	if mailer == nil {
		mailer = &email.NoOpProvider{}
	}
	return &Scheduler{
		db:          p.DB,
		log:         p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:         p.Config.withDefaults(),
		genID:       p.GenID,
		clock:       p.Clock,
		invoiceRepo: p.InvoiceRepo,
		invoiceSvc:  p.InvoiceSvc,
		companyRepo: p.CompanyRepo,
		batchSvc:    p.BatchSvc,
		email:       mailer,
		locker:      p.Locker,
		metrics:     p.Metrics,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := s.withJobLock(ctx, name, timeout, fn)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if errors.Is(err, errJobLocked) {
		log.Debug("job skipped, lock held elsewhere")
		return nil
	}
	if owner {
		if err != nil && run != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// Deadline is a soft timeout; the next tick picks up the rest.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Timeout time.Duration
		Run     func(context.Context) error
	}{
		{JobMarkOverdue, s.cfg.JobTimeout, s.MarkOverdueJob},
		{JobLateFees, s.cfg.JobTimeout, s.LateFeesJob},
		{JobPaymentReminders, s.cfg.JobTimeout, s.PaymentRemindersJob},
		{JobStaleBatches, s.cfg.JobTimeout, s.StaleBatchesJob},
		{JobPendingBatches, 10 * time.Minute, s.PendingBatchesJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.BatchSize, job.Timeout, job.Run))
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := s.clock.Now().Sub(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}
