package scheduler

import (
	"context"

	obsmetrics "github.com/invoicekits/invoicekits/internal/observability/metrics"
	"go.uber.org/zap"
)

// StaleBatchesJob fails batches a crashed worker left in processing.
func (s *Scheduler) StaleBatchesJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobStaleBatches, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	n, err := s.batchSvc.FailStale(ctx, s.cfg.StaleBatchAfter)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.batch.fail_stale.failed", JobStaleBatches, 0, err)
		return err
	}
	run.AddProcessed(int(n))
	obsmetrics.Scheduler().AddBatchProcessed(JobStaleBatches, "batches", int(n))
	return nil
}

// PendingBatchesJob processes uploaded batches waiting for a worker.
func (s *Scheduler) PendingBatchesJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobPendingBatches, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	n, err := s.batchSvc.ProcessPending(ctx, s.cfg.BatchSize)
	run.AddProcessed(n)
	obsmetrics.Scheduler().AddBatchProcessed(JobPendingBatches, "batches", n)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.batch.process.failed", JobPendingBatches, 0, err,
			zap.Int("processed", n),
		)
		return err
	}
	return nil
}
