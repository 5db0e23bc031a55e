package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/invoicekits/invoicekits/internal/ratelimit"
	"go.uber.org/zap"
)

const jobLockKey = "scheduler:job:%s"

// errJobLocked marks a job skipped because another scheduler instance holds
// its lock.
var errJobLocked = errors.New("scheduler_job_locked")

// withJobLock runs fn while holding the cluster-wide lock for job. Without
// Redis every instance runs every job; the database updates stay guarded by
// their own WHERE clauses.
func (s *Scheduler) withJobLock(ctx context.Context, job string, ttl time.Duration, fn func(context.Context) error) error {
	release, err := s.locker.Acquire(ctx, fmt.Sprintf(jobLockKey, job), ttl)
	if errors.Is(err, ratelimit.ErrLockHeld) {
		return errJobLocked
	}
	if err != nil {
		return err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger(ctx).Warn("scheduler.lock.release_failed", zap.String("job", job), zap.Error(err))
		}
	}()
	return fn(ctx)
}
