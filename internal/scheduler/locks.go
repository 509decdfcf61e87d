package scheduler

import (
	"context"
	"errors"
	"time"

	obsmetrics "github.com/smallbiznis/registrar/internal/observability/metrics"
	"github.com/smallbiznis/registrar/internal/ratelimit"
	"go.uber.org/zap"
)

const lockKeyPrefix = "registrar:scheduler:"

// JobLocker serializes a job across worker replicas.
type JobLocker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// withJobLock runs fn under the job's lock. A lock held by another replica
// defers the job to the next tick without an error.
func (s *Scheduler) withJobLock(ctx context.Context, job string, fn func(context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	err := s.locker.WithLock(ctx, lockKeyPrefix+job, s.cfg.LockTTL, fn)
	switch {
	case errors.Is(err, ratelimit.ErrLockHeld):
		s.metrics.IncBatchDeferred(job, obsmetrics.SchedulerBatchDeferredReasonLockHeld)
		s.logger(ctx).Debug("scheduler.job.deferred",
			zap.String("job", job),
			zap.String("reason", obsmetrics.SchedulerBatchDeferredReasonLockHeld),
		)
		return nil
	case errors.Is(err, ratelimit.ErrLockNotConfigured):
		return fn(ctx)
	default:
		return err
	}
}
