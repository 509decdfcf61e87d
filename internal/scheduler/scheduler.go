package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/registrar/internal/clock"
	enrollmentservice "github.com/smallbiznis/registrar/internal/enrollment/service"
	"github.com/smallbiznis/registrar/internal/events"
	obsmetrics "github.com/smallbiznis/registrar/internal/observability/metrics"
	paymentservice "github.com/smallbiznis/registrar/internal/payment/service"
	"github.com/smallbiznis/registrar/internal/ratelimit"
	settlementservice "github.com/smallbiznis/registrar/internal/settlement/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const actorScheduler = "scheduler"

const (
	JobExpirePaymentReferences = "expire_payment_references"
	JobDrainOutbox             = "drain_outbox"
	JobProcessSettlements      = "process_settlements"
	JobOpenEnrollmentWindow    = "open_enrollment_window"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

// BatchFunc handles up to limit items and reports how many it processed.
type BatchFunc func(ctx context.Context, limit int) (int, error)

type Params struct {
	fx.In

	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Config        Config `optional:"true"`
	PaymentSvc    *paymentservice.Service
	Dispatcher    *events.Dispatcher
	SettlementSvc *settlementservice.Service
	EnrollmentSvc *enrollmentservice.Service
	Locker        *ratelimit.Locker `optional:"true"`
}

type job struct {
	name     string
	resource string
	run      BatchFunc
}

type Scheduler struct {
	log     *zap.Logger
	cfg     Config
	genID   *snowflake.Node
	clock   clock.Clock
	locker  JobLocker
	metrics *obsmetrics.SchedulerMetrics
	jobs    []job
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.PaymentSvc == nil || p.Dispatcher == nil || p.SettlementSvc == nil || p.EnrollmentSvc == nil {
		return nil, ErrInvalidConfig
	}
	s := &Scheduler{
		log:     p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     p.Config.withDefaults(),
		genID:   p.GenID,
		clock:   p.Clock,
		metrics: obsmetrics.Scheduler(),
		jobs: []job{
			{JobExpirePaymentReferences, obsmetrics.LockResourcePaymentTransaction, p.PaymentSvc.ExpireReferences},
			{JobDrainOutbox, "outbox_event", p.Dispatcher.DispatchPending},
			{JobProcessSettlements, obsmetrics.LockResourceSettlementBatch, p.SettlementSvc.ProcessPending},
			{JobOpenEnrollmentWindow, "enrollment", p.EnrollmentSvc.OpenEnrollmentWindow},
		},
	}
	if p.Locker != nil {
		s.locker = p.Locker
	}
	return s, nil
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
	s.metrics.IncJobRun(name)

	err := fn(ctx)
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// deadline is a soft timeout; the next tick resumes the work
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		s.metrics.IncJobTimeout(name)
	}
	s.metrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every enabled job once, each under its own lock and timeout.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	for _, j := range s.jobs {
		if !s.isJobEnabled(j.name) {
			continue
		}
		j := j
		err = errors.Join(err, s.runJob(parent, j.name, s.cfg.BatchSize, s.cfg.JobTimeout, func(ctx context.Context) error {
			return s.withJobLock(ctx, j.name, func(ctx context.Context) error {
				return s.drain(ctx, j)
			})
		}))
	}
	return err
}

// drain calls the job's batch function until a batch comes back short.
func (s *Scheduler) drain(ctx context.Context, j job) error {
	run := jobRunFromContext(ctx)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		processed, err := j.run(ctx, s.cfg.BatchSize)
		run.AddProcessed(processed)
		s.metrics.AddBatchProcessed(j.name, j.resource, processed)
		if err != nil {
			s.logSchedulerError(ctx, run, "scheduler.batch.failed", err,
				zap.String("resource", j.resource),
			)
			return err
		}
		if processed < s.cfg.BatchSize {
			return nil
		}
	}
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)

	for {
		runLag := s.clock.Now().Sub(nextRun)
		if runLag > 0 {
			s.metrics.ObserveRunLoopLag(runLag)
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
	// empty means every job runs (monolith mode)
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
