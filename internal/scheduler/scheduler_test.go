package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/registrar/internal/clock"
	obsmetrics "github.com/smallbiznis/registrar/internal/observability/metrics"
	"github.com/smallbiznis/registrar/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeBatch struct {
	results []int
	err     error
	calls   int
	limits  []int
}

func (f *fakeBatch) run(ctx context.Context, limit int) (int, error) {
	f.calls++
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return 0, f.err
	}
	if len(f.results) == 0 {
		return 0, nil
	}
	n := f.results[0]
	f.results = f.results[1:]
	return n, nil
}

type fakeLocker struct {
	err  error
	keys []string
}

func (l *fakeLocker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	l.keys = append(l.keys, key)
	if l.err != nil {
		return l.err
	}
	return fn(ctx)
}

func newTestScheduler(t *testing.T, cfg Config, jobs ...job) (*Scheduler, *prometheus.Registry) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	return &Scheduler{
		log:     zap.NewNop(),
		cfg:     cfg.withDefaults(),
		genID:   node,
		clock:   clock.NewFakeClock(time.Date(2024, 8, 5, 9, 0, 0, 0, time.UTC)),
		metrics: obsmetrics.NewSchedulerMetrics(registry, obsmetrics.Config{ServiceName: "registrar", Environment: "test"}),
		jobs:    jobs,
	}, registry
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	s, registry := newTestScheduler(t, Config{})

	err := s.runJob(context.Background(), "timeout_job", 0, 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	labels := map[string]string{
		"service": "registrar",
		"env":     "test",
		"job":     "timeout_job",
	}
	if got := getCounterValue(t, registry, "registrar_scheduler_job_timeouts_total", labels); got != 1 {
		t.Fatalf("expected timeout count 1, got %v", got)
	}

	errorLabels := map[string]string{
		"service": "registrar",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	if got := getCounterValue(t, registry, "registrar_scheduler_job_errors_total", errorLabels); got != 1 {
		t.Fatalf("expected error count 1, got %v", got)
	}
}

func TestRunOnceDrainsUntilShortBatch(t *testing.T) {
	expire := &fakeBatch{results: []int{10, 10, 3}}
	s, registry := newTestScheduler(t, Config{BatchSize: 10},
		job{JobExpirePaymentReferences, obsmetrics.LockResourcePaymentTransaction, expire.run},
	)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 3, expire.calls)
	assert.Equal(t, []int{10, 10, 10}, expire.limits)

	labels := map[string]string{
		"service":  "registrar",
		"env":      "test",
		"job":      JobExpirePaymentReferences,
		"resource": obsmetrics.LockResourcePaymentTransaction,
	}
	assert.Equal(t, float64(23), getCounterValue(t, registry, "registrar_scheduler_batch_processed_total", labels))
}

func TestRunOnceHonorsEnabledJobs(t *testing.T) {
	drain := &fakeBatch{}
	settle := &fakeBatch{}
	s, _ := newTestScheduler(t, Config{EnabledJobs: []string{"DRAIN_OUTBOX"}},
		job{JobDrainOutbox, "outbox_event", drain.run},
		job{JobProcessSettlements, obsmetrics.LockResourceSettlementBatch, settle.run},
	)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 1, drain.calls)
	assert.Zero(t, settle.calls)
}

func TestRunOnceJoinsJobErrors(t *testing.T) {
	boom := errors.New("boom")
	failing := &fakeBatch{err: boom}
	healthy := &fakeBatch{results: []int{1}}
	s, _ := newTestScheduler(t, Config{},
		job{JobProcessSettlements, obsmetrics.LockResourceSettlementBatch, failing.run},
		job{JobOpenEnrollmentWindow, "enrollment", healthy.run},
	)

	err := s.RunOnce(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), JobProcessSettlements)
	assert.Equal(t, 1, healthy.calls)
}

func TestLockHeldDefersJob(t *testing.T) {
	expire := &fakeBatch{results: []int{5}}
	s, registry := newTestScheduler(t, Config{},
		job{JobExpirePaymentReferences, obsmetrics.LockResourcePaymentTransaction, expire.run},
	)
	locker := &fakeLocker{err: ratelimit.ErrLockHeld}
	s.locker = locker

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Zero(t, expire.calls)
	assert.Equal(t, []string{"registrar:scheduler:" + JobExpirePaymentReferences}, locker.keys)

	labels := map[string]string{
		"service": "registrar",
		"env":     "test",
		"job":     JobExpirePaymentReferences,
		"reason":  obsmetrics.SchedulerBatchDeferredReasonLockHeld,
	}
	assert.Equal(t, float64(1), getCounterValue(t, registry, "registrar_scheduler_batch_deferred_total", labels))
}

func TestNilRedisLockerRunsUnguarded(t *testing.T) {
	expire := &fakeBatch{results: []int{2}}
	s, _ := newTestScheduler(t, Config{},
		job{JobExpirePaymentReferences, obsmetrics.LockResourcePaymentTransaction, expire.run},
	)
	var locker *ratelimit.Locker
	s.locker = locker

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 1, expire.calls)
}

func TestProvideConfigAppliesDefaults(t *testing.T) {
	cfg := Config{EnabledJobs: []string{JobDrainOutbox}}.withDefaults()
	assert.Equal(t, time.Minute, cfg.RunInterval)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 2*time.Minute, cfg.LockTTL)
	assert.Equal(t, []string{JobDrainOutbox}, cfg.EnabledJobs)
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
