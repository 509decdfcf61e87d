package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	keyPaymentCreateStudent = "payment:create:student:%s"
	keyPaymentCreateSOA     = "payment:create:soa:%s"
	keySchedulerJob         = "scheduler:job:%s"

	paymentCreateRate  = 0.2
	paymentCreateBurst = 5
	paymentSOALockTTL  = 30 * time.Second
)

// PaymentLimiter throttles payment creation per student and serializes
// creation per statement so reference reuse cannot race.
type PaymentLimiter struct {
	bucket *TokenBucket
	locker *Locker
}

func NewPaymentLimiter(client *redis.Client) *PaymentLimiter {
	if client == nil {
		return nil
	}
	return &PaymentLimiter{
		bucket: NewTokenBucket(client),
		locker: NewLocker(client),
	}
}

func (l *PaymentLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *PaymentLimiter) AllowStudent(ctx context.Context, studentID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyPaymentCreateStudent, strings.TrimSpace(studentID))
	return l.bucket.Allow(ctx, key, paymentCreateRate, paymentCreateBurst)
}

// WithStatementLock runs fn holding the per-statement creation lock.
func (l *PaymentLimiter) WithStatementLock(ctx context.Context, soaID string, fn func(context.Context) error) error {
	if !l.Enabled() {
		return fn(ctx)
	}
	key := fmt.Sprintf(keyPaymentCreateSOA, strings.TrimSpace(soaID))
	return l.locker.WithLock(ctx, key, paymentSOALockTTL, fn)
}

// SchedulerJobKey names the lock a worker holds while running job.
func SchedulerJobKey(job string) string {
	return fmt.Sprintf(keySchedulerJob, strings.TrimSpace(job))
}
