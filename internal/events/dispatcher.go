package events

import (
	"context"
	"errors"

	"github.com/smallbiznis/registrar/internal/clock"
	obsmetrics "github.com/smallbiznis/registrar/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Dispatcher drains unpublished outbox rows to the Publisher.
type Dispatcher struct {
	db        *gorm.DB
	log       *zap.Logger
	publisher Publisher
	clock     clock.Clock
	metrics   *obsmetrics.Metrics
}

type DispatcherParams struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Publisher Publisher
	Clock     clock.Clock
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

func NewDispatcher(p DispatcherParams) *Dispatcher {
	return &Dispatcher{
		db:        p.DB,
		log:       p.Log.Named("events.dispatcher"),
		publisher: p.Publisher,
		clock:     p.Clock,
		metrics:   p.Metrics,
	}
}

// DispatchPending publishes up to limit events in creation order and
// returns how many were delivered. Failed deliveries stay pending.
func (d *Dispatcher) DispatchPending(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}

	var pending []OutboxEvent
	if err := d.db.WithContext(ctx).
		Where("published = ?", false).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&pending).Error; err != nil {
		return 0, err
	}

	var (
		delivered int
		joined    error
	)
	for _, event := range pending {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}

		if err := d.publisher.Publish(ctx, event); err != nil {
			joined = errors.Join(joined, err)
			d.log.Warn("event publish failed",
				zap.String("event_id", event.ID.String()),
				zap.String("event_type", event.EventType),
				zap.Error(err),
			)
			if updErr := d.db.WithContext(ctx).Model(&OutboxEvent{}).
				Where("id = ?", event.ID).
				Updates(map[string]any{
					"attempts":   gorm.Expr("attempts + 1"),
					"last_error": err.Error(),
				}).Error; updErr != nil {
				joined = errors.Join(joined, updErr)
			}
			continue
		}

		now := d.clock.Now()
		if err := d.db.WithContext(ctx).Model(&OutboxEvent{}).
			Where("id = ?", event.ID).
			Updates(map[string]any{
				"published":    true,
				"published_at": now,
			}).Error; err != nil {
			joined = errors.Join(joined, err)
			continue
		}
		delivered++
		d.metrics.RecordEventPublished(ctx, event.EventType)
	}

	return delivered, joined
}
