package events

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/registrar/internal/clock"
	"go.uber.org/fx"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrInvalidEvent = errors.New("invalid_event")

// Outbox stages events in the same transaction as the state change they describe.
type Outbox struct {
	db    *gorm.DB
	genID *snowflake.Node
	clock clock.Clock
}

type OutboxParams struct {
	fx.In

	DB    *gorm.DB
	GenID *snowflake.Node
	Clock clock.Clock
}

func NewOutbox(p OutboxParams) *Outbox {
	return &Outbox{db: p.DB, genID: p.GenID, clock: p.Clock}
}

// Publish stages a single event outside any caller transaction.
func (o *Outbox) Publish(ctx context.Context, event Event) error {
	return o.PublishTx(ctx, o.db, event)
}

// PublishTx stages events on tx. Events sharing a dedupe key are stored once.
func (o *Outbox) PublishTx(ctx context.Context, tx *gorm.DB, evts ...Event) error {
	for _, event := range evts {
		eventType := strings.TrimSpace(event.Type)
		if eventType == "" {
			return ErrInvalidEvent
		}

		payload := datatypes.JSONMap{}
		for k, v := range event.Payload {
			payload[k] = v
		}

		row := OutboxEvent{
			ID:        o.genID.Generate(),
			EventType: eventType,
			Payload:   payload,
			CreatedAt: o.clock.Now(),
		}
		if key := strings.TrimSpace(event.DedupeKey); key != "" {
			row.DedupeKey = &key
		}

		if err := tx.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}
