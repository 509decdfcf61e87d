package events_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/golang/mock/gomock"
	"github.com/smallbiznis/registrar/internal/clock"
	"github.com/smallbiznis/registrar/internal/events"
	"github.com/smallbiznis/registrar/internal/events/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:events_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&events.OutboxEvent{}))
	return db
}

func newOutbox(t *testing.T, db *gorm.DB, clk clock.Clock) *events.Outbox {
	t.Helper()
	node, err := snowflake.NewNode(7)
	require.NoError(t, err)
	return events.NewOutbox(events.OutboxParams{DB: db, GenID: node, Clock: clk})
}

func TestOutboxDedupesByKey(t *testing.T) {
	db := setupDB(t)
	clk := clock.NewFakeClock(time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC))
	outbox := newOutbox(t, db, clk)
	ctx := context.Background()

	evt := events.Event{
		Type:      events.EventPaymentSuccess,
		Payload:   map[string]any{"transaction_id": "42"},
		DedupeKey: "payment_success:42",
	}
	require.NoError(t, outbox.Publish(ctx, evt))
	require.NoError(t, outbox.Publish(ctx, evt))

	var count int64
	require.NoError(t, db.Model(&events.OutboxEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestOutboxRejectsEmptyType(t *testing.T) {
	db := setupDB(t)
	outbox := newOutbox(t, db, clock.NewFakeClock(time.Now()))
	err := outbox.Publish(context.Background(), events.Event{})
	assert.ErrorIs(t, err, events.ErrInvalidEvent)
}

func TestDispatcherMarksDeliveredAndKeepsFailed(t *testing.T) {
	db := setupDB(t)
	clk := clock.NewFakeClock(time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC))
	outbox := newOutbox(t, db, clk)
	ctx := context.Background()

	require.NoError(t, outbox.Publish(ctx, events.Event{Type: events.EventEnrollmentEnrolled, DedupeKey: "a"}))
	clk.Advance(time.Second)
	require.NoError(t, outbox.Publish(ctx, events.Event{Type: events.EventPaymentSettled, DedupeKey: "b"}))

	ctrl := gomock.NewController(t)
	publisher := mock.NewMockPublisher(ctrl)
	gomock.InOrder(
		publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, evt events.OutboxEvent) error {
				assert.Equal(t, events.EventEnrollmentEnrolled, evt.EventType)
				return nil
			}),
		publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("redis down")),
	)

	dispatcher := events.NewDispatcher(events.DispatcherParams{
		DB:        db,
		Log:       zap.NewNop(),
		Publisher: publisher,
		Clock:     clk,
	})

	delivered, err := dispatcher.DispatchPending(ctx, 10)
	assert.Error(t, err)
	assert.Equal(t, 1, delivered)

	var pending []events.OutboxEvent
	require.NoError(t, db.Where("published = ?", false).Find(&pending).Error)
	require.Len(t, pending, 1)
	assert.Equal(t, events.EventPaymentSettled, pending[0].EventType)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, "redis down", pending[0].LastError)
}
