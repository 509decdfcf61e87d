package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/registrar/internal/clock"
	enrollmentrepo "github.com/smallbiznis/registrar/internal/enrollment/repository"
	"github.com/smallbiznis/registrar/internal/events"
	"github.com/smallbiznis/registrar/internal/grade/domain"
	"github.com/smallbiznis/registrar/internal/grade/repository"
	"github.com/smallbiznis/registrar/internal/grade/service"
	"github.com/smallbiznis/registrar/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setup(t *testing.T) (*gorm.DB, *service.Service, *testutil.Fixture) {
	t.Helper()
	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	clk := clock.NewFakeClock(time.Date(2024, 10, 1, 8, 0, 0, 0, time.UTC))
	f := testutil.Seed(t, db, node, testutil.SeedOptions{})
	svc := service.NewService(service.Params{
		DB:          db,
		Log:         zap.NewNop(),
		Clock:       clk,
		Repo:        repository.Provide(),
		Enrollments: enrollmentrepo.Provide(),
		Outbox:      events.NewOutbox(events.OutboxParams{DB: db, GenID: node, Clock: clk}),
	})
	return db, svc, f
}

func TestDraftThenSubmitLocksField(t *testing.T) {
	db, svc, f := setup(t)
	ctx := context.Background()
	classID := f.EnrolledClass.ID

	grade, err := svc.UpdateField(ctx, classID, service.UpdateRequest{Field: "prelim", Value: "1.75", ActorID: "prof-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.StateDraft, grade.Prelim.State)

	grade, err = svc.UpdateField(ctx, classID, service.UpdateRequest{Field: "prelim", Value: "1.50", Submit: true, ActorID: "prof-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.StateSubmitted, grade.Prelim.State)
	assert.Equal(t, "1.50", grade.Prelim.Value)

	_, err = svc.UpdateField(ctx, classID, service.UpdateRequest{Field: "prelim", Value: "1.00", ActorID: "prof-1"})
	assert.ErrorIs(t, err, domain.ErrGradeLocked)

	grade, err = svc.UpdateField(ctx, classID, service.UpdateRequest{Field: "midterm", Value: "2.00", ActorID: "prof-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.StateDraft, grade.Midterm.State)

	stored, err := svc.Get(ctx, classID)
	require.NoError(t, err)
	assert.Equal(t, "1.50", stored.Prelim.Value)
	assert.Equal(t, domain.StateSubmitted, stored.Prelim.State)
	assert.Equal(t, domain.StateEmpty, stored.Final.State)

	var count int64
	require.NoError(t, db.Model(&events.OutboxEvent{}).Where("event_type = ?", events.EventGradeSheetSubmitted).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestUpdateFieldValidation(t *testing.T) {
	_, svc, f := setup(t)
	ctx := context.Background()

	_, err := svc.UpdateField(ctx, f.EnrolledClass.ID, service.UpdateRequest{Field: "quiz", Value: "1.0"})
	assert.ErrorIs(t, err, domain.ErrInvalidField)

	_, err = svc.UpdateField(ctx, f.EnrolledClass.ID, service.UpdateRequest{Field: "final", Submit: true})
	assert.ErrorIs(t, err, domain.ErrInvalidValue)

	_, err = svc.UpdateField(ctx, f.Enrollment.ID, service.UpdateRequest{Field: "final", Value: "1.0"})
	assert.ErrorIs(t, err, domain.ErrEnrolledClassNotFound)
}

func TestGetReturnsEmptyGrade(t *testing.T) {
	_, svc, f := setup(t)

	grade, err := svc.Get(context.Background(), f.EnrolledClass.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateEmpty, grade.Prelim.State)
	assert.Equal(t, domain.StateEmpty, grade.TentativeFinal.State)
}
