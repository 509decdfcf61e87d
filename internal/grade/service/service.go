package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/registrar/internal/clock"
	enrollmentdomain "github.com/smallbiznis/registrar/internal/enrollment/domain"
	"github.com/smallbiznis/registrar/internal/events"
	"github.com/smallbiznis/registrar/internal/grade/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxValueLength = 16

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Repo        domain.Repository
	Enrollments enrollmentdomain.Repository
	Outbox      *events.Outbox
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	repo        domain.Repository
	enrollments enrollmentdomain.Repository
	outbox      *events.Outbox
}

func NewService(p Params) *Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("grade.service"),
		clock:       p.Clock,
		repo:        p.Repo,
		enrollments: p.Enrollments,
		outbox:      p.Outbox,
	}
}

type UpdateRequest struct {
	Field   string
	Value   string
	Submit  bool
	ActorID string
}

// UpdateField writes one grade. A submitted grade is locked; submitting
// emits grade.sheet_submitted once per field.
func (s *Service) UpdateField(ctx context.Context, enrolledClassID snowflake.ID, req UpdateRequest) (*domain.EnrolledClassGrade, error) {
	field, ok := domain.ParseField(req.Field)
	if !ok {
		return nil, domain.ErrInvalidField
	}
	value := strings.TrimSpace(req.Value)
	if len(value) > maxValueLength || (req.Submit && value == "") {
		return nil, domain.ErrInvalidValue
	}

	var out *domain.EnrolledClassGrade
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		class, err := s.enrollments.FindClass(ctx, tx, enrolledClassID)
		if err != nil {
			return err
		}
		if class == nil {
			return domain.ErrEnrolledClassNotFound
		}

		grade, err := s.repo.Lock(ctx, tx, enrolledClassID)
		if err != nil {
			return err
		}
		if grade == nil {
			grade = &domain.EnrolledClassGrade{
				EnrolledClassID: enrolledClassID,
				Prelim:          domain.Entry{State: domain.StateEmpty},
				Midterm:         domain.Entry{State: domain.StateEmpty},
				TentativeFinal:  domain.Entry{State: domain.StateEmpty},
				Final:           domain.Entry{State: domain.StateEmpty},
			}
		}

		entry := grade.Entry(field)
		if !entry.Editable() {
			return fmt.Errorf("%w: %s", domain.ErrGradeLocked, field)
		}
		entry.Value = value
		switch {
		case req.Submit:
			entry.State = domain.StateSubmitted
		case value == "":
			entry.State = domain.StateEmpty
		default:
			entry.State = domain.StateDraft
		}
		grade.UpdatedBy = req.ActorID
		grade.UpdatedAt = s.clock.Now()
		if err := s.repo.Save(ctx, tx, grade); err != nil {
			return err
		}

		if req.Submit {
			if err := s.outbox.PublishTx(ctx, tx, events.Event{
				Type:      events.EventGradeSheetSubmitted,
				DedupeKey: fmt.Sprintf("grade_submitted:%s:%s", enrolledClassID, field),
				Payload: map[string]any{
					"enrolled_class_id": enrolledClassID.String(),
					"enrollment_id":     class.EnrollmentID.String(),
					"field":             string(field),
					"value":             value,
					"submitted_by":      req.ActorID,
				},
			}); err != nil {
				return err
			}
		}
		out = grade
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("grade updated",
		zap.String("enrolled_class_id", enrolledClassID.String()),
		zap.String("field", string(field)),
		zap.String("state", string(out.Entry(field).State)),
	)
	return out, nil
}

func (s *Service) Get(ctx context.Context, enrolledClassID snowflake.ID) (*domain.EnrolledClassGrade, error) {
	grade, err := s.repo.Find(ctx, s.db, enrolledClassID)
	if err != nil {
		return nil, err
	}
	if grade == nil {
		class, err := s.enrollments.FindClass(ctx, s.db, enrolledClassID)
		if err != nil {
			return nil, err
		}
		if class == nil {
			return nil, domain.ErrEnrolledClassNotFound
		}
		return &domain.EnrolledClassGrade{
			EnrolledClassID: enrolledClassID,
			Prelim:          domain.Entry{State: domain.StateEmpty},
			Midterm:         domain.Entry{State: domain.StateEmpty},
			TentativeFinal:  domain.Entry{State: domain.StateEmpty},
			Final:           domain.Entry{State: domain.StateEmpty},
		}, nil
	}
	return grade, nil
}
