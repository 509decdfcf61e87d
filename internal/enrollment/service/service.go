package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	academicdomain "github.com/smallbiznis/registrar/internal/academic/domain"
	"github.com/smallbiznis/registrar/internal/authorization"
	"github.com/smallbiznis/registrar/internal/clock"
	"github.com/smallbiznis/registrar/internal/enrollment/domain"
	"github.com/smallbiznis/registrar/internal/events"
	feedomain "github.com/smallbiznis/registrar/internal/fee/domain"
	feeservice "github.com/smallbiznis/registrar/internal/fee/service"
	"github.com/smallbiznis/registrar/internal/observability/logger"
	soadomain "github.com/smallbiznis/registrar/internal/soa/domain"
	soaservice "github.com/smallbiznis/registrar/internal/soa/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Academic academicdomain.Repository
	Fees     feedomain.Repository
	Resolver *feeservice.Resolver
	SOA      *soaservice.Service
	Authz    authorization.Service
	Outbox   *events.Outbox
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	academic academicdomain.Repository
	fees     feedomain.Repository
	resolver *feeservice.Resolver
	soa      *soaservice.Service
	authz    authorization.Service
	outbox   *events.Outbox
}

func NewService(p Params) *Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("enrollment.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		academic: p.Academic,
		fees:     p.Fees,
		resolver: p.Resolver,
		soa:      p.SOA,
		authz:    p.Authz,
		outbox:   p.Outbox,
	}
}

type StartRequest struct {
	StudentID  snowflake.ID
	SemesterID snowflake.ID
	YearLevel  int
}

// Start opens an enrollment in the phase given by the semester windows and
// grants the student the enrollee role.
func (s *Service) Start(ctx context.Context, req StartRequest) (*domain.Enrollment, error) {
	if req.YearLevel <= 0 {
		return nil, domain.ErrInvalidStep
	}
	student, err := s.academic.FindStudent(ctx, s.db, req.StudentID)
	if err != nil {
		return nil, err
	}
	if student == nil {
		return nil, academicdomain.ErrStudentNotFound
	}
	semester, err := s.academic.FindSemester(ctx, s.db, req.SemesterID)
	if err != nil {
		return nil, err
	}
	if semester == nil {
		return nil, academicdomain.ErrSemesterNotFound
	}

	now := s.clock.Now()
	var status domain.Status
	switch {
	case semester.InPreEnrollment(now):
		status = domain.StatusPreEnrollment
	case semester.InEnrollment(now):
		status = domain.StatusEnrollment
	default:
		return nil, domain.ErrEnrollmentClosed
	}

	existing, err := s.repo.FindByStudentSemester(ctx, s.db, student.ID, semester.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrEnrollmentExists
	}

	enrollment := &domain.Enrollment{
		ID:            s.genID.Generate(),
		StudentID:     student.ID,
		SemesterID:    semester.ID,
		Status:        status,
		Step:          domain.StepStart,
		YearLevel:     req.YearLevel,
		ContactNumber: student.ContactNumber,
		Address:       student.Address,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	period, err := s.academic.FindCurriculumPeriodFor(ctx, s.db, student.CurriculumID, semester.Term, req.YearLevel)
	if err != nil {
		return nil, err
	}
	if period != nil {
		periodID := period.ID
		enrollment.CurriculumPeriodID = &periodID
	}

	if err := s.repo.Insert(ctx, s.db, enrollment); err != nil {
		return nil, err
	}
	if err := s.authz.GrantRole(ctx, student.UserID, authorization.RoleEnrollee); err != nil {
		return nil, err
	}

	logger.WithEnrollment(logger.WithContext(ctx, s.log), enrollment.ID.String()).Info("enrollment started",
		zap.String("student_id", student.ID.String()),
		zap.String("status", string(status)),
	)
	return enrollment, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if enrollment == nil {
		return nil, domain.ErrEnrollmentNotFound
	}
	return enrollment, nil
}

func (s *Service) ListClasses(ctx context.Context, id snowflake.ID) ([]domain.EnrolledClass, error) {
	return s.repo.ListClasses(ctx, s.db, id)
}

// SubmitPreEnrollment closes the pre-enrollment wizard.
func (s *Service) SubmitPreEnrollment(ctx context.Context, id snowflake.ID) (*domain.Enrollment, error) {
	enrollment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if enrollment.Status != domain.StatusPreEnrollment {
		return nil, fmt.Errorf("%w: cannot submit from %s", domain.ErrInvalidTransition, enrollment.Status)
	}
	classes, err := s.repo.ListClasses(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if len(classes) == 0 {
		return nil, fmt.Errorf("%w: no subjects selected", domain.ErrInvalidTransition)
	}

	enrollment.Status = domain.StatusPreEnrolled
	enrollment.UpdatedAt = s.clock.Now()
	if err := s.repo.Save(ctx, s.db, enrollment); err != nil {
		return nil, err
	}
	return enrollment, nil
}

// OpenEnrollmentWindow promotes pre-enrolled enrollments of semesters whose
// enrollment window is open. It returns how many were promoted.
func (s *Service) OpenEnrollmentWindow(ctx context.Context, limit int) (int, error) {
	now := s.clock.Now()
	semesters, err := s.academic.ListSemestersInEnrollmentWindow(ctx, s.db, now)
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, semester := range semesters {
		items, err := s.repo.ListBySemesterStatus(ctx, s.db, semester.ID, domain.StatusPreEnrolled, limit)
		if err != nil {
			return promoted, err
		}
		for i := range items {
			item := items[i]
			item.Status = domain.StatusEnrollment
			item.UpdatedAt = now
			if err := s.repo.Save(ctx, s.db, &item); err != nil {
				return promoted, err
			}
			promoted++
		}
	}
	if promoted > 0 {
		s.log.Info("enrollment window opened", zap.Int("promoted", promoted))
	}
	return promoted, nil
}

// MarkEnrolled completes an enrollment: its classes become enrolled, the
// enrollee role is revoked and core.enrollment_enrolled is emitted.
// Completing an already enrolled enrollment is a no-op.
func (s *Service) MarkEnrolled(ctx context.Context, id snowflake.ID) (*domain.Enrollment, error) {
	var (
		enrollment *domain.Enrollment
		changed    bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		enrollment, err = s.repo.LockByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if enrollment == nil {
			return domain.ErrEnrollmentNotFound
		}
		if enrollment.Status == domain.StatusEnrolled {
			return nil
		}
		if enrollment.Status != domain.StatusEnrollment {
			return fmt.Errorf("%w: cannot enroll from %s", domain.ErrInvalidTransition, enrollment.Status)
		}
		return s.markEnrolled(ctx, tx, enrollment, &changed)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.afterEnrolled(ctx, enrollment)
	}
	return enrollment, nil
}

func (s *Service) markEnrolled(ctx context.Context, tx *gorm.DB, enrollment *domain.Enrollment, changed *bool) error {
	enrollment.Status = domain.StatusEnrolled
	enrollment.UpdatedAt = s.clock.Now()
	if err := s.repo.Save(ctx, tx, enrollment); err != nil {
		return err
	}
	if err := s.repo.UpdateClassStatus(ctx, tx, enrollment.ID,
		[]domain.ClassStatus{domain.ClassStatusReserved, domain.ClassStatusApproved},
		domain.ClassStatusEnrolled,
	); err != nil {
		return err
	}
	*changed = true
	return s.outbox.PublishTx(ctx, tx, events.Event{
		Type:      events.EventEnrollmentEnrolled,
		DedupeKey: "enrollment_enrolled:" + enrollment.ID.String(),
		Payload: map[string]any{
			"enrollment_id": enrollment.ID.String(),
			"student_id":    enrollment.StudentID.String(),
			"semester_id":   enrollment.SemesterID.String(),
		},
	})
}

// afterEnrolled revokes the enrollee role. A failed revoke is logged; the
// enrollment itself is already committed.
func (s *Service) afterEnrolled(ctx context.Context, enrollment *domain.Enrollment) {
	log := logger.WithEnrollment(logger.WithContext(ctx, s.log), enrollment.ID.String())
	student, err := s.academic.FindStudent(ctx, s.db, enrollment.StudentID)
	if err != nil || student == nil {
		log.Error("failed to load student for role revoke", zap.Error(err))
		return
	}
	if err := s.authz.RevokeRole(ctx, student.UserID, authorization.RoleEnrollee); err != nil {
		log.Error("failed to revoke enrollee role", zap.Error(err))
	}
	log.Info("enrollment enrolled")
}

// CompleteIfPaid enrolls the enrollment when its statement's minimum amount
// due is covered. It reports whether the enrollment was completed.
func (s *Service) CompleteIfPaid(ctx context.Context, id snowflake.ID) (bool, error) {
	enrollment, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if enrollment.Status != domain.StatusEnrollment {
		return false, nil
	}
	paid, err := s.minimumPaid(ctx, id)
	if err != nil || !paid {
		return false, err
	}
	if _, err := s.MarkEnrolled(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) minimumPaid(ctx context.Context, enrollmentID snowflake.ID) (bool, error) {
	statement, err := s.soa.GetByEnrollment(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, soadomain.ErrStatementNotFound) {
			return false, nil
		}
		return false, err
	}
	balance, err := s.soa.Balance(ctx, statement.ID)
	if err != nil {
		return false, err
	}
	return balance.MinAmountDue.IsZero(), nil
}

// Override sets any status. It is reserved for registrar staff; moving to
// enrolled goes through the regular completion path.
func (s *Service) Override(ctx context.Context, id snowflake.ID, status domain.Status) (*domain.Enrollment, error) {
	if !status.Valid() {
		return nil, domain.ErrInvalidStatus
	}
	if status == domain.StatusEnrolled {
		var (
			enrollment *domain.Enrollment
			changed    bool
		)
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			enrollment, err = s.repo.LockByID(ctx, tx, id)
			if err != nil {
				return err
			}
			if enrollment == nil {
				return domain.ErrEnrollmentNotFound
			}
			if enrollment.Status == domain.StatusEnrolled {
				return nil
			}
			return s.markEnrolled(ctx, tx, enrollment, &changed)
		})
		if err != nil {
			return nil, err
		}
		if changed {
			s.afterEnrolled(ctx, enrollment)
		}
		return enrollment, nil
	}

	enrollment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := enrollment.Status
	enrollment.Status = status
	enrollment.UpdatedAt = s.clock.Now()
	if err := s.repo.Save(ctx, s.db, enrollment); err != nil {
		return nil, err
	}
	logger.WithEnrollment(logger.WithContext(ctx, s.log), id.String()).Warn("enrollment status overridden",
		zap.String("from", string(previous)),
		zap.String("to", string(status)),
	)
	return enrollment, nil
}
