package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/registrar/internal/enrollment/domain"
	"github.com/smallbiznis/registrar/internal/events"
	feeservice "github.com/smallbiznis/registrar/internal/fee/service"
	"github.com/smallbiznis/registrar/internal/observability/logger"
	soadomain "github.com/smallbiznis/registrar/internal/soa/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UpdateRequest carries the payload of exactly one wizard step.
type UpdateRequest struct {
	Step        domain.Step
	Information *InformationData
	Discounts   *DiscountsData
	Subjects    *SubjectsData
	Payment     *PaymentData
}

// InformationData patches contact details. Nil fields are left unchanged.
type InformationData struct {
	ContactNumber   *string
	Address         *string
	GuardianName    *string
	GuardianContact *string
}

type DiscountsData struct {
	DiscountID       *snowflake.ID
	EmployeeUsername string
	DependentID      *snowflake.ID
	SiblingIDNumber  string
	Remarks          string
}

type ClassSelection struct {
	ClassID             snowflake.ID
	CurriculumSubjectID *snowflake.ID
	EquivalentSubjectID *snowflake.ID
}

type SubjectsData struct {
	Classes []ClassSelection
}

type PaymentData struct {
	PaymentMethod *string
	PaymentPlan   *string
}

// Update validates the step against the enrollment's status and runs its
// handler. Earlier steps stay editable.
func (s *Service) Update(ctx context.Context, id snowflake.ID, req UpdateRequest) (*domain.Enrollment, error) {
	enrollment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.StepAllowed(enrollment.Status, req.Step) {
		return nil, fmt.Errorf("%w: step %q cannot be written while enrollment is %q",
			domain.ErrStepNotAllowed, req.Step, enrollment.Status)
	}

	switch req.Step {
	case domain.StepStart:
		err = s.touch(ctx, enrollment, req.Step)
	case domain.StepInformation:
		err = s.updateInformation(ctx, enrollment, req.Information)
	case domain.StepDiscounts:
		err = s.updateDiscounts(ctx, enrollment, req.Discounts)
	case domain.StepSubjects:
		err = s.updateSubjects(ctx, enrollment, req.Subjects)
	case domain.StepPayment:
		err = s.updatePayment(ctx, enrollment, req.Payment)
	case domain.StepEnrollmentStatus:
		err = s.updateEnrollmentStatus(ctx, enrollment)
	default:
		return nil, domain.ErrInvalidStep
	}
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func advance(enrollment *domain.Enrollment, step domain.Step) {
	if step > enrollment.Step {
		enrollment.Step = step
	}
}

func (s *Service) touch(ctx context.Context, enrollment *domain.Enrollment, step domain.Step) error {
	advance(enrollment, step)
	enrollment.UpdatedAt = s.clock.Now()
	return s.repo.Save(ctx, s.db, enrollment)
}

func (s *Service) updateInformation(ctx context.Context, enrollment *domain.Enrollment, data *InformationData) error {
	if data == nil {
		return domain.ErrInvalidStep
	}
	patchString(&enrollment.ContactNumber, data.ContactNumber)
	patchString(&enrollment.Address, data.Address)
	patchString(&enrollment.GuardianName, data.GuardianName)
	patchString(&enrollment.GuardianContact, data.GuardianContact)
	advance(enrollment, domain.StepInformation)
	enrollment.UpdatedAt = s.clock.Now()

	started := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Save(ctx, tx, enrollment); err != nil {
			return err
		}
		if data.ContactNumber != nil || data.Address != nil {
			if err := s.academic.UpdateStudentContact(ctx, tx, enrollment.StudentID, enrollment.ContactNumber, enrollment.Address); err != nil {
				return err
			}
		}
		if enrollment.Status != domain.StatusEnrollment {
			return nil
		}

		inserted, err := s.repo.InsertStatusRecord(ctx, tx, &domain.StatusRecord{
			ID:           s.genID.Generate(),
			EnrollmentID: enrollment.ID,
			Label:        domain.LabelEnrollmentStarted,
			CreatedAt:    enrollment.UpdatedAt,
		})
		if err != nil || !inserted {
			return err
		}
		started = true
		return s.outbox.PublishTx(ctx, tx, events.Event{
			Type:      events.EventEnrollmentStarted,
			DedupeKey: "enrollment_started:" + enrollment.ID.String(),
			Payload: map[string]any{
				"enrollment_id": enrollment.ID.String(),
				"student_id":    enrollment.StudentID.String(),
			},
		})
	})
	if err != nil {
		return err
	}
	if started {
		logger.WithEnrollment(logger.WithContext(ctx, s.log), enrollment.ID.String()).Info("enrollment period started")
	}
	return nil
}

func patchString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func (s *Service) updateDiscounts(ctx context.Context, enrollment *domain.Enrollment, data *DiscountsData) error {
	if data == nil {
		return domain.ErrInvalidStep
	}
	record := &domain.EnrollmentDiscount{
		EnrollmentID: enrollment.ID,
		Remarks:      strings.TrimSpace(data.Remarks),
		UpdatedAt:    s.clock.Now(),
	}

	if data.DiscountID != nil {
		discount, err := s.fees.FindDiscount(ctx, s.db, *data.DiscountID)
		if err != nil {
			return err
		}
		if discount == nil {
			return domain.ErrDiscountNotFound
		}
		record.DiscountID = &discount.ID
	}
	if username := strings.TrimSpace(data.EmployeeUsername); username != "" {
		employee, err := s.academic.FindEmployeeByUsername(ctx, s.db, username)
		if err != nil {
			return err
		}
		if employee == nil {
			return domain.ErrEmployeeNotFound
		}
		record.EmployeeID = &employee.ID
	}
	if data.DependentID != nil {
		dependent, err := s.academic.FindEmployeeDependent(ctx, s.db, *data.DependentID)
		if err != nil {
			return err
		}
		if dependent == nil {
			return domain.ErrDependentNotFound
		}
		record.DependentID = &dependent.ID
	}
	if idNumber := strings.TrimSpace(data.SiblingIDNumber); idNumber != "" {
		sibling, err := s.academic.FindStudentByIDNumber(ctx, s.db, idNumber)
		if err != nil {
			return err
		}
		if sibling == nil || sibling.ID == enrollment.StudentID {
			return domain.ErrSiblingNotFound
		}
		record.SiblingStudentID = &sibling.ID
	}

	advance(enrollment, domain.StepDiscounts)
	enrollment.UpdatedAt = record.UpdatedAt
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.UpsertDiscount(ctx, tx, record); err != nil {
			return err
		}
		return s.repo.Save(ctx, tx, enrollment)
	})
}

// updateSubjects replaces the enrolled classes, links fee specifications
// and rebuilds the statement of account.
func (s *Service) updateSubjects(ctx context.Context, enrollment *domain.Enrollment, data *SubjectsData) error {
	if data == nil {
		return domain.ErrInvalidStep
	}
	log := logger.WithEnrollment(logger.WithContext(ctx, s.log), enrollment.ID.String())
	now := s.clock.Now()

	var groupIDs []snowflake.ID
	classes := make([]domain.EnrolledClass, 0, len(data.Classes))
	seen := make(map[snowflake.ID]struct{}, len(data.Classes))
	for _, selection := range data.Classes {
		if _, dup := seen[selection.ClassID]; dup {
			continue
		}
		seen[selection.ClassID] = struct{}{}

		offered, err := s.academic.FindClass(ctx, s.db, selection.ClassID)
		if err != nil {
			return err
		}
		if offered == nil {
			return domain.ErrClassNotFound
		}
		if offered.SemesterID != enrollment.SemesterID {
			return domain.ErrClassNotInSemester
		}
		subject, err := s.academic.FindSubject(ctx, s.db, offered.SubjectID)
		if err != nil {
			return err
		}
		if subject != nil && subject.SubjectGroupID != nil {
			groupIDs = append(groupIDs, *subject.SubjectGroupID)
		}

		classes = append(classes, domain.EnrolledClass{
			ID:                  s.genID.Generate(),
			EnrollmentID:        enrollment.ID,
			ClassID:             offered.ID,
			CurriculumSubjectID: selection.CurriculumSubjectID,
			EquivalentSubjectID: selection.EquivalentSubjectID,
			Status:              domain.ClassStatusReserved,
			CreatedAt:           now,
		})
	}

	if err := s.assignSpecifications(ctx, enrollment, groupIDs); err != nil {
		return err
	}

	advance(enrollment, domain.StepSubjects)
	enrollment.UpdatedAt = now
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.ReplaceClasses(ctx, tx, enrollment.ID, classes); err != nil {
			return err
		}
		return s.repo.Save(ctx, tx, enrollment)
	})
	if err != nil {
		return err
	}

	statement, err := s.soa.Create(ctx, enrollment.ID, soadomain.CreateOptions{Override: true})
	if err != nil {
		return err
	}
	log.Info("subjects saved",
		zap.Int("classes", len(classes)),
		zap.String("soa_id", statement.ID.String()),
	)
	return nil
}

// assignSpecifications links the enrollment to its miscellaneous and other
// fee specifications when they are not linked yet.
func (s *Service) assignSpecifications(ctx context.Context, enrollment *domain.Enrollment, groupIDs []snowflake.ID) error {
	if enrollment.MiscellaneousFeeSpecificationID != nil && enrollment.OtherFeeSpecificationID != nil {
		return nil
	}
	if enrollment.CurriculumPeriodID == nil {
		logger.WithEnrollment(s.log, enrollment.ID.String()).Debug("no curriculum period, fee specifications left unset")
		return nil
	}
	period, err := s.academic.FindCurriculumPeriod(ctx, s.db, *enrollment.CurriculumPeriodID)
	if err != nil {
		return err
	}
	if period == nil {
		return domain.ErrCurriculumPeriodMissing
	}
	semester, err := s.academic.FindSemester(ctx, s.db, enrollment.SemesterID)
	if err != nil {
		return err
	}
	student, err := s.academic.FindStudent(ctx, s.db, enrollment.StudentID)
	if err != nil {
		return err
	}
	if semester == nil || student == nil {
		return domain.ErrEnrollmentNotFound
	}
	criteria := feeservice.OtherCriteria{
		SubjectGroupIDs: groupIDs,
		StudentType:     student.Type,
	}
	course, err := s.academic.FindCourse(ctx, s.db, student.CourseID)
	if err != nil {
		return err
	}
	if course != nil {
		criteria.CourseCategory = course.Category
	}

	assigned, err := s.resolver.AssignSpecifications(ctx, semester.AcademicYearID, *period, criteria, feeservice.Assignment{
		MiscellaneousID: enrollment.MiscellaneousFeeSpecificationID,
		OtherID:         enrollment.OtherFeeSpecificationID,
	})
	if err != nil {
		return err
	}
	enrollment.MiscellaneousFeeSpecificationID = assigned.MiscellaneousID
	enrollment.OtherFeeSpecificationID = assigned.OtherID
	return nil
}

func (s *Service) updatePayment(ctx context.Context, enrollment *domain.Enrollment, data *PaymentData) error {
	if data == nil {
		return domain.ErrInvalidStep
	}
	patchString(&enrollment.PaymentMethod, data.PaymentMethod)
	patchString(&enrollment.PaymentPlan, data.PaymentPlan)
	return s.touch(ctx, enrollment, domain.StepPayment)
}

// updateEnrollmentStatus is the legacy completion path: it enrolls when the
// minimum amount due is paid.
func (s *Service) updateEnrollmentStatus(ctx context.Context, enrollment *domain.Enrollment) error {
	paid, err := s.minimumPaid(ctx, enrollment.ID)
	if err != nil {
		return err
	}
	if !paid {
		return domain.ErrMinimumDueNotPaid
	}
	if err := s.touch(ctx, enrollment, domain.StepEnrollmentStatus); err != nil {
		return err
	}
	_, err = s.MarkEnrolled(ctx, enrollment.ID)
	return err
}
