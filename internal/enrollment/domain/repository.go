package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrEnrollmentNotFound      = errors.New("enrollment_not_found")
	ErrEnrollmentExists        = errors.New("enrollment_already_exists")
	ErrStepNotAllowed          = errors.New("step_not_allowed")
	ErrInvalidStep             = errors.New("invalid_step")
	ErrInvalidStatus           = errors.New("invalid_enrollment_status")
	ErrInvalidTransition       = errors.New("invalid_status_transition")
	ErrEnrollmentClosed        = errors.New("enrollment_window_closed")
	ErrClassNotFound           = errors.New("class_not_found")
	ErrClassNotInSemester      = errors.New("class_not_in_semester")
	ErrEmployeeNotFound        = errors.New("employee_not_found")
	ErrDependentNotFound       = errors.New("employee_dependent_not_found")
	ErrSiblingNotFound         = errors.New("sibling_not_found")
	ErrDiscountNotFound        = errors.New("discount_not_found")
	ErrMinimumDueNotPaid       = errors.New("minimum_amount_due_not_paid")
	ErrCurriculumPeriodMissing = errors.New("curriculum_period_missing")
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, enrollment *Enrollment) error
	Save(ctx context.Context, db *gorm.DB, enrollment *Enrollment) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Enrollment, error)
	LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Enrollment, error)
	FindByStudentSemester(ctx context.Context, db *gorm.DB, studentID, semesterID snowflake.ID) (*Enrollment, error)
	ListBySemesterStatus(ctx context.Context, db *gorm.DB, semesterID snowflake.ID, status Status, limit int) ([]Enrollment, error)

	ListClasses(ctx context.Context, db *gorm.DB, enrollmentID snowflake.ID) ([]EnrolledClass, error)
	FindClass(ctx context.Context, db *gorm.DB, id snowflake.ID) (*EnrolledClass, error)
	ReplaceClasses(ctx context.Context, db *gorm.DB, enrollmentID snowflake.ID, classes []EnrolledClass) error
	UpdateClassStatus(ctx context.Context, db *gorm.DB, enrollmentID snowflake.ID, from []ClassStatus, to ClassStatus) error

	FindDiscount(ctx context.Context, db *gorm.DB, enrollmentID snowflake.ID) (*EnrollmentDiscount, error)
	UpsertDiscount(ctx context.Context, db *gorm.DB, discount *EnrollmentDiscount) error

	// InsertStatusRecord returns false when the label was already journaled.
	InsertStatusRecord(ctx context.Context, db *gorm.DB, record *StatusRecord) (bool, error)
}
