package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPreEnrollment Status = "pre_enrollment"
	StatusPreEnrolled   Status = "pre_enrolled"
	StatusEnrollment    Status = "enrollment"
	StatusEnrolled      Status = "enrolled"
	StatusInvalid       Status = "invalid"
)

// Ongoing reports whether wizard steps may still be written.
func (s Status) Ongoing() bool {
	return s == StatusPreEnrollment || s == StatusEnrollment
}

func (s Status) Valid() bool {
	switch s {
	case StatusPreEnrollment, StatusPreEnrolled, StatusEnrollment, StatusEnrolled, StatusInvalid:
		return true
	}
	return false
}

type Step int

const (
	StepStart            Step = 0
	StepInformation      Step = 1
	StepDiscounts        Step = 2
	StepSubjects         Step = 3
	StepPayment          Step = 4
	StepEnrollmentStatus Step = 5
)

func (s Step) String() string {
	switch s {
	case StepStart:
		return "start"
	case StepInformation:
		return "information"
	case StepDiscounts:
		return "discounts"
	case StepSubjects:
		return "subjects"
	case StepPayment:
		return "payment"
	case StepEnrollmentStatus:
		return "enrollment_status"
	default:
		return "unknown"
	}
}

type Enrollment struct {
	ID                              snowflake.ID  `gorm:"primaryKey" json:"id"`
	StudentID                       snowflake.ID  `gorm:"not null;uniqueIndex:ux_enrollment_student_semester,priority:1" json:"student_id"`
	SemesterID                      snowflake.ID  `gorm:"not null;uniqueIndex:ux_enrollment_student_semester,priority:2" json:"semester_id"`
	CurriculumPeriodID              *snowflake.ID `json:"curriculum_period_id,omitempty"`
	Status                          Status        `gorm:"type:text;not null" json:"status"`
	Step                            Step          `gorm:"not null;default:0" json:"step"`
	YearLevel                       int           `gorm:"not null" json:"year_level"`
	MiscellaneousFeeSpecificationID *snowflake.ID `json:"miscellaneous_fee_specification_id,omitempty"`
	OtherFeeSpecificationID         *snowflake.ID `json:"other_fee_specification_id,omitempty"`
	ContactNumber                   string        `json:"contact_number"`
	Address                         string        `json:"address"`
	GuardianName                    string        `json:"guardian_name"`
	GuardianContact                 string        `json:"guardian_contact"`
	PaymentMethod                   string        `json:"payment_method"`
	PaymentPlan                     string        `json:"payment_plan"`
	CreatedAt                       time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt                       time.Time     `gorm:"not null" json:"updated_at"`
}

func (Enrollment) TableName() string { return "enrollments" }

type ClassStatus string

const (
	ClassStatusReserved ClassStatus = "reserved"
	ClassStatusApproved ClassStatus = "approved"
	ClassStatusEnrolled ClassStatus = "enrolled"
	ClassStatusDropped  ClassStatus = "dropped"
)

type EnrolledClass struct {
	ID                  snowflake.ID  `gorm:"primaryKey" json:"id"`
	EnrollmentID        snowflake.ID  `gorm:"not null;index" json:"enrollment_id"`
	ClassID             snowflake.ID  `gorm:"not null" json:"class_id"`
	CurriculumSubjectID *snowflake.ID `json:"curriculum_subject_id,omitempty"`
	EquivalentSubjectID *snowflake.ID `json:"equivalent_subject_id,omitempty"`
	Status              ClassStatus   `gorm:"type:text;not null" json:"status"`
	CreatedAt           time.Time     `gorm:"not null" json:"created_at"`
}

func (EnrolledClass) TableName() string { return "enrolled_classes" }

type EnrollmentDiscount struct {
	EnrollmentID     snowflake.ID  `gorm:"primaryKey" json:"enrollment_id"`
	DiscountID       *snowflake.ID `json:"discount_id,omitempty"`
	Validated        bool          `gorm:"not null;default:false" json:"validated"`
	EmployeeID       *snowflake.ID `json:"employee_id,omitempty"`
	DependentID      *snowflake.ID `json:"dependent_id,omitempty"`
	SiblingStudentID *snowflake.ID `json:"sibling_student_id,omitempty"`
	Remarks          string        `json:"remarks"`
	UpdatedAt        time.Time     `gorm:"not null" json:"updated_at"`
}

func (EnrollmentDiscount) TableName() string { return "enrollment_discounts" }

const LabelEnrollmentStarted = "Enrollment Started"

// StatusRecord journals one-off milestones of an enrollment.
type StatusRecord struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	EnrollmentID snowflake.ID `gorm:"not null;uniqueIndex:ux_enrollment_status_record,priority:1" json:"enrollment_id"`
	Label        string       `gorm:"not null;uniqueIndex:ux_enrollment_status_record,priority:2" json:"label"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
}

func (StatusRecord) TableName() string { return "enrollment_status_records" }
