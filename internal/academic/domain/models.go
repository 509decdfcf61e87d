package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
)

// Term is a semester slot within an academic year. The numeric value
// gives the total order first < second < summer.
type Term int

const (
	TermFirst  Term = 1
	TermSecond Term = 2
	TermSummer Term = 3
)

func (t Term) String() string {
	switch t {
	case TermFirst:
		return "first"
	case TermSecond:
		return "second"
	case TermSummer:
		return "summer"
	default:
		return "unknown"
	}
}

func (t Term) Valid() bool {
	return t >= TermFirst && t <= TermSummer
}

// Classification values that change how a subject is priced.
const (
	ClassificationMedicine = "medicine"
)

type AcademicYear struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"not null" json:"name"`
	StartYear int          `gorm:"not null" json:"start_year"`
	EndYear   int          `gorm:"not null" json:"end_year"`
}

func (AcademicYear) TableName() string { return "academic_years" }

type Semester struct {
	ID                 snowflake.ID `gorm:"primaryKey" json:"id"`
	AcademicYearID     snowflake.ID `gorm:"not null;index" json:"academic_year_id"`
	Term               Term         `gorm:"not null" json:"term"`
	StartDate          time.Time    `gorm:"not null" json:"start_date"`
	EndDate            time.Time    `gorm:"not null" json:"end_date"`
	PreEnrollmentStart *time.Time   `json:"pre_enrollment_start,omitempty"`
	PreEnrollmentEnd   *time.Time   `json:"pre_enrollment_end,omitempty"`
	EnrollmentStart    *time.Time   `json:"enrollment_start,omitempty"`
	EnrollmentEnd      *time.Time   `json:"enrollment_end,omitempty"`
}

func (Semester) TableName() string { return "semesters" }

// IsCurrent reports whether now falls within [StartDate, EndDate).
func (s Semester) IsCurrent(now time.Time) bool {
	return !now.Before(s.StartDate) && now.Before(s.EndDate)
}

func (s Semester) InPreEnrollment(now time.Time) bool {
	return within(now, s.PreEnrollmentStart, s.PreEnrollmentEnd)
}

func (s Semester) InEnrollment(now time.Time) bool {
	return within(now, s.EnrollmentStart, s.EnrollmentEnd)
}

func within(now time.Time, start, end *time.Time) bool {
	if start == nil || end == nil {
		return false
	}
	return !now.Before(*start) && now.Before(*end)
}

type Course struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	Code     string       `gorm:"not null;uniqueIndex" json:"code"`
	Name     string       `gorm:"not null" json:"name"`
	Category string       `json:"category"`
}

func (Course) TableName() string { return "courses" }

type Student struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID        snowflake.ID `gorm:"not null;index" json:"user_id"`
	IDNumber      string       `gorm:"not null;uniqueIndex" json:"id_number"`
	CourseID      snowflake.ID `gorm:"not null" json:"course_id"`
	CurriculumID  snowflake.ID `gorm:"not null" json:"curriculum_id"`
	Type          string       `json:"type"`
	FirstName     string       `json:"first_name"`
	LastName      string       `json:"last_name"`
	Email         string       `json:"email"`
	ContactNumber string       `json:"contact_number"`
	Address       string       `json:"address"`
}

func (Student) TableName() string { return "students" }

func (s Student) FullName() string {
	return s.FirstName + " " + s.LastName
}

type Employee struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	Username string       `gorm:"not null;uniqueIndex" json:"username"`
	Name     string       `json:"name"`
}

func (Employee) TableName() string { return "employees" }

type EmployeeDependent struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	EmployeeID snowflake.ID `gorm:"not null;index" json:"employee_id"`
	Name       string       `json:"name"`
}

func (EmployeeDependent) TableName() string { return "employee_dependents" }

type Curriculum struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	CourseID snowflake.ID `gorm:"not null;index" json:"course_id"`
	Version  string       `gorm:"not null" json:"version"`
}

func (Curriculum) TableName() string { return "curriculums" }

type CurriculumPeriod struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	CurriculumID snowflake.ID `gorm:"not null;index" json:"curriculum_id"`
	Term         Term         `gorm:"not null" json:"term"`
	YearLevel    int          `gorm:"not null" json:"year_level"`
}

func (CurriculumPeriod) TableName() string { return "curriculum_periods" }

type SubjectGroup struct {
	ID   snowflake.ID `gorm:"primaryKey" json:"id"`
	Name string       `gorm:"not null" json:"name"`
}

func (SubjectGroup) TableName() string { return "subject_groups" }

type Subject struct {
	ID             snowflake.ID  `gorm:"primaryKey" json:"id"`
	Code           string        `gorm:"not null;uniqueIndex" json:"code"`
	Title          string        `gorm:"not null" json:"title"`
	Units          int           `gorm:"not null" json:"units"`
	Classification string        `json:"classification"`
	SubjectGroupID *snowflake.ID `json:"subject_group_id,omitempty"`
}

func (Subject) TableName() string { return "subjects" }

type CurriculumSubject struct {
	ID                   snowflake.ID  `gorm:"primaryKey" json:"id"`
	CurriculumPeriodID   snowflake.ID  `gorm:"not null;index" json:"curriculum_period_id"`
	SubjectID            snowflake.ID  `gorm:"not null" json:"subject_id"`
	CategoryRate         string        `json:"category_rate"`
	TuitionFeeCategoryID *snowflake.ID `json:"tuition_fee_category_id,omitempty"`
	IsProfessional       bool          `gorm:"not null;default:false" json:"is_professional"`
	Prerequisites        pq.Int64Array `gorm:"type:bigint[]" json:"prerequisites"`
	Corequisites         pq.Int64Array `gorm:"type:bigint[]" json:"corequisites"`
}

func (CurriculumSubject) TableName() string { return "curriculum_subjects" }

// Class is an offered section of a subject in one semester.
type Class struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	SemesterID snowflake.ID `gorm:"not null;index" json:"semester_id"`
	SubjectID  snowflake.ID `gorm:"not null" json:"subject_id"`
	Section    string       `json:"section"`
	Capacity   int          `json:"capacity"`
}

func (Class) TableName() string { return "classes" }
