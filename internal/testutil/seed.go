package testutil

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	academicdomain "github.com/smallbiznis/registrar/internal/academic/domain"
	enrollmentdomain "github.com/smallbiznis/registrar/internal/enrollment/domain"
	feedomain "github.com/smallbiznis/registrar/internal/fee/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// SeedOptions shapes the single-subject enrollment built by Seed.
type SeedOptions struct {
	Now          time.Time
	Units        int
	Rate         decimal.Decimal
	Professional bool
	CategoryRate string
	Status       enrollmentdomain.Status
	// NoClass leaves the enrollment without enrolled classes.
	NoClass bool
}

// Fixture is the graph of rows created by Seed.
type Fixture struct {
	AcademicYear      academicdomain.AcademicYear
	Semester          academicdomain.Semester
	Course            academicdomain.Course
	Curriculum        academicdomain.Curriculum
	Period            academicdomain.CurriculumPeriod
	Subject           academicdomain.Subject
	CurriculumSubject academicdomain.CurriculumSubject
	Class             academicdomain.Class
	Student           academicdomain.Student
	TuitionCategory   feedomain.TuitionFeeCategory
	Enrollment        enrollmentdomain.Enrollment
	EnrolledClass     enrollmentdomain.EnrolledClass
}

// Seed creates a first-year student enrolled in one priced subject of a
// semester whose enrollment window is open at opts.Now.
func Seed(t testing.TB, db *gorm.DB, node *snowflake.Node, opts SeedOptions) *Fixture {
	t.Helper()
	if opts.Now.IsZero() {
		opts.Now = time.Date(2024, 8, 5, 9, 0, 0, 0, time.UTC)
	}
	if opts.Units == 0 {
		opts.Units = 3
	}
	if opts.Rate.IsZero() {
		opts.Rate = decimal.NewFromInt(1500)
	}
	if opts.Status == "" {
		opts.Status = enrollmentdomain.StatusEnrollment
	}
	if opts.CategoryRate == "" {
		opts.CategoryRate = "General Education"
	}

	now := opts.Now
	windowStart := now.Add(-24 * time.Hour)
	windowEnd := now.Add(14 * 24 * time.Hour)

	f := &Fixture{}
	f.AcademicYear = academicdomain.AcademicYear{ID: node.Generate(), Name: "2024-2025", StartYear: 2024, EndYear: 2025}
	f.Semester = academicdomain.Semester{
		ID:              node.Generate(),
		AcademicYearID:  f.AcademicYear.ID,
		Term:            academicdomain.TermFirst,
		StartDate:       now.Add(-7 * 24 * time.Hour),
		EndDate:         now.Add(120 * 24 * time.Hour),
		EnrollmentStart: &windowStart,
		EnrollmentEnd:   &windowEnd,
	}
	f.Course = academicdomain.Course{ID: node.Generate(), Code: "BSIT", Name: "BS Information Technology", Category: "undergraduate"}
	f.Curriculum = academicdomain.Curriculum{ID: node.Generate(), CourseID: f.Course.ID, Version: "2024"}
	f.Period = academicdomain.CurriculumPeriod{ID: node.Generate(), CurriculumID: f.Curriculum.ID, Term: academicdomain.TermFirst, YearLevel: 1}
	f.Subject = academicdomain.Subject{ID: node.Generate(), Code: "IT101", Title: "Introduction to Computing", Units: opts.Units}
	f.TuitionCategory = feedomain.TuitionFeeCategory{ID: node.Generate(), Name: "Regular"}
	categoryID := f.TuitionCategory.ID
	f.CurriculumSubject = academicdomain.CurriculumSubject{
		ID:                   node.Generate(),
		CurriculumPeriodID:   f.Period.ID,
		SubjectID:            f.Subject.ID,
		CategoryRate:         opts.CategoryRate,
		TuitionFeeCategoryID: &categoryID,
		IsProfessional:       opts.Professional,
	}
	f.Class = academicdomain.Class{ID: node.Generate(), SemesterID: f.Semester.ID, SubjectID: f.Subject.ID, Section: "A", Capacity: 40}
	f.Student = academicdomain.Student{
		ID:           node.Generate(),
		UserID:       node.Generate(),
		IDNumber:     "2024-00001",
		CourseID:     f.Course.ID,
		CurriculumID: f.Curriculum.ID,
		Type:         "regular",
		FirstName:    "Maria",
		LastName:     "Santos",
		Email:        "maria.santos@example.edu",
	}
	periodID := f.Period.ID
	f.Enrollment = enrollmentdomain.Enrollment{
		ID:                 node.Generate(),
		StudentID:          f.Student.ID,
		SemesterID:         f.Semester.ID,
		CurriculumPeriodID: &periodID,
		Status:             opts.Status,
		Step:               enrollmentdomain.StepStart,
		YearLevel:          1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	slotID := f.CurriculumSubject.ID
	f.EnrolledClass = enrollmentdomain.EnrolledClass{
		ID:                  node.Generate(),
		EnrollmentID:        f.Enrollment.ID,
		ClassID:             f.Class.ID,
		CurriculumSubjectID: &slotID,
		Status:              enrollmentdomain.ClassStatusReserved,
		CreatedAt:           now,
	}

	rows := []any{
		&f.AcademicYear, &f.Semester, &f.Course, &f.Curriculum, &f.Period, &f.Subject,
		&f.TuitionCategory, &f.CurriculumSubject, &f.Class, &f.Student, &f.Enrollment,
		&feedomain.TuitionFeeRate{
			ID:                   node.Generate(),
			TuitionFeeCategoryID: f.TuitionCategory.ID,
			AcademicYearID:       f.AcademicYear.ID,
			Rate:                 opts.Rate,
		},
	}
	if !opts.NoClass {
		rows = append(rows, &f.EnrolledClass)
	}
	for _, row := range rows {
		require.NoError(t, db.Create(row).Error)
	}
	return f
}
