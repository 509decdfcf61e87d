package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrSemesterNotFound  = errors.New("semester_not_found")
	ErrStudentNotFound   = errors.New("student_not_found")
	ErrNoCurrentSemester = errors.New("no_current_semester")
)

type Repository interface {
	FindSemester(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Semester, error)
	FindCurrentSemester(ctx context.Context, db *gorm.DB, now time.Time) (*Semester, error)
	ListSemestersInEnrollmentWindow(ctx context.Context, db *gorm.DB, now time.Time) ([]Semester, error)
	FindStudent(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Student, error)
	FindStudentByIDNumber(ctx context.Context, db *gorm.DB, idNumber string) (*Student, error)
	UpdateStudentContact(ctx context.Context, db *gorm.DB, id snowflake.ID, contactNumber, address string) error
	FindCourse(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Course, error)
	FindCurriculumPeriod(ctx context.Context, db *gorm.DB, id snowflake.ID) (*CurriculumPeriod, error)
	FindCurriculumPeriodFor(ctx context.Context, db *gorm.DB, curriculumID snowflake.ID, term Term, yearLevel int) (*CurriculumPeriod, error)
	FindClass(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Class, error)
	FindSubject(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subject, error)
	FindCurriculumSubject(ctx context.Context, db *gorm.DB, id snowflake.ID) (*CurriculumSubject, error)
	FindEmployeeByUsername(ctx context.Context, db *gorm.DB, username string) (*Employee, error)
	FindEmployeeDependent(ctx context.Context, db *gorm.DB, id snowflake.ID) (*EmployeeDependent, error)
}
