package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/registrar/internal/academic/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func first[T any](ctx context.Context, db *gorm.DB, query string, args ...any) (*T, error) {
	var row T
	err := db.WithContext(ctx).Where(query, args...).Limit(1).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repo) FindSemester(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Semester, error) {
	return first[domain.Semester](ctx, db, "id = ?", id)
}

func (r *repo) FindCurrentSemester(ctx context.Context, db *gorm.DB, now time.Time) (*domain.Semester, error) {
	var semester domain.Semester
	err := db.WithContext(ctx).
		Where("start_date <= ? AND end_date > ?", now, now).
		Order("start_date DESC, id ASC").
		Limit(1).
		Take(&semester).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &semester, nil
}

func (r *repo) ListSemestersInEnrollmentWindow(ctx context.Context, db *gorm.DB, now time.Time) ([]domain.Semester, error) {
	var semesters []domain.Semester
	err := db.WithContext(ctx).
		Where("enrollment_start IS NOT NULL AND enrollment_start <= ? AND enrollment_end > ?", now, now).
		Order("id ASC").
		Find(&semesters).Error
	if err != nil {
		return nil, err
	}
	return semesters, nil
}

func (r *repo) FindStudent(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Student, error) {
	return first[domain.Student](ctx, db, "id = ?", id)
}

func (r *repo) FindStudentByIDNumber(ctx context.Context, db *gorm.DB, idNumber string) (*domain.Student, error) {
	return first[domain.Student](ctx, db, "id_number = ?", strings.TrimSpace(idNumber))
}

func (r *repo) FindCourse(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Course, error) {
	return first[domain.Course](ctx, db, "id = ?", id)
}

func (r *repo) FindCurriculumPeriod(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.CurriculumPeriod, error) {
	return first[domain.CurriculumPeriod](ctx, db, "id = ?", id)
}

func (r *repo) FindCurriculumPeriodFor(ctx context.Context, db *gorm.DB, curriculumID snowflake.ID, term domain.Term, yearLevel int) (*domain.CurriculumPeriod, error) {
	return first[domain.CurriculumPeriod](ctx, db,
		"curriculum_id = ? AND term = ? AND year_level = ?", curriculumID, term, yearLevel)
}

func (r *repo) FindClass(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Class, error) {
	return first[domain.Class](ctx, db, "id = ?", id)
}

func (r *repo) FindSubject(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subject, error) {
	return first[domain.Subject](ctx, db, "id = ?", id)
}

func (r *repo) FindCurriculumSubject(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.CurriculumSubject, error) {
	return first[domain.CurriculumSubject](ctx, db, "id = ?", id)
}

func (r *repo) FindEmployeeByUsername(ctx context.Context, db *gorm.DB, username string) (*domain.Employee, error) {
	return first[domain.Employee](ctx, db, "username = ?", strings.TrimSpace(username))
}

func (r *repo) FindEmployeeDependent(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.EmployeeDependent, error) {
	return first[domain.EmployeeDependent](ctx, db, "id = ?", id)
}

func (r *repo) UpdateStudentContact(ctx context.Context, db *gorm.DB, id snowflake.ID, contactNumber, address string) error {
	return db.WithContext(ctx).
		Model(&domain.Student{}).
		Where("id = ?", id).
		Updates(map[string]any{"contact_number": contactNumber, "address": address}).Error
}
