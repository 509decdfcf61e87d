package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/registrar/internal/enrollment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, enrollment *domain.Enrollment) error {
	return db.WithContext(ctx).Create(enrollment).Error
}

func (r *repo) Save(ctx context.Context, db *gorm.DB, enrollment *domain.Enrollment) error {
	return db.WithContext(ctx).Save(enrollment).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Enrollment, error) {
	return takeEnrollment(db.WithContext(ctx).Where("id = ?", id))
}

func (r *repo) LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Enrollment, error) {
	query := db.WithContext(ctx)
	if db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return takeEnrollment(query.Where("id = ?", id))
}

func (r *repo) FindByStudentSemester(ctx context.Context, db *gorm.DB, studentID, semesterID snowflake.ID) (*domain.Enrollment, error) {
	return takeEnrollment(db.WithContext(ctx).Where("student_id = ? AND semester_id = ?", studentID, semesterID))
}

func (r *repo) ListBySemesterStatus(ctx context.Context, db *gorm.DB, semesterID snowflake.ID, status domain.Status, limit int) ([]domain.Enrollment, error) {
	var items []domain.Enrollment
	query := db.WithContext(ctx).
		Where("semester_id = ? AND status = ?", semesterID, status).
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func takeEnrollment(query *gorm.DB) (*domain.Enrollment, error) {
	var item domain.Enrollment
	err := query.Limit(1).Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) ListClasses(ctx context.Context, db *gorm.DB, enrollmentID snowflake.ID) ([]domain.EnrolledClass, error) {
	var items []domain.EnrolledClass
	if err := db.WithContext(ctx).
		Where("enrollment_id = ?", enrollmentID).
		Order("id ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindClass(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.EnrolledClass, error) {
	var item domain.EnrolledClass
	err := db.WithContext(ctx).Where("id = ?", id).Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ReplaceClasses drops every class row of the enrollment and inserts classes.
func (r *repo) ReplaceClasses(ctx context.Context, db *gorm.DB, enrollmentID snowflake.ID, classes []domain.EnrolledClass) error {
	if err := db.WithContext(ctx).
		Where("enrollment_id = ?", enrollmentID).
		Delete(&domain.EnrolledClass{}).Error; err != nil {
		return err
	}
	if len(classes) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&classes).Error
}

func (r *repo) UpdateClassStatus(ctx context.Context, db *gorm.DB, enrollmentID snowflake.ID, from []domain.ClassStatus, to domain.ClassStatus) error {
	return db.WithContext(ctx).
		Model(&domain.EnrolledClass{}).
		Where("enrollment_id = ? AND status IN ?", enrollmentID, from).
		Update("status", to).Error
}

func (r *repo) FindDiscount(ctx context.Context, db *gorm.DB, enrollmentID snowflake.ID) (*domain.EnrollmentDiscount, error) {
	var item domain.EnrollmentDiscount
	err := db.WithContext(ctx).Where("enrollment_id = ?", enrollmentID).Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) UpsertDiscount(ctx context.Context, db *gorm.DB, discount *domain.EnrollmentDiscount) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "enrollment_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"discount_id", "validated", "employee_id", "dependent_id",
				"sibling_student_id", "remarks", "updated_at",
			}),
		}).
		Create(discount).Error
}

func (r *repo) InsertStatusRecord(ctx context.Context, db *gorm.DB, record *domain.StatusRecord) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(record)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
