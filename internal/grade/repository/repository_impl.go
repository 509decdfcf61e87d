package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/registrar/internal/grade/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, enrolledClassID snowflake.ID) (*domain.EnrolledClassGrade, error) {
	return take(db.WithContext(ctx).Where("enrolled_class_id = ?", enrolledClassID))
}

func (r *repo) Lock(ctx context.Context, db *gorm.DB, enrolledClassID snowflake.ID) (*domain.EnrolledClassGrade, error) {
	query := db.WithContext(ctx)
	if db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return take(query.Where("enrolled_class_id = ?", enrolledClassID))
}

func (r *repo) Save(ctx context.Context, db *gorm.DB, grade *domain.EnrolledClassGrade) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "enrolled_class_id"}},
			UpdateAll: true,
		}).
		Create(grade).Error
}

func take(query *gorm.DB) (*domain.EnrolledClassGrade, error) {
	var grade domain.EnrolledClassGrade
	err := query.Take(&grade).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &grade, nil
}
