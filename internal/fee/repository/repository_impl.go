package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/registrar/internal/fee/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) ListCandidateSpecifications(ctx context.Context, db *gorm.DB, kind domain.SpecificationKind, academicYearID snowflake.ID, yearLevel int) ([]domain.FeeSpecification, error) {
	var specs []domain.FeeSpecification
	err := db.WithContext(ctx).
		Where("kind = ? AND academic_year_id = ?", kind, academicYearID).
		Where("year_level_from <= ? AND year_level_to >= ?", yearLevel, yearLevel).
		Order("id ASC").
		Find(&specs).Error
	if err != nil {
		return nil, err
	}
	return specs, nil
}

func (r *repo) FindSpecification(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.FeeSpecification, error) {
	var spec domain.FeeSpecification
	err := db.WithContext(ctx).Where("id = ?", id).Take(&spec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &spec, nil
}

func (r *repo) ListSpecificationFees(ctx context.Context, db *gorm.DB, specificationID snowflake.ID) ([]domain.Fee, error) {
	var fees []domain.Fee
	err := db.WithContext(ctx).Raw(
		`SELECT f.id, f.academic_year_id, f.name, f.amount
		 FROM fees f
		 JOIN fee_specification_fees sf ON sf.fee_id = f.id
		 WHERE sf.fee_specification_id = ?
		 ORDER BY f.name ASC, f.id ASC`,
		specificationID,
	).Scan(&fees).Error
	if err != nil {
		return nil, err
	}
	return fees, nil
}

func (r *repo) FindTuitionRate(ctx context.Context, db *gorm.DB, categoryID, academicYearID snowflake.ID) (*domain.TuitionFeeRate, error) {
	var rate domain.TuitionFeeRate
	err := db.WithContext(ctx).
		Where("tuition_fee_category_id = ? AND academic_year_id = ?", categoryID, academicYearID).
		Take(&rate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rate, nil
}

func (r *repo) FindLaboratoryFee(ctx context.Context, db *gorm.DB, subjectID, academicYearID snowflake.ID) (*domain.LaboratoryFee, error) {
	var fee domain.LaboratoryFee
	err := db.WithContext(ctx).
		Where("subject_id = ? AND academic_year_id = ?", subjectID, academicYearID).
		Take(&fee).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &fee, nil
}

func (r *repo) FindDiscount(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Discount, error) {
	var discount domain.Discount
	err := db.WithContext(ctx).Where("id = ?", id).Take(&discount).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &discount, nil
}
