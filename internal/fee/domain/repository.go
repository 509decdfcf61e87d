package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrInvalidPeriod = errors.New("invalid_curriculum_period")
)

type Repository interface {
	ListCandidateSpecifications(ctx context.Context, db *gorm.DB, kind SpecificationKind, academicYearID snowflake.ID, yearLevel int) ([]FeeSpecification, error)
	FindSpecification(ctx context.Context, db *gorm.DB, id snowflake.ID) (*FeeSpecification, error)
	ListSpecificationFees(ctx context.Context, db *gorm.DB, specificationID snowflake.ID) ([]Fee, error)
	FindTuitionRate(ctx context.Context, db *gorm.DB, categoryID, academicYearID snowflake.ID) (*TuitionFeeRate, error)
	FindLaboratoryFee(ctx context.Context, db *gorm.DB, subjectID, academicYearID snowflake.ID) (*LaboratoryFee, error)
	FindDiscount(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Discount, error)
}
