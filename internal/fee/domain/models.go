package domain

import (
	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	academicdomain "github.com/smallbiznis/registrar/internal/academic/domain"
)

type Fee struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	AcademicYearID snowflake.ID    `gorm:"not null;index" json:"academic_year_id"`
	Name           string          `gorm:"not null" json:"name"`
	Amount         decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
}

func (Fee) TableName() string { return "fees" }

type SpecificationKind string

const (
	KindMiscellaneous SpecificationKind = "miscellaneous"
	KindOther         SpecificationKind = "other"
)

// FeeSpecification is a rule selecting a fee set. Kind decides which of
// the criteria columns are meaningful.
type FeeSpecification struct {
	ID             snowflake.ID        `gorm:"primaryKey" json:"id"`
	Kind           SpecificationKind   `gorm:"type:text;not null;index" json:"kind"`
	AcademicYearID snowflake.ID        `gorm:"not null;index" json:"academic_year_id"`
	YearLevelFrom  int                 `gorm:"not null" json:"year_level_from"`
	YearLevelTo    int                 `gorm:"not null" json:"year_level_to"`
	SemesterFrom   academicdomain.Term `gorm:"not null" json:"semester_from"`
	SemesterTo     academicdomain.Term `gorm:"not null" json:"semester_to"`

	TotalUnitFrom *int `json:"total_unit_from,omitempty"`
	TotalUnitTo   *int `json:"total_unit_to,omitempty"`

	SubjectGroupID *snowflake.ID `json:"subject_group_id,omitempty"`
	StudentType    *string       `json:"student_type,omitempty"`
	CourseCategory *string       `json:"course_category,omitempty"`
}

func (FeeSpecification) TableName() string { return "fee_specifications" }

// MiscellaneousCriteria is the payload of a miscellaneous specification.
type MiscellaneousCriteria struct {
	TotalUnitFrom int
	TotalUnitTo   int
}

// OtherCriteria is the payload of an "other" specification. Nil fields are wildcards.
type OtherCriteria struct {
	SubjectGroupID *snowflake.ID
	StudentType    *string
	CourseCategory *string
}

func (s FeeSpecification) Miscellaneous() (MiscellaneousCriteria, bool) {
	if s.Kind != KindMiscellaneous {
		return MiscellaneousCriteria{}, false
	}
	return MiscellaneousCriteria{
		TotalUnitFrom: derefInt(s.TotalUnitFrom),
		TotalUnitTo:   derefInt(s.TotalUnitTo),
	}, true
}

func (s FeeSpecification) Other() (OtherCriteria, bool) {
	if s.Kind != KindOther {
		return OtherCriteria{}, false
	}
	return OtherCriteria{
		SubjectGroupID: s.SubjectGroupID,
		StudentType:    s.StudentType,
		CourseCategory: s.CourseCategory,
	}, true
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

type FeeSpecificationFee struct {
	FeeSpecificationID snowflake.ID `gorm:"primaryKey"`
	FeeID              snowflake.ID `gorm:"primaryKey"`
}

func (FeeSpecificationFee) TableName() string { return "fee_specification_fees" }

type TuitionFeeCategory struct {
	ID   snowflake.ID `gorm:"primaryKey" json:"id"`
	Name string       `gorm:"not null" json:"name"`
}

func (TuitionFeeCategory) TableName() string { return "tuition_fee_categories" }

type TuitionFeeRate struct {
	ID                   snowflake.ID    `gorm:"primaryKey" json:"id"`
	TuitionFeeCategoryID snowflake.ID    `gorm:"not null;uniqueIndex:ux_tuition_rate,priority:1" json:"tuition_fee_category_id"`
	AcademicYearID       snowflake.ID    `gorm:"not null;uniqueIndex:ux_tuition_rate,priority:2" json:"academic_year_id"`
	Rate                 decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"rate"`
}

func (TuitionFeeRate) TableName() string { return "tuition_fee_rates" }

type LaboratoryFee struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	SubjectID      snowflake.ID    `gorm:"not null;uniqueIndex:ux_laboratory_fee,priority:1" json:"subject_id"`
	AcademicYearID snowflake.ID    `gorm:"not null;uniqueIndex:ux_laboratory_fee,priority:2" json:"academic_year_id"`
	Amount         decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
}

func (LaboratoryFee) TableName() string { return "laboratory_fees" }

type DiscountType string

const (
	DiscountTypeNormal      DiscountType = "normal"
	DiscountTypeScholarship DiscountType = "scholarship"
)

type Discount struct {
	ID                    snowflake.ID    `gorm:"primaryKey" json:"id"`
	Name                  string          `gorm:"not null" json:"name"`
	Type                  DiscountType    `gorm:"type:text;not null" json:"type"`
	Percentage            decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"percentage"`
	ApplyTo               pq.StringArray  `gorm:"type:text[]" json:"apply_to"`
	FeeExemptions         pq.Int64Array   `gorm:"type:bigint[]" json:"fee_exemptions"`
	CategoryRateExemption pq.StringArray  `gorm:"type:text[]" json:"category_rate_exemption"`
}

func (Discount) TableName() string { return "discounts" }
