package service

import (
	"context"
	"sort"

	"github.com/bwmarrin/snowflake"
	academicdomain "github.com/smallbiznis/registrar/internal/academic/domain"
	"github.com/smallbiznis/registrar/internal/fee/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OtherCriteria carries the student attributes an "other" specification can filter on.
type OtherCriteria struct {
	SubjectGroupIDs []snowflake.ID
	StudentType     string
	CourseCategory  string
}

type Resolver struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

type ResolverParams struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

func NewResolver(p ResolverParams) *Resolver {
	return &Resolver{
		db:   p.DB,
		log:  p.Log.Named("fee.resolver"),
		repo: p.Repo,
	}
}

// ResolveMiscellaneous returns the most specific miscellaneous specification
// for the period and its fees. No match is (nil, nil, nil).
func (r *Resolver) ResolveMiscellaneous(ctx context.Context, academicYearID snowflake.ID, period academicdomain.CurriculumPeriod) (*domain.FeeSpecification, []domain.Fee, error) {
	return r.resolve(ctx, domain.KindMiscellaneous, academicYearID, period, nil)
}

// ResolveOther returns the most specific "other" specification for the period.
func (r *Resolver) ResolveOther(ctx context.Context, academicYearID snowflake.ID, period academicdomain.CurriculumPeriod, criteria OtherCriteria) (*domain.FeeSpecification, []domain.Fee, error) {
	return r.resolve(ctx, domain.KindOther, academicYearID, period, &criteria)
}

func (r *Resolver) resolve(ctx context.Context, kind domain.SpecificationKind, academicYearID snowflake.ID, period academicdomain.CurriculumPeriod, criteria *OtherCriteria) (*domain.FeeSpecification, []domain.Fee, error) {
	if !period.Term.Valid() {
		return nil, nil, domain.ErrInvalidPeriod
	}

	candidates, err := r.repo.ListCandidateSpecifications(ctx, r.db, kind, academicYearID, period.YearLevel)
	if err != nil {
		return nil, nil, err
	}

	matched := make([]domain.FeeSpecification, 0, len(candidates))
	for _, spec := range candidates {
		if !MatchesPeriod(spec, period) {
			continue
		}
		if criteria != nil && !matchesOther(spec, *criteria) {
			continue
		}
		matched = append(matched, spec)
	}
	if len(matched) == 0 {
		r.log.Debug("no fee specification matched",
			zap.String("kind", string(kind)),
			zap.String("academic_year_id", academicYearID.String()),
			zap.Int("year_level", period.YearLevel),
			zap.String("term", period.Term.String()),
		)
		return nil, nil, nil
	}

	SortBySpecificity(matched)
	winner := matched[0]

	fees, err := r.repo.ListSpecificationFees(ctx, r.db, winner.ID)
	if err != nil {
		return nil, nil, err
	}
	return &winner, fees, nil
}

// MatchesPeriod applies the year-level and semester-range predicate.
// A first-to-summer range covers the whole year, second semester included.
func MatchesPeriod(spec domain.FeeSpecification, period academicdomain.CurriculumPeriod) bool {
	if period.YearLevel < spec.YearLevelFrom || period.YearLevel > spec.YearLevelTo {
		return false
	}
	if spec.SemesterFrom == academicdomain.TermFirst && spec.SemesterTo == academicdomain.TermSummer {
		return true
	}
	return spec.SemesterFrom <= period.Term && period.Term <= spec.SemesterTo
}

func matchesOther(spec domain.FeeSpecification, criteria OtherCriteria) bool {
	other, ok := spec.Other()
	if !ok {
		return false
	}
	if other.SubjectGroupID != nil {
		found := false
		for _, id := range criteria.SubjectGroupIDs {
			if id == *other.SubjectGroupID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if other.StudentType != nil && *other.StudentType != criteria.StudentType {
		return false
	}
	if other.CourseCategory != nil && *other.CourseCategory != criteria.CourseCategory {
		return false
	}
	return true
}

// SortBySpecificity orders specifications most specific first. Miscellaneous
// specs rank by (total_unit_to, total_unit_from) descending; other specs by
// (subject_group, student_type, course_category) descending with set values
// above unset ones. Remaining ties go to the lowest ID.
func SortBySpecificity(specs []domain.FeeSpecification) {
	sort.SliceStable(specs, func(i, j int) bool {
		a, b := specs[i], specs[j]
		if c := compareSpecificity(a, b); c != 0 {
			return c > 0
		}
		return a.ID < b.ID
	})
}

func compareSpecificity(a, b domain.FeeSpecification) int {
	if am, ok := a.Miscellaneous(); ok {
		bm, _ := b.Miscellaneous()
		if c := compareInt(am.TotalUnitTo, bm.TotalUnitTo); c != 0 {
			return c
		}
		return compareInt(am.TotalUnitFrom, bm.TotalUnitFrom)
	}

	ao, _ := a.Other()
	bo, _ := b.Other()
	if c := compareOptionalID(ao.SubjectGroupID, bo.SubjectGroupID); c != 0 {
		return c
	}
	if c := compareOptionalString(ao.StudentType, bo.StudentType); c != 0 {
		return c
	}
	return compareOptionalString(ao.CourseCategory, bo.CourseCategory)
}

func compareInt(a, b int) int {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}

func compareOptionalID(a, b *snowflake.ID) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case *a > *b:
		return 1
	case *a < *b:
		return -1
	default:
		return 0
	}
}

func compareOptionalString(a, b *string) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case *a > *b:
		return 1
	case *a < *b:
		return -1
	default:
		return 0
	}
}

// Assignment links an enrollment to its resolved fee specifications.
type Assignment struct {
	MiscellaneousID *snowflake.ID
	OtherID         *snowflake.ID
}

// AssignSpecifications fills the unset links of current with the best
// matching specifications. Links that are already set are kept.
func (r *Resolver) AssignSpecifications(ctx context.Context, academicYearID snowflake.ID, period academicdomain.CurriculumPeriod, criteria OtherCriteria, current Assignment) (Assignment, error) {
	out := current
	if out.MiscellaneousID == nil {
		spec, _, err := r.ResolveMiscellaneous(ctx, academicYearID, period)
		if err != nil {
			return current, err
		}
		if spec != nil {
			id := spec.ID
			out.MiscellaneousID = &id
		}
	}
	if out.OtherID == nil {
		spec, _, err := r.ResolveOther(ctx, academicYearID, period, criteria)
		if err != nil {
			return current, err
		}
		if spec != nil {
			id := spec.ID
			out.OtherID = &id
		}
	}
	return out, nil
}
