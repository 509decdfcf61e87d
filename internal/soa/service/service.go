package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	academicdomain "github.com/smallbiznis/registrar/internal/academic/domain"
	"github.com/smallbiznis/registrar/internal/clock"
	"github.com/smallbiznis/registrar/internal/config"
	enrollmentdomain "github.com/smallbiznis/registrar/internal/enrollment/domain"
	feedomain "github.com/smallbiznis/registrar/internal/fee/domain"
	feeservice "github.com/smallbiznis/registrar/internal/fee/service"
	"github.com/smallbiznis/registrar/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/registrar/internal/observability/metrics"
	"github.com/smallbiznis/registrar/internal/soa/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Policy      *config.PolicyHolder
	Repo        domain.Repository
	Academic    academicdomain.Repository
	Fees        feedomain.Repository
	Enrollments enrollmentdomain.Repository
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	policy      *config.PolicyHolder
	repo        domain.Repository
	academic    academicdomain.Repository
	fees        feedomain.Repository
	enrollments enrollmentdomain.Repository
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("soa.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		policy:      p.Policy,
		repo:        p.Repo,
		academic:    p.Academic,
		fees:        p.Fees,
		enrollments: p.Enrollments,
		obsMetrics:  p.ObsMetrics,
	}
}

// Create builds the statement of account for an enrollment. An existing
// statement is returned untouched unless opts.Override is set, in which case
// its lines, categories and builder transactions are regenerated.
func (s *Service) Create(ctx context.Context, enrollmentID snowflake.ID, opts domain.CreateOptions) (*domain.StatementOfAccount, error) {
	log := logger.WithContext(ctx, s.log).With(zap.String("enrollment_id", enrollmentID.String()))

	enrollment, err := s.enrollments.FindByID(ctx, s.db, enrollmentID)
	if err != nil {
		return nil, err
	}
	if enrollment == nil {
		return nil, domain.ErrEnrollmentNotFound
	}

	existing, err := s.repo.FindByEnrollment(ctx, s.db, enrollmentID)
	if err != nil {
		return nil, err
	}
	if existing != nil && !opts.Override {
		s.obsMetrics.RecordSOABuild(ctx, "reused")
		return existing, nil
	}

	student, err := s.academic.FindStudent(ctx, s.db, enrollment.StudentID)
	if err != nil {
		return nil, err
	}
	if student == nil {
		return nil, domain.ErrStudentNotFound
	}
	semester, err := s.academic.FindSemester(ctx, s.db, enrollment.SemesterID)
	if err != nil {
		return nil, err
	}
	if semester == nil {
		return nil, domain.ErrSemesterNotFound
	}

	b, err := s.compute(ctx, enrollment, semester.AcademicYearID, opts)
	if err != nil {
		s.obsMetrics.RecordSOABuild(ctx, "failed")
		return nil, err
	}

	policy := s.policy.Get()
	now := s.clock.Now()

	soa := existing
	if soa == nil {
		soa = &domain.StatementOfAccount{
			ID:           s.genID.Generate(),
			UserID:       student.UserID,
			EnrollmentID: enrollment.ID,
			CreatedAt:    now,
		}
	}
	soa.TotalAmount = b.total().Round(2)
	soa.MinAmount = soa.TotalAmount.Mul(policy.MinAmountPercentage).Div(hundred).Round(2)
	soa.MinAmountDueDate = domain.DueDate(now, policy.MinAmountDueWindow)
	soa.UpdatedAt = now

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if existing == nil {
			if err := s.repo.Insert(ctx, tx, soa); err != nil {
				return err
			}
		} else if err := s.repo.UpdateTotals(ctx, tx, soa); err != nil {
			return err
		}

		if err := s.repo.DeleteGenerated(ctx, tx, soa.ID); err != nil {
			return err
		}

		categories, lines := b.rows(soa.ID, s.genID)
		if err := s.repo.InsertCategories(ctx, tx, categories); err != nil {
			return err
		}
		if err := s.repo.InsertLines(ctx, tx, lines); err != nil {
			return err
		}

		for _, entry := range b.transactions(soa.ID, now) {
			entry.ID = s.genID.Generate()
			if _, err := s.repo.PostTransaction(ctx, tx, &entry); err != nil {
				return err
			}
			s.obsMetrics.RecordLedgerPosting(ctx, entry.SourceType, 1)
		}
		return nil
	})
	if err != nil {
		s.obsMetrics.RecordSOABuild(ctx, "failed")
		log.Error("failed to build statement of account", zap.Error(err))
		return nil, err
	}

	outcome := "created"
	if existing != nil {
		outcome = "rebuilt"
	}
	s.obsMetrics.RecordSOABuild(ctx, outcome)
	log.Info("statement of account built",
		zap.String("soa_id", soa.ID.String()),
		zap.String("outcome", outcome),
		zap.String("total_amount", soa.TotalAmount.StringFixed(2)),
		zap.String("min_amount", soa.MinAmount.StringFixed(2)),
	)
	return soa, nil
}

// compute gathers every charge of the enrollment without writing anything.
func (s *Service) compute(ctx context.Context, enrollment *enrollmentdomain.Enrollment, academicYearID snowflake.ID, opts domain.CreateOptions) (*build, error) {
	classes, err := s.enrollments.ListClasses(ctx, s.db, enrollment.ID)
	if err != nil {
		return nil, err
	}

	b := &build{}
	discountSubjects := make([]feeservice.DiscountSubject, 0, len(classes))

	for _, class := range classes {
		if class.Status == enrollmentdomain.ClassStatusDropped {
			continue
		}
		subject, slot, err := s.effectiveSubject(ctx, class)
		if err != nil {
			return nil, err
		}

		rate := decimal.Zero
		hasRate := false
		professional := false
		categoryRate := ""
		if slot != nil {
			professional = slot.IsProfessional
			categoryRate = slot.CategoryRate
			if slot.TuitionFeeCategoryID != nil {
				tuitionRate, err := s.fees.FindTuitionRate(ctx, s.db, *slot.TuitionFeeCategoryID, academicYearID)
				if err != nil {
					return nil, err
				}
				if tuitionRate != nil {
					rate = tuitionRate.Rate
					hasRate = true
				}
			}
		}

		tuition := feeservice.TuitionFor(*subject, rate)
		b.tuition.Add(professional, tuition, subject.Units)
		b.tuitionLines = append(b.tuitionLines, lineItem{
			description: fmt.Sprintf("%s %s (%d units)", subject.Code, subject.Title, subject.Units),
			value:       tuition,
		})
		discountSubjects = append(discountSubjects, feeservice.DiscountSubject{
			CategoryRate: categoryRate,
			Tuition:      tuition,
			HasRate:      hasRate,
		})

		lab, err := s.fees.FindLaboratoryFee(ctx, s.db, subject.ID, academicYearID)
		if err != nil {
			return nil, err
		}
		if lab != nil && !lab.Amount.IsZero() {
			b.labLines = append(b.labLines, lineItem{
				description: fmt.Sprintf("Laboratory %s", subject.Code),
				value:       lab.Amount,
			})
		}
	}

	var matchedFees []feedomain.Fee
	if enrollment.MiscellaneousFeeSpecificationID != nil {
		fees, err := s.fees.ListSpecificationFees(ctx, s.db, *enrollment.MiscellaneousFeeSpecificationID)
		if err != nil {
			return nil, err
		}
		for _, fee := range fees {
			b.miscLines = append(b.miscLines, lineItem{description: fee.Name, value: fee.Amount})
		}
		matchedFees = append(matchedFees, fees...)
	}
	if enrollment.OtherFeeSpecificationID != nil {
		fees, err := s.fees.ListSpecificationFees(ctx, s.db, *enrollment.OtherFeeSpecificationID)
		if err != nil {
			return nil, err
		}
		for _, fee := range fees {
			b.otherLines = append(b.otherLines, lineItem{description: fee.Name, value: fee.Amount})
		}
		matchedFees = append(matchedFees, fees...)
	}

	discount, err := s.enrollmentDiscount(ctx, enrollment.ID)
	if err != nil {
		return nil, err
	}
	if discount != nil {
		b.discount = feeservice.ComputeDiscount(feeservice.DiscountInput{
			Discount:  discount,
			AutoApply: opts.DiscountAutoApply,
			Subjects:  discountSubjects,
			Fees:      matchedFees,
		})
	}
	return b, nil
}

// effectiveSubject resolves the subject billed for a class: the curriculum
// slot's subject, else the recorded equivalent, else the class's own subject.
func (s *Service) effectiveSubject(ctx context.Context, class enrollmentdomain.EnrolledClass) (*academicdomain.Subject, *academicdomain.CurriculumSubject, error) {
	var slot *academicdomain.CurriculumSubject
	var subjectID snowflake.ID

	if class.CurriculumSubjectID != nil {
		found, err := s.academic.FindCurriculumSubject(ctx, s.db, *class.CurriculumSubjectID)
		if err != nil {
			return nil, nil, err
		}
		if found != nil {
			slot = found
			subjectID = found.SubjectID
		}
	}
	if subjectID == 0 && class.EquivalentSubjectID != nil {
		subjectID = *class.EquivalentSubjectID
	}
	if subjectID == 0 {
		offered, err := s.academic.FindClass(ctx, s.db, class.ClassID)
		if err != nil {
			return nil, nil, err
		}
		if offered == nil {
			return nil, nil, domain.ErrSubjectNotFound
		}
		subjectID = offered.SubjectID
	}

	subject, err := s.academic.FindSubject(ctx, s.db, subjectID)
	if err != nil {
		return nil, nil, err
	}
	if subject == nil {
		return nil, nil, domain.ErrSubjectNotFound
	}
	return subject, slot, nil
}

func (s *Service) enrollmentDiscount(ctx context.Context, enrollmentID snowflake.ID) (*feedomain.Discount, error) {
	record, err := s.enrollments.FindDiscount(ctx, s.db, enrollmentID)
	if err != nil || record == nil || record.DiscountID == nil {
		return nil, err
	}
	return s.fees.FindDiscount(ctx, s.db, *record.DiscountID)
}

// Get returns the statement with its categories, lines and ledger.
func (s *Service) Get(ctx context.Context, soaID snowflake.ID) (*domain.Statement, error) {
	soa, err := s.repo.FindByID(ctx, s.db, soaID)
	if err != nil {
		return nil, err
	}
	if soa == nil {
		return nil, domain.ErrStatementNotFound
	}
	categories, err := s.repo.ListCategories(ctx, s.db, soaID)
	if err != nil {
		return nil, err
	}
	lines, err := s.repo.ListLines(ctx, s.db, soaID)
	if err != nil {
		return nil, err
	}
	transactions, err := s.repo.ListTransactions(ctx, s.db, soaID)
	if err != nil {
		return nil, err
	}
	return &domain.Statement{
		StatementOfAccount: *soa,
		Categories:         categories,
		Lines:              lines,
		Transactions:       transactions,
	}, nil
}

func (s *Service) GetByEnrollment(ctx context.Context, enrollmentID snowflake.ID) (*domain.StatementOfAccount, error) {
	soa, err := s.repo.FindByEnrollment(ctx, s.db, enrollmentID)
	if err != nil {
		return nil, err
	}
	if soa == nil {
		return nil, domain.ErrStatementNotFound
	}
	return soa, nil
}

// LatestForStudent returns the student's most recent statement on db.
func (s *Service) LatestForStudent(ctx context.Context, db *gorm.DB, studentID snowflake.ID) (*domain.StatementOfAccount, error) {
	soa, err := s.repo.FindLatestByStudent(ctx, db, studentID)
	if err != nil {
		return nil, err
	}
	if soa == nil {
		return nil, domain.ErrStatementNotFound
	}
	return soa, nil
}

func (s *Service) GetStatement(ctx context.Context, soaID snowflake.ID) (*domain.StatementOfAccount, error) {
	soa, err := s.repo.FindByID(ctx, s.db, soaID)
	if err != nil {
		return nil, err
	}
	if soa == nil {
		return nil, domain.ErrStatementNotFound
	}
	return soa, nil
}

// Balance reports what has been paid against the statement. Successful but
// unsettled payments reduce the remaining balance before their settlement
// credit is posted to the ledger.
func (s *Service) Balance(ctx context.Context, soaID snowflake.ID) (*domain.Balance, error) {
	return s.BalanceTx(ctx, s.db, soaID)
}

func (s *Service) BalanceTx(ctx context.Context, db *gorm.DB, soaID snowflake.ID) (*domain.Balance, error) {
	soa, err := s.repo.FindByID(ctx, db, soaID)
	if err != nil {
		return nil, err
	}
	if soa == nil {
		return nil, domain.ErrStatementNotFound
	}
	ledger, err := s.repo.SumTransactions(ctx, db, soaID)
	if err != nil {
		return nil, err
	}
	payments, err := s.repo.SumPayments(ctx, db, soaID)
	if err != nil {
		return nil, err
	}

	minDue := soa.MinAmount.Sub(payments.Paid)
	if minDue.IsNegative() {
		minDue = decimal.Zero
	}
	return &domain.Balance{
		TotalAmount:      soa.TotalAmount,
		PaidAmount:       payments.Paid,
		SettledAmount:    payments.Settled,
		RemainingBalance: ledger.Sub(payments.SuccessfulPending).Round(2),
		MinAmountDue:     minDue.Round(2),
	}, nil
}

// Post records a ledger entry once per (statement, source type, source id).
// db may be a caller transaction.
func (s *Service) Post(ctx context.Context, db *gorm.DB, entry domain.AccountTransaction) (bool, error) {
	if entry.SOAID == 0 || entry.SourceType == "" || entry.Amount.IsZero() {
		return false, domain.ErrInvalidTransaction
	}
	for _, src := range domain.BuilderSources() {
		if entry.SourceType == src {
			return false, domain.ErrInvalidTransaction
		}
	}
	if db == nil {
		db = s.db
	}
	if entry.ID == 0 {
		entry.ID = s.genID.Generate()
	}
	if entry.PostedAt.IsZero() {
		entry.PostedAt = s.clock.Now()
	}
	entry.Amount = entry.Amount.Round(2)

	posted, err := s.repo.PostTransaction(ctx, db, &entry)
	if err != nil {
		return false, err
	}
	if posted {
		s.obsMetrics.RecordLedgerPosting(ctx, entry.SourceType, 1)
	}
	return posted, nil
}
