package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	academicrepo "github.com/smallbiznis/registrar/internal/academic/repository"
	"github.com/smallbiznis/registrar/internal/clock"
	"github.com/smallbiznis/registrar/internal/config"
	enrollmentdomain "github.com/smallbiznis/registrar/internal/enrollment/domain"
	enrollmentrepo "github.com/smallbiznis/registrar/internal/enrollment/repository"
	feedomain "github.com/smallbiznis/registrar/internal/fee/domain"
	feerepo "github.com/smallbiznis/registrar/internal/fee/repository"
	paymentdomain "github.com/smallbiznis/registrar/internal/payment/domain"
	"github.com/smallbiznis/registrar/internal/soa/domain"
	"github.com/smallbiznis/registrar/internal/soa/repository"
	"github.com/smallbiznis/registrar/internal/soa/service"
	"github.com/smallbiznis/registrar/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type harness struct {
	db   *gorm.DB
	node *snowflake.Node
	clk  *clock.FakeClock
	svc  *service.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	clk := clock.NewFakeClock(time.Date(2024, 8, 5, 9, 0, 0, 0, time.UTC))
	svc := service.NewService(service.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clk,
		Policy:      config.NewStaticPolicyHolder(config.DefaultFeePolicy()),
		Repo:        repository.Provide(),
		Academic:    academicrepo.Provide(),
		Fees:        feerepo.Provide(),
		Enrollments: enrollmentrepo.Provide(),
	})
	return &harness{db: db, node: node, clk: clk, svc: svc}
}

func money(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestCreateTuitionOnlyStatement(t *testing.T) {
	h := newHarness(t)
	f := testutil.Seed(t, h.db, h.node, testutil.SeedOptions{Now: h.clk.Now()})
	ctx := context.Background()

	soa, err := h.svc.Create(ctx, f.Enrollment.ID, domain.CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "4500.00", soa.TotalAmount.StringFixed(2))
	assert.Equal(t, "1575.00", soa.MinAmount.StringFixed(2))
	assert.Equal(t, f.Student.UserID, soa.UserID)
	assert.True(t, soa.MinAmountDueDate.Equal(h.clk.Now().Add(365*24*time.Hour)))

	statement, err := h.svc.Get(ctx, soa.ID)
	require.NoError(t, err)
	require.Len(t, statement.Transactions, 1)
	assert.Equal(t, "4500.00", statement.Transactions[0].Amount.StringFixed(2))
	assert.Equal(t, domain.SourceTuitionGeneral, statement.Transactions[0].SourceType)
	require.Len(t, statement.Categories, 1)
	assert.Equal(t, "Tuition Fee", statement.Categories[0].Name)
	require.Len(t, statement.Lines, 1)
	assert.Equal(t, "IT101 Introduction to Computing (3 units)", statement.Lines[0].Description)
}

func TestCreateReturnsExistingStatementWithoutOverride(t *testing.T) {
	h := newHarness(t)
	f := testutil.Seed(t, h.db, h.node, testutil.SeedOptions{Now: h.clk.Now()})
	ctx := context.Background()

	first, err := h.svc.Create(ctx, f.Enrollment.ID, domain.CreateOptions{})
	require.NoError(t, err)

	require.NoError(t, h.db.Model(&feedomain.TuitionFeeRate{}).
		Where("tuition_fee_category_id = ?", f.TuitionCategory.ID).
		Update("rate", money("2000")).Error)

	second, err := h.svc.Create(ctx, f.Enrollment.ID, domain.CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "4500.00", second.TotalAmount.StringFixed(2))

	rebuilt, err := h.svc.Create(ctx, f.Enrollment.ID, domain.CreateOptions{Override: true})
	require.NoError(t, err)
	assert.Equal(t, first.ID, rebuilt.ID)
	assert.Equal(t, "6000.00", rebuilt.TotalAmount.StringFixed(2))
}

func TestRebuildIsIdempotent(t *testing.T) {
	h := newHarness(t)
	f := testutil.Seed(t, h.db, h.node, testutil.SeedOptions{Now: h.clk.Now()})
	seedFeesAndDiscount(t, h, f)
	ctx := context.Background()

	first, err := h.svc.Create(ctx, f.Enrollment.ID, domain.CreateOptions{Override: true})
	require.NoError(t, err)
	before, err := h.svc.Get(ctx, first.ID)
	require.NoError(t, err)

	h.clk.Advance(time.Hour)
	second, err := h.svc.Create(ctx, f.Enrollment.ID, domain.CreateOptions{Override: true})
	require.NoError(t, err)
	after, err := h.svc.Get(ctx, second.ID)
	require.NoError(t, err)

	assert.Equal(t, first.TotalAmount.StringFixed(2), second.TotalAmount.StringFixed(2))
	assert.Equal(t, first.MinAmount.StringFixed(2), second.MinAmount.StringFixed(2))
	assert.ElementsMatch(t, lineSet(before.Lines), lineSet(after.Lines))
	assert.Len(t, after.Transactions, len(before.Transactions))
	assert.Len(t, after.Categories, len(before.Categories))
}

func TestLedgerBalancesAgainstTotal(t *testing.T) {
	h := newHarness(t)
	f := testutil.Seed(t, h.db, h.node, testutil.SeedOptions{Now: h.clk.Now()})
	seedFeesAndDiscount(t, h, f)
	ctx := context.Background()

	soa, err := h.svc.Create(ctx, f.Enrollment.ID, domain.CreateOptions{})
	require.NoError(t, err)
	// 4500 tuition + 500 laboratory + 1200 miscellaneous
	assert.Equal(t, "6200.00", soa.TotalAmount.StringFixed(2))
	assert.Equal(t, "2170.00", soa.MinAmount.StringFixed(2))

	statement, err := h.svc.Get(ctx, soa.ID)
	require.NoError(t, err)

	charges, all := decimal.Zero, decimal.Zero
	bySource := map[string]string{}
	for _, tx := range statement.Transactions {
		if tx.Amount.IsPositive() {
			charges = charges.Add(tx.Amount)
		}
		all = all.Add(tx.Amount)
		bySource[tx.SourceType] = tx.Amount.StringFixed(2)
	}
	assert.Equal(t, soa.TotalAmount.StringFixed(2), charges.StringFixed(2))
	assert.Equal(t, map[string]string{
		domain.SourceTuitionGeneral:    "4500.00",
		domain.SourceLaboratoryFees:    "500.00",
		domain.SourceMiscellaneousFees: "1200.00",
		// 10% of 4500 tuition + 1000 non-exempt fee
		domain.SourceDiscount: "-550.00",
	}, bySource)

	balance, err := h.svc.Balance(ctx, soa.ID)
	require.NoError(t, err)
	assert.Equal(t, all.StringFixed(2), balance.RemainingBalance.StringFixed(2))
	assert.Equal(t, "2170.00", balance.MinAmountDue.StringFixed(2))
}

func TestProfessionalTuitionIsPostedSeparately(t *testing.T) {
	h := newHarness(t)
	f := testutil.Seed(t, h.db, h.node, testutil.SeedOptions{Now: h.clk.Now(), Professional: true})
	ctx := context.Background()

	soa, err := h.svc.Create(ctx, f.Enrollment.ID, domain.CreateOptions{})
	require.NoError(t, err)
	statement, err := h.svc.Get(ctx, soa.ID)
	require.NoError(t, err)
	require.Len(t, statement.Transactions, 1)
	assert.Equal(t, domain.SourceTuitionProfessional, statement.Transactions[0].SourceType)
	assert.Equal(t, "Tuition Fee (Professional)", statement.Transactions[0].Description)
}

func TestBalanceCountsSuccessfulPayments(t *testing.T) {
	h := newHarness(t)
	f := testutil.Seed(t, h.db, h.node, testutil.SeedOptions{Now: h.clk.Now()})
	ctx := context.Background()

	soa, err := h.svc.Create(ctx, f.Enrollment.ID, domain.CreateOptions{})
	require.NoError(t, err)

	payment := &paymentdomain.Transaction{
		ID:          h.node.Generate(),
		SOAID:       soa.ID,
		Gateway:     paymentdomain.GatewayCashier,
		Status:      paymentdomain.StatusSuccess,
		Amount:      money("2000"),
		TotalAmount: money("2000"),
		TxnID:       "CSH-TEST",
		CreatedAt:   h.clk.Now(),
		UpdatedAt:   h.clk.Now(),
	}
	require.NoError(t, h.db.Create(payment).Error)

	balance, err := h.svc.Balance(ctx, soa.ID)
	require.NoError(t, err)
	assert.Equal(t, "2000.00", balance.PaidAmount.StringFixed(2))
	assert.Equal(t, "0.00", balance.SettledAmount.StringFixed(2))
	assert.True(t, balance.MinAmountDue.IsZero())
	assert.Equal(t, "2500.00", balance.RemainingBalance.StringFixed(2))
}

func TestPostIsIdempotentAndRejectsBuilderSources(t *testing.T) {
	h := newHarness(t)
	f := testutil.Seed(t, h.db, h.node, testutil.SeedOptions{Now: h.clk.Now()})
	ctx := context.Background()

	soa, err := h.svc.Create(ctx, f.Enrollment.ID, domain.CreateOptions{})
	require.NoError(t, err)

	_, err = h.svc.Post(ctx, nil, domain.AccountTransaction{
		SOAID:      soa.ID,
		Amount:     money("-100"),
		SourceType: domain.SourceDiscount,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTransaction)

	sourceID := h.node.Generate()
	entry := domain.AccountTransaction{
		SOAID:       soa.ID,
		Amount:      money("-1000"),
		Description: "Payment (Cashier)",
		SourceType:  domain.SourcePaymentSettlement,
		SourceID:    &sourceID,
		JVNumber:    "JV-1",
	}
	posted, err := h.svc.Post(ctx, nil, entry)
	require.NoError(t, err)
	assert.True(t, posted)
	posted, err = h.svc.Post(ctx, nil, entry)
	require.NoError(t, err)
	assert.False(t, posted)

	// A rebuild keeps postings it did not generate.
	_, err = h.svc.Create(ctx, f.Enrollment.ID, domain.CreateOptions{Override: true})
	require.NoError(t, err)
	statement, err := h.svc.Get(ctx, soa.ID)
	require.NoError(t, err)
	assert.Len(t, statement.Transactions, 2)
}

func TestRebuildKeepsPostedAdjustmentsOutOfTotal(t *testing.T) {
	h := newHarness(t)
	f := testutil.Seed(t, h.db, h.node, testutil.SeedOptions{Now: h.clk.Now()})
	ctx := context.Background()

	soa, err := h.svc.Create(ctx, f.Enrollment.ID, domain.CreateOptions{})
	require.NoError(t, err)
	total := soa.TotalAmount.StringFixed(2)

	sourceID := h.node.Generate()
	posted, err := h.svc.Post(ctx, nil, domain.AccountTransaction{
		SOAID:       soa.ID,
		Amount:      money("250"),
		Description: "Late registration",
		SourceType:  domain.SourceJournalVoucher,
		SourceID:    &sourceID,
		JVNumber:    "JV-250",
	})
	require.NoError(t, err)
	require.True(t, posted)

	rebuilt, err := h.svc.Create(ctx, f.Enrollment.ID, domain.CreateOptions{Override: true})
	require.NoError(t, err)
	assert.Equal(t, total, rebuilt.TotalAmount.StringFixed(2))

	statement, err := h.svc.Get(ctx, soa.ID)
	require.NoError(t, err)

	builderCharges, all := decimal.Zero, decimal.Zero
	var voucher *domain.AccountTransaction
	for i, tx := range statement.Transactions {
		all = all.Add(tx.Amount)
		if tx.SourceType == domain.SourceJournalVoucher {
			voucher = &statement.Transactions[i]
			continue
		}
		if tx.Amount.IsPositive() {
			builderCharges = builderCharges.Add(tx.Amount)
		}
	}
	require.NotNil(t, voucher)
	assert.Equal(t, "250.00", voucher.Amount.StringFixed(2))
	assert.Equal(t, total, builderCharges.StringFixed(2))

	balance, err := h.svc.Balance(ctx, soa.ID)
	require.NoError(t, err)
	assert.Equal(t, all.StringFixed(2), balance.RemainingBalance.StringFixed(2))
	assert.Equal(t, rebuilt.TotalAmount.Add(money("250")).StringFixed(2), balance.RemainingBalance.StringFixed(2))
}

func TestCreateUnknownEnrollment(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Create(context.Background(), h.node.Generate(), domain.CreateOptions{})
	assert.ErrorIs(t, err, domain.ErrEnrollmentNotFound)
}

type lineKey struct {
	Description string
	Value       string
}

func lineSet(lines []domain.Line) []lineKey {
	out := make([]lineKey, 0, len(lines))
	for _, line := range lines {
		out = append(out, lineKey{line.Description, line.Value.StringFixed(2)})
	}
	return out
}

// seedFeesAndDiscount adds a 500 laboratory fee, a miscellaneous set of
// 1000 + 200 and a validated 10% normal discount exempting the 200 fee.
func seedFeesAndDiscount(t *testing.T, h *harness, f *testutil.Fixture) {
	t.Helper()
	registration := feedomain.Fee{ID: h.node.Generate(), AcademicYearID: f.AcademicYear.ID, Name: "Registration", Amount: money("1000")}
	library := feedomain.Fee{ID: h.node.Generate(), AcademicYearID: f.AcademicYear.ID, Name: "Library", Amount: money("200")}
	units := 30
	spec := feedomain.FeeSpecification{
		ID:             h.node.Generate(),
		Kind:           feedomain.KindMiscellaneous,
		AcademicYearID: f.AcademicYear.ID,
		YearLevelFrom:  1,
		YearLevelTo:    4,
		SemesterFrom:   1,
		SemesterTo:     3,
		TotalUnitFrom:  new(int),
		TotalUnitTo:    &units,
	}
	discount := feedomain.Discount{
		ID:                    h.node.Generate(),
		Name:                  "Academic Excellence",
		Type:                  feedomain.DiscountTypeNormal,
		Percentage:            money("10"),
		FeeExemptions:         pq.Int64Array{int64(library.ID)},
		CategoryRateExemption: pq.StringArray{"Professional"},
	}
	rows := []any{
		&registration,
		&library,
		&spec,
		&feedomain.FeeSpecificationFee{FeeSpecificationID: spec.ID, FeeID: registration.ID},
		&feedomain.FeeSpecificationFee{FeeSpecificationID: spec.ID, FeeID: library.ID},
		&feedomain.LaboratoryFee{ID: h.node.Generate(), SubjectID: f.Subject.ID, AcademicYearID: f.AcademicYear.ID, Amount: money("500")},
		&discount,
		&enrollmentdomain.EnrollmentDiscount{EnrollmentID: f.Enrollment.ID, DiscountID: &discount.ID, Validated: true, UpdatedAt: h.clk.Now()},
	}
	for _, row := range rows {
		require.NoError(t, h.db.Create(row).Error)
	}
	require.NoError(t, h.db.Model(&enrollmentdomain.Enrollment{}).
		Where("id = ?", f.Enrollment.ID).
		Update("miscellaneous_fee_specification_id", spec.ID).Error)
}
