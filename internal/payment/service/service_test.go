package service_test

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	academicrepo "github.com/smallbiznis/registrar/internal/academic/repository"
	"github.com/smallbiznis/registrar/internal/clock"
	"github.com/smallbiznis/registrar/internal/config"
	enrollmentrepo "github.com/smallbiznis/registrar/internal/enrollment/repository"
	"github.com/smallbiznis/registrar/internal/events"
	feerepo "github.com/smallbiznis/registrar/internal/fee/repository"
	"github.com/smallbiznis/registrar/internal/payment/adapters"
	"github.com/smallbiznis/registrar/internal/payment/adapters/bukas"
	"github.com/smallbiznis/registrar/internal/payment/adapters/cashier"
	"github.com/smallbiznis/registrar/internal/payment/adapters/dragonpay"
	"github.com/smallbiznis/registrar/internal/payment/adapters/otc"
	"github.com/smallbiznis/registrar/internal/payment/domain"
	"github.com/smallbiznis/registrar/internal/payment/repository"
	"github.com/smallbiznis/registrar/internal/payment/service"
	soadomain "github.com/smallbiznis/registrar/internal/soa/domain"
	soarepo "github.com/smallbiznis/registrar/internal/soa/repository"
	soaservice "github.com/smallbiznis/registrar/internal/soa/service"
	"github.com/smallbiznis/registrar/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const dragonpayPassword = "s3cret"

type recordingCompleter struct {
	calls []snowflake.ID
}

func (c *recordingCompleter) CompleteIfPaid(ctx context.Context, enrollmentID snowflake.ID) (bool, error) {
	c.calls = append(c.calls, enrollmentID)
	return true, nil
}

type harness struct {
	db        *gorm.DB
	node      *snowflake.Node
	clk       *clock.FakeClock
	svc       *service.Service
	completer *recordingCompleter
	fixture   *testutil.Fixture
	soa       *soadomain.StatementOfAccount
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	clk := clock.NewFakeClock(time.Date(2024, 8, 5, 9, 0, 0, 0, time.UTC))
	policy := config.NewStaticPolicyHolder(config.DefaultFeePolicy())
	log := zap.NewNop()

	soaSvc := soaservice.NewService(soaservice.Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       clk,
		Policy:      policy,
		Repo:        soarepo.Provide(),
		Academic:    academicrepo.Provide(),
		Fees:        feerepo.Provide(),
		Enrollments: enrollmentrepo.Provide(),
	})
	completer := &recordingCompleter{}
	registry := adapters.NewRegistry(
		dragonpay.New(config.DragonpayConfig{MerchantID: "UNIV", MerchantPassword: dragonpayPassword, PaymentURL: "https://test.dragonpay.ph/Pay.aspx"}),
		bukas.New(config.BukasConfig{}),
		otc.New(),
		cashier.New(),
	)
	svc := service.NewService(service.Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       clk,
		Policy:      policy,
		Repo:        repository.Provide(),
		Adapters:    registry,
		SOA:         soaSvc,
		Academic:    academicrepo.Provide(),
		Enrollments: enrollmentrepo.Provide(),
		Outbox:      events.NewOutbox(events.OutboxParams{DB: db, GenID: node, Clock: clk}),
		Completer:   completer,
	})

	f := testutil.Seed(t, db, node, testutil.SeedOptions{Now: clk.Now()})
	soa, err := soaSvc.Create(context.Background(), f.Enrollment.ID, soadomain.CreateOptions{})
	require.NoError(t, err)

	return &harness{db: db, node: node, clk: clk, svc: svc, completer: completer, fixture: f, soa: soa}
}

func (h *harness) outboxCount(t *testing.T, eventType string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, h.db.Model(&events.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error)
	return count
}

func TestCreateRejectsAmountBelowMinimumDue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Create(ctx, h.soa.ID, "cashier", map[string]string{"amount": "1000"})
	assert.ErrorIs(t, err, domain.ErrAmountBelowMinimum)

	_, err = h.svc.Create(ctx, h.soa.ID, "cashier", map[string]string{"amount": "-5"})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = h.svc.Create(ctx, h.soa.ID, "paypal", map[string]string{"amount": "2000"})
	assert.ErrorIs(t, err, domain.ErrInvalidGateway)

	_, err = h.svc.Create(ctx, h.node.Generate(), "cashier", map[string]string{"amount": "2000"})
	assert.ErrorIs(t, err, domain.ErrStatementNotFound)
}

func TestCreateReusesPendingReference(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.svc.Create(ctx, h.soa.ID, "otc", map[string]string{"amount": "1575", "bank": "bdo"})
	require.NoError(t, err)
	require.NotNil(t, first.ExpiresAt)
	assert.True(t, first.ExpiresAt.Equal(h.clk.Now().Add(72*time.Hour)))

	second, err := h.svc.Create(ctx, h.soa.ID, "otc", map[string]string{"amount": "1575"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	other, err := h.svc.Create(ctx, h.soa.ID, "cashier", map[string]string{"amount": "1575"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)

	listed, err := h.svc.ListBySOA(ctx, h.soa.ID)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestDragonpayChannelMustExist(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Create(ctx, h.soa.ID, "dragonpay", map[string]string{"amount": "2000", "proc_id": "NOPE"})
	assert.ErrorIs(t, err, domain.ErrInvalidChannel)

	require.NoError(t, h.db.Create(&domain.Channel{
		ID:              h.node.Generate(),
		ProcID:          "GCSH",
		Name:            "GCash",
		AddonFixed:      decimal.NewFromInt(25),
		AddonPercentage: decimal.NewFromInt(2),
		Active:          true,
	}).Error)

	tx, err := h.svc.Create(ctx, h.soa.ID, "dragonpay", map[string]string{"amount": "2000", "proc_id": "GCSH"})
	require.NoError(t, err)
	assert.True(t, tx.Fee.IsPositive())
	assert.Nil(t, tx.ExpiresAt)
}

func TestDragonpayCallbackReportsOnlyChanges(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tx, err := h.svc.Create(ctx, h.soa.ID, "dragonpay", map[string]string{"amount": "2000"})
	require.NoError(t, err)

	data := map[string]string{
		"txnid":   tx.TxnID,
		"refno":   "REF1",
		"status":  "S",
		"message": "ok",
		"digest":  dragonpay.Digest(tx.TxnID, "REF1", "S", "ok", dragonpayPassword),
	}
	status, err := h.svc.DragonpayCallback(ctx, data)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, domain.StatusSuccess, *status)

	status, err = h.svc.DragonpayCallback(ctx, data)
	require.NoError(t, err)
	assert.Nil(t, status)

	assert.Equal(t, int64(1), h.outboxCount(t, events.EventPaymentSuccess))
	assert.Equal(t, []snowflake.ID{h.fixture.Enrollment.ID}, h.completer.calls)

	stored, err := h.svc.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, "REF1", stored.ReferenceNumber)
}

func TestCallbackForUnknownTransaction(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.DragonpayCallback(context.Background(), map[string]string{"txnid": "missing"})
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)

	body := base64.StdEncoding.EncodeToString([]byte(`{"reference_code":"missing","status":"paid"}`))
	_, err = h.svc.BukasWebhook(context.Background(), []byte(body))
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestCashierConfirmAndVoid(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tx, err := h.svc.Create(ctx, h.soa.ID, "cashier", map[string]string{"amount": "2000"})
	require.NoError(t, err)

	status, err := h.svc.Confirm(ctx, tx.ID, "OR-1", "cashier-1")
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, domain.StatusSuccess, *status)
	assert.Len(t, h.completer.calls, 1)

	status, err = h.svc.Void(ctx, tx.ID, "duplicate", "cashier-1")
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, domain.StatusVoided, *status)

	_, err = h.svc.Void(ctx, tx.ID, "duplicate", "cashier-1")
	assert.ErrorIs(t, err, domain.ErrAlreadyVoided)

	otcTx, err := h.svc.Create(ctx, h.soa.ID, "otc", map[string]string{"amount": "2000"})
	require.NoError(t, err)
	_, err = h.svc.Confirm(ctx, otcTx.ID, "OR-2", "cashier-1")
	assert.ErrorIs(t, err, domain.ErrUnsupportedTransaction)
}

func TestExpireReferences(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tx, err := h.svc.Create(ctx, h.soa.ID, "otc", map[string]string{"amount": "2000"})
	require.NoError(t, err)

	count, err := h.svc.ExpireReferences(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, count)

	h.clk.Advance(73 * time.Hour)
	count, err = h.svc.ExpireReferences(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	stored, err := h.svc.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)

	next, err := h.svc.Create(ctx, h.soa.ID, "otc", map[string]string{"amount": "2000"})
	require.NoError(t, err)
	assert.NotEqual(t, tx.ID, next.ID)
}

func TestSettleMarksTransaction(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tx, err := h.svc.Create(ctx, h.soa.ID, "otc", map[string]string{"amount": "2000"})
	require.NoError(t, err)

	at := h.clk.Now()
	require.NoError(t, h.db.Transaction(func(db *gorm.DB) error {
		locked, err := h.svc.Repository().LockByID(ctx, db, tx.ID)
		if err != nil {
			return err
		}
		return h.svc.Settle(ctx, db, locked, "JV-0001", at)
	}))

	stored, err := h.svc.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSettled, stored.Status)
	assert.Equal(t, "JV-0001", stored.JVNumber)
	require.NotNil(t, stored.SettledAt)
	assert.True(t, stored.IsSuccessful())
	assert.Equal(t, int64(1), h.outboxCount(t, events.EventPaymentSettled))
}
