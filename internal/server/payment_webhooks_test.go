package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	academicrepo "github.com/smallbiznis/registrar/internal/academic/repository"
	"github.com/smallbiznis/registrar/internal/clock"
	"github.com/smallbiznis/registrar/internal/config"
	enrollmentrepo "github.com/smallbiznis/registrar/internal/enrollment/repository"
	"github.com/smallbiznis/registrar/internal/events"
	feerepo "github.com/smallbiznis/registrar/internal/fee/repository"
	obsmiddleware "github.com/smallbiznis/registrar/internal/observability/logger"
	"github.com/smallbiznis/registrar/internal/payment/adapters"
	"github.com/smallbiznis/registrar/internal/payment/adapters/bukas"
	"github.com/smallbiznis/registrar/internal/payment/adapters/cashier"
	"github.com/smallbiznis/registrar/internal/payment/adapters/dragonpay"
	"github.com/smallbiznis/registrar/internal/payment/adapters/otc"
	paymentdomain "github.com/smallbiznis/registrar/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/registrar/internal/payment/repository"
	paymentservice "github.com/smallbiznis/registrar/internal/payment/service"
	soadomain "github.com/smallbiznis/registrar/internal/soa/domain"
	soarepo "github.com/smallbiznis/registrar/internal/soa/repository"
	soaservice "github.com/smallbiznis/registrar/internal/soa/service"
	"github.com/smallbiznis/registrar/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const webhookPassword = "s3cret"

type webhookFixture struct {
	engine *gin.Engine
	db     *gorm.DB
	node   *snowflake.Node
	svc    *paymentservice.Service
	fix    *testutil.Fixture
	soa    *soadomain.StatementOfAccount
}

func setupWebhookServer(t *testing.T) webhookFixture {
	t.Helper()
	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	clk := clock.NewFakeClock(time.Date(2024, 8, 5, 9, 0, 0, 0, time.UTC))
	policy := config.NewStaticPolicyHolder(config.DefaultFeePolicy())

	soaSvc := soaservice.NewService(soaservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clk,
		Policy:      policy,
		Repo:        soarepo.Provide(),
		Academic:    academicrepo.Provide(),
		Fees:        feerepo.Provide(),
		Enrollments: enrollmentrepo.Provide(),
	})
	svc := paymentservice.NewService(paymentservice.Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clk,
		Policy: policy,
		Repo:   paymentrepo.Provide(),
		Adapters: adapters.NewRegistry(
			dragonpay.New(config.DragonpayConfig{MerchantID: "UNIV", MerchantPassword: webhookPassword, PaymentURL: "https://test.dragonpay.ph/Pay.aspx"}),
			bukas.New(config.BukasConfig{}),
			otc.New(),
			cashier.New(),
		),
		SOA:         soaSvc,
		Academic:    academicrepo.Provide(),
		Enrollments: enrollmentrepo.Provide(),
		Outbox:      events.NewOutbox(events.OutboxParams{DB: db, GenID: node, Clock: clk}),
	})

	fix := testutil.Seed(t, db, node, testutil.SeedOptions{Now: clk.Now()})
	soa, err := soaSvc.Create(context.Background(), fix.Enrollment.ID, soadomain.CreateOptions{})
	require.NoError(t, err)

	engine := gin.New()
	engine.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{ErrorClassifier: classifyErrorForLog}))
	engine.Use(ErrorHandlingMiddleware())

	s := &Server{engine: engine, log: zap.NewNop(), paymentSvc: svc}
	webhooks := engine.Group("/webhooks")
	webhooks.POST("/dragonpay", s.DragonpayPostback)
	webhooks.GET("/dragonpay/return", s.DragonpayReturn)
	webhooks.POST("/bukas", s.BukasWebhook)

	return webhookFixture{engine: engine, db: db, node: node, svc: svc, fix: fix, soa: soa}
}

func dragonpayValues(txnID, code string) url.Values {
	return url.Values{
		"txnid":   {txnID},
		"refno":   {"REF1"},
		"status":  {code},
		"message": {"ok"},
		"digest":  {dragonpay.Digest(txnID, "REF1", code, "ok", webhookPassword)},
	}
}

func postForm(engine *gin.Engine, path string, values url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestDragonpayPostbackAcknowledgesRepeatedDelivery(t *testing.T) {
	f := setupWebhookServer(t)
	ctx := context.Background()
	tx, err := f.svc.Create(ctx, f.soa.ID, "dragonpay", map[string]string{"amount": "2000"})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		rec := postForm(f.engine, "/webhooks/dragonpay", dragonpayValues(tx.TxnID, "S"))
		require.Equal(t, http.StatusOK, rec.Code, "delivery %d", i+1)
		assert.Equal(t, "result=OK", rec.Body.String())
	}

	// a late pending postback must not undo the payment
	rec := postForm(f.engine, "/webhooks/dragonpay", dragonpayValues(tx.TxnID, "P"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "result=OK", rec.Body.String())

	stored, err := f.svc.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusSuccess, stored.Status)
}

func TestDragonpayPostbackAcknowledgesUnknownTransaction(t *testing.T) {
	f := setupWebhookServer(t)
	rec := postForm(f.engine, "/webhooks/dragonpay", dragonpayValues("missing", "S"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "result=OK", rec.Body.String())
}

func TestDragonpayReturnAfterPostbackReportsStoredStatus(t *testing.T) {
	f := setupWebhookServer(t)
	tx, err := f.svc.Create(context.Background(), f.soa.ID, "dragonpay", map[string]string{"amount": "2000"})
	require.NoError(t, err)

	rec := postForm(f.engine, "/webhooks/dragonpay", dragonpayValues(tx.TxnID, "S"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(f.engine, http.MethodGet, "/webhooks/dragonpay/return?"+dragonpayValues(tx.TxnID, "S").Encode(), "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		TxnID  string `json:"txnid"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, tx.TxnID, resp.TxnID)
	assert.Equal(t, string(paymentdomain.StatusSuccess), resp.Status)
}

func TestDragonpayReturnRejectsBadDigest(t *testing.T) {
	f := setupWebhookServer(t)
	tx, err := f.svc.Create(context.Background(), f.soa.ID, "dragonpay", map[string]string{"amount": "2000"})
	require.NoError(t, err)

	values := dragonpayValues(tx.TxnID, "S")
	values.Set("digest", "0000")
	rec := doRequest(f.engine, http.MethodGet, "/webhooks/dragonpay/return?"+values.Encode(), "", "")
	assert.NotEqual(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, http.StatusInternalServerError, rec.Code)
}

func TestBukasWebhookAcknowledgesRepeatedDelivery(t *testing.T) {
	f := setupWebhookServer(t)
	ctx := context.Background()

	tx := &paymentdomain.Transaction{
		ID:          f.node.Generate(),
		SOAID:       f.soa.ID,
		Gateway:     paymentdomain.GatewayBukas,
		Status:      paymentdomain.StatusPending,
		Amount:      decimal.NewFromInt(2000),
		TotalAmount: decimal.NewFromInt(2000),
		TxnID:       "BK-REF-1",
	}
	require.NoError(t, tx.SetDetails(paymentdomain.BukasDetails{StudentIDNumber: f.fix.Student.IDNumber, ReferenceCode: "BK-REF-1"}))
	require.NoError(t, paymentrepo.Provide().Insert(ctx, f.db, tx))

	body := base64.StdEncoding.EncodeToString([]byte(`{"student_id_number":"` + f.fix.Student.IDNumber +
		`","status":"paid","transaction_id":"BK-1","reference_code":"BK-REF-1","amount":"2000.00"}`))

	for i := 0; i < 2; i++ {
		rec := doRequest(f.engine, http.MethodPost, "/webhooks/bukas", "", body)
		require.Equal(t, http.StatusOK, rec.Code, "delivery %d", i+1)

		var resp struct {
			Status        string `json:"status"`
			PaymentStatus string `json:"payment_status"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, string(paymentdomain.StatusSuccess), resp.PaymentStatus)
	}
}

func TestBukasWebhookRejectsAmountMismatch(t *testing.T) {
	f := setupWebhookServer(t)
	ctx := context.Background()

	tx := &paymentdomain.Transaction{
		ID:          f.node.Generate(),
		SOAID:       f.soa.ID,
		Gateway:     paymentdomain.GatewayBukas,
		Status:      paymentdomain.StatusPending,
		Amount:      decimal.NewFromInt(2000),
		TotalAmount: decimal.NewFromInt(2000),
		TxnID:       "BK-REF-2",
	}
	require.NoError(t, tx.SetDetails(paymentdomain.BukasDetails{StudentIDNumber: f.fix.Student.IDNumber, ReferenceCode: "BK-REF-2"}))
	require.NoError(t, paymentrepo.Provide().Insert(ctx, f.db, tx))

	body := base64.StdEncoding.EncodeToString([]byte(`{"status":"paid","reference_code":"BK-REF-2","amount":"1.00"}`))
	rec := doRequest(f.engine, http.MethodPost, "/webhooks/bukas", "", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	stored, err := f.svc.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusPending, stored.Status)
}
