package dragonpay_test

import (
	"context"
	"net/url"
	"testing"

	"github.com/shopspring/decimal"
	academicdomain "github.com/smallbiznis/registrar/internal/academic/domain"
	"github.com/smallbiznis/registrar/internal/config"
	"github.com/smallbiznis/registrar/internal/payment/adapters/dragonpay"
	"github.com/smallbiznis/registrar/internal/payment/domain"
	soadomain "github.com/smallbiznis/registrar/internal/soa/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdapter() *dragonpay.Adapter {
	return dragonpay.New(config.DragonpayConfig{
		MerchantID:       "UNIV",
		MerchantPassword: "s3cret",
		PaymentURL:       "https://test.dragonpay.ph/Pay.aspx",
	})
}

func createInput() domain.CreateInput {
	return domain.CreateInput{
		Statement: soadomain.StatementOfAccount{ID: 99},
		Student:   academicdomain.Student{IDNumber: "2024-00001", Email: "maria.santos@example.edu"},
		Amount:    decimal.NewFromInt(1000),
		Channel: &domain.Channel{
			ProcID:          "GCSH",
			AddonFixed:      decimal.NewFromInt(25),
			AddonPercentage: decimal.NewFromInt(2),
		},
	}
}

func TestCreateBuildsSignedPaymentURL(t *testing.T) {
	adapter := newAdapter()
	tx, err := adapter.Create(context.Background(), createInput())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPending, tx.Status)
	assert.Equal(t, "1000.00", tx.Amount.StringFixed(2))
	assert.Equal(t, "20.92", tx.Fee.StringFixed(2))
	assert.Equal(t, "1045.92", tx.TotalAmount.StringFixed(2))

	details, ok := tx.DragonpayDetails()
	require.True(t, ok)
	assert.Equal(t, "GCSH", details.ProcID)

	parsed, err := url.Parse(details.PaymentURL)
	require.NoError(t, err)
	q := parsed.Query()
	assert.Equal(t, tx.TxnID, q.Get("txnid"))
	assert.Equal(t, "1045.92", q.Get("amount"))
	assert.Equal(t, "PHP", q.Get("ccy"))
	assert.Equal(t, "GCSH", q.Get("procid"))
	assert.Equal(t,
		dragonpay.Digest("UNIV", tx.TxnID, "1045.92", "PHP", q.Get("description"), "maria.santos@example.edu", "s3cret"),
		q.Get("digest"))
}

func TestCreateRequiresConfiguration(t *testing.T) {
	adapter := dragonpay.New(config.DragonpayConfig{})
	_, err := adapter.Create(context.Background(), createInput())
	assert.ErrorIs(t, err, domain.ErrGatewayNotConfigured)
}

func callback(txnID, refNo, status, message, password string) map[string]string {
	return map[string]string{
		"txnid":   txnID,
		"refno":   refNo,
		"status":  status,
		"message": message,
		"digest":  dragonpay.Digest(txnID, refNo, status, message, password),
	}
}

func TestUpdateVerifiesDigest(t *testing.T) {
	adapter := newAdapter()
	tx, err := adapter.Create(context.Background(), createInput())
	require.NoError(t, err)

	status, err := adapter.Update(context.Background(), tx, domain.UpdateInput{
		Data: callback(tx.TxnID, "REF123", "S", "Paid", "s3cret"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, status)
	assert.Equal(t, "REF123", tx.ReferenceNumber)

	details, _ := tx.DragonpayDetails()
	assert.Equal(t, "S", details.StatusCode)
	assert.Equal(t, "GCSH", details.ProcID)

	_, err = adapter.Update(context.Background(), tx, domain.UpdateInput{
		Data: callback(tx.TxnID, "REF123", "S", "Paid", "wrong"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestUpdateRejectsUnknownCode(t *testing.T) {
	adapter := newAdapter()
	tx, err := adapter.Create(context.Background(), createInput())
	require.NoError(t, err)

	_, err = adapter.Update(context.Background(), tx, domain.UpdateInput{
		Data: callback(tx.TxnID, "REF123", "Z", "", "s3cret"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestSettledTransactionIgnoresCallbacks(t *testing.T) {
	adapter := newAdapter()
	tx, err := adapter.Create(context.Background(), createInput())
	require.NoError(t, err)
	tx.Status = domain.StatusSettled

	status, err := adapter.Update(context.Background(), tx, domain.UpdateInput{
		Data: callback(tx.TxnID, "REF123", "F", "Failed", "s3cret"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSettled, status)
}

func TestSuccessfulTransactionKeepsStatusOnLateCallbacks(t *testing.T) {
	adapter := newAdapter()
	tx, err := adapter.Create(context.Background(), createInput())
	require.NoError(t, err)
	tx.Status = domain.StatusSuccess

	for _, code := range []string{"P", "F", "U"} {
		status, err := adapter.Update(context.Background(), tx, domain.UpdateInput{
			Data: callback(tx.TxnID, "REF123", code, "late", "s3cret"),
		})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusSuccess, status, "code %s", code)
	}

	status, err := adapter.Update(context.Background(), tx, domain.UpdateInput{
		Data: callback(tx.TxnID, "REF123", "R", "Refunded", "s3cret"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, status)
}

func TestStatusFromCode(t *testing.T) {
	cases := map[string]domain.Status{
		"S": domain.StatusSuccess,
		"F": domain.StatusFailed,
		"P": domain.StatusPending,
		"U": domain.StatusPending,
		"R": domain.StatusRefunded,
		"K": domain.StatusRefunded,
		"V": domain.StatusVoided,
	}
	for code, want := range cases {
		got, ok := dragonpay.StatusFromCode(code)
		assert.True(t, ok, code)
		assert.Equal(t, want, got, code)
	}
}
