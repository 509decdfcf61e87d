package cashier_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	academicdomain "github.com/smallbiznis/registrar/internal/academic/domain"
	"github.com/smallbiznis/registrar/internal/payment/adapters/cashier"
	"github.com/smallbiznis/registrar/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTransaction(t *testing.T) *domain.Transaction {
	t.Helper()
	tx, err := cashier.New().Create(context.Background(), domain.CreateInput{
		Student: academicdomain.Student{IDNumber: "2024-00001"},
		Amount:  decimal.NewFromInt(1500),
	})
	require.NoError(t, err)
	return tx
}

func TestConfirmRecordsReceipt(t *testing.T) {
	adapter := cashier.New()
	tx := newTransaction(t)

	status, err := adapter.Update(context.Background(), tx, domain.UpdateInput{
		Data:    map[string]string{"action": cashier.ActionConfirm, "receipt_number": "OR-0042"},
		ActorID: "cashier-1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, status)
	assert.Equal(t, "OR-0042", tx.ReferenceNumber)

	details, _ := tx.CashierDetails()
	assert.Equal(t, "cashier-1", details.ConfirmedBy)
	assert.Equal(t, "2024-00001", details.StudentIDNumber)
}

func TestVoidTwiceFails(t *testing.T) {
	adapter := cashier.New()
	tx := newTransaction(t)
	void := domain.UpdateInput{Data: map[string]string{"action": cashier.ActionVoid, "reason": "wrong amount"}}

	status, err := adapter.Update(context.Background(), tx, void)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusVoided, status)
	tx.Status = status

	_, err = adapter.Update(context.Background(), tx, void)
	assert.ErrorIs(t, err, domain.ErrAlreadyVoided)
}

func TestSettledCannotBeVoided(t *testing.T) {
	tx := newTransaction(t)
	tx.Status = domain.StatusSettled
	_, err := cashier.New().Update(context.Background(), tx, domain.UpdateInput{
		Data: map[string]string{"action": cashier.ActionVoid},
	})
	assert.ErrorIs(t, err, domain.ErrNotVoidable)
}

func TestUnknownAction(t *testing.T) {
	_, err := cashier.New().Update(context.Background(), newTransaction(t), domain.UpdateInput{
		Data: map[string]string{"action": "refund"},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}
