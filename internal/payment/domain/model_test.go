package domain_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/registrar/internal/payment/domain"
	"github.com/stretchr/testify/assert"
)

func TestChannelFeeGrossesUp(t *testing.T) {
	channel := domain.Channel{
		ProcID:          "GCSH",
		AddonFixed:      decimal.NewFromInt(25),
		AddonPercentage: decimal.NewFromInt(2),
	}
	amount := decimal.NewFromInt(1000)

	assert.Equal(t, "20.92", channel.Fee(amount).StringFixed(2))
	assert.Equal(t, "1045.92", channel.Total(amount).StringFixed(2))
}

func TestChannelWithoutAddons(t *testing.T) {
	channel := domain.Channel{ProcID: "BOG"}
	amount := decimal.RequireFromString("1575.50")
	assert.True(t, channel.Fee(amount).IsZero())
	assert.Equal(t, "1575.50", channel.Total(amount).StringFixed(2))
}

func TestGatewayStatusSets(t *testing.T) {
	assert.True(t, domain.GatewayCashier.Allows(domain.StatusVoided))
	assert.False(t, domain.GatewayOTC.Allows(domain.StatusSuccess))
	assert.False(t, domain.GatewayBukas.Allows(domain.StatusRefunded))
	assert.True(t, domain.GatewayDragonpay.Allows(domain.StatusRefunded))
}

func TestAcceptsCallback(t *testing.T) {
	assert.True(t, domain.StatusPending.AcceptsCallback(domain.StatusSuccess))
	assert.True(t, domain.StatusFailed.AcceptsCallback(domain.StatusSuccess))
	assert.False(t, domain.StatusSuccess.AcceptsCallback(domain.StatusPending))
	assert.False(t, domain.StatusSuccess.AcceptsCallback(domain.StatusFailed))
	assert.True(t, domain.StatusSuccess.AcceptsCallback(domain.StatusRefunded))
	assert.True(t, domain.StatusSuccess.AcceptsCallback(domain.StatusVoided))
	assert.False(t, domain.StatusSettled.AcceptsCallback(domain.StatusFailed))
}

func TestOTCCountsOnlyWhenSettled(t *testing.T) {
	tx := domain.Transaction{Gateway: domain.GatewayOTC, Status: domain.StatusPending}
	assert.False(t, tx.IsSuccessful())
	tx.Status = domain.StatusSettled
	assert.True(t, tx.IsSuccessful())

	cashier := domain.Transaction{Gateway: domain.GatewayCashier, Status: domain.StatusSuccess}
	assert.True(t, cashier.IsSuccessful())
}

func TestParseGateway(t *testing.T) {
	g, ok := domain.ParseGateway(" Dragonpay ")
	assert.True(t, ok)
	assert.Equal(t, domain.GatewayDragonpay, g)

	_, ok = domain.ParseGateway("paypal")
	assert.False(t, ok)
}

func TestDetailsRoundTrip(t *testing.T) {
	tx := domain.Transaction{Gateway: domain.GatewayCashier}
	assert.NoError(t, tx.SetDetails(domain.CashierDetails{StudentIDNumber: "2024-00001", ReceiptNumber: "OR-1"}))

	details, ok := tx.CashierDetails()
	assert.True(t, ok)
	assert.Equal(t, "OR-1", details.ReceiptNumber)

	_, ok = tx.DragonpayDetails()
	assert.False(t, ok)
}
