package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPolicyHolderDefaultsWithoutFile(t *testing.T) {
	dir := t.TempDir()
	holder, err := NewPolicyHolder(Config{PolicyPath: filepath.Join(dir, "missing.yml")}, zap.NewNop())
	require.NoError(t, err)

	policy := holder.Get()
	assert.True(t, policy.MinAmountPercentage.Equal(decimal.NewFromInt(35)))
	assert.Equal(t, 365*24*time.Hour, policy.MinAmountDueWindow)
}

func TestPolicyHolderReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registrar.yml")
	content := []byte("policy:\n  minAmountPercentage: \"40\"\n  minAmountDueWindow: 720h\n  paymentTransactionTTL: 24h\n  journalVoucherBanks:\n    - BDO\n    - China Bank\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	holder, err := NewPolicyHolder(Config{PolicyPath: path}, zap.NewNop())
	require.NoError(t, err)

	policy := holder.Get()
	assert.True(t, policy.MinAmountPercentage.Equal(decimal.NewFromInt(40)))
	assert.Equal(t, 720*time.Hour, policy.MinAmountDueWindow)
	assert.Equal(t, 24*time.Hour, policy.PaymentTransactionTTL)
	assert.Equal(t, []string{"BDO", "China Bank"}, policy.JournalVoucherBanks)
}

func TestBankPrefix(t *testing.T) {
	policy := DefaultFeePolicy()

	bank, ok := policy.BankPrefix("Security Bank deposit 2024-06-01")
	assert.True(t, ok)
	assert.Equal(t, "SECURITY BANK", bank)

	_, ok = policy.BankPrefix("Manual adjustment - scholarship refund")
	assert.False(t, ok)
}
