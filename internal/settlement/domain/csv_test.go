package domain_test

import (
	"testing"

	"github.com/smallbiznis/registrar/internal/settlement/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDragonpay(t *testing.T) {
	content := []byte("\xef\xbb\xbfCreate Date,Settle Date,Refno,Merchant Txn Id,Ccy,Amount,Fee,Settlement,Proc,Description\n" +
		"2024-08-05,2024-08-06,ABC123,01J000TXN,PHP,\"2,000.00\",20.92,1979.08,GCSH,Tuition\n" +
		",,,,,,,,,\n")

	rows, err := domain.ParseDragonpay(content)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].Line)
	assert.Equal(t, "ABC123", rows[0].RefNo)
	assert.Equal(t, "01J000TXN", rows[0].MerchantTxnID)
	assert.Equal(t, "2000.00", rows[0].Amount.StringFixed(2))
	assert.Equal(t, "1979.08", rows[0].Settlement.StringFixed(2))
}

func TestParseDragonpayMissingColumn(t *testing.T) {
	_, err := domain.ParseDragonpay([]byte("Refno,Amount\nABC,100\n"))
	assert.ErrorIs(t, err, domain.ErrDecodeFile)
}

func TestParseCashierRejectsBadAmount(t *testing.T) {
	_, err := domain.ParseCashier([]byte("IDNO,LASTNAME,FIRSTNAME,REFERENCE,AMOUNT\n2024-00001,Santos,Maria,OR-1,abc\n"))
	assert.ErrorIs(t, err, domain.ErrDecodeFile)
	assert.Contains(t, err.Error(), "line 2")
}

func TestParseJournalVoucher(t *testing.T) {
	content := []byte("ID Number,Amount,Description,JV Number,Settled Date\n" +
		"2024-00001,-2000,BDO deposit,JV-77,2024-08-06\n" +
		"2024-00001,150.00,Late fee,JV-77,\n")

	rows, err := domain.ParseJournalVoucher(content)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[0].Line)
	assert.Equal(t, "-2000.00", rows[0].Amount.StringFixed(2))
	require.NotNil(t, rows[0].SettledDate)
	assert.Equal(t, 6, rows[0].SettledDate.Day())
	assert.Nil(t, rows[1].SettledDate)
}

func TestParseJournalVoucherWithoutHeader(t *testing.T) {
	rows, err := domain.ParseJournalVoucher([]byte("2024-00001,100,Adjustment,JV-1,08/06/2024\n"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].Line)
}

func TestParseJournalVoucherWrongFieldCount(t *testing.T) {
	_, err := domain.ParseJournalVoucher([]byte("2024-00001,100,Adjustment\n"))
	assert.ErrorIs(t, err, domain.ErrDecodeFile)

	_, err = domain.ParseJournalVoucher([]byte("2024-00001,100,Adjustment,JV-1,someday\n"))
	assert.ErrorIs(t, err, domain.ErrDecodeFile)
}
