package domain

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var ErrDecodeFile = errors.New("settlement_file_decode_failed")

// DragonpayRow is one line of a Dragonpay settlement report.
type DragonpayRow struct {
	Line          int
	CreateDate    string
	SettleDate    string
	RefNo         string
	MerchantTxnID string
	Currency      string
	Amount        decimal.Decimal
	Fee           decimal.Decimal
	Settlement    decimal.Decimal
	Proc          string
	Description   string
}

// CashierRow is one line of a cashier settlement report.
type CashierRow struct {
	Line      int
	IDNumber  string
	LastName  string
	FirstName string
	Reference string
	Amount    decimal.Decimal
}

// JournalVoucherRow is one line of a journal voucher:
// id_number, signed_amount, description, jv_number, settled_date.
type JournalVoucherRow struct {
	Line        int
	IDNumber    string
	Amount      decimal.Decimal
	Description string
	JVNumber    string
	SettledDate *time.Time
}

var dateLayouts = []string{"2006-01-02", "01/02/2006", "1/2/2006", "2006-01-02 15:04:05", time.RFC3339}

func decodeErr(line int, format string, args ...any) error {
	return fmt.Errorf("%w: line %d: %s", ErrDecodeFile, line, fmt.Sprintf(format, args...))
}

func readAll(content []byte, fields int) ([][]string, error) {
	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))))
	reader.FieldsPerRecord = fields
	reader.TrimLeadingSpace = true

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecodeFile, err)
		}
		records = append(records, record)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrDecodeFile)
	}
	return records, nil
}

type header map[string]int

func newHeader(record []string, required ...string) (header, error) {
	h := make(header, len(record))
	for i, name := range record {
		h[normalizeColumn(name)] = i
	}
	for _, name := range required {
		if _, ok := h[normalizeColumn(name)]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrDecodeFile, name)
		}
	}
	return h, nil
}

func normalizeColumn(name string) string {
	return strings.ToUpper(strings.Join(strings.Fields(name), " "))
}

func (h header) get(record []string, name string) string {
	idx, ok := h[normalizeColumn(name)]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func parseAmount(line int, column, raw string) (decimal.Decimal, error) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if raw == "" {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, decodeErr(line, "invalid %s %q", column, raw)
	}
	return value, nil
}

// ParseDragonpay decodes a Dragonpay settlement report. The first record is the header.
func ParseDragonpay(content []byte) ([]DragonpayRow, error) {
	records, err := readAll(content, -1)
	if err != nil {
		return nil, err
	}
	h, err := newHeader(records[0], "Refno", "Merchant Txn Id", "Amount")
	if err != nil {
		return nil, err
	}

	rows := make([]DragonpayRow, 0, len(records)-1)
	for i, record := range records[1:] {
		line := i + 2
		if blank(record) {
			continue
		}
		row := DragonpayRow{
			Line:          line,
			CreateDate:    h.get(record, "Create Date"),
			SettleDate:    h.get(record, "Settle Date"),
			RefNo:         h.get(record, "Refno"),
			MerchantTxnID: h.get(record, "Merchant Txn Id"),
			Currency:      h.get(record, "Ccy"),
			Proc:          h.get(record, "Proc"),
			Description:   h.get(record, "Description"),
		}
		if row.Amount, err = parseAmount(line, "Amount", h.get(record, "Amount")); err != nil {
			return nil, err
		}
		if row.Fee, err = parseAmount(line, "Fee", h.get(record, "Fee")); err != nil {
			return nil, err
		}
		if row.Settlement, err = parseAmount(line, "Settlement", h.get(record, "Settlement")); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ParseCashier decodes a cashier settlement report. The first record is the header.
func ParseCashier(content []byte) ([]CashierRow, error) {
	records, err := readAll(content, -1)
	if err != nil {
		return nil, err
	}
	h, err := newHeader(records[0], "IDNO", "REFERENCE", "AMOUNT")
	if err != nil {
		return nil, err
	}

	rows := make([]CashierRow, 0, len(records)-1)
	for i, record := range records[1:] {
		line := i + 2
		if blank(record) {
			continue
		}
		row := CashierRow{
			Line:      line,
			IDNumber:  h.get(record, "IDNO"),
			LastName:  h.get(record, "LASTNAME"),
			FirstName: h.get(record, "FIRSTNAME"),
			Reference: h.get(record, "REFERENCE"),
		}
		if row.Amount, err = parseAmount(line, "AMOUNT", h.get(record, "AMOUNT")); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ParseJournalVoucher decodes a five-column journal voucher. A leading
// header row is detected by its non-numeric amount and skipped.
func ParseJournalVoucher(content []byte) ([]JournalVoucherRow, error) {
	records, err := readAll(content, 5)
	if err != nil {
		return nil, err
	}

	rows := make([]JournalVoucherRow, 0, len(records))
	for i, record := range records {
		line := i + 1
		if blank(record) {
			continue
		}
		amount, err := parseAmount(line, "amount", record[1])
		if err != nil {
			if i == 0 {
				continue
			}
			return nil, err
		}
		row := JournalVoucherRow{
			Line:        line,
			IDNumber:    strings.TrimSpace(record[0]),
			Amount:      amount,
			Description: strings.TrimSpace(record[2]),
			JVNumber:    strings.TrimSpace(record[3]),
		}
		if raw := strings.TrimSpace(record[4]); raw != "" {
			settled, ok := parseDate(raw)
			if !ok {
				return nil, decodeErr(line, "invalid settled date %q", raw)
			}
			row.SettledDate = &settled
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseDate(raw string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func blank(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
