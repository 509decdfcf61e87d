package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/registrar/internal/payment/domain"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Batch is an uploaded gateway settlement file and the outcome of processing it.
type Batch struct {
	ID           snowflake.ID          `gorm:"primaryKey" json:"id"`
	Gateway      paymentdomain.Gateway `gorm:"type:text;not null" json:"gateway"`
	JVNumber     string                `gorm:"column:jv_number;not null" json:"jv_number"`
	FileName     string                `gorm:"not null" json:"file_name"`
	Content      []byte                `gorm:"not null" json:"-"`
	Status       Status                `gorm:"type:text;not null;index" json:"status"`
	Settled      int                   `gorm:"not null;default:0" json:"settled"`
	Skipped      int                   `gorm:"not null;default:0" json:"skipped"`
	Invalid      int                   `gorm:"not null;default:0" json:"invalid"`
	Total        int                   `gorm:"not null;default:0" json:"total"`
	ErrorMessage string                `json:"error_message,omitempty"`
	UploadedBy   string                `json:"uploaded_by"`
	ProcessedAt  *time.Time            `json:"processed_at,omitempty"`
	CreatedAt    time.Time             `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time             `gorm:"not null" json:"updated_at"`
}

func (Batch) TableName() string { return "settlement_batches" }

// JournalVoucher is an uploaded journal-voucher file.
type JournalVoucher struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	FileName     string       `gorm:"not null" json:"file_name"`
	Content      []byte       `gorm:"not null" json:"-"`
	Status       Status       `gorm:"type:text;not null;index" json:"status"`
	Success      int          `gorm:"not null;default:0" json:"success"`
	Invalid      int          `gorm:"not null;default:0" json:"invalid"`
	Total        int          `gorm:"not null;default:0" json:"total"`
	ErrorMessage string       `json:"error_message,omitempty"`
	UploadedBy   string       `json:"uploaded_by"`
	ProcessedAt  *time.Time   `json:"processed_at,omitempty"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null" json:"updated_at"`
}

func (JournalVoucher) TableName() string { return "journal_vouchers" }

type EntryOutcome string

const (
	OutcomeSettled    EntryOutcome = "settled"
	OutcomeAdjustment EntryOutcome = "adjustment"
	OutcomeSkipped    EntryOutcome = "skipped"
	OutcomeInvalid    EntryOutcome = "invalid"
)

// JournalVoucherEntry is one processed row of a journal voucher. Its ID is
// the source of the ledger posting it produced.
type JournalVoucherEntry struct {
	ID                   snowflake.ID    `gorm:"primaryKey" json:"id"`
	JournalVoucherID     snowflake.ID    `gorm:"not null;uniqueIndex:ux_jv_entry_line,priority:1" json:"journal_voucher_id"`
	Line                 int             `gorm:"not null;uniqueIndex:ux_jv_entry_line,priority:2" json:"line"`
	IDNumber             string          `gorm:"column:id_number;not null" json:"id_number"`
	Amount               decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Description          string          `json:"description"`
	JVNumber             string          `gorm:"column:jv_number" json:"jv_number"`
	SettledDate          *time.Time      `json:"settled_date,omitempty"`
	Outcome              EntryOutcome    `gorm:"type:text;not null" json:"outcome"`
	PaymentTransactionID *snowflake.ID   `json:"payment_transaction_id,omitempty"`
	Reason               string          `json:"reason,omitempty"`
	CreatedAt            time.Time       `gorm:"not null" json:"created_at"`
}

func (JournalVoucherEntry) TableName() string { return "journal_voucher_entries" }

// Counters summarizes a processing run.
type Counters struct {
	Settled int
	Skipped int
	Invalid int
	Total   int
}
