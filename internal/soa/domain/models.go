package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type StatementOfAccount struct {
	ID               snowflake.ID    `gorm:"primaryKey" json:"id"`
	UserID           snowflake.ID    `gorm:"not null;uniqueIndex:ux_soa_user_enrollment,priority:1" json:"user_id"`
	EnrollmentID     snowflake.ID    `gorm:"not null;uniqueIndex;uniqueIndex:ux_soa_user_enrollment,priority:2" json:"enrollment_id"`
	TotalAmount      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_amount"`
	MinAmount        decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"min_amount"`
	MinAmountDueDate time.Time       `gorm:"not null" json:"min_amount_due_date"`
	CreatedAt        time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"not null" json:"updated_at"`
}

func (StatementOfAccount) TableName() string { return "statements_of_account" }

type Category struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	SOAID     snowflake.ID `gorm:"column:soa_id;not null;index" json:"soa_id"`
	Name      string       `gorm:"not null" json:"name"`
	SortOrder int          `gorm:"not null" json:"order"`
}

func (Category) TableName() string { return "soa_categories" }

type Line struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	SOAID       snowflake.ID    `gorm:"column:soa_id;not null;index" json:"soa_id"`
	CategoryID  *snowflake.ID   `json:"category_id,omitempty"`
	Description string          `gorm:"not null" json:"description"`
	Value       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"value"`
	SortOrder   int             `gorm:"not null" json:"order"`
}

func (Line) TableName() string { return "soa_lines" }

// Source types of account transactions. Builder-owned types are the only
// ones a rebuild deletes.
const (
	SourceTuitionProfessional = "tuition_professional"
	SourceTuitionGeneral      = "tuition_general"
	SourceLaboratoryFees      = "laboratory_fees"
	SourceMiscellaneousFees   = "miscellaneous_fees"
	SourceOtherFees           = "other_fees"
	SourceDiscount            = "discount"

	SourcePaymentSettlement = "payment_settlement"
	SourceJournalVoucher    = "journal_voucher"
)

var builderSources = []string{
	SourceTuitionProfessional,
	SourceTuitionGeneral,
	SourceLaboratoryFees,
	SourceMiscellaneousFees,
	SourceOtherFees,
	SourceDiscount,
}

// BuilderSources lists the source types produced by statement builds.
func BuilderSources() []string {
	out := make([]string, len(builderSources))
	copy(out, builderSources)
	return out
}

// AccountTransaction is a signed ledger entry: positive charges, negative credits.
type AccountTransaction struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	SOAID       snowflake.ID    `gorm:"column:soa_id;not null;uniqueIndex:ux_account_tx_source,priority:1" json:"soa_id"`
	Amount      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Description string          `gorm:"not null" json:"description"`
	SourceType  string          `gorm:"type:text;not null;uniqueIndex:ux_account_tx_source,priority:2" json:"source_type"`
	SourceID    *snowflake.ID   `gorm:"uniqueIndex:ux_account_tx_source,priority:3" json:"source_id,omitempty"`
	JVNumber    string          `gorm:"column:jv_number" json:"jv_number,omitempty"`
	PostedAt    time.Time       `gorm:"not null" json:"posted_at"`
}

func (AccountTransaction) TableName() string { return "account_transactions" }

// Statement is a statement with its child rows, as returned to callers.
type Statement struct {
	StatementOfAccount
	Categories   []Category           `json:"categories"`
	Lines        []Line               `json:"lines"`
	Transactions []AccountTransaction `json:"transactions"`
}

// Balance summarizes payments against a statement.
type Balance struct {
	TotalAmount      decimal.Decimal `json:"total_amount"`
	PaidAmount       decimal.Decimal `json:"paid_amount"`
	SettledAmount    decimal.Decimal `json:"settled_amount"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
	MinAmountDue     decimal.Decimal `json:"min_amount_due"`
}
