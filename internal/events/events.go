package events

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	EventPaymentSuccess             = "payment.payment_success"
	EventPaymentSettled             = "payment.payment_settled"
	EventEnrollmentStarted          = "core.enrollment_started"
	EventEnrollmentEnrolled         = "core.enrollment_enrolled"
	EventDragonpaySettlementCreated = "settlement.dragonpay_created"
	EventCashierSettlementCreated   = "settlement.cashier_created"
	EventJournalVoucherCreated      = "settlement.journal_voucher_created"
	EventGradeSheetSubmitted        = "grade.sheet_submitted"
)

// Event is a domain event staged for publication.
type Event struct {
	Type      string
	Payload   map[string]any
	DedupeKey string
}

// OutboxEvent is the persisted form of Event.
type OutboxEvent struct {
	ID          snowflake.ID      `gorm:"primaryKey"`
	EventType   string            `gorm:"type:text;not null"`
	Payload     datatypes.JSONMap `gorm:"type:jsonb;not null"`
	DedupeKey   *string           `gorm:"type:text;uniqueIndex:ux_outbox_events_dedupe"`
	Published   bool              `gorm:"not null;default:false"`
	PublishedAt *time.Time
	Attempts    int    `gorm:"not null;default:0"`
	LastError   string `gorm:"type:text"`
	CreatedAt   time.Time
}

func (OutboxEvent) TableName() string { return "outbox_events" }
