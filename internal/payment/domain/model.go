package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Gateway string

const (
	GatewayDragonpay Gateway = "dragonpay"
	GatewayBukas     Gateway = "bukas"
	GatewayOTC       Gateway = "otc"
	GatewayCashier   Gateway = "cashier"
)

func ParseGateway(value string) (Gateway, bool) {
	g := Gateway(strings.ToLower(strings.TrimSpace(value)))
	switch g {
	case GatewayDragonpay, GatewayBukas, GatewayOTC, GatewayCashier:
		return g, true
	}
	return "", false
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusRefunded Status = "refunded"
	StatusVoided   Status = "voided"
	StatusSettled  Status = "settled"
)

// AcceptsCallback reports whether a gateway callback may move a transaction
// from s to next. Settled is final; success only gives way to a refund,
// a void or the settlement.
func (s Status) AcceptsCallback(next Status) bool {
	switch s {
	case StatusSettled:
		return false
	case StatusSuccess:
		return next == StatusRefunded || next == StatusVoided || next == StatusSettled
	default:
		return true
	}
}

var gatewayStatuses = map[Gateway][]Status{
	GatewayDragonpay: {StatusPending, StatusSuccess, StatusFailed, StatusRefunded, StatusVoided, StatusSettled},
	GatewayBukas:     {StatusPending, StatusSuccess, StatusFailed, StatusSettled},
	GatewayOTC:       {StatusPending, StatusFailed, StatusSettled},
	GatewayCashier:   {StatusPending, StatusSuccess, StatusVoided, StatusFailed, StatusSettled},
}

// Allows reports whether status belongs to the gateway's status set.
func (g Gateway) Allows(status Status) bool {
	for _, s := range gatewayStatuses[g] {
		if s == status {
			return true
		}
	}
	return false
}

// Transaction is one payment attempt against a statement of account.
// Gateway is the discriminant; Details holds the variant payload.
type Transaction struct {
	ID              snowflake.ID    `gorm:"primaryKey" json:"id"`
	SOAID           snowflake.ID    `gorm:"column:soa_id;not null;index" json:"soa_id"`
	Gateway         Gateway         `gorm:"type:text;not null" json:"gateway"`
	Status          Status          `gorm:"type:text;not null" json:"status"`
	Amount          decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Fee             decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"fee"`
	TotalAmount     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_amount"`
	TxnID           string          `gorm:"column:txn_id;type:text;not null;uniqueIndex" json:"txn_id"`
	ReferenceNumber string          `gorm:"type:text" json:"reference_number"`
	Description     string          `gorm:"type:text" json:"description"`
	Details         datatypes.JSON  `gorm:"type:jsonb" json:"details"`
	JVNumber        string          `gorm:"column:jv_number;type:text" json:"jv_number,omitempty"`
	ExpiresAt       *time.Time      `json:"expires_at,omitempty"`
	SettledAt       *time.Time      `json:"settled_at,omitempty"`
	CreatedAt       time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"not null" json:"updated_at"`
}

func (Transaction) TableName() string { return "payment_transactions" }

// IsSuccessful reports whether the transaction counts toward the paid amount.
// Over-the-counter deposits only count once the bank settlement confirms them.
func (t Transaction) IsSuccessful() bool {
	switch t.Gateway {
	case GatewayOTC:
		return t.Status == StatusSettled
	case GatewayDragonpay, GatewayBukas, GatewayCashier:
		return t.Status == StatusSuccess || t.Status == StatusSettled
	default:
		return false
	}
}

func (t Transaction) IsSettled() bool {
	return t.Status == StatusSettled
}

// TypeLabel is the human name of the variant.
func (t Transaction) TypeLabel() string {
	switch t.Gateway {
	case GatewayDragonpay:
		return "Dragonpay"
	case GatewayBukas:
		return "Bukas"
	case GatewayOTC:
		return "Over the Counter"
	case GatewayCashier:
		return "Cashier"
	default:
		return string(t.Gateway)
	}
}

type DragonpayDetails struct {
	ProcID     string `json:"proc_id,omitempty"`
	Email      string `json:"email,omitempty"`
	RefNo      string `json:"refno,omitempty"`
	Message    string `json:"message,omitempty"`
	StatusCode string `json:"status_code,omitempty"`
	PaymentURL string `json:"payment_url,omitempty"`
}

type BukasDetails struct {
	StudentIDNumber string `json:"student_id_number"`
	ReferenceCode   string `json:"reference_code,omitempty"`
	TransactionID   string `json:"transaction_id,omitempty"`
	CheckoutURL     string `json:"checkout_url,omitempty"`
}

type OTCDetails struct {
	Bank string `json:"bank,omitempty"`
}

type CashierDetails struct {
	StudentIDNumber string `json:"student_id_number"`
	ReceiptNumber   string `json:"receipt_number,omitempty"`
	ConfirmedBy     string `json:"confirmed_by,omitempty"`
	VoidReason      string `json:"void_reason,omitempty"`
	VoidedBy        string `json:"voided_by,omitempty"`
}

// DragonpayDetails decodes the variant payload; ok is false for other gateways.
func (t Transaction) DragonpayDetails() (DragonpayDetails, bool) {
	var d DragonpayDetails
	return d, t.Gateway == GatewayDragonpay && t.decode(&d)
}

func (t Transaction) BukasDetails() (BukasDetails, bool) {
	var d BukasDetails
	return d, t.Gateway == GatewayBukas && t.decode(&d)
}

func (t Transaction) OTCDetails() (OTCDetails, bool) {
	var d OTCDetails
	return d, t.Gateway == GatewayOTC && t.decode(&d)
}

func (t Transaction) CashierDetails() (CashierDetails, bool) {
	var d CashierDetails
	return d, t.Gateway == GatewayCashier && t.decode(&d)
}

func (t Transaction) decode(v any) bool {
	if len(t.Details) == 0 {
		return true
	}
	return json.Unmarshal(t.Details, v) == nil
}

// SetDetails replaces the variant payload.
func (t *Transaction) SetDetails(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	t.Details = datatypes.JSON(raw)
	return nil
}

// Channel is a Dragonpay processor with its add-on charges.
type Channel struct {
	ID              snowflake.ID    `gorm:"primaryKey" json:"id"`
	ProcID          string          `gorm:"column:proc_id;type:text;not null;uniqueIndex" json:"proc_id"`
	Name            string          `gorm:"type:text;not null" json:"name"`
	AddonFixed      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"addon_fixed"`
	AddonPercentage decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"addon_percentage"`
	Active          bool            `gorm:"not null;default:true" json:"active"`
}

func (Channel) TableName() string { return "payment_channels" }

var hundred = decimal.NewFromInt(100)

// Fee grosses the amount up so that the net received after the channel's
// cut still equals amount: (amount + fixed) / (1 - pct/100) - fixed - amount.
func (c Channel) Fee(amount decimal.Decimal) decimal.Decimal {
	ratio := decimal.NewFromInt(1).Sub(c.AddonPercentage.Div(hundred))
	if !ratio.IsPositive() {
		return decimal.Zero
	}
	withFee := amount.Add(c.AddonFixed).DivRound(ratio, 8)
	return withFee.Sub(c.AddonFixed).Sub(amount).Round(2)
}

// Total is what the payer is charged through the channel.
func (c Channel) Total(amount decimal.Decimal) decimal.Decimal {
	return amount.Add(c.AddonFixed).Add(c.Fee(amount)).Round(2)
}
