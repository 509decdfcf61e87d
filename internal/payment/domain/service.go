package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	academicdomain "github.com/smallbiznis/registrar/internal/academic/domain"
	soadomain "github.com/smallbiznis/registrar/internal/soa/domain"
	"gorm.io/gorm"
)

var (
	ErrInvalidGateway         = errors.New("invalid_gateway")
	ErrGatewayNotConfigured   = errors.New("gateway_not_configured")
	ErrInvalidAmount          = errors.New("invalid_amount")
	ErrAmountBelowMinimum     = errors.New("amount_below_minimum_due")
	ErrInvalidChannel         = errors.New("invalid_payment_channel")
	ErrInvalidSignature       = errors.New("invalid_signature")
	ErrInvalidPayload         = errors.New("invalid_payload")
	ErrInvalidStatus          = errors.New("invalid_status")
	ErrTransactionNotFound    = errors.New("payment_transaction_not_found")
	ErrStatementNotFound      = errors.New("statement_not_found")
	ErrAlreadyVoided          = errors.New("payment_already_voided")
	ErrNotVoidable            = errors.New("payment_not_voidable")
	ErrGatewayRequestFailed   = errors.New("gateway_request_failed")
	ErrPaymentRateLimited     = errors.New("payment_rate_limited")
	ErrUnsupportedTransaction = errors.New("unsupported_transaction")
)

// CreateInput carries what an adapter needs to prepare a new transaction.
type CreateInput struct {
	Statement soadomain.StatementOfAccount
	Student   academicdomain.Student
	Amount    decimal.Decimal
	Channel   *Channel
	Data      map[string]string
	Now       time.Time
}

// UpdateInput is a gateway callback or an operator action.
type UpdateInput struct {
	Data    map[string]string
	ActorID string
}

// Adapter prepares and updates transactions for one gateway.
type Adapter interface {
	Gateway() Gateway
	// Create fills in a new pending transaction. It must not persist it.
	Create(ctx context.Context, in CreateInput) (*Transaction, error)
	// Update computes the status the transaction moves to and mutates its
	// details. Returning the current status means no change.
	Update(ctx context.Context, tx *Transaction, in UpdateInput) (Status, error)
}

// EnrollmentCompleter finishes an enrollment once its statement is paid enough.
type EnrollmentCompleter interface {
	CompleteIfPaid(ctx context.Context, enrollmentID snowflake.ID) (bool, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tx *Transaction) error
	Save(ctx context.Context, db *gorm.DB, tx *Transaction) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Transaction, error)
	FindByTxnID(ctx context.Context, db *gorm.DB, txnID string) (*Transaction, error)
	// LockByID reads the row with SELECT ... FOR UPDATE.
	LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Transaction, error)
	FindPending(ctx context.Context, db *gorm.DB, soaID snowflake.ID, gateway Gateway) (*Transaction, error)
	ListBySOA(ctx context.Context, db *gorm.DB, soaID snowflake.ID) ([]Transaction, error)
	ListExpired(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Transaction, error)
	// FindByStudentReference matches a gateway transaction by the student's
	// ID number and the transaction's reference number.
	FindByStudentReference(ctx context.Context, db *gorm.DB, gateway Gateway, idNumber, reference string) (*Transaction, error)
	// FindPendingOTC returns the oldest pending deposit reference of the student for amount.
	FindPendingOTC(ctx context.Context, db *gorm.DB, idNumber string, amount decimal.Decimal) (*Transaction, error)
	FindChannel(ctx context.Context, db *gorm.DB, procID string) (*Channel, error)
	ListChannels(ctx context.Context, db *gorm.DB) ([]Channel, error)
}
