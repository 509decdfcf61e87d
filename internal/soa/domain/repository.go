package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrStatementNotFound  = errors.New("statement_not_found")
	ErrEnrollmentNotFound = errors.New("enrollment_not_found")
	ErrStudentNotFound    = errors.New("student_not_found")
	ErrSemesterNotFound   = errors.New("semester_not_found")
	ErrSubjectNotFound    = errors.New("subject_not_found")
	ErrInvalidTransaction = errors.New("invalid_account_transaction")
)

// PaymentTotals aggregates payment transactions recorded against a statement.
type PaymentTotals struct {
	Paid              decimal.Decimal
	Settled           decimal.Decimal
	SuccessfulPending decimal.Decimal
}

// CreateOptions controls a statement build.
type CreateOptions struct {
	DiscountAutoApply bool
	Override          bool
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*StatementOfAccount, error)
	FindByEnrollment(ctx context.Context, db *gorm.DB, enrollmentID snowflake.ID) (*StatementOfAccount, error)
	// FindLatestByStudent returns the student's most recent statement.
	FindLatestByStudent(ctx context.Context, db *gorm.DB, studentID snowflake.ID) (*StatementOfAccount, error)
	Insert(ctx context.Context, db *gorm.DB, soa *StatementOfAccount) error
	UpdateTotals(ctx context.Context, db *gorm.DB, soa *StatementOfAccount) error

	// DeleteGenerated removes categories, lines and builder-sourced transactions.
	DeleteGenerated(ctx context.Context, db *gorm.DB, soaID snowflake.ID) error
	InsertCategories(ctx context.Context, db *gorm.DB, categories []Category) error
	InsertLines(ctx context.Context, db *gorm.DB, lines []Line) error
	// PostTransaction inserts once per (soa_id, source_type, source_id).
	PostTransaction(ctx context.Context, db *gorm.DB, tx *AccountTransaction) (bool, error)

	ListCategories(ctx context.Context, db *gorm.DB, soaID snowflake.ID) ([]Category, error)
	ListLines(ctx context.Context, db *gorm.DB, soaID snowflake.ID) ([]Line, error)
	ListTransactions(ctx context.Context, db *gorm.DB, soaID snowflake.ID) ([]AccountTransaction, error)
	SumTransactions(ctx context.Context, db *gorm.DB, soaID snowflake.ID) (decimal.Decimal, error)
	SumPayments(ctx context.Context, db *gorm.DB, soaID snowflake.ID) (PaymentTotals, error)
}

// DueDate returns the minimum-amount due date for a build at now.
func DueDate(now time.Time, window time.Duration) time.Time {
	return now.Add(window)
}
