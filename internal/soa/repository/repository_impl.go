package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/registrar/internal/soa/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.StatementOfAccount, error) {
	return take(db.WithContext(ctx).Where("id = ?", id))
}

func (r *repo) FindByEnrollment(ctx context.Context, db *gorm.DB, enrollmentID snowflake.ID) (*domain.StatementOfAccount, error) {
	return take(db.WithContext(ctx).Where("enrollment_id = ?", enrollmentID))
}

func (r *repo) FindLatestByStudent(ctx context.Context, db *gorm.DB, studentID snowflake.ID) (*domain.StatementOfAccount, error) {
	return take(db.WithContext(ctx).
		Select("statements_of_account.*").
		Joins("JOIN enrollments e ON e.id = statements_of_account.enrollment_id").
		Where("e.student_id = ?", studentID).
		Order("statements_of_account.created_at DESC, statements_of_account.id DESC"))
}

func take(query *gorm.DB) (*domain.StatementOfAccount, error) {
	var item domain.StatementOfAccount
	err := query.Limit(1).Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, soa *domain.StatementOfAccount) error {
	return db.WithContext(ctx).Create(soa).Error
}

func (r *repo) UpdateTotals(ctx context.Context, db *gorm.DB, soa *domain.StatementOfAccount) error {
	return db.WithContext(ctx).Exec(
		`UPDATE statements_of_account
		 SET total_amount = ?, min_amount = ?, min_amount_due_date = ?, updated_at = ?
		 WHERE id = ?`,
		soa.TotalAmount,
		soa.MinAmount,
		soa.MinAmountDueDate,
		soa.UpdatedAt,
		soa.ID,
	).Error
}

// DeleteGenerated clears what a build produces. Settlement and journal
// voucher postings stay on the ledger.
func (r *repo) DeleteGenerated(ctx context.Context, db *gorm.DB, soaID snowflake.ID) error {
	if err := db.WithContext(ctx).Exec(`DELETE FROM soa_lines WHERE soa_id = ?`, soaID).Error; err != nil {
		return err
	}
	if err := db.WithContext(ctx).Exec(`DELETE FROM soa_categories WHERE soa_id = ?`, soaID).Error; err != nil {
		return err
	}
	return db.WithContext(ctx).Exec(
		`DELETE FROM account_transactions WHERE soa_id = ? AND source_type IN ?`,
		soaID,
		domain.BuilderSources(),
	).Error
}

func (r *repo) InsertCategories(ctx context.Context, db *gorm.DB, categories []domain.Category) error {
	if len(categories) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&categories).Error
}

func (r *repo) InsertLines(ctx context.Context, db *gorm.DB, lines []domain.Line) error {
	if len(lines) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&lines).Error
}

func (r *repo) PostTransaction(ctx context.Context, db *gorm.DB, tx *domain.AccountTransaction) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(tx)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListCategories(ctx context.Context, db *gorm.DB, soaID snowflake.ID) ([]domain.Category, error) {
	var items []domain.Category
	if err := db.WithContext(ctx).Where("soa_id = ?", soaID).Order("sort_order ASC, id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListLines(ctx context.Context, db *gorm.DB, soaID snowflake.ID) ([]domain.Line, error) {
	var items []domain.Line
	if err := db.WithContext(ctx).Where("soa_id = ?", soaID).Order("sort_order ASC, id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListTransactions(ctx context.Context, db *gorm.DB, soaID snowflake.ID) ([]domain.AccountTransaction, error) {
	var items []domain.AccountTransaction
	if err := db.WithContext(ctx).Where("soa_id = ?", soaID).Order("posted_at ASC, id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) SumTransactions(ctx context.Context, db *gorm.DB, soaID snowflake.ID) (decimal.Decimal, error) {
	var row struct {
		Total decimal.NullDecimal
	}
	err := db.WithContext(ctx).Raw(
		`SELECT SUM(amount) AS total FROM account_transactions WHERE soa_id = ?`,
		soaID,
	).Scan(&row).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !row.Total.Valid {
		return decimal.Zero, nil
	}
	return row.Total.Decimal.Round(2), nil
}

// SumPayments reads payment_transactions directly; statuses follow the
// payment package's normalized status column.
func (r *repo) SumPayments(ctx context.Context, db *gorm.DB, soaID snowflake.ID) (domain.PaymentTotals, error) {
	var row struct {
		Paid    decimal.NullDecimal
		Settled decimal.NullDecimal
	}
	err := db.WithContext(ctx).Raw(
		`SELECT
			SUM(CASE WHEN status IN ('success', 'settled') THEN amount ELSE 0 END) AS paid,
			SUM(CASE WHEN status = 'settled' THEN amount ELSE 0 END) AS settled
		 FROM payment_transactions
		 WHERE soa_id = ?`,
		soaID,
	).Scan(&row).Error
	if err != nil {
		return domain.PaymentTotals{}, err
	}

	totals := domain.PaymentTotals{Paid: decimal.Zero, Settled: decimal.Zero}
	if row.Paid.Valid {
		totals.Paid = row.Paid.Decimal.Round(2)
	}
	if row.Settled.Valid {
		totals.Settled = row.Settled.Decimal.Round(2)
	}
	totals.SuccessfulPending = totals.Paid.Sub(totals.Settled)
	return totals, nil
}
