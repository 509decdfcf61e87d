package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/registrar/internal/payment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tx *domain.Transaction) error {
	return db.WithContext(ctx).Create(tx).Error
}

func (r *repo) Save(ctx context.Context, db *gorm.DB, tx *domain.Transaction) error {
	return db.WithContext(ctx).Save(tx).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Transaction, error) {
	return r.first(db.WithContext(ctx).Where("id = ?", id))
}

func (r *repo) FindByTxnID(ctx context.Context, db *gorm.DB, txnID string) (*domain.Transaction, error) {
	return r.first(db.WithContext(ctx).Where("txn_id = ?", txnID))
}

func (r *repo) LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Transaction, error) {
	query := db.WithContext(ctx)
	if db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return r.first(query.Where("id = ?", id))
}

func (r *repo) FindPending(ctx context.Context, db *gorm.DB, soaID snowflake.ID, gateway domain.Gateway) (*domain.Transaction, error) {
	return r.first(db.WithContext(ctx).
		Where("soa_id = ? AND gateway = ? AND status = ?", soaID, gateway, domain.StatusPending).
		Order("created_at DESC"))
}

func (r *repo) ListBySOA(ctx context.Context, db *gorm.DB, soaID snowflake.ID) ([]domain.Transaction, error) {
	var items []domain.Transaction
	if err := db.WithContext(ctx).
		Where("soa_id = ?", soaID).
		Order("created_at ASC, id ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListExpired(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.Transaction, error) {
	var items []domain.Transaction
	if err := db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", domain.StatusPending, now).
		Order("expires_at ASC, id ASC").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

const studentJoin = `JOIN statements_of_account soa ON soa.id = payment_transactions.soa_id
	JOIN enrollments e ON e.id = soa.enrollment_id
	JOIN students st ON st.id = e.student_id`

func (r *repo) FindByStudentReference(ctx context.Context, db *gorm.DB, gateway domain.Gateway, idNumber, reference string) (*domain.Transaction, error) {
	return r.first(db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Select("payment_transactions.*").
		Joins(studentJoin).
		Where("payment_transactions.gateway = ? AND st.id_number = ?", gateway, idNumber).
		Where("payment_transactions.reference_number = ? OR payment_transactions.txn_id = ?", reference, reference).
		Order("payment_transactions.created_at DESC"))
}

func (r *repo) FindPendingOTC(ctx context.Context, db *gorm.DB, idNumber string, amount decimal.Decimal) (*domain.Transaction, error) {
	return r.first(db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Select("payment_transactions.*").
		Joins(studentJoin).
		Where("payment_transactions.gateway = ? AND payment_transactions.status = ? AND st.id_number = ?",
			domain.GatewayOTC, domain.StatusPending, idNumber).
		Where("payment_transactions.amount = ?", amount.Round(2)).
		Order("payment_transactions.created_at ASC"))
}

func (r *repo) FindChannel(ctx context.Context, db *gorm.DB, procID string) (*domain.Channel, error) {
	var channel domain.Channel
	err := db.WithContext(ctx).Where("proc_id = ? AND active = ?", procID, true).Take(&channel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &channel, nil
}

func (r *repo) ListChannels(ctx context.Context, db *gorm.DB) ([]domain.Channel, error) {
	var items []domain.Channel
	if err := db.WithContext(ctx).Where("active = ?", true).Order("name ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) first(query *gorm.DB) (*domain.Transaction, error) {
	var item domain.Transaction
	err := query.Limit(1).Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}
