package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/registrar/internal/settlement/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertBatch(ctx context.Context, db *gorm.DB, batch *domain.Batch) error {
	return db.WithContext(ctx).Create(batch).Error
}

func (r *repo) SaveBatch(ctx context.Context, db *gorm.DB, batch *domain.Batch) error {
	return db.WithContext(ctx).Save(batch).Error
}

func (r *repo) FindBatch(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Batch, error) {
	var batch domain.Batch
	err := db.WithContext(ctx).Where("id = ?", id).Take(&batch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *repo) ListBatches(ctx context.Context, db *gorm.DB, limit, offset int) ([]domain.Batch, error) {
	var items []domain.Batch
	if err := db.WithContext(ctx).
		Omit("content").
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListPendingBatches(ctx context.Context, db *gorm.DB, limit int) ([]domain.Batch, error) {
	var items []domain.Batch
	if err := db.WithContext(ctx).
		Omit("content").
		Where("status = ?", domain.StatusPending).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ClaimBatch(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Batch{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Update("status", domain.StatusProcessing)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) InsertJournalVoucher(ctx context.Context, db *gorm.DB, jv *domain.JournalVoucher) error {
	return db.WithContext(ctx).Create(jv).Error
}

func (r *repo) SaveJournalVoucher(ctx context.Context, db *gorm.DB, jv *domain.JournalVoucher) error {
	return db.WithContext(ctx).Save(jv).Error
}

func (r *repo) FindJournalVoucher(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.JournalVoucher, error) {
	var jv domain.JournalVoucher
	err := db.WithContext(ctx).Where("id = ?", id).Take(&jv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &jv, nil
}

func (r *repo) ListJournalVouchers(ctx context.Context, db *gorm.DB, limit, offset int) ([]domain.JournalVoucher, error) {
	var items []domain.JournalVoucher
	if err := db.WithContext(ctx).
		Omit("content").
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListPendingJournalVouchers(ctx context.Context, db *gorm.DB, limit int) ([]domain.JournalVoucher, error) {
	var items []domain.JournalVoucher
	if err := db.WithContext(ctx).
		Omit("content").
		Where("status = ?", domain.StatusPending).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ClaimJournalVoucher(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.JournalVoucher{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Update("status", domain.StatusProcessing)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) InsertEntry(ctx context.Context, db *gorm.DB, entry *domain.JournalVoucherEntry) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) ListEntries(ctx context.Context, db *gorm.DB, jvID snowflake.ID) ([]domain.JournalVoucherEntry, error) {
	var items []domain.JournalVoucherEntry
	if err := db.WithContext(ctx).
		Where("journal_voucher_id = ?", jvID).
		Order("line ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
