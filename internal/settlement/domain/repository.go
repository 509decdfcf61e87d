package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrBatchNotFound          = errors.New("settlement_batch_not_found")
	ErrJournalVoucherNotFound = errors.New("journal_voucher_not_found")
	ErrUnsupportedGateway     = errors.New("settlement_gateway_not_supported")
	ErrEmptyFile              = errors.New("settlement_file_empty")
	ErrMissingJVNumber        = errors.New("jv_number_required")
	ErrAlreadyProcessed       = errors.New("settlement_already_processed")
)

type Repository interface {
	InsertBatch(ctx context.Context, db *gorm.DB, batch *Batch) error
	SaveBatch(ctx context.Context, db *gorm.DB, batch *Batch) error
	FindBatch(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Batch, error)
	ListBatches(ctx context.Context, db *gorm.DB, limit, offset int) ([]Batch, error)
	ListPendingBatches(ctx context.Context, db *gorm.DB, limit int) ([]Batch, error)
	// ClaimBatch moves a pending batch to processing. It returns false when
	// another worker already claimed it.
	ClaimBatch(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)

	InsertJournalVoucher(ctx context.Context, db *gorm.DB, jv *JournalVoucher) error
	SaveJournalVoucher(ctx context.Context, db *gorm.DB, jv *JournalVoucher) error
	FindJournalVoucher(ctx context.Context, db *gorm.DB, id snowflake.ID) (*JournalVoucher, error)
	ListJournalVouchers(ctx context.Context, db *gorm.DB, limit, offset int) ([]JournalVoucher, error)
	ListPendingJournalVouchers(ctx context.Context, db *gorm.DB, limit int) ([]JournalVoucher, error)
	ClaimJournalVoucher(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)

	InsertEntry(ctx context.Context, db *gorm.DB, entry *JournalVoucherEntry) error
	ListEntries(ctx context.Context, db *gorm.DB, jvID snowflake.ID) ([]JournalVoucherEntry, error)
}
