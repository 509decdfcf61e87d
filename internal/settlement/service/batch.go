package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/registrar/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/registrar/internal/payment/domain"
	"github.com/smallbiznis/registrar/internal/settlement/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// batchRow is a decoded settlement row with its payment lookup.
type batchRow struct {
	line int
	key  string
	find func(ctx context.Context, db *gorm.DB) (*paymentdomain.Transaction, error)
}

// ProcessPaymentSettlement reconciles an uploaded gateway settlement report.
// A file that cannot be decoded fails the whole batch; rows that match no
// payment are counted as invalid and processing continues.
func (s *Service) ProcessPaymentSettlement(ctx context.Context, batchID snowflake.ID) (*domain.Batch, error) {
	batch, err := s.repo.FindBatch(ctx, s.db, batchID)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, domain.ErrBatchNotFound
	}
	if err := claim(batch.Status, func() (bool, error) { return s.repo.ClaimBatch(ctx, s.db, batch.ID) }); err != nil {
		return nil, err
	}
	batch.Status = domain.StatusProcessing

	log := logger.WithContext(ctx, s.log).With(
		zap.String("batch_id", batch.ID.String()),
		zap.String("gateway", string(batch.Gateway)),
		zap.String("jv_number", batch.JVNumber),
	)

	rows, err := s.decodeBatch(batch)
	if err != nil {
		log.Error("settlement file decode failed", zap.Error(err))
		return s.failBatch(ctx, batch, err)
	}

	var counters domain.Counters
	for _, row := range rows {
		counters.Total++
		result := s.processBatchRow(ctx, batch, row, log)
		switch result {
		case outcomeSettled:
			counters.Settled++
		case outcomeSkipped:
			counters.Skipped++
		default:
			counters.Invalid++
		}
		s.obsMetrics.RecordSettlementRow(ctx, string(batch.Gateway), string(result))
	}

	now := s.clock.Now()
	batch.Status = domain.StatusCompleted
	batch.Settled = counters.Settled
	batch.Skipped = counters.Skipped
	batch.Invalid = counters.Invalid
	batch.Total = counters.Total
	batch.ErrorMessage = ""
	batch.ProcessedAt = &now
	batch.UpdatedAt = now
	if err := s.repo.SaveBatch(ctx, s.db, batch); err != nil {
		return nil, err
	}

	log.Info("settlement batch processed",
		zap.Int("settled", counters.Settled),
		zap.Int("skipped", counters.Skipped),
		zap.Int("invalid", counters.Invalid),
		zap.Int("total", counters.Total),
	)
	return batch, nil
}

func (s *Service) decodeBatch(batch *domain.Batch) ([]batchRow, error) {
	switch batch.Gateway {
	case paymentdomain.GatewayDragonpay:
		parsed, err := domain.ParseDragonpay(batch.Content)
		if err != nil {
			return nil, err
		}
		rows := make([]batchRow, 0, len(parsed))
		for _, row := range parsed {
			row := row
			rows = append(rows, batchRow{
				line: row.Line,
				key:  row.MerchantTxnID,
				find: func(ctx context.Context, db *gorm.DB) (*paymentdomain.Transaction, error) {
					return s.findDragonpay(ctx, db, row)
				},
			})
		}
		return rows, nil
	case paymentdomain.GatewayCashier:
		parsed, err := domain.ParseCashier(batch.Content)
		if err != nil {
			return nil, err
		}
		rows := make([]batchRow, 0, len(parsed))
		for _, row := range parsed {
			row := row
			rows = append(rows, batchRow{
				line: row.Line,
				key:  row.Reference,
				find: func(ctx context.Context, db *gorm.DB) (*paymentdomain.Transaction, error) {
					if row.IDNumber == "" || row.Reference == "" {
						return nil, nil
					}
					return s.payments.FindByStudentReference(ctx, db, paymentdomain.GatewayCashier, row.IDNumber, row.Reference)
				},
			})
		}
		return rows, nil
	default:
		return nil, domain.ErrUnsupportedGateway
	}
}

// findDragonpay matches by merchant transaction ID. A recorded gateway
// reference must agree with the report's Refno.
func (s *Service) findDragonpay(ctx context.Context, db *gorm.DB, row domain.DragonpayRow) (*paymentdomain.Transaction, error) {
	if row.MerchantTxnID == "" {
		return nil, nil
	}
	tx, err := s.payments.FindByTxnID(ctx, db, row.MerchantTxnID)
	if err != nil || tx == nil {
		return nil, err
	}
	if tx.Gateway != paymentdomain.GatewayDragonpay {
		return nil, nil
	}
	if tx.ReferenceNumber != "" && row.RefNo != "" && !strings.EqualFold(tx.ReferenceNumber, row.RefNo) {
		return nil, nil
	}
	return tx, nil
}

func (s *Service) processBatchRow(ctx context.Context, batch *domain.Batch, row batchRow, log *zap.Logger) outcome {
	result := outcomeInvalid
	at := s.clock.Now()
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		tx, err := row.find(ctx, db)
		if err != nil {
			return err
		}
		if tx == nil {
			result = outcomeInvalid
			return nil
		}
		result, err = s.settlePayment(ctx, db, tx, batch.JVNumber, at)
		return err
	})
	if err != nil {
		log.Error("settlement row failed", zap.Int("line", row.line), zap.String("reference", row.key), zap.Error(err))
		return outcomeInvalid
	}
	if result == outcomeInvalid {
		log.Warn("settlement row unmatched", zap.Int("line", row.line), zap.String("reference", row.key))
	}
	return result
}

func (s *Service) failBatch(ctx context.Context, batch *domain.Batch, cause error) (*domain.Batch, error) {
	now := s.clock.Now()
	batch.Status = domain.StatusFailed
	batch.ErrorMessage = cause.Error()
	batch.ProcessedAt = &now
	batch.UpdatedAt = now
	if err := s.repo.SaveBatch(ctx, s.db, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

func settledAt(date *time.Time, fallback time.Time) time.Time {
	if date == nil {
		return fallback
	}
	return *date
}
