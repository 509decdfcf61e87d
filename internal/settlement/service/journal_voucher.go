package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/registrar/internal/observability/logger"
	"github.com/smallbiznis/registrar/internal/settlement/domain"
	soadomain "github.com/smallbiznis/registrar/internal/soa/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errUnknownStudent = errors.New("unknown student")
	errNoPendingOTC   = errors.New("no pending over-the-counter payment")
	errZeroAmount     = errors.New("zero amount")
	errNoStatement    = errors.New("student has no statement")
)

// ProcessJournalVoucher posts the rows of a journal voucher. Rows whose
// description starts with a configured bank name settle the student's
// pending over-the-counter payment; other rows post a manual adjustment.
// Rows already recorded by an earlier interrupted run keep their outcome.
func (s *Service) ProcessJournalVoucher(ctx context.Context, jvID snowflake.ID) (*domain.JournalVoucher, error) {
	jv, err := s.repo.FindJournalVoucher(ctx, s.db, jvID)
	if err != nil {
		return nil, err
	}
	if jv == nil {
		return nil, domain.ErrJournalVoucherNotFound
	}
	if err := claim(jv.Status, func() (bool, error) { return s.repo.ClaimJournalVoucher(ctx, s.db, jv.ID) }); err != nil {
		return nil, err
	}
	jv.Status = domain.StatusProcessing

	log := logger.WithContext(ctx, s.log).With(zap.String("journal_voucher_id", jv.ID.String()))

	rows, err := domain.ParseJournalVoucher(jv.Content)
	if err != nil {
		log.Error("journal voucher decode failed", zap.Error(err))
		now := s.clock.Now()
		jv.Status = domain.StatusFailed
		jv.ErrorMessage = err.Error()
		jv.ProcessedAt = &now
		jv.UpdatedAt = now
		if err := s.repo.SaveJournalVoucher(ctx, s.db, jv); err != nil {
			return nil, err
		}
		return jv, nil
	}

	existing, err := s.repo.ListEntries(ctx, s.db, jv.ID)
	if err != nil {
		return nil, err
	}
	done := make(map[int]domain.EntryOutcome, len(existing))
	for _, entry := range existing {
		done[entry.Line] = entry.Outcome
	}

	success, invalid := 0, 0
	for _, row := range rows {
		result, ok := done[row.Line]
		if !ok {
			result = s.processJournalRow(ctx, jv, row, log)
		}
		if result == domain.OutcomeInvalid {
			invalid++
		} else {
			success++
		}
		s.obsMetrics.RecordSettlementRow(ctx, "journal_voucher", string(result))
	}

	now := s.clock.Now()
	jv.Status = domain.StatusCompleted
	jv.Success = success
	jv.Invalid = invalid
	jv.Total = len(rows)
	jv.ErrorMessage = ""
	jv.ProcessedAt = &now
	jv.UpdatedAt = now
	if err := s.repo.SaveJournalVoucher(ctx, s.db, jv); err != nil {
		return nil, err
	}
	log.Info("journal voucher processed",
		zap.Int("success", success),
		zap.Int("invalid", invalid),
		zap.Int("total", len(rows)),
	)
	return jv, nil
}

func (s *Service) processJournalRow(ctx context.Context, jv *domain.JournalVoucher, row domain.JournalVoucherRow, log *zap.Logger) domain.EntryOutcome {
	entry := domain.JournalVoucherEntry{
		ID:               s.genID.Generate(),
		JournalVoucherID: jv.ID,
		Line:             row.Line,
		IDNumber:         row.IDNumber,
		Amount:           row.Amount.Round(2),
		Description:      row.Description,
		JVNumber:         row.JVNumber,
		SettledDate:      row.SettledDate,
		CreatedAt:        s.clock.Now(),
	}

	var rowErr error
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		result, err := s.postJournalRow(ctx, db, &entry, row)
		if err != nil {
			return err
		}
		entry.Outcome = result
		return s.repo.InsertEntry(ctx, db, &entry)
	})
	if err != nil {
		rowErr = err
		entry.Outcome = domain.OutcomeInvalid
		entry.Reason = err.Error()
		entry.PaymentTransactionID = nil
		if err := s.repo.InsertEntry(ctx, s.db, &entry); err != nil {
			log.Error("failed to record journal voucher entry", zap.Int("line", row.Line), zap.Error(err))
		}
	}
	if rowErr != nil {
		log.Warn("journal voucher row invalid",
			zap.Int("line", row.Line),
			zap.String("id_number", row.IDNumber),
			zap.Error(rowErr),
		)
	}
	return entry.Outcome
}

// postJournalRow returns an error for every row that cannot be posted; the
// caller rolls back and records the row as invalid.
func (s *Service) postJournalRow(ctx context.Context, db *gorm.DB, entry *domain.JournalVoucherEntry, row domain.JournalVoucherRow) (domain.EntryOutcome, error) {
	if row.Amount.IsZero() {
		return "", errZeroAmount
	}
	student, err := s.academic.FindStudentByIDNumber(ctx, db, row.IDNumber)
	if err != nil {
		return "", err
	}
	if student == nil {
		return "", fmt.Errorf("%w %q", errUnknownStudent, row.IDNumber)
	}
	at := settledAt(row.SettledDate, s.clock.Now())

	if bank, ok := s.policy.Get().BankPrefix(row.Description); ok {
		candidate, err := s.payments.FindPendingOTC(ctx, db, student.IDNumber, row.Amount.Abs())
		if err != nil {
			return "", err
		}
		if candidate == nil {
			return "", fmt.Errorf("%w for %s", errNoPendingOTC, bank)
		}
		result, err := s.settlePayment(ctx, db, candidate, row.JVNumber, at)
		if err != nil {
			return "", err
		}
		if result != outcomeSettled {
			return "", errNoPendingOTC
		}
		txID := candidate.ID
		entry.PaymentTransactionID = &txID
		return domain.OutcomeSettled, nil
	}

	soa, err := s.soa.LatestForStudent(ctx, db, student.ID)
	if err != nil {
		if errors.Is(err, soadomain.ErrStatementNotFound) {
			return "", errNoStatement
		}
		return "", err
	}
	sourceID := entry.ID
	if _, err := s.soa.Post(ctx, db, soadomain.AccountTransaction{
		SOAID:       soa.ID,
		Amount:      row.Amount,
		Description: row.Description,
		SourceType:  soadomain.SourceJournalVoucher,
		SourceID:    &sourceID,
		JVNumber:    row.JVNumber,
		PostedAt:    at,
	}); err != nil {
		return "", err
	}
	return domain.OutcomeAdjustment, nil
}
