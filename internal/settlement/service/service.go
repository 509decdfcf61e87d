package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	academicdomain "github.com/smallbiznis/registrar/internal/academic/domain"
	"github.com/smallbiznis/registrar/internal/clock"
	"github.com/smallbiznis/registrar/internal/config"
	"github.com/smallbiznis/registrar/internal/events"
	obsmetrics "github.com/smallbiznis/registrar/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/registrar/internal/payment/domain"
	paymentservice "github.com/smallbiznis/registrar/internal/payment/service"
	"github.com/smallbiznis/registrar/internal/settlement/domain"
	soadomain "github.com/smallbiznis/registrar/internal/soa/domain"
	soaservice "github.com/smallbiznis/registrar/internal/soa/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Policy     *config.PolicyHolder
	Repo       domain.Repository
	Payments   paymentdomain.Repository
	PaymentSvc *paymentservice.Service
	SOA        *soaservice.Service
	Academic   academicdomain.Repository
	Outbox     *events.Outbox
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	policy     *config.PolicyHolder
	repo       domain.Repository
	payments   paymentdomain.Repository
	paymentSvc *paymentservice.Service
	soa        *soaservice.Service
	academic   academicdomain.Repository
	outbox     *events.Outbox
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("settlement.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		policy:     p.Policy,
		repo:       p.Repo,
		payments:   p.Payments,
		paymentSvc: p.PaymentSvc,
		soa:        p.SOA,
		academic:   p.Academic,
		outbox:     p.Outbox,
		obsMetrics: p.ObsMetrics,
	}
}

// UploadInput is an uploaded gateway settlement report.
type UploadInput struct {
	Gateway    string
	JVNumber   string
	FileName   string
	Content    []byte
	UploadedBy string
}

var createdEvents = map[paymentdomain.Gateway]string{
	paymentdomain.GatewayDragonpay: events.EventDragonpaySettlementCreated,
	paymentdomain.GatewayCashier:   events.EventCashierSettlementCreated,
}

// Upload stores a settlement report as a pending batch. Processing happens
// in the worker.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*domain.Batch, error) {
	gateway, ok := paymentdomain.ParseGateway(in.Gateway)
	if !ok {
		return nil, domain.ErrUnsupportedGateway
	}
	eventType, ok := createdEvents[gateway]
	if !ok {
		return nil, domain.ErrUnsupportedGateway
	}
	jvNumber := strings.TrimSpace(in.JVNumber)
	if jvNumber == "" {
		return nil, domain.ErrMissingJVNumber
	}
	if len(in.Content) == 0 {
		return nil, domain.ErrEmptyFile
	}

	now := s.clock.Now()
	batch := &domain.Batch{
		ID:         s.genID.Generate(),
		Gateway:    gateway,
		JVNumber:   jvNumber,
		FileName:   strings.TrimSpace(in.FileName),
		Content:    in.Content,
		Status:     domain.StatusPending,
		UploadedBy: in.UploadedBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertBatch(ctx, tx, batch); err != nil {
			return err
		}
		return s.outbox.PublishTx(ctx, tx, events.Event{
			Type:      eventType,
			DedupeKey: "settlement_created:" + batch.ID.String(),
			Payload: map[string]any{
				"batch_id":  batch.ID.String(),
				"gateway":   string(gateway),
				"jv_number": jvNumber,
				"file_name": batch.FileName,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("settlement batch uploaded",
		zap.String("batch_id", batch.ID.String()),
		zap.String("gateway", string(gateway)),
		zap.String("jv_number", jvNumber),
	)
	return batch, nil
}

// UploadJournalVoucher stores a journal voucher file as pending.
func (s *Service) UploadJournalVoucher(ctx context.Context, fileName string, content []byte, uploadedBy string) (*domain.JournalVoucher, error) {
	if len(content) == 0 {
		return nil, domain.ErrEmptyFile
	}
	now := s.clock.Now()
	jv := &domain.JournalVoucher{
		ID:         s.genID.Generate(),
		FileName:   strings.TrimSpace(fileName),
		Content:    content,
		Status:     domain.StatusPending,
		UploadedBy: uploadedBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertJournalVoucher(ctx, tx, jv); err != nil {
			return err
		}
		return s.outbox.PublishTx(ctx, tx, events.Event{
			Type:      events.EventJournalVoucherCreated,
			DedupeKey: "journal_voucher_created:" + jv.ID.String(),
			Payload: map[string]any{
				"journal_voucher_id": jv.ID.String(),
				"file_name":          jv.FileName,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("journal voucher uploaded", zap.String("journal_voucher_id", jv.ID.String()))
	return jv, nil
}

func (s *Service) GetBatch(ctx context.Context, id snowflake.ID) (*domain.Batch, error) {
	batch, err := s.repo.FindBatch(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, domain.ErrBatchNotFound
	}
	return batch, nil
}

func (s *Service) ListBatches(ctx context.Context, limit, offset int) ([]domain.Batch, error) {
	return s.repo.ListBatches(ctx, s.db, limit, offset)
}

func (s *Service) GetJournalVoucher(ctx context.Context, id snowflake.ID) (*domain.JournalVoucher, []domain.JournalVoucherEntry, error) {
	jv, err := s.repo.FindJournalVoucher(ctx, s.db, id)
	if err != nil {
		return nil, nil, err
	}
	if jv == nil {
		return nil, nil, domain.ErrJournalVoucherNotFound
	}
	entries, err := s.repo.ListEntries(ctx, s.db, id)
	if err != nil {
		return nil, nil, err
	}
	return jv, entries, nil
}

func (s *Service) ListJournalVouchers(ctx context.Context, limit, offset int) ([]domain.JournalVoucher, error) {
	return s.repo.ListJournalVouchers(ctx, s.db, limit, offset)
}

// ProcessPending processes up to limit pending batches and journal vouchers.
func (s *Service) ProcessPending(ctx context.Context, limit int) (int, error) {
	processed := 0
	batches, err := s.repo.ListPendingBatches(ctx, s.db, limit)
	if err != nil {
		return processed, err
	}
	for _, batch := range batches {
		if _, err := s.ProcessPaymentSettlement(ctx, batch.ID); err != nil {
			if errors.Is(err, domain.ErrAlreadyProcessed) {
				continue
			}
			return processed, err
		}
		processed++
	}

	vouchers, err := s.repo.ListPendingJournalVouchers(ctx, s.db, limit)
	if err != nil {
		return processed, err
	}
	for _, jv := range vouchers {
		if _, err := s.ProcessJournalVoucher(ctx, jv.ID); err != nil {
			if errors.Is(err, domain.ErrAlreadyProcessed) {
				continue
			}
			return processed, err
		}
		processed++
	}
	return processed, nil
}

// claim moves a pending run to processing. A run already in processing is
// resumed; finished runs are rejected.
func claim(status domain.Status, claimFn func() (bool, error)) error {
	switch status {
	case domain.StatusPending:
		ok, err := claimFn()
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrAlreadyProcessed
		}
		return nil
	case domain.StatusProcessing:
		return nil
	default:
		return domain.ErrAlreadyProcessed
	}
}

// outcome of settling one matched payment.
type outcome string

const (
	outcomeSettled outcome = "settled"
	outcomeSkipped outcome = "skipped"
	outcomeInvalid outcome = "invalid"
)

// settlePayment settles the transaction returned by find under a row lock
// and credits the statement with its amount.
func (s *Service) settlePayment(ctx context.Context, db *gorm.DB, tx *paymentdomain.Transaction, jvNumber string, at time.Time) (outcome, error) {
	locked, err := s.payments.LockByID(ctx, db, tx.ID)
	if err != nil {
		return outcomeInvalid, err
	}
	if locked == nil {
		return outcomeInvalid, nil
	}
	if locked.IsSettled() {
		return outcomeSkipped, nil
	}
	if locked.Status != paymentdomain.StatusPending && locked.Status != paymentdomain.StatusSuccess {
		return outcomeInvalid, nil
	}

	if err := s.paymentSvc.Settle(ctx, db, locked, jvNumber, at); err != nil {
		return outcomeInvalid, err
	}
	sourceID := locked.ID
	description := fmt.Sprintf("Payment (%s)", locked.TypeLabel())
	if ref := locked.ReferenceNumber; ref != "" {
		description += " " + ref
	}
	if _, err := s.soa.Post(ctx, db, soadomain.AccountTransaction{
		SOAID:       locked.SOAID,
		Amount:      locked.Amount.Neg(),
		Description: description,
		SourceType:  soadomain.SourcePaymentSettlement,
		SourceID:    &sourceID,
		JVNumber:    jvNumber,
		PostedAt:    at,
	}); err != nil {
		return outcomeInvalid, err
	}
	return outcomeSettled, nil
}
