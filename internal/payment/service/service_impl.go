package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	academicdomain "github.com/smallbiznis/registrar/internal/academic/domain"
	"github.com/smallbiznis/registrar/internal/clock"
	"github.com/smallbiznis/registrar/internal/config"
	enrollmentdomain "github.com/smallbiznis/registrar/internal/enrollment/domain"
	"github.com/smallbiznis/registrar/internal/events"
	"github.com/smallbiznis/registrar/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/registrar/internal/observability/metrics"
	"github.com/smallbiznis/registrar/internal/payment/adapters"
	"github.com/smallbiznis/registrar/internal/payment/adapters/bukas"
	paymentdomain "github.com/smallbiznis/registrar/internal/payment/domain"
	"github.com/smallbiznis/registrar/internal/ratelimit"
	soadomain "github.com/smallbiznis/registrar/internal/soa/domain"
	soaservice "github.com/smallbiznis/registrar/internal/soa/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Policy      *config.PolicyHolder
	Repo        paymentdomain.Repository
	Adapters    *adapters.Registry
	SOA         *soaservice.Service
	Academic    academicdomain.Repository
	Enrollments enrollmentdomain.Repository
	Outbox      *events.Outbox
	Completer   paymentdomain.EnrollmentCompleter `optional:"true"`
	Limiter     *ratelimit.PaymentLimiter         `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics               `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	policy      *config.PolicyHolder
	repo        paymentdomain.Repository
	adapters    *adapters.Registry
	soa         *soaservice.Service
	academic    academicdomain.Repository
	enrollments enrollmentdomain.Repository
	outbox      *events.Outbox
	completer   paymentdomain.EnrollmentCompleter
	limiter     *ratelimit.PaymentLimiter
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		policy:      p.Policy,
		repo:        p.Repo,
		adapters:    p.Adapters,
		soa:         p.SOA,
		academic:    p.Academic,
		enrollments: p.Enrollments,
		outbox:      p.Outbox,
		completer:   p.Completer,
		limiter:     p.Limiter,
		obsMetrics:  p.ObsMetrics,
	}
}

// Create opens a payment against a statement. Over-the-counter and cashier
// payments reuse the statement's pending reference instead of issuing a new one.
func (s *Service) Create(ctx context.Context, soaID snowflake.ID, gatewayName string, data map[string]string) (*paymentdomain.Transaction, error) {
	gateway, ok := paymentdomain.ParseGateway(gatewayName)
	if !ok {
		return nil, paymentdomain.ErrInvalidGateway
	}
	adapter, err := s.adapters.Adapter(gateway)
	if err != nil {
		return nil, err
	}

	statement, err := s.soa.GetStatement(ctx, soaID)
	if err != nil {
		if errors.Is(err, soadomain.ErrStatementNotFound) {
			return nil, paymentdomain.ErrStatementNotFound
		}
		return nil, err
	}
	student, err := s.studentFor(ctx, statement)
	if err != nil {
		return nil, err
	}

	log := logger.WithContext(ctx, s.log).With(
		zap.String("soa_id", soaID.String()),
		zap.String("gateway", string(gateway)),
	)

	limit, err := s.limiter.AllowStudent(ctx, student.IDNumber)
	if err != nil {
		log.Warn("payment rate limiter unavailable", zap.Error(err))
	} else if !limit.Allowed {
		return nil, paymentdomain.ErrPaymentRateLimited
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(data["amount"]))
	if err != nil || !amount.IsPositive() {
		return nil, paymentdomain.ErrInvalidAmount
	}
	amount = amount.Round(2)

	balance, err := s.soa.Balance(ctx, soaID)
	if err != nil {
		return nil, err
	}
	if amount.LessThan(balance.MinAmountDue) {
		return nil, paymentdomain.ErrAmountBelowMinimum
	}

	var channel *paymentdomain.Channel
	if gateway == paymentdomain.GatewayDragonpay {
		if procID := strings.TrimSpace(data["proc_id"]); procID != "" {
			channel, err = s.repo.FindChannel(ctx, s.db, procID)
			if err != nil {
				return nil, err
			}
			if channel == nil {
				return nil, paymentdomain.ErrInvalidChannel
			}
		}
	}

	var created *paymentdomain.Transaction
	create := func(ctx context.Context) error {
		if reusesReference(gateway) {
			pending, err := s.repo.FindPending(ctx, s.db, soaID, gateway)
			if err != nil {
				return err
			}
			if pending != nil {
				created = pending
				return nil
			}
		}

		now := s.clock.Now()
		tx, err := adapter.Create(ctx, paymentdomain.CreateInput{
			Statement: *statement,
			Student:   *student,
			Amount:    amount,
			Channel:   channel,
			Data:      data,
			Now:       now,
		})
		if err != nil {
			return err
		}
		tx.ID = s.genID.Generate()
		tx.CreatedAt = now
		tx.UpdatedAt = now
		if reusesReference(gateway) {
			expires := now.Add(s.policy.Get().PaymentTransactionTTL)
			tx.ExpiresAt = &expires
		}
		if err := s.repo.Insert(ctx, s.db, tx); err != nil {
			return err
		}
		created = tx
		return nil
	}

	if reusesReference(gateway) {
		err = s.limiter.WithStatementLock(ctx, soaID.String(), create)
	} else {
		err = create(ctx)
	}
	if err != nil {
		log.Warn("payment creation failed", zap.Error(err))
		return nil, err
	}

	s.obsMetrics.RecordPaymentEvent(ctx, string(gateway), string(created.Status))
	log.Info("payment transaction ready",
		zap.String("transaction_id", created.ID.String()),
		zap.String("txn_id", created.TxnID),
		zap.String("total_amount", created.TotalAmount.StringFixed(2)),
	)
	return created, nil
}

func reusesReference(gateway paymentdomain.Gateway) bool {
	return gateway == paymentdomain.GatewayOTC || gateway == paymentdomain.GatewayCashier
}

func (s *Service) studentFor(ctx context.Context, statement *soadomain.StatementOfAccount) (*academicdomain.Student, error) {
	enrollment, err := s.enrollments.FindByID(ctx, s.db, statement.EnrollmentID)
	if err != nil {
		return nil, err
	}
	if enrollment == nil {
		return nil, enrollmentdomain.ErrEnrollmentNotFound
	}
	student, err := s.academic.FindStudent(ctx, s.db, enrollment.StudentID)
	if err != nil {
		return nil, err
	}
	if student == nil {
		return nil, academicdomain.ErrStudentNotFound
	}
	return student, nil
}

// Update applies a gateway callback or operator action under a row lock.
// The returned status is nil when the transaction's status did not change.
func (s *Service) Update(ctx context.Context, id snowflake.ID, in paymentdomain.UpdateInput) (*paymentdomain.Status, error) {
	var (
		changed *paymentdomain.Status
		current paymentdomain.Transaction
	)

	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		tx, err := s.repo.LockByID(ctx, db, id)
		if err != nil {
			return err
		}
		if tx == nil {
			return paymentdomain.ErrTransactionNotFound
		}
		adapter, err := s.adapters.Adapter(tx.Gateway)
		if err != nil {
			return err
		}

		next, err := adapter.Update(ctx, tx, in)
		if err != nil {
			return err
		}
		if !tx.Gateway.Allows(next) {
			return paymentdomain.ErrInvalidStatus
		}

		previous := tx.Status
		tx.Status = next
		tx.UpdatedAt = s.clock.Now()
		if err := s.repo.Save(ctx, db, tx); err != nil {
			return err
		}
		current = *tx
		if next == previous {
			return nil
		}
		changed = &next

		if next == paymentdomain.StatusSuccess {
			return s.outbox.PublishTx(ctx, db, events.Event{
				Type:      events.EventPaymentSuccess,
				DedupeKey: "payment_success:" + tx.ID.String(),
				Payload: map[string]any{
					"transaction_id": tx.ID.String(),
					"soa_id":         tx.SOAID.String(),
					"gateway":        string(tx.Gateway),
					"amount":         tx.Amount.StringFixed(2),
				},
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log := logger.WithContext(ctx, s.log).With(
		zap.String("transaction_id", id.String()),
		zap.String("gateway", string(current.Gateway)),
	)
	if changed == nil {
		log.Debug("payment status unchanged", zap.String("status", string(current.Status)))
		return nil, nil
	}

	s.obsMetrics.RecordPaymentEvent(ctx, string(current.Gateway), string(*changed))
	log.Info("payment status changed", zap.String("status", string(*changed)))

	if current.IsSuccessful() {
		s.completeEnrollment(ctx, current.SOAID, log)
	}
	return changed, nil
}

// completeEnrollment finishes the enrollment once the statement's minimum is
// paid. Failures are logged; the payment itself is already committed.
func (s *Service) completeEnrollment(ctx context.Context, soaID snowflake.ID, log *zap.Logger) {
	if s.completer == nil {
		return
	}
	statement, err := s.soa.GetStatement(ctx, soaID)
	if err != nil {
		log.Error("failed to load statement for enrollment completion", zap.Error(err))
		return
	}
	enrolled, err := s.completer.CompleteIfPaid(ctx, statement.EnrollmentID)
	if err != nil {
		log.Error("failed to complete enrollment", zap.Error(err))
		return
	}
	if enrolled {
		log.Info("enrollment completed by payment", zap.String("enrollment_id", statement.EnrollmentID.String()))
	}
}

// UpdateByTxnID resolves a gateway callback to its transaction.
func (s *Service) UpdateByTxnID(ctx context.Context, gateway paymentdomain.Gateway, txnID string, in paymentdomain.UpdateInput) (*paymentdomain.Status, error) {
	tx, err := s.GetByTxnID(ctx, gateway, txnID)
	if err != nil {
		return nil, err
	}
	return s.Update(ctx, tx.ID, in)
}

// GetByTxnID returns the gateway's transaction carrying txnID.
func (s *Service) GetByTxnID(ctx context.Context, gateway paymentdomain.Gateway, txnID string) (*paymentdomain.Transaction, error) {
	txnID = strings.TrimSpace(txnID)
	if txnID == "" {
		return nil, paymentdomain.ErrInvalidPayload
	}
	tx, err := s.repo.FindByTxnID(ctx, s.db, txnID)
	if err != nil {
		return nil, err
	}
	if tx == nil || tx.Gateway != gateway {
		return nil, paymentdomain.ErrTransactionNotFound
	}
	return tx, nil
}

// DragonpayCallback handles both the postback and the browser return.
func (s *Service) DragonpayCallback(ctx context.Context, data map[string]string) (*paymentdomain.Status, error) {
	return s.UpdateByTxnID(ctx, paymentdomain.GatewayDragonpay, data["txnid"], paymentdomain.UpdateInput{Data: data})
}

// BukasWebhook handles a base64-encoded Bukas webhook body.
func (s *Service) BukasWebhook(ctx context.Context, body []byte) (*paymentdomain.Status, error) {
	hook, err := bukas.DecodeWebhook(body)
	if err != nil {
		return nil, err
	}
	return s.UpdateByTxnID(ctx, paymentdomain.GatewayBukas, hook.ReferenceCode, paymentdomain.UpdateInput{Data: hook.Data()})
}

func (s *Service) Confirm(ctx context.Context, id snowflake.ID, receiptNumber, actorID string) (*paymentdomain.Status, error) {
	if err := s.requireGateway(ctx, id, paymentdomain.GatewayCashier); err != nil {
		return nil, err
	}
	return s.Update(ctx, id, paymentdomain.UpdateInput{
		Data:    map[string]string{"action": "confirm", "receipt_number": receiptNumber},
		ActorID: actorID,
	})
}

// Void cancels a cashier payment. Voiding twice fails with ErrAlreadyVoided.
func (s *Service) Void(ctx context.Context, id snowflake.ID, reason, actorID string) (*paymentdomain.Status, error) {
	if err := s.requireGateway(ctx, id, paymentdomain.GatewayCashier); err != nil {
		return nil, err
	}
	return s.Update(ctx, id, paymentdomain.UpdateInput{
		Data:    map[string]string{"action": "void", "reason": reason},
		ActorID: actorID,
	})
}

func (s *Service) requireGateway(ctx context.Context, id snowflake.ID, gateway paymentdomain.Gateway) error {
	tx, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if tx == nil {
		return paymentdomain.ErrTransactionNotFound
	}
	if tx.Gateway != gateway {
		return paymentdomain.ErrUnsupportedTransaction
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*paymentdomain.Transaction, error) {
	tx, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, paymentdomain.ErrTransactionNotFound
	}
	return tx, nil
}

func (s *Service) ListBySOA(ctx context.Context, soaID snowflake.ID) ([]paymentdomain.Transaction, error) {
	return s.repo.ListBySOA(ctx, s.db, soaID)
}

func (s *Service) ListChannels(ctx context.Context) ([]paymentdomain.Channel, error) {
	return s.repo.ListChannels(ctx, s.db)
}

// ExpireReferences fails pending references whose expiry has passed and
// returns how many were failed.
func (s *Service) ExpireReferences(ctx context.Context, limit int) (int, error) {
	now := s.clock.Now()
	expired, err := s.repo.ListExpired(ctx, s.db, now, limit)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, candidate := range expired {
		failed := false
		err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
			tx, err := s.repo.LockByID(ctx, db, candidate.ID)
			if err != nil || tx == nil {
				return err
			}
			if tx.Status != paymentdomain.StatusPending || tx.ExpiresAt == nil || tx.ExpiresAt.After(now) {
				return nil
			}
			tx.Status = paymentdomain.StatusFailed
			tx.UpdatedAt = now
			failed = true
			return s.repo.Save(ctx, db, tx)
		})
		if err != nil {
			return count, err
		}
		if failed {
			count++
			s.obsMetrics.RecordPaymentEvent(ctx, string(candidate.Gateway), string(paymentdomain.StatusFailed))
		}
	}
	if count > 0 {
		s.log.Info("expired payment references", zap.Int("count", count))
	}
	return count, nil
}

// Settle marks tx settled on db, tagging it with the journal voucher number.
// Callers hold the row lock.
func (s *Service) Settle(ctx context.Context, db *gorm.DB, tx *paymentdomain.Transaction, jvNumber string, at time.Time) error {
	tx.Status = paymentdomain.StatusSettled
	tx.JVNumber = jvNumber
	tx.SettledAt = &at
	tx.UpdatedAt = at
	if err := s.repo.Save(ctx, db, tx); err != nil {
		return err
	}
	s.obsMetrics.RecordPaymentEvent(ctx, string(tx.Gateway), string(paymentdomain.StatusSettled))
	return s.outbox.PublishTx(ctx, db, events.Event{
		Type:      events.EventPaymentSettled,
		DedupeKey: "payment_settled:" + tx.ID.String(),
		Payload: map[string]any{
			"transaction_id": tx.ID.String(),
			"soa_id":         tx.SOAID.String(),
			"gateway":        string(tx.Gateway),
			"amount":         tx.Amount.StringFixed(2),
			"jv_number":      jvNumber,
		},
	})
}

func (s *Service) Repository() paymentdomain.Repository {
	return s.repo
}
