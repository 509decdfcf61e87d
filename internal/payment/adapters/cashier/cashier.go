package cashier

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/registrar/internal/payment/domain"
)

const (
	ActionConfirm = "confirm"
	ActionVoid    = "void"
	ActionFail    = "fail"
)

// Adapter records payments taken at the cashier window.
type Adapter struct{}

func New() *Adapter {
	return &Adapter{}
}

func (a *Adapter) Gateway() domain.Gateway {
	return domain.GatewayCashier
}

func (a *Adapter) Create(ctx context.Context, in domain.CreateInput) (*domain.Transaction, error) {
	if !in.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	reference := "CSH-" + ulid.Make().String()
	tx := &domain.Transaction{
		SOAID:           in.Statement.ID,
		Gateway:         domain.GatewayCashier,
		Status:          domain.StatusPending,
		Amount:          in.Amount.Round(2),
		TotalAmount:     in.Amount.Round(2),
		TxnID:           reference,
		ReferenceNumber: reference,
		Description:     "Cashier payment " + in.Student.IDNumber,
	}
	if err := tx.SetDetails(domain.CashierDetails{StudentIDNumber: in.Student.IDNumber}); err != nil {
		return nil, err
	}
	return tx, nil
}

// Update handles the confirm, void and fail actions.
func (a *Adapter) Update(ctx context.Context, tx *domain.Transaction, in domain.UpdateInput) (domain.Status, error) {
	details, _ := tx.CashierDetails()

	switch strings.ToLower(strings.TrimSpace(in.Data["action"])) {
	case ActionConfirm:
		if tx.Status != domain.StatusPending {
			return tx.Status, nil
		}
		details.ReceiptNumber = strings.TrimSpace(in.Data["receipt_number"])
		details.ConfirmedBy = in.ActorID
		if details.ReceiptNumber != "" {
			tx.ReferenceNumber = details.ReceiptNumber
		}
		if err := tx.SetDetails(details); err != nil {
			return tx.Status, err
		}
		return domain.StatusSuccess, nil
	case ActionVoid:
		switch tx.Status {
		case domain.StatusVoided:
			return tx.Status, domain.ErrAlreadyVoided
		case domain.StatusSettled:
			return tx.Status, domain.ErrNotVoidable
		}
		details.VoidReason = strings.TrimSpace(in.Data["reason"])
		details.VoidedBy = in.ActorID
		if err := tx.SetDetails(details); err != nil {
			return tx.Status, err
		}
		return domain.StatusVoided, nil
	case ActionFail:
		if tx.Status != domain.StatusPending {
			return tx.Status, nil
		}
		return domain.StatusFailed, nil
	default:
		return tx.Status, domain.ErrInvalidStatus
	}
}
