package otc

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/registrar/internal/payment/domain"
)

// Adapter issues over-the-counter deposit references. Deposits only settle
// through a journal voucher; the adapter itself can only fail a reference.
type Adapter struct{}

func New() *Adapter {
	return &Adapter{}
}

func (a *Adapter) Gateway() domain.Gateway {
	return domain.GatewayOTC
}

func (a *Adapter) Create(ctx context.Context, in domain.CreateInput) (*domain.Transaction, error) {
	if !in.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	reference := "OTC-" + ulid.Make().String()
	tx := &domain.Transaction{
		SOAID:           in.Statement.ID,
		Gateway:         domain.GatewayOTC,
		Status:          domain.StatusPending,
		Amount:          in.Amount.Round(2),
		TotalAmount:     in.Amount.Round(2),
		TxnID:           reference,
		ReferenceNumber: reference,
		Description:     "Over the counter deposit " + in.Student.IDNumber,
	}
	if err := tx.SetDetails(domain.OTCDetails{Bank: strings.ToUpper(strings.TrimSpace(in.Data["bank"]))}); err != nil {
		return nil, err
	}
	return tx, nil
}

func (a *Adapter) Update(ctx context.Context, tx *domain.Transaction, in domain.UpdateInput) (domain.Status, error) {
	switch strings.ToLower(strings.TrimSpace(in.Data["status"])) {
	case string(domain.StatusFailed):
		if tx.Status != domain.StatusPending {
			return tx.Status, nil
		}
		return domain.StatusFailed, nil
	case string(domain.StatusPending):
		return tx.Status, nil
	default:
		return tx.Status, domain.ErrInvalidStatus
	}
}
