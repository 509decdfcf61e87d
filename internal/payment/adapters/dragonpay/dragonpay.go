package dragonpay

import (
	"context"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/registrar/internal/config"
	"github.com/smallbiznis/registrar/internal/payment/domain"
)

// Adapter builds Dragonpay redirect URLs and applies postbacks.
type Adapter struct {
	merchantID string
	password   string
	paymentURL string
	currency   string
}

func New(cfg config.DragonpayConfig) *Adapter {
	currency := strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "PHP"
	}
	return &Adapter{
		merchantID: strings.TrimSpace(cfg.MerchantID),
		password:   strings.TrimSpace(cfg.MerchantPassword),
		paymentURL: strings.TrimSpace(cfg.PaymentURL),
		currency:   currency,
	}
}

func (a *Adapter) Gateway() domain.Gateway {
	return domain.GatewayDragonpay
}

func (a *Adapter) configured() bool {
	return a.merchantID != "" && a.password != "" && a.paymentURL != ""
}

func (a *Adapter) Create(ctx context.Context, in domain.CreateInput) (*domain.Transaction, error) {
	if !a.configured() {
		return nil, domain.ErrGatewayNotConfigured
	}
	if !in.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}

	fee := decimal.Zero
	total := in.Amount
	procID := ""
	if in.Channel != nil {
		fee = in.Channel.Fee(in.Amount)
		total = in.Channel.Total(in.Amount)
		procID = in.Channel.ProcID
	}

	txnID := ulid.Make().String()
	description := strings.TrimSpace(in.Data["description"])
	if description == "" {
		description = fmt.Sprintf("Tuition payment %s", in.Student.IDNumber)
	}
	email := strings.TrimSpace(in.Data["email"])
	if email == "" {
		email = in.Student.Email
	}
	amount := total.StringFixed(2)

	digest := Digest(a.merchantID, txnID, amount, a.currency, description, email, a.password)
	query := url.Values{}
	query.Set("merchantid", a.merchantID)
	query.Set("txnid", txnID)
	query.Set("amount", amount)
	query.Set("ccy", a.currency)
	query.Set("description", description)
	query.Set("email", email)
	query.Set("digest", digest)
	if procID != "" {
		query.Set("procid", procID)
	}

	tx := &domain.Transaction{
		SOAID:       in.Statement.ID,
		Gateway:     domain.GatewayDragonpay,
		Status:      domain.StatusPending,
		Amount:      in.Amount.Round(2),
		Fee:         fee,
		TotalAmount: total,
		TxnID:       txnID,
		Description: description,
	}
	if err := tx.SetDetails(domain.DragonpayDetails{
		ProcID:     procID,
		Email:      email,
		PaymentURL: a.paymentURL + "?" + query.Encode(),
	}); err != nil {
		return nil, err
	}
	return tx, nil
}

// Update applies a postback or return-URL callback carrying
// txnid, refno, status, message and digest.
func (a *Adapter) Update(ctx context.Context, tx *domain.Transaction, in domain.UpdateInput) (domain.Status, error) {
	if !a.configured() {
		return tx.Status, domain.ErrGatewayNotConfigured
	}
	txnID := strings.TrimSpace(in.Data["txnid"])
	refNo := strings.TrimSpace(in.Data["refno"])
	code := strings.ToUpper(strings.TrimSpace(in.Data["status"]))
	message := in.Data["message"]

	expected := Digest(txnID, refNo, code, message, a.password)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(in.Data["digest"])))) != 1 {
		return tx.Status, domain.ErrInvalidSignature
	}
	if txnID != tx.TxnID {
		return tx.Status, domain.ErrInvalidPayload
	}

	next, ok := StatusFromCode(code)
	if !ok {
		return tx.Status, domain.ErrInvalidStatus
	}
	if !tx.Status.AcceptsCallback(next) {
		return tx.Status, nil
	}

	details, _ := tx.DragonpayDetails()
	details.RefNo = refNo
	details.Message = message
	details.StatusCode = code
	if err := tx.SetDetails(details); err != nil {
		return tx.Status, err
	}
	tx.ReferenceNumber = refNo
	return next, nil
}

// StatusFromCode maps Dragonpay's one-letter status codes.
func StatusFromCode(code string) (domain.Status, bool) {
	switch code {
	case "S":
		return domain.StatusSuccess, true
	case "F":
		return domain.StatusFailed, true
	case "P", "U", "A":
		return domain.StatusPending, true
	case "R", "K":
		return domain.StatusRefunded, true
	case "V":
		return domain.StatusVoided, true
	default:
		return "", false
	}
}

// Digest is the hex SHA1 of the colon-joined parts.
func Digest(parts ...string) string {
	sum := sha1.Sum([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(sum[:])
}
