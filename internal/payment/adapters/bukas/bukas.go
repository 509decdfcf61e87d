package bukas

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/registrar/internal/config"
	"github.com/smallbiznis/registrar/internal/payment/domain"
)

const createPath = "/api/v1/payments"

// Adapter talks to the Bukas installment API.
type Adapter struct {
	baseURL   string
	apiKey    string
	secretKey string
	client    *http.Client
}

func New(cfg config.BukasConfig) *Adapter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Adapter{
		baseURL:   strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:    strings.TrimSpace(cfg.APIKey),
		secretKey: strings.TrimSpace(cfg.SecretKey),
		client:    &http.Client{Timeout: timeout},
	}
}

func (a *Adapter) Gateway() domain.Gateway {
	return domain.GatewayBukas
}

type createResponse struct {
	TransactionID string `json:"transaction_id"`
	CheckoutURL   string `json:"checkout_url"`
	Message       string `json:"message"`
	Error         string `json:"error"`
}

// Create registers the payment with Bukas. Non-2xx responses fail with the
// reason Bukas returned.
func (a *Adapter) Create(ctx context.Context, in domain.CreateInput) (*domain.Transaction, error) {
	if a.baseURL == "" || a.apiKey == "" || a.secretKey == "" {
		return nil, domain.ErrGatewayNotConfigured
	}
	if !in.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}

	referenceCode := ulid.Make().String()
	description := strings.TrimSpace(in.Data["description"])
	if description == "" {
		description = fmt.Sprintf("Tuition payment %s", in.Student.IDNumber)
	}
	fields := map[string]string{
		"amount":            in.Amount.StringFixed(2),
		"description":       description,
		"email":             in.Student.Email,
		"first_name":        in.Student.FirstName,
		"last_name":         in.Student.LastName,
		"reference_code":    referenceCode,
		"student_id_number": in.Student.IDNumber,
	}
	body := SignedPayload(fields, a.secretKey, a.apiKey)

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+createPath, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayRequestFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayRequestFailed, err)
	}
	var decoded createResponse
	_ = json.Unmarshal(respBody, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reason := strings.TrimSpace(decoded.Message)
		if reason == "" {
			reason = strings.TrimSpace(decoded.Error)
		}
		if reason == "" {
			reason = resp.Status
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrGatewayRequestFailed, reason)
	}

	tx := &domain.Transaction{
		SOAID:           in.Statement.ID,
		Gateway:         domain.GatewayBukas,
		Status:          domain.StatusPending,
		Amount:          in.Amount.Round(2),
		TotalAmount:     in.Amount.Round(2),
		TxnID:           referenceCode,
		ReferenceNumber: decoded.TransactionID,
		Description:     description,
	}
	if err := tx.SetDetails(domain.BukasDetails{
		StudentIDNumber: in.Student.IDNumber,
		ReferenceCode:   referenceCode,
		TransactionID:   decoded.TransactionID,
		CheckoutURL:     decoded.CheckoutURL,
	}); err != nil {
		return nil, err
	}
	return tx, nil
}

// Update applies a decoded webhook payload. The amount must equal the
// transaction total.
func (a *Adapter) Update(ctx context.Context, tx *domain.Transaction, in domain.UpdateInput) (domain.Status, error) {
	details, _ := tx.BukasDetails()
	if id := strings.TrimSpace(in.Data["student_id_number"]); id != "" && details.StudentIDNumber != "" && id != details.StudentIDNumber {
		return tx.Status, domain.ErrInvalidPayload
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(in.Data["amount"]))
	if err != nil || !amount.Equal(tx.TotalAmount) {
		return tx.Status, fmt.Errorf("%w: amount %q does not match %s", domain.ErrInvalidPayload, in.Data["amount"], tx.TotalAmount.StringFixed(2))
	}

	next, ok := StatusFromWebhook(in.Data["status"])
	if !ok {
		return tx.Status, domain.ErrInvalidStatus
	}
	if !tx.Status.AcceptsCallback(next) {
		return tx.Status, nil
	}

	if id := strings.TrimSpace(in.Data["transaction_id"]); id != "" {
		details.TransactionID = id
		tx.ReferenceNumber = id
	}
	if err := tx.SetDetails(details); err != nil {
		return tx.Status, err
	}
	return next, nil
}

func StatusFromWebhook(status string) (domain.Status, bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "success", "paid", "approved":
		return domain.StatusSuccess, true
	case "failed", "cancelled", "canceled", "declined", "expired":
		return domain.StatusFailed, true
	case "pending", "processing":
		return domain.StatusPending, true
	default:
		return "", false
	}
}

// Webhook is the JSON document carried base64-encoded in a Bukas webhook body.
type Webhook struct {
	StudentIDNumber string `json:"student_id_number"`
	Status          string `json:"status"`
	TransactionID   string `json:"transaction_id"`
	ReferenceCode   string `json:"reference_code"`
	Amount          string `json:"amount"`
}

// DecodeWebhook decodes a base64 webhook body.
func DecodeWebhook(body []byte) (Webhook, error) {
	trimmed := bytes.TrimSpace(body)
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(trimmed)))
	n, err := base64.StdEncoding.Decode(raw, trimmed)
	if err != nil {
		return Webhook{}, domain.ErrInvalidPayload
	}

	var payload struct {
		StudentIDNumber string          `json:"student_id_number"`
		Status          string          `json:"status"`
		TransactionID   string          `json:"transaction_id"`
		ReferenceCode   string          `json:"reference_code"`
		Amount          json.RawMessage `json:"amount"`
	}
	if err := json.Unmarshal(raw[:n], &payload); err != nil {
		return Webhook{}, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(payload.ReferenceCode) == "" {
		return Webhook{}, domain.ErrInvalidPayload
	}
	return Webhook{
		StudentIDNumber: strings.TrimSpace(payload.StudentIDNumber),
		Status:          strings.TrimSpace(payload.Status),
		TransactionID:   strings.TrimSpace(payload.TransactionID),
		ReferenceCode:   strings.TrimSpace(payload.ReferenceCode),
		Amount:          strings.Trim(string(payload.Amount), `"`),
	}, nil
}

func (w Webhook) Data() map[string]string {
	return map[string]string{
		"student_id_number": w.StudentIDNumber,
		"status":            w.Status,
		"transaction_id":    w.TransactionID,
		"reference_code":    w.ReferenceCode,
		"amount":            w.Amount,
	}
}

// SignedPayload returns fields with digest and api_key appended. The digest
// is the hex SHA-512 of the values in key order followed by the secret.
func SignedPayload(fields map[string]string, secret, apiKey string) map[string]string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(fields[k])
	}
	b.WriteString(secret)
	sum := sha512.Sum512([]byte(b.String()))

	out := make(map[string]string, len(fields)+2)
	for k, v := range fields {
		out[k] = v
	}
	out["digest"] = hex.EncodeToString(sum[:])
	out["api_key"] = apiKey
	return out
}
