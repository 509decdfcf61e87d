package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/registrar/internal/payment/adapters/bukas"
	paymentdomain "github.com/smallbiznis/registrar/internal/payment/domain"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

// DragonpayPostback acknowledges with "result=OK" once the status is stored.
// Unknown transactions and repeated deliveries are acknowledged so the
// gateway stops retrying.
func (s *Server) DragonpayPostback(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	txnID := c.Request.PostForm.Get("txnid")

	changed, err := s.paymentSvc.DragonpayCallback(c.Request.Context(), flattenValues(c.Request.PostForm))
	if err != nil {
		if errors.Is(err, paymentdomain.ErrTransactionNotFound) {
			s.log.Warn("dragonpay postback for unknown transaction", zap.String("txnid", txnID))
			c.String(http.StatusOK, "result=OK")
			return
		}
		AbortWithError(c, err)
		return
	}

	if changed == nil {
		s.log.Info("dragonpay postback repeated a stored status", zap.String("txnid", txnID))
	} else {
		s.log.Info("dragonpay postback processed",
			zap.String("txnid", txnID),
			zap.String("status", string(*changed)),
		)
	}
	c.String(http.StatusOK, "result=OK")
}

// DragonpayReturn applies the browser return parameters and reports the
// transaction's status, whether or not the postback already stored it.
func (s *Server) DragonpayReturn(c *gin.Context) {
	data := flattenValues(c.Request.URL.Query())
	changed, err := s.paymentSvc.DragonpayCallback(c.Request.Context(), data)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	status, err := s.storedStatus(c.Request.Context(), paymentdomain.GatewayDragonpay, data["txnid"], changed)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"txnid":   data["txnid"],
		"status":  status,
		"message": data["message"],
	})
}

func (s *Server) BukasWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil || len(payload) == 0 {
		AbortWithError(c, invalidRequestError())
		return
	}

	changed, err := s.paymentSvc.BukasWebhook(c.Request.Context(), payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrTransactionNotFound) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		AbortWithError(c, err)
		return
	}

	// DecodeWebhook already succeeded inside the service.
	hook, _ := bukas.DecodeWebhook(payload)
	status, err := s.storedStatus(c.Request.Context(), paymentdomain.GatewayBukas, hook.ReferenceCode, changed)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "payment_status": status})
}

// storedStatus returns changed when the callback moved the transaction and
// the persisted status when it did not.
func (s *Server) storedStatus(ctx context.Context, gateway paymentdomain.Gateway, txnID string, changed *paymentdomain.Status) (paymentdomain.Status, error) {
	if changed != nil {
		return *changed, nil
	}
	tx, err := s.paymentSvc.GetByTxnID(ctx, gateway, txnID)
	if err != nil {
		return "", err
	}
	return tx.Status, nil
}

func flattenValues(values map[string][]string) map[string]string {
	out := make(map[string]string, len(values))
	for key, vals := range values {
		if len(vals) > 0 {
			out[key] = vals[0]
		}
	}
	return out
}
