package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/registrar/internal/authorization"
	paymentdomain "github.com/smallbiznis/registrar/internal/payment/domain"
)

type createPaymentRequest struct {
	Gateway string            `json:"gateway"`
	Data    map[string]string `json:"data"`
}

type confirmPaymentRequest struct {
	ReceiptNumber string `json:"receipt_number"`
}

type voidPaymentRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) CreatePayment(c *gin.Context) {
	soaID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.Gateway) == "" {
		AbortWithError(c, newValidationError("gateway", "invalid_gateway", "gateway is required"))
		return
	}
	if req.Data == nil {
		req.Data = map[string]string{}
	}

	tx, err := s.paymentSvc.Create(c.Request.Context(), soaID, req.Gateway, req.Data)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": tx})
}

func (s *Server) ListStatementPayments(c *gin.Context) {
	soaID, ok := pathID(c, "id")
	if !ok {
		return
	}

	items, err := s.paymentSvc.ListBySOA(c.Request.Context(), soaID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if items == nil {
		items = []paymentdomain.Transaction{}
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) ListPaymentChannels(c *gin.Context) {
	channels, err := s.paymentSvc.ListChannels(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if channels == nil {
		channels = []paymentdomain.Channel{}
	}

	c.JSON(http.StatusOK, gin.H{"data": channels})
}

func (s *Server) ConfirmCashierPayment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req confirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	receipt := strings.TrimSpace(req.ReceiptNumber)
	if receipt == "" {
		AbortWithError(c, newValidationError("receipt_number", "invalid_receipt_number", "receipt_number is required"))
		return
	}

	status, err := s.paymentSvc.Confirm(c.Request.Context(), id, receipt, actorID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, authorization.ActionPaymentConfirm, authorization.ObjectPayment, id.String(), map[string]any{
		"receipt_number": receipt,
		"status":         string(*status),
	})

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"id": id.String(), "status": *status}})
}

func (s *Server) VoidPayment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req voidPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	reason := strings.TrimSpace(req.Reason)
	status, err := s.paymentSvc.Void(c.Request.Context(), id, reason, actorID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, authorization.ActionPaymentVoid, authorization.ObjectPayment, id.String(), map[string]any{
		"reason": reason,
	})

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"id": id.String(), "status": *status}})
}
