package server

import (
	"io"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	billingdomain "github.com/rentfold/rentfold/internal/billing/domain"
	"github.com/shopspring/decimal"
)

type initiatePaymentRequest struct {
	InvoiceID    string `json:"invoice_id"`
	Provider     string `json:"provider"`
	ApplyCredits bool   `json:"apply_credits"`
}

type paymentIntentResponse struct {
	Payment       paymentResponse `json:"payment"`
	Settled       bool            `json:"settled"`
	CreditApplied string          `json:"credit_applied"`
	AmountDue     string          `json:"amount_due"`
	ClientConfig  map[string]any  `json:"client_config,omitempty"`
}

func (s *Server) handleInitiateOnlinePayment(c *gin.Context) {
	var req initiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}
	invoiceID, err := snowflake.ParseString(req.InvoiceID)
	if err != nil {
		AbortWithError(c, newValidationError("invoice_id", "invalid_id", "must be a snowflake id"))
		return
	}

	intent, err := s.paymentSvc.InitiateOnlinePayment(c.Request.Context(), billingdomain.InitiatePaymentInput{
		InvoiceID:    invoiceID,
		Provider:     req.Provider,
		ApplyCredits: req.ApplyCredits,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, paymentIntentResponse{
		Payment:       toPaymentResponse(intent.Payment),
		Settled:       intent.Settled,
		CreditApplied: intent.CreditApplied.StringFixed(2),
		AmountDue:     intent.AmountDue.StringFixed(2),
		ClientConfig:  intent.ClientConfig,
	})
}

type manualPaymentRequest struct {
	InvoiceID string          `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	Reference string          `json:"reference"`
	PaidAt    time.Time       `json:"paid_at"`
}

func (s *Server) handleRecordManualPayment(c *gin.Context) {
	var req manualPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}
	invoiceID, err := snowflake.ParseString(req.InvoiceID)
	if err != nil {
		AbortWithError(c, newValidationError("invoice_id", "invalid_id", "must be a snowflake id"))
		return
	}
	method := billingdomain.PaymentMethod(req.Method)
	if method == "" {
		method = billingdomain.PaymentMethodCheck
	}

	payment, err := s.paymentSvc.RecordManualPayment(c.Request.Context(), billingdomain.ManualPaymentInput{
		InvoiceID: invoiceID,
		Amount:    req.Amount,
		Method:    method,
		Reference: req.Reference,
		PaidAt:    req.PaidAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toPaymentResponse(payment))
}

func (s *Server) handleConfirmPayment(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	result, err := s.paymentSvc.ConfirmGatewayPayment(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"payment": toPaymentResponse(result.Payment),
		"message": result.Message,
	})
}

func (s *Server) handlePaymentReceipt(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	reader, err := s.documentSvc.PaymentReceiptPDF(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Header("Content-Type", "application/pdf")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, reader)
}
