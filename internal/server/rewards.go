package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	rewardsdomain "github.com/rentfold/rentfold/internal/rewards/domain"
	"github.com/shopspring/decimal"
)

type grantRewardRequest struct {
	TenantID    string          `json:"tenant_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

func (s *Server) handleGrantReward(c *gin.Context) {
	var req grantRewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}
	tenantID, err := snowflake.ParseString(req.TenantID)
	if err != nil {
		AbortWithError(c, newValidationError("tenant_id", "invalid_id", "must be a snowflake id"))
		return
	}

	txn, err := s.rewardsSvc.GrantReward(c.Request.Context(), rewardsdomain.GrantInput{
		TenantID:        tenantID,
		Amount:          req.Amount,
		TransactionType: rewardsdomain.TransactionManualGrant,
		Description:     req.Description,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toRewardTransactionResponse(txn))
}

type applyRewardsRequest struct {
	InvoiceID string           `json:"invoice_id"`
	Amount    *decimal.Decimal `json:"amount"`
}

func (s *Server) handleApplyRewards(c *gin.Context) {
	var req applyRewardsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}
	invoiceID, err := snowflake.ParseString(req.InvoiceID)
	if err != nil {
		AbortWithError(c, newValidationError("invoice_id", "invalid_id", "must be a snowflake id"))
		return
	}

	payment, err := s.rewardsSvc.ApplyRewardsToInvoice(c.Request.Context(), invoiceID, req.Amount)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if payment == nil {
		c.JSON(http.StatusOK, gin.H{"applied": false, "message": "nothing to apply"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"applied": true, "payment": toPaymentResponse(payment)})
}

type adjustRewardsRequest struct {
	TenantID    string          `json:"tenant_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

func (s *Server) handleAdjustRewards(c *gin.Context) {
	var req adjustRewardsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}
	tenantID, err := snowflake.ParseString(req.TenantID)
	if err != nil {
		AbortWithError(c, newValidationError("tenant_id", "invalid_id", "must be a snowflake id"))
		return
	}

	txn, err := s.rewardsSvc.AdminAdjustBalance(c.Request.Context(), tenantID, req.Amount, req.Description)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toRewardTransactionResponse(txn))
}
