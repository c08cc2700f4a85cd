package server

import (
	"io"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	billingdomain "github.com/rentfold/rentfold/internal/billing/domain"
	"github.com/rentfold/rentfold/pkg/db/pagination"
	"github.com/shopspring/decimal"
)

type createInvoiceRequest struct {
	LeaseID   string    `json:"lease_id"`
	IssueDate time.Time `json:"issue_date"`
	DueDate   time.Time `json:"due_date"`
	Issue     bool      `json:"issue"`
	Notes     string    `json:"notes"`
}

func (s *Server) handleCreateInvoice(c *gin.Context) {
	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}
	leaseID, err := snowflake.ParseString(req.LeaseID)
	if err != nil {
		AbortWithError(c, newValidationError("lease_id", "invalid_id", "must be a snowflake id"))
		return
	}
	if req.IssueDate.IsZero() || req.DueDate.IsZero() {
		AbortWithError(c, newValidationError("issue_date", "required", "issue_date and due_date are required"))
		return
	}

	invoice, err := s.invoiceSvc.CreateInvoiceForLease(c.Request.Context(), billingdomain.CreateInvoiceInput{
		LeaseID:   leaseID,
		IssueDate: req.IssueDate,
		DueDate:   req.DueDate,
		Issue:     req.Issue,
		Notes:     req.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toInvoiceResponse(invoice))
}

type listInvoicesRequest struct {
	pagination.Pagination

	LeaseID  string `form:"lease_id"`
	TenantID string `form:"tenant_id"`
	Status   string `form:"status"`
}

func (s *Server) handleListInvoices(c *gin.Context) {
	var req listInvoicesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid query parameters"))
		return
	}

	in := billingdomain.ListInvoicesInput{
		Pagination: req.Pagination,
		Status:     billingdomain.InvoiceStatus(req.Status),
	}
	if req.LeaseID != "" {
		leaseID, err := snowflake.ParseString(req.LeaseID)
		if err != nil {
			AbortWithError(c, newValidationError("lease_id", "invalid_id", "must be a snowflake id"))
			return
		}
		in.LeaseID = &leaseID
	}
	if req.TenantID != "" {
		tenantID, err := snowflake.ParseString(req.TenantID)
		if err != nil {
			AbortWithError(c, newValidationError("tenant_id", "invalid_id", "must be a snowflake id"))
			return
		}
		in.TenantID = &tenantID
	}

	invoices, pageInfo, err := s.invoiceSvc.ListInvoices(c.Request.Context(), in)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	items := make([]invoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		items = append(items, toInvoiceResponse(inv))
	}
	c.JSON(http.StatusOK, gin.H{"invoices": items, "page_info": pageInfo})
}

func (s *Server) handleGetInvoice(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	invoice, err := s.invoiceSvc.GetInvoice(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toInvoiceResponse(invoice))
}

func (s *Server) handleInvoicePDF(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	reader, err := s.documentSvc.InvoicePDF(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Header("Content-Type", "application/pdf")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, reader)
}

type addLineItemRequest struct {
	ChargeType  string          `json:"charge_type"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

func (s *Server) handleAddLineItem(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req addLineItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}
	if req.Description == "" {
		AbortWithError(c, newValidationError("description", "required", "description is required"))
		return
	}
	chargeType := billingdomain.ChargeType(req.ChargeType)
	if chargeType == "" {
		chargeType = billingdomain.ChargeTypeOther
	}

	invoice, err := s.invoiceSvc.AddLineItem(c.Request.Context(), id, billingdomain.LineItemInput{
		ChargeType:  chargeType,
		Description: req.Description,
		Quantity:    req.Quantity,
		UnitPrice:   req.UnitPrice,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toInvoiceResponse(invoice))
}

func (s *Server) handleRemoveLineItem(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	itemID, ok := parseID(c, "itemID")
	if !ok {
		return
	}
	invoice, err := s.invoiceSvc.RemoveLineItem(c.Request.Context(), id, itemID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toInvoiceResponse(invoice))
}
