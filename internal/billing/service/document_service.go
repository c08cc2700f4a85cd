package service

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/rentfold/rentfold/internal/billing/domain"
	"github.com/rentfold/rentfold/internal/providers/pdf"
	tenancydomain "github.com/rentfold/rentfold/internal/tenancy/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type DocumentParams struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
	PDF pdf.Provider
}

type documentService struct {
	db  *gorm.DB
	log *zap.Logger
	pdf pdf.Provider
}

func NewDocumentService(p DocumentParams) domain.DocumentService {
	return &documentService{
		db:  p.DB,
		log: p.Log.Named("billing.document"),
		pdf: p.PDF,
	}
}

func (s *documentService) InvoicePDF(ctx context.Context, invoiceID snowflake.ID) (io.Reader, error) {
	data, err := s.invoiceData(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return s.pdf.GenerateInvoice(ctx, *data)
}

func (s *documentService) PaymentReceiptPDF(ctx context.Context, paymentID snowflake.ID) (io.Reader, error) {
	var payment domain.Payment
	err := s.db.WithContext(ctx).First(&payment, "id = ?", paymentID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}
	if payment.Status != domain.PaymentStatusCompleted {
		return nil, domain.ErrReceiptUnavailable
	}

	invoiceData, err := s.invoiceData(ctx, payment.InvoiceID)
	if err != nil {
		return nil, err
	}

	data := pdf.ReceiptData{
		InvoiceData:   *invoiceData,
		PaymentMethod: string(payment.Method),
		Reference:     payment.GatewayTransactionID,
		AmountTotal:   "$" + payment.Amount.StringFixed(2),
	}
	if payment.PaidAt != nil {
		data.DatePaid = payment.PaidAt.Format("Jan 2, 2006")
	}
	if payment.CreditApplied.IsPositive() {
		data.CreditApplied = "$" + payment.CreditApplied.StringFixed(2)
	}
	if payment.RewardApplied.IsPositive() {
		data.RewardApplied = "$" + payment.RewardApplied.StringFixed(2)
	}
	return s.pdf.GenerateReceipt(ctx, data)
}

// invoiceData loads the invoice with its parties and flattens everything to
// the strings the renderer wants.
func (s *documentService) invoiceData(ctx context.Context, invoiceID snowflake.ID) (*pdf.InvoiceData, error) {
	var invoice domain.Invoice
	err := s.db.WithContext(ctx).Preload("LineItems").First(&invoice, "id = ?", invoiceID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInvoiceNotFound
		}
		return nil, err
	}

	var lease tenancydomain.Lease
	if err := s.db.WithContext(ctx).First(&lease, "id = ?", invoice.LeaseID).Error; err != nil {
		return nil, err
	}
	var property tenancydomain.Property
	if err := s.db.WithContext(ctx).First(&property, "id = ?", lease.PropertyID).Error; err != nil {
		return nil, err
	}
	var unit tenancydomain.Unit
	if err := s.db.WithContext(ctx).First(&unit, "id = ?", lease.UnitID).Error; err != nil {
		return nil, err
	}
	var tenant tenancydomain.Tenant
	if err := s.db.WithContext(ctx).First(&tenant, "id = ?", invoice.TenantID).Error; err != nil {
		return nil, err
	}

	data := pdf.InvoiceData{
		PropertyName:    property.Name,
		PropertyAddress: property.Address,
		InvoiceNumber:   invoice.InvoiceNumber,
		IssueDate:       invoice.IssueDate.Format("Jan 2, 2006"),
		DueDate:         invoice.DueDate.Format("Jan 2, 2006"),
		Status:          string(invoice.Status),
		TenantName:      strings.TrimSpace(tenant.FirstName + " " + tenant.LastName),
		TenantEmail:     tenant.Email,
		UnitLabel:       unit.Label,
		Total:           "$" + invoice.TotalAmount.StringFixed(2),
		AmountPaid:      "$" + invoice.AmountPaid.StringFixed(2),
		AmountDue:       "$" + invoice.BalanceDue().StringFixed(2),
		Notes:           invoice.Notes,
	}
	for _, item := range invoice.LineItems {
		data.Items = append(data.Items, pdf.LineItem{
			Description: item.Description,
			Qty:         item.Quantity.StringFixed(2),
			UnitPrice:   "$" + item.UnitPrice.StringFixed(2),
			Amount:      "$" + item.Amount.StringFixed(2),
		})
	}
	return &data, nil
}
