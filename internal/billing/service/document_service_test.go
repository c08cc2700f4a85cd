package service

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rentfold/rentfold/internal/billing/domain"
	"github.com/rentfold/rentfold/internal/clock"
	"github.com/rentfold/rentfold/internal/providers/pdf"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestDocumentService(db *gorm.DB) domain.DocumentService {
	return NewDocumentService(DocumentParams{
		DB:  db,
		Log: zap.NewNop(),
		PDF: pdf.New(),
	})
}

func TestInvoicePDF(t *testing.T) {
	db := newTestDB(t)
	node := newTestNode(t)
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	invoiceSvc := newTestInvoiceService(db, node, clk)
	docSvc := newTestDocumentService(db)
	fixture := seedTenancy(t, db, node)
	addLeaseCharge(t, db, node, fixture.lease.ID, domain.ChargeTypeRent, 1200, domain.FrequencyMonthly)

	invoice := issuedInvoice(t, invoiceSvc, fixture.lease.ID,
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC))

	reader, err := docSvc.InvoicePDF(context.Background(), invoice.ID)
	require.NoError(t, err)
	raw, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
	assert.Equal(t, "%PDF", string(raw[:4]))
}

func TestInvoicePDF_NotFound(t *testing.T) {
	db := newTestDB(t)
	node := newTestNode(t)
	docSvc := newTestDocumentService(db)

	_, err := docSvc.InvoicePDF(context.Background(), node.Generate())
	assert.ErrorIs(t, err, domain.ErrInvoiceNotFound)
}

func TestPaymentReceiptPDF(t *testing.T) {
	db := newTestDB(t)
	node := newTestNode(t)
	clk := clock.NewFakeClock(time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC))
	invoiceSvc := newTestInvoiceService(db, node, clk)
	paySvc := newTestPaymentService(db, node, clk, nil)
	docSvc := newTestDocumentService(db)
	fixture := seedTenancy(t, db, node)
	addLeaseCharge(t, db, node, fixture.lease.ID, domain.ChargeTypeRent, 1000, domain.FrequencyMonthly)

	invoice := issuedInvoice(t, invoiceSvc, fixture.lease.ID,
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC))
	payment, err := paySvc.RecordManualPayment(context.Background(), domain.ManualPaymentInput{
		InvoiceID: invoice.ID,
		Amount:    decimal.NewFromInt(1000),
		Method:    domain.PaymentMethodCheck,
	})
	require.NoError(t, err)

	reader, err := docSvc.PaymentReceiptPDF(context.Background(), payment.ID)
	require.NoError(t, err)
	raw, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(raw[:4]))
}

func TestPaymentReceiptPDF_PendingPayment(t *testing.T) {
	db := newTestDB(t)
	node := newTestNode(t)
	docSvc := newTestDocumentService(db)
	fixture := seedTenancy(t, db, node)

	pending := domain.Payment{
		ID:        node.Generate(),
		TenantID:  fixture.tenant.ID,
		InvoiceID: node.Generate(),
		Amount:    decimal.NewFromInt(10),
		Method:    domain.PaymentMethodOnline,
		Status:    domain.PaymentStatusPending,
	}
	require.NoError(t, db.Create(&pending).Error)

	_, err := docSvc.PaymentReceiptPDF(context.Background(), pending.ID)
	assert.ErrorIs(t, err, domain.ErrReceiptUnavailable)
}
