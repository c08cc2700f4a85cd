package domain

import (
	"context"
	"io"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/rentfold/rentfold/pkg/db/pagination"
	"github.com/shopspring/decimal"
)

type LineItemInput struct {
	ChargeType  ChargeType
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	BillingMode string
}

type CreateInvoiceInput struct {
	LeaseID        snowflake.ID
	BillingCycleID *snowflake.ID
	IssueDate      time.Time
	DueDate        time.Time
	Issue          bool
	Notes          string
}

type ListInvoicesInput struct {
	pagination.Pagination

	LeaseID  *snowflake.ID
	TenantID *snowflake.ID
	Status   InvoiceStatus
}

// InvoiceService assembles invoices from recurring charges and utility
// configs and keeps totals equal to the sum of line items.
type InvoiceService interface {
	CreateInvoiceForLease(ctx context.Context, in CreateInvoiceInput) (*Invoice, error)
	AddLineItem(ctx context.Context, invoiceID snowflake.ID, in LineItemInput) (*Invoice, error)
	RemoveLineItem(ctx context.Context, invoiceID, lineItemID snowflake.ID) (*Invoice, error)
	GetInvoice(ctx context.Context, id snowflake.ID) (*Invoice, error)
	ListInvoices(ctx context.Context, in ListInvoicesInput) ([]*Invoice, *pagination.PageInfo, error)
	GenerateMonthlyInvoices(ctx context.Context, billingDate time.Time) (int, error)
}

type InitiatePaymentInput struct {
	InvoiceID    snowflake.ID
	Provider     string
	ApplyCredits bool
}

// PaymentIntent is what the interactive caller needs to finish an online
// payment: either the invoice settled entirely from credits, or a pending
// payment plus the gateway's client-side config.
type PaymentIntent struct {
	Payment       *Payment
	Settled       bool
	CreditApplied decimal.Decimal
	AmountDue     decimal.Decimal
	ClientConfig  map[string]any
}

type ManualPaymentInput struct {
	InvoiceID snowflake.ID
	Amount    decimal.Decimal
	Method    PaymentMethod
	Reference string
	PaidAt    time.Time
}

type ConfirmResult struct {
	Payment *Payment
	// Message is the user-facing outcome ("already processed", "processing").
	Message string
}

// PaymentService orchestrates online initiation, manual recording,
// credit application and gateway confirmation.
type PaymentService interface {
	InitiateOnlinePayment(ctx context.Context, in InitiatePaymentInput) (*PaymentIntent, error)
	RecordManualPayment(ctx context.Context, in ManualPaymentInput) (*Payment, error)
	ConfirmGatewayPayment(ctx context.Context, paymentID snowflake.ID) (*ConfirmResult, error)
	AutoApplyPrepaymentCredits(ctx context.Context) (int, error)
}

// DocumentService renders invoices and payment receipts as PDF. Receipts
// exist only for completed payments.
type DocumentService interface {
	InvoicePDF(ctx context.Context, invoiceID snowflake.ID) (io.Reader, error)
	PaymentReceiptPDF(ctx context.Context, paymentID snowflake.ID) (io.Reader, error)
}

// PrepaymentObserver is notified after commit when an overpayment turns into
// a prepayment credit. The rewards engine hangs off this hook.
type PrepaymentObserver interface {
	PrepaymentRecorded(ctx context.Context, tenantID, propertyID snowflake.ID, amount decimal.Decimal) error
}

// LateFeeService applies late fees and interest per PropertyBillingConfig,
// at most once per eligibility window.
type LateFeeService interface {
	ApplyLateFee(ctx context.Context, invoiceID snowflake.ID, asOf time.Time) (bool, error)
	ApplyInterest(ctx context.Context, invoiceID snowflake.ID, asOf time.Time) (bool, error)
	SweepOverdue(ctx context.Context, asOf time.Time) (int, error)
}
