package pdf

import (
	"context"
	"io"
)

// Provider renders billing documents. Data is pre-formatted by the caller;
// rendering never touches the database.
type Provider interface {
	GenerateInvoice(ctx context.Context, data InvoiceData) (io.Reader, error)
	GenerateReceipt(ctx context.Context, data ReceiptData) (io.Reader, error)
}

type LineItem struct {
	Description string
	Qty         string
	UnitPrice   string
	Amount      string
}

type InvoiceData struct {
	PropertyName    string
	PropertyAddress string

	InvoiceNumber string
	IssueDate     string
	DueDate       string
	Status        string

	TenantName  string
	TenantEmail string
	UnitLabel   string

	Items []LineItem

	Total      string
	AmountPaid string
	AmountDue  string
	Notes      string
}

type ReceiptData struct {
	InvoiceData

	DatePaid      string
	PaymentMethod string
	Reference     string
	AmountTotal   string
	CreditApplied string
	RewardApplied string
}
