package server

import (
	"time"

	billingdomain "github.com/rentfold/rentfold/internal/billing/domain"
	rewardsdomain "github.com/rentfold/rentfold/internal/rewards/domain"
)

type lineItemResponse struct {
	ID          string `json:"id"`
	ChargeType  string `json:"charge_type"`
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Amount      string `json:"amount"`
}

type invoiceResponse struct {
	ID            string             `json:"id"`
	InvoiceNumber string             `json:"invoice_number"`
	LeaseID       string             `json:"lease_id"`
	TenantID      string             `json:"tenant_id"`
	Status        string             `json:"status"`
	IssueDate     time.Time          `json:"issue_date"`
	DueDate       time.Time          `json:"due_date"`
	TotalAmount   string             `json:"total_amount"`
	AmountPaid    string             `json:"amount_paid"`
	BalanceDue    string             `json:"balance_due"`
	LateFeesTotal string             `json:"late_fees_total"`
	Notes         string             `json:"notes,omitempty"`
	LineItems     []lineItemResponse `json:"line_items"`
}

func toInvoiceResponse(invoice *billingdomain.Invoice) invoiceResponse {
	out := invoiceResponse{
		ID:            invoice.ID.String(),
		InvoiceNumber: invoice.InvoiceNumber,
		LeaseID:       invoice.LeaseID.String(),
		TenantID:      invoice.TenantID.String(),
		Status:        string(invoice.Status),
		IssueDate:     invoice.IssueDate,
		DueDate:       invoice.DueDate,
		TotalAmount:   invoice.TotalAmount.StringFixed(2),
		AmountPaid:    invoice.AmountPaid.StringFixed(2),
		BalanceDue:    invoice.BalanceDue().StringFixed(2),
		LateFeesTotal: invoice.LateFeesTotal.StringFixed(2),
		Notes:         invoice.Notes,
		LineItems:     []lineItemResponse{},
	}
	for _, item := range invoice.LineItems {
		out.LineItems = append(out.LineItems, lineItemResponse{
			ID:          item.ID.String(),
			ChargeType:  string(item.ChargeType),
			Description: item.Description,
			Quantity:    item.Quantity.StringFixed(2),
			UnitPrice:   item.UnitPrice.StringFixed(2),
			Amount:      item.Amount.StringFixed(2),
		})
	}
	return out
}

type paymentResponse struct {
	ID                   string     `json:"id"`
	TenantID             string     `json:"tenant_id"`
	InvoiceID            string     `json:"invoice_id"`
	Amount               string     `json:"amount"`
	Method               string     `json:"method"`
	Status               string     `json:"status"`
	GatewayProvider      string     `json:"gateway_provider,omitempty"`
	GatewayTransactionID string     `json:"gateway_transaction_id,omitempty"`
	CreditApplied        string     `json:"credit_applied"`
	RewardApplied        string     `json:"reward_applied"`
	PaidAt               *time.Time `json:"paid_at,omitempty"`
}

func toPaymentResponse(payment *billingdomain.Payment) paymentResponse {
	return paymentResponse{
		ID:                   payment.ID.String(),
		TenantID:             payment.TenantID.String(),
		InvoiceID:            payment.InvoiceID.String(),
		Amount:               payment.Amount.StringFixed(2),
		Method:               string(payment.Method),
		Status:               string(payment.Status),
		GatewayProvider:      payment.GatewayProvider,
		GatewayTransactionID: payment.GatewayTransactionID,
		CreditApplied:        payment.CreditApplied.StringFixed(2),
		RewardApplied:        payment.RewardApplied.StringFixed(2),
		PaidAt:               payment.PaidAt,
	}
}

type rewardTransactionResponse struct {
	ID              string `json:"id"`
	TenantID        string `json:"tenant_id"`
	TransactionType string `json:"transaction_type"`
	Amount          string `json:"amount"`
	BalanceAfter    string `json:"balance_after"`
	Description     string `json:"description,omitempty"`
}

func toRewardTransactionResponse(txn *rewardsdomain.RewardTransaction) rewardTransactionResponse {
	return rewardTransactionResponse{
		ID:              txn.ID.String(),
		TenantID:        txn.TenantID.String(),
		TransactionType: string(txn.TransactionType),
		Amount:          txn.Amount.StringFixed(2),
		BalanceAfter:    txn.BalanceAfter.StringFixed(2),
		Description:     txn.Description,
	}
}
