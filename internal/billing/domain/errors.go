package domain

import "errors"

var (
	ErrInvoiceNotFound      = errors.New("invoice_not_found")
	ErrInvoiceNotMutable    = errors.New("invoice_not_mutable")
	ErrInvoiceAlreadyExists = errors.New("invoice_already_exists")
	ErrLeaseNotFound        = errors.New("lease_not_found")
	ErrLineItemNotFound     = errors.New("line_item_not_found")
	ErrPaymentNotFound      = errors.New("payment_not_found")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrNothingDue           = errors.New("nothing_due")
	ErrNoActiveGateway      = errors.New("no_active_gateway")
	ErrGatewayDeclined      = errors.New("gateway_declined")
	ErrAlreadyProcessed     = errors.New("already_processed")
	ErrReceiptUnavailable   = errors.New("receipt_unavailable")
	ErrInvalidPageToken     = errors.New("invalid_page_token")
	ErrChargeTargetConflict = errors.New("charge_target_conflict")
	ErrBillingConfigMissing = errors.New("billing_config_missing")
)
