package domain

import "errors"

var (
	ErrProviderNotFound  = errors.New("provider_not_found")
	ErrInvalidProvider   = errors.New("invalid_provider")
	ErrInvalidConfig     = errors.New("invalid_gateway_config")
	ErrInvalidSignature  = errors.New("invalid_webhook_signature")
	ErrInvalidPayload    = errors.New("invalid_webhook_payload")
	ErrEventIgnored      = errors.New("webhook_event_ignored")
	ErrNoActiveConfig    = errors.New("no_active_gateway_config")
	ErrWalletNotFound    = errors.New("bitcoin_wallet_not_configured")
	ErrRefundUnsupported = errors.New("refund_unsupported")
)
