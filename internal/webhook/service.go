package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/rentfold/rentfold/internal/billing/domain"
	"github.com/rentfold/rentfold/internal/clock"
	"github.com/rentfold/rentfold/internal/gateway"
	gatewaydomain "github.com/rentfold/rentfold/internal/gateway/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Result reports what ingestion did with a callback. Duplicate and Ignored
// both map to a 2xx at the edge so the gateway stops retrying.
type Result struct {
	Handled   bool
	Duplicate bool
	Ignored   bool
	Message   string
	Payment   *billingdomain.Payment
}

// Service ingests gateway callbacks: verify the signature against each
// active configuration, dedup by event id, then confirm the referenced
// payment.
type Service interface {
	Ingest(ctx context.Context, provider string, payload []byte, headers http.Header) (*Result, error)
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Resolver *gateway.Resolver
	Payments billingdomain.PaymentService
}

type service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	resolver *gateway.Resolver
	payments billingdomain.PaymentService
}

func NewService(p Params) Service {
	return &service{
		db:       p.DB,
		log:      p.Log.Named("webhook"),
		genID:    p.GenID,
		clock:    p.Clock,
		resolver: p.Resolver,
		payments: p.Payments,
	}
}

func (s *service) Ingest(ctx context.Context, provider string, payload []byte, headers http.Header) (*Result, error) {
	configs, err := s.resolver.ActiveConfigs(ctx, provider)
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		return nil, gatewaydomain.ErrNoActiveConfig
	}

	event, err := s.verifyAgainstConfigs(ctx, configs, payload, headers)
	if err != nil {
		if errors.Is(err, gatewaydomain.ErrEventIgnored) {
			return &Result{Ignored: true, Message: "event ignored"}, nil
		}
		return nil, err
	}

	inserted, err := s.recordEvent(ctx, event)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return &Result{Duplicate: true, Message: "already processed"}, nil
	}

	if event.TransactionID == "" {
		s.log.Info("webhook event carries no transaction reference",
			zap.String("provider", event.Provider),
			zap.String("event_type", event.EventType))
		return &Result{Handled: true, Message: "no transaction reference"}, nil
	}

	var payment billingdomain.Payment
	err = s.db.WithContext(ctx).
		Where("gateway_provider = ? AND gateway_transaction_id = ?", event.Provider, event.TransactionID).
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Warn("webhook references unknown payment",
				zap.String("provider", event.Provider),
				zap.String("transaction_id", event.TransactionID))
			return &Result{Handled: true, Message: "no matching payment"}, nil
		}
		return nil, err
	}

	confirm, err := s.payments.ConfirmGatewayPayment(ctx, payment.ID)
	if err != nil {
		return nil, err
	}
	return &Result{Handled: true, Message: confirm.Message, Payment: confirm.Payment}, nil
}

// verifyAgainstConfigs tries each active configuration until one validates
// the signature. Webhooks arrive unauthenticated, so a signature nobody can
// verify is a hard failure.
func (s *service) verifyAgainstConfigs(ctx context.Context, configs []gatewaydomain.GatewayConfig, payload []byte, headers http.Header) (*gatewaydomain.WebhookEvent, error) {
	for _, row := range configs {
		adapter, err := s.resolver.Adapter(row)
		if err != nil {
			s.log.Error("webhook adapter build failed",
				zap.String("provider", row.Provider),
				zap.String("config_id", row.ID.String()),
				zap.Error(err))
			continue
		}
		event, err := adapter.VerifyWebhook(ctx, payload, headers)
		if err != nil {
			if errors.Is(err, gatewaydomain.ErrInvalidSignature) {
				continue
			}
			return nil, err
		}
		return event, nil
	}
	return nil, gatewaydomain.ErrInvalidSignature
}

// recordEvent inserts the dedup row. Zero rows affected means a retry of an
// event already ingested.
func (s *service) recordEvent(ctx context.Context, event *gatewaydomain.WebhookEvent) (bool, error) {
	raw := event.RawPayload
	if !json.Valid(raw) {
		encoded, err := json.Marshal(string(raw))
		if err != nil {
			return false, err
		}
		raw = encoded
	}
	result := s.db.WithContext(ctx).Exec(
		`INSERT INTO webhook_events (id, provider, event_id, event_type, raw_payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (provider, event_id) DO NOTHING`,
		s.genID.Generate(), event.Provider, event.EventID, event.EventType, raw, s.clock.Now(),
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
