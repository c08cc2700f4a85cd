package square

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rentfold/rentfold/internal/gateway/domain"
	"github.com/shopspring/decimal"
)

const (
	productionAPIBase = "https://connect.squareup.com"
	sandboxAPIBase    = "https://connect.squareupsandbox.com"
)

type Config struct {
	AccessToken     string `json:"access_token"`
	ApplicationID   string `json:"application_id"`
	LocationID      string `json:"location_id"`
	Environment     string `json:"environment"`
	SignatureKey    string `json:"webhook_signature_key"`
	NotificationURL string `json:"webhook_notification_url"`
	APIBase         string `json:"api_base"`
}

type Adapter struct {
	cfg        Config
	httpClient *http.Client
}

func NewFactory() domain.Factory {
	return func(ac domain.AdapterConfig) (domain.Gateway, error) {
		var cfg Config
		if err := domain.DecodeCredentials(ac.Credentials, &cfg); err != nil {
			return nil, domain.ErrInvalidConfig
		}
		if cfg.AccessToken == "" {
			return nil, domain.ErrInvalidConfig
		}
		if cfg.APIBase == "" {
			if cfg.Environment == "production" {
				cfg.APIBase = productionAPIBase
			} else {
				cfg.APIBase = sandboxAPIBase
			}
		}
		timeout := ac.HTTPTimeout
		if timeout <= 0 {
			timeout = 12 * time.Second
		}
		return &Adapter{cfg: cfg, httpClient: &http.Client{Timeout: timeout}}, nil
	}
}

func (a *Adapter) Provider() string { return "square" }

type paymentBody struct {
	Payment struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"payment"`
}

// CreatePayment charges the tokenized source immediately; Square settles
// card payments synchronously, so success maps to completed.
func (a *Adapter) CreatePayment(ctx context.Context, req domain.CreatePaymentRequest) (*domain.PaymentResult, error) {
	body := map[string]any{
		"source_id":       req.Metadata["source_id"],
		"idempotency_key": uuid.NewString(),
		"amount_money": map[string]any{
			"amount":   toCents(req.Amount),
			"currency": strings.ToUpper(req.Currency),
		},
		"location_id": a.cfg.LocationID,
	}
	if req.Description != "" {
		body["note"] = req.Description
	}

	var out paymentBody
	if err := a.do(ctx, http.MethodPost, "/v2/payments", body, &out); err != nil {
		return &domain.PaymentResult{Success: false, Status: domain.StatusFailed, ErrorMessage: err.Error()}, nil
	}
	return &domain.PaymentResult{
		Success:       true,
		TransactionID: out.Payment.ID,
		Status:        domain.StatusCompleted,
		RawResponse:   map[string]any{"status": out.Payment.Status},
	}, nil
}

func (a *Adapter) VerifyPayment(ctx context.Context, transactionID string) (domain.Status, error) {
	var out paymentBody
	if err := a.do(ctx, http.MethodGet, "/v2/payments/"+url.PathEscape(transactionID), nil, &out); err != nil {
		return "", err
	}
	switch out.Payment.Status {
	case "COMPLETED":
		return domain.StatusCompleted, nil
	case "CANCELED":
		return domain.StatusCancelled, nil
	case "FAILED":
		return domain.StatusFailed, nil
	default:
		return domain.StatusPending, nil
	}
}

func (a *Adapter) RefundPayment(ctx context.Context, transactionID string, amount *decimal.Decimal) (*domain.RefundResult, error) {
	body := map[string]any{
		"idempotency_key": uuid.NewString(),
		"payment_id":      transactionID,
	}
	if amount != nil {
		body["amount_money"] = map[string]any{"amount": toCents(*amount), "currency": "USD"}
	}
	var out struct {
		Refund struct {
			ID string `json:"id"`
		} `json:"refund"`
	}
	if err := a.do(ctx, http.MethodPost, "/v2/refunds", body, &out); err != nil {
		return &domain.RefundResult{Success: false, ErrorMessage: err.Error()}, nil
	}
	return &domain.RefundResult{Success: true, RefundID: out.Refund.ID}, nil
}

func (a *Adapter) ClientConfig() map[string]any {
	return map[string]any{
		"application_id": a.cfg.ApplicationID,
		"location_id":    a.cfg.LocationID,
	}
}

type webhookEnvelope struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Data    struct {
		Object struct {
			Payment struct {
				ID string `json:"id"`
			} `json:"payment"`
		} `json:"object"`
	} `json:"data"`
}

// VerifyWebhook checks x-square-hmacsha256-signature: base64 HMAC-SHA256 of
// notification URL + body keyed by the subscription signature key.
func (a *Adapter) VerifyWebhook(ctx context.Context, payload []byte, headers http.Header) (*domain.WebhookEvent, error) {
	_ = ctx
	if a.cfg.SignatureKey == "" {
		return nil, domain.ErrInvalidConfig
	}
	received := headers.Get("X-Square-Hmacsha256-Signature")
	if received == "" {
		return nil, domain.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(a.cfg.SignatureKey))
	mac.Write([]byte(a.cfg.NotificationURL))
	mac.Write(payload)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(received)) {
		return nil, domain.ErrInvalidSignature
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	switch envelope.Type {
	case "payment.created", "payment.updated":
	default:
		return nil, domain.ErrEventIgnored
	}
	return &domain.WebhookEvent{
		Provider:      "square",
		EventID:       envelope.EventID,
		EventType:     envelope.Type,
		TransactionID: envelope.Data.Object.Payment.ID,
		RawPayload:    payload,
	}, nil
}

func (a *Adapter) TestConnection(ctx context.Context) error {
	var out map[string]any
	return a.do(ctx, http.MethodGet, "/v2/locations", nil, &out)
}

func (a *Adapter) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.cfg.APIBase+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Errors []struct {
				Detail string `json:"detail"`
			} `json:"errors"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && len(apiErr.Errors) > 0 {
			return fmt.Errorf("square: %s", apiErr.Errors[0].Detail)
		}
		return fmt.Errorf("square: http %d", resp.StatusCode)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func toCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
