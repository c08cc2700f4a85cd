package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rentfold/rentfold/internal/gateway/domain"
	"github.com/shopspring/decimal"
)

const (
	liveAPIBase    = "https://api-m.paypal.com"
	sandboxAPIBase = "https://api-m.sandbox.paypal.com"
)

type Config struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Mode         string `json:"mode"`
	WebhookID    string `json:"webhook_id"`
	APIBase      string `json:"api_base"`
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
		if cfg.ClientID == "" || cfg.ClientSecret == "" {
			return nil, domain.ErrInvalidConfig
		}
		if cfg.APIBase == "" {
			if cfg.Mode == "live" || cfg.Mode == "production" {
				cfg.APIBase = liveAPIBase
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

func (a *Adapter) Provider() string { return "paypal" }

type orderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
}

func (a *Adapter) CreatePayment(ctx context.Context, req domain.CreatePaymentRequest) (*domain.PaymentResult, error) {
	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"amount": map[string]string{
				"currency_code": strings.ToUpper(req.Currency),
				"value":         req.Amount.StringFixed(2),
			},
			"description": req.Description,
		}},
	}

	var order orderResponse
	if err := a.do(ctx, http.MethodPost, "/v2/checkout/orders", body, &order); err != nil {
		return &domain.PaymentResult{Success: false, Status: domain.StatusFailed, ErrorMessage: err.Error()}, nil
	}

	approvalURL := ""
	for _, link := range order.Links {
		if link.Rel == "approve" {
			approvalURL = link.Href
			break
		}
	}
	return &domain.PaymentResult{
		Success:       true,
		TransactionID: order.ID,
		Status:        domain.StatusPending,
		RawResponse:   map[string]any{"approval_url": approvalURL},
	}, nil
}

func (a *Adapter) VerifyPayment(ctx context.Context, transactionID string) (domain.Status, error) {
	var order orderResponse
	if err := a.do(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(transactionID), nil, &order); err != nil {
		return "", err
	}
	switch order.Status {
	case "COMPLETED", "APPROVED":
		return domain.StatusCompleted, nil
	case "VOIDED":
		return domain.StatusCancelled, nil
	default:
		return domain.StatusPending, nil
	}
}

func (a *Adapter) RefundPayment(ctx context.Context, transactionID string, amount *decimal.Decimal) (*domain.RefundResult, error) {
	body := map[string]any{}
	if amount != nil {
		body["amount"] = map[string]string{"currency_code": "USD", "value": amount.StringFixed(2)}
	}
	var refund struct {
		ID string `json:"id"`
	}
	path := "/v2/payments/captures/" + url.PathEscape(transactionID) + "/refund"
	if err := a.do(ctx, http.MethodPost, path, body, &refund); err != nil {
		return &domain.RefundResult{Success: false, ErrorMessage: err.Error()}, nil
	}
	return &domain.RefundResult{Success: true, RefundID: refund.ID}, nil
}

func (a *Adapter) ClientConfig() map[string]any {
	return map[string]any{"client_id": a.cfg.ClientID}
}

type webhookEnvelope struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID string `json:"id"`
	} `json:"resource"`
}

// VerifyWebhook validates the notification against PayPal's
// verify-webhook-signature endpoint, then extracts the capture id.
func (a *Adapter) VerifyWebhook(ctx context.Context, payload []byte, headers http.Header) (*domain.WebhookEvent, error) {
	if a.cfg.WebhookID == "" {
		return nil, domain.ErrInvalidConfig
	}

	var event json.RawMessage = payload
	verifyReq := map[string]any{
		"auth_algo":         headers.Get("Paypal-Auth-Algo"),
		"cert_url":          headers.Get("Paypal-Cert-Url"),
		"transmission_id":   headers.Get("Paypal-Transmission-Id"),
		"transmission_sig":  headers.Get("Paypal-Transmission-Sig"),
		"transmission_time": headers.Get("Paypal-Transmission-Time"),
		"webhook_id":        a.cfg.WebhookID,
		"webhook_event":     event,
	}
	var verification struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := a.do(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", verifyReq, &verification); err != nil {
		return nil, domain.ErrInvalidSignature
	}
	if verification.VerificationStatus != "SUCCESS" {
		return nil, domain.ErrInvalidSignature
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	switch envelope.EventType {
	case "PAYMENT.CAPTURE.COMPLETED", "PAYMENT.CAPTURE.DENIED", "CHECKOUT.ORDER.APPROVED":
	default:
		return nil, domain.ErrEventIgnored
	}
	return &domain.WebhookEvent{
		Provider:      "paypal",
		EventID:       envelope.ID,
		EventType:     envelope.EventType,
		TransactionID: envelope.Resource.ID,
		RawPayload:    payload,
	}, nil
}

func (a *Adapter) TestConnection(ctx context.Context) error {
	_, err := a.accessToken(ctx)
	return err
}

func (a *Adapter) accessToken(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.APIBase+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(a.cfg.ClientID, a.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("paypal: token http %d", resp.StatusCode)
	}
	var token struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

func (a *Adapter) do(ctx context.Context, method, path string, body any, out any) error {
	token, err := a.accessToken(ctx)
	if err != nil {
		return err
	}

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
	req.Header.Set("Authorization", "Bearer "+token)
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
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("paypal: %s", apiErr.Message)
		}
		return fmt.Errorf("paypal: http %d", resp.StatusCode)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}
