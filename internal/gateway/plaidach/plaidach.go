package plaidach

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
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
	plaidSandboxBase     = "https://sandbox.plaid.com"
	plaidDevelopmentBase = "https://development.plaid.com"
	plaidProductionBase  = "https://production.plaid.com"
	stripeAPIBase        = "https://api.stripe.com/v1"
)

// ACH rides on two services: Plaid links the bank account and mints a Stripe
// bank token, Stripe moves the money as a us_bank_account PaymentIntent.
type Config struct {
	PlaidClientID        string `json:"plaid_client_id"`
	PlaidSecret          string `json:"plaid_secret"`
	PlaidEnvironment     string `json:"plaid_environment"`
	StripeSecretKey      string `json:"stripe_secret_key"`
	StripePublishableKey string `json:"stripe_publishable_key"`
	StripeWebhookSecret  string `json:"stripe_webhook_secret"`
	PlaidAPIBase         string `json:"plaid_api_base"`
	StripeAPIBase        string `json:"stripe_api_base"`
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
		if cfg.PlaidClientID == "" || cfg.PlaidSecret == "" || cfg.StripeSecretKey == "" {
			return nil, domain.ErrInvalidConfig
		}
		if cfg.PlaidAPIBase == "" {
			switch cfg.PlaidEnvironment {
			case "production":
				cfg.PlaidAPIBase = plaidProductionBase
			case "development":
				cfg.PlaidAPIBase = plaidDevelopmentBase
			default:
				cfg.PlaidAPIBase = plaidSandboxBase
			}
		}
		if cfg.StripeAPIBase == "" {
			cfg.StripeAPIBase = stripeAPIBase
		}
		timeout := ac.HTTPTimeout
		if timeout <= 0 {
			timeout = 12 * time.Second
		}
		return &Adapter{cfg: cfg, httpClient: &http.Client{Timeout: timeout}}, nil
	}
}

func (a *Adapter) Provider() string { return "plaid_ach" }

func (a *Adapter) CreatePayment(ctx context.Context, req domain.CreatePaymentRequest) (*domain.PaymentResult, error) {
	publicToken := req.Metadata["public_token"]
	accountID := req.Metadata["account_id"]
	if publicToken == "" || accountID == "" {
		return &domain.PaymentResult{
			Success:      false,
			Status:       domain.StatusFailed,
			ErrorMessage: "public_token and account_id are required in metadata",
		}, nil
	}

	var exchange struct {
		AccessToken string `json:"access_token"`
	}
	err := a.doPlaid(ctx, "/item/public_token/exchange", map[string]any{
		"public_token": publicToken,
	}, &exchange)
	if err != nil {
		return &domain.PaymentResult{Success: false, Status: domain.StatusFailed, ErrorMessage: err.Error()}, nil
	}

	var processor struct {
		StripeBankAccountToken string `json:"stripe_bank_account_token"`
	}
	err = a.doPlaid(ctx, "/processor/stripe/bank_account_token/create", map[string]any{
		"access_token": exchange.AccessToken,
		"account_id":   accountID,
	}, &processor)
	if err != nil {
		return &domain.PaymentResult{Success: false, Status: domain.StatusFailed, ErrorMessage: err.Error()}, nil
	}

	form := url.Values{}
	form.Set("amount", fmt.Sprintf("%d", toCents(req.Amount)))
	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = "usd"
	}
	form.Set("currency", currency)
	form.Set("payment_method_types[]", "us_bank_account")
	form.Set("payment_method_data[type]", "us_bank_account")
	form.Set("payment_method_data[us_bank_account][financial_connections_account]", processor.StripeBankAccountToken)
	for k, v := range req.Metadata {
		form.Set("metadata["+k+"]", v)
	}

	var intent struct {
		ID           string `json:"id"`
		ClientSecret string `json:"client_secret"`
	}
	if err := a.doStripe(ctx, http.MethodPost, "/payment_intents", form, &intent); err != nil {
		return &domain.PaymentResult{Success: false, Status: domain.StatusFailed, ErrorMessage: err.Error()}, nil
	}
	return &domain.PaymentResult{
		Success:       true,
		TransactionID: intent.ID,
		Status:        domain.StatusPending,
		RawResponse: map[string]any{
			"client_secret":     intent.ClientSecret,
			"stripe_bank_token": processor.StripeBankAccountToken,
		},
	}, nil
}

func (a *Adapter) VerifyPayment(ctx context.Context, transactionID string) (domain.Status, error) {
	var intent struct {
		Status string `json:"status"`
	}
	if err := a.doStripe(ctx, http.MethodGet, "/payment_intents/"+url.PathEscape(transactionID), nil, &intent); err != nil {
		return "", err
	}
	switch intent.Status {
	case "succeeded":
		return domain.StatusCompleted, nil
	case "canceled":
		return domain.StatusCancelled, nil
	case "requires_payment_method":
		return domain.StatusFailed, nil
	default:
		// ACH settles over days; processing and requires_action stay pending.
		return domain.StatusPending, nil
	}
}

func (a *Adapter) RefundPayment(ctx context.Context, transactionID string, amount *decimal.Decimal) (*domain.RefundResult, error) {
	form := url.Values{}
	form.Set("payment_intent", transactionID)
	if amount != nil {
		form.Set("amount", fmt.Sprintf("%d", toCents(*amount)))
	}
	var refund struct {
		ID string `json:"id"`
	}
	if err := a.doStripe(ctx, http.MethodPost, "/refunds", form, &refund); err != nil {
		return &domain.RefundResult{Success: false, ErrorMessage: err.Error()}, nil
	}
	return &domain.RefundResult{Success: true, RefundID: refund.ID}, nil
}

func (a *Adapter) ClientConfig() map[string]any {
	ctx, cancel := context.WithTimeout(context.Background(), a.httpClient.Timeout)
	defer cancel()

	var link struct {
		LinkToken string `json:"link_token"`
	}
	err := a.doPlaid(ctx, "/link/token/create", map[string]any{
		"client_name":   "Rentfold",
		"language":      "en",
		"country_codes": []string{"US"},
		"products":      []string{"auth"},
		"user":          map[string]string{"client_user_id": "rentfold"},
	}, &link)
	if err != nil {
		return map[string]any{
			"error":                  err.Error(),
			"stripe_publishable_key": a.cfg.StripePublishableKey,
		}
	}
	return map[string]any{
		"link_token":             link.LinkToken,
		"stripe_publishable_key": a.cfg.StripePublishableKey,
	}
}

// VerifyWebhook handles the Stripe leg; Plaid itself never calls back about
// money movement here.
func (a *Adapter) VerifyWebhook(ctx context.Context, payload []byte, headers http.Header) (*domain.WebhookEvent, error) {
	_ = ctx
	if a.cfg.StripeWebhookSecret == "" {
		return nil, domain.ErrInvalidConfig
	}
	timestamp, signatures := parseSignatureHeader(headers.Get("Stripe-Signature"))
	if timestamp == "" || len(signatures) == 0 {
		return nil, domain.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(a.cfg.StripeWebhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	valid := false
	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			valid = true
			break
		}
	}
	if !valid {
		return nil, domain.ErrInvalidSignature
	}

	var event struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object struct {
				ID string `json:"id"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled", "payment_intent.processing":
	default:
		return nil, domain.ErrEventIgnored
	}
	return &domain.WebhookEvent{
		Provider:      "plaid_ach",
		EventID:       event.ID,
		EventType:     event.Type,
		TransactionID: event.Data.Object.ID,
		RawPayload:    payload,
	}, nil
}

func (a *Adapter) TestConnection(ctx context.Context) error {
	var errs []string

	var institution map[string]any
	err := a.doPlaid(ctx, "/institutions/get_by_id", map[string]any{
		"institution_id": "ins_109508",
		"country_codes":  []string{"US"},
	}, &institution)
	if err != nil {
		errs = append(errs, "plaid: "+err.Error())
	}

	var account map[string]any
	if err := a.doStripe(ctx, http.MethodGet, "/account", nil, &account); err != nil {
		errs = append(errs, "stripe: "+err.Error())
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func (a *Adapter) doPlaid(ctx context.Context, path string, body map[string]any, out any) error {
	body["client_id"] = a.cfg.PlaidClientID
	body["secret"] = a.cfg.PlaidSecret
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.PlaidAPIBase+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			ErrorMessage string `json:"error_message"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.ErrorMessage != "" {
			return fmt.Errorf("plaid: %s", apiErr.ErrorMessage)
		}
		return fmt.Errorf("plaid: http %d", resp.StatusCode)
	}
	return json.Unmarshal(respBody, out)
}

func (a *Adapter) doStripe(ctx context.Context, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, a.cfg.StripeAPIBase+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.StripeSecretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

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
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("stripe: %s", apiErr.Error.Message)
		}
		return fmt.Errorf("stripe: http %d", resp.StatusCode)
	}
	return json.Unmarshal(raw, out)
}

func parseSignatureHeader(header string) (string, []string) {
	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	return timestamp, signatures
}

func toCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
