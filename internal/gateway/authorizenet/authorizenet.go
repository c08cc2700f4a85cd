package authorizenet

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rentfold/rentfold/internal/gateway/domain"
	"github.com/shopspring/decimal"
)

const (
	productionAPIBase = "https://api.authorize.net/xml/v1/request.api"
	sandboxAPIBase    = "https://apitest.authorize.net/xml/v1/request.api"
)

type Config struct {
	APILoginID     string `json:"api_login_id"`
	TransactionKey string `json:"transaction_key"`
	SignatureKey   string `json:"signature_key"`
	ClientKey      string `json:"client_key"`
	Environment    string `json:"environment"`
	APIBase        string `json:"api_base"`
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
		if cfg.APILoginID == "" || cfg.TransactionKey == "" {
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

func (a *Adapter) Provider() string { return "authorizenet" }

func (a *Adapter) merchantAuth() map[string]string {
	return map[string]string{
		"name":           a.cfg.APILoginID,
		"transactionKey": a.cfg.TransactionKey,
	}
}

type apiMessages struct {
	ResultCode string `json:"resultCode"`
	Message    []struct {
		Code string `json:"code"`
		Text string `json:"text"`
	} `json:"message"`
}

type transactionResponse struct {
	TransID      string `json:"transId"`
	AuthCode     string `json:"authCode"`
	ResponseCode string `json:"responseCode"`
	Errors       []struct {
		ErrorText string `json:"errorText"`
	} `json:"errors"`
}

func (a *Adapter) CreatePayment(ctx context.Context, req domain.CreatePaymentRequest) (*domain.PaymentResult, error) {
	body := map[string]any{
		"createTransactionRequest": map[string]any{
			"merchantAuthentication": a.merchantAuth(),
			"transactionRequest": map[string]any{
				"transactionType": "authCaptureTransaction",
				"amount":          req.Amount.StringFixed(2),
				"currencyCode":    strings.ToUpper(req.Currency),
				"payment": map[string]any{
					"opaqueData": map[string]string{
						"dataDescriptor": req.Metadata["data_descriptor"],
						"dataValue":      req.Metadata["data_value"],
					},
				},
			},
		},
	}

	var out struct {
		TransactionResponse transactionResponse `json:"transactionResponse"`
		Messages            apiMessages         `json:"messages"`
	}
	if err := a.do(ctx, body, &out); err != nil {
		return &domain.PaymentResult{Success: false, Status: domain.StatusFailed, ErrorMessage: err.Error()}, nil
	}
	if out.Messages.ResultCode != "Ok" || out.TransactionResponse.TransID == "" {
		msg := "transaction declined"
		if len(out.TransactionResponse.Errors) > 0 {
			msg = out.TransactionResponse.Errors[0].ErrorText
		} else if len(out.Messages.Message) > 0 {
			msg = out.Messages.Message[0].Text
		}
		return &domain.PaymentResult{Success: false, Status: domain.StatusFailed, ErrorMessage: msg}, nil
	}
	return &domain.PaymentResult{
		Success:       true,
		TransactionID: out.TransactionResponse.TransID,
		Status:        domain.StatusPending,
		RawResponse: map[string]any{
			"auth_code":     out.TransactionResponse.AuthCode,
			"response_code": out.TransactionResponse.ResponseCode,
		},
	}, nil
}

func (a *Adapter) VerifyPayment(ctx context.Context, transactionID string) (domain.Status, error) {
	body := map[string]any{
		"getTransactionDetailsRequest": map[string]any{
			"merchantAuthentication": a.merchantAuth(),
			"transId":                transactionID,
		},
	}
	var out struct {
		Transaction struct {
			TransactionStatus string `json:"transactionStatus"`
		} `json:"transaction"`
		Messages apiMessages `json:"messages"`
	}
	if err := a.do(ctx, body, &out); err != nil {
		return "", err
	}
	if out.Messages.ResultCode != "Ok" {
		msg := "transaction lookup failed"
		if len(out.Messages.Message) > 0 {
			msg = out.Messages.Message[0].Text
		}
		return "", fmt.Errorf("authorizenet: %s", msg)
	}
	switch out.Transaction.TransactionStatus {
	case "settledSuccessfully", "capturedPendingSettlement":
		return domain.StatusCompleted, nil
	case "declined", "expired", "voided":
		return domain.StatusFailed, nil
	case "refundSettledSuccessfully":
		return domain.StatusRefunded, nil
	default:
		return domain.StatusPending, nil
	}
}

func (a *Adapter) RefundPayment(ctx context.Context, transactionID string, amount *decimal.Decimal) (*domain.RefundResult, error) {
	txnReq := map[string]any{
		"transactionType": "refundTransaction",
		"refTransId":      transactionID,
	}
	if amount != nil {
		txnReq["amount"] = amount.StringFixed(2)
	}
	body := map[string]any{
		"createTransactionRequest": map[string]any{
			"merchantAuthentication": a.merchantAuth(),
			"transactionRequest":     txnReq,
		},
	}
	var out struct {
		TransactionResponse transactionResponse `json:"transactionResponse"`
		Messages            apiMessages         `json:"messages"`
	}
	if err := a.do(ctx, body, &out); err != nil {
		return &domain.RefundResult{Success: false, ErrorMessage: err.Error()}, nil
	}
	if out.Messages.ResultCode != "Ok" || out.TransactionResponse.TransID == "" {
		msg := "refund declined"
		if len(out.TransactionResponse.Errors) > 0 {
			msg = out.TransactionResponse.Errors[0].ErrorText
		}
		return &domain.RefundResult{Success: false, ErrorMessage: msg}, nil
	}
	return &domain.RefundResult{Success: true, RefundID: out.TransactionResponse.TransID}, nil
}

func (a *Adapter) ClientConfig() map[string]any {
	return map[string]any{
		"api_login_id": a.cfg.APILoginID,
		"client_key":   a.cfg.ClientKey,
	}
}

// VerifyWebhook checks the X-Anet-Signature header: "sha512=<hex>" of the
// raw body keyed by the signature key, compared case-insensitively.
func (a *Adapter) VerifyWebhook(ctx context.Context, payload []byte, headers http.Header) (*domain.WebhookEvent, error) {
	_ = ctx
	if a.cfg.SignatureKey == "" {
		return nil, domain.ErrInvalidConfig
	}
	received := headers.Get("X-Anet-Signature")
	if received == "" {
		return nil, domain.ErrInvalidSignature
	}
	received = strings.TrimPrefix(received, "sha512=")

	mac := hmac.New(sha512.New, []byte(a.cfg.SignatureKey))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(strings.ToUpper(expected)), []byte(strings.ToUpper(received))) {
		return nil, domain.ErrInvalidSignature
	}

	var envelope struct {
		NotificationID string `json:"notificationId"`
		EventType      string `json:"eventType"`
		Payload        struct {
			ID json.Number `json:"id"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if !strings.HasPrefix(envelope.EventType, "net.authorize.payment") {
		return nil, domain.ErrEventIgnored
	}
	return &domain.WebhookEvent{
		Provider:      "authorizenet",
		EventID:       envelope.NotificationID,
		EventType:     envelope.EventType,
		TransactionID: envelope.Payload.ID.String(),
		RawPayload:    payload,
	}, nil
}

func (a *Adapter) TestConnection(ctx context.Context) error {
	body := map[string]any{
		"authenticateTestRequest": map[string]any{
			"merchantAuthentication": a.merchantAuth(),
		},
	}
	var out struct {
		Messages apiMessages `json:"messages"`
	}
	if err := a.do(ctx, body, &out); err != nil {
		return err
	}
	if out.Messages.ResultCode != "Ok" {
		msg := "authentication failed"
		if len(out.Messages.Message) > 0 {
			msg = out.Messages.Message[0].Text
		}
		return fmt.Errorf("authorizenet: %s", msg)
	}
	return nil
}

func (a *Adapter) do(ctx context.Context, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.APIBase, bytes.NewReader(raw))
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
		return fmt.Errorf("authorizenet: http %d", resp.StatusCode)
	}
	// The endpoint prefixes responses with a UTF-8 BOM.
	respBody = bytes.TrimPrefix(respBody, []byte("\xef\xbb\xbf"))
	return json.Unmarshal(respBody, out)
}
