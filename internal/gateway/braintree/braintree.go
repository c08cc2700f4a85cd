package braintree

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/xml"
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
	productionAPIBase = "https://payments.braintree-api.com/graphql"
	sandboxAPIBase    = "https://payments.sandbox.braintree-api.com/graphql"
)

type Config struct {
	MerchantID  string `json:"merchant_id"`
	PublicKey   string `json:"public_key"`
	PrivateKey  string `json:"private_key"`
	Environment string `json:"environment"`
	APIBase     string `json:"api_base"`
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
		if cfg.MerchantID == "" || cfg.PublicKey == "" || cfg.PrivateKey == "" {
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

func (a *Adapter) Provider() string { return "braintree" }

func (a *Adapter) CreatePayment(ctx context.Context, req domain.CreatePaymentRequest) (*domain.PaymentResult, error) {
	const query = `mutation ChargePaymentMethod($input: ChargePaymentMethodInput!) {
	  chargePaymentMethod(input: $input) {
	    transaction { id status }
	  }
	}`
	variables := map[string]any{
		"input": map[string]any{
			"paymentMethodId": req.Metadata["nonce"],
			"transaction": map[string]any{
				"amount": req.Amount.StringFixed(2),
			},
		},
	}
	var out struct {
		ChargePaymentMethod struct {
			Transaction struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"transaction"`
		} `json:"chargePaymentMethod"`
	}
	if err := a.do(ctx, query, variables, &out); err != nil {
		return &domain.PaymentResult{Success: false, Status: domain.StatusFailed, ErrorMessage: err.Error()}, nil
	}
	txn := out.ChargePaymentMethod.Transaction
	if txn.ID == "" {
		return &domain.PaymentResult{Success: false, Status: domain.StatusFailed, ErrorMessage: "transaction failed"}, nil
	}
	return &domain.PaymentResult{
		Success:       true,
		TransactionID: txn.ID,
		Status:        domain.StatusPending,
		RawResponse:   map[string]any{"status": txn.Status},
	}, nil
}

func (a *Adapter) VerifyPayment(ctx context.Context, transactionID string) (domain.Status, error) {
	const query = `query Transaction($id: ID!) {
	  node(id: $id) { ... on Transaction { id status } }
	}`
	var out struct {
		Node struct {
			Status string `json:"status"`
		} `json:"node"`
	}
	if err := a.do(ctx, query, map[string]any{"id": transactionID}, &out); err != nil {
		return "", err
	}
	switch out.Node.Status {
	case "SETTLED", "SETTLING", "SUBMITTED_FOR_SETTLEMENT":
		return domain.StatusCompleted, nil
	case "GATEWAY_REJECTED", "PROCESSOR_DECLINED", "FAILED":
		return domain.StatusFailed, nil
	case "VOIDED":
		return domain.StatusCancelled, nil
	default:
		return domain.StatusPending, nil
	}
}

func (a *Adapter) RefundPayment(ctx context.Context, transactionID string, amount *decimal.Decimal) (*domain.RefundResult, error) {
	const query = `mutation RefundTransaction($input: RefundTransactionInput!) {
	  refundTransaction(input: $input) {
	    refund { id }
	  }
	}`
	input := map[string]any{"transactionId": transactionID}
	if amount != nil {
		input["refund"] = map[string]any{"amount": amount.StringFixed(2)}
	}
	var out struct {
		RefundTransaction struct {
			Refund struct {
				ID string `json:"id"`
			} `json:"refund"`
		} `json:"refundTransaction"`
	}
	if err := a.do(ctx, query, map[string]any{"input": input}, &out); err != nil {
		return &domain.RefundResult{Success: false, ErrorMessage: err.Error()}, nil
	}
	if out.RefundTransaction.Refund.ID == "" {
		return &domain.RefundResult{Success: false, ErrorMessage: "refund failed"}, nil
	}
	return &domain.RefundResult{Success: true, RefundID: out.RefundTransaction.Refund.ID}, nil
}

func (a *Adapter) ClientConfig() map[string]any {
	const query = `mutation { createClientToken { clientToken } }`
	var out struct {
		CreateClientToken struct {
			ClientToken string `json:"clientToken"`
		} `json:"createClientToken"`
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.httpClient.Timeout)
	defer cancel()
	if err := a.do(ctx, query, nil, &out); err != nil {
		return map[string]any{"error": err.Error()}
	}
	return map[string]any{"client_token": out.CreateClientToken.ClientToken}
}

type notification struct {
	Kind      string `xml:"kind"`
	Timestamp string `xml:"timestamp"`
	Subject   struct {
		Transaction struct {
			ID string `xml:"id"`
		} `xml:"transaction"`
	} `xml:"subject"`
}

// VerifyWebhook parses the bt_signature/bt_payload form pair: the signature
// is "publicKey|hex(hmac-sha1(payload))" keyed by the private key, and the
// payload is base64-encoded XML.
func (a *Adapter) VerifyWebhook(ctx context.Context, payload []byte, headers http.Header) (*domain.WebhookEvent, error) {
	_ = ctx
	_ = headers
	form, err := url.ParseQuery(string(payload))
	if err != nil {
		return nil, domain.ErrInvalidPayload
	}
	btSignature := form.Get("bt_signature")
	btPayload := form.Get("bt_payload")
	if btSignature == "" || btPayload == "" {
		return nil, domain.ErrInvalidSignature
	}

	valid := false
	for _, pair := range strings.Split(btSignature, "&") {
		parts := strings.SplitN(pair, "|", 2)
		if len(parts) != 2 || parts[0] != a.cfg.PublicKey {
			continue
		}
		mac := hmac.New(sha1.New, []byte(a.cfg.PrivateKey))
		mac.Write([]byte(btPayload))
		if hmac.Equal([]byte(hex.EncodeToString(mac.Sum(nil))), []byte(parts[1])) {
			valid = true
			break
		}
	}
	if !valid {
		return nil, domain.ErrInvalidSignature
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(btPayload, "\n", ""))
	if err != nil {
		return nil, domain.ErrInvalidPayload
	}
	var note notification
	if err := xml.Unmarshal(decoded, &note); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if !strings.HasPrefix(note.Kind, "transaction_") {
		return nil, domain.ErrEventIgnored
	}
	return &domain.WebhookEvent{
		Provider:      "braintree",
		EventID:       note.Kind + ":" + note.Timestamp,
		EventType:     note.Kind,
		TransactionID: note.Subject.Transaction.ID,
		RawPayload:    payload,
	}, nil
}

func (a *Adapter) TestConnection(ctx context.Context) error {
	const query = `mutation { createClientToken { clientToken } }`
	var out struct {
		CreateClientToken struct {
			ClientToken string `json:"clientToken"`
		} `json:"createClientToken"`
	}
	return a.do(ctx, query, nil, &out)
}

func (a *Adapter) do(ctx context.Context, query string, variables map[string]any, out any) error {
	body := map[string]any{"query": query}
	if variables != nil {
		body["variables"] = variables
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.APIBase, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.SetBasicAuth(a.cfg.PublicKey, a.cfg.PrivateKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Braintree-Version", "2019-01-01")

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
		return fmt.Errorf("braintree: http %d", resp.StatusCode)
	}
	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return err
	}
	if len(envelope.Errors) > 0 {
		return fmt.Errorf("braintree: %s", envelope.Errors[0].Message)
	}
	return json.Unmarshal(envelope.Data, out)
}
