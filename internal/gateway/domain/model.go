package domain

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
	StatusCancelled Status = "cancelled"
)

type CreatePaymentRequest struct {
	Amount      decimal.Decimal
	Currency    string
	Description string
	Metadata    map[string]string
}

// PaymentResult is the uniform create_payment outcome. Provider and network
// failures are folded into Success=false with ErrorMessage set; they are
// never raised as errors past the adapter boundary.
type PaymentResult struct {
	Success       bool
	TransactionID string
	Status        Status
	ErrorMessage  string
	RawResponse   map[string]any
}

type RefundResult struct {
	Success      bool
	RefundID     string
	ErrorMessage string
}

// WebhookEvent is a verified, parsed gateway callback.
type WebhookEvent struct {
	Provider      string
	EventID       string
	EventType     string
	TransactionID string
	RawPayload    []byte
}

// Gateway is the capability contract every payment adapter satisfies.
type Gateway interface {
	Provider() string
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*PaymentResult, error)
	VerifyPayment(ctx context.Context, transactionID string) (Status, error)
	RefundPayment(ctx context.Context, transactionID string, amount *decimal.Decimal) (*RefundResult, error)
	ClientConfig() map[string]any
	VerifyWebhook(ctx context.Context, payload []byte, headers http.Header) (*WebhookEvent, error)
	TestConnection(ctx context.Context) error
}

// AdapterConfig is the resolved runtime configuration handed to a factory.
// Credentials is the decoded JSON of the GatewayConfig row; each adapter
// unmarshals it into its own typed config struct.
type AdapterConfig struct {
	PropertyID  snowflake.ID
	Provider    string
	Credentials map[string]any
	HTTPTimeout time.Duration
}

type Factory func(cfg AdapterConfig) (Gateway, error)

// DecodeCredentials unmarshals the raw credential map into an adapter's
// typed config struct.
func DecodeCredentials(credentials map[string]any, out any) error {
	raw, err := json.Marshal(credentials)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// GatewayConfig is a stored provider configuration for a property. The
// resolver picks the active default row at call time so credential rotation
// takes effect without a restart.
type GatewayConfig struct {
	ID         snowflake.ID   `gorm:"primaryKey"`
	PropertyID snowflake.ID   `gorm:"index;not null"`
	Provider   string         `gorm:"size:32;not null;index"`
	IsActive   bool           `gorm:"not null;default:true"`
	IsDefault  bool           `gorm:"not null;default:false"`
	Config     datatypes.JSON `gorm:"not null"`
	CreatedAt  time.Time      `gorm:"autoCreateTime"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime"`
}

func (GatewayConfig) TableName() string { return "gateway_configs" }

// BitcoinWalletConfig holds the xpub and the next receive index. The index
// row is locked FOR UPDATE during derivation so concurrent payments never
// reuse an address.
type BitcoinWalletConfig struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	PropertyID       snowflake.ID `gorm:"uniqueIndex;not null"`
	XPub             string       `gorm:"size:255;not null"`
	NextAddressIndex uint32       `gorm:"not null;default:0"`
	CreatedAt        time.Time    `gorm:"autoCreateTime"`
	UpdatedAt        time.Time    `gorm:"autoUpdateTime"`
}

func (BitcoinWalletConfig) TableName() string { return "bitcoin_wallet_configs" }

type BitcoinPaymentStatus string

const (
	BitcoinPaymentPending   BitcoinPaymentStatus = "pending"
	BitcoinPaymentMempool   BitcoinPaymentStatus = "mempool"
	BitcoinPaymentConfirmed BitcoinPaymentStatus = "confirmed"
	BitcoinPaymentExpired   BitcoinPaymentStatus = "expired"
)

// BitcoinPayment tracks one derived receive address. The address doubles as
// the gateway transaction id, so verification looks rows up by address.
type BitcoinPayment struct {
	ID               snowflake.ID         `gorm:"primaryKey"`
	PropertyID       snowflake.ID         `gorm:"index;not null"`
	BTCAddress       string               `gorm:"size:128;not null;uniqueIndex"`
	DerivationIndex  uint32               `gorm:"not null"`
	Status           BitcoinPaymentStatus `gorm:"size:16;not null;default:pending"`
	USDAmount        decimal.Decimal      `gorm:"type:numeric(12,2);not null"`
	BTCUSDRate       decimal.Decimal      `gorm:"type:numeric(14,2);not null"`
	ExpectedSatoshis int64                `gorm:"not null"`
	ReceivedSatoshis int64                `gorm:"not null;default:0"`
	Confirmations    int64                `gorm:"not null;default:0"`
	ExpiresAt        time.Time            `gorm:"not null"`
	ConfirmedAt      *time.Time
	CreatedAt        time.Time `gorm:"autoCreateTime"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime"`
}

func (BitcoinPayment) TableName() string { return "bitcoin_payments" }

// BitcoinPriceSnapshot is the last known BTC-USD rate, kept as a fallback
// for when the rate API is unreachable.
type BitcoinPriceSnapshot struct {
	ID         snowflake.ID    `gorm:"primaryKey"`
	BTCUSDRate decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	CreatedAt  time.Time       `gorm:"autoCreateTime;index"`
}

func (BitcoinPriceSnapshot) TableName() string { return "bitcoin_price_snapshots" }

// WebhookEventLog dedups ingested gateway events. Inserted with
// ON CONFLICT DO NOTHING; zero rows affected means a retry already handled.
type WebhookEventLog struct {
	ID         snowflake.ID   `gorm:"primaryKey"`
	Provider   string         `gorm:"size:32;not null;uniqueIndex:ux_webhook_events_provider_event"`
	EventID    string         `gorm:"size:255;not null;uniqueIndex:ux_webhook_events_provider_event"`
	EventType  string         `gorm:"size:64"`
	RawPayload datatypes.JSON `gorm:"not null"`
	CreatedAt  time.Time      `gorm:"autoCreateTime"`
}

func (WebhookEventLog) TableName() string { return "webhook_events" }
