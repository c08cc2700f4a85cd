package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	billingdomain "github.com/rentfold/rentfold/internal/billing/domain"
	billingservice "github.com/rentfold/rentfold/internal/billing/service"
	"github.com/rentfold/rentfold/internal/clock"
	"github.com/rentfold/rentfold/internal/config"
	"github.com/rentfold/rentfold/internal/gateway"
	"github.com/rentfold/rentfold/internal/gateway/bitcoin"
	gatewaydomain "github.com/rentfold/rentfold/internal/gateway/domain"
	"github.com/rentfold/rentfold/internal/migration"
	"github.com/rentfold/rentfold/internal/notify"
	tenancydomain "github.com/rentfold/rentfold/internal/tenancy/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const testWebhookSecret = "whsec_test_123"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, migration.AutoMigrate(db))
	return db
}

func newTestNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return node
}

func newTestService(db *gorm.DB, node *snowflake.Node, clk clock.Clock) Service {
	cfg := config.Config{GatewayHTTPTimeoutSec: 5}
	rates := bitcoin.NewRateService(db, nil, node, zap.NewNop(), "")
	registry := gateway.NewDefaultRegistry(db, node, rates)
	resolver := gateway.NewResolver(db, registry, cfg, zap.NewNop())
	payments := billingservice.NewPaymentService(billingservice.PaymentParams{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Resolver: resolver,
		Notifier: notify.NoOpNotifier{},
	})
	return NewService(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Resolver: resolver,
		Payments: payments,
	})
}

// stripeBackend answers payment intent lookups with a fixed status.
func stripeBackend(t *testing.T, intentStatus string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/payment_intents/") {
			id := strings.TrimPrefix(r.URL.Path, "/payment_intents/")
			fmt.Fprintf(w, `{"id":%q,"status":%q}`, id, intentStatus)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func seedStripeConfig(t *testing.T, db *gorm.DB, node *snowflake.Node, propertyID snowflake.ID, apiBase string) {
	t.Helper()
	raw, err := json.Marshal(map[string]string{
		"secret_key":      "sk_test_123",
		"publishable_key": "pk_test_123",
		"webhook_secret":  testWebhookSecret,
		"api_base":        apiBase,
	})
	require.NoError(t, err)
	row := gatewaydomain.GatewayConfig{
		ID:         node.Generate(),
		PropertyID: propertyID,
		Provider:   "stripe",
		IsActive:   true,
		IsDefault:  true,
		Config:     datatypes.JSON(raw),
	}
	require.NoError(t, db.Create(&row).Error)
}

type webhookFixture struct {
	property tenancydomain.Property
	tenant   tenancydomain.Tenant
	lease    tenancydomain.Lease
	invoice  billingdomain.Invoice
	payment  billingdomain.Payment
}

// seedPendingGatewayPayment sets up an issued invoice with a pending online
// payment referencing the given payment intent id.
func seedPendingGatewayPayment(t *testing.T, db *gorm.DB, node *snowflake.Node, intentID string) webhookFixture {
	t.Helper()
	fixture := webhookFixture{
		property: tenancydomain.Property{ID: node.Generate(), Name: "Maple Court"},
		tenant:   tenancydomain.Tenant{ID: node.Generate(), FirstName: "Pat", LastName: "Jordan"},
	}
	require.NoError(t, db.Create(&fixture.property).Error)
	require.NoError(t, db.Create(&fixture.tenant).Error)

	unit := tenancydomain.Unit{ID: node.Generate(), PropertyID: fixture.property.ID, Label: "1A"}
	require.NoError(t, db.Create(&unit).Error)

	fixture.lease = tenancydomain.Lease{
		ID:         node.Generate(),
		PropertyID: fixture.property.ID,
		UnitID:     unit.ID,
		TenantID:   fixture.tenant.ID,
		Status:     tenancydomain.LeaseStatusActive,
		StartDate:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, db.Create(&fixture.lease).Error)

	fixture.invoice = billingdomain.Invoice{
		ID:            node.Generate(),
		InvoiceNumber: "INV-202503-0001",
		LeaseID:       fixture.lease.ID,
		TenantID:      fixture.tenant.ID,
		Status:        billingdomain.InvoiceStatusIssued,
		IssueDate:     time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		DueDate:       time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC),
		TotalAmount:   decimal.NewFromInt(500),
	}
	require.NoError(t, db.Create(&fixture.invoice).Error)

	fixture.payment = billingdomain.Payment{
		ID:                   node.Generate(),
		TenantID:             fixture.tenant.ID,
		InvoiceID:            fixture.invoice.ID,
		Amount:               decimal.NewFromInt(500),
		Method:               billingdomain.PaymentMethodOnline,
		Status:               billingdomain.PaymentStatusPending,
		GatewayProvider:      "stripe",
		GatewayTransactionID: intentID,
	}
	require.NoError(t, db.Create(&fixture.payment).Error)
	return fixture
}

func stripeEvent(eventID, eventType, intentID string) []byte {
	return []byte(fmt.Sprintf(
		`{"id":%q,"type":%q,"data":{"object":{"id":%q}}}`,
		eventID, eventType, intentID))
}

func signedHeaders(secret string, payload []byte) http.Header {
	ts := "1741000000"
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "."))
	mac.Write(payload)
	headers := http.Header{}
	headers.Set("Stripe-Signature", "t="+ts+",v1="+hex.EncodeToString(mac.Sum(nil)))
	return headers
}

func TestIngest_ConfirmsPendingPayment(t *testing.T) {
	db := newTestDB(t)
	node := newTestNode(t)
	clk := clock.NewFakeClock(time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC))
	backend := stripeBackend(t, "succeeded")
	svc := newTestService(db, node, clk)

	fixture := seedPendingGatewayPayment(t, db, node, "pi_test_1")
	seedStripeConfig(t, db, node, fixture.property.ID, backend.URL)

	payload := stripeEvent("evt_1", "payment_intent.succeeded", "pi_test_1")
	result, err := svc.Ingest(context.Background(), "stripe", payload, signedHeaders(testWebhookSecret, payload))
	require.NoError(t, err)
	assert.True(t, result.Handled)
	assert.Equal(t, "payment completed", result.Message)
	require.NotNil(t, result.Payment)
	assert.Equal(t, billingdomain.PaymentStatusCompleted, result.Payment.Status)

	var invoice billingdomain.Invoice
	require.NoError(t, db.First(&invoice, "id = ?", fixture.invoice.ID).Error)
	assert.Equal(t, billingdomain.InvoiceStatusPaid, invoice.Status)
	assert.True(t, invoice.AmountPaid.Equal(decimal.NewFromInt(500)))
}

func TestIngest_DuplicateEvent(t *testing.T) {
	db := newTestDB(t)
	node := newTestNode(t)
	clk := clock.NewFakeClock(time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC))
	backend := stripeBackend(t, "succeeded")
	svc := newTestService(db, node, clk)

	fixture := seedPendingGatewayPayment(t, db, node, "pi_test_1")
	seedStripeConfig(t, db, node, fixture.property.ID, backend.URL)

	payload := stripeEvent("evt_1", "payment_intent.succeeded", "pi_test_1")
	headers := signedHeaders(testWebhookSecret, payload)

	result, err := svc.Ingest(context.Background(), "stripe", payload, headers)
	require.NoError(t, err)
	assert.True(t, result.Handled)

	result, err = svc.Ingest(context.Background(), "stripe", payload, headers)
	require.NoError(t, err)
	assert.True(t, result.Duplicate)

	var invoice billingdomain.Invoice
	require.NoError(t, db.First(&invoice, "id = ?", fixture.invoice.ID).Error)
	assert.True(t, invoice.AmountPaid.Equal(decimal.NewFromInt(500)))
}

func TestIngest_FailureEventFailsPayment(t *testing.T) {
	db := newTestDB(t)
	node := newTestNode(t)
	clk := clock.NewFakeClock(time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC))
	backend := stripeBackend(t, "canceled")
	svc := newTestService(db, node, clk)

	fixture := seedPendingGatewayPayment(t, db, node, "pi_test_1")
	seedStripeConfig(t, db, node, fixture.property.ID, backend.URL)

	payload := stripeEvent("evt_1", "payment_intent.canceled", "pi_test_1")
	result, err := svc.Ingest(context.Background(), "stripe", payload, signedHeaders(testWebhookSecret, payload))
	require.NoError(t, err)
	assert.True(t, result.Handled)
	assert.Equal(t, "payment failed", result.Message)

	var payment billingdomain.Payment
	require.NoError(t, db.First(&payment, "id = ?", fixture.payment.ID).Error)
	assert.Equal(t, billingdomain.PaymentStatusFailed, payment.Status)

	var invoice billingdomain.Invoice
	require.NoError(t, db.First(&invoice, "id = ?", fixture.invoice.ID).Error)
	assert.True(t, invoice.AmountPaid.IsZero())
}

func TestIngest_BadSignature(t *testing.T) {
	db := newTestDB(t)
	node := newTestNode(t)
	clk := clock.NewFakeClock(time.Now())
	svc := newTestService(db, node, clk)

	fixture := seedPendingGatewayPayment(t, db, node, "pi_test_1")
	seedStripeConfig(t, db, node, fixture.property.ID, "http://localhost:1")

	payload := stripeEvent("evt_1", "payment_intent.succeeded", "pi_test_1")
	_, err := svc.Ingest(context.Background(), "stripe", payload, signedHeaders("whsec_wrong", payload))
	assert.ErrorIs(t, err, gatewaydomain.ErrInvalidSignature)
}

func TestIngest_IgnoredEventType(t *testing.T) {
	db := newTestDB(t)
	node := newTestNode(t)
	clk := clock.NewFakeClock(time.Now())
	svc := newTestService(db, node, clk)

	fixture := seedPendingGatewayPayment(t, db, node, "pi_test_1")
	seedStripeConfig(t, db, node, fixture.property.ID, "http://localhost:1")

	payload := stripeEvent("evt_1", "charge.refunded", "ch_test_1")
	result, err := svc.Ingest(context.Background(), "stripe", payload, signedHeaders(testWebhookSecret, payload))
	require.NoError(t, err)
	assert.True(t, result.Ignored)
}

func TestIngest_NoActiveConfig(t *testing.T) {
	db := newTestDB(t)
	node := newTestNode(t)
	svc := newTestService(db, node, clock.NewFakeClock(time.Now()))

	payload := stripeEvent("evt_1", "payment_intent.succeeded", "pi_test_1")
	_, err := svc.Ingest(context.Background(), "stripe", payload, signedHeaders(testWebhookSecret, payload))
	assert.ErrorIs(t, err, gatewaydomain.ErrNoActiveConfig)
}

func TestIngest_NoMatchingPayment(t *testing.T) {
	db := newTestDB(t)
	node := newTestNode(t)
	clk := clock.NewFakeClock(time.Now())
	svc := newTestService(db, node, clk)

	fixture := seedPendingGatewayPayment(t, db, node, "pi_test_1")
	seedStripeConfig(t, db, node, fixture.property.ID, "http://localhost:1")

	payload := stripeEvent("evt_1", "payment_intent.succeeded", "pi_unknown")
	result, err := svc.Ingest(context.Background(), "stripe", payload, signedHeaders(testWebhookSecret, payload))
	require.NoError(t, err)
	assert.True(t, result.Handled)
	assert.Equal(t, "no matching payment", result.Message)
}
