package scheduler

import (
	"context"
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
	appconfig "github.com/rentfold/rentfold/internal/config"
	"github.com/rentfold/rentfold/internal/gateway"
	"github.com/rentfold/rentfold/internal/gateway/bitcoin"
	gatewaydomain "github.com/rentfold/rentfold/internal/gateway/domain"
	"github.com/rentfold/rentfold/internal/migration"
	"github.com/rentfold/rentfold/internal/notify"
	rewardsservice "github.com/rentfold/rentfold/internal/rewards/service"
	tenancydomain "github.com/rentfold/rentfold/internal/tenancy/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

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

func newScheduler(t *testing.T, db *gorm.DB, node *snowflake.Node, clk clock.Clock, cfg Config) *Scheduler {
	t.Helper()
	rates := bitcoin.NewRateService(db, nil, node, zap.NewNop(), "")
	registry := gateway.NewDefaultRegistry(db, node, rates)
	resolver := gateway.NewResolver(db, registry, appconfig.Config{GatewayHTTPTimeoutSec: 5}, zap.NewNop())

	invoiceSvc := billingservice.NewInvoiceService(billingservice.InvoiceParams{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk,
	})
	paymentSvc := billingservice.NewPaymentService(billingservice.PaymentParams{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk,
		Resolver: resolver, Notifier: notify.NoOpNotifier{},
	})
	lateFeeSvc := billingservice.NewLateFeeService(billingservice.LateFeeParams{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk,
	})
	rewardsSvc := rewardsservice.NewService(rewardsservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Notifier: notify.NoOpNotifier{},
	})

	s, err := New(Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      clk,
		InvoiceSvc: invoiceSvc,
		PaymentSvc: paymentSvc,
		LateFeeSvc: lateFeeSvc,
		RewardsSvc: rewardsSvc,
		Config:     cfg,
	})
	require.NoError(t, err)
	return s
}

type schedulerFixture struct {
	property tenancydomain.Property
	tenant   tenancydomain.Tenant
	lease    tenancydomain.Lease
}

func seedActiveLease(t *testing.T, db *gorm.DB, node *snowflake.Node) schedulerFixture {
	t.Helper()
	fixture := schedulerFixture{
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

	leaseRef := fixture.lease.ID
	charge := billingdomain.RecurringCharge{
		ID:         node.Generate(),
		LeaseID:    &leaseRef,
		ChargeType: billingdomain.ChargeTypeRent,
		Amount:     decimal.NewFromInt(1200),
		Frequency:  billingdomain.FrequencyMonthly,
		StartDate:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		IsActive:   true,
	}
	require.NoError(t, db.Create(&charge).Error)

	billingConfig := billingdomain.PropertyBillingConfig{
		ID:            node.Generate(),
		PropertyID:    fixture.property.ID,
		DefaultDueDay: 5,
	}
	require.NoError(t, db.Create(&billingConfig).Error)
	return fixture
}

func invoiceCount(t *testing.T, db *gorm.DB, leaseID snowflake.ID) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&billingdomain.Invoice{}).Where("lease_id = ?", leaseID).Count(&count).Error)
	return count
}

func TestNew_MissingDependency(t *testing.T) {
	_, err := New(Params{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunOnce_GeneratesInvoicesIdempotently(t *testing.T) {
	db := newTestDB(t)
	node := newTestNode(t)
	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	s := newScheduler(t, db, node, clk, Config{EnabledJobs: []string{"generate_invoices"}})
	fixture := seedActiveLease(t, db, node)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.EqualValues(t, 1, invoiceCount(t, db, fixture.lease.ID))

	// The billing cycle row keeps re-runs from duplicating the month.
	require.NoError(t, s.RunOnce(context.Background()))
	assert.EqualValues(t, 1, invoiceCount(t, db, fixture.lease.ID))
}

func TestRunOnce_EmptyAllowlistRunsEverything(t *testing.T) {
	db := newTestDB(t)
	node := newTestNode(t)
	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	s := newScheduler(t, db, node, clk, Config{})
	fixture := seedActiveLease(t, db, node)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.EqualValues(t, 1, invoiceCount(t, db, fixture.lease.ID))
}

func TestRunOnce_AllowlistSkipsDisabledJobs(t *testing.T) {
	db := newTestDB(t)
	node := newTestNode(t)
	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	s := newScheduler(t, db, node, clk, Config{EnabledJobs: []string{"late_fee_sweep"}})
	fixture := seedActiveLease(t, db, node)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Zero(t, invoiceCount(t, db, fixture.lease.ID))
}

func TestRunOnce_AllowlistIsCaseInsensitive(t *testing.T) {
	db := newTestDB(t)
	node := newTestNode(t)
	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	s := newScheduler(t, db, node, clk, Config{EnabledJobs: []string{"Generate_Invoices"}})
	fixture := seedActiveLease(t, db, node)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.EqualValues(t, 1, invoiceCount(t, db, fixture.lease.ID))
}

func TestReconcilePendingPaymentsJob(t *testing.T) {
	db := newTestDB(t)
	node := newTestNode(t)
	// Clock ahead of wall time so the created_at rows age past the recheck
	// cutoff immediately.
	clk := clock.NewFakeClock(time.Now().Add(time.Hour))
	s := newScheduler(t, db, node, clk, Config{PendingRecheckAfter: 15 * time.Minute})
	fixture := seedActiveLease(t, db, node)

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/payment_intents/") {
			id := strings.TrimPrefix(r.URL.Path, "/payment_intents/")
			fmt.Fprintf(w, `{"id":%q,"status":"succeeded"}`, id)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(backend.Close)

	raw, err := json.Marshal(map[string]string{
		"secret_key":      "sk_test_123",
		"publishable_key": "pk_test_123",
		"webhook_secret":  "whsec_test_123",
		"api_base":        backend.URL,
	})
	require.NoError(t, err)
	require.NoError(t, db.Create(&gatewaydomain.GatewayConfig{
		ID:         node.Generate(),
		PropertyID: fixture.property.ID,
		Provider:   "stripe",
		IsActive:   true,
		IsDefault:  true,
		Config:     datatypes.JSON(raw),
	}).Error)

	invoice := billingdomain.Invoice{
		ID:            node.Generate(),
		InvoiceNumber: "INV-202503-0001",
		LeaseID:       fixture.lease.ID,
		TenantID:      fixture.tenant.ID,
		Status:        billingdomain.InvoiceStatusIssued,
		IssueDate:     time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		DueDate:       time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC),
		TotalAmount:   decimal.NewFromInt(500),
	}
	require.NoError(t, db.Create(&invoice).Error)
	require.NoError(t, db.Create(&billingdomain.Payment{
		ID:                   node.Generate(),
		TenantID:             fixture.tenant.ID,
		InvoiceID:            invoice.ID,
		Amount:               decimal.NewFromInt(500),
		Method:               billingdomain.PaymentMethodOnline,
		Status:               billingdomain.PaymentStatusPending,
		GatewayProvider:      "stripe",
		GatewayTransactionID: "pi_test_1",
	}).Error)

	resolved, err := s.ReconcilePendingPaymentsJob(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	var reloaded billingdomain.Invoice
	require.NoError(t, db.First(&reloaded, "id = ?", invoice.ID).Error)
	assert.Equal(t, billingdomain.InvoiceStatusPaid, reloaded.Status)
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, time.Minute, cfg.RunInterval)
	assert.Equal(t, 30*time.Second, cfg.JobTimeout)
	assert.Equal(t, 15*time.Minute, cfg.PendingRecheckAfter)

	custom := Config{RunInterval: 5 * time.Second}.withDefaults()
	assert.Equal(t, 5*time.Second, custom.RunInterval)
	assert.Equal(t, 30*time.Second, custom.JobTimeout)
}

func TestProvideConfig_ParsesJobList(t *testing.T) {
	cfg := ProvideConfig(appconfig.Config{
		SchedulerRunIntervalSec:  30,
		PendingPaymentRecheckMin: 5,
		SchedulerEnabledJobs:     "generate_invoices, late_fee_sweep ,",
	})
	assert.Equal(t, 30*time.Second, cfg.RunInterval)
	assert.Equal(t, 5*time.Minute, cfg.PendingRecheckAfter)
	assert.Equal(t, []string{"generate_invoices", "late_fee_sweep"}, cfg.EnabledJobs)
}
