package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/rentfold/rentfold/internal/billing/domain"
	"github.com/rentfold/rentfold/internal/clock"
	"github.com/rentfold/rentfold/internal/config"
	"github.com/rentfold/rentfold/internal/gateway"
	"github.com/rentfold/rentfold/internal/gateway/bitcoin"
	gatewaydomain "github.com/rentfold/rentfold/internal/gateway/domain"
	"github.com/rentfold/rentfold/internal/migration"
	"github.com/rentfold/rentfold/internal/notify"
	tenancydomain "github.com/rentfold/rentfold/internal/tenancy/domain"
	"github.com/shopspring/decimal"
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

type testTenancy struct {
	property tenancydomain.Property
	unit     tenancydomain.Unit
	tenant   tenancydomain.Tenant
	lease    tenancydomain.Lease
}

func seedTenancy(t *testing.T, db *gorm.DB, node *snowflake.Node) testTenancy {
	t.Helper()
	fixture := testTenancy{
		property: tenancydomain.Property{
			ID:      node.Generate(),
			Name:    "Maple Court",
			Address: "12 Maple Ct, Springfield",
		},
	}
	require.NoError(t, db.Create(&fixture.property).Error)

	fixture.unit = tenancydomain.Unit{
		ID:         node.Generate(),
		PropertyID: fixture.property.ID,
		Label:      "1A",
	}
	require.NoError(t, db.Create(&fixture.unit).Error)

	fixture.tenant = tenancydomain.Tenant{
		ID:        node.Generate(),
		FirstName: "Pat",
		LastName:  "Jordan",
		Email:     "pat@example.com",
	}
	require.NoError(t, db.Create(&fixture.tenant).Error)

	fixture.lease = tenancydomain.Lease{
		ID:         node.Generate(),
		PropertyID: fixture.property.ID,
		UnitID:     fixture.unit.ID,
		TenantID:   fixture.tenant.ID,
		Status:     tenancydomain.LeaseStatusActive,
		StartDate:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, db.Create(&fixture.lease).Error)
	return fixture
}

func addLeaseCharge(t *testing.T, db *gorm.DB, node *snowflake.Node, leaseID snowflake.ID, chargeType domain.ChargeType, amount int64, freq domain.ChargeFrequency) {
	t.Helper()
	leaseRef := leaseID
	charge := domain.RecurringCharge{
		ID:         node.Generate(),
		LeaseID:    &leaseRef,
		ChargeType: chargeType,
		Amount:     decimal.NewFromInt(amount),
		Frequency:  freq,
		StartDate:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		IsActive:   true,
	}
	require.NoError(t, db.Create(&charge).Error)
}

func addPropertyCharge(t *testing.T, db *gorm.DB, node *snowflake.Node, propertyID snowflake.ID, chargeType domain.ChargeType, amount int64) {
	t.Helper()
	propertyRef := propertyID
	charge := domain.RecurringCharge{
		ID:         node.Generate(),
		PropertyID: &propertyRef,
		ChargeType: chargeType,
		Amount:     decimal.NewFromInt(amount),
		Frequency:  domain.FrequencyMonthly,
		StartDate:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		IsActive:   true,
	}
	require.NoError(t, db.Create(&charge).Error)
}

func newTestInvoiceService(db *gorm.DB, node *snowflake.Node, clk clock.Clock) domain.InvoiceService {
	return NewInvoiceService(InvoiceParams{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
	})
}

func newTestResolver(db *gorm.DB, node *snowflake.Node) *gateway.Resolver {
	cfg := config.Config{GatewayHTTPTimeoutSec: 5}
	rates := bitcoin.NewRateService(db, nil, node, zap.NewNop(), "")
	registry := gateway.NewDefaultRegistry(db, node, rates)
	return gateway.NewResolver(db, registry, cfg, zap.NewNop())
}

func newTestPaymentService(db *gorm.DB, node *snowflake.Node, clk clock.Clock, observer domain.PrepaymentObserver) domain.PaymentService {
	return NewPaymentService(PaymentParams{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Resolver: newTestResolver(db, node),
		Notifier: notify.NoOpNotifier{},
		Observer: observer,
	})
}

func newTestLateFeeService(db *gorm.DB, node *snowflake.Node, clk clock.Clock) domain.LateFeeService {
	return NewLateFeeService(LateFeeParams{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
	})
}

// seedStripeConfig activates a stripe gateway for the property pointing at a
// test server.
func seedStripeConfig(t *testing.T, db *gorm.DB, node *snowflake.Node, propertyID snowflake.ID, apiBase string) {
	t.Helper()
	raw, err := json.Marshal(map[string]string{
		"secret_key":      "sk_test_123",
		"publishable_key": "pk_test_123",
		"webhook_secret":  "whsec_test_123",
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

type prepaymentCall struct {
	tenantID   snowflake.ID
	propertyID snowflake.ID
	amount     decimal.Decimal
}

type fakeObserver struct {
	calls []prepaymentCall
}

func (f *fakeObserver) PrepaymentRecorded(_ context.Context, tenantID, propertyID snowflake.ID, amount decimal.Decimal) error {
	f.calls = append(f.calls, prepaymentCall{tenantID: tenantID, propertyID: propertyID, amount: amount})
	return nil
}

func issuedInvoice(t *testing.T, svc domain.InvoiceService, leaseID snowflake.ID, issue, due time.Time) *domain.Invoice {
	t.Helper()
	invoice, err := svc.CreateInvoiceForLease(context.Background(), domain.CreateInvoiceInput{
		LeaseID:   leaseID,
		IssueDate: issue,
		DueDate:   due,
		Issue:     true,
	})
	require.NoError(t, err)
	return invoice
}
