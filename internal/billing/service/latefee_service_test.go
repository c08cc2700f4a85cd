package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/rentfold/rentfold/internal/billing/domain"
	"github.com/rentfold/rentfold/internal/clock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedLateFeeConfig(t *testing.T, db *gorm.DB, node *snowflake.Node, propertyID snowflake.ID, mutate func(*domain.PropertyBillingConfig)) {
	t.Helper()
	cfg := domain.PropertyBillingConfig{
		ID:               node.Generate(),
		PropertyID:       propertyID,
		DefaultDueDay:    1,
		LateFeeEnabled:   true,
		LateFeeType:      domain.LateFeeTypeFlat,
		LateFeeAmount:    decimal.NewFromInt(50),
		LateFeeFrequency: domain.LateFeeOneTime,
		LateFeeCap:       decimal.Zero,
		GracePeriodDays:  3,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	require.NoError(t, db.Create(&cfg).Error)
}

func TestApplyLateFee_FlatWithGrace(t *testing.T) {
	db := newTestDB(t)
	node := newTestNode(t)
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	invoiceSvc := newTestInvoiceService(db, node, clk)
	feeSvc := newTestLateFeeService(db, node, clk)
	fixture := seedTenancy(t, db, node)
	addLeaseCharge(t, db, node, fixture.lease.ID, domain.ChargeTypeRent, 1000, domain.FrequencyMonthly)
	seedLateFeeConfig(t, db, node, fixture.property.ID, nil)

	due := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	invoice := issuedInvoice(t, invoiceSvc, fixture.lease.ID,
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), due)

	// Inside the grace window nothing accrues.
	applied, err := feeSvc.ApplyLateFee(context.Background(), invoice.ID, due.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.False(t, applied)

	applied, err = feeSvc.ApplyLateFee(context.Background(), invoice.ID, due.AddDate(0, 0, 4))
	require.NoError(t, err)
	assert.True(t, applied)

	var reloaded domain.Invoice
	require.NoError(t, db.Preload("LineItems").First(&reloaded, "id = ?", invoice.ID).Error)
	assert.True(t, reloaded.TotalAmount.Equal(decimal.NewFromInt(1050)))
	assert.True(t, reloaded.LateFeesTotal.Equal(decimal.NewFromInt(50)))
	assert.Len(t, reloaded.LineItems, 2)

	// One-time frequency: a second pass is a no-op.
	applied, err = feeSvc.ApplyLateFee(context.Background(), invoice.ID, due.AddDate(0, 0, 10))
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestApplyLateFee_PercentageAndCap(t *testing.T) {
	db := newTestDB(t)
	node := newTestNode(t)
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	invoiceSvc := newTestInvoiceService(db, node, clk)
	feeSvc := newTestLateFeeService(db, node, clk)
	fixture := seedTenancy(t, db, node)
	addLeaseCharge(t, db, node, fixture.lease.ID, domain.ChargeTypeRent, 1000, domain.FrequencyMonthly)
	seedLateFeeConfig(t, db, node, fixture.property.ID, func(cfg *domain.PropertyBillingConfig) {
		cfg.LateFeeType = domain.LateFeeTypePercentage
		cfg.LateFeeAmount = decimal.NewFromInt(5)
		cfg.LateFeeFrequency = domain.LateFeeRecurringMonthly
		cfg.LateFeeCap = decimal.NewFromInt(60)
		cfg.GracePeriodDays = 0
	})

	due := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	invoice := issuedInvoice(t, invoiceSvc, fixture.lease.ID,
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), due)

	// 5% of the 1000 balance.
	applied, err := feeSvc.ApplyLateFee(context.Background(), invoice.ID, due.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.True(t, applied)

	var reloaded domain.Invoice
	require.NoError(t, db.First(&reloaded, "id = ?", invoice.ID).Error)
	assert.True(t, reloaded.LateFeesTotal.Equal(decimal.NewFromInt(50)))

	// Next month's fee hits the cap headroom: 60 - 50 = 10.
	applied, err = feeSvc.ApplyLateFee(context.Background(), invoice.ID, due.AddDate(0, 1, 1))
	require.NoError(t, err)
	assert.True(t, applied)
	require.NoError(t, db.First(&reloaded, "id = ?", invoice.ID).Error)
	assert.True(t, reloaded.LateFeesTotal.Equal(decimal.NewFromInt(60)))

	// Cap reached; nothing more accrues.
	applied, err = feeSvc.ApplyLateFee(context.Background(), invoice.ID, due.AddDate(0, 2, 1))
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestApplyInterest_OncePerDay(t *testing.T) {
	db := newTestDB(t)
	node := newTestNode(t)
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	invoiceSvc := newTestInvoiceService(db, node, clk)
	feeSvc := newTestLateFeeService(db, node, clk)
	fixture := seedTenancy(t, db, node)
	addLeaseCharge(t, db, node, fixture.lease.ID, domain.ChargeTypeRent, 1000, domain.FrequencyMonthly)
	seedLateFeeConfig(t, db, node, fixture.property.ID, func(cfg *domain.PropertyBillingConfig) {
		cfg.LateFeeEnabled = false
		cfg.InterestEnabled = true
		cfg.AnnualInterestRate = decimal.NewFromFloat(7.3)
	})

	due := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	invoice := issuedInvoice(t, invoiceSvc, fixture.lease.ID,
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), due)

	asOf := due.AddDate(0, 0, 1)
	applied, err := feeSvc.ApplyInterest(context.Background(), invoice.ID, asOf)
	require.NoError(t, err)
	assert.True(t, applied)

	// 1000 * 7.3/365/100 = 0.20 per day.
	var reloaded domain.Invoice
	require.NoError(t, db.First(&reloaded, "id = ?", invoice.ID).Error)
	assert.True(t, reloaded.LateFeesTotal.Equal(decimal.NewFromFloat(0.20)),
		"interest %s", reloaded.LateFeesTotal)

	applied, err = feeSvc.ApplyInterest(context.Background(), invoice.ID, asOf.Add(6*time.Hour))
	require.NoError(t, err)
	assert.False(t, applied, "same calendar day never accrues twice")

	applied, err = feeSvc.ApplyInterest(context.Background(), invoice.ID, asOf.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestSweepOverdue_FlipsAndAccrues(t *testing.T) {
	db := newTestDB(t)
	node := newTestNode(t)
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	invoiceSvc := newTestInvoiceService(db, node, clk)
	feeSvc := newTestLateFeeService(db, node, clk)
	fixture := seedTenancy(t, db, node)
	addLeaseCharge(t, db, node, fixture.lease.ID, domain.ChargeTypeRent, 1000, domain.FrequencyMonthly)
	seedLateFeeConfig(t, db, node, fixture.property.ID, func(cfg *domain.PropertyBillingConfig) {
		cfg.GracePeriodDays = 0
		cfg.InterestEnabled = true
		cfg.AnnualInterestRate = decimal.NewFromFloat(7.3)
	})

	due := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	invoice := issuedInvoice(t, invoiceSvc, fixture.lease.ID,
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), due)

	applied, err := feeSvc.SweepOverdue(context.Background(), due.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, applied, "one flat fee plus one day of interest")

	var reloaded domain.Invoice
	require.NoError(t, db.First(&reloaded, "id = ?", invoice.ID).Error)
	assert.Equal(t, domain.InvoiceStatusOverdue, reloaded.Status)
	assert.True(t, reloaded.LateFeesTotal.IsPositive())
}

func TestSweepOverdue_IgnoresFutureDue(t *testing.T) {
	db := newTestDB(t)
	node := newTestNode(t)
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	invoiceSvc := newTestInvoiceService(db, node, clk)
	feeSvc := newTestLateFeeService(db, node, clk)
	fixture := seedTenancy(t, db, node)
	addLeaseCharge(t, db, node, fixture.lease.ID, domain.ChargeTypeRent, 1000, domain.FrequencyMonthly)
	seedLateFeeConfig(t, db, node, fixture.property.ID, nil)

	due := time.Date(2025, 3, 25, 0, 0, 0, 0, time.UTC)
	invoice := issuedInvoice(t, invoiceSvc, fixture.lease.ID,
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), due)

	applied, err := feeSvc.SweepOverdue(context.Background(), time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, applied)

	var reloaded domain.Invoice
	require.NoError(t, db.First(&reloaded, "id = ?", invoice.ID).Error)
	assert.Equal(t, domain.InvoiceStatusIssued, reloaded.Status)
}
