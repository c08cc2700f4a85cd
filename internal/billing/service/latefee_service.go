package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/rentfold/rentfold/internal/billing/domain"
	"github.com/rentfold/rentfold/internal/clock"
	tenancydomain "github.com/rentfold/rentfold/internal/tenancy/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type LateFeeParams struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type lateFeeService struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewLateFeeService(p LateFeeParams) domain.LateFeeService {
	return &lateFeeService{
		db:    p.DB,
		log:   p.Log.Named("billing.latefee"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

// ApplyLateFee charges one late fee if the invoice is past its grace
// deadline and the frequency window has not fired yet. Returns whether a fee
// was applied.
func (s *lateFeeService) ApplyLateFee(ctx context.Context, invoiceID snowflake.ID, asOf time.Time) (bool, error) {
	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := lockInvoice(tx, invoiceID)
		if err != nil {
			return err
		}
		if !accruable(invoice) {
			return nil
		}
		cfg, err := s.configForInvoice(tx, invoice)
		if err != nil || cfg == nil {
			return err
		}
		if !cfg.LateFeeEnabled || cfg.LateFeeType == domain.LateFeeTypeInterest {
			return nil
		}

		deadline := dateOnly(invoice.DueDate).AddDate(0, 0, cfg.GracePeriodDays)
		if !dateOnly(asOf).After(deadline) {
			return nil
		}

		fired, err := s.feeAlreadyApplied(tx, invoice.ID, cfg.LateFeeFrequency, asOf)
		if err != nil {
			return err
		}
		if fired {
			return nil
		}

		amount := cfg.LateFeeAmount
		if cfg.LateFeeType == domain.LateFeeTypePercentage {
			amount = invoice.BalanceDue().Mul(cfg.LateFeeAmount).Div(decimal.NewFromInt(100)).Round(2)
		}
		if cfg.LateFeeCap.IsPositive() {
			headroom := cfg.LateFeeCap.Sub(invoice.LateFeesTotal)
			amount = decimal.Min(amount, headroom)
		}
		if !amount.IsPositive() {
			return nil
		}

		if err := s.writeFee(tx, invoice, cfg.LateFeeType, amount, "Late fee", asOf); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

// ApplyInterest accrues one day of interest on the outstanding balance, at
// most once per calendar day.
func (s *lateFeeService) ApplyInterest(ctx context.Context, invoiceID snowflake.ID, asOf time.Time) (bool, error) {
	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := lockInvoice(tx, invoiceID)
		if err != nil {
			return err
		}
		if !accruable(invoice) {
			return nil
		}
		cfg, err := s.configForInvoice(tx, invoice)
		if err != nil || cfg == nil {
			return err
		}
		if !cfg.InterestEnabled || !cfg.AnnualInterestRate.IsPositive() {
			return nil
		}
		if !dateOnly(asOf).After(dateOnly(invoice.DueDate)) {
			return nil
		}

		var existing int64
		day := dateOnly(asOf)
		err = tx.Model(&domain.LateFeeLog{}).
			Where("invoice_id = ? AND fee_type = ? AND applied_date >= ? AND applied_date < ?",
				invoice.ID, domain.LateFeeTypeInterest, day, day.AddDate(0, 0, 1)).
			Count(&existing).Error
		if err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}

		dailyRate := cfg.AnnualInterestRate.
			Div(decimal.NewFromInt(365)).
			Div(decimal.NewFromInt(100))
		amount := invoice.BalanceDue().Mul(dailyRate).Round(2)
		if !amount.IsPositive() {
			return nil
		}

		if err := s.writeFee(tx, invoice, domain.LateFeeTypeInterest, amount, "Interest on overdue balance", asOf); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

// SweepOverdue is the nightly combined job: it flips past-due invoices to
// overdue first, then runs late-fee and interest accrual on each, so the two
// steps can never run in the wrong order. Returns the number of fee or
// interest charges applied.
func (s *lateFeeService) SweepOverdue(ctx context.Context, asOf time.Time) (int, error) {
	err := s.db.WithContext(ctx).Model(&domain.Invoice{}).
		Where("status IN ? AND due_date < ?",
			[]domain.InvoiceStatus{domain.InvoiceStatusIssued, domain.InvoiceStatusPartial},
			dateOnly(asOf)).
		Update("status", domain.InvoiceStatusOverdue).Error
	if err != nil {
		return 0, err
	}

	var invoices []domain.Invoice
	err = s.db.WithContext(ctx).
		Where("status = ?", domain.InvoiceStatusOverdue).
		Order("id ASC").
		Find(&invoices).Error
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, invoice := range invoices {
		feeApplied, err := s.ApplyLateFee(ctx, invoice.ID, asOf)
		if err != nil {
			s.log.Error("late fee accrual failed",
				zap.String("invoice_id", invoice.ID.String()), zap.Error(err))
		} else if feeApplied {
			applied++
		}

		interestApplied, err := s.ApplyInterest(ctx, invoice.ID, asOf)
		if err != nil {
			s.log.Error("interest accrual failed",
				zap.String("invoice_id", invoice.ID.String()), zap.Error(err))
		} else if interestApplied {
			applied++
		}
	}
	return applied, nil
}

func (s *lateFeeService) feeAlreadyApplied(tx *gorm.DB, invoiceID snowflake.ID, freq domain.LateFeeFrequency, asOf time.Time) (bool, error) {
	query := tx.Model(&domain.LateFeeLog{}).
		Where("invoice_id = ? AND fee_type IN ?", invoiceID,
			[]domain.LateFeeType{domain.LateFeeTypeFlat, domain.LateFeeTypePercentage})
	if freq == domain.LateFeeRecurringMonthly {
		monthStart := time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, time.UTC)
		query = query.Where("applied_date >= ? AND applied_date < ?", monthStart, monthStart.AddDate(0, 1, 0))
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// writeFee creates the line item, the idempotency log row, and the invoice
// total bumps as one unit inside the caller's transaction.
func (s *lateFeeService) writeFee(tx *gorm.DB, invoice *domain.Invoice, feeType domain.LateFeeType, amount decimal.Decimal, description string, asOf time.Time) error {
	item := domain.InvoiceLineItem{
		ID:          s.genID.Generate(),
		InvoiceID:   invoice.ID,
		ChargeType:  domain.ChargeTypeFee,
		Description: description,
		Quantity:    decimal.NewFromInt(1),
		UnitPrice:   amount,
		Amount:      amount,
	}
	if err := tx.Create(&item).Error; err != nil {
		return err
	}
	logRow := domain.LateFeeLog{
		ID:          s.genID.Generate(),
		InvoiceID:   invoice.ID,
		LineItemID:  item.ID,
		FeeType:     feeType,
		Amount:      amount,
		AppliedDate: dateOnly(asOf),
	}
	if err := tx.Create(&logRow).Error; err != nil {
		return err
	}
	return tx.Model(&domain.Invoice{}).Where("id = ?", invoice.ID).Updates(map[string]any{
		"total_amount":    invoice.TotalAmount.Add(amount),
		"late_fees_total": invoice.LateFeesTotal.Add(amount),
	}).Error
}

func (s *lateFeeService) configForInvoice(tx *gorm.DB, invoice *domain.Invoice) (*domain.PropertyBillingConfig, error) {
	var lease tenancydomain.Lease
	if err := tx.First(&lease, "id = ?", invoice.LeaseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrLeaseNotFound
		}
		return nil, err
	}
	var cfg domain.PropertyBillingConfig
	err := tx.Where("property_id = ?", lease.PropertyID).First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cfg, nil
}

func accruable(invoice *domain.Invoice) bool {
	switch invoice.Status {
	case domain.InvoiceStatusIssued, domain.InvoiceStatusPartial, domain.InvoiceStatusOverdue:
		return invoice.BalanceDue().IsPositive()
	default:
		return false
	}
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
