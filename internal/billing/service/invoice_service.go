package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/rentfold/rentfold/internal/billing/domain"
	"github.com/rentfold/rentfold/internal/clock"
	tenancydomain "github.com/rentfold/rentfold/internal/tenancy/domain"
	"github.com/rentfold/rentfold/pkg/db/pagination"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type InvoiceParams struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type invoiceService struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewInvoiceService(p InvoiceParams) domain.InvoiceService {
	return &invoiceService{
		db:    p.DB,
		log:   p.Log.Named("billing.invoice"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

// nextInvoiceNumber assigns INV-YYYYMM-NNNN, monotonic per calendar month.
// Must run inside the transaction that creates the invoice; concurrent
// callers otherwise compute the same sequence.
func nextInvoiceNumber(tx *gorm.DB, issueDate time.Time) (string, error) {
	prefix := "INV-" + issueDate.Format("200601") + "-"

	var maxSeq int64
	err := tx.Raw(
		`SELECT COALESCE(MAX(CAST(SUBSTR(invoice_number, 12) AS INTEGER)), 0)
		 FROM invoices
		 WHERE invoice_number LIKE ?`,
		prefix+"%",
	).Scan(&maxSeq).Error
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%04d", prefix, maxSeq+1), nil
}

// chargeFires applies the frequency gate for a recurring charge against the
// billing date. One-time charges always fire; deactivation is the caller's
// responsibility.
func chargeFires(freq domain.ChargeFrequency, startDate, billingDate time.Time) bool {
	switch freq {
	case domain.FrequencyMonthly:
		return true
	case domain.FrequencyQuarterly:
		return int(billingDate.Month())%3 == int(startDate.Month())%3
	case domain.FrequencyAnnual:
		return billingDate.Month() == startDate.Month()
	case domain.FrequencyOneTime:
		return true
	default:
		return false
	}
}

func (s *invoiceService) CreateInvoiceForLease(ctx context.Context, in domain.CreateInvoiceInput) (*domain.Invoice, error) {
	var invoice *domain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := s.createInvoiceForLeaseTx(tx, in)
		if err != nil {
			return err
		}
		invoice = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

func (s *invoiceService) createInvoiceForLeaseTx(tx *gorm.DB, in domain.CreateInvoiceInput) (*domain.Invoice, error) {
	var lease tenancydomain.Lease
	if err := tx.First(&lease, "id = ?", in.LeaseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrLeaseNotFound
		}
		return nil, err
	}

	number, err := nextInvoiceNumber(tx, in.IssueDate)
	if err != nil {
		return nil, err
	}

	status := domain.InvoiceStatusDraft
	if in.Issue {
		status = domain.InvoiceStatusIssued
	}
	invoice := domain.Invoice{
		ID:             s.genID.Generate(),
		InvoiceNumber:  number,
		LeaseID:        lease.ID,
		TenantID:       lease.TenantID,
		BillingCycleID: in.BillingCycleID,
		Status:         status,
		IssueDate:      in.IssueDate,
		DueDate:        in.DueDate,
		TotalAmount:    decimal.Zero,
		AmountPaid:     decimal.Zero,
		LateFeesTotal:  decimal.Zero,
		Notes:          in.Notes,
	}
	if err := tx.Create(&invoice).Error; err != nil {
		return nil, err
	}

	items, err := s.gatherCharges(tx, lease, invoice.ID, in.IssueDate)
	if err != nil {
		return nil, err
	}
	total := decimal.Zero
	for i := range items {
		if err := tx.Create(&items[i]).Error; err != nil {
			return nil, err
		}
		total = total.Add(items[i].Amount)
	}

	invoice.TotalAmount = total
	invoice.LineItems = items
	if err := tx.Model(&domain.Invoice{}).Where("id = ?", invoice.ID).
		Update("total_amount", total).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

// gatherCharges collects billables in precedence order: lease charges,
// property charges, then fixed/variable utility configs for the unit.
func (s *invoiceService) gatherCharges(tx *gorm.DB, lease tenancydomain.Lease, invoiceID snowflake.ID, billingDate time.Time) ([]domain.InvoiceLineItem, error) {
	var items []domain.InvoiceLineItem

	appendCharge := func(c domain.RecurringCharge) {
		desc := c.Description
		if desc == "" {
			desc = string(c.ChargeType)
		}
		items = append(items, domain.InvoiceLineItem{
			ID:          s.genID.Generate(),
			InvoiceID:   invoiceID,
			ChargeType:  c.ChargeType,
			Description: desc,
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   c.Amount,
			Amount:      c.Amount,
		})
	}

	var leaseCharges []domain.RecurringCharge
	err := tx.Where("lease_id = ? AND is_active = ?", lease.ID, true).
		Order("created_at ASC").Find(&leaseCharges).Error
	if err != nil {
		return nil, err
	}
	for _, c := range leaseCharges {
		if chargeActive(c, billingDate) && chargeFires(c.Frequency, c.StartDate, billingDate) {
			appendCharge(c)
		}
	}

	var propertyCharges []domain.RecurringCharge
	err = tx.Where("property_id = ? AND is_active = ?", lease.PropertyID, true).
		Order("created_at ASC").Find(&propertyCharges).Error
	if err != nil {
		return nil, err
	}
	for _, c := range propertyCharges {
		if chargeActive(c, billingDate) && chargeFires(c.Frequency, c.StartDate, billingDate) {
			appendCharge(c)
		}
	}

	var utilities []domain.UtilityConfig
	err = tx.Where("unit_id = ? AND billing_mode IN ?", lease.UnitID,
		[]domain.UtilityBillingMode{domain.UtilityModeFixed, domain.UtilityModeVariable}).
		Order("utility_type ASC").Find(&utilities).Error
	if err != nil {
		return nil, err
	}
	for _, u := range utilities {
		items = append(items, domain.InvoiceLineItem{
			ID:          s.genID.Generate(),
			InvoiceID:   invoiceID,
			ChargeType:  domain.ChargeTypeUtility,
			Description: u.UtilityType,
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   u.Amount,
			Amount:      u.Amount,
			BillingMode: string(u.BillingMode),
		})
	}
	return items, nil
}

func chargeActive(c domain.RecurringCharge, billingDate time.Time) bool {
	if c.StartDate.After(billingDate) {
		return false
	}
	if c.EndDate != nil && c.EndDate.Before(billingDate) {
		return false
	}
	return true
}

func (s *invoiceService) AddLineItem(ctx context.Context, invoiceID snowflake.ID, in domain.LineItemInput) (*domain.Invoice, error) {
	if in.Quantity.IsNegative() || in.UnitPrice.IsNegative() {
		return nil, domain.ErrInvalidAmount
	}
	var invoice *domain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockInvoice(tx, invoiceID)
		if err != nil {
			return err
		}
		if !invoiceMutable(locked.Status) {
			return domain.ErrInvoiceNotMutable
		}

		item := domain.InvoiceLineItem{
			ID:          s.genID.Generate(),
			InvoiceID:   invoiceID,
			ChargeType:  in.ChargeType,
			Description: in.Description,
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
			Amount:      in.Quantity.Mul(in.UnitPrice).Round(2),
			BillingMode: in.BillingMode,
		}
		if err := tx.Create(&item).Error; err != nil {
			return err
		}
		invoice, err = recalculateTotal(tx, invoiceID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

func (s *invoiceService) RemoveLineItem(ctx context.Context, invoiceID, lineItemID snowflake.ID) (*domain.Invoice, error) {
	var invoice *domain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockInvoice(tx, invoiceID)
		if err != nil {
			return err
		}
		if !invoiceMutable(locked.Status) {
			return domain.ErrInvoiceNotMutable
		}

		result := tx.Where("id = ? AND invoice_id = ?", lineItemID, invoiceID).
			Delete(&domain.InvoiceLineItem{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrLineItemNotFound
		}
		invoice, err = recalculateTotal(tx, invoiceID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

func (s *invoiceService) GetInvoice(ctx context.Context, id snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := s.db.WithContext(ctx).Preload("LineItems").First(&invoice, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInvoiceNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

// ListInvoices pages newest-first using the snowflake ID as the cursor.
func (s *invoiceService) ListInvoices(ctx context.Context, in domain.ListInvoicesInput) ([]*domain.Invoice, *pagination.PageInfo, error) {
	size := in.PageSize
	if size < 1 {
		size = 10
	}
	if size > 250 {
		size = 250
	}

	query := s.db.WithContext(ctx).Model(&domain.Invoice{}).Preload("LineItems")
	if in.LeaseID != nil {
		query = query.Where("lease_id = ?", *in.LeaseID)
	}
	if in.TenantID != nil {
		query = query.Where("tenant_id = ?", *in.TenantID)
	}
	if in.Status != "" {
		query = query.Where("status = ?", in.Status)
	}
	if in.PageToken != "" {
		cursor, err := pagination.DecodeCursor(in.PageToken)
		if err != nil {
			return nil, nil, domain.ErrInvalidPageToken
		}
		query = query.Where("id < ?", cursor.ID)
	}

	var invoices []*domain.Invoice
	err := query.Order("id DESC").Limit(size + 1).Find(&invoices).Error
	if err != nil {
		return nil, nil, err
	}

	pageInfo := pagination.BuildCursorPageInfo(invoices, size, func(inv *domain.Invoice) snowflake.ID {
		return inv.ID
	})
	if len(invoices) > size {
		invoices = invoices[:size]
	}
	return invoices, pageInfo, nil
}

// GenerateMonthlyInvoices creates one issued invoice per active lease for the
// billing month. Safe to re-run: leases that already have an invoice in the
// month's billing cycle are skipped, and one lease's failure never aborts
// the rest of the batch.
func (s *invoiceService) GenerateMonthlyInvoices(ctx context.Context, billingDate time.Time) (int, error) {
	periodStart := time.Date(billingDate.Year(), billingDate.Month(), 1, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 1, 0).Add(-time.Second)

	var leases []tenancydomain.Lease
	err := s.db.WithContext(ctx).
		Where("status = ? AND start_date <= ?", tenancydomain.LeaseStatusActive, periodEnd).
		Order("property_id ASC, id ASC").
		Find(&leases).Error
	if err != nil {
		return 0, err
	}

	cycles := make(map[snowflake.ID]*domain.BillingCycle)
	dueDays := make(map[snowflake.ID]int)
	created := 0

	for _, lease := range leases {
		cycle, ok := cycles[lease.PropertyID]
		if !ok {
			cycle, err = s.getOrCreateCycle(ctx, lease.PropertyID, periodStart, periodEnd)
			if err != nil {
				s.log.Error("billing cycle lookup failed",
					zap.String("property_id", lease.PropertyID.String()), zap.Error(err))
				continue
			}
			cycles[lease.PropertyID] = cycle
			dueDays[lease.PropertyID] = s.dueDayForProperty(ctx, lease.PropertyID)
		}

		var existing int64
		err = s.db.WithContext(ctx).Model(&domain.Invoice{}).
			Where("lease_id = ? AND billing_cycle_id = ?", lease.ID, cycle.ID).
			Count(&existing).Error
		if err != nil {
			s.log.Error("invoice existence check failed",
				zap.String("lease_id", lease.ID.String()), zap.Error(err))
			continue
		}
		if existing > 0 {
			continue
		}

		dueDay := dueDays[lease.PropertyID]
		dueDate := time.Date(periodStart.Year(), periodStart.Month(), dueDay, 0, 0, 0, 0, time.UTC)

		_, err = s.CreateInvoiceForLease(ctx, domain.CreateInvoiceInput{
			LeaseID:        lease.ID,
			BillingCycleID: &cycle.ID,
			IssueDate:      periodStart,
			DueDate:        dueDate,
			Issue:          true,
		})
		if err != nil {
			s.log.Error("monthly invoice generation failed for lease",
				zap.String("lease_id", lease.ID.String()), zap.Error(err))
			continue
		}
		created++
	}
	return created, nil
}

func (s *invoiceService) getOrCreateCycle(ctx context.Context, propertyID snowflake.ID, periodStart, periodEnd time.Time) (*domain.BillingCycle, error) {
	cycle := domain.BillingCycle{
		ID:          s.genID.Generate(),
		PropertyID:  propertyID,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
	}
	// ON CONFLICT DO NOTHING keeps re-runs from duplicating the cycle.
	result := s.db.WithContext(ctx).
		Exec(`INSERT INTO billing_cycles (id, property_id, period_start, period_end, created_at)
		      VALUES (?, ?, ?, ?, ?)
		      ON CONFLICT (property_id, period_start) DO NOTHING`,
			cycle.ID, propertyID, periodStart, periodEnd, s.clock.Now())
	if result.Error != nil {
		return nil, result.Error
	}
	var row domain.BillingCycle
	err := s.db.WithContext(ctx).
		Where("property_id = ? AND period_start = ?", propertyID, periodStart).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// dueDayForProperty clamps the configured due day to 28 so every month has
// the date.
func (s *invoiceService) dueDayForProperty(ctx context.Context, propertyID snowflake.ID) int {
	var cfg domain.PropertyBillingConfig
	err := s.db.WithContext(ctx).Where("property_id = ?", propertyID).First(&cfg).Error
	if err != nil {
		return 1
	}
	if cfg.DefaultDueDay < 1 {
		return 1
	}
	if cfg.DefaultDueDay > 28 {
		return 28
	}
	return cfg.DefaultDueDay
}

func invoiceMutable(status domain.InvoiceStatus) bool {
	return status != domain.InvoiceStatusPaid && status != domain.InvoiceStatusCancelled
}

// lockInvoice takes the row lock every money-moving path serializes on.
func lockInvoice(tx *gorm.DB, invoiceID snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	result := tx.Raw(
		`SELECT * FROM invoices WHERE id = ?`+lockClause(tx),
		invoiceID,
	).Scan(&invoice)
	if result.Error != nil {
		return nil, result.Error
	}
	if invoice.ID == 0 {
		return nil, domain.ErrInvoiceNotFound
	}
	return &invoice, nil
}

// recalculateTotal re-derives total_amount from line items inside the
// caller's transaction.
func recalculateTotal(tx *gorm.DB, invoiceID snowflake.ID) (*domain.Invoice, error) {
	var items []domain.InvoiceLineItem
	if err := tx.Where("invoice_id = ?", invoiceID).Find(&items).Error; err != nil {
		return nil, err
	}
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount)
	}
	if err := tx.Model(&domain.Invoice{}).Where("id = ?", invoiceID).
		Update("total_amount", total).Error; err != nil {
		return nil, err
	}
	var invoice domain.Invoice
	if err := tx.Preload("LineItems").First(&invoice, "id = ?", invoiceID).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}
