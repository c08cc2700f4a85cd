package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/rentfold/rentfold/internal/billing/domain"
	"github.com/rentfold/rentfold/internal/clock"
	"github.com/rentfold/rentfold/internal/notify"
	"github.com/rentfold/rentfold/internal/rewards/domain"
	tenancydomain "github.com/rentfold/rentfold/internal/tenancy/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Notifier notify.Notifier
}

type service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	notifier notify.Notifier
}

func NewService(p Params) domain.Service {
	return &service{
		db:       p.DB,
		log:      p.Log.Named("rewards"),
		genID:    p.GenID,
		clock:    p.Clock,
		notifier: p.Notifier,
	}
}

// GrantReward credits the tenant's wallet under a row lock and appends the
// audit row. The notification goes out after commit; its failure never rolls
// the grant back.
func (s *service) GrantReward(ctx context.Context, in domain.GrantInput) (*domain.RewardTransaction, error) {
	var txn *domain.RewardTransaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		txn, err = s.grantRewardTx(tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.notifyRewardEarned(ctx, *txn)
	return txn, nil
}

// grantRewardTx books a grant inside the caller's transaction, so evaluators
// can commit grants together with their idempotency bookkeeping.
func (s *service) grantRewardTx(tx *gorm.DB, in domain.GrantInput) (*domain.RewardTransaction, error) {
	if !in.Amount.IsPositive() {
		return nil, domain.ErrInvalidRewardAmount
	}
	balance, err := s.lockOrCreateBalance(tx, in.TenantID)
	if err != nil {
		return nil, err
	}
	newBalance := balance.Balance.Add(in.Amount)
	err = tx.Model(&domain.RewardBalance{}).Where("id = ?", balance.ID).Updates(map[string]any{
		"balance":      newBalance,
		"total_earned": balance.TotalEarned.Add(in.Amount),
	}).Error
	if err != nil {
		return nil, err
	}

	txn := domain.RewardTransaction{
		ID:              s.genID.Generate(),
		TenantID:        in.TenantID,
		TransactionType: in.TransactionType,
		Amount:          in.Amount,
		BalanceAfter:    newBalance,
		Description:     in.Description,
		InvoiceID:       in.InvoiceID,
		PaymentID:       in.PaymentID,
		StreakTierID:    in.StreakTierID,
	}
	if err := tx.Create(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (s *service) notifyRewardEarned(ctx context.Context, txn domain.RewardTransaction) {
	if err := s.notifier.DispatchEvent(ctx, "reward_earned", map[string]any{
		"tenant_id": txn.TenantID.String(),
		"amount":    txn.Amount.StringFixed(2),
		"body":      txn.Description,
	}); err != nil {
		s.log.Warn("reward notification dispatch failed",
			zap.String("tenant_id", txn.TenantID.String()), zap.Error(err))
	}
}

// ApplyRewardsToInvoice redeems wallet value against an invoice as a
// completed reward-method payment. Lock order is Invoice then RewardBalance.
func (s *service) ApplyRewardsToInvoice(ctx context.Context, invoiceID snowflake.ID, amount *decimal.Decimal) (*billingdomain.Payment, error) {
	var payment *billingdomain.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := lockInvoice(tx, invoiceID)
		if err != nil {
			return err
		}
		if !invoice.BalanceDue().IsPositive() {
			return nil
		}
		balance, err := s.lockOrCreateBalance(tx, invoice.TenantID)
		if err != nil {
			return err
		}
		if !balance.Balance.IsPositive() {
			return nil
		}

		apply := decimal.Min(balance.Balance, invoice.BalanceDue())
		if amount != nil {
			apply = decimal.Min(apply, *amount)
		}
		if !apply.IsPositive() {
			return nil
		}

		now := s.clock.Now()
		created := billingdomain.Payment{
			ID:            s.genID.Generate(),
			TenantID:      invoice.TenantID,
			InvoiceID:     invoice.ID,
			Amount:        apply,
			Method:        billingdomain.PaymentMethodReward,
			Status:        billingdomain.PaymentStatusCompleted,
			CreditApplied: decimal.Zero,
			RewardApplied: apply,
			PaidAt:        &now,
		}
		if err := tx.Create(&created).Error; err != nil {
			return err
		}

		newPaid := invoice.AmountPaid.Add(apply)
		status := billingdomain.InvoiceStatusPartial
		if newPaid.GreaterThanOrEqual(invoice.TotalAmount) {
			status = billingdomain.InvoiceStatusPaid
		}
		err = tx.Model(&billingdomain.Invoice{}).Where("id = ?", invoice.ID).Updates(map[string]any{
			"amount_paid": newPaid,
			"status":      status,
		}).Error
		if err != nil {
			return err
		}

		newBalance := balance.Balance.Sub(apply)
		err = tx.Model(&domain.RewardBalance{}).Where("id = ?", balance.ID).Updates(map[string]any{
			"balance":        newBalance,
			"total_redeemed": balance.TotalRedeemed.Add(apply),
		}).Error
		if err != nil {
			return err
		}

		txn := domain.RewardTransaction{
			ID:              s.genID.Generate(),
			TenantID:        invoice.TenantID,
			TransactionType: domain.TransactionRedeemed,
			Amount:          apply.Neg(),
			BalanceAfter:    newBalance,
			Description:     "Applied to invoice " + invoice.InvoiceNumber,
			InvoiceID:       &invoice.ID,
			PaymentID:       &created.ID,
		}
		if err := tx.Create(&txn).Error; err != nil {
			return err
		}
		payment = &created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// ReverseRewardApplication credits the wallet back for a reward payment.
// The reversal is a new audit row; it does not make a consumed streak tier
// grantable again.
func (s *service) ReverseRewardApplication(ctx context.Context, paymentID snowflake.ID) (*domain.RewardTransaction, error) {
	var payment billingdomain.Payment
	err := s.db.WithContext(ctx).First(&payment, "id = ?", paymentID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, billingdomain.ErrPaymentNotFound
		}
		return nil, err
	}
	if payment.Method != billingdomain.PaymentMethodReward {
		return nil, domain.ErrNotRewardPayment
	}

	var txn domain.RewardTransaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		balance, err := lockBalance(tx, payment.TenantID)
		if err != nil {
			return err
		}
		if balance == nil {
			return domain.ErrBalanceNotFound
		}

		newBalance := balance.Balance.Add(payment.RewardApplied)
		err = tx.Model(&domain.RewardBalance{}).Where("id = ?", balance.ID).Updates(map[string]any{
			"balance":        newBalance,
			"total_redeemed": balance.TotalRedeemed.Sub(payment.RewardApplied),
		}).Error
		if err != nil {
			return err
		}

		txn = domain.RewardTransaction{
			ID:              s.genID.Generate(),
			TenantID:        payment.TenantID,
			TransactionType: domain.TransactionReversed,
			Amount:          payment.RewardApplied,
			BalanceAfter:    newBalance,
			Description:     "Reversed reward application",
			InvoiceID:       &payment.InvoiceID,
			PaymentID:       &payment.ID,
		}
		return tx.Create(&txn).Error
	})
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// AdminAdjustBalance applies a signed adjustment. Positive amounts count
// toward total_earned; deductions touch only the balance.
func (s *service) AdminAdjustBalance(ctx context.Context, tenantID snowflake.ID, amount decimal.Decimal, description string) (*domain.RewardTransaction, error) {
	if amount.IsZero() {
		return nil, domain.ErrInvalidRewardAmount
	}

	var txn domain.RewardTransaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		balance, err := s.lockOrCreateBalance(tx, tenantID)
		if err != nil {
			return err
		}
		newBalance := balance.Balance.Add(amount)
		updates := map[string]any{"balance": newBalance}
		if amount.IsPositive() {
			updates["total_earned"] = balance.TotalEarned.Add(amount)
		}
		err = tx.Model(&domain.RewardBalance{}).Where("id = ?", balance.ID).Updates(updates).Error
		if err != nil {
			return err
		}

		txn = domain.RewardTransaction{
			ID:              s.genID.Generate(),
			TenantID:        tenantID,
			TransactionType: domain.TransactionAdminAdjustment,
			Amount:          amount,
			BalanceAfter:    newBalance,
			Description:     description,
		}
		return tx.Create(&txn).Error
	})
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// EvaluateStreakRewards walks calendar months from the watermark through the
// last fully completed month, updating the streak and granting any tier
// crossings. The watermark advance is what makes re-runs grant nothing new.
func (s *service) EvaluateStreakRewards(ctx context.Context, tenantID, propertyID snowflake.ID) ([]domain.RewardTransaction, error) {
	var cfg domain.PropertyRewardsConfig
	err := s.db.WithContext(ctx).
		Where("property_id = ? AND rewards_enabled = ? AND streak_reward_enabled = ?", propertyID, true, true).
		First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var tiers []domain.StreakRewardTier
	err = s.db.WithContext(ctx).
		Where("config_id = ?", cfg.ID).
		Order("months_required ASC").
		Find(&tiers).Error
	if err != nil {
		return nil, err
	}
	if len(tiers) == 0 {
		return nil, nil
	}

	evaluation, err := s.getOrCreateEvaluation(ctx, tenantID, cfg.ID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	lastCompletedMonth := monthStart(now).AddDate(0, -1, 0)

	var startMonth time.Time
	if evaluation.LastEvaluatedMonth != nil {
		startMonth = monthStart(*evaluation.LastEvaluatedMonth).AddDate(0, 1, 0)
	} else {
		var earliest billingdomain.Invoice
		err := s.db.WithContext(ctx).
			Where("tenant_id = ? AND lease_id IN (?)", tenantID, s.leaseIDsAt(propertyID)).
			Order("issue_date ASC").
			First(&earliest).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil
			}
			return nil, err
		}
		startMonth = monthStart(earliest.IssueDate)
	}
	if startMonth.After(lastCompletedMonth) {
		return nil, nil
	}

	awarded, err := decodeAwardedTierIDs(evaluation.AwardedTierIDs)
	if err != nil {
		return nil, err
	}

	var granted []domain.RewardTransaction
	for month := startMonth; !month.After(lastCompletedMonth); month = month.AddDate(0, 1, 0) {
		onTime, hasInvoices, err := s.monthPaidOnTime(ctx, tenantID, propertyID, month)
		if err != nil {
			return granted, err
		}
		if !hasInvoices {
			// A month with no invoices neither extends nor breaks the streak.
			continue
		}

		if onTime {
			evaluation.CurrentStreakMonths++
		} else {
			evaluation.CurrentStreakMonths = 0
			broken := month
			evaluation.StreakBrokenAt = &broken
		}
		watermark := month
		evaluation.LastEvaluatedMonth = &watermark

		// The month's grants and the watermark land in one commit, so a
		// re-run sees either both or neither.
		var monthGrants []domain.RewardTransaction
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			monthGrants = monthGrants[:0]
			for _, tier := range tiers {
				if evaluation.CurrentStreakMonths < tier.MonthsRequired {
					continue
				}
				tierID := tier.ID.String()
				grantsDue := 0
				if tier.IsRecurring {
					expected := evaluation.CurrentStreakMonths / tier.MonthsRequired
					grantsDue = expected - countOf(awarded, tierID)
				} else if !contains(awarded, tierID) {
					grantsDue = 1
				}

				for i := 0; i < grantsDue; i++ {
					tierRef := tier.ID
					txn, err := s.grantRewardTx(tx, domain.GrantInput{
						TenantID:        tenantID,
						Amount:          tier.RewardAmount,
						TransactionType: domain.TransactionStreakEarned,
						Description:     "On-time payment streak reward",
						StreakTierID:    &tierRef,
					})
					if err != nil {
						return err
					}
					monthGrants = append(monthGrants, *txn)
					awarded = append(awarded, tierID)
				}
			}

			raw, err := json.Marshal(awarded)
			if err != nil {
				return err
			}
			return tx.Model(&domain.StreakEvaluation{}).Where("id = ?", evaluation.ID).Updates(map[string]any{
				"current_streak_months": evaluation.CurrentStreakMonths,
				"last_evaluated_month":  evaluation.LastEvaluatedMonth,
				"streak_broken_at":      evaluation.StreakBrokenAt,
				"awarded_tier_ids":      datatypes.JSON(raw),
			}).Error
		})
		if err != nil {
			return granted, err
		}
		for _, txn := range monthGrants {
			s.notifyRewardEarned(ctx, txn)
		}
		granted = append(granted, monthGrants...)
	}
	return granted, nil
}

// EvaluatePrepaymentRewards accumulates the prepayment and grants one reward
// per threshold crossed since the last call.
func (s *service) EvaluatePrepaymentRewards(ctx context.Context, tenantID, propertyID snowflake.ID, prepaymentAmount decimal.Decimal) ([]domain.RewardTransaction, error) {
	var cfg domain.PropertyRewardsConfig
	err := s.db.WithContext(ctx).
		Where("property_id = ? AND rewards_enabled = ? AND prepayment_reward_enabled = ?", propertyID, true, true).
		First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !cfg.PrepaymentThresholdAmount.IsPositive() || !cfg.PrepaymentRewardAmount.IsPositive() {
		return nil, nil
	}

	// Grants commit with the tracker update: a failed grant rolls the
	// granted count back, so the crossing stays owed.
	var granted []domain.RewardTransaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		granted = granted[:0]
		tracker, err := s.lockOrCreateTracker(tx, tenantID, cfg.ID)
		if err != nil {
			return err
		}
		cumulative := tracker.CumulativePrepayment.Add(prepaymentAmount)
		crossed := int(cumulative.Div(cfg.PrepaymentThresholdAmount).IntPart())
		grantsDue := crossed - tracker.RewardsGrantedCount
		if grantsDue < 0 {
			grantsDue = 0
		}
		for i := 0; i < grantsDue; i++ {
			txn, err := s.grantRewardTx(tx, domain.GrantInput{
				TenantID:        tenantID,
				Amount:          cfg.PrepaymentRewardAmount,
				TransactionType: domain.TransactionPrepaymentEarned,
				Description:     "Prepayment threshold reward",
			})
			if err != nil {
				return err
			}
			granted = append(granted, *txn)
		}
		return tx.Model(&domain.PrepaymentRewardTracker{}).Where("id = ?", tracker.ID).Updates(map[string]any{
			"cumulative_prepayment": cumulative,
			"rewards_granted_count": tracker.RewardsGrantedCount + grantsDue,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	for _, txn := range granted {
		s.notifyRewardEarned(ctx, txn)
	}
	return granted, nil
}

// EvaluateAllStreaks is the batch entry point: one walk per active lease
// under a streak-enabled config. Per-lease failures are logged and counted
// out, never aborting the batch.
func (s *service) EvaluateAllStreaks(ctx context.Context) (int, error) {
	var configs []domain.PropertyRewardsConfig
	err := s.db.WithContext(ctx).
		Where("rewards_enabled = ? AND streak_reward_enabled = ?", true, true).
		Find(&configs).Error
	if err != nil {
		return 0, err
	}

	grantedTotal := 0
	for _, cfg := range configs {
		var leases []tenancydomain.Lease
		err := s.db.WithContext(ctx).
			Where("property_id = ? AND status = ?", cfg.PropertyID, tenancydomain.LeaseStatusActive).
			Find(&leases).Error
		if err != nil {
			s.log.Error("streak batch lease lookup failed",
				zap.String("property_id", cfg.PropertyID.String()), zap.Error(err))
			continue
		}
		for _, lease := range leases {
			granted, err := s.EvaluateStreakRewards(ctx, lease.TenantID, cfg.PropertyID)
			if err != nil {
				s.log.Error("streak evaluation failed",
					zap.String("tenant_id", lease.TenantID.String()),
					zap.String("property_id", cfg.PropertyID.String()),
					zap.Error(err))
				continue
			}
			grantedTotal += len(granted)
		}
	}
	return grantedTotal, nil
}

// AutoApplyRewards drains wallets into open invoices for opted-in
// properties, oldest due date first.
func (s *service) AutoApplyRewards(ctx context.Context) (int, error) {
	var configs []domain.PropertyRewardsConfig
	err := s.db.WithContext(ctx).
		Where("rewards_enabled = ? AND auto_apply_rewards = ?", true, true).
		Find(&configs).Error
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, cfg := range configs {
		var invoices []billingdomain.Invoice
		err := s.db.WithContext(ctx).
			Where("lease_id IN (?) AND status IN ?", s.leaseIDsAt(cfg.PropertyID),
				[]billingdomain.InvoiceStatus{
					billingdomain.InvoiceStatusIssued,
					billingdomain.InvoiceStatusPartial,
					billingdomain.InvoiceStatusOverdue,
				}).
			Order("due_date ASC, id ASC").
			Find(&invoices).Error
		if err != nil {
			s.log.Error("reward auto-apply invoice lookup failed",
				zap.String("property_id", cfg.PropertyID.String()), zap.Error(err))
			continue
		}
		for _, invoice := range invoices {
			payment, err := s.ApplyRewardsToInvoice(ctx, invoice.ID, nil)
			if err != nil {
				s.log.Error("reward auto-apply failed",
					zap.String("invoice_id", invoice.ID.String()), zap.Error(err))
				continue
			}
			if payment != nil {
				applied++
			}
		}
	}
	return applied, nil
}

// monthPaidOnTime reports whether every invoice issued in the month is paid
// and its latest completed payment landed on or before the due date.
func (s *service) monthPaidOnTime(ctx context.Context, tenantID, propertyID snowflake.ID, month time.Time) (onTime bool, hasInvoices bool, err error) {
	monthEnd := month.AddDate(0, 1, 0)
	var invoices []billingdomain.Invoice
	err = s.db.WithContext(ctx).
		Where("tenant_id = ? AND lease_id IN (?) AND issue_date >= ? AND issue_date < ? AND status IN ?",
			tenantID, s.leaseIDsAt(propertyID), month, monthEnd,
			[]billingdomain.InvoiceStatus{
				billingdomain.InvoiceStatusPaid,
				billingdomain.InvoiceStatusPartial,
				billingdomain.InvoiceStatusOverdue,
				billingdomain.InvoiceStatusIssued,
			}).
		Find(&invoices).Error
	if err != nil {
		return false, false, err
	}
	if len(invoices) == 0 {
		return false, false, nil
	}

	for _, invoice := range invoices {
		if invoice.Status != billingdomain.InvoiceStatusPaid {
			return false, true, nil
		}
		var last billingdomain.Payment
		err := s.db.WithContext(ctx).
			Where("invoice_id = ? AND status = ?", invoice.ID, billingdomain.PaymentStatusCompleted).
			Order("paid_at DESC").
			First(&last).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return false, true, nil
			}
			return false, true, err
		}
		if last.PaidAt != nil && dateOnly(*last.PaidAt).After(dateOnly(invoice.DueDate)) {
			return false, true, nil
		}
	}
	return true, true, nil
}

func (s *service) leaseIDsAt(propertyID snowflake.ID) *gorm.DB {
	return s.db.Model(&tenancydomain.Lease{}).Select("id").Where("property_id = ?", propertyID)
}

func (s *service) lockOrCreateBalance(tx *gorm.DB, tenantID snowflake.ID) (*domain.RewardBalance, error) {
	balance, err := lockBalance(tx, tenantID)
	if err != nil {
		return nil, err
	}
	if balance != nil {
		return balance, nil
	}
	created := domain.RewardBalance{
		ID:            s.genID.Generate(),
		TenantID:      tenantID,
		Balance:       decimal.Zero,
		TotalEarned:   decimal.Zero,
		TotalRedeemed: decimal.Zero,
	}
	if err := tx.Create(&created).Error; err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *service) lockOrCreateTracker(tx *gorm.DB, tenantID, configID snowflake.ID) (*domain.PrepaymentRewardTracker, error) {
	var tracker domain.PrepaymentRewardTracker
	result := tx.Raw(
		`SELECT * FROM prepayment_reward_trackers WHERE tenant_id = ? AND config_id = ?`+lockClause(tx),
		tenantID, configID,
	).Scan(&tracker)
	if result.Error != nil {
		return nil, result.Error
	}
	if tracker.ID != 0 {
		return &tracker, nil
	}
	created := domain.PrepaymentRewardTracker{
		ID:                   s.genID.Generate(),
		TenantID:             tenantID,
		ConfigID:             configID,
		CumulativePrepayment: decimal.Zero,
	}
	if err := tx.Create(&created).Error; err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *service) getOrCreateEvaluation(ctx context.Context, tenantID, configID snowflake.ID) (*domain.StreakEvaluation, error) {
	var evaluation domain.StreakEvaluation
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND config_id = ?", tenantID, configID).
		First(&evaluation).Error
	if err == nil {
		return &evaluation, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	created := domain.StreakEvaluation{
		ID:             s.genID.Generate(),
		TenantID:       tenantID,
		ConfigID:       configID,
		AwardedTierIDs: datatypes.JSON([]byte("[]")),
	}
	if err := s.db.WithContext(ctx).Create(&created).Error; err != nil {
		return nil, err
	}
	return &created, nil
}

func lockBalance(tx *gorm.DB, tenantID snowflake.ID) (*domain.RewardBalance, error) {
	var balance domain.RewardBalance
	result := tx.Raw(
		`SELECT * FROM reward_balances WHERE tenant_id = ?`+lockClause(tx),
		tenantID,
	).Scan(&balance)
	if result.Error != nil {
		return nil, result.Error
	}
	if balance.ID == 0 {
		return nil, nil
	}
	return &balance, nil
}

func lockInvoice(tx *gorm.DB, invoiceID snowflake.ID) (*billingdomain.Invoice, error) {
	var invoice billingdomain.Invoice
	result := tx.Raw(
		`SELECT * FROM invoices WHERE id = ?`+lockClause(tx),
		invoiceID,
	).Scan(&invoice)
	if result.Error != nil {
		return nil, result.Error
	}
	if invoice.ID == 0 {
		return nil, billingdomain.ErrInvoiceNotFound
	}
	return &invoice, nil
}

func lockClause(tx *gorm.DB) string {
	if tx.Dialector.Name() == "sqlite" {
		return ""
	}
	return " FOR UPDATE"
}

func decodeAwardedTierIDs(raw datatypes.JSON) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func countOf(ids []string, id string) int {
	count := 0
	for _, candidate := range ids {
		if candidate == id {
			count++
		}
	}
	return count
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
