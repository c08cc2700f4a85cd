package scheduler

import (
	"context"

	billingdomain "github.com/rentfold/rentfold/internal/billing/domain"
	"go.uber.org/zap"
)

func (s *Scheduler) GenerateInvoicesJob(ctx context.Context) (int, error) {
	return s.invoiceSvc.GenerateMonthlyInvoices(ctx, s.clock.Now())
}

func (s *Scheduler) LateFeeSweepJob(ctx context.Context) (int, error) {
	return s.lateFeeSvc.SweepOverdue(ctx, s.clock.Now())
}

func (s *Scheduler) AutoApplyCreditsJob(ctx context.Context) (int, error) {
	return s.paymentSvc.AutoApplyPrepaymentCredits(ctx)
}

func (s *Scheduler) StreakEvaluationJob(ctx context.Context) (int, error) {
	return s.rewardsSvc.EvaluateAllStreaks(ctx)
}

func (s *Scheduler) RewardAutoApplyJob(ctx context.Context) (int, error) {
	return s.rewardsSvc.AutoApplyRewards(ctx)
}

// ReconcilePendingPaymentsJob re-verifies pending gateway payments. Bitcoin
// rows are polled every run because the chain never calls back; other
// providers are only re-checked once the webhook has had time to arrive.
func (s *Scheduler) ReconcilePendingPaymentsJob(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.cfg.PendingRecheckAfter)

	var pending []billingdomain.Payment
	err := s.db.WithContext(ctx).
		Where("status = ?", billingdomain.PaymentStatusPending).
		Where("gateway_provider = ? OR created_at < ?", "bitcoin", cutoff).
		Order("created_at ASC").
		Find(&pending).Error
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, payment := range pending {
		result, err := s.paymentSvc.ConfirmGatewayPayment(ctx, payment.ID)
		if err != nil {
			s.log.Warn("pending payment reconcile failed",
				zap.String("payment_id", payment.ID.String()),
				zap.String("provider", payment.GatewayProvider),
				zap.Error(err))
			continue
		}
		if result.Payment != nil && result.Payment.Status != billingdomain.PaymentStatusPending {
			resolved++
		}
	}
	return resolved, nil
}
