package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/rentfold/rentfold/internal/billing/domain"
	"github.com/shopspring/decimal"
)

type GrantInput struct {
	TenantID        snowflake.ID
	Amount          decimal.Decimal
	TransactionType TransactionType
	Description     string
	InvoiceID       *snowflake.ID
	PaymentID       *snowflake.ID
	StreakTierID    *snowflake.ID
}

// Service is the reward engine: wallet mutations, redemption against
// invoices, and the two evaluation walks.
type Service interface {
	GrantReward(ctx context.Context, in GrantInput) (*RewardTransaction, error)
	// ApplyRewardsToInvoice redeems up to min(balance, balance due, amount).
	// A nil amount means the full balance. Returns nil when nothing applied.
	ApplyRewardsToInvoice(ctx context.Context, invoiceID snowflake.ID, amount *decimal.Decimal) (*billingdomain.Payment, error)
	ReverseRewardApplication(ctx context.Context, paymentID snowflake.ID) (*RewardTransaction, error)
	AdminAdjustBalance(ctx context.Context, tenantID snowflake.ID, amount decimal.Decimal, description string) (*RewardTransaction, error)

	EvaluateStreakRewards(ctx context.Context, tenantID, propertyID snowflake.ID) ([]RewardTransaction, error)
	EvaluatePrepaymentRewards(ctx context.Context, tenantID, propertyID snowflake.ID, prepaymentAmount decimal.Decimal) ([]RewardTransaction, error)

	// EvaluateAllStreaks runs the streak walk for every active lease under a
	// streak-enabled config. Batch entry point for the scheduler.
	EvaluateAllStreaks(ctx context.Context) (int, error)
	// AutoApplyRewards drains reward balances into open invoices for
	// properties that opted in.
	AutoApplyRewards(ctx context.Context) (int, error)
}
