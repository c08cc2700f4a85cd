package rewards

import (
	"context"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/rentfold/rentfold/internal/billing/domain"
	"github.com/rentfold/rentfold/internal/rewards/domain"
	"github.com/rentfold/rentfold/internal/rewards/service"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
)

// prepaymentObserver routes billing overpayments into the prepayment
// reward walk.
type prepaymentObserver struct {
	rewards domain.Service
}

func (o prepaymentObserver) PrepaymentRecorded(ctx context.Context, tenantID, propertyID snowflake.ID, amount decimal.Decimal) error {
	_, err := o.rewards.EvaluatePrepaymentRewards(ctx, tenantID, propertyID, amount)
	return err
}

func NewPrepaymentObserver(rewards domain.Service) billingdomain.PrepaymentObserver {
	return prepaymentObserver{rewards: rewards}
}

var Module = fx.Module("rewards.service",
	fx.Provide(service.NewService),
	fx.Provide(NewPrepaymentObserver),
)
