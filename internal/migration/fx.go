package migration

import (
	billingdomain "github.com/rentfold/rentfold/internal/billing/domain"
	gatewaydomain "github.com/rentfold/rentfold/internal/gateway/domain"
	rewardsdomain "github.com/rentfold/rentfold/internal/rewards/domain"
	tenancydomain "github.com/rentfold/rentfold/internal/tenancy/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// AutoMigrate creates the schema from the models. Used for SQLite; Postgres
// runs the versioned SQL in migrations/ instead.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&tenancydomain.Property{},
		&tenancydomain.Unit{},
		&tenancydomain.Tenant{},
		&tenancydomain.Lease{},

		&billingdomain.BillingCycle{},
		&billingdomain.Invoice{},
		&billingdomain.InvoiceLineItem{},
		&billingdomain.Payment{},
		&billingdomain.PrepaymentCredit{},
		&billingdomain.RecurringCharge{},
		&billingdomain.UtilityConfig{},
		&billingdomain.PropertyBillingConfig{},
		&billingdomain.LateFeeLog{},

		&gatewaydomain.GatewayConfig{},
		&gatewaydomain.BitcoinWalletConfig{},
		&gatewaydomain.BitcoinPayment{},
		&gatewaydomain.BitcoinPriceSnapshot{},
		&gatewaydomain.WebhookEventLog{},

		&rewardsdomain.PropertyRewardsConfig{},
		&rewardsdomain.StreakRewardTier{},
		&rewardsdomain.RewardBalance{},
		&rewardsdomain.RewardTransaction{},
		&rewardsdomain.StreakEvaluation{},
		&rewardsdomain.PrepaymentRewardTracker{},
	)
}

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB) error {
		if conn.Dialector.Name() != "postgres" {
			return AutoMigrate(conn)
		}
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
