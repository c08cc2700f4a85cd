package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/rentfold/rentfold/internal/billing/domain"
	rewardsdomain "github.com/rentfold/rentfold/internal/rewards/domain"
	tenancydomain "github.com/rentfold/rentfold/internal/tenancy/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	demoPropertyName = "Maple Court"
	demoTenantEmail  = "alex.demo@rentfold.local"
)

// EnsureDemoData seeds one property with an active lease, a rent charge and
// an enabled rewards program. Idempotent: keyed on the demo property name,
// re-runs are no-ops.
func EnsureDemoData(db *gorm.DB, node *snowflake.Node) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing tenancydomain.Property
		err := tx.Where("name = ?", demoPropertyName).First(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		property := tenancydomain.Property{
			ID:      node.Generate(),
			Name:    demoPropertyName,
			Address: "12 Maple Ct, Springfield",
		}
		if err := tx.Create(&property).Error; err != nil {
			return err
		}

		unit := tenancydomain.Unit{
			ID:         node.Generate(),
			PropertyID: property.ID,
			Label:      "1A",
		}
		if err := tx.Create(&unit).Error; err != nil {
			return err
		}

		tenant := tenancydomain.Tenant{
			ID:        node.Generate(),
			FirstName: "Alex",
			LastName:  "Demo",
			Email:     demoTenantEmail,
		}
		if err := tx.Create(&tenant).Error; err != nil {
			return err
		}

		leaseStart := time.Now().UTC().AddDate(0, -6, 0)
		lease := tenancydomain.Lease{
			ID:         node.Generate(),
			PropertyID: property.ID,
			UnitID:     unit.ID,
			TenantID:   tenant.ID,
			Status:     tenancydomain.LeaseStatusActive,
			StartDate:  leaseStart,
		}
		if err := tx.Create(&lease).Error; err != nil {
			return err
		}

		rent := billingdomain.RecurringCharge{
			ID:          node.Generate(),
			LeaseID:     &lease.ID,
			ChargeType:  billingdomain.ChargeTypeRent,
			Description: "Monthly rent",
			Amount:      decimal.NewFromInt(1200),
			Frequency:   billingdomain.FrequencyMonthly,
			StartDate:   leaseStart,
			IsActive:    true,
		}
		if err := tx.Create(&rent).Error; err != nil {
			return err
		}

		billingCfg := billingdomain.PropertyBillingConfig{
			ID:               node.Generate(),
			PropertyID:       property.ID,
			DefaultDueDay:    1,
			LateFeeEnabled:   true,
			LateFeeType:      billingdomain.LateFeeTypeFlat,
			LateFeeAmount:    decimal.NewFromInt(50),
			LateFeeFrequency: billingdomain.LateFeeOneTime,
			LateFeeCap:       decimal.Zero,
			GracePeriodDays:  3,
		}
		if err := tx.Create(&billingCfg).Error; err != nil {
			return err
		}

		rewardsCfg := rewardsdomain.PropertyRewardsConfig{
			ID:                        node.Generate(),
			PropertyID:                property.ID,
			RewardsEnabled:            true,
			StreakRewardEnabled:       true,
			PrepaymentRewardEnabled:   true,
			PrepaymentThresholdAmount: decimal.NewFromInt(1000),
			PrepaymentRewardAmount:    decimal.NewFromInt(25),
			AutoApplyRewards:          false,
		}
		if err := tx.Create(&rewardsCfg).Error; err != nil {
			return err
		}

		tiers := []rewardsdomain.StreakRewardTier{
			{
				ID:             node.Generate(),
				ConfigID:       rewardsCfg.ID,
				MonthsRequired: 3,
				RewardAmount:   decimal.NewFromInt(30),
				IsRecurring:    true,
			},
			{
				ID:             node.Generate(),
				ConfigID:       rewardsCfg.ID,
				MonthsRequired: 12,
				RewardAmount:   decimal.NewFromInt(150),
				IsRecurring:    false,
			},
		}
		for i := range tiers {
			if err := tx.Create(&tiers[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
