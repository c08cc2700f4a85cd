package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PropertyRewardsConfig is the per-property rewards program toggle and its
// prepayment settings. Streak tiers hang off it.
type PropertyRewardsConfig struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	PropertyID snowflake.ID `gorm:"uniqueIndex;not null"`

	RewardsEnabled          bool `gorm:"not null;default:false"`
	StreakRewardEnabled     bool `gorm:"not null;default:false"`
	PrepaymentRewardEnabled bool `gorm:"not null;default:false"`

	PrepaymentThresholdAmount decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	PrepaymentRewardAmount    decimal.Decimal `gorm:"type:numeric(12,2);not null"`

	// AutoApplyRewards opts the property into the batch job that drains
	// reward balances into open invoices.
	AutoApplyRewards bool `gorm:"not null;default:false"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	StreakTiers []StreakRewardTier `gorm:"foreignKey:ConfigID"`
}

func (PropertyRewardsConfig) TableName() string { return "property_rewards_configs" }

// StreakRewardTier is one streak milestone. Non-recurring tiers grant once
// ever; recurring tiers re-grant every MonthsRequired months.
type StreakRewardTier struct {
	ID             snowflake.ID    `gorm:"primaryKey"`
	ConfigID       snowflake.ID    `gorm:"not null;uniqueIndex:ux_streak_tiers_config_months"`
	MonthsRequired int             `gorm:"not null;uniqueIndex:ux_streak_tiers_config_months"`
	RewardAmount   decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	IsRecurring    bool            `gorm:"not null;default:false"`
	CreatedAt      time.Time       `gorm:"autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime"`
}

func (StreakRewardTier) TableName() string { return "streak_reward_tiers" }

// RewardBalance is the per-tenant reward wallet. Promotional value, not real
// money. Invariant: balance = total_earned - total_redeemed, with positive
// admin adjustments counting toward total_earned.
type RewardBalance struct {
	ID            snowflake.ID    `gorm:"primaryKey"`
	TenantID      snowflake.ID    `gorm:"uniqueIndex;not null"`
	Balance       decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	TotalEarned   decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	TotalRedeemed decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	CreatedAt     time.Time       `gorm:"autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime"`
}

func (RewardBalance) TableName() string { return "reward_balances" }

type TransactionType string

const (
	TransactionStreakEarned     TransactionType = "streak_earned"
	TransactionPrepaymentEarned TransactionType = "prepayment_earned"
	TransactionManualGrant      TransactionType = "manual_grant"
	TransactionRedeemed         TransactionType = "redeemed"
	TransactionReversed         TransactionType = "reversed"
	TransactionAdminAdjustment  TransactionType = "admin_adjustment"
	TransactionExpired          TransactionType = "expired"
)

// RewardTransaction is the append-only audit row for every balance mutation.
// Amount is signed; BalanceAfter snapshots the wallet at commit.
type RewardTransaction struct {
	ID              snowflake.ID    `gorm:"primaryKey"`
	TenantID        snowflake.ID    `gorm:"index;not null"`
	TransactionType TransactionType `gorm:"size:24;not null;index"`
	Amount          decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	BalanceAfter    decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Description     string          `gorm:"size:512"`
	InvoiceID       *snowflake.ID   `gorm:"index"`
	PaymentID       *snowflake.ID   `gorm:"index"`
	StreakTierID    *snowflake.ID
	CreatedAt       time.Time `gorm:"autoCreateTime;index"`
}

func (RewardTransaction) TableName() string { return "reward_transactions" }

// StreakEvaluation tracks the streak walk per (tenant, config).
// LastEvaluatedMonth is the watermark: months at or before it are never
// re-walked, which is what makes re-running the evaluation job idempotent.
type StreakEvaluation struct {
	ID                  snowflake.ID `gorm:"primaryKey"`
	TenantID            snowflake.ID `gorm:"not null;uniqueIndex:ux_streak_evaluations_tenant_config"`
	ConfigID            snowflake.ID `gorm:"not null;uniqueIndex:ux_streak_evaluations_tenant_config"`
	CurrentStreakMonths int          `gorm:"not null;default:0"`
	LastEvaluatedMonth  *time.Time
	StreakBrokenAt      *time.Time
	// AwardedTierIDs is a JSON list of tier id strings; non-recurring tiers
	// check membership, recurring tiers count occurrences.
	AwardedTierIDs datatypes.JSON `gorm:"not null"`
	CreatedAt      time.Time      `gorm:"autoCreateTime"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime"`
}

func (StreakEvaluation) TableName() string { return "streak_evaluations" }

// PrepaymentRewardTracker accumulates prepayments per (tenant, config).
// Grants due = floor(cumulative / threshold) - rewards_granted_count, which
// is exactly-once per threshold crossing no matter how the amounts split.
type PrepaymentRewardTracker struct {
	ID                   snowflake.ID    `gorm:"primaryKey"`
	TenantID             snowflake.ID    `gorm:"not null;uniqueIndex:ux_prepayment_trackers_tenant_config"`
	ConfigID             snowflake.ID    `gorm:"not null;uniqueIndex:ux_prepayment_trackers_tenant_config"`
	CumulativePrepayment decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	RewardsGrantedCount  int             `gorm:"not null;default:0"`
	CreatedAt            time.Time       `gorm:"autoCreateTime"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime"`
}

func (PrepaymentRewardTracker) TableName() string { return "prepayment_reward_trackers" }
