package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// All monetary columns are numeric(12,2); decimal.Decimal keeps arithmetic
// exact end to end. Floats are never used in the ledger.

type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusIssued    InvoiceStatus = "issued"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusPartial   InvoiceStatus = "partial"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// BillingCycle is the calendar window monthly generation is keyed on. One
// row per (property, period_start); generation get-or-creates it.
type BillingCycle struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	PropertyID  snowflake.ID `gorm:"not null;uniqueIndex:ux_billing_cycles_property_period"`
	PeriodStart time.Time    `gorm:"not null;uniqueIndex:ux_billing_cycles_property_period"`
	PeriodEnd   time.Time    `gorm:"not null"`
	CreatedAt   time.Time    `gorm:"autoCreateTime"`
}

func (BillingCycle) TableName() string { return "billing_cycles" }

type Invoice struct {
	ID             snowflake.ID  `gorm:"primaryKey"`
	InvoiceNumber  string        `gorm:"size:32;not null;uniqueIndex"`
	LeaseID        snowflake.ID  `gorm:"index;not null"`
	TenantID       snowflake.ID  `gorm:"index;not null"`
	BillingCycleID *snowflake.ID `gorm:"index"`
	Status         InvoiceStatus `gorm:"size:16;not null;default:draft"`
	IssueDate      time.Time     `gorm:"not null"`
	DueDate        time.Time     `gorm:"not null;index"`
	TotalAmount    decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	AmountPaid     decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	LateFeesTotal  decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Notes          string          `gorm:"size:1024"`
	CreatedAt      time.Time       `gorm:"autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime"`

	LineItems []InvoiceLineItem `gorm:"foreignKey:InvoiceID"`
}

func (Invoice) TableName() string { return "invoices" }

// BalanceDue is total minus paid, floored at zero.
func (i Invoice) BalanceDue() decimal.Decimal {
	due := i.TotalAmount.Sub(i.AmountPaid)
	if due.IsNegative() {
		return decimal.Zero
	}
	return due
}

type ChargeType string

const (
	ChargeTypeRent    ChargeType = "rent"
	ChargeTypeUtility ChargeType = "utility"
	ChargeTypeFee     ChargeType = "fee"
	ChargeTypeParking ChargeType = "parking"
	ChargeTypePet     ChargeType = "pet"
	ChargeTypeOther   ChargeType = "other"
)

type InvoiceLineItem struct {
	ID          snowflake.ID    `gorm:"primaryKey"`
	InvoiceID   snowflake.ID    `gorm:"index;not null"`
	ChargeType  ChargeType      `gorm:"size:16;not null"`
	Description string          `gorm:"size:512;not null"`
	Quantity    decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	UnitPrice   decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Amount      decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	// BillingMode records utility provenance (fixed/variable) when the line
	// came from a UtilityConfig.
	BillingMode string    `gorm:"size:16"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

func (InvoiceLineItem) TableName() string { return "invoice_line_items" }

type PaymentMethod string

const (
	PaymentMethodOnline       PaymentMethod = "online"
	PaymentMethodCheck        PaymentMethod = "check"
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodMoneyOrder   PaymentMethod = "money_order"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCredit       PaymentMethod = "credit"
	PaymentMethodReward       PaymentMethod = "reward"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

type Payment struct {
	ID        snowflake.ID  `gorm:"primaryKey"`
	TenantID  snowflake.ID  `gorm:"index;not null"`
	InvoiceID snowflake.ID  `gorm:"index;not null"`
	Amount    decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Method    PaymentMethod   `gorm:"size:16;not null"`
	Status    PaymentStatus   `gorm:"size:16;not null;default:pending"`

	GatewayProvider      string `gorm:"size:32"`
	GatewayTransactionID string `gorm:"size:255;index"`

	// CreditApplied and RewardApplied record how much of this payment's
	// value came from ledger credits rather than new money.
	CreditApplied decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	RewardApplied decimal.Decimal `gorm:"type:numeric(12,2);not null"`

	PaidAt    *time.Time
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Payment) TableName() string { return "payments" }

type PrepaymentCredit struct {
	ID              snowflake.ID    `gorm:"primaryKey"`
	TenantID        snowflake.ID    `gorm:"index;not null"`
	Amount          decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	RemainingAmount decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Reason          string          `gorm:"size:512"`
	SourcePaymentID *snowflake.ID   `gorm:"index"`
	CreatedAt       time.Time       `gorm:"autoCreateTime;index"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime"`
}

func (PrepaymentCredit) TableName() string { return "prepayment_credits" }

type ChargeFrequency string

const (
	FrequencyMonthly   ChargeFrequency = "monthly"
	FrequencyQuarterly ChargeFrequency = "quarterly"
	FrequencyAnnual    ChargeFrequency = "annual"
	FrequencyOneTime   ChargeFrequency = "one_time"
)

// RecurringCharge is attached to a lease or a property, never both.
type RecurringCharge struct {
	ID         snowflake.ID    `gorm:"primaryKey"`
	LeaseID    *snowflake.ID   `gorm:"index"`
	PropertyID *snowflake.ID   `gorm:"index"`
	ChargeType ChargeType      `gorm:"size:16;not null"`
	Description string         `gorm:"size:512"`
	Amount     decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Frequency  ChargeFrequency `gorm:"size:16;not null;default:monthly"`
	StartDate  time.Time       `gorm:"not null"`
	EndDate    *time.Time
	IsActive   bool      `gorm:"not null;default:true"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

func (RecurringCharge) TableName() string { return "recurring_charges" }

type UtilityBillingMode string

const (
	UtilityModeFixed      UtilityBillingMode = "fixed"
	UtilityModeVariable   UtilityBillingMode = "variable"
	UtilityModeIncluded   UtilityBillingMode = "included"
	UtilityModeTenantPays UtilityBillingMode = "tenant_pays"
)

type UtilityConfig struct {
	ID          snowflake.ID       `gorm:"primaryKey"`
	UnitID      snowflake.ID       `gorm:"not null;uniqueIndex:ux_utility_configs_unit_type"`
	UtilityType string             `gorm:"size:32;not null;uniqueIndex:ux_utility_configs_unit_type"`
	BillingMode UtilityBillingMode `gorm:"size:16;not null;default:included"`
	Amount      decimal.Decimal    `gorm:"type:numeric(12,2);not null"`
	CreatedAt   time.Time          `gorm:"autoCreateTime"`
	UpdatedAt   time.Time          `gorm:"autoUpdateTime"`
}

func (UtilityConfig) TableName() string { return "utility_configs" }

type LateFeeType string

const (
	LateFeeTypeFlat       LateFeeType = "flat"
	LateFeeTypePercentage LateFeeType = "percentage"
	LateFeeTypeInterest   LateFeeType = "interest"
)

type LateFeeFrequency string

const (
	LateFeeOneTime          LateFeeFrequency = "one_time"
	LateFeeRecurringMonthly LateFeeFrequency = "recurring_monthly"
)

type PropertyBillingConfig struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	PropertyID snowflake.ID `gorm:"not null;uniqueIndex"`

	DefaultDueDay int `gorm:"not null;default:1"`

	LateFeeEnabled   bool             `gorm:"not null;default:false"`
	LateFeeType      LateFeeType      `gorm:"size:16;not null;default:flat"`
	LateFeeAmount    decimal.Decimal  `gorm:"type:numeric(12,2);not null"`
	LateFeeFrequency LateFeeFrequency `gorm:"size:24;not null;default:one_time"`
	// LateFeeCap of zero means uncapped.
	LateFeeCap      decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	GracePeriodDays int             `gorm:"not null;default:0"`

	InterestEnabled    bool            `gorm:"not null;default:false"`
	AnnualInterestRate decimal.Decimal `gorm:"type:numeric(6,3);not null"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (PropertyBillingConfig) TableName() string { return "property_billing_configs" }

// LateFeeLog enforces "at most once per eligibility window": one row per
// fee/interest line item created by the accrual engine.
type LateFeeLog struct {
	ID          snowflake.ID    `gorm:"primaryKey"`
	InvoiceID   snowflake.ID    `gorm:"index;not null"`
	LineItemID  snowflake.ID    `gorm:"not null;uniqueIndex"`
	FeeType     LateFeeType     `gorm:"size:16;not null"`
	Amount      decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	AppliedDate time.Time       `gorm:"not null;index"`
	CreatedAt   time.Time       `gorm:"autoCreateTime"`
}

func (LateFeeLog) TableName() string { return "late_fee_logs" }
