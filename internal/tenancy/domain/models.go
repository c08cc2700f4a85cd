package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// The portal features that manage these records live outside this service;
// the ledger only needs the owning rows and their foreign keys.

type Property struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Name      string       `gorm:"size:255;not null"`
	Address   string       `gorm:"size:512"`
	CreatedAt time.Time    `gorm:"autoCreateTime"`
	UpdatedAt time.Time    `gorm:"autoUpdateTime"`
}

func (Property) TableName() string { return "properties" }

type Unit struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	PropertyID snowflake.ID `gorm:"index;not null"`
	Label      string       `gorm:"size:64;not null"`
	CreatedAt  time.Time    `gorm:"autoCreateTime"`
	UpdatedAt  time.Time    `gorm:"autoUpdateTime"`
}

func (Unit) TableName() string { return "units" }

type Tenant struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	FirstName string       `gorm:"size:128"`
	LastName  string       `gorm:"size:128"`
	Email     string       `gorm:"size:255;index"`
	CreatedAt time.Time    `gorm:"autoCreateTime"`
	UpdatedAt time.Time    `gorm:"autoUpdateTime"`
}

func (Tenant) TableName() string { return "tenants" }

type LeaseStatus string

const (
	LeaseStatusActive LeaseStatus = "active"
	LeaseStatusEnded  LeaseStatus = "ended"
)

type Lease struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	PropertyID snowflake.ID `gorm:"index;not null"`
	UnitID     snowflake.ID `gorm:"index;not null"`
	TenantID   snowflake.ID `gorm:"index;not null"`
	Status     LeaseStatus  `gorm:"size:16;not null;default:active"`
	StartDate  time.Time    `gorm:"not null"`
	EndDate    *time.Time
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

func (Lease) TableName() string { return "leases" }
