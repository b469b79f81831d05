package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Rate periods. Daily rates bill chargeable days × rate; monthly rates bill a
// flat amount per invoice when the placement overlaps the period at all.
const (
	RatePeriodDaily   = "daily"
	RatePeriodMonthly = "monthly"
)

// RateType is a named livery billing scheme.
type RateType struct {
	ID          uint            `gorm:"primaryKey"`
	Name        string          `gorm:"not null"`
	Period      string          `gorm:"size:10;not null;default:'daily'"`
	DailyRate   decimal.Decimal `gorm:"type:decimal(8,2);not null;default:0"`
	MonthlyRate decimal.Decimal `gorm:"type:decimal(8,2);not null;default:0"`
	Description string
	IsActive    bool `gorm:"not null;default:true"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
