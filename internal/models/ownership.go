package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// HorseOwnership tracks a fractional ownership share of a horse over a date
// range. The range is half-open like Placement; a nil EndDate means the share
// is still current. Shares active on any given date must not exceed 100%.
type HorseOwnership struct {
	ID         uint            `gorm:"primaryKey"`
	HorseID    uint            `gorm:"not null;index"`
	Horse      Horse           `gorm:"foreignKey:HorseID"`
	OwnerID    uint            `gorm:"not null;index"`
	Owner      Owner           `gorm:"foreignKey:OwnerID"`
	Percentage decimal.Decimal `gorm:"type:decimal(5,2);not null"`
	StartDate  time.Time       `gorm:"not null"`
	EndDate    *time.Time
	Notes      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ActiveAt reports whether the share applies on the given date.
func (o *HorseOwnership) ActiveAt(date time.Time) bool {
	if date.Before(o.StartDate) {
		return false
	}
	return o.EndDate == nil || date.Before(*o.EndDate)
}
