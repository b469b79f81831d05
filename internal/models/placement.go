package models

import "time"

// Placement records which horse occupied which location, under which rate
// type, for which date range. Ranges are half-open: StartDate is the first
// chargeable day, EndDate the first day the horse is no longer there. A nil
// EndDate means the placement is still open.
type Placement struct {
	ID         uint  `gorm:"primaryKey"`
	HorseID    uint  `gorm:"not null;index"`
	Horse      Horse `gorm:"foreignKey:HorseID"`
	OwnerID    uint  `gorm:"not null;index"`
	Owner      Owner `gorm:"foreignKey:OwnerID"`
	LocationID uint  `gorm:"not null;index"`
	Location   Location `gorm:"foreignKey:LocationID"`
	RateTypeID uint     `gorm:"not null"`
	RateType   RateType `gorm:"foreignKey:RateTypeID"`
	StartDate  time.Time `gorm:"not null;index"`
	EndDate    *time.Time
	Notes      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsCurrent reports whether the placement is still open.
func (p *Placement) IsCurrent() bool { return p.EndDate == nil }

// Overlaps reports whether two placements share at least one day. Open-ended
// placements extend indefinitely.
func (p *Placement) Overlaps(other *Placement) bool {
	if p.EndDate != nil && !other.StartDate.Before(*p.EndDate) {
		return false
	}
	if other.EndDate != nil && !p.StartDate.Before(*other.EndDate) {
		return false
	}
	return true
}
