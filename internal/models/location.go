package models

import "time"

// Location is a physical site or field where horses are kept.
type Location struct {
	ID          uint   `gorm:"primaryKey"`
	Name        string `gorm:"not null"`
	Site        string `gorm:"index"` // main site name grouping several fields
	Description string
	Capacity    *int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Availability returns remaining spaces given the current occupant count,
// or nil when no capacity is configured.
func (l *Location) Availability(occupied int) *int {
	if l.Capacity == nil {
		return nil
	}
	n := *l.Capacity - occupied
	return &n
}
