package models

import "time"

// User is a staff account for the web interface.
type User struct {
	ID        uint   `gorm:"primaryKey"`
	Email     string `gorm:"not null;uniqueIndex"`
	Password  string `gorm:"not null"` // bcrypt hash
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
