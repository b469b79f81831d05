package models

import "time"

// Owner is a horse owner and the party invoices are issued to.
type Owner struct {
	ID          uint   `gorm:"primaryKey"`
	Name        string `gorm:"not null;index"`
	Email       string
	Phone       string
	Address     string
	AccountCode string `gorm:"size:20"` // code for external accounting systems (e.g. Xero)
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
