package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// BusinessSettings is a singleton row (pk 1) holding letterhead details,
// payment terms and the invoice number sequence.
type BusinessSettings struct {
	ID                  uint   `gorm:"primaryKey"`
	BusinessName        string `gorm:"not null;default:'Livery Yard'"`
	Address             string
	Phone               string
	Email               string
	Website             string
	VATRegistration     string `gorm:"size:50;default:'N/A'"`
	BankDetails         string
	CardPaymentURL      string
	DefaultPaymentTerms int    `gorm:"not null;default:30"` // days
	InvoicePrefix       string `gorm:"size:10;not null;default:'INV'"`
	NextInvoiceNumber   int    `gorm:"not null;default:1"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// GetSettings loads the singleton, creating it with defaults on first use.
func GetSettings(db *gorm.DB) (*BusinessSettings, error) {
	var s BusinessSettings
	err := db.Where(BusinessSettings{ID: 1}).
		Attrs(BusinessSettings{BusinessName: "Livery Yard", VATRegistration: "N/A", DefaultPaymentTerms: 30, InvoicePrefix: "INV", NextInvoiceNumber: 1}).
		FirstOrCreate(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// NextNumber reserves and returns the next invoice number, e.g. INV00042.
// Must run inside the same transaction as the invoice insert so a failed
// generation does not burn a number.
func (s *BusinessSettings) NextNumber(tx *gorm.DB) (string, error) {
	n := s.NextInvoiceNumber
	s.NextInvoiceNumber = n + 1
	if err := tx.Model(s).Update("next_invoice_number", s.NextInvoiceNumber).Error; err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%05d", s.InvoicePrefix, n), nil
}
