package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Service provider types.
const (
	ProviderVet     = "vet"
	ProviderFarrier = "farrier"
	ProviderDentist = "dentist"
	ProviderPhysio  = "physio"
	ProviderSaddler = "saddler"
	ProviderOther   = "other"
)

// ServiceProvider is an external supplier (vet, farrier, ...) whose work ends
// up as extra charges on invoices.
type ServiceProvider struct {
	ID           uint   `gorm:"primaryKey"`
	Name         string `gorm:"not null"`
	ProviderType string `gorm:"size:20;not null;default:'other'"`
	Phone        string
	Email        string
	Address      string
	Notes        string
	IsActive     bool `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Extra charge types.
const (
	ChargeVet         = "vet"
	ChargeFarrier     = "farrier"
	ChargeVaccination = "vaccination"
	ChargeFeed        = "feed"
	ChargeMedication  = "medication"
	ChargeTransport   = "transport"
	ChargeEquipment   = "equipment"
	ChargeDentist     = "dentist"
	ChargePhysio      = "physio"
	ChargeOther       = "other"
)

// ExtraCharge is an ad-hoc billable item beyond standard livery, tied to a
// horse and the owner who pays for it. Once picked up by an invoice it is
// flagged invoiced and never billed again.
type ExtraCharge struct {
	ID                uint             `gorm:"primaryKey"`
	HorseID           uint             `gorm:"not null;index"`
	Horse             Horse            `gorm:"foreignKey:HorseID"`
	OwnerID           uint             `gorm:"not null;index"`
	Owner             Owner            `gorm:"foreignKey:OwnerID"`
	ServiceProviderID *uint
	ServiceProvider   *ServiceProvider `gorm:"foreignKey:ServiceProviderID"`
	ChargeType        string           `gorm:"size:20;not null;default:'other'"`
	Date              time.Time        `gorm:"not null;index"`
	Description       string           `gorm:"size:500;not null"`
	Amount            decimal.Decimal  `gorm:"type:decimal(10,2);not null"`
	Invoiced          bool             `gorm:"not null;default:false;index"`
	InvoiceID         *uint
	SplitByOwnership  bool `gorm:"not null;default:true"` // split among fractional owners; otherwise bill 100% to OwnerID
	Notes             string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
