package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Invoice statuses. Transitions are one-directional:
// draft -> sent -> paid, or draft -> sent -> overdue -> paid.
const (
	InvoiceDraft   = "draft"
	InvoiceSent    = "sent"
	InvoicePaid    = "paid"
	InvoiceOverdue = "overdue"
)

// ErrInvalidTransition is returned when an invoice status change would skip
// or reverse a lifecycle step.
type ErrInvalidTransition struct {
	From, To string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invoice cannot move from %s to %s", e.From, e.To)
}

// Invoice is a bill issued to an owner for a half-open period
// [PeriodStart, PeriodEnd). Line items are frozen once the invoice leaves
// draft; only status transitions mutate it after that. The unique index on
// (owner, period) serializes concurrent generation of the same invoice.
type Invoice struct {
	ID               uint   `gorm:"primaryKey"`
	OwnerID          uint   `gorm:"not null;uniqueIndex:idx_invoices_owner_period,priority:1"`
	Owner            Owner  `gorm:"foreignKey:OwnerID"`
	InvoiceNumber    string `gorm:"size:50;not null;uniqueIndex"`
	PeriodStart      time.Time `gorm:"not null;index;uniqueIndex:idx_invoices_owner_period,priority:2"`
	PeriodEnd        time.Time `gorm:"not null;uniqueIndex:idx_invoices_owner_period,priority:3"`
	Subtotal         decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"`
	Total            decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"`
	Status           string          `gorm:"size:20;not null;default:'draft';index"`
	PaymentTermsDays int             `gorm:"not null;default:30"`
	DueDate          time.Time       `gorm:"not null"`
	Notes            string
	LineItems        []InvoiceLineItem `gorm:"foreignKey:InvoiceID"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
	SentAt           *time.Time
	PaidAt           *time.Time
}

// MarkSent moves a draft invoice to sent.
func (inv *Invoice) MarkSent(now time.Time) error {
	if inv.Status != InvoiceDraft {
		return &ErrInvalidTransition{From: inv.Status, To: InvoiceSent}
	}
	inv.Status = InvoiceSent
	inv.SentAt = &now
	return nil
}

// MarkPaid moves a sent or overdue invoice to paid.
func (inv *Invoice) MarkPaid(now time.Time) error {
	if inv.Status != InvoiceSent && inv.Status != InvoiceOverdue {
		return &ErrInvalidTransition{From: inv.Status, To: InvoicePaid}
	}
	inv.Status = InvoicePaid
	inv.PaidAt = &now
	return nil
}

// MarkOverdue moves a sent invoice past its due date to overdue.
func (inv *Invoice) MarkOverdue(asOf time.Time) error {
	if inv.Status != InvoiceSent {
		return &ErrInvalidTransition{From: inv.Status, To: InvoiceOverdue}
	}
	if !asOf.After(inv.DueDate) {
		return fmt.Errorf("invoice %s is not past its due date", inv.InvoiceNumber)
	}
	inv.Status = InvoiceOverdue
	return nil
}

// IsOverdue reports whether an unpaid invoice is past its due date.
func (inv *Invoice) IsOverdue(asOf time.Time) bool {
	if inv.Status == InvoicePaid || inv.Status == InvoiceDraft {
		return false
	}
	return asOf.After(inv.DueDate)
}

// Line item types.
const (
	LineLivery      = "livery"
	LineVet         = "vet"
	LineFarrier     = "farrier"
	LineVaccination = "vaccination"
	LineFeed        = "feed"
	LineOther       = "other"
)

// InvoiceLineItem is one priced entry on an invoice, derived from a placement
// segment or an extra charge. Not independently editable after generation.
type InvoiceLineItem struct {
	ID          uint  `gorm:"primaryKey"`
	InvoiceID   uint  `gorm:"not null;index"`
	HorseID     *uint `gorm:"index"`
	Horse       *Horse `gorm:"foreignKey:HorseID"`
	PlacementID *uint
	ChargeID    *uint
	LineType    string          `gorm:"size:20;not null;default:'livery'"`
	Description string          `gorm:"size:500;not null"`
	Quantity    decimal.Decimal `gorm:"type:decimal(10,2);not null;default:1"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	LineTotal   decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	// Ownership share applied at generation time, for the historical record.
	OwnershipPercentage *decimal.Decimal `gorm:"type:decimal(5,2)"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ChargeTypeToLineType maps an extra charge type to the line item type it
// appears as on an invoice.
func ChargeTypeToLineType(chargeType string) string {
	switch chargeType {
	case ChargeVet:
		return LineVet
	case ChargeFarrier:
		return LineFarrier
	case ChargeVaccination:
		return LineVaccination
	case ChargeFeed:
		return LineFeed
	default:
		return LineOther
	}
}
