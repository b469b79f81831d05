package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// VaccinationType is a vaccination schedule: how often it recurs and how far
// ahead of the due date reminders go out.
type VaccinationType struct {
	ID                 uint   `gorm:"primaryKey"`
	Name               string `gorm:"not null"`
	IntervalMonths     int    `gorm:"not null;default:12"`
	ReminderDaysBefore int    `gorm:"not null;default:30"`
	Description        string
	IsActive           bool `gorm:"not null;default:true"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Vaccination is a single vaccination given to a horse. ReminderSentAt guards
// the daily reminder job: once set on a given day, that day's run skips the
// record, and it is only written after the reminder was delivered.
type Vaccination struct {
	ID                uint            `gorm:"primaryKey"`
	HorseID           uint            `gorm:"not null;index"`
	Horse             Horse           `gorm:"foreignKey:HorseID"`
	VaccinationTypeID uint            `gorm:"not null"`
	VaccinationType   VaccinationType `gorm:"foreignKey:VaccinationTypeID"`
	DateGiven         time.Time       `gorm:"not null"`
	NextDueDate       time.Time       `gorm:"not null;index"`
	VetName           string
	BatchNumber       string
	Notes             string
	ReminderSentAt    *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// DueSoon reports whether the vaccination falls inside its reminder window.
func (v *Vaccination) DueSoon(today time.Time) bool {
	window := v.NextDueDate.AddDate(0, 0, -v.VaccinationType.ReminderDaysBefore)
	return !today.Before(window) && !today.After(v.NextDueDate)
}

// AddMonths adds calendar months to a date, clamping to the last day of the
// target month (31 Jan + 1 month = 28/29 Feb).
func AddMonths(d time.Time, months int) time.Time {
	year, month := d.Year(), int(d.Month())-1+months
	year += month / 12
	month = month % 12
	if month < 0 {
		month += 12
		year--
	}
	first := time.Date(year, time.Month(month+1), 1, 0, 0, 0, 0, d.Location())
	lastDay := first.AddDate(0, 1, -1).Day()
	day := d.Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(year, time.Month(month+1), day, 0, 0, 0, 0, d.Location())
}

// Farrier work types.
const (
	FarrierTrim       = "trim"
	FarrierFrontShoes = "front_shoes"
	FarrierFullSet    = "full_set"
	FarrierRemedial   = "remedial"
	FarrierRemove     = "remove"
)

// FarrierVisit is a shoeing/trimming record. Visits typically recur every
// six weeks; NextDueDate drives the farrier reminder job.
type FarrierVisit struct {
	ID                uint      `gorm:"primaryKey"`
	HorseID           uint      `gorm:"not null;index"`
	Horse             Horse     `gorm:"foreignKey:HorseID"`
	Date              time.Time `gorm:"not null;index"`
	ServiceProviderID *uint
	ServiceProvider   *ServiceProvider `gorm:"foreignKey:ServiceProviderID"`
	WorkDone          string           `gorm:"size:20;not null;default:'trim'"`
	NextDueDate       *time.Time       `gorm:"index"`
	Cost              decimal.Decimal  `gorm:"type:decimal(8,2);not null;default:0"`
	Notes             string
	ExtraChargeID     *uint
	ReminderSentAt    *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
