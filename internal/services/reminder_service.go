package services

import (
	"time"

	"gorm.io/gorm"

	"github.com/marchfield/liveryard/internal/models"
)

// ReminderService provides the data queries behind the daily notification
// jobs. Composition and delivery live with the caller; this layer only finds
// what is due and maintains the same-day idempotence guards.
type ReminderService struct {
	DB *gorm.DB
}

func NewReminderService(db *gorm.DB) *ReminderService { return &ReminderService{DB: db} }

// sentToday reports whether the guard timestamp falls on the given day.
func sentToday(sentAt *time.Time, today time.Time) bool {
	if sentAt == nil {
		return false
	}
	y1, m1, d1 := sentAt.UTC().Date()
	y2, m2, d2 := today.UTC().Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// VaccinationsDue returns vaccinations of active horses that are inside their
// reminder window and have not been reminded today.
func (s *ReminderService) VaccinationsDue(today time.Time) ([]models.Vaccination, error) {
	var vaccinations []models.Vaccination
	err := s.DB.Preload("Horse").Preload("VaccinationType").
		Joins("JOIN horses ON horses.id = vaccinations.horse_id AND horses.is_active = ?", true).
		Order("vaccinations.next_due_date").
		Find(&vaccinations).Error
	if err != nil {
		return nil, err
	}
	due := vaccinations[:0]
	for _, v := range vaccinations {
		if sentToday(v.ReminderSentAt, today) {
			continue
		}
		// Reminder window opens ReminderDaysBefore ahead of the due date and
		// stays open while the vaccination is outstanding.
		windowStart := v.NextDueDate.AddDate(0, 0, -v.VaccinationType.ReminderDaysBefore)
		if !today.Before(windowStart) {
			due = append(due, v)
		}
	}
	return due, nil
}

// MarkVaccinationReminded records a confirmed delivery. Never called on
// failure so the guard cannot mask an unsent reminder.
func (s *ReminderService) MarkVaccinationReminded(id uint, at time.Time) error {
	return s.DB.Model(&models.Vaccination{}).Where("id = ?", id).
		Update("reminder_sent_at", at).Error
}

// FarrierVisitsDue returns, per active horse, the latest farrier visit whose
// next due date falls within the lookahead window and has not been reminded
// today.
func (s *ReminderService) FarrierVisitsDue(today time.Time, lookaheadDays int) ([]models.FarrierVisit, error) {
	horizon := today.AddDate(0, 0, lookaheadDays)
	var visits []models.FarrierVisit
	err := s.DB.Preload("Horse").
		Joins("JOIN horses ON horses.id = farrier_visits.horse_id AND horses.is_active = ?", true).
		Where("farrier_visits.next_due_date IS NOT NULL AND farrier_visits.next_due_date >= ? AND farrier_visits.next_due_date <= ?", today, horizon).
		Order("farrier_visits.horse_id, farrier_visits.date desc").
		Find(&visits).Error
	if err != nil {
		return nil, err
	}
	latestPerHorse := map[uint]models.FarrierVisit{}
	for _, v := range visits {
		prev, ok := latestPerHorse[v.HorseID]
		if !ok || v.Date.After(prev.Date) {
			latestPerHorse[v.HorseID] = v
		}
	}
	due := make([]models.FarrierVisit, 0, len(latestPerHorse))
	for _, v := range latestPerHorse {
		if !sentToday(v.ReminderSentAt, today) {
			due = append(due, v)
		}
	}
	return due, nil
}

// MarkFarrierReminded records a confirmed delivery.
func (s *ReminderService) MarkFarrierReminded(id uint, at time.Time) error {
	return s.DB.Model(&models.FarrierVisit{}).Where("id = ?", id).
		Update("reminder_sent_at", at).Error
}

// OverdueInvoices returns sent invoices past their due date.
func (s *ReminderService) OverdueInvoices(asOf time.Time) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := s.DB.Preload("Owner").
		Where("status = ? AND due_date < ?", models.InvoiceSent, asOf).
		Find(&invoices).Error
	return invoices, err
}

// MarkInvoiceOverdue applies the sent -> overdue transition and persists it.
func (s *ReminderService) MarkInvoiceOverdue(inv *models.Invoice, asOf time.Time) error {
	if err := inv.MarkOverdue(asOf); err != nil {
		return err
	}
	return s.DB.Model(&models.Invoice{}).Where("id = ?", inv.ID).
		Update("status", models.InvoiceOverdue).Error
}
