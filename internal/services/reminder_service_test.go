package services

import (
	"testing"

	"github.com/marchfield/liveryard/internal/models"
)

func TestVaccinationsDueWindowAndGuard(t *testing.T) {
	db := setupServiceTestDB(t)
	f := seedBillingFixtures(t, db)
	vt := models.VaccinationType{Name: "Equine Influenza", IntervalMonths: 12, ReminderDaysBefore: 30, IsActive: true}
	if err := db.Create(&vt).Error; err != nil {
		t.Fatalf("type: %v", err)
	}
	v := models.Vaccination{
		HorseID:           f.horse.ID,
		VaccinationTypeID: vt.ID,
		DateGiven:         date(2023, 2, 15),
		NextDueDate:       date(2024, 2, 15),
	}
	if err := db.Create(&v).Error; err != nil {
		t.Fatalf("vaccination: %v", err)
	}
	svc := NewReminderService(db)

	// Before the window opens: nothing due.
	due, err := svc.VaccinationsDue(date(2024, 1, 10))
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("window opens 30 days ahead, got %d due", len(due))
	}

	// Inside the window.
	today := date(2024, 1, 20)
	due, err = svc.VaccinationsDue(today)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("expected 1 due, got %d", len(due))
	}

	// Second run the same day sends nothing once the guard is stamped.
	if err := svc.MarkVaccinationReminded(v.ID, today); err != nil {
		t.Fatalf("mark: %v", err)
	}
	due, err = svc.VaccinationsDue(today)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("same-day rerun must skip reminded records, got %d", len(due))
	}

	// The next day it is due again while still outstanding.
	due, err = svc.VaccinationsDue(today.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("next-day run should pick it up again, got %d", len(due))
	}

	// Past the due date the vaccination is still outstanding and still due.
	due, err = svc.VaccinationsDue(date(2024, 3, 1))
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("overdue vaccination must stay in the reminder set, got %d", len(due))
	}
}

func TestVaccinationsDueSkipsInactiveHorses(t *testing.T) {
	db := setupServiceTestDB(t)
	f := seedBillingFixtures(t, db)
	vt := models.VaccinationType{Name: "Tetanus", IntervalMonths: 24, ReminderDaysBefore: 30, IsActive: true}
	if err := db.Create(&vt).Error; err != nil {
		t.Fatalf("type: %v", err)
	}
	v := models.Vaccination{
		HorseID:           f.horse.ID,
		VaccinationTypeID: vt.ID,
		DateGiven:         date(2022, 2, 1),
		NextDueDate:       date(2024, 2, 1),
	}
	if err := db.Create(&v).Error; err != nil {
		t.Fatalf("vaccination: %v", err)
	}
	if err := db.Model(&models.Horse{}).Where("id = ?", f.horse.ID).Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate horse: %v", err)
	}
	svc := NewReminderService(db)

	due, err := svc.VaccinationsDue(date(2024, 1, 20))
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("inactive horses get no reminders, got %d", len(due))
	}
}

func TestFarrierVisitsDueLatestPerHorse(t *testing.T) {
	db := setupServiceTestDB(t)
	f := seedBillingFixtures(t, db)
	older := date(2024, 2, 10)
	newer := date(2024, 2, 20)
	visits := []models.FarrierVisit{
		{HorseID: f.horse.ID, Date: date(2024, 1, 1), WorkDone: models.FarrierTrim, NextDueDate: &older},
		{HorseID: f.horse.ID, Date: date(2024, 1, 10), WorkDone: models.FarrierFullSet, NextDueDate: &newer},
	}
	for i := range visits {
		if err := db.Create(&visits[i]).Error; err != nil {
			t.Fatalf("visit: %v", err)
		}
	}
	svc := NewReminderService(db)

	due, err := svc.FarrierVisitsDue(date(2024, 2, 8), 14)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("only the latest visit per horse counts, got %d", len(due))
	}
	if due[0].WorkDone != models.FarrierFullSet {
		t.Fatalf("expected the most recent visit, got %s", due[0].WorkDone)
	}

	today := date(2024, 2, 8)
	if err := svc.MarkFarrierReminded(due[0].ID, today); err != nil {
		t.Fatalf("mark: %v", err)
	}
	due, err = svc.FarrierVisitsDue(today, 14)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("same-day rerun must skip reminded visits, got %d", len(due))
	}
}

func TestOverdueInvoiceSweep(t *testing.T) {
	db := setupServiceTestDB(t)
	f := seedBillingFixtures(t, db)
	sentAt := date(2024, 2, 2)
	invoices := []models.Invoice{
		{OwnerID: f.owner.ID, InvoiceNumber: "INV00001", PeriodStart: date(2024, 1, 1), PeriodEnd: date(2024, 2, 1), Status: models.InvoiceSent, DueDate: date(2024, 3, 2), SentAt: &sentAt},
		{OwnerID: f.owner.ID, InvoiceNumber: "INV00002", PeriodStart: date(2024, 2, 1), PeriodEnd: date(2024, 3, 1), Status: models.InvoiceDraft, DueDate: date(2024, 3, 31)},
		{OwnerID: f.owner.ID, InvoiceNumber: "INV00003", PeriodStart: date(2023, 12, 1), PeriodEnd: date(2024, 1, 1), Status: models.InvoicePaid, DueDate: date(2024, 1, 31)},
	}
	for i := range invoices {
		if err := db.Create(&invoices[i]).Error; err != nil {
			t.Fatalf("invoice: %v", err)
		}
	}
	svc := NewReminderService(db)

	// Before the due date nothing is overdue.
	overdue, err := svc.OverdueInvoices(date(2024, 3, 2))
	if err != nil {
		t.Fatalf("overdue: %v", err)
	}
	if len(overdue) != 0 {
		t.Fatalf("nothing due yet, got %d", len(overdue))
	}

	asOf := date(2024, 3, 3)
	overdue, err = svc.OverdueInvoices(asOf)
	if err != nil {
		t.Fatalf("overdue: %v", err)
	}
	if len(overdue) != 1 || overdue[0].InvoiceNumber != "INV00001" {
		t.Fatalf("only the sent invoice past due should flip, got %+v", overdue)
	}
	if err := svc.MarkInvoiceOverdue(&overdue[0], asOf); err != nil {
		t.Fatalf("mark overdue: %v", err)
	}
	var reloaded models.Invoice
	if err := db.First(&reloaded, overdue[0].ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Status != models.InvoiceOverdue {
		t.Fatalf("status not persisted, got %s", reloaded.Status)
	}

	// A second sweep the same day finds nothing left to flip.
	overdue, err = svc.OverdueInvoices(asOf)
	if err != nil {
		t.Fatalf("overdue: %v", err)
	}
	if len(overdue) != 0 {
		t.Fatalf("sweep is idempotent, got %d", len(overdue))
	}
}
