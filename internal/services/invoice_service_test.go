package services

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/marchfield/liveryard/internal/models"
)

func setupServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = db.AutoMigrate(
		&models.User{}, &models.Owner{}, &models.Location{}, &models.Horse{},
		&models.RateType{}, &models.Placement{}, &models.HorseOwnership{},
		&models.ServiceProvider{}, &models.ExtraCharge{},
		&models.Invoice{}, &models.InvoiceLineItem{},
		&models.VaccinationType{}, &models.Vaccination{}, &models.FarrierVisit{},
		&models.BusinessSettings{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("decimal %q: %v", s, err)
	}
	return d
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type billingFixtures struct {
	owner    models.Owner
	horse    models.Horse
	location models.Location
	stabled  models.RateType // £5/day
	full     models.RateType // £24/day
	paddock  models.RateType // £180/month
}

func seedBillingFixtures(t *testing.T, db *gorm.DB) billingFixtures {
	t.Helper()
	f := billingFixtures{
		owner:    models.Owner{Name: "Alice Wainwright", Email: "alice@example.com"},
		horse:    models.Horse{Name: "Copper", IsActive: true},
		location: models.Location{Name: "Top Field", Site: "Home Farm"},
		stabled:  models.RateType{Name: "Stabled", Period: models.RatePeriodDaily, DailyRate: mustDecimal(t, "5.00"), IsActive: true},
		full:     models.RateType{Name: "Full Livery", Period: models.RatePeriodDaily, DailyRate: mustDecimal(t, "24.00"), IsActive: true},
		paddock:  models.RateType{Name: "Retirement Paddock", Period: models.RatePeriodMonthly, MonthlyRate: mustDecimal(t, "180.00"), IsActive: true},
	}
	for _, m := range []any{&f.owner, &f.horse, &f.location, &f.stabled, &f.full, &f.paddock} {
		if err := db.Create(m).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return f
}

func createPlacement(t *testing.T, db *gorm.DB, f billingFixtures, rateID uint, start time.Time, end *time.Time) models.Placement {
	t.Helper()
	p := models.Placement{
		HorseID:    f.horse.ID,
		OwnerID:    f.owner.ID,
		LocationID: f.location.ID,
		RateTypeID: rateID,
		StartDate:  start,
		EndDate:    end,
	}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("placement: %v", err)
	}
	return p
}

func TestCalculateLiveryChargesOpenPlacementFullMonth(t *testing.T) {
	db := setupServiceTestDB(t)
	f := seedBillingFixtures(t, db)
	createPlacement(t, db, f, f.stabled.ID, date(2024, 1, 1), nil)
	svc := NewInvoiceService(db)

	charges, err := svc.CalculateLiveryCharges(f.owner.ID, date(2024, 1, 1), date(2024, 2, 1))
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if len(charges) != 1 {
		t.Fatalf("expected 1 charge got %d", len(charges))
	}
	if got := charges[0].Amount; !got.Equal(mustDecimal(t, "155.00")) {
		t.Fatalf("31 days at £5 should be £155, got %s", got)
	}
	if got := charges[0].Quantity; !got.Equal(decimal.NewFromInt(31)) {
		t.Fatalf("expected 31 chargeable days, got %s", got)
	}
}

func TestCalculateLiveryChargesClosedSegmentInsidePeriod(t *testing.T) {
	db := setupServiceTestDB(t)
	f := seedBillingFixtures(t, db)
	end := date(2024, 1, 20)
	createPlacement(t, db, f, f.full.ID, date(2024, 1, 10), &end)
	svc := NewInvoiceService(db)

	charges, err := svc.CalculateLiveryCharges(f.owner.ID, date(2024, 1, 1), date(2024, 2, 1))
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if len(charges) != 1 {
		t.Fatalf("expected 1 charge got %d", len(charges))
	}
	// [10th, 20th) is 10 days; the end date itself is not chargeable.
	if got := charges[0].Amount; !got.Equal(mustDecimal(t, "240.00")) {
		t.Fatalf("10 days at £24 should be £240, got %s", got)
	}
}

func TestCalculateLiveryChargesTwoSegmentsNoDoubleBilling(t *testing.T) {
	db := setupServiceTestDB(t)
	f := seedBillingFixtures(t, db)
	moveDay := date(2024, 1, 16)
	createPlacement(t, db, f, f.stabled.ID, date(2024, 1, 1), &moveDay)
	createPlacement(t, db, f, f.full.ID, moveDay, nil)
	svc := NewInvoiceService(db)

	charges, err := svc.CalculateLiveryCharges(f.owner.ID, date(2024, 1, 1), date(2024, 2, 1))
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if len(charges) != 2 {
		t.Fatalf("expected 2 charges got %d", len(charges))
	}
	total := charges[0].Amount.Add(charges[1].Amount)
	// 15 days at £5 + 16 days at £24 = 75 + 384 = 459. The move day is billed
	// once, on the new placement only.
	if !total.Equal(mustDecimal(t, "459.00")) {
		t.Fatalf("expected £459 total, got %s", total)
	}
}

func TestCalculateLiveryChargesMonthlyRateBillsFlat(t *testing.T) {
	db := setupServiceTestDB(t)
	f := seedBillingFixtures(t, db)
	end := date(2024, 1, 5)
	createPlacement(t, db, f, f.paddock.ID, date(2024, 1, 1), &end)
	svc := NewInvoiceService(db)

	charges, err := svc.CalculateLiveryCharges(f.owner.ID, date(2024, 1, 1), date(2024, 2, 1))
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if len(charges) != 1 {
		t.Fatalf("expected 1 charge got %d", len(charges))
	}
	if got := charges[0].Amount; !got.Equal(mustDecimal(t, "180.00")) {
		t.Fatalf("monthly rate bills flat regardless of days, got %s", got)
	}
}

func TestCalculateLiveryChargesInactiveRateFails(t *testing.T) {
	db := setupServiceTestDB(t)
	f := seedBillingFixtures(t, db)
	createPlacement(t, db, f, f.stabled.ID, date(2024, 1, 1), nil)
	if err := db.Model(&models.RateType{}).Where("id = ?", f.stabled.ID).Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate rate: %v", err)
	}
	svc := NewInvoiceService(db)

	_, err := svc.CalculateLiveryCharges(f.owner.ID, date(2024, 1, 1), date(2024, 2, 1))
	if !errors.Is(err, ErrRateNotConfigured) {
		t.Fatalf("expected ErrRateNotConfigured, got %v", err)
	}
}

func TestFractionalOwnershipSplitsLiveryCharge(t *testing.T) {
	db := setupServiceTestDB(t)
	f := seedBillingFixtures(t, db)
	partner := models.Owner{Name: "Ben Mercer"}
	if err := db.Create(&partner).Error; err != nil {
		t.Fatalf("partner: %v", err)
	}
	createPlacement(t, db, f, f.stabled.ID, date(2024, 1, 1), nil)
	shares := []models.HorseOwnership{
		{HorseID: f.horse.ID, OwnerID: f.owner.ID, Percentage: mustDecimal(t, "50"), StartDate: date(2023, 6, 1)},
		{HorseID: f.horse.ID, OwnerID: partner.ID, Percentage: mustDecimal(t, "50"), StartDate: date(2023, 6, 1)},
	}
	for i := range shares {
		if err := db.Create(&shares[i]).Error; err != nil {
			t.Fatalf("share: %v", err)
		}
	}
	svc := NewInvoiceService(db)

	ours, err := svc.CalculateLiveryCharges(f.owner.ID, date(2024, 1, 1), date(2024, 2, 1))
	if err != nil {
		t.Fatalf("calculate owner: %v", err)
	}
	theirs, err := svc.CalculateLiveryCharges(partner.ID, date(2024, 1, 1), date(2024, 2, 1))
	if err != nil {
		t.Fatalf("calculate partner: %v", err)
	}
	if len(ours) != 1 || len(theirs) != 1 {
		t.Fatalf("expected 1 charge each, got %d and %d", len(ours), len(theirs))
	}
	half := mustDecimal(t, "77.50")
	if !ours[0].Amount.Equal(half) || !theirs[0].Amount.Equal(half) {
		t.Fatalf("each 50%% holder owes £77.50, got %s and %s", ours[0].Amount, theirs[0].Amount)
	}
	if ours[0].SharePercentage == nil || !ours[0].SharePercentage.Equal(mustDecimal(t, "50")) {
		t.Fatalf("share percentage not recorded: %v", ours[0].SharePercentage)
	}
}

func TestCreateInvoicePersistsLineItemsAndFlagsCharges(t *testing.T) {
	db := setupServiceTestDB(t)
	f := seedBillingFixtures(t, db)
	createPlacement(t, db, f, f.stabled.ID, date(2024, 1, 1), nil)
	extra := models.ExtraCharge{
		HorseID:     f.horse.ID,
		OwnerID:     f.owner.ID,
		ChargeType:  models.ChargeVet,
		Date:        date(2024, 1, 12),
		Description: "Lameness exam",
		Amount:      mustDecimal(t, "85.00"),
	}
	if err := db.Create(&extra).Error; err != nil {
		t.Fatalf("extra charge: %v", err)
	}
	svc := NewInvoiceService(db)

	inv, err := svc.CreateInvoice(f.owner.ID, date(2024, 1, 1), date(2024, 2, 1), "")
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if inv.Status != models.InvoiceDraft {
		t.Fatalf("new invoice must be draft, got %s", inv.Status)
	}
	if inv.InvoiceNumber != "INV00001" {
		t.Fatalf("unexpected invoice number %s", inv.InvoiceNumber)
	}
	if !inv.Total.Equal(mustDecimal(t, "240.00")) {
		t.Fatalf("expected £155 livery + £85 vet = £240, got %s", inv.Total)
	}
	if len(inv.LineItems) != 2 {
		t.Fatalf("expected 2 line items, got %d", len(inv.LineItems))
	}
	var reloaded models.ExtraCharge
	if err := db.First(&reloaded, extra.ID).Error; err != nil {
		t.Fatalf("reload charge: %v", err)
	}
	if !reloaded.Invoiced || reloaded.InvoiceID == nil || *reloaded.InvoiceID != inv.ID {
		t.Fatalf("extra charge not flagged invoiced: %+v", reloaded)
	}

	// A second invoice for the owner must not pick the charge up again.
	next, err := svc.CreateInvoice(f.owner.ID, date(2024, 2, 1), date(2024, 3, 1), "")
	if err != nil {
		t.Fatalf("second invoice: %v", err)
	}
	for _, item := range next.LineItems {
		if item.ChargeID != nil && *item.ChargeID == extra.ID {
			t.Fatalf("extra charge billed twice")
		}
	}
	if next.InvoiceNumber != "INV00002" {
		t.Fatalf("sequence did not advance: %s", next.InvoiceNumber)
	}
}

func TestSplitChargeBilledToCoOwnersByShare(t *testing.T) {
	db := setupServiceTestDB(t)
	f := seedBillingFixtures(t, db)
	partner := models.Owner{Name: "Ben Mercer"}
	if err := db.Create(&partner).Error; err != nil {
		t.Fatalf("partner: %v", err)
	}
	shares := []models.HorseOwnership{
		{HorseID: f.horse.ID, OwnerID: f.owner.ID, Percentage: mustDecimal(t, "50"), StartDate: date(2023, 6, 1)},
		{HorseID: f.horse.ID, OwnerID: partner.ID, Percentage: mustDecimal(t, "50"), StartDate: date(2023, 6, 1)},
	}
	for i := range shares {
		if err := db.Create(&shares[i]).Error; err != nil {
			t.Fatalf("share: %v", err)
		}
	}
	extra := models.ExtraCharge{
		HorseID:          f.horse.ID,
		OwnerID:          f.owner.ID,
		ChargeType:       models.ChargeVet,
		Date:             date(2024, 1, 12),
		Description:      "Lameness exam",
		Amount:           mustDecimal(t, "100.00"),
		SplitByOwnership: true,
	}
	if err := db.Create(&extra).Error; err != nil {
		t.Fatalf("extra charge: %v", err)
	}
	svc := NewInvoiceService(db)

	first, err := svc.CreateInvoice(f.owner.ID, date(2024, 1, 1), date(2024, 2, 1), "")
	if err != nil {
		t.Fatalf("first co-owner invoice: %v", err)
	}
	if !first.Total.Equal(mustDecimal(t, "50.00")) {
		t.Fatalf("50%% holder owes £50, got %s", first.Total)
	}
	if len(first.LineItems) != 1 || first.LineItems[0].OwnershipPercentage == nil ||
		!first.LineItems[0].OwnershipPercentage.Equal(mustDecimal(t, "50")) {
		t.Fatalf("share percentage not recorded: %+v", first.LineItems)
	}

	// Still open: the co-owner has not been billed their half yet.
	var reloaded models.ExtraCharge
	if err := db.First(&reloaded, extra.ID).Error; err != nil {
		t.Fatalf("reload charge: %v", err)
	}
	if reloaded.Invoiced {
		t.Fatal("split charge flagged invoiced before all co-owners billed")
	}

	// The billed co-owner must not pick their share up again.
	if _, err := svc.CreateInvoice(f.owner.ID, date(2024, 2, 1), date(2024, 3, 1), ""); !errors.Is(err, ErrNothingToBill) {
		t.Fatalf("expected ErrNothingToBill for already-billed co-owner, got %v", err)
	}

	second, err := svc.CreateInvoice(partner.ID, date(2024, 1, 1), date(2024, 2, 1), "")
	if err != nil {
		t.Fatalf("second co-owner invoice: %v", err)
	}
	if !second.Total.Equal(mustDecimal(t, "50.00")) {
		t.Fatalf("remaining holder owes £50, got %s", second.Total)
	}
	if err := db.First(&reloaded, extra.ID).Error; err != nil {
		t.Fatalf("reload charge: %v", err)
	}
	if !reloaded.Invoiced || reloaded.InvoiceID == nil || *reloaded.InvoiceID != second.ID {
		t.Fatalf("charge not closed after all co-owners billed: %+v", reloaded)
	}
}

func TestSplitChargeWithoutCoOwnersBillsInFull(t *testing.T) {
	db := setupServiceTestDB(t)
	f := seedBillingFixtures(t, db)
	extra := models.ExtraCharge{
		HorseID:          f.horse.ID,
		OwnerID:          f.owner.ID,
		ChargeType:       models.ChargeFarrier,
		Date:             date(2024, 1, 12),
		Description:      "Full set of shoes",
		Amount:           mustDecimal(t, "30.00"),
		SplitByOwnership: true,
	}
	if err := db.Create(&extra).Error; err != nil {
		t.Fatalf("extra charge: %v", err)
	}
	svc := NewInvoiceService(db)

	inv, err := svc.CreateInvoice(f.owner.ID, date(2024, 1, 1), date(2024, 2, 1), "")
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if !inv.Total.Equal(mustDecimal(t, "30.00")) {
		t.Fatalf("expected full £30, got %s", inv.Total)
	}
	var reloaded models.ExtraCharge
	if err := db.First(&reloaded, extra.ID).Error; err != nil {
		t.Fatalf("reload charge: %v", err)
	}
	if !reloaded.Invoiced {
		t.Fatal("charge without co-owners should close on first billing")
	}
}

func TestCreateInvoiceDuplicatePeriodConflicts(t *testing.T) {
	db := setupServiceTestDB(t)
	f := seedBillingFixtures(t, db)
	createPlacement(t, db, f, f.stabled.ID, date(2024, 1, 1), nil)
	svc := NewInvoiceService(db)

	if _, err := svc.CreateInvoice(f.owner.ID, date(2024, 1, 1), date(2024, 2, 1), ""); err != nil {
		t.Fatalf("first invoice: %v", err)
	}
	// Overlapping, not identical: the second half of January.
	_, err := svc.CreateInvoice(f.owner.ID, date(2024, 1, 15), date(2024, 2, 15), "")
	var dup *ErrDuplicateInvoice
	if !errors.As(err, &dup) {
		t.Fatalf("expected ErrDuplicateInvoice, got %v", err)
	}
	if dup.Existing == nil || dup.Existing.InvoiceNumber != "INV00001" {
		t.Fatalf("conflict should carry the existing invoice, got %+v", dup.Existing)
	}

	// Adjacent periods share no day and must not conflict.
	if _, err := svc.CreateInvoice(f.owner.ID, date(2024, 2, 1), date(2024, 3, 1), ""); err != nil {
		t.Fatalf("adjacent period rejected: %v", err)
	}
}

func TestDuplicateOwnerPeriodRejectedByUniqueIndex(t *testing.T) {
	db := setupServiceTestDB(t)
	f := seedBillingFixtures(t, db)
	createPlacement(t, db, f, f.stabled.ID, date(2024, 1, 1), nil)
	svc := NewInvoiceService(db)

	first, err := svc.CreateInvoice(f.owner.ID, date(2024, 1, 1), date(2024, 2, 1), "")
	if err != nil {
		t.Fatalf("first invoice: %v", err)
	}
	// A writer that raced past the overlap pre-check hits the unique
	// (owner, period) index instead of inserting a second invoice.
	dup := models.Invoice{
		OwnerID:       f.owner.ID,
		InvoiceNumber: "INV09999",
		PeriodStart:   first.PeriodStart,
		PeriodEnd:     first.PeriodEnd,
		Status:        models.InvoiceDraft,
		DueDate:       first.DueDate,
	}
	if err := db.Create(&dup).Error; err == nil {
		t.Fatal("duplicate (owner, period) insert should violate the unique index")
	}
	var count int64
	db.Model(&models.Invoice{}).
		Where("owner_id = ? AND period_start = ? AND period_end = ?", f.owner.ID, first.PeriodStart, first.PeriodEnd).
		Count(&count)
	if count != 1 {
		t.Fatalf("expected exactly one invoice for the period, found %d", count)
	}
}

func TestCreateInvoiceNothingToBill(t *testing.T) {
	db := setupServiceTestDB(t)
	f := seedBillingFixtures(t, db)
	svc := NewInvoiceService(db)

	_, err := svc.CreateInvoice(f.owner.ID, date(2024, 1, 1), date(2024, 2, 1), "")
	if !errors.Is(err, ErrNothingToBill) {
		t.Fatalf("expected ErrNothingToBill, got %v", err)
	}
	var count int64
	db.Model(&models.Invoice{}).Count(&count)
	if count != 0 {
		t.Fatalf("nothing should be persisted, found %d invoices", count)
	}
}

func TestCreateInvoiceInvalidPeriod(t *testing.T) {
	db := setupServiceTestDB(t)
	f := seedBillingFixtures(t, db)
	svc := NewInvoiceService(db)

	_, err := svc.CreateInvoice(f.owner.ID, date(2024, 2, 1), date(2024, 1, 1), "")
	if !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestGenerateMonthlyInvoices(t *testing.T) {
	db := setupServiceTestDB(t)
	f := seedBillingFixtures(t, db)
	createPlacement(t, db, f, f.stabled.ID, date(2024, 1, 1), nil)

	idle := models.Owner{Name: "No Horses Here"}
	if err := db.Create(&idle).Error; err != nil {
		t.Fatalf("idle owner: %v", err)
	}
	svc := NewInvoiceService(db)

	run, err := svc.GenerateMonthlyInvoices(2024, time.January)
	if err != nil {
		t.Fatalf("monthly run: %v", err)
	}
	if len(run.Generated) != 1 {
		t.Fatalf("expected 1 generated invoice, got %d", len(run.Generated))
	}
	if !run.Generated[0].Total.Equal(mustDecimal(t, "155.00")) {
		t.Fatalf("expected £155, got %s", run.Generated[0].Total)
	}

	// Running the same month again skips the owner instead of failing.
	again, err := svc.GenerateMonthlyInvoices(2024, time.January)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(again.Generated) != 0 || len(again.Skipped) != 1 {
		t.Fatalf("expected 0 generated / 1 skipped, got %d / %d", len(again.Generated), len(again.Skipped))
	}
}

func TestInvoiceLifecycleTransitions(t *testing.T) {
	now := date(2024, 2, 5)
	inv := models.Invoice{Status: models.InvoiceDraft, DueDate: date(2024, 3, 2), InvoiceNumber: "INV00009"}

	// draft -> paid must fail
	if err := inv.MarkPaid(now); err == nil {
		t.Fatal("draft invoice must not be payable")
	}
	var bad *models.ErrInvalidTransition
	if err := inv.MarkPaid(now); !errors.As(err, &bad) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	if err := inv.MarkSent(now); err != nil {
		t.Fatalf("draft -> sent: %v", err)
	}
	if inv.SentAt == nil {
		t.Fatal("sent_at not stamped")
	}
	// sent -> overdue requires being past due
	if err := inv.MarkOverdue(date(2024, 3, 1)); err == nil {
		t.Fatal("not yet past due, must not flip")
	}
	if err := inv.MarkOverdue(date(2024, 3, 3)); err != nil {
		t.Fatalf("sent -> overdue: %v", err)
	}
	if err := inv.MarkPaid(date(2024, 3, 10)); err != nil {
		t.Fatalf("overdue -> paid: %v", err)
	}
	// paid is terminal
	if err := inv.MarkSent(date(2024, 3, 11)); err == nil {
		t.Fatal("paid invoice must not go back to sent")
	}
}
