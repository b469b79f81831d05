package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/marchfield/liveryard/internal/billing"
	"github.com/marchfield/liveryard/internal/models"
)

// Validation failures abort invoice generation without partial persistence.
var (
	ErrNothingToBill     = errors.New("owner has no placements or extra charges in the period")
	ErrRateNotConfigured = errors.New("placement rate type is missing or inactive")
	ErrInvalidPeriod     = errors.New("billing period end must be after its start")
)

// ErrDuplicateInvoice is a conflict, distinct from validation errors, so
// callers can tell "already billed" from "bad input".
type ErrDuplicateInvoice struct {
	OwnerID  uint
	Existing *models.Invoice
}

func (e *ErrDuplicateInvoice) Error() string {
	return fmt.Sprintf("owner %d already has invoice %s covering %s to %s",
		e.OwnerID, e.Existing.InvoiceNumber,
		e.Existing.PeriodStart.Format("2006-01-02"), e.Existing.PeriodEnd.Format("2006-01-02"))
}

// Charge is one computed billable entry, before it becomes a line item.
type Charge struct {
	HorseID     uint
	HorseName   string
	PlacementID *uint
	ChargeID    *uint
	LineType    string
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Amount      decimal.Decimal
	SegmentFrom time.Time
	// Ownership share applied, nil when the owner is billed in full.
	SharePercentage *decimal.Decimal
}

// Preview is the computed document for an owner/period before anything is
// persisted.
type Preview struct {
	LiveryCharges []Charge
	ExtraCharges  []Charge
	Subtotal      decimal.Decimal
	Total         decimal.Decimal
}

// InvoiceService generates and manages invoices.
type InvoiceService struct {
	DB *gorm.DB
}

func NewInvoiceService(db *gorm.DB) *InvoiceService { return &InvoiceService{DB: db} }

// FindOverlappingInvoice returns an existing invoice for the owner whose
// period overlaps [periodStart, periodEnd), or nil.
func (s *InvoiceService) FindOverlappingInvoice(ownerID uint, periodStart, periodEnd time.Time) (*models.Invoice, error) {
	var inv models.Invoice
	err := s.DB.Where("owner_id = ? AND period_start < ? AND period_end > ?", ownerID, periodEnd, periodStart).
		First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// ownershipsInPeriod returns the fractional ownership shares of a horse that
// overlap the billing period.
func (s *InvoiceService) ownershipsInPeriod(horseID uint, periodStart, periodEnd time.Time) ([]models.HorseOwnership, error) {
	var shares []models.HorseOwnership
	err := s.DB.Preload("Owner").
		Where("horse_id = ? AND start_date < ? AND (end_date IS NULL OR end_date > ?)", horseID, periodEnd, periodStart).
		Find(&shares).Error
	return shares, err
}

func rateString(d decimal.Decimal) string {
	s := d.String()
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	return s
}

func liveryDescription(p *models.Placement, days int, from, to time.Time, share *decimal.Decimal) string {
	var desc string
	if p.RateType.Period == models.RatePeriodMonthly {
		desc = fmt.Sprintf("%s £%s per month (%s to %s)",
			p.RateType.Name, rateString(p.RateType.MonthlyRate),
			from.Format("2 Jan"), to.Format("2 Jan 2006"))
	} else {
		desc = fmt.Sprintf("%s £%s per day - %d days (%s to %s)",
			p.RateType.Name, rateString(p.RateType.DailyRate), days,
			from.Format("2 Jan"), to.Format("2 Jan 2006"))
	}
	if share != nil {
		desc += fmt.Sprintf(" [%s%% share]", rateString(*share))
	}
	return desc
}

// placementCharge computes the full (unshared) charge for a placement segment
// inside the period. Monthly rates bill flat on any overlap.
func placementCharge(p *models.Placement, days int) (decimal.Decimal, error) {
	if p.RateType.ID == 0 || !p.RateType.IsActive {
		return decimal.Zero, fmt.Errorf("placement %d: %w", p.ID, ErrRateNotConfigured)
	}
	if p.RateType.Period == models.RatePeriodMonthly {
		if p.RateType.MonthlyRate.Sign() <= 0 {
			return decimal.Zero, fmt.Errorf("placement %d: %w", p.ID, ErrRateNotConfigured)
		}
		return p.RateType.MonthlyRate, nil
	}
	if p.RateType.DailyRate.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("placement %d: %w", p.ID, ErrRateNotConfigured)
	}
	return billing.DailyCharge(days, p.RateType.DailyRate), nil
}

// rejectOverlapping fails when any two placements of the same horse overlap —
// double-billing is never resolved silently at billing time.
func rejectOverlapping(placements []models.Placement) error {
	byHorse := map[uint][]models.Placement{}
	for _, p := range placements {
		byHorse[p.HorseID] = append(byHorse[p.HorseID], p)
	}
	for _, ps := range byHorse {
		for i := range ps {
			for j := i + 1; j < len(ps); j++ {
				if ps[i].Overlaps(&ps[j]) {
					return fmt.Errorf("horse %d has overlapping placements %d and %d: %w",
						ps[i].HorseID, ps[i].ID, ps[j].ID, ErrPlacementOverlap)
				}
			}
		}
	}
	return nil
}

// CalculateLiveryCharges computes the livery charges an owner owes for the
// period, covering placements they own directly and placements of horses they
// hold a fractional share in.
func (s *InvoiceService) CalculateLiveryCharges(ownerID uint, periodStart, periodEnd time.Time) ([]Charge, error) {
	var charges []Charge

	var direct []models.Placement
	err := s.DB.Preload("Horse").Preload("RateType").
		Where("owner_id = ? AND start_date < ? AND (end_date IS NULL OR end_date > ?)", ownerID, periodEnd, periodStart).
		Find(&direct).Error
	if err != nil {
		return nil, err
	}
	if err := rejectOverlapping(direct); err != nil {
		return nil, err
	}

	for i := range direct {
		p := &direct[i]
		days := billing.ChargeableDays(p.StartDate, p.EndDate, periodStart, periodEnd)
		if days <= 0 {
			continue
		}
		full, err := placementCharge(p, days)
		if err != nil {
			return nil, err
		}
		from, to := billing.EffectiveDates(p.StartDate, p.EndDate, periodStart, periodEnd)

		shares, err := s.ownershipsInPeriod(p.HorseID, periodStart, periodEnd)
		if err != nil {
			return nil, err
		}
		c := Charge{
			HorseID:     p.HorseID,
			HorseName:   p.Horse.Name,
			PlacementID: &p.ID,
			LineType:    models.LineLivery,
			Quantity:    decimal.NewFromInt(int64(days)),
			UnitPrice:   p.RateType.DailyRate,
			SegmentFrom: from,
		}
		if p.RateType.Period == models.RatePeriodMonthly {
			c.Quantity = decimal.NewFromInt(1)
			c.UnitPrice = p.RateType.MonthlyRate
		}
		if len(shares) == 0 {
			c.Amount = full
			c.Description = liveryDescription(p, days, from, to, nil)
			charges = append(charges, c)
			continue
		}
		// Fractional ownership: only this owner's share goes on their invoice.
		var owned *models.HorseOwnership
		for j := range shares {
			if shares[j].OwnerID == ownerID {
				owned = &shares[j]
				break
			}
		}
		if owned == nil {
			continue // no longer holds a share; billed via the share holders
		}
		pct := owned.Percentage
		c.Amount = billing.Share(full, pct)
		c.SharePercentage = &pct
		c.Description = liveryDescription(p, days, from, to, &pct)
		charges = append(charges, c)
	}

	// Placements of horses this owner holds shares in but did not place.
	var held []models.HorseOwnership
	err = s.DB.Where("owner_id = ? AND start_date < ? AND (end_date IS NULL OR end_date > ?)", ownerID, periodEnd, periodStart).
		Find(&held).Error
	if err != nil {
		return nil, err
	}
	for _, share := range held {
		var others []models.Placement
		err := s.DB.Preload("Horse").Preload("RateType").
			Where("horse_id = ? AND owner_id <> ? AND start_date < ? AND (end_date IS NULL OR end_date > ?)",
				share.HorseID, ownerID, periodEnd, periodStart).
			Find(&others).Error
		if err != nil {
			return nil, err
		}
		if err := rejectOverlapping(others); err != nil {
			return nil, err
		}
		for i := range others {
			p := &others[i]
			days := billing.ChargeableDays(p.StartDate, p.EndDate, periodStart, periodEnd)
			if days <= 0 {
				continue
			}
			full, err := placementCharge(p, days)
			if err != nil {
				return nil, err
			}
			from, to := billing.EffectiveDates(p.StartDate, p.EndDate, periodStart, periodEnd)
			pct := share.Percentage
			c := Charge{
				HorseID:         p.HorseID,
				HorseName:       p.Horse.Name,
				PlacementID:     &p.ID,
				LineType:        models.LineLivery,
				Description:     liveryDescription(p, days, from, to, &pct),
				Quantity:        decimal.NewFromInt(int64(days)),
				UnitPrice:       p.RateType.DailyRate,
				Amount:          billing.Share(full, pct),
				SegmentFrom:     from,
				SharePercentage: &pct,
			}
			if p.RateType.Period == models.RatePeriodMonthly {
				c.Quantity = decimal.NewFromInt(1)
				c.UnitPrice = p.RateType.MonthlyRate
			}
			charges = append(charges, c)
		}
	}

	sortCharges(charges)
	return charges, nil
}

// sortCharges fixes the deterministic line-item order: horse name, then
// segment start, then description.
func sortCharges(charges []Charge) {
	sort.SliceStable(charges, func(i, j int) bool {
		if charges[i].HorseName != charges[j].HorseName {
			return charges[i].HorseName < charges[j].HorseName
		}
		if !charges[i].SegmentFrom.Equal(charges[j].SegmentFrom) {
			return charges[i].SegmentFrom.Before(charges[j].SegmentFrom)
		}
		return charges[i].Description < charges[j].Description
	})
}

// chargeTypeLabel renders a charge type for a line item description.
func chargeTypeLabel(t string) string {
	switch t {
	case models.ChargeVet:
		return "Veterinary"
	case models.ChargeFarrier:
		return "Farrier"
	case models.ChargeVaccination:
		return "Vaccination"
	case models.ChargeFeed:
		return "Feed/Hay"
	case models.ChargeMedication:
		return "Medication"
	case models.ChargeTransport:
		return "Transport"
	case models.ChargeEquipment:
		return "Equipment"
	case models.ChargeDentist:
		return "Dentist"
	case models.ChargePhysio:
		return "Physiotherapy"
	default:
		return "Other"
	}
}

// sharesAt returns the ownership shares of a horse in effect on a date.
func (s *InvoiceService) sharesAt(horseID uint, date time.Time) ([]models.HorseOwnership, error) {
	var shares []models.HorseOwnership
	err := s.DB.Where("horse_id = ? AND start_date <= ? AND (end_date IS NULL OR end_date > ?)",
		horseID, date, date).Find(&shares).Error
	return shares, err
}

// ownerBilledForCharge reports whether the owner already has a line item for
// the charge on any invoice. Split charges stay unbilled until every co-owner
// is invoiced, so this keeps a later period from re-billing the same share.
func (s *InvoiceService) ownerBilledForCharge(chargeID, ownerID uint) (bool, error) {
	var count int64
	err := s.DB.Model(&models.InvoiceLineItem{}).
		Joins("JOIN invoices ON invoices.id = invoice_line_items.invoice_id").
		Where("invoice_line_items.charge_id = ? AND invoices.owner_id = ?", chargeID, ownerID).
		Count(&count).Error
	return count > 0, err
}

// UnbilledExtraCharges returns the extra charges the owner owes for, dated
// before the period end and not yet picked up by an invoice. A charge flagged
// SplitByOwnership is divided among the horse's co-owners by share percentage;
// without co-owners, or without the flag, it bills in full to its owner.
func (s *InvoiceService) UnbilledExtraCharges(ownerID uint, periodEnd time.Time) ([]Charge, error) {
	var shareHorseIDs []uint
	err := s.DB.Model(&models.HorseOwnership{}).Distinct("horse_id").
		Where("owner_id = ?", ownerID).
		Pluck("horse_id", &shareHorseIDs).Error
	if err != nil {
		return nil, err
	}

	q := s.DB.Preload("Horse").Where("invoiced = ? AND date < ?", false, periodEnd)
	if len(shareHorseIDs) > 0 {
		q = q.Where("owner_id = ? OR (split_by_ownership = ? AND horse_id IN ?)", ownerID, true, shareHorseIDs)
	} else {
		q = q.Where("owner_id = ?", ownerID)
	}
	var recs []models.ExtraCharge
	if err := q.Order("date, id").Find(&recs).Error; err != nil {
		return nil, err
	}

	charges := make([]Charge, 0, len(recs))
	for i := range recs {
		ec := &recs[i]
		c := Charge{
			HorseID:     ec.HorseID,
			HorseName:   ec.Horse.Name,
			ChargeID:    &ec.ID,
			LineType:    models.ChargeTypeToLineType(ec.ChargeType),
			Description: fmt.Sprintf("%s - %s (%s)", chargeTypeLabel(ec.ChargeType), ec.Description, ec.Date.Format("2 Jan 2006")),
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   ec.Amount,
			Amount:      ec.Amount,
			SegmentFrom: ec.Date,
		}
		if !ec.SplitByOwnership {
			if ec.OwnerID != ownerID {
				continue
			}
			charges = append(charges, c)
			continue
		}
		shares, err := s.sharesAt(ec.HorseID, ec.Date)
		if err != nil {
			return nil, err
		}
		if len(shares) == 0 {
			// No co-owners on record: the charge's own owner pays in full.
			if ec.OwnerID != ownerID {
				continue
			}
			charges = append(charges, c)
			continue
		}
		var owned *models.HorseOwnership
		for j := range shares {
			if shares[j].OwnerID == ownerID {
				owned = &shares[j]
				break
			}
		}
		if owned == nil {
			continue
		}
		billed, err := s.ownerBilledForCharge(ec.ID, ownerID)
		if err != nil {
			return nil, err
		}
		if billed {
			continue
		}
		pct := owned.Percentage
		c.Amount = billing.Share(ec.Amount, pct)
		c.SharePercentage = &pct
		c.Description += fmt.Sprintf(" [%s%% share]", rateString(pct))
		charges = append(charges, c)
	}
	return charges, nil
}

// PreviewInvoice computes the charges for an owner/period without writing
// anything.
func (s *InvoiceService) PreviewInvoice(ownerID uint, periodStart, periodEnd time.Time) (*Preview, error) {
	if !periodEnd.After(periodStart) {
		return nil, ErrInvalidPeriod
	}
	livery, err := s.CalculateLiveryCharges(ownerID, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}
	extras, err := s.UnbilledExtraCharges(ownerID, periodEnd)
	if err != nil {
		return nil, err
	}
	subtotal := decimal.Zero
	for _, c := range livery {
		subtotal = subtotal.Add(c.Amount)
	}
	for _, c := range extras {
		subtotal = subtotal.Add(c.Amount)
	}
	return &Preview{LiveryCharges: livery, ExtraCharges: extras, Subtotal: subtotal, Total: subtotal}, nil
}

// CreateInvoice generates a draft invoice for an owner and period. It is
// all-or-nothing: any validation failure or conflict leaves nothing persisted.
func (s *InvoiceService) CreateInvoice(ownerID uint, periodStart, periodEnd time.Time, notes string) (*models.Invoice, error) {
	if !periodEnd.After(periodStart) {
		return nil, ErrInvalidPeriod
	}
	var owner models.Owner
	if err := s.DB.First(&owner, ownerID).Error; err != nil {
		return nil, fmt.Errorf("owner %d: %w", ownerID, err)
	}
	if existing, err := s.FindOverlappingInvoice(ownerID, periodStart, periodEnd); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, &ErrDuplicateInvoice{OwnerID: ownerID, Existing: existing}
	}

	preview, err := s.PreviewInvoice(ownerID, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}
	all := append(append([]Charge{}, preview.LiveryCharges...), preview.ExtraCharges...)
	if len(all) == 0 {
		return nil, ErrNothingToBill
	}

	var invoice models.Invoice
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		settings, err := models.GetSettings(tx)
		if err != nil {
			return err
		}
		number, err := settings.NextNumber(tx)
		if err != nil {
			return err
		}
		invoice = models.Invoice{
			OwnerID:          ownerID,
			InvoiceNumber:    number,
			PeriodStart:      periodStart,
			PeriodEnd:        periodEnd,
			Status:           models.InvoiceDraft,
			PaymentTermsDays: settings.DefaultPaymentTerms,
			DueDate:          periodEnd.AddDate(0, 0, settings.DefaultPaymentTerms),
			Subtotal:         preview.Subtotal,
			Total:            preview.Total,
			Notes:            notes,
		}
		if err := tx.Create(&invoice).Error; err != nil {
			return err
		}
		for _, c := range all {
			horseID := c.HorseID
			item := models.InvoiceLineItem{
				InvoiceID:           invoice.ID,
				HorseID:             &horseID,
				PlacementID:         c.PlacementID,
				ChargeID:            c.ChargeID,
				LineType:            c.LineType,
				Description:         c.Description,
				Quantity:            c.Quantity,
				UnitPrice:           c.UnitPrice,
				LineTotal:           c.Amount,
				OwnershipPercentage: c.SharePercentage,
			}
			if err := tx.Create(&item).Error; err != nil {
				return err
			}
			if c.ChargeID != nil {
				if err := markChargeBilled(tx, *c.ChargeID, invoice.ID, ownerID); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		// The unique (owner, period) index is the backstop against two
		// concurrent generations passing the pre-check together.
		if existing, ferr := s.FindOverlappingInvoice(ownerID, periodStart, periodEnd); ferr == nil && existing != nil {
			return nil, &ErrDuplicateInvoice{OwnerID: ownerID, Existing: existing}
		}
		return nil, err
	}
	if err := s.DB.Preload("LineItems").Preload("Owner").First(&invoice, invoice.ID).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

// markChargeBilled flags an extra charge invoiced. A split charge is only
// flagged once every co-owner holding a share on the charge date has a line
// item for it; until then it stays open for the remaining co-owners.
func markChargeBilled(tx *gorm.DB, chargeID, invoiceID, ownerID uint) error {
	var ec models.ExtraCharge
	if err := tx.First(&ec, chargeID).Error; err != nil {
		return err
	}
	if ec.SplitByOwnership {
		var shares []models.HorseOwnership
		err := tx.Where("horse_id = ? AND start_date <= ? AND (end_date IS NULL OR end_date > ?)",
			ec.HorseID, ec.Date, ec.Date).Find(&shares).Error
		if err != nil {
			return err
		}
		if len(shares) > 0 {
			var billedOwners []uint
			err := tx.Model(&models.InvoiceLineItem{}).
				Joins("JOIN invoices ON invoices.id = invoice_line_items.invoice_id").
				Where("invoice_line_items.charge_id = ?", ec.ID).
				Distinct("invoices.owner_id").
				Pluck("invoices.owner_id", &billedOwners).Error
			if err != nil {
				return err
			}
			billed := map[uint]bool{ownerID: true}
			for _, id := range billedOwners {
				billed[id] = true
			}
			for _, share := range shares {
				if !billed[share.OwnerID] {
					return nil
				}
			}
		}
	}
	return tx.Model(&models.ExtraCharge{}).Where("id = ?", ec.ID).
		Updates(map[string]any{"invoiced": true, "invoice_id": invoiceID}).Error
}

// MonthlyRun is the outcome of a monthly generation pass.
type MonthlyRun struct {
	Generated []models.Invoice
	Skipped   []uint // owners already invoiced for the period
	Empty     []uint // owners with nothing to bill
}

// GenerateMonthlyInvoices creates invoices for every owner with placement or
// ownership activity in the given calendar month. Owners already invoiced for
// an overlapping period are skipped, owners with nothing billable are
// reported, not errored.
func (s *InvoiceService) GenerateMonthlyInvoices(year int, month time.Month) (*MonthlyRun, error) {
	periodStart := billing.Date(year, month, 1)
	periodEnd := periodStart.AddDate(0, 1, 0)

	ownerIDs := map[uint]bool{}
	var fromPlacements []uint
	err := s.DB.Model(&models.Placement{}).Distinct("owner_id").
		Where("start_date < ? AND (end_date IS NULL OR end_date > ?)", periodEnd, periodStart).
		Pluck("owner_id", &fromPlacements).Error
	if err != nil {
		return nil, err
	}
	var fromShares []uint
	err = s.DB.Model(&models.HorseOwnership{}).Distinct("owner_id").
		Where("start_date < ? AND (end_date IS NULL OR end_date > ?)", periodEnd, periodStart).
		Pluck("owner_id", &fromShares).Error
	if err != nil {
		return nil, err
	}
	var fromCharges []uint
	err = s.DB.Model(&models.ExtraCharge{}).Distinct("owner_id").
		Where("invoiced = ? AND date < ?", false, periodEnd).
		Pluck("owner_id", &fromCharges).Error
	if err != nil {
		return nil, err
	}
	for _, id := range fromPlacements {
		ownerIDs[id] = true
	}
	for _, id := range fromShares {
		ownerIDs[id] = true
	}
	for _, id := range fromCharges {
		ownerIDs[id] = true
	}
	ordered := make([]uint, 0, len(ownerIDs))
	for id := range ownerIDs {
		ordered = append(ordered, id)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	run := &MonthlyRun{}
	for _, ownerID := range ordered {
		inv, err := s.CreateInvoice(ownerID, periodStart, periodEnd, "")
		switch {
		case err == nil:
			run.Generated = append(run.Generated, *inv)
		case errors.Is(err, ErrNothingToBill):
			run.Empty = append(run.Empty, ownerID)
		default:
			var dup *ErrDuplicateInvoice
			if errors.As(err, &dup) {
				run.Skipped = append(run.Skipped, ownerID)
				continue
			}
			return nil, fmt.Errorf("owner %d: %w", ownerID, err)
		}
	}
	return run, nil
}
