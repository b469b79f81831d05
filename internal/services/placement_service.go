package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/marchfield/liveryard/internal/models"
)

var (
	// ErrPlacementOverlap: a horse can only be in one place at a time.
	ErrPlacementOverlap = errors.New("horse already has a placement overlapping these dates")
	// ErrOwnershipOverlap: an owner cannot hold two concurrent shares in the same horse.
	ErrOwnershipOverlap = errors.New("owner already has an overlapping ownership record for this horse")
	// ErrOwnershipExceeds100: active shares of a horse must not exceed 100%.
	ErrOwnershipExceeds100 = errors.New("total ownership for the horse would exceed 100%")
	// ErrNoCurrentPlacement: a move needs either an open placement to derive
	// owner/rate from, or both supplied explicitly.
	ErrNoCurrentPlacement = errors.New("horse has no current placement; owner and rate type are required")
	// ErrInvalidDates: a closed range must contain at least one day.
	ErrInvalidDates = errors.New("end date must be after start date")
)

// PlacementService enforces the placement ledger's invariants regardless of
// which entry point writes to it.
type PlacementService struct {
	DB *gorm.DB
}

func NewPlacementService(db *gorm.DB) *PlacementService { return &PlacementService{DB: db} }

// CurrentPlacement returns the horse's open placement, or nil.
func (s *PlacementService) CurrentPlacement(horseID uint) (*models.Placement, error) {
	var p models.Placement
	err := s.DB.Preload("Location").Preload("RateType").Preload("Owner").
		Where("horse_id = ? AND end_date IS NULL", horseID).
		Order("start_date desc").First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// checkOverlap rejects a placement that shares days with any other placement
// of the same horse. excludeID skips the record itself on update.
func (s *PlacementService) checkOverlap(tx *gorm.DB, p *models.Placement, excludeID uint) error {
	var existing []models.Placement
	q := tx.Where("horse_id = ?", p.HorseID)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Find(&existing).Error; err != nil {
		return err
	}
	for i := range existing {
		if p.Overlaps(&existing[i]) {
			end := "present"
			if existing[i].EndDate != nil {
				end = existing[i].EndDate.Format("2006-01-02")
			}
			return fmt.Errorf("conflicts with placement %d (%s to %s): %w",
				existing[i].ID, existing[i].StartDate.Format("2006-01-02"), end, ErrPlacementOverlap)
		}
	}
	return nil
}

// Create validates and persists a new placement.
func (s *PlacementService) Create(p *models.Placement) error {
	if p.EndDate != nil && !p.EndDate.After(p.StartDate) {
		return ErrInvalidDates
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := s.checkOverlap(tx, p, 0); err != nil {
			return err
		}
		return tx.Create(p).Error
	})
}

// Update validates and saves changes to an existing placement.
func (s *PlacementService) Update(p *models.Placement) error {
	if p.EndDate != nil && !p.EndDate.After(p.StartDate) {
		return ErrInvalidDates
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := s.checkOverlap(tx, p, p.ID); err != nil {
			return err
		}
		return tx.Save(p).Error
	})
}

// Move ends the horse's open placement on moveDate and opens a new one at the
// given location the same day, atomically. Owner and rate type fall back to
// the current placement's when zero.
func (s *PlacementService) Move(horseID, locationID, ownerID, rateTypeID uint, moveDate time.Time, notes string) (*models.Placement, error) {
	current, err := s.CurrentPlacement(horseID)
	if err != nil {
		return nil, err
	}
	if ownerID == 0 || rateTypeID == 0 {
		if current == nil {
			return nil, ErrNoCurrentPlacement
		}
		if ownerID == 0 {
			ownerID = current.OwnerID
		}
		if rateTypeID == 0 {
			rateTypeID = current.RateTypeID
		}
	}
	next := &models.Placement{
		HorseID:    horseID,
		OwnerID:    ownerID,
		LocationID: locationID,
		RateTypeID: rateTypeID,
		StartDate:  moveDate,
		Notes:      notes,
	}
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if current != nil {
			// Half-open ranges: the old placement ends the day the new one starts.
			if err := tx.Model(&models.Placement{}).Where("id = ?", current.ID).
				Update("end_date", moveDate).Error; err != nil {
				return err
			}
		}
		if err := s.checkOverlap(tx, next, 0); err != nil {
			return err
		}
		return tx.Create(next).Error
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

// CreateOwnership validates and persists a fractional ownership share.
func (s *PlacementService) CreateOwnership(o *models.HorseOwnership) error {
	if o.Percentage.Sign() <= 0 || o.Percentage.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("ownership percentage must be within (0, 100]")
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var overlapping []models.HorseOwnership
		err := tx.Where("horse_id = ? AND owner_id = ? AND start_date < ? AND (end_date IS NULL OR end_date > ?)",
			o.HorseID, o.OwnerID, endOrMax(o.EndDate), o.StartDate).
			Find(&overlapping).Error
		if err != nil {
			return err
		}
		if len(overlapping) > 0 {
			return ErrOwnershipOverlap
		}
		// Shares active on the new share's start date must stay within 100%.
		var active []models.HorseOwnership
		err = tx.Where("horse_id = ? AND start_date <= ? AND (end_date IS NULL OR end_date > ?)",
			o.HorseID, o.StartDate, o.StartDate).
			Find(&active).Error
		if err != nil {
			return err
		}
		total := o.Percentage
		for _, a := range active {
			total = total.Add(a.Percentage)
		}
		if total.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("active shares would total %s%%: %w", total, ErrOwnershipExceeds100)
		}
		return tx.Create(o).Error
	})
}

// EndOwnership closes a share on the given date.
func (s *PlacementService) EndOwnership(id uint, endDate time.Time) error {
	return s.DB.Model(&models.HorseOwnership{}).Where("id = ?", id).
		Update("end_date", endDate).Error
}

func endOrMax(end *time.Time) time.Time {
	if end != nil {
		return *end
	}
	return time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)
}
