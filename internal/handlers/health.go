package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/marchfield/liveryard/internal/httpx"
	"github.com/marchfield/liveryard/internal/models"
)

type VaccinationTypeHandler struct {
	DB *gorm.DB
}

func NewVaccinationTypeHandler(db *gorm.DB) *VaccinationTypeHandler {
	return &VaccinationTypeHandler{DB: db}
}

// Collection: GET lists vaccination schedules, POST creates one.
func (h *VaccinationTypeHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		var types []models.VaccinationType
		if err := h.DB.Where("is_active = ?", true).Order("name").Find(&types).Error; err != nil {
			dbError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"items": types})
	case http.MethodPost:
		var vt models.VaccinationType
		if !decodeJSON(w, r, &vt) {
			return
		}
		vt.ID = 0
		fe := map[string]string{}
		if vt.Name == "" {
			fe["name"] = "required"
		}
		if vt.IntervalMonths <= 0 {
			fe["interval_months"] = "must_be_positive"
		}
		if vt.ReminderDaysBefore < 0 {
			fe["reminder_days_before"] = "must_not_be_negative"
		}
		if len(fe) > 0 {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", fe)
			return
		}
		vt.IsActive = true
		if err := h.DB.Create(&vt).Error; err != nil {
			dbError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, vt)
	default:
		methodNotAllowed(w)
	}
}

type VaccinationHandler struct {
	DB *gorm.DB
}

func NewVaccinationHandler(db *gorm.DB) *VaccinationHandler { return &VaccinationHandler{DB: db} }

// Collection: GET lists vaccinations (optionally by horse), POST records one.
// The next due date follows from the type's interval with calendar clamping.
func (h *VaccinationHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := h.DB.Preload("Horse").Preload("VaccinationType")
		if v := r.URL.Query().Get("horse_id"); v != "" {
			if id, err := strconv.Atoi(v); err == nil {
				q = q.Where("horse_id = ?", id)
			}
		}
		var vaccinations []models.Vaccination
		if err := q.Order("next_due_date").Find(&vaccinations).Error; err != nil {
			dbError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"items": vaccinations})
	case http.MethodPost:
		var req struct {
			HorseID           uint   `json:"horse_id"`
			VaccinationTypeID uint   `json:"vaccination_type_id"`
			DateGiven         string `json:"date_given"`
			VetName           string `json:"vet_name,omitempty"`
			BatchNumber       string `json:"batch_number,omitempty"`
			Notes             string `json:"notes,omitempty"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.HorseID == 0 || req.VaccinationTypeID == 0 {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"horse_id": "required", "vaccination_type_id": "required"})
			return
		}
		given, err := parseDate(req.DateGiven)
		if err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"date_given": "invalid_date"})
			return
		}
		var vt models.VaccinationType
		if err := h.DB.First(&vt, req.VaccinationTypeID).Error; err != nil {
			dbError(w, err)
			return
		}
		v := models.Vaccination{
			HorseID:           req.HorseID,
			VaccinationTypeID: vt.ID,
			DateGiven:         given,
			NextDueDate:       models.AddMonths(given, vt.IntervalMonths),
			VetName:           req.VetName,
			BatchNumber:       req.BatchNumber,
			Notes:             req.Notes,
		}
		if err := h.DB.Create(&v).Error; err != nil {
			dbError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, v)
	default:
		methodNotAllowed(w)
	}
}

type FarrierVisitHandler struct {
	DB *gorm.DB
}

func NewFarrierVisitHandler(db *gorm.DB) *FarrierVisitHandler { return &FarrierVisitHandler{DB: db} }

// Collection: GET lists visits (optionally by horse), POST records one.
// Visits default to a six-week cycle; a positive cost raises an extra charge
// against the horse's current billing owner.
func (h *FarrierVisitHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := h.DB.Preload("Horse").Preload("ServiceProvider")
		if v := r.URL.Query().Get("horse_id"); v != "" {
			if id, err := strconv.Atoi(v); err == nil {
				q = q.Where("horse_id = ?", id)
			}
		}
		var visits []models.FarrierVisit
		if err := q.Order("date desc").Find(&visits).Error; err != nil {
			dbError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"items": visits})
	case http.MethodPost:
		var req struct {
			HorseID           uint            `json:"horse_id"`
			Date              string          `json:"date"`
			ServiceProviderID *uint           `json:"service_provider_id,omitempty"`
			WorkDone          string          `json:"work_done,omitempty"`
			NextDueDate       string          `json:"next_due_date,omitempty"`
			Cost              decimal.Decimal `json:"cost"`
			Notes             string          `json:"notes,omitempty"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.HorseID == 0 {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"horse_id": "required"})
			return
		}
		date, err := parseDate(req.Date)
		if err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"date": "invalid_date"})
			return
		}
		nextDue, err := parseDatePtr(req.NextDueDate)
		if err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"next_due_date": "invalid_date"})
			return
		}
		if nextDue == nil {
			d := date.AddDate(0, 0, 42)
			nextDue = &d
		}
		if req.WorkDone == "" {
			req.WorkDone = models.FarrierTrim
		}
		visit := models.FarrierVisit{
			HorseID:           req.HorseID,
			Date:              date,
			ServiceProviderID: req.ServiceProviderID,
			WorkDone:          req.WorkDone,
			NextDueDate:       nextDue,
			Cost:              req.Cost,
			Notes:             req.Notes,
		}
		err = h.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&visit).Error; err != nil {
				return err
			}
			if visit.Cost.Sign() <= 0 {
				return nil
			}
			// Bill the cost to whoever currently pays for the horse.
			var placement models.Placement
			err := tx.Where("horse_id = ? AND end_date IS NULL", visit.HorseID).
				Order("start_date desc").First(&placement).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil // no current placement, nothing to bill
			}
			if err != nil {
				return err
			}
			charge := models.ExtraCharge{
				HorseID:           visit.HorseID,
				OwnerID:           placement.OwnerID,
				ServiceProviderID: visit.ServiceProviderID,
				ChargeType:        models.ChargeFarrier,
				Date:              visit.Date,
				Description:       "Farrier: " + visit.WorkDone,
				Amount:            visit.Cost,
				SplitByOwnership:  true,
			}
			if err := tx.Create(&charge).Error; err != nil {
				return err
			}
			return tx.Model(&visit).Update("extra_charge_id", charge.ID).Error
		})
		if err != nil {
			dbError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, visit)
	default:
		methodNotAllowed(w)
	}
}
