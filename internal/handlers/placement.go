package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"gorm.io/gorm"

	"github.com/marchfield/liveryard/internal/httpx"
	"github.com/marchfield/liveryard/internal/models"
	"github.com/marchfield/liveryard/internal/services"
)

type PlacementHandler struct {
	DB  *gorm.DB
	Svc *services.PlacementService
}

func NewPlacementHandler(db *gorm.DB, svc *services.PlacementService) *PlacementHandler {
	return &PlacementHandler{DB: db, Svc: svc}
}

type placementRequest struct {
	HorseID    uint   `json:"horse_id"`
	OwnerID    uint   `json:"owner_id"`
	LocationID uint   `json:"location_id"`
	RateTypeID uint   `json:"rate_type_id"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

func (req *placementRequest) apply(p *models.Placement) map[string]string {
	fe := map[string]string{}
	if req.HorseID == 0 {
		fe["horse_id"] = "required"
	}
	if req.OwnerID == 0 {
		fe["owner_id"] = "required"
	}
	if req.LocationID == 0 {
		fe["location_id"] = "required"
	}
	if req.RateTypeID == 0 {
		fe["rate_type_id"] = "required"
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		fe["start_date"] = "invalid_date"
	}
	end, err := parseDatePtr(req.EndDate)
	if err != nil {
		fe["end_date"] = "invalid_date"
	}
	if len(fe) > 0 {
		return fe
	}
	p.HorseID = req.HorseID
	p.OwnerID = req.OwnerID
	p.LocationID = req.LocationID
	p.RateTypeID = req.RateTypeID
	p.StartDate = start
	p.EndDate = end
	p.Notes = req.Notes
	return nil
}

// placementError maps the ledger's overlap conflict apart from plain
// validation failures.
func placementError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrPlacementOverlap):
		httpx.JSONError(w, http.StatusConflict, "placement_overlap", err.Error())
	case errors.Is(err, services.ErrNoCurrentPlacement):
		httpx.JSONError(w, http.StatusBadRequest, "no_current_placement", err.Error())
	case errors.Is(err, services.ErrInvalidDates):
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"end_date": "must_follow_start"})
	case errors.Is(err, gorm.ErrRecordNotFound):
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
	default:
		httpx.JSONError(w, http.StatusInternalServerError, "db_error", nil)
	}
}

// Collection: GET lists placements (optionally by horse/owner, current only),
// POST creates one.
func (h *PlacementHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := h.DB.Preload("Horse").Preload("Owner").Preload("Location").Preload("RateType")
		if v := r.URL.Query().Get("horse_id"); v != "" {
			if id, err := strconv.Atoi(v); err == nil {
				q = q.Where("horse_id = ?", id)
			}
		}
		if v := r.URL.Query().Get("owner_id"); v != "" {
			if id, err := strconv.Atoi(v); err == nil {
				q = q.Where("owner_id = ?", id)
			}
		}
		if r.URL.Query().Get("current") != "" {
			q = q.Where("end_date IS NULL")
		}
		var placements []models.Placement
		if err := q.Order("start_date desc").Find(&placements).Error; err != nil {
			dbError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"items": placements})
	case http.MethodPost:
		var req placementRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		var p models.Placement
		if fe := req.apply(&p); fe != nil {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", fe)
			return
		}
		if err := h.Svc.Create(&p); err != nil {
			placementError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, p)
	default:
		methodNotAllowed(w)
	}
}

// Item: GET/PUT/DELETE a single placement by ?id=.
func (h *PlacementHandler) Item(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r)
	if !ok {
		return
	}
	var p models.Placement
	if err := h.DB.Preload("Horse").Preload("Owner").Preload("Location").Preload("RateType").
		First(&p, id).Error; err != nil {
		dbError(w, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		httpx.JSON(w, http.StatusOK, p)
	case http.MethodPut:
		var req placementRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if fe := req.apply(&p); fe != nil {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", fe)
			return
		}
		if err := h.Svc.Update(&p); err != nil {
			placementError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, p)
	case http.MethodDelete:
		// Billed placements are part of invoice history.
		var count int64
		h.DB.Model(&models.InvoiceLineItem{}).Where("placement_id = ?", id).Count(&count)
		if count > 0 {
			httpx.JSONError(w, http.StatusConflict, "placement_invoiced", nil)
			return
		}
		if err := h.DB.Delete(&models.Placement{}, id).Error; err != nil {
			dbError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

// Move: POST /placements/move ends the open placement and opens a new one the
// same day.
func (h *PlacementHandler) Move(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		HorseID    uint   `json:"horse_id"`
		LocationID uint   `json:"location_id"`
		OwnerID    uint   `json:"owner_id,omitempty"`
		RateTypeID uint   `json:"rate_type_id,omitempty"`
		MoveDate   string `json:"move_date"`
		Notes      string `json:"notes,omitempty"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.HorseID == 0 || req.LocationID == 0 {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"horse_id": "required", "location_id": "required"})
		return
	}
	moveDate, err := parseDate(req.MoveDate)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"move_date": "invalid_date"})
		return
	}
	next, err := h.Svc.Move(req.HorseID, req.LocationID, req.OwnerID, req.RateTypeID, moveDate, req.Notes)
	if err != nil {
		placementError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, next)
}
