package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/marchfield/liveryard/internal/httpx"
	"github.com/marchfield/liveryard/internal/models"
	"github.com/marchfield/liveryard/internal/services"
)

type OwnershipHandler struct {
	DB  *gorm.DB
	Svc *services.PlacementService
}

func NewOwnershipHandler(db *gorm.DB, svc *services.PlacementService) *OwnershipHandler {
	return &OwnershipHandler{DB: db, Svc: svc}
}

// Collection: GET lists shares (optionally by horse), POST creates one.
func (h *OwnershipHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := h.DB.Preload("Horse").Preload("Owner")
		if v := r.URL.Query().Get("horse_id"); v != "" {
			if id, err := strconv.Atoi(v); err == nil {
				q = q.Where("horse_id = ?", id)
			}
		}
		var shares []models.HorseOwnership
		if err := q.Order("start_date desc").Find(&shares).Error; err != nil {
			dbError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"items": shares})
	case http.MethodPost:
		var req struct {
			HorseID    uint            `json:"horse_id"`
			OwnerID    uint            `json:"owner_id"`
			Percentage decimal.Decimal `json:"percentage"`
			StartDate  string          `json:"start_date"`
			EndDate    string          `json:"end_date,omitempty"`
			Notes      string          `json:"notes,omitempty"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.HorseID == 0 || req.OwnerID == 0 {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"horse_id": "required", "owner_id": "required"})
			return
		}
		start, err := parseDate(req.StartDate)
		if err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"start_date": "invalid_date"})
			return
		}
		end, err := parseDatePtr(req.EndDate)
		if err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"end_date": "invalid_date"})
			return
		}
		share := models.HorseOwnership{
			HorseID:    req.HorseID,
			OwnerID:    req.OwnerID,
			Percentage: req.Percentage,
			StartDate:  start,
			EndDate:    end,
			Notes:      req.Notes,
		}
		if err := h.Svc.CreateOwnership(&share); err != nil {
			switch {
			case errors.Is(err, services.ErrOwnershipOverlap):
				httpx.JSONError(w, http.StatusConflict, "ownership_overlap", err.Error())
			case errors.Is(err, services.ErrOwnershipExceeds100):
				httpx.JSONError(w, http.StatusConflict, "ownership_exceeds_100", err.Error())
			default:
				httpx.JSONError(w, http.StatusBadRequest, "validation_failed", err.Error())
			}
			return
		}
		httpx.JSON(w, http.StatusCreated, share)
	default:
		methodNotAllowed(w)
	}
}

// End: POST /ownerships/end?id=... closes a share on the given date.
func (h *OwnershipHandler) End(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	id, ok := queryID(w, r)
	if !ok {
		return
	}
	var req struct {
		EndDate string `json:"end_date"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"end_date": "invalid_date"})
		return
	}
	var share models.HorseOwnership
	if err := h.DB.First(&share, id).Error; err != nil {
		dbError(w, err)
		return
	}
	if !end.After(share.StartDate) {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"end_date": "must_follow_start"})
		return
	}
	if err := h.Svc.EndOwnership(id, end); err != nil {
		dbError(w, err)
		return
	}
	share.EndDate = &end
	httpx.JSON(w, http.StatusOK, share)
}
