package handlers

import (
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/marchfield/liveryard/internal/httpx"
	"github.com/marchfield/liveryard/internal/models"
	"github.com/marchfield/liveryard/internal/services"
)

type HorseHandler struct {
	DB  *gorm.DB
	Svc *services.PlacementService
}

func NewHorseHandler(db *gorm.DB, svc *services.PlacementService) *HorseHandler {
	return &HorseHandler{DB: db, Svc: svc}
}

type horseRequest struct {
	Name           string `json:"name"`
	DateOfBirth    string `json:"date_of_birth,omitempty"`
	Age            *int   `json:"age,omitempty"`
	Color          string `json:"color,omitempty"`
	Sex            string `json:"sex,omitempty"`
	Breeding       string `json:"breeding,omitempty"`
	DamID          *uint  `json:"dam_id,omitempty"`
	SireName       string `json:"sire_name,omitempty"`
	Notes          string `json:"notes,omitempty"`
	PassportNumber string `json:"passport_number,omitempty"`
	HasPassport    *bool  `json:"has_passport,omitempty"`
	IsActive       *bool  `json:"is_active,omitempty"`
}

func (req *horseRequest) apply(h *models.Horse) map[string]string {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return map[string]string{"name": "required"}
	}
	dob, err := parseDatePtr(req.DateOfBirth)
	if err != nil {
		return map[string]string{"date_of_birth": "invalid_date"}
	}
	h.Name = req.Name
	h.DateOfBirth = dob
	h.Age = req.Age
	h.Color = req.Color
	h.Sex = req.Sex
	h.Breeding = req.Breeding
	h.DamID = req.DamID
	h.SireName = req.SireName
	h.Notes = req.Notes
	h.PassportNumber = req.PassportNumber
	if req.HasPassport != nil {
		h.HasPassport = *req.HasPassport
	}
	if req.IsActive != nil {
		h.IsActive = *req.IsActive
	}
	return nil
}

// Collection: GET lists horses (active by default), POST creates one.
func (h *HorseHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit, offset := pagination(r)
		q := h.DB.Model(&models.Horse{})
		if r.URL.Query().Get("all") == "" {
			q = q.Where("is_active = ?", true)
		}
		if search := strings.TrimSpace(r.URL.Query().Get("q")); search != "" {
			q = q.Where("lower(name) LIKE ?", "%"+strings.ToLower(search)+"%")
		}
		var total int64
		q.Count(&total)
		var horses []models.Horse
		if err := q.Order("name").Limit(limit).Offset(offset).Find(&horses).Error; err != nil {
			dbError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"items": horses, "total": total, "limit": limit, "offset": offset})
	case http.MethodPost:
		var req horseRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		horse := models.Horse{HasPassport: true, IsActive: true}
		if fe := req.apply(&horse); fe != nil {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", fe)
			return
		}
		if err := h.DB.Create(&horse).Error; err != nil {
			dbError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, horse)
	default:
		methodNotAllowed(w)
	}
}

// Item: GET/PUT/DELETE a single horse by ?id=. GET includes the current
// placement and calculated age.
func (h *HorseHandler) Item(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r)
	if !ok {
		return
	}
	var horse models.Horse
	if err := h.DB.First(&horse, id).Error; err != nil {
		dbError(w, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		current, err := h.Svc.CurrentPlacement(horse.ID)
		if err != nil {
			dbError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{
			"horse":             horse,
			"age":               horse.CalculatedAge(time.Now().UTC()),
			"current_placement": current,
		})
	case http.MethodPut:
		var req horseRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if fe := req.apply(&horse); fe != nil {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", fe)
			return
		}
		if err := h.DB.Save(&horse).Error; err != nil {
			dbError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, horse)
	case http.MethodDelete:
		// Horses are deactivated, never hard-deleted, so history keeps billing.
		if err := h.DB.Model(&horse).Update("is_active", false).Error; err != nil {
			dbError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
	default:
		methodNotAllowed(w)
	}
}
