package handlers

import (
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/marchfield/liveryard/internal/httpx"
	"github.com/marchfield/liveryard/internal/models"
)

type LocationHandler struct {
	DB *gorm.DB
}

func NewLocationHandler(db *gorm.DB) *LocationHandler { return &LocationHandler{DB: db} }

// Collection: GET lists locations with occupancy, POST creates one.
func (h *LocationHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		var locations []models.Location
		if err := h.DB.Order("site, name").Find(&locations).Error; err != nil {
			dbError(w, err)
			return
		}
		type row struct {
			models.Location
			Occupied  int64 `json:"occupied"`
			Available *int  `json:"available"`
		}
		items := make([]row, 0, len(locations))
		for _, loc := range locations {
			var occupied int64
			h.DB.Model(&models.Placement{}).
				Where("location_id = ? AND end_date IS NULL", loc.ID).
				Count(&occupied)
			items = append(items, row{Location: loc, Occupied: occupied, Available: loc.Availability(int(occupied))})
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodPost:
		var loc models.Location
		if !decodeJSON(w, r, &loc) {
			return
		}
		loc.ID = 0
		loc.Name = strings.TrimSpace(loc.Name)
		if loc.Name == "" {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"name": "required"})
			return
		}
		if err := h.DB.Create(&loc).Error; err != nil {
			dbError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, loc)
	default:
		methodNotAllowed(w)
	}
}

// Item: GET/PUT/DELETE a single location by ?id=.
func (h *LocationHandler) Item(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r)
	if !ok {
		return
	}
	var loc models.Location
	if err := h.DB.First(&loc, id).Error; err != nil {
		dbError(w, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		var occupants []models.Placement
		if err := h.DB.Preload("Horse").
			Where("location_id = ? AND end_date IS NULL", id).
			Find(&occupants).Error; err != nil {
			dbError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"location": loc, "occupants": occupants})
	case http.MethodPut:
		var in models.Location
		if !decodeJSON(w, r, &in) {
			return
		}
		in.Name = strings.TrimSpace(in.Name)
		if in.Name == "" {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"name": "required"})
			return
		}
		loc.Name = in.Name
		loc.Site = in.Site
		loc.Description = in.Description
		loc.Capacity = in.Capacity
		if err := h.DB.Save(&loc).Error; err != nil {
			dbError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, loc)
	case http.MethodDelete:
		var count int64
		h.DB.Model(&models.Placement{}).Where("location_id = ?", id).Count(&count)
		if count > 0 {
			httpx.JSONError(w, http.StatusConflict, "location_has_placements", nil)
			return
		}
		if err := h.DB.Delete(&models.Location{}, id).Error; err != nil {
			dbError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}
