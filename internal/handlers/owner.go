package handlers

import (
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/marchfield/liveryard/internal/httpx"
	"github.com/marchfield/liveryard/internal/models"
)

type OwnerHandler struct {
	DB *gorm.DB
}

func NewOwnerHandler(db *gorm.DB) *OwnerHandler { return &OwnerHandler{DB: db} }

// Collection: GET lists owners, POST creates one.
func (h *OwnerHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit, offset := pagination(r)
		q := h.DB.Model(&models.Owner{})
		if search := strings.TrimSpace(r.URL.Query().Get("q")); search != "" {
			like := "%" + strings.ToLower(search) + "%"
			q = q.Where("lower(name) LIKE ? OR lower(email) LIKE ?", like, like)
		}
		var total int64
		q.Count(&total)
		var owners []models.Owner
		if err := q.Order("name").Limit(limit).Offset(offset).Find(&owners).Error; err != nil {
			dbError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"items": owners, "total": total, "limit": limit, "offset": offset})
	case http.MethodPost:
		var owner models.Owner
		if !decodeJSON(w, r, &owner) {
			return
		}
		owner.ID = 0
		owner.Name = strings.TrimSpace(owner.Name)
		if owner.Name == "" {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"name": "required"})
			return
		}
		if err := h.DB.Create(&owner).Error; err != nil {
			dbError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, owner)
	default:
		methodNotAllowed(w)
	}
}

// Item: GET/PUT/DELETE a single owner by ?id=.
func (h *OwnerHandler) Item(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r)
	if !ok {
		return
	}
	var owner models.Owner
	if err := h.DB.First(&owner, id).Error; err != nil {
		dbError(w, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		httpx.JSON(w, http.StatusOK, owner)
	case http.MethodPut:
		var in models.Owner
		if !decodeJSON(w, r, &in) {
			return
		}
		in.Name = strings.TrimSpace(in.Name)
		if in.Name == "" {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"name": "required"})
			return
		}
		owner.Name = in.Name
		owner.Email = in.Email
		owner.Phone = in.Phone
		owner.Address = in.Address
		owner.AccountCode = in.AccountCode
		owner.Notes = in.Notes
		if err := h.DB.Save(&owner).Error; err != nil {
			dbError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, owner)
	case http.MethodDelete:
		// Owners with invoices or placements stay on file.
		var count int64
		h.DB.Model(&models.Invoice{}).Where("owner_id = ?", id).Count(&count)
		if count > 0 {
			httpx.JSONError(w, http.StatusConflict, "owner_has_invoices", nil)
			return
		}
		h.DB.Model(&models.Placement{}).Where("owner_id = ?", id).Count(&count)
		if count > 0 {
			httpx.JSONError(w, http.StatusConflict, "owner_has_placements", nil)
			return
		}
		if err := h.DB.Delete(&models.Owner{}, id).Error; err != nil {
			dbError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}
