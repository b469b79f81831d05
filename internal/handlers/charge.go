package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/marchfield/liveryard/internal/httpx"
	"github.com/marchfield/liveryard/internal/models"
)

type ServiceProviderHandler struct {
	DB *gorm.DB
}

func NewServiceProviderHandler(db *gorm.DB) *ServiceProviderHandler {
	return &ServiceProviderHandler{DB: db}
}

// Collection: GET lists providers, POST creates one.
func (h *ServiceProviderHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := h.DB.Order("name")
		if t := r.URL.Query().Get("type"); t != "" {
			q = q.Where("provider_type = ?", t)
		}
		if r.URL.Query().Get("all") == "" {
			q = q.Where("is_active = ?", true)
		}
		var providers []models.ServiceProvider
		if err := q.Find(&providers).Error; err != nil {
			dbError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"items": providers})
	case http.MethodPost:
		var p models.ServiceProvider
		if !decodeJSON(w, r, &p) {
			return
		}
		p.ID = 0
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"name": "required"})
			return
		}
		if p.ProviderType == "" {
			p.ProviderType = models.ProviderOther
		}
		p.IsActive = true
		if err := h.DB.Create(&p).Error; err != nil {
			dbError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, p)
	default:
		methodNotAllowed(w)
	}
}

// Item: GET/PUT/DELETE a single provider by ?id=.
func (h *ServiceProviderHandler) Item(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r)
	if !ok {
		return
	}
	var p models.ServiceProvider
	if err := h.DB.First(&p, id).Error; err != nil {
		dbError(w, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		httpx.JSON(w, http.StatusOK, p)
	case http.MethodPut:
		var in models.ServiceProvider
		if !decodeJSON(w, r, &in) {
			return
		}
		in.Name = strings.TrimSpace(in.Name)
		if in.Name == "" {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"name": "required"})
			return
		}
		p.Name = in.Name
		p.ProviderType = in.ProviderType
		p.Phone = in.Phone
		p.Email = in.Email
		p.Address = in.Address
		p.Notes = in.Notes
		p.IsActive = in.IsActive
		if err := h.DB.Save(&p).Error; err != nil {
			dbError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, p)
	case http.MethodDelete:
		if err := h.DB.Model(&p).Update("is_active", false).Error; err != nil {
			dbError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
	default:
		methodNotAllowed(w)
	}
}

type ExtraChargeHandler struct {
	DB *gorm.DB
}

func NewExtraChargeHandler(db *gorm.DB) *ExtraChargeHandler { return &ExtraChargeHandler{DB: db} }

type extraChargeRequest struct {
	HorseID           uint            `json:"horse_id"`
	OwnerID           uint            `json:"owner_id"`
	ServiceProviderID *uint           `json:"service_provider_id,omitempty"`
	ChargeType        string          `json:"charge_type"`
	Date              string          `json:"date"`
	Description       string          `json:"description"`
	Amount            decimal.Decimal `json:"amount"`
	SplitByOwnership  *bool           `json:"split_by_ownership,omitempty"`
	Notes             string          `json:"notes,omitempty"`
}

func (req *extraChargeRequest) apply(c *models.ExtraCharge) map[string]string {
	fe := map[string]string{}
	if req.HorseID == 0 {
		fe["horse_id"] = "required"
	}
	if req.OwnerID == 0 {
		fe["owner_id"] = "required"
	}
	req.Description = strings.TrimSpace(req.Description)
	if req.Description == "" {
		fe["description"] = "required"
	}
	if req.Amount.Sign() <= 0 {
		fe["amount"] = "must_be_positive"
	}
	date, err := parseDate(req.Date)
	if err != nil {
		fe["date"] = "invalid_date"
	}
	if len(fe) > 0 {
		return fe
	}
	c.HorseID = req.HorseID
	c.OwnerID = req.OwnerID
	c.ServiceProviderID = req.ServiceProviderID
	c.ChargeType = req.ChargeType
	if c.ChargeType == "" {
		c.ChargeType = models.ChargeOther
	}
	c.Date = date
	c.Description = req.Description
	c.Amount = req.Amount
	if req.SplitByOwnership != nil {
		c.SplitByOwnership = *req.SplitByOwnership
	}
	c.Notes = req.Notes
	return nil
}

// Collection: GET lists charges (filter by horse/owner/unbilled), POST
// creates one.
func (h *ExtraChargeHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit, offset := pagination(r)
		q := h.DB.Preload("Horse").Preload("Owner").Preload("ServiceProvider").Model(&models.ExtraCharge{})
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
		if r.URL.Query().Get("unbilled") != "" {
			q = q.Where("invoiced = ?", false)
		}
		var total int64
		q.Count(&total)
		var charges []models.ExtraCharge
		if err := q.Order("date desc").Limit(limit).Offset(offset).Find(&charges).Error; err != nil {
			dbError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"items": charges, "total": total, "limit": limit, "offset": offset})
	case http.MethodPost:
		var req extraChargeRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		charge := models.ExtraCharge{SplitByOwnership: true}
		if fe := req.apply(&charge); fe != nil {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", fe)
			return
		}
		if err := h.DB.Create(&charge).Error; err != nil {
			dbError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, charge)
	default:
		methodNotAllowed(w)
	}
}

// Item: GET/PUT/DELETE a single charge by ?id=. Invoiced charges are frozen.
func (h *ExtraChargeHandler) Item(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r)
	if !ok {
		return
	}
	var charge models.ExtraCharge
	if err := h.DB.Preload("Horse").Preload("Owner").Preload("ServiceProvider").
		First(&charge, id).Error; err != nil {
		dbError(w, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		httpx.JSON(w, http.StatusOK, charge)
	case http.MethodPut:
		if charge.Invoiced {
			httpx.JSONError(w, http.StatusConflict, "charge_invoiced", nil)
			return
		}
		var req extraChargeRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if fe := req.apply(&charge); fe != nil {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", fe)
			return
		}
		if err := h.DB.Save(&charge).Error; err != nil {
			dbError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, charge)
	case http.MethodDelete:
		if charge.Invoiced {
			httpx.JSONError(w, http.StatusConflict, "charge_invoiced", nil)
			return
		}
		if err := h.DB.Delete(&models.ExtraCharge{}, id).Error; err != nil {
			dbError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}
