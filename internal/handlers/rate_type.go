package handlers

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/marchfield/liveryard/internal/httpx"
	"github.com/marchfield/liveryard/internal/models"
)

type RateTypeHandler struct {
	DB *gorm.DB
}

func NewRateTypeHandler(db *gorm.DB) *RateTypeHandler { return &RateTypeHandler{DB: db} }

type rateTypeRequest struct {
	Name        string          `json:"name"`
	Period      string          `json:"period"`
	DailyRate   decimal.Decimal `json:"daily_rate"`
	MonthlyRate decimal.Decimal `json:"monthly_rate"`
	Description string          `json:"description,omitempty"`
	IsActive    *bool           `json:"is_active,omitempty"`
}

func (req *rateTypeRequest) apply(rt *models.RateType) map[string]string {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return map[string]string{"name": "required"}
	}
	if req.Period == "" {
		req.Period = models.RatePeriodDaily
	}
	if req.Period != models.RatePeriodDaily && req.Period != models.RatePeriodMonthly {
		return map[string]string{"period": "invalid_period"}
	}
	if req.Period == models.RatePeriodDaily && req.DailyRate.Sign() <= 0 {
		return map[string]string{"daily_rate": "must_be_positive"}
	}
	if req.Period == models.RatePeriodMonthly && req.MonthlyRate.Sign() <= 0 {
		return map[string]string{"monthly_rate": "must_be_positive"}
	}
	rt.Name = req.Name
	rt.Period = req.Period
	rt.DailyRate = req.DailyRate
	rt.MonthlyRate = req.MonthlyRate
	rt.Description = req.Description
	if req.IsActive != nil {
		rt.IsActive = *req.IsActive
	}
	return nil
}

// Collection: GET lists rate types, POST creates one.
func (h *RateTypeHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		var rates []models.RateType
		q := h.DB.Order("name")
		if r.URL.Query().Get("all") == "" {
			q = q.Where("is_active = ?", true)
		}
		if err := q.Find(&rates).Error; err != nil {
			dbError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"items": rates})
	case http.MethodPost:
		var req rateTypeRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		rt := models.RateType{IsActive: true}
		if fe := req.apply(&rt); fe != nil {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", fe)
			return
		}
		if err := h.DB.Create(&rt).Error; err != nil {
			dbError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, rt)
	default:
		methodNotAllowed(w)
	}
}

// Item: GET/PUT/DELETE a single rate type by ?id=. Rate changes never touch
// issued invoices; line items froze the price at generation time.
func (h *RateTypeHandler) Item(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r)
	if !ok {
		return
	}
	var rt models.RateType
	if err := h.DB.First(&rt, id).Error; err != nil {
		dbError(w, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		httpx.JSON(w, http.StatusOK, rt)
	case http.MethodPut:
		var req rateTypeRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if fe := req.apply(&rt); fe != nil {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", fe)
			return
		}
		if err := h.DB.Save(&rt).Error; err != nil {
			dbError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, rt)
	case http.MethodDelete:
		var count int64
		h.DB.Model(&models.Placement{}).Where("rate_type_id = ?", id).Count(&count)
		if count > 0 {
			// Referenced rates are deactivated instead.
			if err := h.DB.Model(&rt).Update("is_active", false).Error; err != nil {
				dbError(w, err)
				return
			}
			httpx.JSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
			return
		}
		if err := h.DB.Delete(&models.RateType{}, id).Error; err != nil {
			dbError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}
