package handlers

import (
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/marchfield/liveryard/internal/httpx"
	"github.com/marchfield/liveryard/internal/models"
)

type SettingsHandler struct {
	DB *gorm.DB
}

func NewSettingsHandler(db *gorm.DB) *SettingsHandler { return &SettingsHandler{DB: db} }

// Handle: GET returns the business settings, PUT updates letterhead and
// payment terms. The invoice sequence is never writable from here.
func (h *SettingsHandler) Handle(w http.ResponseWriter, r *http.Request) {
	settings, err := models.GetSettings(h.DB)
	if err != nil {
		dbError(w, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		httpx.JSON(w, http.StatusOK, settings)
	case http.MethodPut:
		var req struct {
			BusinessName        string `json:"business_name"`
			Address             string `json:"address"`
			Phone               string `json:"phone"`
			Email               string `json:"email"`
			Website             string `json:"website"`
			VATRegistration     string `json:"vat_registration"`
			BankDetails         string `json:"bank_details"`
			CardPaymentURL      string `json:"card_payment_url"`
			DefaultPaymentTerms int    `json:"default_payment_terms"`
			InvoicePrefix       string `json:"invoice_prefix"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		req.BusinessName = strings.TrimSpace(req.BusinessName)
		fe := map[string]string{}
		if req.BusinessName == "" {
			fe["business_name"] = "required"
		}
		if req.DefaultPaymentTerms <= 0 {
			fe["default_payment_terms"] = "must_be_positive"
		}
		if len(fe) > 0 {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", fe)
			return
		}
		settings.BusinessName = req.BusinessName
		settings.Address = req.Address
		settings.Phone = req.Phone
		settings.Email = req.Email
		settings.Website = req.Website
		settings.VATRegistration = req.VATRegistration
		settings.BankDetails = req.BankDetails
		settings.CardPaymentURL = req.CardPaymentURL
		settings.DefaultPaymentTerms = req.DefaultPaymentTerms
		if req.InvoicePrefix != "" {
			settings.InvoicePrefix = req.InvoicePrefix
		}
		if err := h.DB.Save(settings).Error; err != nil {
			dbError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, settings)
	default:
		methodNotAllowed(w)
	}
}
