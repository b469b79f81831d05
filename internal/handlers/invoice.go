package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/marchfield/liveryard/internal/email"
	"github.com/marchfield/liveryard/internal/httpx"
	"github.com/marchfield/liveryard/internal/models"
	"github.com/marchfield/liveryard/internal/pdf"
	"github.com/marchfield/liveryard/internal/services"
)

type InvoiceHandler struct {
	DB     *gorm.DB
	Svc    *services.InvoiceService
	Sender email.Sender
	From   string
}

func NewInvoiceHandler(db *gorm.DB, svc *services.InvoiceService, sender email.Sender, from string) *InvoiceHandler {
	return &InvoiceHandler{DB: db, Svc: svc, Sender: sender, From: from}
}

// invoiceError maps generation failures: duplicates and placement overlaps
// are conflicts, the rest are validation failures.
func invoiceError(w http.ResponseWriter, err error) {
	var dup *services.ErrDuplicateInvoice
	switch {
	case errors.As(err, &dup):
		httpx.JSONError(w, http.StatusConflict, "duplicate_invoice", map[string]any{
			"existing_invoice": dup.Existing.InvoiceNumber,
			"period_start":     dup.Existing.PeriodStart.Format(dateLayout),
			"period_end":       dup.Existing.PeriodEnd.Format(dateLayout),
		})
	case errors.Is(err, services.ErrNothingToBill):
		httpx.JSONError(w, http.StatusBadRequest, "nothing_to_bill", nil)
	case errors.Is(err, services.ErrRateNotConfigured):
		httpx.JSONError(w, http.StatusBadRequest, "rate_not_configured", err.Error())
	case errors.Is(err, services.ErrPlacementOverlap):
		httpx.JSONError(w, http.StatusConflict, "placement_overlap", err.Error())
	case errors.Is(err, services.ErrInvalidPeriod):
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"period_end": "must_follow_start"})
	case errors.Is(err, gorm.ErrRecordNotFound):
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
	default:
		httpx.JSONError(w, http.StatusInternalServerError, "db_error", nil)
	}
}

// billingPeriod reads owner_id/period_start/period_end from either the query
// string or a JSON body.
type billingPeriod struct {
	OwnerID     uint   `json:"owner_id"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
	Notes       string `json:"notes,omitempty"`
}

func (bp *billingPeriod) parse(w http.ResponseWriter) (uint, time.Time, time.Time, bool) {
	if bp.OwnerID == 0 {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"owner_id": "required"})
		return 0, time.Time{}, time.Time{}, false
	}
	start, err := parseDate(bp.PeriodStart)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"period_start": "invalid_date"})
		return 0, time.Time{}, time.Time{}, false
	}
	end, err := parseDate(bp.PeriodEnd)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"period_end": "invalid_date"})
		return 0, time.Time{}, time.Time{}, false
	}
	return bp.OwnerID, start, end, true
}

// Collection: GET lists invoices, POST generates a draft for an owner/period.
func (h *InvoiceHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit, offset := pagination(r)
		q := h.DB.Model(&models.Invoice{})
		if status := r.URL.Query().Get("status"); status != "" {
			q = q.Where("status = ?", status)
		}
		if v := r.URL.Query().Get("owner_id"); v != "" {
			if id, err := strconv.Atoi(v); err == nil {
				q = q.Where("owner_id = ?", id)
			}
		}
		var total int64
		q.Count(&total)
		var invoices []models.Invoice
		if err := q.Preload("Owner").Order("id desc").Limit(limit).Offset(offset).Find(&invoices).Error; err != nil {
			dbError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"items": invoices, "total": total, "limit": limit, "offset": offset})
	case http.MethodPost:
		var req billingPeriod
		if !decodeJSON(w, r, &req) {
			return
		}
		ownerID, start, end, ok := req.parse(w)
		if !ok {
			return
		}
		inv, err := h.Svc.CreateInvoice(ownerID, start, end, req.Notes)
		if err != nil {
			invoiceError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, map[string]any{
			"id":             inv.ID,
			"invoice_number": inv.InvoiceNumber,
			"status":         inv.Status,
			"subtotal":       inv.Subtotal,
			"total":          inv.Total,
			"due_date":       inv.DueDate.Format(dateLayout),
		})
	default:
		methodNotAllowed(w)
	}
}

// Item: GET a single invoice with line items, DELETE a draft.
func (h *InvoiceHandler) Item(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r)
	if !ok {
		return
	}
	var inv models.Invoice
	if err := h.DB.Preload("Owner").Preload("LineItems").Preload("LineItems.Horse").
		First(&inv, id).Error; err != nil {
		dbError(w, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		httpx.JSON(w, http.StatusOK, inv)
	case http.MethodDelete:
		if inv.Status != models.InvoiceDraft {
			httpx.JSONError(w, http.StatusConflict, "not_a_draft", map[string]string{"status": inv.Status})
			return
		}
		// Deleting a draft releases its extra charges back to the unbilled pool.
		err := h.DB.Transaction(func(tx *gorm.DB) error {
			err := tx.Model(&models.ExtraCharge{}).Where("invoice_id = ?", inv.ID).
				Updates(map[string]any{"invoiced": false, "invoice_id": nil}).Error
			if err != nil {
				return err
			}
			if err := tx.Where("invoice_id = ?", inv.ID).Delete(&models.InvoiceLineItem{}).Error; err != nil {
				return err
			}
			return tx.Delete(&models.Invoice{}, inv.ID).Error
		})
		if err != nil {
			dbError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

// Preview: POST /invoices/preview computes charges without persisting.
func (h *InvoiceHandler) Preview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req billingPeriod
	if !decodeJSON(w, r, &req) {
		return
	}
	ownerID, start, end, ok := req.parse(w)
	if !ok {
		return
	}
	preview, err := h.Svc.PreviewInvoice(ownerID, start, end)
	if err != nil {
		invoiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, preview)
}

// Send: POST /invoices/send?id=... moves a draft to sent and emails the owner.
func (h *InvoiceHandler) Send(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	id, ok := queryID(w, r)
	if !ok {
		return
	}
	var inv models.Invoice
	if err := h.DB.Preload("Owner").First(&inv, id).Error; err != nil {
		dbError(w, err)
		return
	}
	now := time.Now().UTC()
	if err := inv.MarkSent(now); err != nil {
		httpx.JSONError(w, http.StatusConflict, "invalid_transition", err.Error())
		return
	}
	if err := h.DB.Model(&models.Invoice{}).Where("id = ?", inv.ID).
		Updates(map[string]any{"status": inv.Status, "sent_at": inv.SentAt}).Error; err != nil {
		dbError(w, err)
		return
	}
	if inv.Owner.Email != "" && h.Sender != nil {
		subject := fmt.Sprintf("Invoice %s", inv.InvoiceNumber)
		body := fmt.Sprintf(
			"Invoice %s covering %s to %s.\n\nTotal: £%s\nDue: %s\n",
			inv.InvoiceNumber,
			inv.PeriodStart.Format("2 January 2006"), inv.PeriodEnd.Format("2 January 2006"),
			inv.Total.StringFixed(2), inv.DueDate.Format("2 January 2006"),
		)
		msg := email.BuildMessage(h.From, inv.Owner.Email, subject, body)
		if err := h.Sender.Send(r.Context(), []string{inv.Owner.Email}, subject, msg); err != nil {
			// Status already moved; report the send failure alongside.
			httpx.JSON(w, http.StatusOK, map[string]any{"status": inv.Status, "email_error": err.Error()})
			return
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": inv.Status, "sent_at": inv.SentAt})
}

// Pay: POST /invoices/pay?id=... marks a sent or overdue invoice paid.
func (h *InvoiceHandler) Pay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	id, ok := queryID(w, r)
	if !ok {
		return
	}
	var inv models.Invoice
	if err := h.DB.First(&inv, id).Error; err != nil {
		dbError(w, err)
		return
	}
	now := time.Now().UTC()
	if err := inv.MarkPaid(now); err != nil {
		httpx.JSONError(w, http.StatusConflict, "invalid_transition", err.Error())
		return
	}
	if err := h.DB.Model(&models.Invoice{}).Where("id = ?", inv.ID).
		Updates(map[string]any{"status": inv.Status, "paid_at": inv.PaidAt}).Error; err != nil {
		dbError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": inv.Status, "paid_at": inv.PaidAt})
}

// Monthly: POST /invoices/monthly runs generation for a calendar month.
func (h *InvoiceHandler) Monthly(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		Year  int `json:"year"`
		Month int `json:"month"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Year < 2000 || req.Month < 1 || req.Month > 12 {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"year": "required", "month": "1-12"})
		return
	}
	run, err := h.Svc.GenerateMonthlyInvoices(req.Year, time.Month(req.Month))
	if err != nil {
		invoiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"generated": len(run.Generated),
		"skipped":   run.Skipped,
		"empty":     run.Empty,
		"invoices":  run.Generated,
	})
}

// PDF: GET /invoices/pdf?id=... renders the invoice document.
func (h *InvoiceHandler) PDF(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r)
	if !ok {
		return
	}
	var inv models.Invoice
	if err := h.DB.Preload("Owner").Preload("LineItems").First(&inv, id).Error; err != nil {
		dbError(w, err)
		return
	}
	settings, err := models.GetSettings(h.DB)
	if err != nil {
		dbError(w, err)
		return
	}
	data, err := pdf.RenderInvoice(&inv, settings)
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "pdf_generation_failed", nil)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", inv.InvoiceNumber+".pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
