// Package server assembles the HTTP API.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/marchfield/liveryard/internal/auth"
	"github.com/marchfield/liveryard/internal/config"
	"github.com/marchfield/liveryard/internal/email"
	"github.com/marchfield/liveryard/internal/handlers"
	"github.com/marchfield/liveryard/internal/httpx"
	"github.com/marchfield/liveryard/internal/models"
	"github.com/marchfield/liveryard/internal/services"
)

// New constructs the root http.Handler with all routes and middlewares
// applied.
func New(db *gorm.DB, cfg *config.Config, sender email.Sender) http.Handler {
	mux := http.NewServeMux()

	// RequireAuth verifies the session's user still exists.
	auth.SetUserVerifier(func(_ context.Context, uid uint) bool {
		var count int64
		if err := db.Model(&models.User{}).Where("id = ?", uid).Limit(1).Count(&count).Error; err != nil {
			return false
		}
		return count > 0
	})

	//revive:disable:unused-parameter simple handlers intentionally ignore *http.Request
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Exec("SELECT 1").Error; err != nil {
			httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	//revive:enable:unused-parameter

	protected := func(h http.HandlerFunc) http.Handler {
		return auth.RequireAuth(h)
	}

	ah := handlers.NewAuthHandler(db)
	mux.HandleFunc("/login", ah.Login)
	mux.HandleFunc("/logout", ah.Logout)
	mux.Handle("/me", protected(ah.Me))

	placementSvc := services.NewPlacementService(db)
	invoiceSvc := services.NewInvoiceService(db)

	oh := handlers.NewOwnerHandler(db)
	mux.Handle("/owners", protected(oh.Collection))
	mux.Handle("/owners/item", protected(oh.Item))

	hh := handlers.NewHorseHandler(db, placementSvc)
	mux.Handle("/horses", protected(hh.Collection))
	mux.Handle("/horses/item", protected(hh.Item))

	lh := handlers.NewLocationHandler(db)
	mux.Handle("/locations", protected(lh.Collection))
	mux.Handle("/locations/item", protected(lh.Item))

	rh := handlers.NewRateTypeHandler(db)
	mux.Handle("/rate-types", protected(rh.Collection))
	mux.Handle("/rate-types/item", protected(rh.Item))

	ph := handlers.NewPlacementHandler(db, placementSvc)
	mux.Handle("/placements", protected(ph.Collection))
	mux.Handle("/placements/item", protected(ph.Item))
	mux.Handle("/placements/move", protected(ph.Move))

	osh := handlers.NewOwnershipHandler(db, placementSvc)
	mux.Handle("/ownerships", protected(osh.Collection))
	mux.Handle("/ownerships/end", protected(osh.End))

	sph := handlers.NewServiceProviderHandler(db)
	mux.Handle("/service-providers", protected(sph.Collection))
	mux.Handle("/service-providers/item", protected(sph.Item))

	ech := handlers.NewExtraChargeHandler(db)
	mux.Handle("/extra-charges", protected(ech.Collection))
	mux.Handle("/extra-charges/item", protected(ech.Item))

	vth := handlers.NewVaccinationTypeHandler(db)
	mux.Handle("/vaccination-types", protected(vth.Collection))

	vh := handlers.NewVaccinationHandler(db)
	mux.Handle("/vaccinations", protected(vh.Collection))

	fh := handlers.NewFarrierVisitHandler(db)
	mux.Handle("/farrier-visits", protected(fh.Collection))

	ih := handlers.NewInvoiceHandler(db, invoiceSvc, sender, cfg.SmtpFromAddress)
	mux.Handle("/invoices", protected(ih.Collection))
	mux.Handle("/invoices/item", protected(ih.Item))
	mux.Handle("/invoices/preview", protected(ih.Preview))
	mux.Handle("/invoices/send", protected(ih.Send))
	mux.Handle("/invoices/pay", protected(ih.Pay))
	mux.Handle("/invoices/monthly", protected(ih.Monthly))
	mux.Handle("/invoices/pdf", protected(ih.PDF))

	sh := handlers.NewSettingsHandler(db)
	mux.Handle("/settings", protected(sh.Handle))

	return auth.Middleware(withRecover(withTiming(mux)))
}

// withTiming adds a Server-Timing header with the total handler duration and
// logs the request.
func withTiming(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		tw := &timingWriter{ResponseWriter: w, start: start}
		next.ServeHTTP(tw, r)
		log.Printf("%s %s %d %s", r.Method, r.URL.Path, tw.status(), time.Since(start).Round(time.Millisecond))
	})
}

// timingWriter writes the Server-Timing header just before the first byte of
// the response goes out.
type timingWriter struct {
	http.ResponseWriter
	start       time.Time
	wroteHeader bool
	code        int
}

func (t *timingWriter) WriteHeader(code int) {
	if !t.wroteHeader {
		t.wroteHeader = true
		t.code = code
		t.Header().Set("Server-Timing", fmt.Sprintf("app;dur=%.1f", float64(time.Since(t.start).Microseconds())/1000))
	}
	t.ResponseWriter.WriteHeader(code)
}

func (t *timingWriter) Write(b []byte) (int, error) {
	if !t.wroteHeader {
		t.WriteHeader(http.StatusOK)
	}
	return t.ResponseWriter.Write(b)
}

func (t *timingWriter) status() int {
	if t.code == 0 {
		return http.StatusOK
	}
	return t.code
}

func withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("panic serving %s %s: %v", r.Method, r.URL.Path, rec)
				httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
