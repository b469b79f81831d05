package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/marchfield/liveryard/internal/models"
	"github.com/marchfield/liveryard/internal/services"
)

func seedPlacementFixtures(t *testing.T, db *gorm.DB) (owner models.Owner, horse models.Horse, loc models.Location, rate models.RateType) {
	t.Helper()
	owner = models.Owner{Name: "Alice Wainwright"}
	horse = models.Horse{Name: "Copper", IsActive: true}
	loc = models.Location{Name: "Top Field"}
	rate = models.RateType{Name: "Stabled", Period: models.RatePeriodDaily, DailyRate: decimal.NewFromInt(5), IsActive: true}
	for _, m := range []any{&owner, &horse, &loc, &rate} {
		if err := db.Create(m).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return
}

func placementBody(horse, owner, loc, rate uint, start, end string) string {
	b := fmt.Sprintf(`{"horse_id":%d,"owner_id":%d,"location_id":%d,"rate_type_id":%d,"start_date":"%s"`,
		horse, owner, loc, rate, start)
	if end != "" {
		b += fmt.Sprintf(`,"end_date":"%s"`, end)
	}
	return b + "}"
}

func postJSON(t *testing.T, handle http.HandlerFunc, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handle(w, req)
	return w
}

func TestPlacementCreateAndOverlapConflict(t *testing.T) {
	db := setupHandlerTestDB(t)
	owner, horse, loc, rate := seedPlacementFixtures(t, db)
	h := NewPlacementHandler(db, services.NewPlacementService(db))

	w := postJSON(t, h.Collection, "/placements",
		placementBody(horse.ID, owner.ID, loc.ID, rate.ID, "2024-01-01", ""))
	if w.Code != http.StatusCreated {
		t.Fatalf("create expected 201 got %d body=%s", w.Code, w.Body.String())
	}

	// A second stay for the same horse against an open placement is a conflict.
	overlapW := postJSON(t, h.Collection, "/placements",
		placementBody(horse.ID, owner.ID, loc.ID, rate.ID, "2024-02-01", ""))
	if overlapW.Code != http.StatusConflict {
		t.Fatalf("overlap expected 409 got %d body=%s", overlapW.Code, overlapW.Body.String())
	}
	if !strings.Contains(overlapW.Body.String(), "placement_overlap") {
		t.Fatalf("expected placement_overlap, got %s", overlapW.Body.String())
	}

	// Missing fields are validation failures.
	badW := postJSON(t, h.Collection, "/placements", `{"horse_id":0,"start_date":"nope"}`)
	if badW.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", badW.Code)
	}
	if !strings.Contains(badW.Body.String(), "validation_failed") {
		t.Fatalf("expected validation_failed, got %s", badW.Body.String())
	}
}

func TestPlacementEmptyRangeRejected(t *testing.T) {
	db := setupHandlerTestDB(t)
	owner, horse, loc, rate := seedPlacementFixtures(t, db)
	h := NewPlacementHandler(db, services.NewPlacementService(db))

	w := postJSON(t, h.Collection, "/placements",
		placementBody(horse.ID, owner.ID, loc.ID, rate.ID, "2024-01-10", "2024-01-10"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty range expected 400 got %d body=%s", w.Code, w.Body.String())
	}
}

func TestPlacementMove(t *testing.T) {
	db := setupHandlerTestDB(t)
	owner, horse, loc, rate := seedPlacementFixtures(t, db)
	barn := models.Location{Name: "Main Barn"}
	if err := db.Create(&barn).Error; err != nil {
		t.Fatalf("barn: %v", err)
	}
	h := NewPlacementHandler(db, services.NewPlacementService(db))

	w := postJSON(t, h.Collection, "/placements",
		placementBody(horse.ID, owner.ID, loc.ID, rate.ID, "2024-01-01", ""))
	if w.Code != http.StatusCreated {
		t.Fatalf("create got %d", w.Code)
	}

	body := fmt.Sprintf(`{"horse_id":%d,"location_id":%d,"move_date":"2024-01-16"}`, horse.ID, barn.ID)
	moveW := postJSON(t, h.Move, "/placements/move", body)
	if moveW.Code != http.StatusCreated {
		t.Fatalf("move expected 201 got %d body=%s", moveW.Code, moveW.Body.String())
	}
	var next models.Placement
	if err := json.Unmarshal(moveW.Body.Bytes(), &next); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if next.LocationID != barn.ID || next.OwnerID != owner.ID || next.RateTypeID != rate.ID {
		t.Fatalf("move did not inherit owner and rate: %+v", next)
	}

	// The old stay ends on the move day, end exclusive.
	var old models.Placement
	if err := db.Where("location_id = ?", loc.ID).First(&old).Error; err != nil {
		t.Fatalf("old placement: %v", err)
	}
	if old.EndDate == nil || !old.EndDate.Equal(time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("old placement not closed on move day: %v", old.EndDate)
	}

	// Moving a horse with no open placement is a validation failure.
	spare := models.Horse{Name: "Bramble", IsActive: true}
	if err := db.Create(&spare).Error; err != nil {
		t.Fatalf("spare horse: %v", err)
	}
	noneW := postJSON(t, h.Move, "/placements/move",
		fmt.Sprintf(`{"horse_id":%d,"location_id":%d,"move_date":"2024-01-16"}`, spare.ID, barn.ID))
	if noneW.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d body=%s", noneW.Code, noneW.Body.String())
	}
	if !strings.Contains(noneW.Body.String(), "no_current_placement") {
		t.Fatalf("expected no_current_placement, got %s", noneW.Body.String())
	}
}

func TestPlacementDeleteBlockedOnceInvoiced(t *testing.T) {
	db := setupHandlerTestDB(t)
	owner, horse, loc, rate := seedPlacementFixtures(t, db)
	h := NewPlacementHandler(db, services.NewPlacementService(db))

	w := postJSON(t, h.Collection, "/placements",
		placementBody(horse.ID, owner.ID, loc.ID, rate.ID, "2024-01-01", "2024-02-01"))
	if w.Code != http.StatusCreated {
		t.Fatalf("create got %d", w.Code)
	}
	var p models.Placement
	if err := db.First(&p).Error; err != nil {
		t.Fatalf("placement: %v", err)
	}

	invSvc := services.NewInvoiceService(db)
	if _, err := invSvc.CreateInvoice(owner.ID,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), ""); err != nil {
		t.Fatalf("invoice: %v", err)
	}

	id := strconv.Itoa(int(p.ID))
	delW := httptest.NewRecorder()
	h.Item(delW, httptest.NewRequest(http.MethodDelete, "/placements/item?id="+id, nil))
	if delW.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d body=%s", delW.Code, delW.Body.String())
	}
	if !strings.Contains(delW.Body.String(), "placement_invoiced") {
		t.Fatalf("expected placement_invoiced, got %s", delW.Body.String())
	}
}
