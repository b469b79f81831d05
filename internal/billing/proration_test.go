package billing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestChargeableDaysOpenEndedPlacement(t *testing.T) {
	// Open placement billed for January charges through the period's end.
	periodStart := Date(2024, time.January, 1)
	periodEnd := Date(2024, time.February, 1)
	days := ChargeableDays(Date(2023, time.November, 12), nil, periodStart, periodEnd)
	if days != 31 {
		t.Fatalf("expected 31 days, got %d", days)
	}
	got := DailyCharge(days, d("5.00"))
	if !got.Equal(d("155.00")) {
		t.Fatalf("expected 155.00, got %s", got)
	}
}

func TestChargeableDaysFullyInsidePeriod(t *testing.T) {
	periodStart := Date(2024, time.January, 1)
	periodEnd := Date(2024, time.February, 1)
	end := Date(2024, time.January, 20)
	days := ChargeableDays(Date(2024, time.January, 10), &end, periodStart, periodEnd)
	if days != 10 {
		t.Fatalf("expected 10 days, got %d", days)
	}
	got := DailyCharge(days, d("24.00"))
	if !got.Equal(d("240.00")) {
		t.Fatalf("expected 240.00, got %s", got)
	}
}

func TestChargeableDaysStartsMidPeriod(t *testing.T) {
	periodStart := Date(2024, time.March, 1)
	periodEnd := Date(2024, time.April, 1)
	days := ChargeableDays(Date(2024, time.March, 15), nil, periodStart, periodEnd)
	if days != 17 {
		t.Fatalf("expected 17 days, got %d", days)
	}
}

func TestChargeableDaysNoOverlap(t *testing.T) {
	periodStart := Date(2024, time.January, 1)
	periodEnd := Date(2024, time.February, 1)
	end := Date(2023, time.December, 20)
	if days := ChargeableDays(Date(2023, time.December, 1), &end, periodStart, periodEnd); days != 0 {
		t.Fatalf("placement before period should yield 0 days, got %d", days)
	}
	if days := ChargeableDays(Date(2024, time.February, 1), nil, periodStart, periodEnd); days != 0 {
		t.Fatalf("placement starting at period end should yield 0 days, got %d", days)
	}
}

func TestChargeableDaysEndsOnPeriodStart(t *testing.T) {
	// End date is exclusive: a placement ending exactly on period start owes nothing.
	periodStart := Date(2024, time.January, 1)
	periodEnd := Date(2024, time.February, 1)
	end := Date(2024, time.January, 1)
	if days := ChargeableDays(Date(2023, time.December, 1), &end, periodStart, periodEnd); days != 0 {
		t.Fatalf("expected 0 days, got %d", days)
	}
}

func TestEffectiveDatesClipping(t *testing.T) {
	periodStart := Date(2024, time.January, 1)
	periodEnd := Date(2024, time.February, 1)
	end := Date(2024, time.March, 5)
	start, stop := EffectiveDates(Date(2023, time.December, 10), &end, periodStart, periodEnd)
	if !start.Equal(periodStart) || !stop.Equal(periodEnd) {
		t.Fatalf("expected clipping to period bounds, got %s..%s", start, stop)
	}
}

func TestDailyChargeExactDecimal(t *testing.T) {
	// 3 days at 0.10 must be exactly 0.30, not a float approximation.
	got := DailyCharge(3, d("0.10"))
	if got.String() != "0.3" && got.String() != "0.30" {
		t.Fatalf("expected exact 0.30, got %s", got)
	}
	if !got.Equal(d("0.30")) {
		t.Fatalf("expected 0.30, got %s", got)
	}
}

func TestShareQuantizesToPence(t *testing.T) {
	got := Share(d("155.00"), d("33.33"))
	if !got.Equal(d("51.66")) {
		t.Fatalf("expected 51.66, got %s", got)
	}
	full := Share(d("155.00"), d("100"))
	if !full.Equal(d("155.00")) {
		t.Fatalf("expected 155.00, got %s", full)
	}
}

func TestMidnightNormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("x", 3600)
	in := time.Date(2024, time.June, 3, 23, 30, 0, 0, loc)
	got := Midnight(in)
	if got.Hour() != 0 || got.Location() != time.UTC {
		t.Fatalf("expected UTC midnight, got %s", got)
	}
}
