// Package billing holds the pure date-overlap and proration arithmetic used
// by invoice generation. All ranges are half-open [start, end): the start day
// is chargeable, the end day is not. Amounts are exact decimals.
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Date builds a UTC-midnight date, the canonical form for all billing dates.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Midnight truncates a timestamp to its UTC date.
func Midnight(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func maxDate(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minDate(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

// OverlapDays returns the number of whole days shared by [aStart, aEnd) and
// [bStart, bEnd). A nil end extends the range indefinitely (it is clipped by
// the other range's end, so at least one end must be set).
func OverlapDays(aStart time.Time, aEnd *time.Time, bStart time.Time, bEnd *time.Time) int {
	start := maxDate(aStart, bStart)
	var end time.Time
	switch {
	case aEnd == nil && bEnd == nil:
		return 0
	case aEnd == nil:
		end = *bEnd
	case bEnd == nil:
		end = *aEnd
	default:
		end = minDate(*aEnd, *bEnd)
	}
	days := int(end.Sub(start).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// ChargeableDays returns the billable days of a placement within a billing
// period. An open-ended placement is charged through the period's end.
func ChargeableDays(placementStart time.Time, placementEnd *time.Time, periodStart, periodEnd time.Time) int {
	return OverlapDays(placementStart, placementEnd, periodStart, &periodEnd)
}

// EffectiveDates returns the clipped [start, end) a placement occupies inside
// a billing period. Valid only when ChargeableDays > 0.
func EffectiveDates(placementStart time.Time, placementEnd *time.Time, periodStart, periodEnd time.Time) (time.Time, time.Time) {
	start := maxDate(placementStart, periodStart)
	end := periodEnd
	if placementEnd != nil {
		end = minDate(*placementEnd, periodEnd)
	}
	return start, end
}

// DailyCharge is chargeable days × the daily rate, exact.
func DailyCharge(days int, dailyRate decimal.Decimal) decimal.Decimal {
	return dailyRate.Mul(decimal.NewFromInt(int64(days)))
}

// Share applies a percentage ownership share to an amount, quantized to two
// decimal places.
func Share(amount, percentage decimal.Decimal) decimal.Decimal {
	return amount.Mul(percentage).Div(decimal.NewFromInt(100)).Round(2)
}
