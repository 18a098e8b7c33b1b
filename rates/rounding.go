package rates

import "github.com/shopspring/decimal"

var minutesPerHour = decimal.NewFromInt(60)

// MaxDurationMinutes caps a single activity at one leap year of minutes.
// It is a multiple of every rounding increment.
const MaxDurationMinutes = 366 * 24 * 60

// BillableMinutes applies the minimum and the rounding increment to a raw
// duration. The result is never below the time actually worked: rounding
// is always up.
//
//	none:    max(d, min)
//	6m/15m:  ceil(max(d, min) / step) * step
//
// A 0-minute activity bills 0 unless ZeroDuration is ZeroChargesMinimum.
// Negative durations are treated as 0 and durations above
// MaxDurationMinutes as MaxDurationMinutes.
func (e EffectiveRuleSet) BillableMinutes(durationMinutes int) int {
	d := durationMinutes
	if d < 0 {
		d = 0
	}
	d = min(d, MaxDurationMinutes)
	if d == 0 && e.ZeroDuration != ZeroChargesMinimum {
		return 0
	}

	billable := min(max(d, e.MinDuration), MaxDurationMinutes)
	if step := e.Rounding.Increment(); step > 0 {
		billable = ceilTo(billable, step)
	}
	return billable
}

// BillableHours is BillableMinutes expressed in hours, unrounded.
func (e EffectiveRuleSet) BillableHours(durationMinutes int) decimal.Decimal {
	return decimal.NewFromInt(int64(e.BillableMinutes(durationMinutes))).Div(minutesPerHour)
}

// Charge is the money owed for one activity, rounded to cents.
func (e EffectiveRuleSet) Charge(durationMinutes int) decimal.Decimal {
	minutes := decimal.NewFromInt(int64(e.BillableMinutes(durationMinutes)))
	return minutes.Mul(e.HourlyRate).Div(minutesPerHour).Round(2)
}

func ceilTo(n, step int) int {
	if rem := n % step; rem != 0 {
		return n + step - rem
	}
	return n
}
