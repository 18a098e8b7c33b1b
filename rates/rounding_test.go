package rates_test

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/care-billing/rates"
)

func effective(rate string, min int, rounding rates.Rounding) rates.EffectiveRuleSet {
	return rates.EffectiveRuleSet{
		HourlyRate:   decimal.RequireFromString(rate),
		MinDuration:  min,
		Rounding:     rounding,
		ZeroDuration: rates.ZeroIsFree,
	}
}

func TestBillableMinutes(t *testing.T) {
	tests := []struct {
		name     string
		min      int
		rounding rates.Rounding
		duration int
		want     int
	}{
		{"none passthrough", 0, rates.RoundNone, 7, 7},
		{"none with minimum", 15, rates.RoundNone, 7, 15},
		{"none above minimum", 15, rates.RoundNone, 40, 40},
		{"6m rounds up", 0, rates.Round6, 7, 12},
		{"6m exact", 0, rates.Round6, 12, 12},
		{"15m rounds up", 0, rates.Round15, 16, 30},
		{"15m with minimum", 15, rates.Round15, 7, 15},
		{"minimum then rounding", 10, rates.Round15, 3, 15},
		{"minimum not a multiple", 8, rates.Round6, 1, 12},
		{"zero is free", 15, rates.Round15, 0, 0},
		{"negative treated as zero", 15, rates.Round15, -5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eff := effective("150", tt.min, tt.rounding)
			assert.Equal(t, tt.want, eff.BillableMinutes(tt.duration))
		})
	}
}

func TestBillableMinutes_ZeroChargesMinimum(t *testing.T) {
	eff := effective("150", 15, rates.Round15)
	eff.ZeroDuration = rates.ZeroChargesMinimum

	assert.Equal(t, 15, eff.BillableMinutes(0))
	assert.Equal(t, 15, eff.BillableMinutes(-3))

	// No minimum configured: nothing to charge
	eff.MinDuration = 0
	assert.Equal(t, 0, eff.BillableMinutes(0))
}

func TestBillableMinutes_Properties(t *testing.T) {
	for _, rounding := range []rates.Rounding{rates.RoundNone, rates.Round6, rates.Round15} {
		for _, min := range []int{0, 5, 15, 60} {
			eff := effective("150", min, rounding)
			prev := 0
			for d := 1; d <= 300; d++ {
				got := eff.BillableMinutes(d)

				// never under-bills
				require.GreaterOrEqual(t, got, d, "rounding=%s min=%d d=%d", rounding, min, d)
				require.GreaterOrEqual(t, got, min, "rounding=%s min=%d d=%d", rounding, min, d)

				// monotonic
				require.GreaterOrEqual(t, got, prev, "rounding=%s min=%d d=%d", rounding, min, d)
				prev = got

				if step := rounding.Increment(); step > 0 {
					require.Zero(t, got%step)
				}
			}
		}
	}
}

func TestBillableMinutes_CapsHugeDurations(t *testing.T) {
	// GIVEN: Durations and minimums far beyond any real activity
	// WHEN: Rounding up to the increment
	// THEN: The result is capped instead of wrapping negative

	for _, rounding := range []rates.Rounding{rates.RoundNone, rates.Round6, rates.Round15} {
		eff := effective("150", 0, rounding)
		assert.Equal(t, rates.MaxDurationMinutes, eff.BillableMinutes(math.MaxInt), "rounding=%s", rounding)

		huge := effective("150", math.MaxInt, rounding)
		assert.Equal(t, rates.MaxDurationMinutes, huge.BillableMinutes(1), "rounding=%s", rounding)
	}

	eff := effective("60", 0, rates.Round15)
	assert.Equal(t, rates.MaxDurationMinutes, eff.BillableMinutes(rates.MaxDurationMinutes-1))
	assert.True(t, eff.Charge(math.MaxInt).IsPositive())
}

func TestCharge_MinimumAndRounding(t *testing.T) {
	// GIVEN: $150/hr, 15 minute minimum, 15 minute rounding
	// WHEN: A 7 minute activity is billed
	// THEN: 15 minutes are billed for $37.50
	org := rates.RuleSet{HourlyRate: rates.Rate("150")}
	override := &rates.RuleSet{MinDuration: rates.Minutes(15), Rounding: rates.RoundingPtr(rates.Round15)}

	eff, err := rates.Resolve(org, override)
	require.NoError(t, err)

	assert.Equal(t, 15, eff.BillableMinutes(7))
	assert.Equal(t, "0.25", eff.BillableHours(7).String())
	assert.Equal(t, "37.5", eff.Charge(7).String())
}

func TestCharge_RoundsToCents(t *testing.T) {
	// 7 minutes at $100/hr is 11.6666...
	eff := effective("100", 0, rates.RoundNone)
	assert.Equal(t, "11.67", eff.Charge(7).StringFixed(2))

	eff = effective("95.50", 0, rates.Round6)
	// 12 minutes -> 0.2h -> 19.10
	assert.Equal(t, "19.10", eff.Charge(10).StringFixed(2))
}

func TestRounding_Valid(t *testing.T) {
	assert.True(t, rates.RoundNone.Valid())
	assert.True(t, rates.Round6.Valid())
	assert.True(t, rates.Round15.Valid())
	assert.False(t, rates.Rounding("").Valid())
	assert.False(t, rates.Rounding("30m").Valid())
}
