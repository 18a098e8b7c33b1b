/*
Package rates resolves the billing rules that apply to a client.

PURPOSE:
  An organization keeps one default rule set and each client may carry an
  override. Any field of the override may be left blank, meaning "inherit".
  Resolve folds the two, field by field, into a fully specified
  EffectiveRuleSet, which then converts activity minutes into billable
  minutes, hours and money.

RESOLUTION ORDER (per field):
  override.field ?? orgDefault.field ?? systemDefault.field

  System default: $150/hr, no minimum, no rounding.

FAILURE:
  An effective hourly rate that is not positive aborts resolution with
  InvalidRateError. No fallback is applied: billing at $0 or at a negative
  rate is worse than blocking invoice generation.

EXAMPLE:
  org := rates.RuleSet{HourlyRate: rates.Rate("150")}
  override := &rates.RuleSet{MinDuration: rates.Minutes(15), Rounding: rates.RoundingPtr(rates.Round15)}
  eff, err := rates.Resolve(org, override)
  eff.BillableMinutes(7) // 15
  eff.Charge(7)          // 37.50

SEE ALSO:
  - rounding.go: BillableMinutes and money conversion
  - factory/rules.go: JSON encoding of rule sets
*/
package rates

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// ROUNDING MODES
// =============================================================================

type Rounding string

const (
	RoundNone Rounding = "none"
	Round6    Rounding = "6m"
	Round15   Rounding = "15m"
)

// Increment returns the rounding step in minutes, 0 for RoundNone.
func (r Rounding) Increment() int {
	switch r {
	case Round6:
		return 6
	case Round15:
		return 15
	default:
		return 0
	}
}

func (r Rounding) Valid() bool {
	return r == RoundNone || r == Round6 || r == Round15
}

// =============================================================================
// RULE SETS
// =============================================================================

// RuleSet is a partially specified set of billing rules. Nil fields inherit.
type RuleSet struct {
	HourlyRate  *decimal.Decimal
	MinDuration *int
	Rounding    *Rounding
}

// IsEmpty reports whether every field inherits.
func (rs RuleSet) IsEmpty() bool {
	return rs.HourlyRate == nil && rs.MinDuration == nil && rs.Rounding == nil
}

// Validate checks the fields that are set. It is applied before a rule set
// is stored so a bad override fails at edit time, not at billing time.
func (rs RuleSet) Validate() error {
	if rs.HourlyRate != nil && !rs.HourlyRate.IsPositive() {
		return &InvalidRateError{Rate: rs.HourlyRate.String()}
	}
	if rs.MinDuration != nil && *rs.MinDuration < 0 {
		return ErrNegativeMinimum
	}
	if rs.Rounding != nil && !rs.Rounding.Valid() {
		return &InvalidRoundingError{Value: string(*rs.Rounding)}
	}
	return nil
}

// EffectiveRuleSet is a fully resolved rule set.
type EffectiveRuleSet struct {
	HourlyRate  decimal.Decimal
	MinDuration int
	Rounding    Rounding

	// ZeroDuration decides whether the minimum applies to empty activities.
	ZeroDuration ZeroDurationPolicy
}

// RuleSet returns the effective rules as a fully populated RuleSet.
func (e EffectiveRuleSet) RuleSet() RuleSet {
	rate, min, rounding := e.HourlyRate, e.MinDuration, e.Rounding
	return RuleSet{HourlyRate: &rate, MinDuration: &min, Rounding: &rounding}
}

// ZeroDurationPolicy controls billing of activities that lasted 0 minutes.
type ZeroDurationPolicy string

const (
	// ZeroIsFree bills nothing for a 0-minute activity.
	ZeroIsFree ZeroDurationPolicy = "free"

	// ZeroChargesMinimum bills the minimum duration even for 0 minutes.
	ZeroChargesMinimum ZeroDurationPolicy = "minimum"
)

func (p ZeroDurationPolicy) Valid() bool {
	return p == ZeroIsFree || p == ZeroChargesMinimum
}

// DefaultHourlyRate is the last-resort hourly rate.
var DefaultHourlyRate = decimal.NewFromInt(150)

// SystemDefault is the final fallback for every field.
func SystemDefault() EffectiveRuleSet {
	return EffectiveRuleSet{
		HourlyRate:   DefaultHourlyRate,
		MinDuration:  0,
		Rounding:     RoundNone,
		ZeroDuration: ZeroIsFree,
	}
}

// =============================================================================
// RESOLVER
// =============================================================================

// Resolver folds rule sets over a configurable system default.
type Resolver struct {
	System EffectiveRuleSet
}

func NewResolver(system EffectiveRuleSet) *Resolver {
	return &Resolver{System: system}
}

// DefaultResolver resolves over SystemDefault.
func DefaultResolver() *Resolver {
	return NewResolver(SystemDefault())
}

// Resolve uses the default resolver.
func Resolve(orgDefault RuleSet, override *RuleSet) (EffectiveRuleSet, error) {
	return DefaultResolver().Resolve(orgDefault, override)
}

// Resolve computes the effective rules for one client. override may be nil.
// Neither input is modified.
func (r *Resolver) Resolve(orgDefault RuleSet, override *RuleSet) (EffectiveRuleSet, error) {
	var ov RuleSet
	if override != nil {
		ov = *override
	}

	eff := EffectiveRuleSet{
		HourlyRate:   r.System.HourlyRate,
		MinDuration:  r.System.MinDuration,
		Rounding:     r.System.Rounding,
		ZeroDuration: r.System.ZeroDuration,
	}
	if eff.ZeroDuration == "" {
		eff.ZeroDuration = ZeroIsFree
	}
	if eff.Rounding == "" {
		eff.Rounding = RoundNone
	}

	switch {
	case ov.HourlyRate != nil:
		eff.HourlyRate = *ov.HourlyRate
	case orgDefault.HourlyRate != nil:
		eff.HourlyRate = *orgDefault.HourlyRate
	}

	switch {
	case ov.MinDuration != nil:
		eff.MinDuration = *ov.MinDuration
	case orgDefault.MinDuration != nil:
		eff.MinDuration = *orgDefault.MinDuration
	}

	switch {
	case ov.Rounding != nil:
		eff.Rounding = *ov.Rounding
	case orgDefault.Rounding != nil:
		eff.Rounding = *orgDefault.Rounding
	}

	if err := eff.Validate(); err != nil {
		return EffectiveRuleSet{}, err
	}
	return eff, nil
}

// Validate checks a fully resolved rule set.
func (e EffectiveRuleSet) Validate() error {
	if !e.HourlyRate.IsPositive() {
		return &InvalidRateError{Rate: e.HourlyRate.String()}
	}
	if e.MinDuration < 0 {
		return ErrNegativeMinimum
	}
	if !e.Rounding.Valid() {
		return &InvalidRoundingError{Value: string(e.Rounding)}
	}
	return nil
}

// =============================================================================
// CONSTRUCTORS - pointer helpers for partial rule sets
// =============================================================================

// Rate parses a decimal literal into a rate pointer. It panics on malformed
// input; use factory.ParseRuleSet for untrusted data.
func Rate(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func Minutes(n int) *int { return &n }

func RoundingPtr(r Rounding) *Rounding { return &r }
