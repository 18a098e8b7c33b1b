/*
Package factory converts billing rule sets to and from JSON.

PURPOSE:
  Rule sets are edited in the admin UI and stored as JSON blobs, one for the
  organization default and one per client override. The factory is the only
  place that knows the wire format; the rates package works on Go values.

JSON SCHEMA:
  {
    "hourly_rate": "150.00",          // string or number, optional
    "min_duration": 15,               // minutes, optional
    "rounding": "nearest-15-minutes"  // optional
  }

  A missing, null or blank field means "inherit". hourly_rate keeps full decimal
  precision: "95.50" and 95.5 parse to the same rate, and a value that is
  not a number fails with rates.InvalidRateError.

ROUNDING ALIASES:
  none      <- "none", "no-rounding"
  6m        <- "6m", "6", "nearest-6-minutes", "tenth-hour"
  15m       <- "15m", "15", "nearest-15-minutes", "quarter-hour"

USAGE:
  f := factory.NewRuleSetFactory()
  rs, err := f.ParseRuleSet(`{"min_duration": 15, "rounding": "15m"}`)
  eff, err := rates.Resolve(org, &rs)
  out := f.ToEffectiveJSON(eff)

SEE ALSO:
  - rates/rules.go: RuleSet and resolution
  - store/sqlite: persists the JSON produced here
*/
package factory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/care-billing/rates"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RuleSetJSON is the JSON representation of a partial rule set.
type RuleSetJSON struct {
	HourlyRate  json.RawMessage `json:"hourly_rate,omitempty"`
	MinDuration *int            `json:"min_duration,omitempty"`
	Rounding    *string         `json:"rounding,omitempty"`
}

// EffectiveJSON is the JSON representation of a resolved rule set.
type EffectiveJSON struct {
	HourlyRate   string `json:"hourly_rate"`
	MinDuration  int    `json:"min_duration"`
	Rounding     string `json:"rounding"`
	ZeroDuration string `json:"zero_duration,omitempty"`
}

// =============================================================================
// RULE SET FACTORY
// =============================================================================

type RuleSetFactory struct{}

func NewRuleSetFactory() *RuleSetFactory {
	return &RuleSetFactory{}
}

// ParseRuleSet parses and validates a JSON rule set. Empty input is an empty
// rule set.
func (f *RuleSetFactory) ParseRuleSet(jsonStr string) (rates.RuleSet, error) {
	if strings.TrimSpace(jsonStr) == "" {
		return rates.RuleSet{}, nil
	}
	var rj RuleSetJSON
	if err := json.Unmarshal([]byte(jsonStr), &rj); err != nil {
		return rates.RuleSet{}, fmt.Errorf("failed to parse rule set JSON: %w", err)
	}
	return f.FromJSON(rj)
}

// FromJSON converts RuleSetJSON to a validated rates.RuleSet.
func (f *RuleSetFactory) FromJSON(rj RuleSetJSON) (rates.RuleSet, error) {
	var rs rates.RuleSet

	rate, err := parseRate(rj.HourlyRate)
	if err != nil {
		return rates.RuleSet{}, err
	}
	rs.HourlyRate = rate

	if rj.MinDuration != nil {
		min := *rj.MinDuration
		rs.MinDuration = &min
	}

	if rj.Rounding != nil && strings.TrimSpace(*rj.Rounding) != "" {
		r, err := ParseRounding(*rj.Rounding)
		if err != nil {
			return rates.RuleSet{}, err
		}
		rs.Rounding = &r
	}

	if err := rs.Validate(); err != nil {
		return rates.RuleSet{}, err
	}
	return rs, nil
}

// ToJSON converts a rule set to its JSON representation. Rates are written
// as strings.
func (f *RuleSetFactory) ToJSON(rs rates.RuleSet) RuleSetJSON {
	var rj RuleSetJSON
	if rs.HourlyRate != nil {
		rj.HourlyRate = json.RawMessage(strconv.Quote(rs.HourlyRate.String()))
	}
	if rs.MinDuration != nil {
		min := *rs.MinDuration
		rj.MinDuration = &min
	}
	if rs.Rounding != nil {
		r := string(*rs.Rounding)
		rj.Rounding = &r
	}
	return rj
}

// Marshal serializes a rule set for storage.
func (f *RuleSetFactory) Marshal(rs rates.RuleSet) (string, error) {
	b, err := json.Marshal(f.ToJSON(rs))
	if err != nil {
		return "", fmt.Errorf("failed to marshal rule set: %w", err)
	}
	return string(b), nil
}

// ToEffectiveJSON renders a resolved rule set. The rate is fixed to cents.
func (f *RuleSetFactory) ToEffectiveJSON(e rates.EffectiveRuleSet) EffectiveJSON {
	return EffectiveJSON{
		HourlyRate:   e.HourlyRate.StringFixed(2),
		MinDuration:  e.MinDuration,
		Rounding:     string(e.Rounding),
		ZeroDuration: string(e.ZeroDuration),
	}
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

// ParseRounding maps a rounding name or alias to a rates.Rounding.
func ParseRounding(s string) (rates.Rounding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "no-rounding":
		return rates.RoundNone, nil
	case "6m", "6", "nearest-6-minutes", "tenth-hour":
		return rates.Round6, nil
	case "15m", "15", "nearest-15-minutes", "quarter-hour":
		return rates.Round15, nil
	default:
		return "", &rates.InvalidRoundingError{Value: s}
	}
}

// ParseRate parses a decimal rate as written by a user. It does not check
// the sign.
func ParseRate(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, &rates.InvalidRateError{Rate: s}
	}
	return d, nil
}

// parseRate accepts a JSON number, a JSON string holding a number, or null.
// A blank string is treated like null.
func parseRate(raw json.RawMessage) (*decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	text := string(raw)
	if raw[0] == '"' {
		unquoted, err := strconv.Unquote(text)
		if err != nil {
			return nil, &rates.InvalidRateError{Rate: text}
		}
		text = unquoted
		if strings.TrimSpace(text) == "" {
			return nil, nil
		}
	}

	d, err := ParseRate(text)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
