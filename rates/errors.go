package rates

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRate is returned when the effective hourly rate is not a
	// positive number.
	ErrInvalidRate = errors.New("invalid hourly rate")

	// ErrInvalidRounding is returned for an unknown rounding mode.
	ErrInvalidRounding = errors.New("invalid rounding mode")

	ErrNegativeMinimum = errors.New("minimum billable duration must not be negative")
)

// InvalidRateError carries the offending value as written.
type InvalidRateError struct {
	Rate string
}

func (e *InvalidRateError) Error() string {
	return fmt.Sprintf("invalid hourly rate %q: must be a positive number", e.Rate)
}

func (e *InvalidRateError) Unwrap() error { return ErrInvalidRate }

type InvalidRoundingError struct {
	Value string
}

func (e *InvalidRoundingError) Error() string {
	return fmt.Sprintf("invalid rounding %q: want none, 6m or 15m", e.Value)
}

func (e *InvalidRoundingError) Unwrap() error { return ErrInvalidRounding }

// IsRuleError returns true if the error came from rule validation.
func IsRuleError(err error) bool {
	return errors.Is(err, ErrInvalidRate) ||
		errors.Is(err, ErrInvalidRounding) ||
		errors.Is(err, ErrNegativeMinimum)
}
