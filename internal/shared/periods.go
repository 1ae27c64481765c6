package shared

import (
	"errors"
	"fmt"
	"time"
)

// PeriodType identifies which half of the month a closure run covers.
type PeriodType string

const (
	// PeriodFirstHalf covers days 1 through 15.
	PeriodFirstHalf PeriodType = "1-15"
	// PeriodSecondHalf covers day 16 through the end of the month.
	PeriodSecondHalf PeriodType = "16-31"
)

// ErrInvalidPeriodType indicates an unrecognised period type string.
var ErrInvalidPeriodType = errors.New("shared: invalid period type")

// ParsePeriodType validates and converts a raw period type string.
func ParsePeriodType(raw string) (PeriodType, error) {
	switch PeriodType(raw) {
	case PeriodFirstHalf, PeriodSecondHalf:
		return PeriodType(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPeriodType, raw)
	}
}

// Valid reports whether the period type is one of the two half-month windows.
func (p PeriodType) Valid() bool {
	return p == PeriodFirstHalf || p == PeriodSecondHalf
}

// PeriodRange resolves the concrete date range for a reference date and
// period type. The second half ends on the last day of the month, which
// varies between 28 and 31 days.
func PeriodRange(reference time.Time, periodType PeriodType) (time.Time, time.Time, error) {
	year, month, _ := reference.Date()
	loc := reference.Location()
	switch periodType {
	case PeriodFirstHalf:
		start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
		end := time.Date(year, month, 15, 0, 0, 0, 0, loc)
		return start, end, nil
	case PeriodSecondHalf:
		start := time.Date(year, month, 16, 0, 0, 0, 0, loc)
		// day zero of the next month normalises to the last day of this one
		end := time.Date(year, month+1, 0, 0, 0, 0, 0, loc)
		return start, end, nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriodType, periodType)
	}
}

// PeriodTypeFor returns the period type containing the given date.
func PeriodTypeFor(date time.Time) PeriodType {
	if date.Day() <= 15 {
		return PeriodFirstHalf
	}
	return PeriodSecondHalf
}

// PeriodReference normalises a date to the first day of its half-month
// window, the canonical period_date used by status and archive rows.
func PeriodReference(date time.Time) time.Time {
	year, month, _ := date.Date()
	day := 1
	if date.Day() > 15 {
		day = 16
	}
	return time.Date(year, month, day, 0, 0, 0, 0, date.Location())
}
