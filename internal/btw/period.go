package btw

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PeriodType is the length of a declaration period.
type PeriodType string

const (
	PeriodMonth   PeriodType = "month"
	PeriodQuarter PeriodType = "quarter"
	PeriodYear    PeriodType = "year"
)

// ErrInvalidPeriod is returned for period keys that do not name a real period.
var ErrInvalidPeriod = errors.New("invalid declaration period")

// ParsePeriodType accepts the English and Dutch period names.
func ParsePeriodType(s string) (PeriodType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "month", "maand":
		return PeriodMonth, nil
	case "quarter", "kwartaal":
		return PeriodQuarter, nil
	case "year", "jaar":
		return PeriodYear, nil
	}
	return "", fmt.Errorf("%w: unknown period type %q", ErrInvalidPeriod, s)
}

// PeriodKey identifies at most one declaration per client.
type PeriodKey struct {
	ClientID uuid.UUID  `json:"client_id"`
	Year     int        `json:"year"`
	Type     PeriodType `json:"period_type"`
	Number   int        `json:"period_number"`
}

// Validate checks that the key names an existing period.
func (k PeriodKey) Validate() error {
	if k.Year < 1900 || k.Year > 9999 {
		return fmt.Errorf("%w: year %d out of range", ErrInvalidPeriod, k.Year)
	}
	var max int
	switch k.Type {
	case PeriodMonth:
		max = 12
	case PeriodQuarter:
		max = 4
	case PeriodYear:
		max = 1
	default:
		return fmt.Errorf("%w: unknown period type %q", ErrInvalidPeriod, k.Type)
	}
	if k.Number < 1 || k.Number > max {
		return fmt.Errorf("%w: %s number %d out of range 1-%d", ErrInvalidPeriod, k.Type, k.Number, max)
	}
	return nil
}

// MonthRange returns the first and last month (inclusive) of the period.
// Quarter n covers months 3n-2 through 3n.
func (k PeriodKey) MonthRange() (first, last time.Month) {
	switch k.Type {
	case PeriodMonth:
		return time.Month(k.Number), time.Month(k.Number)
	case PeriodQuarter:
		return time.Month(3*k.Number - 2), time.Month(3 * k.Number)
	default:
		return time.January, time.December
	}
}

// DateRange returns the half-open interval [from, to) covered by the period,
// in UTC.
func (k PeriodKey) DateRange() (from, to time.Time) {
	first, last := k.MonthRange()
	from = time.Date(k.Year, first, 1, 0, 0, 0, 0, time.UTC)
	to = time.Date(k.Year, last+1, 1, 0, 0, 0, 0, time.UTC)
	return from, to
}

// Contains reports whether the posting date falls within the period.
func (k PeriodKey) Contains(date time.Time) bool {
	if date.Year() != k.Year {
		return false
	}
	first, last := k.MonthRange()
	m := date.Month()
	return m >= first && m <= last
}

// String renders the key as e.g. "2024-Q1", "2024-03" or "2024".
func (k PeriodKey) String() string {
	switch k.Type {
	case PeriodMonth:
		return fmt.Sprintf("%d-%02d", k.Year, k.Number)
	case PeriodQuarter:
		return fmt.Sprintf("%d-Q%d", k.Year, k.Number)
	default:
		return fmt.Sprintf("%d", k.Year)
	}
}
