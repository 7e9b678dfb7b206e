package model

import (
	"fmt"
	"strings"
	"time"
)

// PeriodHalf identifies the half-month window of a reporting period.
type PeriodHalf string

const (
	// PeriodA covers days 1-15 of the month.
	PeriodA PeriodHalf = "A"
	// PeriodB covers day 16 through end of month.
	PeriodB PeriodHalf = "B"
	// PeriodFull covers the whole month.
	PeriodFull PeriodHalf = "full"
)

// Period identifies a half-month or full-month reporting window.
type Period struct {
	// YYYYMM is the zero-padded month identifier, e.g. "202509".
	YYYYMM string
	// Half selects the A/B half-month or the full month.
	Half PeriodHalf
}

// NewPeriod validates and constructs a Period.
func NewPeriod(yyyymm string, half PeriodHalf) (Period, error) {
	if len(yyyymm) != 6 {
		return Period{}, fmt.Errorf("invalid month %q: want YYYYMM", yyyymm)
	}
	if _, err := time.Parse("200601", yyyymm); err != nil {
		return Period{}, fmt.Errorf("invalid month %q: %w", yyyymm, err)
	}
	switch half {
	case PeriodA, PeriodB, PeriodFull:
	default:
		return Period{}, fmt.Errorf("invalid period half %q: want A, B or full", half)
	}
	return Period{YYYYMM: yyyymm, Half: half}, nil
}

// Label derives the canonical file-name label for the period:
// "202509A", "202509B", or "202509" for a full month.
func (p Period) Label() string {
	if p.Half == PeriodFull {
		return p.YYYYMM
	}
	return p.YYYYMM + string(p.Half)
}

// Tag returns the period identity tag the upstream API stamps on its rows.
// It matches the canonical label format.
func (p Period) Tag() string {
	return p.Label()
}

// AlternateTags returns known alternate encodings of the period tag.
// The upstream source is inconsistent about zero-padding the month in the
// tags it stamps on rows ("202509A" vs "20259A"); when an exact-tag filter
// yields no rows the client retries the match with these variants. This is a
// compensation for an upstream data inconsistency, kept deliberately.
func (p Period) AlternateTags() []string {
	year, month := p.YYYYMM[:4], p.YYYYMM[4:]
	unpadded := strings.TrimPrefix(month, "0")
	if unpadded == month {
		return nil
	}
	alt := year + unpadded
	if p.Half != PeriodFull {
		alt += string(p.Half)
	}
	return []string{alt}
}

// String implements fmt.Stringer.
func (p Period) String() string {
	return p.Label()
}

// PeriodResolver supplies the current reporting period. The pipeline treats
// it purely as an injected value provider and makes no assumptions about how
// the period is computed.
type PeriodResolver interface {
	Current() (Period, error)
}

// CalendarResolver resolves the current period from the wall clock in a
// given location: day 1-15 maps to half A, day 16 onward to half B.
type CalendarResolver struct {
	loc *time.Location
	now func() time.Time
}

// NewCalendarResolver creates a CalendarResolver for the given timezone name.
// An empty or invalid timezone falls back to UTC.
func NewCalendarResolver(timezone string) *CalendarResolver {
	loc, err := time.LoadLocation(timezone)
	if err != nil || timezone == "" {
		loc = time.UTC
	}
	return &CalendarResolver{loc: loc, now: time.Now}
}

// Current implements PeriodResolver.
func (r *CalendarResolver) Current() (Period, error) {
	t := r.now().In(r.loc)
	half := PeriodA
	if t.Day() > 15 {
		half = PeriodB
	}
	return Period{YYYYMM: t.Format("200601"), Half: half}, nil
}

// FixedResolver always returns the same period. It is the default no-op
// capability used when the caller pins the period explicitly (e.g., from
// CLI flags) or in tests.
type FixedResolver struct {
	Period Period
}

// Current implements PeriodResolver.
func (r FixedResolver) Current() (Period, error) {
	return r.Period, nil
}

var (
	_ PeriodResolver = (*CalendarResolver)(nil)
	_ PeriodResolver = FixedResolver{}
)
