package meetsync

import "time"

type Frequency string

func (f Frequency) String() string {
	return string(f)
}

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

// RecurrenceDay is one BYDAY entry. Nth is zero for a plain weekday and
// non-zero for "nth weekday of the period" forms such as 2FR (second
// Friday) or -1MO (last Monday).
type RecurrenceDay struct {
	Weekday time.Weekday
	Nth     int
}

// Recurrence describes how a series repeats. Until and Count are both
// optional and may both be absent; when the provider gave us rule text we
// keep it verbatim in RawRules so the original bytes can round-trip even
// when our structured view is lossy.
type Recurrence struct {
	Frequency Frequency
	Interval  int
	Until     *time.Time
	Count     int
	Weekdays  []RecurrenceDay
	MonthDay  int
	SetPos    int
	ExDates   []time.Time
	RawRules  []string
}

// Excluded reports whether the instant matches an exclusion date exactly.
func (r *Recurrence) Excluded(t time.Time) bool {
	for _, ex := range r.ExDates {
		if ex.Equal(t) {
			return true
		}
	}
	return false
}
