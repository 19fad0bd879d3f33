package recurrence

import (
	"testing"
	"time"

	"meetsync"
)

func TestParseWeeklyRule(t *testing.T) {
	rec, err := Parse([]string{"RRULE:FREQ=WEEKLY;INTERVAL=2;BYDAY=FR"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if rec.Frequency != meetsync.Weekly {
		t.Fatalf("expected weekly frequency, got %q", rec.Frequency)
	}
	if rec.Interval != 2 {
		t.Fatalf("expected interval 2, got %d", rec.Interval)
	}
	if len(rec.Weekdays) != 1 || rec.Weekdays[0].Weekday != time.Friday || rec.Weekdays[0].Nth != 0 {
		t.Fatalf("expected plain Friday, got %+v", rec.Weekdays)
	}
	if len(rec.RawRules) != 1 {
		t.Fatalf("expected raw rules to be preserved, got %v", rec.RawRules)
	}
}

func TestParseNthWeekdayRule(t *testing.T) {
	rec, err := Parse([]string{"RRULE:FREQ=MONTHLY;BYDAY=2FR"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(rec.Weekdays) != 1 || rec.Weekdays[0].Weekday != time.Friday || rec.Weekdays[0].Nth != 2 {
		t.Fatalf("expected second Friday, got %+v", rec.Weekdays)
	}
}

func TestParseCountUntilAndMonthDay(t *testing.T) {
	rec, err := Parse([]string{"RRULE:FREQ=DAILY;COUNT=5"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if rec.Count != 5 {
		t.Fatalf("expected count 5, got %d", rec.Count)
	}

	rec, err = Parse([]string{"RRULE:FREQ=MONTHLY;BYMONTHDAY=15;UNTIL=20240601T000000Z"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if rec.MonthDay != 15 {
		t.Fatalf("expected month day 15, got %d", rec.MonthDay)
	}
	if rec.Until == nil || !rec.Until.Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected until 2024-06-01, got %v", rec.Until)
	}
}

func TestParseExDates(t *testing.T) {
	rec, err := Parse([]string{
		"RRULE:FREQ=WEEKLY;BYDAY=MO",
		"EXDATE:20240311T100000Z,20240325T100000Z",
	})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(rec.ExDates) != 2 {
		t.Fatalf("expected 2 exclusion dates, got %d", len(rec.ExDates))
	}
	if !rec.Excluded(time.Date(2024, 3, 11, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected 2024-03-11 to be excluded")
	}
}

func TestParseRejectsRulelessInput(t *testing.T) {
	if _, err := Parse([]string{"EXDATE:20240311T100000Z"}); err == nil {
		t.Fatalf("expected error for input without an RRULE")
	}
	if _, err := Parse([]string{"garbage"}); err == nil {
		t.Fatalf("expected error for malformed line")
	}
}

func TestExpandDropsExclusionsAndMaterialized(t *testing.T) {
	dtstart := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC) // a Monday
	rec := &meetsync.Recurrence{
		Frequency: meetsync.Weekly,
		Interval:  1,
		Weekdays:  []meetsync.RecurrenceDay{{Weekday: time.Monday}},
		ExDates:   []time.Time{time.Date(2024, 3, 11, 10, 0, 0, 0, time.UTC)},
	}
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	materialized := []time.Time{time.Date(2024, 3, 18, 10, 0, 0, 0, time.UTC)}

	occs, err := Expand(rec, dtstart, from, to, materialized)
	if err != nil {
		t.Fatalf("expand failed: %v", err)
	}

	want := []time.Time{
		time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 25, 10, 0, 0, 0, time.UTC),
	}
	if len(occs) != len(want) {
		t.Fatalf("expected %d occurrences, got %d: %v", len(want), len(occs), occs)
	}
	for i := range occs {
		if !occs[i].Equal(want[i]) {
			t.Fatalf("occurrence %d: expected %v, got %v", i, want[i], occs[i])
		}
	}
}

func TestExpandHonorsWindowBounds(t *testing.T) {
	dtstart := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	rec := &meetsync.Recurrence{Frequency: meetsync.Daily, Interval: 1}
	from := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC)

	occs, err := Expand(rec, dtstart, from, to, nil)
	if err != nil {
		t.Fatalf("expand failed: %v", err)
	}
	if len(occs) != 3 {
		t.Fatalf("expected 3 occurrences in window, got %d: %v", len(occs), occs)
	}
	for _, occ := range occs {
		if occ.Before(from) || !occ.Before(to) {
			t.Fatalf("occurrence %v outside [%v, %v)", occ, from, to)
		}
	}
}

func TestExpandRespectsCount(t *testing.T) {
	dtstart := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	rec := &meetsync.Recurrence{Frequency: meetsync.Daily, Interval: 1, Count: 3}

	occs, err := Expand(rec, dtstart, dtstart, dtstart.AddDate(0, 1, 0), nil)
	if err != nil {
		t.Fatalf("expand failed: %v", err)
	}
	if len(occs) != 3 {
		t.Fatalf("expected count to cap occurrences at 3, got %d", len(occs))
	}
}

// A parsed rule, re-serialized and parsed again, must generate the same
// occurrence set even though the text need not match byte for byte.
func TestFormatParseRoundTripKeepsOccurrences(t *testing.T) {
	lines := []string{
		"RRULE:FREQ=WEEKLY;INTERVAL=2;BYDAY=TU,TH",
		"EXDATE:20240312T140000Z",
	}
	first, err := Parse(lines)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	formatted, err := Format(first)
	if err != nil {
		t.Fatalf("format failed: %v", err)
	}
	second, err := Parse(formatted)
	if err != nil {
		t.Fatalf("reparse failed: %v", err)
	}

	dtstart := time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC) // a Tuesday
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	a, err := Expand(first, dtstart, from, to, nil)
	if err != nil {
		t.Fatalf("expand original failed: %v", err)
	}
	b, err := Expand(second, dtstart, from, to, nil)
	if err != nil {
		t.Fatalf("expand reparsed failed: %v", err)
	}
	if len(a) == 0 {
		t.Fatalf("expected occurrences from original rule")
	}
	if len(a) != len(b) {
		t.Fatalf("occurrence sets differ in size: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			t.Fatalf("occurrence %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestFormatEmitsNthWeekday(t *testing.T) {
	rec := &meetsync.Recurrence{
		Frequency: meetsync.Monthly,
		Interval:  1,
		Weekdays:  []meetsync.RecurrenceDay{{Weekday: time.Friday, Nth: 2}},
	}
	lines, err := Format(rec)
	if err != nil {
		t.Fatalf("format failed: %v", err)
	}
	reparsed, err := Parse(lines)
	if err != nil {
		t.Fatalf("reparse failed: %v", err)
	}
	if len(reparsed.Weekdays) != 1 || reparsed.Weekdays[0].Nth != 2 || reparsed.Weekdays[0].Weekday != time.Friday {
		t.Fatalf("expected second Friday to survive the round trip, got %+v", reparsed.Weekdays)
	}
}
