// Package recurrence translates provider recurrence-rule text into the
// unified Recurrence shape and expands series into concrete occurrences.
package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"meetsync"
)

var freqToRRule = map[meetsync.Frequency]rrule.Frequency{
	meetsync.Daily:   rrule.DAILY,
	meetsync.Weekly:  rrule.WEEKLY,
	meetsync.Monthly: rrule.MONTHLY,
	meetsync.Yearly:  rrule.YEARLY,
}

var freqFromRRule = map[rrule.Frequency]meetsync.Frequency{
	rrule.DAILY:   meetsync.Daily,
	rrule.WEEKLY:  meetsync.Weekly,
	rrule.MONTHLY: meetsync.Monthly,
	rrule.YEARLY:  meetsync.Yearly,
}

// rrule-go counts weekdays from Monday, time.Weekday from Sunday.
func weekdayFromRRule(d int) time.Weekday {
	return time.Weekday((d + 1) % 7)
}

func weekdayToRRule(w meetsync.RecurrenceDay) rrule.Weekday {
	days := []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU}
	d := days[(int(w.Weekday)+6)%7]
	if w.Nth != 0 {
		d = d.Nth(w.Nth)
	}
	return d
}

// Parse interprets a provider's raw recurrence lines (RRULE, EXDATE). The
// original lines are kept on the result for byte-level round-tripping.
func Parse(raws []string) (*meetsync.Recurrence, error) {
	rec := &meetsync.Recurrence{
		Interval: 1,
		RawRules: append([]string(nil), raws...),
	}
	for _, raw := range raws {
		name, value, ok := strings.Cut(raw, ":")
		if !ok {
			return nil, fmt.Errorf("recurrence: malformed rule line %q", raw)
		}
		// EXDATE may carry parameters such as TZID.
		name, _, _ = strings.Cut(name, ";")

		switch strings.ToUpper(strings.TrimSpace(name)) {
		case "RRULE":
			if err := parseRule(rec, value); err != nil {
				return nil, err
			}
		case "EXDATE":
			dates, err := parseDates(value)
			if err != nil {
				return nil, err
			}
			rec.ExDates = append(rec.ExDates, dates...)
		default:
			// Other lines (EXRULE, RDATE) are preserved in RawRules only.
		}
	}
	if rec.Frequency == "" {
		return nil, fmt.Errorf("recurrence: no RRULE found in %d line(s)", len(raws))
	}
	return rec, nil
}

func parseRule(rec *meetsync.Recurrence, value string) error {
	opt, err := rrule.StrToROption(value)
	if err != nil {
		return fmt.Errorf("recurrence: parsing %q: %w", value, err)
	}
	freq, ok := freqFromRRule[opt.Freq]
	if !ok {
		return fmt.Errorf("recurrence: unsupported frequency in %q", value)
	}
	rec.Frequency = freq
	if opt.Interval > 1 {
		rec.Interval = opt.Interval
	}
	rec.Count = opt.Count
	if !opt.Until.IsZero() {
		until := opt.Until
		rec.Until = &until
	}
	for _, wd := range opt.Byweekday {
		rec.Weekdays = append(rec.Weekdays, meetsync.RecurrenceDay{
			Weekday: weekdayFromRRule(wd.Day()),
			Nth:     wd.N(),
		})
	}
	if len(opt.Bymonthday) > 0 {
		rec.MonthDay = opt.Bymonthday[0]
	}
	if len(opt.Bysetpos) > 0 {
		rec.SetPos = opt.Bysetpos[0]
	}
	return nil
}

func parseDates(value string) ([]time.Time, error) {
	var dates []time.Time
	for _, v := range strings.Split(value, ",") {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		var (
			t   time.Time
			err error
		)
		switch {
		case strings.HasSuffix(v, "Z"):
			t, err = time.Parse("20060102T150405Z", v)
		case strings.Contains(v, "T"):
			t, err = time.ParseInLocation("20060102T150405", v, time.UTC)
		default:
			t, err = time.ParseInLocation("20060102", v, time.UTC)
		}
		if err != nil {
			return nil, fmt.Errorf("recurrence: parsing exclusion date %q: %w", v, err)
		}
		dates = append(dates, t)
	}
	return dates, nil
}

// Format serializes the structured recurrence back to RRULE/EXDATE lines.
// The output is equivalent to the parsed input (same occurrence set), not
// necessarily byte-identical.
func Format(rec *meetsync.Recurrence) ([]string, error) {
	r, err := newRule(rec, time.Time{})
	if err != nil {
		return nil, err
	}
	lines := []string{"RRULE:" + r.String()}
	if len(rec.ExDates) > 0 {
		vals := make([]string, len(rec.ExDates))
		for i, ex := range rec.ExDates {
			vals[i] = ex.UTC().Format("20060102T150405Z")
		}
		lines = append(lines, "EXDATE:"+strings.Join(vals, ","))
	}
	return lines, nil
}

func newRule(rec *meetsync.Recurrence, dtstart time.Time) (*rrule.RRule, error) {
	freq, ok := freqToRRule[rec.Frequency]
	if !ok {
		return nil, fmt.Errorf("recurrence: unsupported frequency %q", rec.Frequency)
	}
	opt := rrule.ROption{
		Freq:    freq,
		Dtstart: dtstart,
	}
	if rec.Interval > 1 {
		opt.Interval = rec.Interval
	}
	if rec.Count > 0 {
		opt.Count = rec.Count
	}
	if rec.Until != nil {
		opt.Until = *rec.Until
	}
	for _, wd := range rec.Weekdays {
		opt.Byweekday = append(opt.Byweekday, weekdayToRRule(wd))
	}
	if rec.MonthDay != 0 {
		opt.Bymonthday = []int{rec.MonthDay}
	}
	if rec.SetPos != 0 {
		opt.Bysetpos = []int{rec.SetPos}
	}
	return rrule.NewRRule(opt)
}

// Expand generates the occurrences of rec anchored at dtstart that fall in
// [from, to), after dropping exclusion dates and any occurrence already
// materialized as a standalone edited instance.
func Expand(rec *meetsync.Recurrence, dtstart, from, to time.Time, materialized []time.Time) ([]time.Time, error) {
	r, err := newRule(rec, dtstart)
	if err != nil {
		return nil, err
	}
	set := rrule.Set{}
	set.DTStart(dtstart)
	set.RRule(r)
	for _, ex := range rec.ExDates {
		set.ExDate(ex)
	}

	var out []time.Time
	for _, occ := range set.Between(from, to, true) {
		if !occ.Before(to) {
			continue
		}
		if isMaterialized(occ, materialized) {
			continue
		}
		out = append(out, occ)
	}
	return out, nil
}

func isMaterialized(occ time.Time, materialized []time.Time) bool {
	for _, m := range materialized {
		if m.Equal(occ) {
			return true
		}
	}
	return false
}
