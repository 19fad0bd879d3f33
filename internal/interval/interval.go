// Package interval merges busy [start, end) ranges from internal meeting
// slots and external calendars into one sorted, non-overlapping set.
package interval

import (
	"sort"
	"time"

	"meetsync"
)

// Merge returns the sorted union of the given intervals. Overlapping and
// adjacent intervals coalesce; empty or inverted intervals are dropped.
func Merge(intervals []meetsync.Interval) []meetsync.Interval {
	valid := make([]meetsync.Interval, 0, len(intervals))
	for _, iv := range intervals {
		if iv.End.After(iv.Start) {
			valid = append(valid, iv)
		}
	}
	if len(valid) == 0 {
		return nil
	}

	sort.Slice(valid, func(i, j int) bool {
		return valid[i].Start.Before(valid[j].Start)
	})

	merged := []meetsync.Interval{valid[0]}
	for _, cur := range valid[1:] {
		last := &merged[len(merged)-1]
		if cur.Start.After(last.End) {
			merged = append(merged, cur)
			continue
		}
		if cur.End.After(last.End) {
			last.End = cur.End
		}
	}
	return merged
}

// Aggregate merges several per-account busy sets into one.
func Aggregate(sets ...[]meetsync.Interval) []meetsync.Interval {
	var all []meetsync.Interval
	for _, set := range sets {
		all = append(all, set...)
	}
	return Merge(all)
}

// FromSlots converts internal meeting slots into busy intervals, clipped to
// the [from, to) window.
func FromSlots(meetings []*meetsync.Meeting, from, to time.Time) []meetsync.Interval {
	var out []meetsync.Interval
	for _, m := range meetings {
		if !m.EndsAt.After(from) || !m.StartsAt.Before(to) {
			continue
		}
		iv := meetsync.Interval{Start: m.StartsAt, End: m.EndsAt}
		if iv.Start.Before(from) {
			iv.Start = from
		}
		if iv.End.After(to) {
			iv.End = to
		}
		out = append(out, iv)
	}
	return Merge(out)
}
