package meetsync

import (
	"testing"
	"time"
)

func TestEventValid(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	e := &Event{StartsAt: start, EndsAt: start.Add(time.Hour)}
	if !e.Valid() {
		t.Fatalf("expected timed event with end after start to be valid")
	}
	e.EndsAt = start
	if e.Valid() {
		t.Fatalf("expected zero-length timed event to be invalid")
	}
	e.AllDay = true
	if !e.Valid() {
		t.Fatalf("expected all-day event with end == start to be valid")
	}
	e.EndsAt = start.Add(-time.Hour)
	if e.Valid() {
		t.Fatalf("expected inverted all-day event to be invalid")
	}
}

func TestIsAllDay(t *testing.T) {
	midnight := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	if !IsAllDay(midnight, midnight.AddDate(0, 0, 1)) {
		t.Fatalf("expected one full day to be all-day")
	}
	if !IsAllDay(midnight, midnight.AddDate(0, 0, 3)) {
		t.Fatalf("expected three full days to be all-day")
	}
	if IsAllDay(midnight.Add(10*time.Hour), midnight.Add(34*time.Hour)) {
		t.Fatalf("expected day starting at 10:00 not to be all-day")
	}
	if IsAllDay(midnight, midnight.Add(25*time.Hour)) {
		t.Fatalf("expected 25h duration not to be all-day")
	}
	if IsAllDay(midnight, midnight) {
		t.Fatalf("expected empty range not to be all-day")
	}
}

func TestEventAttendeeIsCaseInsensitive(t *testing.T) {
	e := &Event{Attendees: []Attendee{{Email: "Ana@Example.com"}}}
	if e.Attendee("ana@example.com") == nil {
		t.Fatalf("expected case-insensitive attendee match")
	}
	if e.Attendee("bob@example.com") != nil {
		t.Fatalf("expected no match for unknown attendee")
	}
}

func TestPermissionsAllows(t *testing.T) {
	var unrestricted *Permissions
	if !unrestricted.Allows(PermEditMeeting) {
		t.Fatalf("expected nil permission list to allow everything")
	}

	restricted := &Permissions{Allowed: []Permission{PermInviteGuests}}
	if !restricted.Allows(PermInviteGuests) {
		t.Fatalf("expected listed capability to be allowed")
	}
	if restricted.Allows(PermEditMeeting) {
		t.Fatalf("expected unlisted capability to be denied")
	}
}

func TestPermissionsEqualComparesAsSets(t *testing.T) {
	a := &Permissions{Allowed: []Permission{PermInviteGuests, PermSeeGuestList}}
	b := &Permissions{Allowed: []Permission{PermSeeGuestList, PermInviteGuests}}
	if !a.Equal(b) {
		t.Fatalf("expected order-independent equality")
	}
	if a.Equal(nil) {
		t.Fatalf("expected restricted list to differ from unrestricted nil")
	}
	var n *Permissions
	if !n.Equal(nil) {
		t.Fatalf("expected two unrestricted lists to be equal")
	}
}

func TestParticipantKeyPrefersAddress(t *testing.T) {
	p := Participant{AccountAddress: "acct-1", GuestEmail: "Guest@Example.com"}
	if p.Key() != "acct-1" {
		t.Fatalf("expected address key, got %q", p.Key())
	}
	p.AccountAddress = ""
	if p.Key() != "guest@example.com" {
		t.Fatalf("expected lowercased guest email key, got %q", p.Key())
	}
}
