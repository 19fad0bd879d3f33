package office

import (
	"testing"
	"time"

	"meetsync"
)

func wireEvent() *Event {
	return &Event{
		ID:       "oid-1",
		Subject:  "Budget sync",
		StartsAt: "2024-03-01T10:00:00Z",
		EndsAt:   "2024-03-01T10:30:00Z",
		Status:   "confirmed",
	}
}

func TestToUnifiedParsesTimestamps(t *testing.T) {
	event := ToUnified(wireEvent(), "cal-1", "Team", "me@example.com", false)

	if event.Provider != meetsync.ProviderOffice {
		t.Fatalf("unexpected provider %s", event.Provider)
	}
	if !event.StartsAt.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %v", event.StartsAt)
	}
	if event.AllDay {
		t.Fatalf("expected a timed event")
	}
}

func TestToUnifiedAllDayFlagAndFallback(t *testing.T) {
	oevent := wireEvent()
	oevent.IsAllDay = true
	if !ToUnified(oevent, "cal-1", "Team", "me@example.com", false).AllDay {
		t.Fatalf("expected the explicit flag honored")
	}

	oevent = wireEvent()
	oevent.StartsAt = "2024-03-01T00:00:00Z"
	oevent.EndsAt = "2024-03-02T00:00:00Z"
	if !ToUnified(oevent, "cal-1", "Team", "me@example.com", false).AllDay {
		t.Fatalf("expected the midnight-to-midnight fallback")
	}
}

func TestToUnifiedRecoversInternalID(t *testing.T) {
	oevent := wireEvent()
	oevent.Properties = map[string]string{
		propUpdatedBy:  meetsync.UpdatedByTag,
		propInternalID: "02cd383a77214840b5a1ad4ceb545ff8_20240101T100000Z",
	}

	event := ToUnified(oevent, "cal-1", "Team", "me@example.com", false)
	if event.ID != "02cd383a-7721-4840-b5a1-ad4ceb545ff8" {
		t.Fatalf("expected recovered internal id, got %q", event.ID)
	}
}

func TestToUnifiedSelfDecline(t *testing.T) {
	oevent := wireEvent()
	oevent.Attendees = []Attendee{
		{Email: "organizer@example.com", Organizer: true, Response: "accepted"},
		{Email: "me@example.com", Self: true, Response: "declined"},
	}

	event := ToUnified(oevent, "cal-1", "Team", "me@example.com", false)
	if event.Status != meetsync.StatusDeclined {
		t.Fatalf("expected declined, got %s", event.Status)
	}
}

func TestToUnifiedDropsAttendeesWithoutEmail(t *testing.T) {
	oevent := wireEvent()
	oevent.Attendees = []Attendee{
		{Name: "Room projector"},
		{Email: "a@example.com"},
	}

	event := ToUnified(oevent, "cal-1", "Team", "me@example.com", false)
	if len(event.Attendees) != 1 || event.Attendees[0].Email != "a@example.com" {
		t.Fatalf("unexpected attendees: %+v", event.Attendees)
	}
}

func TestToUnifiedMeetingURLPrefersJoinURL(t *testing.T) {
	oevent := wireEvent()
	oevent.JoinURL = "https://teams.example.com/join/1"
	oevent.WebLink = "https://outlook.example.com/event/1"
	oevent.Location = "https://rooms.example.com/2"

	event := ToUnified(oevent, "cal-1", "Team", "me@example.com", false)
	if event.MeetingURL != "https://teams.example.com/join/1" {
		t.Fatalf("expected join url, got %q", event.MeetingURL)
	}
}

func TestToUnifiedOrganizerSelfUnrestricted(t *testing.T) {
	oevent := wireEvent()
	oevent.Attendees = []Attendee{{Email: "me@example.com", Self: true, Organizer: true}}
	disabled := false
	oevent.GuestsCanInvite = &disabled

	event := ToUnified(oevent, "cal-1", "Team", "me@example.com", false)
	if event.Permissions != nil {
		t.Fatalf("expected the organizer unrestricted, got %+v", event.Permissions)
	}
}

func TestToUnifiedGuestPermissionsReduced(t *testing.T) {
	oevent := wireEvent()
	disabled := false
	oevent.GuestsCanSee = &disabled

	event := ToUnified(oevent, "cal-1", "Team", "me@example.com", false)
	if event.Permissions == nil {
		t.Fatalf("expected a restricted set")
	}
	if event.Permissions.Allows(meetsync.PermSeeGuestList) {
		t.Fatalf("expected see-guests withheld")
	}
	if !event.Permissions.Allows(meetsync.PermInviteGuests) {
		t.Fatalf("expected invite on by default")
	}
}

func TestFromUnifiedRejectsInvalidRange(t *testing.T) {
	event := &meetsync.Event{
		ID:       "evt-1",
		StartsAt: time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC),
		EndsAt:   time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	if _, err := FromUnified(event); err == nil {
		t.Fatalf("expected an inverted range rejected")
	}
}

func TestFromUnifiedCarriesMarkerAndRecurrence(t *testing.T) {
	event := &meetsync.Event{
		ID:       "evt-1",
		Title:    "Budget sync",
		StartsAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		EndsAt:   time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC),
		Recurrence: &meetsync.Recurrence{
			RawRules: []string{"RRULE:FREQ=DAILY;COUNT=5"},
		},
	}

	oevent, err := FromUnified(event)
	if err != nil {
		t.Fatalf("convert failed: %v", err)
	}
	if oevent.Properties[propUpdatedBy] != meetsync.UpdatedByTag {
		t.Fatalf("expected the marker property")
	}
	if oevent.Properties[propInternalID] != "evt-1" {
		t.Fatalf("expected the internal id property, got %q", oevent.Properties[propInternalID])
	}
	if len(oevent.Recurrence) != 1 || oevent.Recurrence[0] != "RRULE:FREQ=DAILY;COUNT=5" {
		t.Fatalf("expected raw recurrence lines kept, got %v", oevent.Recurrence)
	}
	if oevent.StartsAt != "2024-03-01T10:00:00Z" {
		t.Fatalf("unexpected start %q", oevent.StartsAt)
	}
}

func TestResponseMappingRoundTrip(t *testing.T) {
	cases := map[string]meetsync.RSVP{
		"accepted":  meetsync.RSVPAccepted,
		"declined":  meetsync.RSVPRejected,
		"tentative": meetsync.RSVPTentative,
		"none":      meetsync.RSVPPending,
		"weird":     meetsync.RSVPPending,
	}
	for wire, want := range cases {
		if got := mapResponse(wire); got != want {
			t.Errorf("mapResponse(%q) = %s, want %s", wire, got, want)
		}
	}
	if unmapResponse(meetsync.RSVPPending) != "none" {
		t.Errorf("expected pending to serialize as none")
	}
}
