package meetsync

import (
	"strings"
	"time"
)

// Event is the provider-agnostic calendar event. Every provider mapper
// converts its native representation into this shape and back; anything a
// provider knows that has no unified field lives in Extensions so the
// round-trip does not lose it.
type Event struct {
	ID           string
	Provider     ProviderKind
	CalendarID   string
	CalendarName string
	Title        string
	Description  string
	StartsAt     time.Time
	EndsAt       time.Time
	AllDay       bool
	Attendees    []Attendee
	Recurrence   *Recurrence
	Permissions  *Permissions
	MeetingURL   string
	Status       EventStatus
	UpdatedAt    time.Time

	// RecurringID links an edited instance of a series back to its master.
	RecurringID string

	Extensions map[string]string
}

// Valid reports whether the event satisfies the start/end invariant:
// EndsAt must be after StartsAt, except for all-day events where the two
// may coincide on day boundaries.
func (e *Event) Valid() bool {
	if e.AllDay {
		return !e.EndsAt.Before(e.StartsAt)
	}
	return e.EndsAt.After(e.StartsAt)
}

// Attendee returns the attendee with the given email, matched
// case-insensitively, or nil.
func (e *Event) Attendee(email string) *Attendee {
	for i := range e.Attendees {
		if strings.EqualFold(e.Attendees[i].Email, email) {
			return &e.Attendees[i]
		}
	}
	return nil
}

type EventStatus string

func (s EventStatus) String() string {
	return string(s)
}

const (
	StatusConfirmed EventStatus = "confirmed"
	StatusTentative EventStatus = "tentative"
	StatusCancelled EventStatus = "cancelled"
	StatusDeclined  EventStatus = "declined"
)

type Attendee struct {
	Email      string
	Name       string
	RSVP       RSVP
	Organizer  bool
	Extensions map[string]string
}

type RSVP string

func (r RSVP) String() string {
	return string(r)
}

const (
	RSVPAccepted  RSVP = "accepted"
	RSVPRejected  RSVP = "rejected"
	RSVPTentative RSVP = "tentative"
	RSVPPending   RSVP = "pending"
)

type ProviderKind string

func (k ProviderKind) String() string {
	return string(k)
}

const (
	ProviderGoogle ProviderKind = "google"
	ProviderOffice ProviderKind = "office"
	ProviderCalDAV ProviderKind = "caldav"
	ProviderWebcal ProviderKind = "webcal"
)

// Permission names the capabilities a meeting can restrict for participants
// that are neither Owner nor Scheduler.
type Permission string

const (
	PermSeeGuestList Permission = "see-guest-list"
	PermInviteGuests Permission = "invite-guests"
	PermEditMeeting  Permission = "edit-meeting"
)

// Permissions is an allow-list over the three capabilities. A nil
// *Permissions means the meeting is unrestricted: everyone may do
// everything. A non-nil list restricts non-Owner/Scheduler participants to
// exactly the listed capabilities.
type Permissions struct {
	Allowed []Permission
}

// Allows reports whether the capability is granted by this list. The nil
// receiver is the unrestricted case.
func (p *Permissions) Allows(perm Permission) bool {
	if p == nil {
		return true
	}
	for _, a := range p.Allowed {
		if a == perm {
			return true
		}
	}
	return false
}

// Equal compares two permission lists as sets.
func (p *Permissions) Equal(other *Permissions) bool {
	if (p == nil) != (other == nil) {
		return false
	}
	if p == nil {
		return true
	}
	if len(p.Allowed) != len(other.Allowed) {
		return false
	}
	for _, a := range p.Allowed {
		if !other.Allows(a) {
			return false
		}
	}
	return true
}

// Interval is an opaque busy [Start, End) range without meeting content.
type Interval struct {
	Start time.Time
	End   time.Time
}

const dayMillis = 24 * 60 * 60 * 1000

// IsAllDay reports whether a start/end pair describes an all-day event:
// the duration is a whole number of days and neither endpoint carries a
// time-of-day component.
func IsAllDay(start, end time.Time) bool {
	d := end.Sub(start).Milliseconds()
	if d <= 0 || d%dayMillis != 0 {
		return false
	}
	h, m, s := start.Clock()
	return h == 0 && m == 0 && s == 0 && start.Nanosecond() == 0
}
