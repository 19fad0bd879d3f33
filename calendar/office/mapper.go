package office

import (
	"fmt"
	"time"

	"meetsync"
	"meetsync/internal/recurrence"
)

const (
	propUpdatedBy  = "updatedBy"
	propInternalID = "meetingId"
)

// Event is the groupware wire representation. Timestamps travel as
// RFC 3339 strings; recurrence travels as raw iCalendar lines.
type Event struct {
	ID              string            `json:"id"`
	Subject         string            `json:"subject"`
	Body            string            `json:"body,omitempty"`
	Location        string            `json:"location,omitempty"`
	WebLink         string            `json:"webLink,omitempty"`
	JoinURL         string            `json:"joinUrl,omitempty"`
	StartsAt        string            `json:"startsAt"`
	EndsAt          string            `json:"endsAt"`
	IsAllDay        bool              `json:"isAllDay,omitempty"`
	Status          string            `json:"status,omitempty"`
	UpdatedAt       string            `json:"updatedAt,omitempty"`
	Attendees       []Attendee        `json:"attendees,omitempty"`
	Recurrence      []string          `json:"recurrence,omitempty"`
	GuestsCanEdit   bool              `json:"guestsCanEdit,omitempty"`
	GuestsCanInvite *bool             `json:"guestsCanInvite,omitempty"`
	GuestsCanSee    *bool             `json:"guestsCanSeeGuests,omitempty"`
	Properties      map[string]string `json:"properties,omitempty"`
}

type Attendee struct {
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	Organizer bool   `json:"organizer,omitempty"`
	Self      bool   `json:"self,omitempty"`
	Response  string `json:"response,omitempty"`
}

// ToUnified converts a groupware event into the unified model.
func ToUnified(oevent *Event, calendarID, calendarName, accountEmail string, readOnly bool) *meetsync.Event {
	event := &meetsync.Event{
		ID:           oevent.ID,
		Provider:     meetsync.ProviderOffice,
		CalendarID:   calendarID,
		CalendarName: calendarName,
		Title:        oevent.Subject,
		Description:  oevent.Body,
		AllDay:       oevent.IsAllDay,
		Status:       mapStatus(oevent.Status),
	}
	if len(oevent.Properties) > 0 {
		event.Extensions = make(map[string]string, len(oevent.Properties))
		for k, v := range oevent.Properties {
			event.Extensions[k] = v
		}
		if event.Extensions[propUpdatedBy] == meetsync.UpdatedByTag {
			if id := event.Extensions[propInternalID]; id != "" {
				event.ID = meetsync.RecoverInternalID(id)
			}
		}
	}

	if t, err := time.Parse(time.RFC3339, oevent.StartsAt); err == nil {
		event.StartsAt = t
	}
	if t, err := time.Parse(time.RFC3339, oevent.EndsAt); err == nil {
		event.EndsAt = t
	}
	if !event.AllDay {
		event.AllDay = meetsync.IsAllDay(event.StartsAt, event.EndsAt)
	}
	if t, err := time.Parse(time.RFC3339, oevent.UpdatedAt); err == nil {
		event.UpdatedAt = t
	}

	var selfDeclined bool
	for _, oa := range oevent.Attendees {
		if oa.Email == "" {
			continue
		}
		event.Attendees = append(event.Attendees, meetsync.Attendee{
			Email:     oa.Email,
			Name:      oa.Name,
			Organizer: oa.Organizer,
			RSVP:      mapResponse(oa.Response),
		})
		if oa.Self && !oa.Organizer {
			selfDeclined = oa.Response == "declined"
		}
	}
	if selfDeclined && event.Status != meetsync.StatusCancelled {
		event.Status = meetsync.StatusDeclined
	}

	event.Permissions = mapPermissions(oevent)
	event.MeetingURL = meetsync.ResolveMeetingURL(oevent.JoinURL, oevent.WebLink, oevent.Location, oevent.Body)

	if len(oevent.Recurrence) > 0 {
		if rec, err := recurrence.Parse(oevent.Recurrence); err == nil {
			event.Recurrence = rec
		}
	}
	return event
}

// FromUnified converts a unified event back into the groupware wire shape.
func FromUnified(event *meetsync.Event) (*Event, error) {
	if !event.Valid() {
		return nil, fmt.Errorf("office: event %s has an invalid time range", event.ID)
	}

	oevent := &Event{
		ID:       event.ID,
		Subject:  event.Title,
		Body:     event.Description,
		Location: event.MeetingURL,
		JoinURL:  event.MeetingURL,
		StartsAt: event.StartsAt.Format(time.RFC3339),
		EndsAt:   event.EndsAt.Format(time.RFC3339),
		IsAllDay: event.AllDay,
		Status:   unmapStatus(event.Status),
		Properties: map[string]string{
			propUpdatedBy:  meetsync.UpdatedByTag,
			propInternalID: event.ID,
		},
	}

	for _, att := range event.Attendees {
		oevent.Attendees = append(oevent.Attendees, Attendee{
			Email:     att.Email,
			Name:      att.Name,
			Organizer: att.Organizer,
			Response:  unmapResponse(att.RSVP),
		})
	}

	if event.Permissions != nil {
		canInvite := event.Permissions.Allows(meetsync.PermInviteGuests)
		canSee := event.Permissions.Allows(meetsync.PermSeeGuestList)
		oevent.GuestsCanEdit = event.Permissions.Allows(meetsync.PermEditMeeting)
		oevent.GuestsCanInvite = &canInvite
		oevent.GuestsCanSee = &canSee
	}

	if event.Recurrence != nil {
		if len(event.Recurrence.RawRules) > 0 {
			oevent.Recurrence = event.Recurrence.RawRules
		} else {
			lines, err := recurrence.Format(event.Recurrence)
			if err != nil {
				return nil, err
			}
			oevent.Recurrence = lines
		}
	}
	return oevent, nil
}

func mapPermissions(oevent *Event) *meetsync.Permissions {
	for _, oa := range oevent.Attendees {
		if oa.Self && oa.Organizer {
			return nil
		}
	}

	var perms meetsync.Permissions
	if oevent.GuestsCanEdit {
		perms.Allowed = append(perms.Allowed, meetsync.PermEditMeeting)
	}
	if oevent.GuestsCanInvite == nil || *oevent.GuestsCanInvite {
		perms.Allowed = append(perms.Allowed, meetsync.PermInviteGuests)
	}
	if oevent.GuestsCanSee == nil || *oevent.GuestsCanSee {
		perms.Allowed = append(perms.Allowed, meetsync.PermSeeGuestList)
	}
	if len(perms.Allowed) == 3 {
		return nil
	}
	return &perms
}

func mapStatus(status string) meetsync.EventStatus {
	switch status {
	case "cancelled":
		return meetsync.StatusCancelled
	case "tentative":
		return meetsync.StatusTentative
	default:
		return meetsync.StatusConfirmed
	}
}

func unmapStatus(status meetsync.EventStatus) string {
	switch status {
	case meetsync.StatusCancelled:
		return "cancelled"
	case meetsync.StatusTentative:
		return "tentative"
	default:
		return "confirmed"
	}
}

func mapResponse(response string) meetsync.RSVP {
	switch response {
	case "accepted":
		return meetsync.RSVPAccepted
	case "declined":
		return meetsync.RSVPRejected
	case "tentative":
		return meetsync.RSVPTentative
	default:
		return meetsync.RSVPPending
	}
}

func unmapResponse(rsvp meetsync.RSVP) string {
	switch rsvp {
	case meetsync.RSVPAccepted:
		return "accepted"
	case meetsync.RSVPRejected:
		return "declined"
	case meetsync.RSVPTentative:
		return "tentative"
	default:
		return "none"
	}
}
