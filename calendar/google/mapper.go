package google

import (
	"fmt"
	"time"

	"google.golang.org/api/calendar/v3"

	"meetsync"
	"meetsync/internal/recurrence"
)

const (
	propUpdatedBy  = "updatedBy"
	propInternalID = "meetingId"
)

// ToUnified converts a Google Calendar event to the unified model.
func ToUnified(gevent *calendar.Event, calendarID, calendarName, accountEmail string, readOnly bool) *meetsync.Event {
	event := &meetsync.Event{
		ID:           gevent.Id,
		Provider:     meetsync.ProviderGoogle,
		CalendarID:   calendarID,
		CalendarName: calendarName,
		Title:        gevent.Summary,
		Description:  gevent.Description,
		Status:       mapStatus(gevent.Status),
		RecurringID:  gevent.RecurringEventId,
		Extensions:   map[string]string{},
	}

	// Events we created carry the private marker; recover the internal id
	// from it instead of trusting the provider id.
	if gevent.ExtendedProperties != nil {
		for k, v := range gevent.ExtendedProperties.Private {
			event.Extensions[k] = v
		}
		if gevent.ExtendedProperties.Private[propUpdatedBy] == meetsync.UpdatedByTag {
			internal := gevent.ExtendedProperties.Private[propInternalID]
			if internal == "" {
				internal = gevent.Id
			}
			event.ID = meetsync.RecoverInternalID(internal)
		}
	}

	event.StartsAt, event.EndsAt, event.AllDay = mapTimes(gevent.Start, gevent.End)
	if gevent.Updated != "" {
		event.UpdatedAt, _ = time.Parse(time.RFC3339, gevent.Updated)
	}

	var selfDeclined bool
	organizerSelf := gevent.Organizer != nil && gevent.Organizer.Self
	for _, ga := range gevent.Attendees {
		att := meetsync.Attendee{
			Email:     ga.Email,
			Name:      ga.DisplayName,
			RSVP:      mapRSVP(ga.ResponseStatus),
			Organizer: ga.Organizer,
		}
		event.Attendees = append(event.Attendees, att)
		if ga.Self {
			if ga.Organizer {
				organizerSelf = true
			}
			selfDeclined = ga.ResponseStatus == "declined"
		}
	}
	if selfDeclined && event.Status != meetsync.StatusCancelled {
		event.Status = meetsync.StatusDeclined
	}

	event.Permissions = mapPermissions(gevent, organizerSelf)
	event.MeetingURL = meetsync.ResolveMeetingURL(
		conferenceURL(gevent), gevent.HangoutLink, gevent.Location, gevent.Description)

	if len(gevent.Recurrence) > 0 {
		if rec, err := recurrence.Parse(gevent.Recurrence); err == nil {
			event.Recurrence = rec
		}
	}
	return event
}

// FromUnified converts a unified event back to the Google representation,
// embedding the private marker so the event can be recognized as ours on
// the way back in.
func FromUnified(event *meetsync.Event) (*calendar.Event, error) {
	gevent := &calendar.Event{
		Id:          event.ID,
		Summary:     event.Title,
		Description: event.Description,
		Location:    event.MeetingURL,
		Status:      unmapStatus(event.Status),
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{
				propUpdatedBy:  meetsync.UpdatedByTag,
				propInternalID: event.ID,
			},
		},
		Reminders: &calendar.EventReminders{
			UseDefault:      true,
			ForceSendFields: []string{"UseDefault"},
		},
	}

	if event.AllDay {
		gevent.Start = &calendar.EventDateTime{Date: event.StartsAt.Format("2006-01-02")}
		gevent.End = &calendar.EventDateTime{Date: event.EndsAt.Format("2006-01-02")}
	} else {
		gevent.Start = &calendar.EventDateTime{DateTime: event.StartsAt.Format(time.RFC3339)}
		gevent.End = &calendar.EventDateTime{DateTime: event.EndsAt.Format(time.RFC3339)}
	}

	for _, att := range event.Attendees {
		gevent.Attendees = append(gevent.Attendees, &calendar.EventAttendee{
			Email:          att.Email,
			DisplayName:    att.Name,
			Organizer:      att.Organizer,
			ResponseStatus: unmapRSVP(att.RSVP),
		})
	}

	if event.Permissions != nil {
		canInvite := event.Permissions.Allows(meetsync.PermInviteGuests)
		canSee := event.Permissions.Allows(meetsync.PermSeeGuestList)
		gevent.GuestsCanModify = event.Permissions.Allows(meetsync.PermEditMeeting)
		gevent.GuestsCanInviteOthers = &canInvite
		gevent.GuestsCanSeeOtherGuests = &canSee
	}

	if event.Recurrence != nil {
		if len(event.Recurrence.RawRules) > 0 {
			gevent.Recurrence = event.Recurrence.RawRules
		} else {
			lines, err := recurrence.Format(event.Recurrence)
			if err != nil {
				return nil, fmt.Errorf("google: formatting recurrence: %w", err)
			}
			gevent.Recurrence = lines
		}
	}
	return gevent, nil
}

func mapTimes(start, end *calendar.EventDateTime) (startsAt, endsAt time.Time, allDay bool) {
	if start == nil || end == nil {
		return
	}
	if start.Date != "" {
		startsAt, _ = time.Parse("2006-01-02", start.Date)
		endsAt, _ = time.Parse("2006-01-02", end.Date)
		return startsAt, endsAt, true
	}
	startsAt, _ = time.Parse(time.RFC3339, start.DateTime)
	endsAt, _ = time.Parse(time.RFC3339, end.DateTime)
	return startsAt, endsAt, meetsync.IsAllDay(startsAt, endsAt)
}

// mapPermissions reduces Google's guest booleans to the shared three-flag
// vocabulary. The organizer keeps everything; Google treats the invite and
// see-guests toggles as on unless explicitly disabled.
func mapPermissions(gevent *calendar.Event, organizerSelf bool) *meetsync.Permissions {
	if organizerSelf {
		return nil
	}
	allowed := []meetsync.Permission{}
	if gevent.GuestsCanModify {
		allowed = append(allowed, meetsync.PermEditMeeting)
	}
	if gevent.GuestsCanInviteOthers == nil || *gevent.GuestsCanInviteOthers {
		allowed = append(allowed, meetsync.PermInviteGuests)
	}
	if gevent.GuestsCanSeeOtherGuests == nil || *gevent.GuestsCanSeeOtherGuests {
		allowed = append(allowed, meetsync.PermSeeGuestList)
	}
	if len(allowed) == 3 {
		return nil
	}
	return &meetsync.Permissions{Allowed: allowed}
}

func conferenceURL(gevent *calendar.Event) string {
	if gevent.ConferenceData == nil {
		return ""
	}
	for _, entry := range gevent.ConferenceData.EntryPoints {
		if entry.EntryPointType == "video" && entry.Uri != "" {
			return entry.Uri
		}
	}
	return ""
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

// mapRSVP degrades unknown or absent provider values to pending.
func mapRSVP(status string) meetsync.RSVP {
	switch status {
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

func unmapRSVP(rsvp meetsync.RSVP) string {
	switch rsvp {
	case meetsync.RSVPAccepted:
		return "accepted"
	case meetsync.RSVPRejected:
		return "declined"
	case meetsync.RSVPTentative:
		return "tentative"
	default:
		return "needsAction"
	}
}
