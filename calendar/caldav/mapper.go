package caldav

import (
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"meetsync"
	"meetsync/internal/recurrence"
)

const (
	propUpdatedBy  = "X-MEETSYNC-UPDATED-BY"
	propInternalID = "X-MEETSYNC-MEETING-ID"

	// ExtRecurrenceID carries the instant an edited instance replaces,
	// as RFC 3339, in the event's extension bag.
	ExtRecurrenceID = "recurrenceId"
)

// ToUnified converts one VEVENT component into the unified model.
func ToUnified(vevent *ical.Component, calendarID, calendarName, accountEmail string, readOnly bool) *meetsync.Event {
	event := &meetsync.Event{
		Provider:     meetsync.ProviderCalDAV,
		CalendarID:   calendarID,
		CalendarName: calendarName,
		ID:           propText(vevent, ical.PropUID),
		Title:        propText(vevent, ical.PropSummary),
		Description:  propText(vevent, ical.PropDescription),
		Status:       mapStatus(propText(vevent, ical.PropStatus)),
	}

	if tag := propText(vevent, propUpdatedBy); tag == meetsync.UpdatedByTag {
		event.Extensions = map[string]string{propUpdatedBy: tag}
		if id := propText(vevent, propInternalID); id != "" {
			event.Extensions[propInternalID] = id
			event.ID = meetsync.RecoverInternalID(id)
		}
	}

	if start := vevent.Props.Get(ical.PropDateTimeStart); start != nil {
		if t, err := start.DateTime(time.UTC); err == nil {
			event.StartsAt = t
		}
		event.AllDay = start.Params.Get(ical.ParamValue) == "DATE"
	}
	if end := vevent.Props.Get(ical.PropDateTimeEnd); end != nil {
		if t, err := end.DateTime(time.UTC); err == nil {
			event.EndsAt = t
		}
	}
	if !event.AllDay {
		event.AllDay = meetsync.IsAllDay(event.StartsAt, event.EndsAt)
	}
	if mod := vevent.Props.Get(ical.PropLastModified); mod != nil {
		if t, err := mod.DateTime(time.UTC); err == nil {
			event.UpdatedAt = t
		}
	}

	organizer := mailto(propText(vevent, ical.PropOrganizer))
	var selfDeclined bool
	for _, p := range vevent.Props[ical.PropAttendee] {
		email := mailto(p.Value)
		if email == "" {
			continue
		}
		att := meetsync.Attendee{
			Email:     email,
			Name:      p.Params.Get(ical.ParamCommonName),
			Organizer: strings.EqualFold(email, organizer),
			RSVP:      mapPartStat(p.Params.Get(ical.ParamParticipationStatus)),
		}
		event.Attendees = append(event.Attendees, att)
		if strings.EqualFold(email, accountEmail) && !att.Organizer {
			selfDeclined = att.RSVP == meetsync.RSVPRejected
		}
	}
	if selfDeclined && event.Status != meetsync.StatusCancelled {
		event.Status = meetsync.StatusDeclined
	}

	// CalDAV has no guest-permission booleans. The organizer gets the
	// unrestricted nil list, everyone else the full explicit list.
	if !strings.EqualFold(organizer, accountEmail) && organizer != "" {
		event.Permissions = &meetsync.Permissions{Allowed: []meetsync.Permission{
			meetsync.PermSeeGuestList,
			meetsync.PermInviteGuests,
			meetsync.PermEditMeeting,
		}}
	}

	location := propText(vevent, ical.PropLocation)
	event.MeetingURL = meetsync.ResolveMeetingURL("", propText(vevent, ical.PropURL), location, event.Description)

	if lines := recurrenceLines(vevent); len(lines) > 0 {
		if rec, err := recurrence.Parse(lines); err == nil {
			event.Recurrence = rec
		}
	}
	if rid := vevent.Props.Get(ical.PropRecurrenceID); rid != nil {
		event.RecurringID = event.ID
		if t, err := rid.DateTime(time.UTC); err == nil {
			if event.Extensions == nil {
				event.Extensions = map[string]string{}
			}
			event.Extensions[ExtRecurrenceID] = t.UTC().Format(time.RFC3339)
		}
	}
	return event
}

// FromUnified builds a VEVENT component for the unified event.
func FromUnified(event *meetsync.Event) (*ical.Component, error) {
	if !event.Valid() {
		return nil, fmt.Errorf("caldav: event %s has an invalid time range", event.ID)
	}

	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, event.ID)
	ve.Props.SetText(ical.PropSummary, event.Title)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	ve.Props.SetText(propUpdatedBy, meetsync.UpdatedByTag)
	ve.Props.SetText(propInternalID, event.ID)

	if event.AllDay {
		setDate(ve, ical.PropDateTimeStart, event.StartsAt)
		setDate(ve, ical.PropDateTimeEnd, event.EndsAt)
	} else {
		ve.Props.SetDateTime(ical.PropDateTimeStart, event.StartsAt.UTC())
		ve.Props.SetDateTime(ical.PropDateTimeEnd, event.EndsAt.UTC())
	}

	if event.Description != "" {
		ve.Props.SetText(ical.PropDescription, event.Description)
	}
	if event.MeetingURL != "" {
		ve.Props.SetText(ical.PropURL, event.MeetingURL)
		ve.Props.SetText(ical.PropLocation, event.MeetingURL)
	}
	ve.Props.SetText(ical.PropStatus, unmapStatus(event.Status))

	for _, att := range event.Attendees {
		name := ical.PropAttendee
		if att.Organizer {
			name = ical.PropOrganizer
		}
		p := ical.NewProp(name)
		p.SetText("mailto:" + att.Email)
		if att.Name != "" {
			p.Params.Set(ical.ParamCommonName, att.Name)
		}
		if !att.Organizer {
			p.Params.Set(ical.ParamParticipationStatus, unmapPartStat(att.RSVP))
		}
		ve.Props.Add(p)
	}

	if event.Recurrence != nil {
		lines := event.Recurrence.RawRules
		if len(lines) == 0 {
			formatted, err := recurrence.Format(event.Recurrence)
			if err != nil {
				return nil, err
			}
			lines = formatted
		}
		for _, line := range lines {
			name, value, ok := strings.Cut(line, ":")
			if !ok {
				continue
			}
			name, _, _ = strings.Cut(name, ";")
			p := ical.NewProp(strings.ToUpper(strings.TrimSpace(name)))
			p.Value = value
			ve.Props.Add(p)
		}
	}
	return ve, nil
}

func propText(c *ical.Component, name string) string {
	p := c.Props.Get(name)
	if p == nil {
		return ""
	}
	text, err := p.Text()
	if err != nil {
		return p.Value
	}
	return text
}

func recurrenceLines(c *ical.Component) []string {
	var lines []string
	for _, name := range []string{ical.PropRecurrenceRule, ical.PropExceptionDates} {
		for _, p := range c.Props[name] {
			line := p.Name
			if tzid := p.Params.Get(ical.ParamTimezoneID); tzid != "" {
				line += ";TZID=" + tzid
			}
			lines = append(lines, line+":"+p.Value)
		}
	}
	return lines
}

func setDate(c *ical.Component, name string, t time.Time) {
	p := ical.NewProp(name)
	p.Params.Set(ical.ParamValue, "DATE")
	p.Value = t.UTC().Format("20060102")
	c.Props.Set(p)
}

func mailto(value string) string {
	return strings.TrimPrefix(strings.TrimPrefix(value, "mailto:"), "MAILTO:")
}

func mapStatus(status string) meetsync.EventStatus {
	switch strings.ToUpper(status) {
	case "CANCELLED":
		return meetsync.StatusCancelled
	case "TENTATIVE":
		return meetsync.StatusTentative
	default:
		return meetsync.StatusConfirmed
	}
}

func unmapStatus(status meetsync.EventStatus) string {
	switch status {
	case meetsync.StatusCancelled:
		return "CANCELLED"
	case meetsync.StatusTentative:
		return "TENTATIVE"
	default:
		return "CONFIRMED"
	}
}

func mapPartStat(partstat string) meetsync.RSVP {
	switch strings.ToUpper(partstat) {
	case "ACCEPTED":
		return meetsync.RSVPAccepted
	case "DECLINED":
		return meetsync.RSVPRejected
	case "TENTATIVE":
		return meetsync.RSVPTentative
	default:
		return meetsync.RSVPPending
	}
}

func unmapPartStat(rsvp meetsync.RSVP) string {
	switch rsvp {
	case meetsync.RSVPAccepted:
		return "ACCEPTED"
	case meetsync.RSVPRejected:
		return "DECLINED"
	case meetsync.RSVPTentative:
		return "TENTATIVE"
	default:
		return "NEEDS-ACTION"
	}
}
