package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"meetsync"
)

// UpdateRequest carries one proposed meeting mutation. Pointer fields mean
// "change this"; nil leaves the existing value alone. Value fields are
// always compared against the existing meeting, and a field whose proposed
// value equals the current one needs no permission at all.
type UpdateRequest struct {
	Actor        meetsync.Account
	TypeID       string
	StartsAt     time.Time
	EndsAt       time.Time
	Existing     *meetsync.Meeting
	Participants []meetsync.Participant
	Content      string
	MeetingURL   string
	Provider     meetsync.ProviderKind

	Title       *string
	Reminders   *[]time.Duration
	RepeatRule  *meetsync.Recurrence
	Permissions *meetsync.Permissions
	CalendarID  *string
}

// ParsedUpdate is the validated outcome of a parse step: the meeting as it
// was, the participant acting on it, and the payload to persist with its
// version already incremented.
type ParsedUpdate struct {
	Existing *meetsync.Meeting
	Actor    *meetsync.Participant
	Payload  *meetsync.Meeting
}

// ParseMeetingUpdate validates a full-meeting update against the
// permission model. Gates run in a fixed order: the guest list first
// (invite-guests), then role reassignments, title, content, meeting URL,
// provider, time, reminders, recurrence and the permission list itself
// (edit-meeting each). Owner and Scheduler bypass every gate.
func (e *Engine) ParseMeetingUpdate(ctx context.Context, req UpdateRequest) (*ParsedUpdate, error) {
	existing := req.Existing
	if existing == nil || existing.ID == "" {
		return nil, meetsync.ErrChangeConflict
	}
	actor := existing.Participant(req.Actor)
	if actor == nil {
		return nil, meetsync.ErrChangeConflict
	}

	privileged := actor.Role == meetsync.RoleOwner || actor.Role == meetsync.RoleScheduler
	perms := existing.Permissions

	mayInvite := privileged || perms.Allows(meetsync.PermInviteGuests)
	mayEdit := privileged || perms.Allows(meetsync.PermEditMeeting)

	if len(req.Participants) > 0 && !sameParticipants(existing.Participants, req.Participants) && !mayInvite {
		return nil, fmt.Errorf("guest list: %w", meetsync.ErrDetailsModificationDenied)
	}
	if len(req.Participants) > 0 && !sameRoles(existing.Participants, req.Participants) && !mayEdit {
		return nil, fmt.Errorf("roles: %w", meetsync.ErrDetailsModificationDenied)
	}
	if req.Title != nil && *req.Title != existing.Title && !mayEdit {
		return nil, fmt.Errorf("title: %w", meetsync.ErrDetailsModificationDenied)
	}
	if req.Content != existing.Content && !mayEdit {
		return nil, fmt.Errorf("content: %w", meetsync.ErrDetailsModificationDenied)
	}
	if req.MeetingURL != existing.MeetingURL && !mayEdit {
		return nil, fmt.Errorf("meeting url: %w", meetsync.ErrDetailsModificationDenied)
	}
	if req.Provider != "" && req.Provider != existing.Provider && !mayEdit {
		return nil, fmt.Errorf("provider: %w", meetsync.ErrDetailsModificationDenied)
	}
	if (!req.StartsAt.Equal(existing.StartsAt) || !req.EndsAt.Equal(existing.EndsAt)) && !mayEdit {
		return nil, fmt.Errorf("time: %w", meetsync.ErrDetailsModificationDenied)
	}
	if req.Reminders != nil && !sameReminders(*req.Reminders, existing.Reminders) && !mayEdit {
		return nil, fmt.Errorf("reminders: %w", meetsync.ErrDetailsModificationDenied)
	}
	if req.RepeatRule != nil && !sameRecurrence(req.RepeatRule, existing.RepeatRule) && !mayEdit {
		return nil, fmt.Errorf("recurrence: %w", meetsync.ErrDetailsModificationDenied)
	}
	if req.Permissions != nil && !req.Permissions.Equal(existing.Permissions) && !mayEdit {
		return nil, fmt.Errorf("permission list: %w", meetsync.ErrDetailsModificationDenied)
	}

	return &ParsedUpdate{
		Existing: existing,
		Actor:    actor,
		Payload:  buildPayload(existing, req),
	}, nil
}

// ParseRSVPUpdate validates an RSVP-only update. Participants may always
// change their own response; nothing else on the meeting moves, so no
// permission gates apply beyond identifying the actor.
func (e *Engine) ParseRSVPUpdate(ctx context.Context, req UpdateRequest) (*ParsedUpdate, error) {
	existing := req.Existing
	if existing == nil || existing.ID == "" {
		return nil, meetsync.ErrChangeConflict
	}
	actor := existing.Participant(req.Actor)
	if actor == nil {
		return nil, meetsync.ErrChangeConflict
	}

	payload := cloneMeeting(existing)
	payload.Version = existing.Version + 1
	for _, proposed := range req.Participants {
		for i := range payload.Participants {
			if payload.Participants[i].Key() == proposed.Key() {
				payload.Participants[i].RSVP = proposed.RSVP
			}
		}
	}

	return &ParsedUpdate{Existing: existing, Payload: payload, Actor: actor}, nil
}

// UpdateMeeting applies a parsed full update: re-derives the sanitized
// participant set, merges previously allocated slot ids, persists against
// the expected version and schedules the outbound provider update. The
// updated actor slot is returned.
func (e *Engine) UpdateMeeting(ctx context.Context, parsed *ParsedUpdate) (*meetsync.Participant, error) {
	payload := parsed.Payload

	// Gather everything needed for the write concurrently; nothing is
	// persisted until both legs finish.
	var (
		wg          sync.WaitGroup
		related     map[string]string
		relatedErr  error
		sanitized   []meetsync.Participant
		sanitizeErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		related, relatedErr = e.store.RelatedSlotIDs(ctx, payload.ID)
	}()
	go func() {
		defer wg.Done()
		sanitized, sanitizeErr = SanitizeParticipants(payload.Participants, parsed.Actor.Key())
	}()
	wg.Wait()
	if relatedErr != nil {
		return nil, fmt.Errorf("engine: related slots for %s: %w", payload.ID, relatedErr)
	}
	if sanitizeErr != nil {
		return nil, sanitizeErr
	}

	for i := range sanitized {
		if slotID, ok := related[sanitized[i].Key()]; ok {
			sanitized[i].SlotID = slotID
		}
		if sanitized[i].SlotID == "" {
			sanitized[i].SlotID = meetsync.NewID()
		}
		sanitized[i].Version = payload.Version
	}
	payload.Participants = sanitized

	if err := e.store.SaveMeeting(ctx, payload, parsed.Existing.Version); err != nil {
		return nil, err
	}

	actorKey := parsed.Actor.Key()
	event := meetingToEvent(payload)
	e.enqueueSync(actorKey, payload.Provider, func(ctx context.Context, p meetsync.Provider) error {
		_, err := p.UpdateEvent(ctx, meetsync.CalendarRef{ID: payload.CalendarID}, event)
		return err
	})

	slot := payload.Participant(meetsync.Account{Address: parsed.Actor.AccountAddress, Email: parsed.Actor.GuestEmail})
	return slot, nil
}

// UpdateMeetingRSVPs persists a parsed RSVP update and schedules the
// outbound provider update for the acting account.
func (e *Engine) UpdateMeetingRSVPs(ctx context.Context, parsed *ParsedUpdate) (*meetsync.Participant, error) {
	payload := parsed.Payload
	for i := range payload.Participants {
		payload.Participants[i].Version = payload.Version
	}
	if err := e.store.SaveMeeting(ctx, payload, parsed.Existing.Version); err != nil {
		return nil, err
	}

	event := meetingToEvent(payload)
	e.enqueueSync(parsed.Actor.Key(), payload.Provider, func(ctx context.Context, p meetsync.Provider) error {
		_, err := p.UpdateEvent(ctx, meetsync.CalendarRef{ID: payload.CalendarID}, event)
		return err
	})

	return payload.Participant(meetsync.Account{Address: parsed.Actor.AccountAddress, Email: parsed.Actor.GuestEmail}), nil
}

func buildPayload(existing *meetsync.Meeting, req UpdateRequest) *meetsync.Meeting {
	payload := cloneMeeting(existing)
	payload.Version = existing.Version + 1
	payload.TypeID = req.TypeID
	payload.StartsAt = req.StartsAt
	payload.EndsAt = req.EndsAt
	payload.Content = req.Content
	payload.MeetingURL = req.MeetingURL
	if req.Provider != "" {
		payload.Provider = req.Provider
	}
	if len(req.Participants) > 0 {
		payload.Participants = append([]meetsync.Participant(nil), req.Participants...)
	}
	if req.Title != nil {
		payload.Title = *req.Title
	}
	if req.Reminders != nil {
		payload.Reminders = append([]time.Duration(nil), (*req.Reminders)...)
	}
	if req.RepeatRule != nil {
		payload.RepeatRule = req.RepeatRule
	}
	if req.Permissions != nil {
		payload.Permissions = req.Permissions
	}
	if req.CalendarID != nil {
		payload.CalendarID = *req.CalendarID
	}
	return payload
}

func cloneMeeting(m *meetsync.Meeting) *meetsync.Meeting {
	clone := *m
	clone.Participants = append([]meetsync.Participant(nil), m.Participants...)
	clone.Reminders = append([]time.Duration(nil), m.Reminders...)
	return &clone
}

// meetingToEvent builds the unified event pushed to external calendars.
func meetingToEvent(m *meetsync.Meeting) *meetsync.Event {
	event := &meetsync.Event{
		ID:          m.ID,
		Provider:    m.Provider,
		CalendarID:  m.CalendarID,
		Title:       m.Title,
		Description: m.Content,
		StartsAt:    m.StartsAt,
		EndsAt:      m.EndsAt,
		MeetingURL:  m.MeetingURL,
		Status:      meetsync.StatusConfirmed,
		Recurrence:  m.RepeatRule,
		Permissions: m.Permissions,
	}
	for _, p := range m.Participants {
		email := p.GuestEmail
		if email == "" {
			continue
		}
		event.Attendees = append(event.Attendees, meetsync.Attendee{
			Email:     email,
			Name:      p.Name,
			RSVP:      p.RSVP,
			Organizer: p.Role == meetsync.RoleScheduler,
		})
	}
	return event
}

func sameParticipants(a, b []meetsync.Participant) bool {
	if len(a) != len(b) {
		return false
	}
	keys := make(map[string]bool, len(a))
	for _, p := range a {
		keys[p.Key()] = true
	}
	for _, p := range b {
		if !keys[p.Key()] {
			return false
		}
	}
	return true
}

// sameRoles reports whether every participant present in both sets keeps
// the role it already has. Membership changes are the guest-list gate's
// concern; this one catches a Scheduler reassignment hidden in an
// otherwise identical list.
func sameRoles(existing, proposed []meetsync.Participant) bool {
	roles := make(map[string]meetsync.Role, len(existing))
	for _, p := range existing {
		roles[p.Key()] = p.Role
	}
	for _, p := range proposed {
		if role, ok := roles[p.Key()]; ok && role != p.Role {
			return false
		}
	}
	return true
}

func sameReminders(a, b []time.Duration) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sameRecurrence(a, b *meetsync.Recurrence) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	if a.Frequency != b.Frequency || a.Interval != b.Interval || a.Count != b.Count {
		return false
	}
	if (a.Until == nil) != (b.Until == nil) {
		return false
	}
	if a.Until != nil && !a.Until.Equal(*b.Until) {
		return false
	}
	if len(a.Weekdays) != len(b.Weekdays) || len(a.ExDates) != len(b.ExDates) {
		return false
	}
	for i := range a.Weekdays {
		if a.Weekdays[i] != b.Weekdays[i] {
			return false
		}
	}
	for i := range a.ExDates {
		if !a.ExDates[i].Equal(b.ExDates[i]) {
			return false
		}
	}
	return a.MonthDay == b.MonthDay && a.SetPos == b.SetPos
}

// lower is strings.ToLower with a guard for the hot path of already-lower
// ASCII emails.
func lower(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			return strings.ToLower(s)
		}
	}
	return s
}
