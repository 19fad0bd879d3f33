package engine

import (
	"context"
	"time"

	"meetsync"
)

// CreateRequest describes a new meeting. The acting account must appear in
// the participant list holding the Scheduler role.
type CreateRequest struct {
	Actor        meetsync.Account
	TypeID       string
	Provider     meetsync.ProviderKind
	CalendarID   string
	Title        string
	Content      string
	MeetingURL   string
	StartsAt     time.Time
	EndsAt       time.Time
	Participants []meetsync.Participant
	Permissions  *meetsync.Permissions
	Reminders    []time.Duration
	RepeatRule   *meetsync.Recurrence
}

// CreateMeeting allocates the meeting and one slot per participant,
// persists it at version 1 and schedules the outbound create on the
// scheduler's queue.
func (e *Engine) CreateMeeting(ctx context.Context, req CreateRequest) (*meetsync.Meeting, error) {
	actorKey := req.Actor.Key()
	sanitized, err := SanitizeParticipants(req.Participants, actorKey)
	if err != nil {
		return nil, err
	}

	meeting := &meetsync.Meeting{
		ID:           meetsync.NewID(),
		Version:      1,
		TypeID:       req.TypeID,
		Provider:     req.Provider,
		CalendarID:   req.CalendarID,
		Title:        req.Title,
		Content:      req.Content,
		MeetingURL:   req.MeetingURL,
		StartsAt:     req.StartsAt,
		EndsAt:       req.EndsAt,
		Participants: sanitized,
		Permissions:  req.Permissions,
		Reminders:    req.Reminders,
		RepeatRule:   req.RepeatRule,
	}
	for i := range meeting.Participants {
		meeting.Participants[i].SlotID = meetsync.NewID()
		meeting.Participants[i].Version = meeting.Version
	}

	if err := e.store.SaveMeeting(ctx, meeting, 0); err != nil {
		return nil, err
	}

	event := meetingToEvent(meeting)
	e.enqueueSync(actorKey, meeting.Provider, func(ctx context.Context, p meetsync.Provider) error {
		_, err := p.CreateEvent(ctx, meetsync.CalendarRef{ID: meeting.CalendarID}, event)
		return err
	})
	return meeting, nil
}
