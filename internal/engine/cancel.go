package engine

import (
	"context"
	"fmt"

	"meetsync"
)

// CancelOrDelete handles a cancellation request for a single meeting. An
// Owner or Scheduler deletes the meeting outright. Any other participant
// is instead removed from the meeting (a decline-and-leave): the
// participant and slot set is rebuilt without them and the meeting
// re-saved, preserving it for everyone else. A meeting without an id is a
// no-op.
func (e *Engine) CancelOrDelete(ctx context.Context, actor meetsync.Account, meeting *meetsync.Meeting) error {
	if meeting == nil || meeting.ID == "" {
		return nil
	}
	actorP := meeting.Participant(actor)
	if actorP == nil {
		return meetsync.ErrCancelForbidden
	}

	if actorP.Role == meetsync.RoleOwner || actorP.Role == meetsync.RoleScheduler {
		if err := e.store.DeleteMeeting(ctx, meeting.ID); err != nil {
			return fmt.Errorf("engine: deleting meeting %s: %w", meeting.ID, err)
		}
		e.enqueueSync(actorP.Key(), meeting.Provider, func(ctx context.Context, p meetsync.Provider) error {
			return p.DeleteEvent(ctx, meetsync.CalendarRef{ID: meeting.CalendarID}, meeting.ID)
		})
		return nil
	}

	return e.leaveMeeting(ctx, actorP, meeting)
}

// CancelSeries is the series variant: Owner/Scheduler deletes the series
// and its materialized instances from the effective start on; instances
// that occurred earlier stay. Other participants leave their own series
// row behind instead.
func (e *Engine) CancelSeries(ctx context.Context, actor meetsync.Account, meeting *meetsync.Meeting, series *meetsync.Series) error {
	if meeting == nil || meeting.ID == "" || series == nil {
		return nil
	}
	actorP := meeting.Participant(actor)
	if actorP == nil {
		return meetsync.ErrCancelForbidden
	}

	if actorP.Role == meetsync.RoleOwner || actorP.Role == meetsync.RoleScheduler {
		if err := e.store.DeleteInstancesAfter(ctx, series.ID, series.EffectiveFrom); err != nil {
			return fmt.Errorf("engine: truncating series %s: %w", series.ID, err)
		}
		if err := e.store.DeleteSeries(ctx, series.ID); err != nil {
			return fmt.Errorf("engine: deleting series %s: %w", series.ID, err)
		}
		e.enqueueSync(actorP.Key(), meeting.Provider, func(ctx context.Context, p meetsync.Provider) error {
			return p.DeleteEvent(ctx, meetsync.CalendarRef{ID: meeting.CalendarID}, series.MasterID)
		})
		return nil
	}

	if err := e.store.DeleteSeries(ctx, series.ID); err != nil {
		return fmt.Errorf("engine: leaving series %s: %w", series.ID, err)
	}
	return e.leaveMeeting(ctx, actorP, meeting)
}

// CancelInstance cancels one occurrence of a recurring meeting. An event
// that does not reference its recurring master is a no-op. The occurrence
// is excluded from the account's series rule and the provider instance
// deleted; for a non-owning actor the instance is left for the remaining
// participants and only their own attendance is withdrawn.
func (e *Engine) CancelInstance(ctx context.Context, actor meetsync.Account, meeting *meetsync.Meeting, event *meetsync.Event) error {
	if event == nil || event.ID == "" || event.RecurringID == "" {
		return nil
	}
	if meeting == nil || meeting.ID == "" {
		return nil
	}
	actorP := meeting.Participant(actor)
	if actorP == nil {
		return meetsync.ErrCancelForbidden
	}

	if actorP.Role != meetsync.RoleOwner && actorP.Role != meetsync.RoleScheduler {
		return e.leaveMeeting(ctx, actorP, meeting)
	}

	series, err := e.store.Series(ctx, actorP.Key(), event.RecurringID)
	if err != nil {
		return fmt.Errorf("engine: loading series for %s: %w", event.RecurringID, err)
	}
	if series != nil && series.Rule != nil && !series.Rule.Excluded(event.StartsAt) {
		series.Rule.ExDates = append(series.Rule.ExDates, event.StartsAt)
		series.UpdatedAt = e.now()
		if err := e.store.UpsertSeries(ctx, series); err != nil {
			return fmt.Errorf("engine: excluding occurrence on series %s: %w", series.ID, err)
		}
	}

	e.enqueueSync(actorP.Key(), event.Provider, func(ctx context.Context, p meetsync.Provider) error {
		return p.DeleteEvent(ctx, meetsync.CalendarRef{ID: event.CalendarID}, event.ID)
	})
	return nil
}

// leaveMeeting rebuilds the participant set without the leaving account
// and re-saves the meeting, so the meeting survives for the others.
func (e *Engine) leaveMeeting(ctx context.Context, leaving *meetsync.Participant, meeting *meetsync.Meeting) error {
	remaining := make([]meetsync.Participant, 0, len(meeting.Participants))
	for _, p := range meeting.Participants {
		if p.Key() == leaving.Key() {
			continue
		}
		remaining = append(remaining, p)
	}

	payload := cloneMeeting(meeting)
	payload.Version = meeting.Version + 1
	payload.Participants = remaining
	for i := range payload.Participants {
		payload.Participants[i].Version = payload.Version
	}

	if err := e.store.SaveMeeting(ctx, payload, meeting.Version); err != nil {
		return fmt.Errorf("engine: removing participant from %s: %w", meeting.ID, err)
	}

	event := meetingToEvent(payload)
	e.enqueueSync(leaving.Key(), payload.Provider, func(ctx context.Context, p meetsync.Provider) error {
		_, err := p.UpdateEvent(ctx, meetsync.CalendarRef{ID: payload.CalendarID}, event)
		return err
	})
	return nil
}
