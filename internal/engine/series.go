package engine

import (
	"context"
	"fmt"

	"meetsync"
)

// UpdateSeries applies a series-level edit for one account. Events without
// an id or without a recurrence rule do not describe a series and are a
// no-op: storage is not touched. Otherwise the series master is resolved,
// the account's template slot recomputed, materialized future instances
// past the rule's UNTIL truncated, and the series re-upserted before the
// external sync update is enqueued.
func (e *Engine) UpdateSeries(ctx context.Context, accountKey string, event *meetsync.Event) error {
	if event == nil || event.ID == "" || event.Recurrence == nil {
		return nil
	}

	series, err := e.resolveSeries(ctx, accountKey, event)
	if err != nil {
		return err
	}

	series.StartsAt = event.StartsAt
	series.EndsAt = event.EndsAt
	series.Timezone = event.StartsAt.Location().String()
	series.Rule = event.Recurrence
	series.EffectiveFrom = event.StartsAt
	series.UpdatedAt = e.now()

	if until := event.Recurrence.Until; until != nil {
		if err := e.store.DeleteInstancesAfter(ctx, series.ID, *until); err != nil {
			return fmt.Errorf("engine: truncating series %s: %w", series.ID, err)
		}
	}
	if err := e.store.UpsertSeries(ctx, series); err != nil {
		return fmt.Errorf("engine: upserting series %s: %w", series.ID, err)
	}

	e.syncSeries(accountKey, event)
	return nil
}

// UpdateSeriesRSVPs applies an RSVP-only series edit. The same no-op guard
// applies; the template is re-upserted without truncating instances.
func (e *Engine) UpdateSeriesRSVPs(ctx context.Context, accountKey string, event *meetsync.Event) error {
	if event == nil || event.ID == "" || event.Recurrence == nil {
		return nil
	}

	series, err := e.resolveSeries(ctx, accountKey, event)
	if err != nil {
		return err
	}
	series.UpdatedAt = e.now()

	if err := e.store.UpsertSeries(ctx, series); err != nil {
		return fmt.Errorf("engine: upserting series %s: %w", series.ID, err)
	}

	e.syncSeries(accountKey, event)
	return nil
}

// resolveSeries loads the account's series row for the event's master, or
// starts a fresh one when this is the first time the account sees the
// series.
func (e *Engine) resolveSeries(ctx context.Context, accountKey string, event *meetsync.Event) (*meetsync.Series, error) {
	masterID := event.RecurringID
	if masterID == "" {
		masterID = event.ID
	}
	series, err := e.store.Series(ctx, accountKey, masterID)
	if err != nil {
		return nil, fmt.Errorf("engine: loading series for %s: %w", masterID, err)
	}
	if series == nil {
		series = &meetsync.Series{
			ID:         meetsync.NewID(),
			AccountKey: accountKey,
			MasterID:   masterID,
			SlotID:     meetsync.NewID(),
			StartsAt:   event.StartsAt,
			EndsAt:     event.EndsAt,
			Timezone:   event.StartsAt.Location().String(),
			Rule:       event.Recurrence,
		}
	}
	return series, nil
}

func (e *Engine) syncSeries(accountKey string, event *meetsync.Event) {
	cal := meetsync.CalendarRef{ID: event.CalendarID, Name: event.CalendarName}
	e.enqueueSync(accountKey, event.Provider, func(ctx context.Context, p meetsync.Provider) error {
		_, err := p.UpdateEvent(ctx, cal, event)
		return err
	})
}
