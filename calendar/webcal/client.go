// Package webcal adapts read-only ICS feed subscriptions to the unified
// model. Write operations warn and no-op.
package webcal

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"meetsync"
	caldavmapper "meetsync/calendar/caldav"
	"meetsync/internal/recurrence"
	"meetsync/internal/retry"
)

type Options struct {
	HTTPClient *http.Client
	Logger     *slog.Logger
	Retry      retry.Policy
}

type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	retry      retry.Policy
}

func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		retry:      opts.Retry,
	}
}

func (c *Client) GetEvent(ctx context.Context, cal meetsync.CalendarRef, id string) (*meetsync.Event, error) {
	events, err := c.fetch(ctx, cal)
	if err != nil {
		return nil, err
	}
	for _, e := range events {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, fmt.Errorf("webcal: event %s not found in feed %s", id, cal.ID)
}

func (c *Client) CreateEvent(ctx context.Context, cal meetsync.CalendarRef, event *meetsync.Event) (*meetsync.Event, error) {
	c.logger.Warn("ignoring create on read-only feed", "feed", cal.ID)
	return event, nil
}

func (c *Client) UpdateEvent(ctx context.Context, cal meetsync.CalendarRef, event *meetsync.Event) (*meetsync.Event, error) {
	c.logger.Warn("ignoring update on read-only feed", "feed", cal.ID)
	return event, nil
}

func (c *Client) DeleteEvent(ctx context.Context, cal meetsync.CalendarRef, id string) error {
	c.logger.Warn("ignoring delete on read-only feed", "feed", cal.ID)
	return nil
}

func (c *Client) GetAvailability(ctx context.Context, calendarIDs []string, from, to time.Time) ([]meetsync.Interval, error) {
	var busy []meetsync.Interval
	for _, feedURL := range calendarIDs {
		events, err := c.eventsInWindow(ctx, meetsync.CalendarRef{ID: feedURL, ReadOnly: true}, from, to)
		if err != nil {
			return nil, err
		}
		for _, e := range events {
			if e.Status == meetsync.StatusCancelled {
				continue
			}
			busy = append(busy, meetsync.Interval{Start: e.StartsAt, End: e.EndsAt})
		}
	}
	return busy, nil
}

func (c *Client) GetEvents(ctx context.Context, cals []meetsync.CalendarRef, from, to time.Time, onlyWithLinks bool) ([]*meetsync.Event, error) {
	var events []*meetsync.Event
	for _, cal := range cals {
		list, err := c.eventsInWindow(ctx, cal, from, to)
		if err != nil {
			return nil, err
		}
		for _, e := range list {
			if onlyWithLinks && e.MeetingURL == "" {
				continue
			}
			events = append(events, e)
		}
	}
	return events, nil
}

// eventsInWindow filters and expands feed events into the window.
// Recurring masters become one event per occurrence; occurrences already
// carried by the feed as edited instances are not generated twice.
func (c *Client) eventsInWindow(ctx context.Context, cal meetsync.CalendarRef, from, to time.Time) ([]*meetsync.Event, error) {
	all, err := c.fetch(ctx, cal)
	if err != nil {
		return nil, err
	}

	materialized := map[string][]time.Time{}
	for _, e := range all {
		if e.RecurringID == "" {
			continue
		}
		occ := e.StartsAt
		if raw := e.Extensions[caldavmapper.ExtRecurrenceID]; raw != "" {
			if t, err := time.Parse(time.RFC3339, raw); err == nil {
				occ = t
			}
		}
		materialized[e.RecurringID] = append(materialized[e.RecurringID], occ)
	}

	var out []*meetsync.Event
	for _, e := range all {
		if e.Recurrence == nil {
			if e.EndsAt.After(from) && e.StartsAt.Before(to) {
				out = append(out, e)
			}
			continue
		}
		occurrences, err := recurrence.Expand(e.Recurrence, e.StartsAt, from, to, materialized[e.ID])
		if err != nil {
			c.logger.Warn("skipping unexpandable recurring event", "feed", cal.ID, "id", e.ID, "err", err)
			continue
		}
		duration := e.EndsAt.Sub(e.StartsAt)
		for _, occ := range occurrences {
			inst := *e
			inst.StartsAt = occ
			inst.EndsAt = occ.Add(duration)
			inst.RecurringID = e.ID
			out = append(out, &inst)
		}
	}
	return out, nil
}

func (c *Client) fetch(ctx context.Context, cal meetsync.CalendarRef) ([]*meetsync.Event, error) {
	feed, err := retry.Do(ctx, c.retry, func(ctx context.Context) (*ical.Calendar, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL(cal.ID), nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, retry.Transient(fmt.Errorf("webcal: feed returned status %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("webcal: feed returned status %d", resp.StatusCode)
		}
		return ical.NewDecoder(resp.Body).Decode()
	})
	if err != nil {
		return nil, fmt.Errorf("webcal: fetching feed %s: %w", cal.ID, err)
	}

	var events []*meetsync.Event
	for _, child := range feed.Children {
		if child.Name != ical.CompEvent {
			continue
		}
		event := caldavmapper.ToUnified(child, cal.ID, cal.Name, cal.AccountEmail, true)
		event.Provider = meetsync.ProviderWebcal
		events = append(events, event)
	}
	return events, nil
}

// feedURL maps the webcal:// scheme subscriptions are published under to
// plain https.
func feedURL(raw string) string {
	if rest, ok := strings.CutPrefix(raw, "webcal://"); ok {
		return "https://" + rest
	}
	return raw
}
