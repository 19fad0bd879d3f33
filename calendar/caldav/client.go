// Package caldav adapts CalDAV/WebDAV calendar servers to the unified
// model.
package caldav

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	davclient "github.com/emersion/go-webdav/caldav"

	"meetsync"
	"meetsync/internal/retry"
)

// basicAuthTransport adds basic auth and an identifying agent to each
// request sent to the DAV server.
type basicAuthTransport struct {
	username  string
	password  string
	transport http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.username, t.password)
	req.Header.Set("User-Agent", "meetsync/1.0")
	return t.transport.RoundTrip(req)
}

type Options struct {
	Endpoint string
	Username string
	Password string
	Logger   *slog.Logger
	Retry    retry.Policy
}

type Client struct {
	dav      *davclient.Client
	endpoint string
	logger   *slog.Logger
	retry    retry.Policy
}

func NewClient(opts Options) (*Client, error) {
	httpClient := &http.Client{
		Transport: &basicAuthTransport{
			username:  opts.Username,
			password:  opts.Password,
			transport: http.DefaultTransport,
		},
		Timeout: 30 * time.Second,
	}

	dav, err := davclient.NewClient(httpClient, opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("caldav: creating client: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		dav:      dav,
		endpoint: strings.TrimSuffix(opts.Endpoint, "/"),
		logger:   logger,
		retry:    opts.Retry,
	}, nil
}

// FindCalendar discovers the server's calendars and returns the path of
// the one with the given display name. The returned path is what callers
// put in CalendarRef.ID.
func (c *Client) FindCalendar(ctx context.Context, name string) (string, error) {
	principal, err := c.dav.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("caldav: finding principal: %w", err)
	}
	homeSet, err := c.dav.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return "", fmt.Errorf("caldav: finding calendar home set: %w", err)
	}
	calendars, err := c.dav.FindCalendars(ctx, homeSet)
	if err != nil {
		return "", fmt.Errorf("caldav: listing calendars: %w", err)
	}
	for _, cal := range calendars {
		if cal.Name == name {
			return cal.Path, nil
		}
	}
	return "", fmt.Errorf("caldav: no calendar named %q", name)
}

func (c *Client) GetEvent(ctx context.Context, cal meetsync.CalendarRef, id string) (*meetsync.Event, error) {
	obj, err := retry.Do(ctx, c.retry, func(ctx context.Context) (*davclient.CalendarObject, error) {
		return c.dav.GetCalendarObject(ctx, c.eventPath(cal, id))
	})
	if err != nil {
		return nil, fmt.Errorf("caldav: getting event %s: %w", id, err)
	}
	for _, child := range obj.Data.Children {
		if child.Name == ical.CompEvent {
			return ToUnified(child, cal.ID, cal.Name, cal.AccountEmail, cal.ReadOnly), nil
		}
	}
	return nil, fmt.Errorf("caldav: object %s carries no event", id)
}

func (c *Client) CreateEvent(ctx context.Context, cal meetsync.CalendarRef, event *meetsync.Event) (*meetsync.Event, error) {
	return c.putEvent(ctx, cal, event)
}

func (c *Client) UpdateEvent(ctx context.Context, cal meetsync.CalendarRef, event *meetsync.Event) (*meetsync.Event, error) {
	return c.putEvent(ctx, cal, event)
}

// putEvent writes the event; CalDAV creates and updates through the same
// PUT, keyed by the object path.
func (c *Client) putEvent(ctx context.Context, cal meetsync.CalendarRef, event *meetsync.Event) (*meetsync.Event, error) {
	vevent, err := FromUnified(event)
	if err != nil {
		return nil, err
	}
	ics := ical.NewCalendar()
	ics.Props.SetText(ical.PropVersion, "2.0")
	ics.Props.SetText(ical.PropProductID, "-//meetsync//EN")
	ics.Children = append(ics.Children, vevent)

	err = retry.Run(ctx, c.retry, func(ctx context.Context) error {
		_, err := c.dav.PutCalendarObject(ctx, c.eventPath(cal, event.ID), ics)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("caldav: writing event %s: %w", event.ID, err)
	}
	c.logger.Debug("wrote caldav event", "calendar", cal.ID, "id", event.ID)
	return ToUnified(vevent, cal.ID, cal.Name, cal.AccountEmail, cal.ReadOnly), nil
}

func (c *Client) DeleteEvent(ctx context.Context, cal meetsync.CalendarRef, id string) error {
	err := retry.Run(ctx, c.retry, func(ctx context.Context) error {
		return c.dav.RemoveAll(ctx, c.eventPath(cal, id))
	})
	if err != nil && !webdav.IsNotFound(err) {
		return fmt.Errorf("caldav: deleting event %s: %w", id, err)
	}
	return nil
}

func (c *Client) GetAvailability(ctx context.Context, calendarIDs []string, from, to time.Time) ([]meetsync.Interval, error) {
	var busy []meetsync.Interval
	for _, id := range calendarIDs {
		objs, err := c.queryWindow(ctx, id, from, to)
		if err != nil {
			return nil, err
		}
		for _, obj := range objs {
			for _, child := range obj.Data.Children {
				if child.Name != ical.CompEvent {
					continue
				}
				event := ToUnified(child, id, "", "", false)
				if event.Status == meetsync.StatusCancelled {
					continue
				}
				busy = append(busy, meetsync.Interval{Start: event.StartsAt, End: event.EndsAt})
			}
		}
	}
	return busy, nil
}

func (c *Client) GetEvents(ctx context.Context, cals []meetsync.CalendarRef, from, to time.Time, onlyWithLinks bool) ([]*meetsync.Event, error) {
	var events []*meetsync.Event
	for _, cal := range cals {
		objs, err := c.queryWindow(ctx, cal.ID, from, to)
		if err != nil {
			return nil, err
		}
		for _, obj := range objs {
			for _, child := range obj.Data.Children {
				if child.Name != ical.CompEvent {
					continue
				}
				event := ToUnified(child, cal.ID, cal.Name, cal.AccountEmail, cal.ReadOnly)
				if onlyWithLinks && event.MeetingURL == "" {
					continue
				}
				events = append(events, event)
			}
		}
	}
	return events, nil
}

func (c *Client) queryWindow(ctx context.Context, calendarPath string, from, to time.Time) ([]davclient.CalendarObject, error) {
	query := &davclient.CalendarQuery{
		CompRequest: davclient.CalendarCompRequest{
			Name:     ical.CompCalendar,
			AllProps: true,
			Comps:    []davclient.CalendarCompRequest{{Name: ical.CompEvent, AllProps: true}},
		},
		CompFilter: davclient.CompFilter{
			Name: ical.CompCalendar,
			Comps: []davclient.CompFilter{{
				Name:  ical.CompEvent,
				Start: from,
				End:   to,
			}},
		},
	}
	objs, err := retry.Do(ctx, c.retry, func(ctx context.Context) ([]davclient.CalendarObject, error) {
		return c.dav.QueryCalendar(ctx, calendarPath, query)
	})
	if err != nil {
		return nil, fmt.Errorf("caldav: querying %s: %w", calendarPath, err)
	}
	return objs, nil
}

func (c *Client) eventPath(cal meetsync.CalendarRef, id string) string {
	return path.Join(cal.ID, id+".ics")
}
