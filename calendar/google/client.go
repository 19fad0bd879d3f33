// Package google adapts Google Calendar events to the unified model.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	googleauth "golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"meetsync"
	"meetsync/internal/retry"
)

type Client struct {
	oauthCfg *oauth2.Config
	token    *oauth2.Token
	logger   *slog.Logger
	retry    retry.Policy

	svc *calendar.Service
}

// NewClient builds an adapter for one connected Google account. credJSON
// is the OAuth application credential, tokenJSON the account's stored
// token (as produced by Login).
func NewClient(ctx context.Context, logger *slog.Logger, credJSON, tokenJSON []byte) (*Client, error) {
	oauthCfg, err := googleauth.ConfigFromJSON(credJSON, calendar.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("google: parsing credentials file: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		oauthCfg: oauthCfg,
		logger:   logger,
		retry:    retry.DefaultPolicy(),
	}
	if tokenJSON != nil {
		var tok oauth2.Token
		if err := json.Unmarshal(tokenJSON, &tok); err != nil {
			return nil, fmt.Errorf("google: parsing account token: %w", err)
		}
		c.token = &tok
		c.svc, err = calendar.NewService(ctx, option.WithHTTPClient(oauthCfg.Client(ctx, &tok)))
		if err != nil {
			return nil, fmt.Errorf("google: creating calendar service: %w", err)
		}
	}
	return c, nil
}

func (c *Client) GetEvent(ctx context.Context, cal meetsync.CalendarRef, id string) (*meetsync.Event, error) {
	gevent, err := retry.Do(ctx, c.retry, func(ctx context.Context) (*calendar.Event, error) {
		return c.svc.Events.Get(calendarID(cal), id).Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("google: getting event %s: %w", id, err)
	}
	return ToUnified(gevent, calendarID(cal), cal.Name, cal.AccountEmail, cal.ReadOnly), nil
}

func (c *Client) CreateEvent(ctx context.Context, cal meetsync.CalendarRef, event *meetsync.Event) (*meetsync.Event, error) {
	gevent, err := FromUnified(event)
	if err != nil {
		return nil, err
	}
	created, err := retry.Do(ctx, c.retry, func(ctx context.Context) (*calendar.Event, error) {
		return c.svc.Events.Insert(calendarID(cal), gevent).Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("google: creating event: %w", err)
	}
	c.logger.Debug("created google event", "calendar", calendarID(cal), "id", created.Id)
	return ToUnified(created, calendarID(cal), cal.Name, cal.AccountEmail, cal.ReadOnly), nil
}

func (c *Client) UpdateEvent(ctx context.Context, cal meetsync.CalendarRef, event *meetsync.Event) (*meetsync.Event, error) {
	gevent, err := FromUnified(event)
	if err != nil {
		return nil, err
	}
	updated, err := retry.Do(ctx, c.retry, func(ctx context.Context) (*calendar.Event, error) {
		return c.svc.Events.Update(calendarID(cal), gevent.Id, gevent).Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("google: updating event %s: %w", gevent.Id, err)
	}
	return ToUnified(updated, calendarID(cal), cal.Name, cal.AccountEmail, cal.ReadOnly), nil
}

func (c *Client) DeleteEvent(ctx context.Context, cal meetsync.CalendarRef, id string) error {
	err := retry.Run(ctx, c.retry, func(ctx context.Context) error {
		return c.svc.Events.Delete(calendarID(cal), id).Context(ctx).Do()
	})
	if err != nil && !alreadyDeleted(err) {
		return fmt.Errorf("google: deleting event %s: %w", id, err)
	}
	return nil
}

func (c *Client) GetAvailability(ctx context.Context, calendarIDs []string, from, to time.Time) ([]meetsync.Interval, error) {
	req := &calendar.FreeBusyRequest{
		TimeMin: from.Format(time.RFC3339),
		TimeMax: to.Format(time.RFC3339),
	}
	for _, id := range calendarIDs {
		req.Items = append(req.Items, &calendar.FreeBusyRequestItem{Id: id})
	}

	resp, err := retry.Do(ctx, c.retry, func(ctx context.Context) (*calendar.FreeBusyResponse, error) {
		return c.svc.Freebusy.Query(req).Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("google: querying free/busy: %w", err)
	}

	var busy []meetsync.Interval
	for _, cal := range resp.Calendars {
		for _, period := range cal.Busy {
			start, err := time.Parse(time.RFC3339, period.Start)
			if err != nil {
				continue
			}
			end, err := time.Parse(time.RFC3339, period.End)
			if err != nil {
				continue
			}
			busy = append(busy, meetsync.Interval{Start: start, End: end})
		}
	}
	return busy, nil
}

func (c *Client) GetEvents(ctx context.Context, cals []meetsync.CalendarRef, from, to time.Time, onlyWithLinks bool) ([]*meetsync.Event, error) {
	var events []*meetsync.Event
	for _, cal := range cals {
		list, err := c.listEvents(ctx, cal, from, to)
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

func (c *Client) listEvents(ctx context.Context, cal meetsync.CalendarRef, from, to time.Time) ([]*meetsync.Event, error) {
	var (
		events        []*meetsync.Event
		nextPageToken string
	)
	for {
		call := c.svc.Events.
			List(calendarID(cal)).
			Context(ctx).
			ShowDeleted(false).
			SingleEvents(true).
			TimeMin(from.Format(time.RFC3339)).
			TimeMax(to.Format(time.RFC3339)).
			PageToken(nextPageToken)

		page, err := retry.Do(ctx, c.retry, func(ctx context.Context) (*calendar.Events, error) {
			return call.Do()
		})
		if err != nil {
			return nil, fmt.Errorf("google: listing events on %s: %w", calendarID(cal), err)
		}
		for _, item := range page.Items {
			events = append(events, ToUnified(item, calendarID(cal), cal.Name, cal.AccountEmail, cal.ReadOnly))
		}
		nextPageToken = page.NextPageToken
		if nextPageToken == "" {
			return events, nil
		}
	}
}

// Login runs the OAuth authorization-code flow on a local loopback server
// and returns the token as JSON, ready to store on the account record.
func (c *Client) Login(ctx context.Context, showURL func(authURL string)) ([]byte, error) {
	state := fmt.Sprintf("meetsync-%d", time.Now().UTC().Nanosecond())
	authURL := c.oauthCfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	showURL(authURL)

	mux := http.NewServeMux()
	server := &http.Server{
		Addr:    ":8080",
		Handler: mux,
	}

	var (
		token   *oauth2.Token
		authErr error
	)

	mux.HandleFunc("/meetsync", func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			go server.Shutdown(ctx)
		}()

		query := req.URL.Query()
		if query.Get("state") != state {
			authErr = errors.New("oauth link is not valid")
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		token, authErr = c.oauthCfg.Exchange(ctx, query.Get("code"))
		if authErr != nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintln(w, "Unable to retrieve token:", authErr)
			return
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "All good, you can close this window!")
	})

	serverCh := make(chan struct{})
	var svrErr error
	go func() {
		svrErr = server.ListenAndServe()
		close(serverCh)
	}()

	<-serverCh

	if svrErr != nil && svrErr != http.ErrServerClosed {
		return nil, svrErr
	}
	if authErr != nil {
		return nil, authErr
	}
	return json.Marshal(token)
}

func calendarID(cal meetsync.CalendarRef) string {
	if cal.ID == "" {
		return "primary"
	}
	return cal.ID
}

func alreadyDeleted(err error) bool {
	var gErr *googleapi.Error
	if !errors.As(err, &gErr) {
		return false
	}
	for _, e := range gErr.Errors {
		if e.Reason == "deleted" {
			return true
		}
	}
	return gErr.Code == http.StatusGone || gErr.Code == http.StatusNotFound
}
