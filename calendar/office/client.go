// Package office adapts the groupware calendar REST API to the unified
// model.
package office

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"meetsync"
	"meetsync/internal/retry"
)

type Options struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Logger     *slog.Logger
	Retry      retry.Policy
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
	retry      retry.Policy
}

func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    baseURL,
		token:      strings.TrimSpace(opts.Token),
		httpClient: httpClient,
		logger:     logger,
		retry:      opts.Retry,
	}
}

func (c *Client) GetEvent(ctx context.Context, cal meetsync.CalendarRef, id string) (*meetsync.Event, error) {
	path := fmt.Sprintf("/v1/calendars/%s/events/%s", url.PathEscape(cal.ID), url.PathEscape(id))
	oevent, err := retry.Do(ctx, c.retry, func(ctx context.Context) (*Event, error) {
		var out Event
		if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("office: getting event %s: %w", id, err)
	}
	return ToUnified(oevent, cal.ID, cal.Name, cal.AccountEmail, cal.ReadOnly), nil
}

func (c *Client) CreateEvent(ctx context.Context, cal meetsync.CalendarRef, event *meetsync.Event) (*meetsync.Event, error) {
	oevent, err := FromUnified(event)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/v1/calendars/%s/events", url.PathEscape(cal.ID))
	created, err := retry.Do(ctx, c.retry, func(ctx context.Context) (*Event, error) {
		var out Event
		if err := c.do(ctx, http.MethodPost, path, oevent, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("office: creating event: %w", err)
	}
	c.logger.Debug("created groupware event", "calendar", cal.ID, "id", created.ID)
	return ToUnified(created, cal.ID, cal.Name, cal.AccountEmail, cal.ReadOnly), nil
}

func (c *Client) UpdateEvent(ctx context.Context, cal meetsync.CalendarRef, event *meetsync.Event) (*meetsync.Event, error) {
	oevent, err := FromUnified(event)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/v1/calendars/%s/events/%s", url.PathEscape(cal.ID), url.PathEscape(oevent.ID))
	updated, err := retry.Do(ctx, c.retry, func(ctx context.Context) (*Event, error) {
		var out Event
		if err := c.do(ctx, http.MethodPut, path, oevent, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("office: updating event %s: %w", oevent.ID, err)
	}
	return ToUnified(updated, cal.ID, cal.Name, cal.AccountEmail, cal.ReadOnly), nil
}

func (c *Client) DeleteEvent(ctx context.Context, cal meetsync.CalendarRef, id string) error {
	path := fmt.Sprintf("/v1/calendars/%s/events/%s", url.PathEscape(cal.ID), url.PathEscape(id))
	err := retry.Run(ctx, c.retry, func(ctx context.Context) error {
		return c.do(ctx, http.MethodDelete, path, nil, nil)
	})
	if err != nil && !isGone(err) {
		return fmt.Errorf("office: deleting event %s: %w", id, err)
	}
	return nil
}

func (c *Client) GetAvailability(ctx context.Context, calendarIDs []string, from, to time.Time) ([]meetsync.Interval, error) {
	in := struct {
		Calendars []string `json:"calendars"`
		From      string   `json:"from"`
		To        string   `json:"to"`
	}{
		Calendars: calendarIDs,
		From:      from.Format(time.RFC3339),
		To:        to.Format(time.RFC3339),
	}
	resp, err := retry.Do(ctx, c.retry, func(ctx context.Context) (*availabilityResponse, error) {
		var out availabilityResponse
		if err := c.do(ctx, http.MethodPost, "/v1/availability", in, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("office: querying availability: %w", err)
	}

	var busy []meetsync.Interval
	for _, period := range resp.Busy {
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
		events []*meetsync.Event
		cursor string
	)
	for {
		query := url.Values{}
		query.Set("from", from.Format(time.RFC3339))
		query.Set("to", to.Format(time.RFC3339))
		if cursor != "" {
			query.Set("cursor", cursor)
		}
		path := fmt.Sprintf("/v1/calendars/%s/events?%s", url.PathEscape(cal.ID), query.Encode())

		page, err := retry.Do(ctx, c.retry, func(ctx context.Context) (*listResponse, error) {
			var out listResponse
			if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
				return nil, err
			}
			return &out, nil
		})
		if err != nil {
			return nil, fmt.Errorf("office: listing events on %s: %w", cal.ID, err)
		}
		for i := range page.Events {
			events = append(events, ToUnified(&page.Events[i], cal.ID, cal.Name, cal.AccountEmail, cal.ReadOnly))
		}
		cursor = page.NextCursor
		if cursor == "" {
			return events, nil
		}
	}
}

type availabilityResponse struct {
	Busy []struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"busy"`
}

type listResponse struct {
	Events     []Event `json:"events"`
	NextCursor string  `json:"nextCursor,omitempty"`
}

// do performs one request against the groupware API. 429 and 5xx
// responses come back marked transient so the retry policy picks them up.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		apiErr := &apiError{Status: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		var parsed struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &parsed) == nil {
			apiErr.Code = parsed.Code
			if parsed.Message != "" {
				apiErr.Message = parsed.Message
			}
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return retry.Transient(apiErr)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("office: status=%d code=%s message=%s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("office: status=%d message=%s", e.Status, e.Message)
}

func isGone(err error) bool {
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusGone || apiErr.Status == http.StatusNotFound
}
