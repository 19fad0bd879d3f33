package meetsync

import (
	"context"
	"time"
)

// Mux resolves a provider adapter by kind.
type Mux interface {
	Get(kind ProviderKind) (Provider, error)
}

// CalendarRef identifies one calendar on one provider account.
type CalendarRef struct {
	ID           string
	Name         string
	AccountEmail string
	ReadOnly     bool
}

// Provider is the adapter contract each calendar backend implements. Wire
// formats, auth and pagination are the adapter's problem; the engine only
// ever sees unified events and busy intervals.
//
// Read-only adapters implement the same shape but no-op (with a logged
// warning) on the write operations.
type Provider interface {
	GetEvent(ctx context.Context, cal CalendarRef, id string) (*Event, error)
	CreateEvent(ctx context.Context, cal CalendarRef, event *Event) (*Event, error)
	UpdateEvent(ctx context.Context, cal CalendarRef, event *Event) (*Event, error)
	DeleteEvent(ctx context.Context, cal CalendarRef, id string) error
	GetAvailability(ctx context.Context, calendarIDs []string, from, to time.Time) ([]Interval, error)
	GetEvents(ctx context.Context, cals []CalendarRef, from, to time.Time, onlyWithLinks bool) ([]*Event, error)
}
