// Package engine is the permission-checked meeting mutation state machine:
// create/update/cancel for single meetings, whole series and single
// recurring instances, plus participant resolution from provider payloads.
//
// Validation never writes: every read needed to check permissions and
// build the new payload completes before the first storage or provider
// call, so a request observes one consistent snapshot and a failed
// validation leaves nothing partially applied.
package engine

import (
	"context"
	"log/slog"
	"time"

	"meetsync"
	"meetsync/internal/retry"
	"meetsync/internal/syncqueue"
)

// Storage is the narrow persistence contract the engine depends on. The
// concrete implementation lives in internal/sqlite.
type Storage interface {
	// AccountsByEmail resolves known accounts for each email,
	// case-insensitively. The returned map is keyed by lowercased email
	// and must be non-nil even when nothing matched.
	AccountsByEmail(ctx context.Context, emails []string) (map[string][]meetsync.Account, error)

	Meeting(ctx context.Context, id string) (*meetsync.Meeting, error)
	// SaveMeeting persists the meeting if its stored version still equals
	// expectedVersion, otherwise it returns meetsync.ErrStaleVersion.
	SaveMeeting(ctx context.Context, m *meetsync.Meeting, expectedVersion int64) error
	DeleteMeeting(ctx context.Context, id string) error

	// RelatedSlotIDs maps participant keys to the slot ids already
	// allocated for them on this meeting.
	RelatedSlotIDs(ctx context.Context, meetingID string) (map[string]string, error)

	Series(ctx context.Context, accountKey, masterID string) (*meetsync.Series, error)
	UpsertSeries(ctx context.Context, s *meetsync.Series) error
	DeleteSeries(ctx context.Context, id string) error
	// DeleteInstancesAfter removes materialized instances of the series
	// starting at or after the given instant. Earlier instances are never
	// touched.
	DeleteInstancesAfter(ctx context.Context, seriesID string, after time.Time) error
}

type Engine struct {
	logger *slog.Logger
	store  Storage
	mux    meetsync.Mux
	queue  *syncqueue.Queue
	retry  retry.Policy
	now    func() time.Time
}

type Options struct {
	Logger *slog.Logger
	Mux    meetsync.Mux
	Queue  *syncqueue.Queue
	Retry  retry.Policy
}

func New(store Storage, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		logger: logger,
		store:  store,
		mux:    opts.Mux,
		queue:  opts.Queue,
		retry:  opts.Retry,
		now:    time.Now,
	}
}

// enqueueSync schedules an outbound provider call on the account's
// serialized queue. When no queue or mux is wired (library use, tests the
// sync path does not matter for) the call is skipped.
func (e *Engine) enqueueSync(accountKey string, kind meetsync.ProviderKind, op func(context.Context, meetsync.Provider) error) {
	if e.queue == nil || e.mux == nil {
		return
	}
	e.queue.Enqueue(accountKey, func(ctx context.Context) error {
		provider, err := e.mux.Get(kind)
		if err != nil {
			return err
		}
		return retry.Run(ctx, e.retry, func(ctx context.Context) error {
			return op(ctx, provider)
		})
	})
}
