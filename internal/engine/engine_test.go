package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"meetsync"
)

// fakeStore is the in-memory Storage double the engine tests run against.
type fakeStore struct {
	accounts    map[string][]meetsync.Account
	nilAccounts bool
	accountsErr error

	meetings map[string]*meetsync.Meeting
	related  map[string]map[string]string
	series   map[string]*meetsync.Series

	saveErr error

	deletedMeetings []string
	deletedSeries   []string
	truncated       []truncation
}

type truncation struct {
	seriesID string
	after    time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts: map[string][]meetsync.Account{},
		meetings: map[string]*meetsync.Meeting{},
		related:  map[string]map[string]string{},
		series:   map[string]*meetsync.Series{},
	}
}

func (f *fakeStore) AccountsByEmail(ctx context.Context, emails []string) (map[string][]meetsync.Account, error) {
	if f.accountsErr != nil {
		return nil, f.accountsErr
	}
	if f.nilAccounts {
		return nil, nil
	}
	out := map[string][]meetsync.Account{}
	for _, email := range emails {
		if accs, ok := f.accounts[email]; ok {
			out[email] = accs
		}
	}
	return out, nil
}

func (f *fakeStore) Meeting(ctx context.Context, id string) (*meetsync.Meeting, error) {
	return f.meetings[id], nil
}

func (f *fakeStore) SaveMeeting(ctx context.Context, m *meetsync.Meeting, expectedVersion int64) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	stored := f.meetings[m.ID]
	if expectedVersion == 0 {
		if stored != nil {
			return meetsync.ErrStaleVersion
		}
	} else if stored == nil || stored.Version != expectedVersion {
		return meetsync.ErrStaleVersion
	}
	clone := *m
	clone.Participants = append([]meetsync.Participant(nil), m.Participants...)
	f.meetings[m.ID] = &clone
	return nil
}

func (f *fakeStore) DeleteMeeting(ctx context.Context, id string) error {
	delete(f.meetings, id)
	f.deletedMeetings = append(f.deletedMeetings, id)
	return nil
}

func (f *fakeStore) RelatedSlotIDs(ctx context.Context, meetingID string) (map[string]string, error) {
	if slots, ok := f.related[meetingID]; ok {
		return slots, nil
	}
	return map[string]string{}, nil
}

func (f *fakeStore) Series(ctx context.Context, accountKey, masterID string) (*meetsync.Series, error) {
	return f.series[accountKey+"/"+masterID], nil
}

func (f *fakeStore) UpsertSeries(ctx context.Context, s *meetsync.Series) error {
	clone := *s
	f.series[s.AccountKey+"/"+s.MasterID] = &clone
	return nil
}

func (f *fakeStore) DeleteSeries(ctx context.Context, id string) error {
	for key, s := range f.series {
		if s.ID == id {
			delete(f.series, key)
		}
	}
	f.deletedSeries = append(f.deletedSeries, id)
	return nil
}

func (f *fakeStore) DeleteInstancesAfter(ctx context.Context, seriesID string, after time.Time) error {
	f.truncated = append(f.truncated, truncation{seriesID: seriesID, after: after})
	return nil
}

var (
	owner   = meetsync.Account{Address: "acct-owner", Email: "owner@example.com"}
	invitee = meetsync.Account{Address: "acct-invitee", Email: "invitee@example.com"}
	guest   = meetsync.Account{Email: "guest@example.com"}
)

func testMeeting() *meetsync.Meeting {
	return &meetsync.Meeting{
		ID:         "mtg-1",
		Version:    3,
		Provider:   meetsync.ProviderGoogle,
		CalendarID: "primary",
		Title:      "Quarterly review",
		Content:    "agenda",
		MeetingURL: "https://meet.example.com/q1",
		StartsAt:   time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		EndsAt:     time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC),
		Permissions: &meetsync.Permissions{
			Allowed: []meetsync.Permission{meetsync.PermInviteGuests},
		},
		Participants: []meetsync.Participant{
			{AccountAddress: owner.Address, GuestEmail: owner.Email, Role: meetsync.RoleScheduler, RSVP: meetsync.RSVPAccepted, SlotID: "slot-owner", Version: 3},
			{AccountAddress: invitee.Address, GuestEmail: invitee.Email, Role: meetsync.RoleInvitee, RSVP: meetsync.RSVPAccepted, SlotID: "slot-invitee", Version: 3},
		},
	}
}

// unchangedRequest proposes the meeting exactly as it is, so no permission
// gate should fire regardless of who asks.
func unchangedRequest(actor meetsync.Account, m *meetsync.Meeting) UpdateRequest {
	return UpdateRequest{
		Actor:      actor,
		Existing:   m,
		StartsAt:   m.StartsAt,
		EndsAt:     m.EndsAt,
		Content:    m.Content,
		MeetingURL: m.MeetingURL,
		Provider:   m.Provider,
	}
}

func TestParseMeetingUpdateDeniesTitleChangeForInvitee(t *testing.T) {
	e := New(newFakeStore(), Options{})
	req := unchangedRequest(invitee, testMeeting())
	title := "Renamed"
	req.Title = &title

	_, err := e.ParseMeetingUpdate(context.Background(), req)
	if !errors.Is(err, meetsync.ErrDetailsModificationDenied) {
		t.Fatalf("expected details-modification-denied, got %v", err)
	}
}

func TestParseMeetingUpdateAllowsGuestAdditionWithInvitePermission(t *testing.T) {
	e := New(newFakeStore(), Options{})
	m := testMeeting()
	req := unchangedRequest(invitee, m)
	req.Participants = append(append([]meetsync.Participant(nil), m.Participants...), meetsync.Participant{
		GuestEmail: guest.Email,
		Role:       meetsync.RoleInvitee,
		RSVP:       meetsync.RSVPPending,
	})

	parsed, err := e.ParseMeetingUpdate(context.Background(), req)
	if err != nil {
		t.Fatalf("expected guest addition to pass the invite-guests gate, got %v", err)
	}
	if len(parsed.Payload.Participants) != 3 {
		t.Fatalf("expected 3 participants in payload, got %d", len(parsed.Payload.Participants))
	}
	if parsed.Payload.Version != m.Version+1 {
		t.Fatalf("expected version %d, got %d", m.Version+1, parsed.Payload.Version)
	}
}

func TestParseMeetingUpdateDeniesRoleReassignment(t *testing.T) {
	e := New(newFakeStore(), Options{})
	m := testMeeting()
	req := unchangedRequest(invitee, m)

	// Same membership, but the Scheduler role moved to the actor. The
	// invite-guests permission on the meeting must not authorize this.
	swapped := append([]meetsync.Participant(nil), m.Participants...)
	swapped[0].Role = meetsync.RoleInvitee
	swapped[1].Role = meetsync.RoleScheduler
	req.Participants = swapped

	_, err := e.ParseMeetingUpdate(context.Background(), req)
	if !errors.Is(err, meetsync.ErrDetailsModificationDenied) {
		t.Fatalf("expected details-modification-denied, got %v", err)
	}
	if got := err.Error(); got[:len("roles")] != "roles" {
		t.Fatalf("expected the role gate to fire, got %q", got)
	}
}

func TestParseMeetingUpdateSkipsGateWhenValueUnchanged(t *testing.T) {
	e := New(newFakeStore(), Options{})
	m := testMeeting()
	req := unchangedRequest(invitee, m)
	sameTitle := m.Title
	req.Title = &sameTitle

	if _, err := e.ParseMeetingUpdate(context.Background(), req); err != nil {
		t.Fatalf("expected identical value to need no permission, got %v", err)
	}
}

func TestParseMeetingUpdateOwnerBypassesGates(t *testing.T) {
	e := New(newFakeStore(), Options{})
	m := testMeeting()
	req := unchangedRequest(owner, m)
	title := "Renamed"
	req.Title = &title
	req.Content = "new agenda"
	req.StartsAt = m.StartsAt.Add(time.Hour)
	req.EndsAt = m.EndsAt.Add(time.Hour)

	parsed, err := e.ParseMeetingUpdate(context.Background(), req)
	if err != nil {
		t.Fatalf("expected scheduler to bypass every gate, got %v", err)
	}
	if parsed.Payload.Title != "Renamed" || parsed.Payload.Content != "new agenda" {
		t.Fatalf("expected payload to carry the new values, got %+v", parsed.Payload)
	}
}

func TestParseMeetingUpdateGateOrderGuestListFirst(t *testing.T) {
	e := New(newFakeStore(), Options{})
	m := testMeeting()
	m.Permissions = &meetsync.Permissions{Allowed: []meetsync.Permission{}}
	req := unchangedRequest(invitee, m)
	req.Participants = []meetsync.Participant{m.Participants[0]}
	title := "Renamed"
	req.Title = &title

	_, err := e.ParseMeetingUpdate(context.Background(), req)
	if err == nil || !errors.Is(err, meetsync.ErrDetailsModificationDenied) {
		t.Fatalf("expected denial, got %v", err)
	}
	if got := err.Error(); got[:len("guest list")] != "guest list" {
		t.Fatalf("expected the guest-list gate to fire first, got %q", got)
	}
}

func TestParseMeetingUpdateRejectsUnidentifiableMeeting(t *testing.T) {
	e := New(newFakeStore(), Options{})

	if _, err := e.ParseMeetingUpdate(context.Background(), UpdateRequest{Actor: owner}); !errors.Is(err, meetsync.ErrChangeConflict) {
		t.Fatalf("expected change-conflict for nil meeting, got %v", err)
	}

	m := testMeeting()
	m.ID = ""
	if _, err := e.ParseMeetingUpdate(context.Background(), unchangedRequest(owner, m)); !errors.Is(err, meetsync.ErrChangeConflict) {
		t.Fatalf("expected change-conflict for meeting without id, got %v", err)
	}

	stranger := meetsync.Account{Address: "acct-stranger", Email: "stranger@example.com"}
	if _, err := e.ParseMeetingUpdate(context.Background(), unchangedRequest(stranger, testMeeting())); !errors.Is(err, meetsync.ErrChangeConflict) {
		t.Fatalf("expected change-conflict for non-participant actor, got %v", err)
	}
}

func TestUpdateMeetingMergesRelatedSlotIDs(t *testing.T) {
	store := newFakeStore()
	m := testMeeting()
	store.meetings[m.ID] = m
	store.related[m.ID] = map[string]string{
		owner.Address:   "slot-owner",
		invitee.Address: "slot-invitee",
	}
	e := New(store, Options{})

	req := unchangedRequest(owner, m)
	req.Participants = append(append([]meetsync.Participant(nil), m.Participants...), meetsync.Participant{
		GuestEmail: guest.Email,
		Role:       meetsync.RoleInvitee,
		RSVP:       meetsync.RSVPPending,
	})
	parsed, err := e.ParseMeetingUpdate(context.Background(), req)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	slot, err := e.UpdateMeeting(context.Background(), parsed)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if slot == nil || slot.SlotID != "slot-owner" {
		t.Fatalf("expected the actor's existing slot id to survive, got %+v", slot)
	}

	saved := store.meetings[m.ID]
	if saved.Version != m.Version+1 {
		t.Fatalf("expected stored version %d, got %d", m.Version+1, saved.Version)
	}
	for _, p := range saved.Participants {
		if p.SlotID == "" {
			t.Fatalf("expected every participant to hold a slot id, got %+v", p)
		}
		if p.Version != saved.Version {
			t.Fatalf("expected slot version %d, got %d", saved.Version, p.Version)
		}
	}
}

func TestUpdateMeetingSurfacesStaleVersion(t *testing.T) {
	store := newFakeStore()
	m := testMeeting()
	// Another writer already moved the stored copy two versions ahead.
	newer := *m
	newer.Version = 5
	store.meetings[m.ID] = &newer
	e := New(store, Options{})

	parsed, err := e.ParseMeetingUpdate(context.Background(), unchangedRequest(owner, m))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if _, err := e.UpdateMeeting(context.Background(), parsed); !errors.Is(err, meetsync.ErrStaleVersion) {
		t.Fatalf("expected stale-version error, got %v", err)
	}
}

func TestParseRSVPUpdateTouchesOnlyResponses(t *testing.T) {
	e := New(newFakeStore(), Options{})
	m := testMeeting()
	req := UpdateRequest{
		Actor:    invitee,
		Existing: m,
		Participants: []meetsync.Participant{
			{AccountAddress: invitee.Address, RSVP: meetsync.RSVPRejected},
		},
	}

	parsed, err := e.ParseRSVPUpdate(context.Background(), req)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed.Payload.Version != m.Version+1 {
		t.Fatalf("expected incremented version, got %d", parsed.Payload.Version)
	}
	if parsed.Payload.Title != m.Title || parsed.Payload.StartsAt != m.StartsAt {
		t.Fatalf("expected meeting details untouched")
	}
	updated := parsed.Payload.Participant(invitee)
	if updated == nil || updated.RSVP != meetsync.RSVPRejected {
		t.Fatalf("expected invitee response updated, got %+v", updated)
	}
	if other := parsed.Payload.Participant(owner); other.RSVP != meetsync.RSVPAccepted {
		t.Fatalf("expected other responses untouched, got %+v", other)
	}
}
