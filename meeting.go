package meetsync

import (
	"strings"
	"time"
)

// Account is a user known to the system. Address is the stable account
// identifier; Email is how external calendars refer to the same person.
type Account struct {
	Address     string
	Email       string
	DisplayName string
}

// Key is the identifier the sync queue serializes on: the account address
// when we have one, otherwise the (lowercased) email of a guest.
func (a Account) Key() string {
	if a.Address != "" {
		return a.Address
	}
	return strings.ToLower(a.Email)
}

type Role string

func (r Role) String() string {
	return string(r)
}

const (
	RoleOwner     Role = "owner"
	RoleScheduler Role = "scheduler"
	RoleInvitee   Role = "invitee"
)

// Participant is one party's view of a meeting. Exactly one identity
// channel is authoritative: AccountAddress for known accounts, GuestEmail
// for guests. Both may be populated for reconciliation.
type Participant struct {
	AccountAddress string
	GuestEmail     string
	Name           string
	Role           Role
	RSVP           RSVP
	SlotID         string
	RecurringID    string
	Version        int64
}

// Key returns the sync-queue identity of the participant.
func (p Participant) Key() string {
	if p.AccountAddress != "" {
		return p.AccountAddress
	}
	return strings.ToLower(p.GuestEmail)
}

// Is reports whether the participant is the given account, matching the
// address first and falling back to a case-insensitive email comparison.
func (p Participant) Is(acc Account) bool {
	if p.AccountAddress != "" && p.AccountAddress == acc.Address {
		return true
	}
	return p.GuestEmail != "" && strings.EqualFold(p.GuestEmail, acc.Email)
}

// Meeting is the internal, decrypted meeting record the mutation engine
// works on. Version increments by exactly one on every successful
// mutation; storage rejects writes whose expected version is stale.
type Meeting struct {
	ID           string
	Version      int64
	TypeID       string
	Provider     ProviderKind
	CalendarID   string
	Title        string
	Content      string
	MeetingURL   string
	StartsAt     time.Time
	EndsAt       time.Time
	Participants []Participant
	Permissions  *Permissions
	Reminders    []time.Duration
	RepeatRule   *Recurrence
}

// Participant returns the entry for the given account, or nil.
func (m *Meeting) Participant(acc Account) *Participant {
	for i := range m.Participants {
		if m.Participants[i].Is(acc) {
			return &m.Participants[i]
		}
	}
	return nil
}

// Scheduler returns the participant holding the Scheduler role, or nil.
func (m *Meeting) Scheduler() *Participant {
	for i := range m.Participants {
		if m.Participants[i].Role == RoleScheduler {
			return &m.Participants[i]
		}
	}
	return nil
}

// Series binds one account's meeting template to a recurring event master.
// EffectiveFrom marks where truncation or edits begin: instances that
// occurred before it are never touched when the series is edited,
// truncated or deleted.
type Series struct {
	ID            string
	AccountKey    string
	MasterID      string
	SlotID        string
	StartsAt      time.Time
	EndsAt        time.Time
	Timezone      string
	Rule          *Recurrence
	EffectiveFrom time.Time
	UpdatedAt     time.Time
}
