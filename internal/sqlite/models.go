package sqlite

import (
	"database/sql"
	"encoding/json"
	"time"

	"meetsync"
)

// Stored timestamps use a fixed-width UTC layout so lexicographic SQL
// comparisons match chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(timeLayout, s)
	return t
}

type Account struct {
	Address     string `db:"address"`
	Email       string `db:"email"`
	DisplayName string `db:"display_name"`
}

func (a Account) Convert() meetsync.Account {
	return meetsync.Account{
		Address:     a.Address,
		Email:       a.Email,
		DisplayName: a.DisplayName,
	}
}

type Meeting struct {
	ID          string         `db:"id"`
	Version     int64          `db:"version"`
	TypeID      string         `db:"type_id"`
	Provider    string         `db:"provider"`
	CalendarID  string         `db:"calendar_id"`
	Title       string         `db:"title"`
	Content     string         `db:"content"`
	MeetingURL  string         `db:"meeting_url"`
	StartsAt    string         `db:"starts_at"`
	EndsAt      string         `db:"ends_at"`
	Permissions sql.NullString `db:"permissions"`
	Reminders   sql.NullString `db:"reminders"`
	RepeatRule  sql.NullString `db:"repeat_rule"`

	// ExpectedVersion is bind-only for the optimistic update; it never
	// maps to a column.
	ExpectedVersion int64 `db:"expected_version"`
}

func (m Meeting) Convert() *meetsync.Meeting {
	meeting := &meetsync.Meeting{
		ID:         m.ID,
		Version:    m.Version,
		TypeID:     m.TypeID,
		Provider:   meetsync.ProviderKind(m.Provider),
		CalendarID: m.CalendarID,
		Title:      m.Title,
		Content:    m.Content,
		MeetingURL: m.MeetingURL,
		StartsAt:   parseTime(m.StartsAt),
		EndsAt:     parseTime(m.EndsAt),
	}
	if m.Permissions.Valid {
		var perms meetsync.Permissions
		if json.Unmarshal([]byte(m.Permissions.String), &perms) == nil {
			meeting.Permissions = &perms
		}
	}
	if m.Reminders.Valid {
		_ = json.Unmarshal([]byte(m.Reminders.String), &meeting.Reminders)
	}
	if m.RepeatRule.Valid {
		var rule meetsync.Recurrence
		if json.Unmarshal([]byte(m.RepeatRule.String), &rule) == nil {
			meeting.RepeatRule = &rule
		}
	}
	return meeting
}

func newMeetingRow(m *meetsync.Meeting) (Meeting, error) {
	row := Meeting{
		ID:         m.ID,
		Version:    m.Version,
		TypeID:     m.TypeID,
		Provider:   m.Provider.String(),
		CalendarID: m.CalendarID,
		Title:      m.Title,
		Content:    m.Content,
		MeetingURL: m.MeetingURL,
		StartsAt:   formatTime(m.StartsAt),
		EndsAt:     formatTime(m.EndsAt),
	}
	if m.Permissions != nil {
		v, err := json.Marshal(m.Permissions)
		if err != nil {
			return row, err
		}
		row.Permissions = sql.NullString{String: string(v), Valid: true}
	}
	if len(m.Reminders) > 0 {
		v, err := json.Marshal(m.Reminders)
		if err != nil {
			return row, err
		}
		row.Reminders = sql.NullString{String: string(v), Valid: true}
	}
	if m.RepeatRule != nil {
		v, err := json.Marshal(m.RepeatRule)
		if err != nil {
			return row, err
		}
		row.RepeatRule = sql.NullString{String: string(v), Valid: true}
	}
	return row, nil
}

type Slot struct {
	ID             string `db:"id"`
	MeetingID      string `db:"meeting_id"`
	AccountAddress string `db:"account_address"`
	GuestEmail     string `db:"guest_email"`
	Name           string `db:"name"`
	Role           string `db:"role"`
	RSVP           string `db:"rsvp"`
	RecurringID    string `db:"recurring_id"`
	Version        int64  `db:"version"`
}

func (s Slot) Convert() meetsync.Participant {
	return meetsync.Participant{
		AccountAddress: s.AccountAddress,
		GuestEmail:     s.GuestEmail,
		Name:           s.Name,
		Role:           meetsync.Role(s.Role),
		RSVP:           meetsync.RSVP(s.RSVP),
		SlotID:         s.ID,
		RecurringID:    s.RecurringID,
		Version:        s.Version,
	}
}

type Series struct {
	ID            string         `db:"id"`
	AccountKey    string         `db:"account_key"`
	MasterID      string         `db:"master_id"`
	SlotID        string         `db:"slot_id"`
	StartsAt      string         `db:"starts_at"`
	EndsAt        string         `db:"ends_at"`
	Timezone      string         `db:"timezone"`
	Rule          sql.NullString `db:"rule"`
	EffectiveFrom string         `db:"effective_from"`
	UpdatedAt     string         `db:"updated_at"`
}

func (s Series) Convert() *meetsync.Series {
	series := &meetsync.Series{
		ID:            s.ID,
		AccountKey:    s.AccountKey,
		MasterID:      s.MasterID,
		SlotID:        s.SlotID,
		StartsAt:      parseTime(s.StartsAt),
		EndsAt:        parseTime(s.EndsAt),
		Timezone:      s.Timezone,
		EffectiveFrom: parseTime(s.EffectiveFrom),
		UpdatedAt:     parseTime(s.UpdatedAt),
	}
	if s.Rule.Valid {
		var rule meetsync.Recurrence
		if json.Unmarshal([]byte(s.Rule.String), &rule) == nil {
			series.Rule = &rule
		}
	}
	return series
}
