package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"meetsync"
)

const DriverName = "sqlite3"

type Storage struct {
	db *sqlx.DB
}

func NewStorage(db *sql.DB) *Storage {
	s := &Storage{
		db: sqlx.NewDb(db, DriverName),
	}
	err := s.RunMigrations()
	if err != nil {
		panic(fmt.Sprintf("sqlite: running migrations: %v", err))
	}
	return s
}

func (s Storage) AddAccount(ctx context.Context, acc *meetsync.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (address, email, display_name) VALUES (?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET email=excluded.email, display_name=excluded.display_name;
	`, acc.Address, acc.Email, acc.DisplayName)
	return err
}

func (s Storage) AccountByAddress(ctx context.Context, address string) (*meetsync.Account, error) {
	var acc Account
	err := s.db.GetContext(ctx, &acc, `
		SELECT address, email, display_name FROM accounts WHERE address = ?
	`, address)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	res := acc.Convert()
	return &res, nil
}

// AccountsByEmail resolves accounts for each email, case-insensitively.
// The result maps lowercased email to the matching accounts and is always
// non-nil.
func (s Storage) AccountsByEmail(ctx context.Context, emails []string) (map[string][]meetsync.Account, error) {
	res := make(map[string][]meetsync.Account, len(emails))
	if len(emails) == 0 {
		return res, nil
	}

	lowered := make([]string, len(emails))
	for i, e := range emails {
		lowered[i] = strings.ToLower(e)
	}

	query, args, err := sqlx.In(`
		SELECT address, email, display_name
		FROM accounts
		WHERE LOWER(email) IN (?)
	`, lowered)
	if err != nil {
		return nil, err
	}

	var accs []Account
	err = s.db.SelectContext(ctx, &accs, s.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	for _, a := range accs {
		key := strings.ToLower(a.Email)
		res[key] = append(res[key], a.Convert())
	}
	return res, nil
}

func (s Storage) Meeting(ctx context.Context, id string) (*meetsync.Meeting, error) {
	var row Meeting
	err := s.db.GetContext(ctx, &row, `
		SELECT id, version, type_id, provider, calendar_id, title, content,
			meeting_url, starts_at, ends_at, permissions, reminders, repeat_rule
		FROM meetings WHERE id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	meeting := row.Convert()

	var slots []Slot
	err = s.db.SelectContext(ctx, &slots, `
		SELECT id, meeting_id, account_address, guest_email, name, role, rsvp, recurring_id, version
		FROM slots WHERE meeting_id = ?
	`, id)
	if err != nil {
		return nil, err
	}
	for _, slot := range slots {
		meeting.Participants = append(meeting.Participants, slot.Convert())
	}
	return meeting, nil
}

// SaveMeeting persists the meeting and its slots. expectedVersion 0 means
// "create"; anything else must match the stored version or the write is
// rejected with meetsync.ErrStaleVersion instead of overwriting.
func (s Storage) SaveMeeting(ctx context.Context, m *meetsync.Meeting, expectedVersion int64) error {
	row, err := newMeetingRow(m)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if expectedVersion == 0 {
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO meetings (id, version, type_id, provider, calendar_id, title,
				content, meeting_url, starts_at, ends_at, permissions, reminders, repeat_rule)
			VALUES (:id, :version, :type_id, :provider, :calendar_id, :title,
				:content, :meeting_url, :starts_at, :ends_at, :permissions, :reminders, :repeat_rule)
		`, row)
		if err != nil {
			return err
		}
	} else {
		row.ExpectedVersion = expectedVersion
		res, err := tx.NamedExecContext(ctx, `
			UPDATE meetings SET version=:version, type_id=:type_id, provider=:provider,
				calendar_id=:calendar_id, title=:title, content=:content,
				meeting_url=:meeting_url, starts_at=:starts_at, ends_at=:ends_at,
				permissions=:permissions, reminders=:reminders, repeat_rule=:repeat_rule
			WHERE id=:id AND version=:expected_version
		`, row)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return meetsync.ErrStaleVersion
		}
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM slots WHERE meeting_id = ?`, m.ID)
	if err != nil {
		return err
	}
	for _, p := range m.Participants {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO slots (id, meeting_id, account_address, guest_email, name, role, rsvp, recurring_id, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, p.SlotID, m.ID, p.AccountAddress, p.GuestEmail, p.Name, p.Role.String(), p.RSVP.String(), p.RecurringID, p.Version)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s Storage) DeleteMeeting(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM slots WHERE meeting_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM meetings WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s Storage) RelatedSlotIDs(ctx context.Context, meetingID string) (map[string]string, error) {
	var slots []Slot
	err := s.db.SelectContext(ctx, &slots, `
		SELECT id, meeting_id, account_address, guest_email, name, role, rsvp, recurring_id, version
		FROM slots WHERE meeting_id = ?
	`, meetingID)
	if err != nil {
		return nil, err
	}
	res := make(map[string]string, len(slots))
	for _, slot := range slots {
		res[slot.Convert().Key()] = slot.ID
	}
	return res, nil
}

func (s Storage) Series(ctx context.Context, accountKey, masterID string) (*meetsync.Series, error) {
	var row Series
	err := s.db.GetContext(ctx, &row, `
		SELECT id, account_key, master_id, slot_id, starts_at, ends_at, timezone, rule, effective_from, updated_at
		FROM series WHERE account_key = ? AND master_id = ?
	`, accountKey, masterID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.Convert(), nil
}

func (s Storage) UpsertSeries(ctx context.Context, series *meetsync.Series) error {
	rule := sql.NullString{}
	if series.Rule != nil {
		v, err := json.Marshal(series.Rule)
		if err != nil {
			return err
		}
		rule = sql.NullString{String: string(v), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO series (id, account_key, master_id, slot_id, starts_at, ends_at, timezone, rule, effective_from, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_key, master_id) DO UPDATE SET
			slot_id=excluded.slot_id,
			starts_at=excluded.starts_at,
			ends_at=excluded.ends_at,
			timezone=excluded.timezone,
			rule=excluded.rule,
			effective_from=excluded.effective_from,
			updated_at=excluded.updated_at;
	`, series.ID, series.AccountKey, series.MasterID, series.SlotID,
		formatTime(series.StartsAt), formatTime(series.EndsAt), series.Timezone,
		rule, formatTime(series.EffectiveFrom), formatTime(series.UpdatedAt))
	return err
}

func (s Storage) DeleteSeries(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM series WHERE id = ?`, id)
	return err
}

func (s Storage) AddInstance(ctx context.Context, seriesID string, startsAt time.Time, slotID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO instances (series_id, starts_at, slot_id) VALUES (?, ?, ?)
		ON CONFLICT(series_id, starts_at) DO UPDATE SET slot_id=excluded.slot_id;
	`, seriesID, formatTime(startsAt), slotID)
	return err
}

func (s Storage) InstancesAfter(ctx context.Context, seriesID string, after time.Time) ([]time.Time, error) {
	var rows []string
	err := s.db.SelectContext(ctx, &rows, `
		SELECT starts_at FROM instances WHERE series_id = ? AND starts_at >= ? ORDER BY starts_at
	`, seriesID, formatTime(after))
	if err != nil {
		return nil, err
	}
	res := make([]time.Time, len(rows))
	for i, r := range rows {
		res[i] = parseTime(r)
	}
	return res, nil
}

func (s Storage) DeleteInstancesAfter(ctx context.Context, seriesID string, after time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM instances WHERE series_id = ? AND starts_at >= ?
	`, seriesID, formatTime(after))
	return err
}

// MeetingsForAccount lists the account's meetings overlapping [from, to),
// used to fold internal slots into availability.
func (s Storage) MeetingsForAccount(ctx context.Context, accountKey string, from, to time.Time) ([]*meetsync.Meeting, error) {
	var rows []Meeting
	err := s.db.SelectContext(ctx, &rows, `
		SELECT m.id, m.version, m.type_id, m.provider, m.calendar_id, m.title, m.content,
			m.meeting_url, m.starts_at, m.ends_at, m.permissions, m.reminders, m.repeat_rule
		FROM meetings m
		INNER JOIN slots s ON s.meeting_id = m.id
		WHERE (s.account_address = ? OR LOWER(s.guest_email) = LOWER(?))
			AND m.ends_at > ? AND m.starts_at < ?
		ORDER BY m.starts_at
	`, accountKey, accountKey, formatTime(from), formatTime(to))
	if err != nil {
		return nil, err
	}
	res := make([]*meetsync.Meeting, len(rows))
	for i, row := range rows {
		res[i] = row.Convert()
	}
	return res, nil
}
