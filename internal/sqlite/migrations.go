package sqlite

func (s Storage) RunMigrations() error {
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		address VARCHAR NOT NULL PRIMARY KEY,
		email VARCHAR NOT NULL,
		display_name VARCHAR NOT NULL DEFAULT ""
	)`,
	`CREATE INDEX IF NOT EXISTS accounts_email ON accounts (LOWER(email))`,
	`CREATE TABLE IF NOT EXISTS meetings (
		id VARCHAR NOT NULL PRIMARY KEY,
		version INTEGER NOT NULL,
		type_id VARCHAR NOT NULL DEFAULT "",
		provider VARCHAR NOT NULL DEFAULT "",
		calendar_id VARCHAR NOT NULL DEFAULT "",
		title VARCHAR NOT NULL DEFAULT "",
		content TEXT NOT NULL DEFAULT "",
		meeting_url VARCHAR NOT NULL DEFAULT "",
		starts_at VARCHAR NOT NULL,
		ends_at VARCHAR NOT NULL,
		permissions TEXT NULL,
		reminders TEXT NULL,
		repeat_rule TEXT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS slots (
		id VARCHAR NOT NULL PRIMARY KEY,
		meeting_id VARCHAR NOT NULL,
		account_address VARCHAR NOT NULL DEFAULT "",
		guest_email VARCHAR NOT NULL DEFAULT "",
		name VARCHAR NOT NULL DEFAULT "",
		role VARCHAR NOT NULL,
		rsvp VARCHAR NOT NULL,
		recurring_id VARCHAR NOT NULL DEFAULT "",
		version INTEGER NOT NULL,
		FOREIGN KEY (meeting_id) REFERENCES meetings (id)
	)`,
	`CREATE INDEX IF NOT EXISTS slots_meeting ON slots (meeting_id)`,
	`CREATE TABLE IF NOT EXISTS series (
		id VARCHAR NOT NULL PRIMARY KEY,
		account_key VARCHAR NOT NULL,
		master_id VARCHAR NOT NULL,
		slot_id VARCHAR NOT NULL,
		starts_at VARCHAR NOT NULL,
		ends_at VARCHAR NOT NULL,
		timezone VARCHAR NOT NULL DEFAULT "UTC",
		rule TEXT NULL,
		effective_from VARCHAR NOT NULL DEFAULT "",
		updated_at VARCHAR NOT NULL DEFAULT "",
		UNIQUE (account_key, master_id)
	)`,
	`CREATE TABLE IF NOT EXISTS instances (
		series_id VARCHAR NOT NULL,
		starts_at VARCHAR NOT NULL,
		slot_id VARCHAR NOT NULL DEFAULT "",
		PRIMARY KEY (series_id, starts_at),
		FOREIGN KEY (series_id) REFERENCES series (id)
	)`,
}
