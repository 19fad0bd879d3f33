package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"meetsync"
	"meetsync/calendar"
	"meetsync/calendar/caldav"
	"meetsync/calendar/google"
	"meetsync/calendar/office"
	"meetsync/calendar/webcal"
	"meetsync/internal/engine"
	"meetsync/internal/interval"
	"meetsync/internal/retry"
	"meetsync/internal/sqlite"
	"meetsync/internal/syncqueue"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "meetsync",
		Usage: "Keep meetings consistent with each account's external calendars.",
		Commands: []*cli.Command{
			loginCommand(),
			syncCommand(),
			busyCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Authorize a Google account and store its token.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "account", Value: "default", Usage: "Name the token file after this account."},
		},
		Action: func(c *cli.Context) error {
			logger := setupLogger(os.Getenv("LOG_LEVEL"))

			credJSON, err := os.ReadFile(envOr("GOOGLE_CREDENTIALS_FILE", "credentials.json"))
			if err != nil {
				return fmt.Errorf("reading credentials file: %w", err)
			}
			client, err := google.NewClient(c.Context, logger, credJSON, nil)
			if err != nil {
				return err
			}

			tokenJSON, err := client.Login(c.Context, func(authURL string) {
				fmt.Println("Open the following link in your browser:")
				fmt.Println(authURL)
			})
			if err != nil {
				return fmt.Errorf("authorization flow failed: %w", err)
			}

			tokenFile := "token-" + c.String("account") + ".json"
			if err := os.WriteFile(tokenFile, tokenJSON, 0o600); err != nil {
				return fmt.Errorf("saving token: %w", err)
			}
			logger.Info("account authorized", "file", tokenFile)
			return nil
		},
	}
}

func syncCommand() *cli.Command {
	from := meetsync.Today().AddDate(0, 0, -7)
	to := meetsync.Today().AddDate(0, 0, 30)
	return &cli.Command{
		Name:  "sync",
		Usage: "Pull provider events for the window and refresh series records.",
		Flags: []cli.Flag{
			&cli.GenericFlag{Name: "from", Value: &from, Usage: "Window start date (YYYY-MM-DD)."},
			&cli.GenericFlag{Name: "to", Value: &to, Usage: "Window end date (YYYY-MM-DD, exclusive)."},
		},
		Action: func(c *cli.Context) error {
			logger := setupLogger(os.Getenv("LOG_LEVEL"))

			store, closeDB, err := openStorage()
			if err != nil {
				return err
			}
			defer closeDB()

			account, err := ensureAccount(c.Context, store)
			if err != nil {
				return err
			}

			mux, err := buildMux(c.Context, logger)
			if err != nil {
				return err
			}
			queue := syncqueue.New(c.Context, logger)
			eng := engine.New(store, engine.Options{
				Logger: logger,
				Mux:    mux,
				Queue:  queue,
				Retry:  retry.DefaultPolicy(),
			})

			var seen, recurring int
			for _, source := range configuredSources() {
				provider, err := mux.Get(source.kind)
				if err != nil {
					logger.Warn("skipping unconfigured provider", "provider", source.kind)
					continue
				}
				events, err := provider.GetEvents(c.Context, source.cals, from.Time, to.Time, false)
				if err != nil {
					return fmt.Errorf("listing %s events: %w", source.kind, err)
				}
				for _, event := range events {
					seen++
					if event.Recurrence == nil {
						continue
					}
					recurring++
					if err := eng.UpdateSeries(c.Context, account.Key(), event); err != nil {
						logger.Error("refreshing series failed", "id", event.ID, "error", err)
					}
				}
			}

			queue.Wait()
			logger.Info("sync window processed", "events", seen, "recurring", recurring, "from", from, "to", to)
			return nil
		},
	}
}

func busyCommand() *cli.Command {
	from := meetsync.Today()
	to := meetsync.Today().AddDate(0, 0, 7)
	return &cli.Command{
		Name:  "busy",
		Usage: "Print the merged busy intervals for the configured account.",
		Flags: []cli.Flag{
			&cli.GenericFlag{Name: "from", Value: &from, Usage: "Window start date (YYYY-MM-DD)."},
			&cli.GenericFlag{Name: "to", Value: &to, Usage: "Window end date (YYYY-MM-DD, exclusive)."},
		},
		Action: func(c *cli.Context) error {
			logger := setupLogger(os.Getenv("LOG_LEVEL"))

			store, closeDB, err := openStorage()
			if err != nil {
				return err
			}
			defer closeDB()

			account, err := ensureAccount(c.Context, store)
			if err != nil {
				return err
			}

			mux, err := buildMux(c.Context, logger)
			if err != nil {
				return err
			}

			meetings, err := store.MeetingsForAccount(c.Context, account.Key(), from.Time, to.Time)
			if err != nil {
				return fmt.Errorf("loading meetings: %w", err)
			}
			sets := [][]meetsync.Interval{interval.FromSlots(meetings, from.Time, to.Time)}

			for _, source := range configuredSources() {
				provider, err := mux.Get(source.kind)
				if err != nil {
					continue
				}
				ids := make([]string, len(source.cals))
				for i, cal := range source.cals {
					ids[i] = cal.ID
				}
				busy, err := provider.GetAvailability(c.Context, ids, from.Time, to.Time)
				if err != nil {
					return fmt.Errorf("fetching %s availability: %w", source.kind, err)
				}
				sets = append(sets, busy)
			}

			for _, iv := range interval.Aggregate(sets...) {
				fmt.Printf("%s - %s\n", iv.Start.Format(time.RFC3339), iv.End.Format(time.RFC3339))
			}
			return nil
		},
	}
}

type eventSource struct {
	kind meetsync.ProviderKind
	cals []meetsync.CalendarRef
}

// configuredSources reads the calendar lists from the environment. Each
// variable is a comma-separated list of calendar ids (Google), calendar
// paths (CalDAV), calendar ids (groupware) or feed URLs (webcal).
func configuredSources() []eventSource {
	email := os.Getenv("MEETSYNC_EMAIL")
	var sources []eventSource
	add := func(kind meetsync.ProviderKind, env string, readOnly bool) {
		raw := os.Getenv(env)
		if raw == "" {
			return
		}
		var cals []meetsync.CalendarRef
		for _, id := range strings.Split(raw, ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			cals = append(cals, meetsync.CalendarRef{ID: id, AccountEmail: email, ReadOnly: readOnly})
		}
		if len(cals) > 0 {
			sources = append(sources, eventSource{kind: kind, cals: cals})
		}
	}
	add(meetsync.ProviderGoogle, "GOOGLE_CALENDAR_IDS", false)
	add(meetsync.ProviderOffice, "OFFICE_CALENDAR_IDS", false)
	add(meetsync.ProviderCalDAV, "CALDAV_CALENDAR_PATHS", false)
	add(meetsync.ProviderWebcal, "WEBCAL_FEEDS", true)
	return sources
}

func buildMux(ctx context.Context, logger *slog.Logger) (*calendar.Mux, error) {
	mux := calendar.NewMux()

	if credFile := os.Getenv("GOOGLE_CREDENTIALS_FILE"); credFile != "" {
		credJSON, err := os.ReadFile(credFile)
		if err != nil {
			return nil, fmt.Errorf("reading google credentials: %w", err)
		}
		tokenJSON, err := os.ReadFile(envOr("GOOGLE_TOKEN_FILE", "token-default.json"))
		if err != nil {
			return nil, fmt.Errorf("reading google token (run the login command first): %w", err)
		}
		client, err := google.NewClient(ctx, logger, credJSON, tokenJSON)
		if err != nil {
			return nil, err
		}
		mux.Register(meetsync.ProviderGoogle, client)
	}

	if baseURL := os.Getenv("OFFICE_BASE_URL"); baseURL != "" {
		mux.Register(meetsync.ProviderOffice, office.NewClient(office.Options{
			BaseURL: baseURL,
			Token:   os.Getenv("OFFICE_TOKEN"),
			Logger:  logger,
			Retry:   retry.DefaultPolicy(),
		}))
	}

	if endpoint := os.Getenv("CALDAV_ENDPOINT"); endpoint != "" {
		client, err := caldav.NewClient(caldav.Options{
			Endpoint: endpoint,
			Username: os.Getenv("CALDAV_USERNAME"),
			Password: os.Getenv("CALDAV_PASSWORD"),
			Logger:   logger,
			Retry:    retry.DefaultPolicy(),
		})
		if err != nil {
			return nil, err
		}
		mux.Register(meetsync.ProviderCalDAV, client)
	}

	mux.Register(meetsync.ProviderWebcal, webcal.NewClient(webcal.Options{
		Logger: logger,
		Retry:  retry.DefaultPolicy(),
	}))

	return mux, nil
}

func openStorage() (*sqlite.Storage, func(), error) {
	db, err := sql.Open("sqlite3", envOr("MEETSYNC_DB", "meetsync.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	return sqlite.NewStorage(db), func() { _ = db.Close() }, nil
}

// ensureAccount upserts the account this process acts as, from
// MEETSYNC_ADDRESS and MEETSYNC_EMAIL.
func ensureAccount(ctx context.Context, store *sqlite.Storage) (*meetsync.Account, error) {
	account := &meetsync.Account{
		Address: os.Getenv("MEETSYNC_ADDRESS"),
		Email:   os.Getenv("MEETSYNC_EMAIL"),
	}
	if account.Address == "" && account.Email == "" {
		return nil, fmt.Errorf("MEETSYNC_ADDRESS or MEETSYNC_EMAIL must be set")
	}
	if err := store.AddAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("registering account: %w", err)
	}
	return account, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	return logger
}
