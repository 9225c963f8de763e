package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/cleancredit/internal/dirtiness"
	"github.com/sells-group/cleancredit/internal/model"
	"github.com/sells-group/cleancredit/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS observations (
	id    INTEGER PRIMARY KEY AUTOINCREMENT,
	lat   REAL NOT NULL,
	lng   REAL NOT NULL,
	score REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS reward_events (
	id              TEXT PRIMARY KEY,
	lat             REAL,
	lng             REAL,
	citizen         TEXT NOT NULL,
	classification  TEXT NOT NULL,
	dirtiness_index REAL NOT NULL,
	value           REAL NOT NULL,
	label           TEXT NOT NULL,
	source          TEXT NOT NULL,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_reward_events_citizen ON reward_events(citizen);
CREATE INDEX IF NOT EXISTS idx_reward_events_created_at ON reward_events(created_at);

CREATE TABLE IF NOT EXISTS store_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LoadObservations(ctx context.Context) ([]dirtiness.Observation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT lat, lng, score FROM observations ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query observations")
	}
	defer rows.Close() //nolint:errcheck

	var obs []dirtiness.Observation
	for rows.Next() {
		var o dirtiness.Observation
		if err := rows.Scan(&o.Lat, &o.Lng, &o.Score); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan observation")
		}
		obs = append(obs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate observations")
	}
	if len(obs) > 0 {
		return obs, nil
	}

	var saved bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM store_meta WHERE key = ?)`, metaObservationsSaved,
	).Scan(&saved)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: check observations marker")
	}
	if !saved {
		return nil, ErrNoObservationSet
	}
	return []dirtiness.Observation{}, nil
}

func (s *SQLiteStore) SaveObservations(ctx context.Context, obs []dirtiness.Observation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM observations`); err != nil {
		return eris.Wrap(err, "sqlite: clear observations")
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO observations (lat, lng, score) VALUES (?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, o := range obs {
		if _, err := stmt.ExecContext(ctx, o.Lat, o.Lng, o.Score); err != nil {
			return eris.Wrap(err, "sqlite: insert observation")
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO store_meta (key, value) VALUES (?, datetime('now'))`, metaObservationsSaved,
	); err != nil {
		return eris.Wrap(err, "sqlite: mark observations saved")
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit observations")
}

// RecordReward inserts ev, retrying while another writer holds the lock.
func (s *SQLiteStore) RecordReward(ctx context.Context, ev *model.RewardEvent) error {
	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.MaxAttempts = 3
	retryCfg.InitialBackoff = 50 * time.Millisecond
	retryCfg.OnRetry = resilience.RetryLogger("sqlite record reward")

	_, err := resilience.Do(ctx, retryCfg, func(ctx context.Context) (sql.Result, error) {
		return s.db.ExecContext(ctx,
			`INSERT INTO reward_events (id, lat, lng, citizen, classification, dirtiness_index, value, label, source, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.ID, ev.Lat, ev.Lng, ev.Citizen, ev.Classification, ev.DirtinessIndex,
			ev.Value, ev.Label, ev.Source, ev.CreatedAt.UTC(),
		)
	})
	return eris.Wrapf(err, "sqlite: insert reward event %s", ev.ID)
}

func (s *SQLiteStore) ListRewards(ctx context.Context, filter model.RewardFilter) ([]model.RewardEvent, error) {
	query := `SELECT id, lat, lng, citizen, classification, dirtiness_index, value, label, source, created_at FROM reward_events`
	var args []any
	if filter.Citizen != "" {
		query += ` WHERE citizen = ?`
		args = append(args, filter.Citizen)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list rewards")
	}
	defer rows.Close() //nolint:errcheck

	var events []model.RewardEvent
	for rows.Next() {
		var ev model.RewardEvent
		var created time.Time
		if err := rows.Scan(&ev.ID, &ev.Lat, &ev.Lng, &ev.Citizen, &ev.Classification,
			&ev.DirtinessIndex, &ev.Value, &ev.Label, &ev.Source, &created); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan reward event")
		}
		ev.CreatedAt = created.UTC()
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: iterate rewards")
}
