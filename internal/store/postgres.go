package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/cleancredit/internal/db"
	"github.com/sells-group/cleancredit/internal/dirtiness"
	"github.com/sells-group/cleancredit/internal/model"
	"github.com/sells-group/cleancredit/internal/resilience"
)

// PostgresStore implements Store on PostGIS using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool. Connecting is
// retried while the database is unreachable.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(8)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("postgres connect")

	pool, err := resilience.Do(ctx, retryCfg, func(ctx context.Context) (*pgxpool.Pool, error) {
		pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: create pool")
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, eris.Wrap(err, "postgres: ping")
		}
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS observations (
	id    BIGSERIAL PRIMARY KEY,
	geom  geometry(Point, 4326) NOT NULL,
	score DOUBLE PRECISION NOT NULL CHECK (score >= 0 AND score <= 1)
);

CREATE INDEX IF NOT EXISTS idx_observations_geom ON observations USING GIST (geom);

CREATE TABLE IF NOT EXISTS reward_events (
	id              UUID PRIMARY KEY,
	geom            geometry(Point, 4326),
	citizen         TEXT NOT NULL,
	classification  TEXT NOT NULL,
	dirtiness_index DOUBLE PRECISION NOT NULL,
	value           DOUBLE PRECISION NOT NULL,
	label           TEXT NOT NULL,
	source          TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_reward_events_citizen ON reward_events(citizen);
CREATE INDEX IF NOT EXISTS idx_reward_events_created_at ON reward_events(created_at DESC);

ALTER TABLE reward_events ALTER COLUMN geom DROP NOT NULL;

CREATE TABLE IF NOT EXISTS store_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// encodePoint converts a lat/lng pair to EWKB with SRID 4326.
func encodePoint(lat, lng float64) ([]byte, error) {
	p := geom.NewPointFlat(geom.XY, []float64{lng, lat}).SetSRID(4326)
	data, err := ewkb.Marshal(p, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: encode point")
	}
	return data, nil
}

func (s *PostgresStore) LoadObservations(ctx context.Context) ([]dirtiness.Observation, error) {
	rows, err := s.pool.Query(ctx, `SELECT ST_Y(geom), ST_X(geom), score FROM observations ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query observations")
	}
	defer rows.Close()

	var obs []dirtiness.Observation
	for rows.Next() {
		var o dirtiness.Observation
		if err := rows.Scan(&o.Lat, &o.Lng, &o.Score); err != nil {
			return nil, eris.Wrap(err, "postgres: scan observation")
		}
		obs = append(obs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate observations")
	}
	if len(obs) > 0 {
		return obs, nil
	}

	var saved bool
	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM store_meta WHERE key = $1)`, metaObservationsSaved,
	).Scan(&saved)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: check observations marker")
	}
	if !saved {
		return nil, ErrNoObservationSet
	}
	return []dirtiness.Observation{}, nil
}

func (s *PostgresStore) SaveObservations(ctx context.Context, obs []dirtiness.Observation) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM observations`); err != nil {
		return eris.Wrap(err, "postgres: clear observations")
	}

	for _, o := range obs {
		pt, err := encodePoint(o.Lat, o.Lng)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO observations (geom, score) VALUES (ST_GeomFromEWKB($1), $2)`,
			pt, o.Score,
		); err != nil {
			return eris.Wrap(err, "postgres: insert observation")
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO store_meta (key, value) VALUES ($1, now()::text) ON CONFLICT (key) DO NOTHING`,
		metaObservationsSaved,
	); err != nil {
		return eris.Wrap(err, "postgres: mark observations saved")
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit observations")
	}
	return nil
}

// RecordReward inserts ev. An event without a location gets a NULL geom.
func (s *PostgresStore) RecordReward(ctx context.Context, ev *model.RewardEvent) error {
	var pt []byte
	if ev.Lat != nil && ev.Lng != nil {
		var err error
		if pt, err = encodePoint(*ev.Lat, *ev.Lng); err != nil {
			return err
		}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO reward_events (id, geom, citizen, classification, dirtiness_index, value, label, source, created_at)
		 VALUES ($1, ST_GeomFromEWKB($2), $3, $4, $5, $6, $7, $8, $9)`,
		ev.ID, pt, ev.Citizen, ev.Classification, ev.DirtinessIndex,
		ev.Value, ev.Label, ev.Source, ev.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert reward event %s", ev.ID)
}

func (s *PostgresStore) ListRewards(ctx context.Context, filter model.RewardFilter) ([]model.RewardEvent, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id::text, ST_Y(geom), ST_X(geom), citizen, classification, dirtiness_index, value, label, source, created_at
		 FROM reward_events
		 WHERE ($1 = '' OR citizen = $1)
		 ORDER BY created_at DESC
		 LIMIT $2`,
		filter.Citizen, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list rewards")
	}
	defer rows.Close()

	var events []model.RewardEvent
	for rows.Next() {
		var ev model.RewardEvent
		if err := rows.Scan(&ev.ID, &ev.Lat, &ev.Lng, &ev.Citizen, &ev.Classification,
			&ev.DirtinessIndex, &ev.Value, &ev.Label, &ev.Source, &ev.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan reward event")
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate rewards")
	}
	return events, nil
}
