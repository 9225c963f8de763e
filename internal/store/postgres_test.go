package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/cleancredit/internal/dirtiness"
	"github.com/sells-group/cleancredit/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestEncodePoint(t *testing.T) {
	data, err := encodePoint(13.0418, 80.2337)
	require.NoError(t, err)

	g, err := ewkb.Unmarshal(data)
	require.NoError(t, err)
	p, ok := g.(*geom.Point)
	require.True(t, ok)
	assert.Equal(t, 4326, p.SRID())
	assert.InDelta(t, 80.2337, p.X(), 1e-12)
	assert.InDelta(t, 13.0418, p.Y(), 1e-12)
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE EXTENSION IF NOT EXISTS postgis`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadObservations(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT ST_Y\(geom\), ST_X\(geom\), score FROM observations`).
		WillReturnRows(pgxmock.NewRows([]string{"st_y", "st_x", "score"}).
			AddRow(13.0418, 80.2337, 0.9).
			AddRow(13.0860, 80.2101, 0.7))

	obs, err := s.LoadObservations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []dirtiness.Observation{
		{Lat: 13.0418, Lng: 80.2337, Score: 0.9},
		{Lat: 13.0860, Lng: 80.2101, Score: 0.7},
	}, obs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadObservations_NeverSaved(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT ST_Y\(geom\), ST_X\(geom\), score FROM observations`).
		WillReturnRows(pgxmock.NewRows([]string{"st_y", "st_x", "score"}))
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM store_meta WHERE key = \$1\)`).
		WithArgs(metaObservationsSaved).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := s.LoadObservations(context.Background())
	assert.ErrorIs(t, err, ErrNoObservationSet)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadObservations_SavedEmptySet(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT ST_Y\(geom\), ST_X\(geom\), score FROM observations`).
		WillReturnRows(pgxmock.NewRows([]string{"st_y", "st_x", "score"}))
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM store_meta`).
		WithArgs(metaObservationsSaved).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	obs, err := s.LoadObservations(context.Background())
	require.NoError(t, err)
	assert.Empty(t, obs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadObservations_QueryError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT ST_Y`).WillReturnError(errors.New("relation does not exist"))

	_, err := s.LoadObservations(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query observations")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveObservations(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	obs := dirtiness.Seed()[:2]

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM observations`).WillReturnResult(pgxmock.NewResult("DELETE", 4))
	for _, o := range obs {
		mock.ExpectExec(`INSERT INTO observations \(geom, score\) VALUES \(ST_GeomFromEWKB\(\$1\), \$2\)`).
			WithArgs(pgxmock.AnyArg(), o.Score).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectExec(`INSERT INTO store_meta \(key, value\) VALUES \(\$1, now\(\)::text\) ON CONFLICT \(key\) DO NOTHING`).
		WithArgs(metaObservationsSaved).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, s.SaveObservations(context.Background(), obs))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveObservations_RollsBackOnError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM observations`).WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	err := s.SaveObservations(context.Background(), dirtiness.Seed())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clear observations")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordReward(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()
	ev := &model.RewardEvent{
		ID: "33333333-3333-3333-3333-333333333333", Lat: ptr(13.04), Lng: ptr(80.23),
		Citizen: "taxpayer", Classification: "recyclable", DirtinessIndex: 0.5,
		Value: 15, Label: "Tax Credits", Source: "rule", CreatedAt: now,
	}

	mock.ExpectExec(`INSERT INTO reward_events`).
		WithArgs(ev.ID, pgxmock.AnyArg(), "taxpayer", "recyclable", 0.5, 15.0, "Tax Credits", "rule", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.RecordReward(context.Background(), ev))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordReward_NoLocation(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()
	ev := &model.RewardEvent{
		ID: "55555555-5555-5555-5555-555555555555", Citizen: "taxpayer", Classification: "trash",
		DirtinessIndex: 0.2, Value: 6, Label: "Tax Credits", Source: "rule", CreatedAt: now,
	}

	mock.ExpectExec(`INSERT INTO reward_events`).
		WithArgs(ev.ID, []byte(nil), "taxpayer", "trash", 0.2, 6.0, "Tax Credits", "rule", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.RecordReward(context.Background(), ev))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRewards(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id::text, ST_Y\(geom\), ST_X\(geom\)`).
		WithArgs("taxpayer", 100).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "st_y", "st_x", "citizen", "classification", "dirtiness_index", "value", "label", "source", "created_at",
		}).
			AddRow("44444444-4444-4444-4444-444444444444", ptr(13.04), ptr(80.23), "taxpayer", "recyclable", 0.5, 15.0, "Tax Credits", "model", now).
			AddRow("66666666-6666-6666-6666-666666666666", nil, nil, "taxpayer", "trash", 0.0, 5.0, "Tax Credits", "rule", now))

	events, err := s.ListRewards(context.Background(), model.RewardFilter{Citizen: "taxpayer"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "model", events[0].Source)
	require.NotNil(t, events[0].Lng)
	assert.InDelta(t, 80.23, *events[0].Lng, 1e-9)
	assert.Nil(t, events[1].Lat)
	assert.Nil(t, events[1].Lng)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Close(t *testing.T) {
	var closed bool
	s := &PostgresStore{closeFn: func() { closed = true }}
	require.NoError(t, s.Close())
	assert.True(t, closed)
}
