package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cleancredit/internal/dirtiness"
	"github.com/sells-group/cleancredit/internal/metrics"
	"github.com/sells-group/cleancredit/internal/store"
)

func newHolder(t *testing.T) *dirtiness.Holder {
	t.Helper()
	est, err := dirtiness.New([]dirtiness.Observation{{Lat: 0, Lng: 0, Score: 0.1}})
	require.NoError(t, err)
	return dirtiness.NewHolder(est)
}

func TestReloader_SeedsAndSwaps(t *testing.T) {
	st := store.NewFile(filepath.Join(t.TempDir(), "points.json"))
	h := newHolder(t)
	before := testutil.ToFloat64(metrics.Reloads.WithLabelValues("ok"))

	n, err := NewReloader(st, h, nil).Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, dirtiness.Seed(), h.Load().Observations())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.Reloads.WithLabelValues("ok")))
	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.ObservationCount))
}

func TestReloader_AppliesOptions(t *testing.T) {
	st := store.NewFile(filepath.Join(t.TempDir(), "points.json"))
	h := newHolder(t)

	_, err := NewReloader(st, h, nil, dirtiness.WithK(1)).Reload(context.Background())
	require.NoError(t, err)

	// With k=1 a query between samples returns the nearest score exactly.
	est := h.Load().Estimate(13.0418, 80.2300)
	assert.Len(t, est.Neighbors, 1)
	assert.InDelta(t, 0.90, est.Score, 1e-12)
}

type brokenStore struct{}

func (brokenStore) LoadObservations(context.Context) ([]dirtiness.Observation, error) {
	return nil, errors.New("disk gone")
}

func (brokenStore) SaveObservations(context.Context, []dirtiness.Observation) error { return nil }

func TestReloader_FailureKeepsPrevious(t *testing.T) {
	h := newHolder(t)
	prev := h.Load()
	before := testutil.ToFloat64(metrics.Reloads.WithLabelValues("error"))

	_, err := NewReloader(brokenStore{}, h, nil).Reload(context.Background())
	require.Error(t, err)
	assert.Same(t, prev, h.Load())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.Reloads.WithLabelValues("error")))
}

func TestReloader_EmptiedFileKeepsPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "points.json")
	st := store.NewFile(path)
	h := newHolder(t)
	r := NewReloader(st, h, nil)

	_, err := r.Reload(context.Background())
	require.NoError(t, err)
	prev := h.Load()

	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0o644))
	_, err = r.Reload(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, dirtiness.ErrNoObservations)
	assert.Same(t, prev, h.Load())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(data))
}

func TestWatcher_FiresOnRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "points.json")
	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0o644))

	var calls atomic.Int32
	w := NewWatcher(path, 20*time.Millisecond, func(context.Context) { calls.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	st := store.NewFile(path)
	require.NoError(t, st.SaveObservations(context.Background(), dirtiness.Seed()))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o644))

	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_MissingDir(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "nope", "points.json"), 0, func(context.Context) {})
	err := w.Run(context.Background())
	assert.ErrorContains(t, err, "watch: add")
}
