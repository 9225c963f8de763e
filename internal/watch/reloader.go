// Package watch keeps the served dirtiness estimator in sync with the
// observation store.
package watch

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cleancredit/internal/dirtiness"
	"github.com/sells-group/cleancredit/internal/metrics"
	"github.com/sells-group/cleancredit/internal/notify"
	"github.com/sells-group/cleancredit/internal/store"
)

// Reloader rebuilds the estimator from the store and swaps it into a Holder.
// A failed reload leaves the previous estimator serving.
type Reloader struct {
	store  store.ObservationStore
	holder *dirtiness.Holder
	pub    *notify.Publisher
	opts   []dirtiness.Option

	mu sync.Mutex // serializes reloads
}

// NewReloader creates a Reloader. pub may be nil.
func NewReloader(s store.ObservationStore, h *dirtiness.Holder, pub *notify.Publisher, opts ...dirtiness.Option) *Reloader {
	return &Reloader{store: s, holder: h, pub: pub, opts: opts}
}

// Reload loads the observation set and installs a new estimator. It returns
// the number of observations now being served.
func (r *Reloader) Reload(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	obs, err := store.LoadOrSeed(ctx, r.store)
	if err != nil {
		metrics.Reloads.WithLabelValues("error").Inc()
		return 0, eris.Wrap(err, "watch: reload")
	}

	est, err := dirtiness.New(obs, r.opts...)
	if err != nil {
		metrics.Reloads.WithLabelValues("error").Inc()
		return 0, eris.Wrap(err, "watch: build estimator")
	}

	r.holder.Swap(est)
	metrics.Reloads.WithLabelValues("ok").Inc()
	metrics.ObservationCount.Set(float64(est.Len()))
	zap.L().Info("watch: estimator reloaded", zap.Int("observations", est.Len()))

	if err := r.pub.PublishReload(est.Len()); err != nil {
		zap.L().Warn("watch: publish reload event", zap.Error(err))
	}
	return est.Len(), nil
}
