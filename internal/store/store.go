// Package store persists dirtiness observations and the reward ledger.
package store

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cleancredit/internal/dirtiness"
	"github.com/sells-group/cleancredit/internal/model"
)

// ErrNoObservationSet is returned by LoadObservations when no set has ever
// been saved. A saved but empty set loads as an empty slice instead.
var ErrNoObservationSet = eris.New("store: no observation set stored")

// metaObservationsSaved is the store_meta key the SQL stores write on the
// first SaveObservations, so an emptied table still counts as stored.
const metaObservationsSaved = "observations_saved"

// ObservationStore loads and replaces the observation set.
type ObservationStore interface {
	// LoadObservations returns the stored set, or ErrNoObservationSet when
	// nothing has been stored yet.
	LoadObservations(ctx context.Context) ([]dirtiness.Observation, error)
	// SaveObservations replaces the stored set.
	SaveObservations(ctx context.Context, obs []dirtiness.Observation) error
}

// RewardLedger records issued rewards.
type RewardLedger interface {
	RecordReward(ctx context.Context, ev *model.RewardEvent) error
	ListRewards(ctx context.Context, filter model.RewardFilter) ([]model.RewardEvent, error)
}

// Store is the full persistence interface.
type Store interface {
	ObservationStore
	RewardLedger

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// LoadOrSeed loads the observation set, writing and returning the default
// seed only when nothing has been stored yet. A stored but empty set is an
// error wrapping dirtiness.ErrNoObservations. The loaded set is range-checked.
func LoadOrSeed(ctx context.Context, s ObservationStore) ([]dirtiness.Observation, error) {
	obs, err := s.LoadObservations(ctx)
	if errors.Is(err, ErrNoObservationSet) {
		obs = dirtiness.Seed()
		if err := s.SaveObservations(ctx, obs); err != nil {
			return nil, eris.Wrap(err, "store: seed observations")
		}
		zap.L().Info("store: seeded default observations", zap.Int("count", len(obs)))
		return obs, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: load observations")
	}

	if len(obs) == 0 {
		return nil, eris.Wrap(dirtiness.ErrNoObservations, "store: stored observation set is empty")
	}

	if err := dirtiness.Validate(obs); err != nil {
		return nil, eris.Wrap(err, "store: validate observations")
	}
	return obs, nil
}
