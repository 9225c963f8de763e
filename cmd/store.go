package main

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cleancredit/internal/dirtiness"
	"github.com/sells-group/cleancredit/internal/metrics"
	"github.com/sells-group/cleancredit/internal/reward"
	"github.com/sells-group/cleancredit/internal/store"
)

// initStore opens and migrates the configured store.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "file", "":
		st = store.NewFile(cfg.Store.Path)
	case "sqlite":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store.database_url is required for driver sqlite")
		}
		st, err = store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func estimatorOptions() []dirtiness.Option {
	return []dirtiness.Option{
		dirtiness.WithK(cfg.Estimator.K),
		dirtiness.WithNearThreshold(cfg.Estimator.NearThresholdKM),
		dirtiness.WithEpsilonKM(cfg.Estimator.EpsilonKM),
		dirtiness.WithFallbackScore(cfg.Estimator.FallbackScore),
	}
}

// loadEstimator builds an estimator from the store, seeding it if empty.
func loadEstimator(ctx context.Context, st store.ObservationStore) (*dirtiness.Estimator, error) {
	obs, err := store.LoadOrSeed(ctx, st)
	if err != nil {
		return nil, err
	}
	est, err := dirtiness.New(obs, estimatorOptions()...)
	if err != nil {
		return nil, eris.Wrap(err, "build estimator")
	}
	metrics.ObservationCount.Set(float64(est.Len()))
	return est, nil
}

// loadEngine builds the reward engine. A missing or unreadable model is not
// fatal; the engine then scores by rule only.
func loadEngine() *reward.Engine {
	rule := reward.RuleConfig{
		RecyclableBase: cfg.Reward.RecyclableBase,
		TrashBase:      cfg.Reward.TrashBase,
	}

	var m reward.Model
	if cfg.Reward.ModelPath != "" {
		loaded, err := reward.LoadModel(cfg.Reward.ModelPath)
		switch {
		case errors.Is(err, reward.ErrModelNotFound):
			zap.L().Info("reward model not found, using rule", zap.String("path", cfg.Reward.ModelPath))
		case err != nil:
			zap.L().Warn("reward model unusable, using rule", zap.String("path", cfg.Reward.ModelPath), zap.Error(err))
		default:
			m = loaded
			zap.L().Info("reward model loaded", zap.String("path", cfg.Reward.ModelPath))
		}
	}
	return reward.NewEngine(m, reward.WithRuleConfig(rule))
}
