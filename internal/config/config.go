package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Estimator EstimatorConfig `yaml:"estimator" mapstructure:"estimator"`
	Reward    RewardConfig    `yaml:"reward" mapstructure:"reward"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	MQTT      MQTTConfig      `yaml:"mqtt" mapstructure:"mqtt"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures where observations and reward events live.
// Driver is one of file, sqlite or postgres. Path is only read by the file
// driver; sqlite and postgres both take DatabaseURL.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Watch       bool   `yaml:"watch" mapstructure:"watch"`
}

// EstimatorConfig holds the dirtiness estimator's policy constants.
type EstimatorConfig struct {
	K               int     `yaml:"k" mapstructure:"k"`
	NearThresholdKM float64 `yaml:"near_threshold_km" mapstructure:"near_threshold_km"`
	EpsilonKM       float64 `yaml:"epsilon_km" mapstructure:"epsilon_km"`
	FallbackScore   float64 `yaml:"fallback_score" mapstructure:"fallback_score"`
}

// RewardConfig configures the reward engine.
type RewardConfig struct {
	ModelPath      string  `yaml:"model_path" mapstructure:"model_path"`
	RecyclableBase float64 `yaml:"recyclable_base" mapstructure:"recyclable_base"`
	TrashBase      float64 `yaml:"trash_base" mapstructure:"trash_base"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	CORSOrigins    []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst" mapstructure:"rate_limit_burst"`
}

// MQTTConfig configures reward event publishing. An empty broker disables it.
type MQTTConfig struct {
	Broker      string `yaml:"broker" mapstructure:"broker"`
	ClientID    string `yaml:"client_id" mapstructure:"client_id"`
	TopicPrefix string `yaml:"topic_prefix" mapstructure:"topic_prefix"`
	Username    string `yaml:"username" mapstructure:"username"`
	Password    string `yaml:"password" mapstructure:"password"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CLEANCREDIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "file")
	v.SetDefault("store.path", "data/dirtiness_points.json")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.watch", false)
	v.SetDefault("estimator.k", 3)
	v.SetDefault("estimator.near_threshold_km", 0.25)
	v.SetDefault("estimator.epsilon_km", 1e-6)
	v.SetDefault("estimator.fallback_score", 0.5)
	v.SetDefault("reward.model_path", "reward/model.json")
	v.SetDefault("reward.recyclable_base", 10.0)
	v.SetDefault("reward.trash_base", 5.0)
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.rate_limit_rps", 20.0)
	v.SetDefault("server.rate_limit_burst", 40)
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "cleancredit")
	v.SetDefault("mqtt.topic_prefix", "cleancredit")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the sections a command needs. Mode is one of
// "estimator", "reward", "store" or "serve"; serve checks everything.
func (c *Config) Validate(mode string) error {
	var errs []string

	checkEstimator := func() {
		if c.Estimator.K < 1 {
			errs = append(errs, "estimator.k must be >= 1")
		}
		if c.Estimator.NearThresholdKM < 0 {
			errs = append(errs, "estimator.near_threshold_km must be >= 0")
		}
		if c.Estimator.EpsilonKM < 0 || math.IsNaN(c.Estimator.EpsilonKM) || math.IsInf(c.Estimator.EpsilonKM, 0) {
			errs = append(errs, "estimator.epsilon_km must be a finite value >= 0")
		}
		if c.Estimator.FallbackScore < 0 || c.Estimator.FallbackScore > 1 {
			errs = append(errs, "estimator.fallback_score must be between 0 and 1")
		}
	}
	checkReward := func() {
		if !(c.Reward.RecyclableBase > 0) || math.IsInf(c.Reward.RecyclableBase, 0) {
			errs = append(errs, "reward.recyclable_base must be > 0")
		}
		if !(c.Reward.TrashBase > 0) || math.IsInf(c.Reward.TrashBase, 0) {
			errs = append(errs, "reward.trash_base must be > 0")
		}
	}
	checkStore := func() {
		switch c.Store.Driver {
		case "file":
			if c.Store.Path == "" {
				errs = append(errs, "store.path is required for driver file")
			}
		case "sqlite":
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required for driver sqlite (e.g. data/cleancredit.db)")
			}
		case "postgres":
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required for driver postgres")
			}
		default:
			errs = append(errs, fmt.Sprintf("store.driver %q is not supported (file, sqlite, postgres)", c.Store.Driver))
		}
	}

	switch mode {
	case "estimator":
		checkEstimator()
		checkStore()
	case "reward":
		checkReward()
	case "store":
		checkStore()
	case "serve":
		checkEstimator()
		checkReward()
		checkStore()
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be between 1 and 65535")
		}
		if c.Server.RateLimitRPS < 0 {
			errs = append(errs, "server.rate_limit_rps must be >= 0")
		}
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
