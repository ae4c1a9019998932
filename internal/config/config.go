// Package config loads fraudwatch configuration from defaults, an optional
// config file and FRAUDWATCH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/opensource-finance/fraudwatch/internal/domain"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. FRAUDWATCH_SERVER_PORT.
const EnvPrefix = "FRAUDWATCH"

// Load builds the configuration. The tier (FRAUDWATCH_TIER or "tier" in the file)
// selects the base defaults; everything else overrides on top of them.
// An empty path searches ./fraudwatch.yaml and ./configs/fraudwatch.yaml.
func Load(path string) (*domain.Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("fraudwatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	base := domain.DefaultConfig()
	if domain.Tier(strings.ToLower(v.GetString("tier"))) == domain.TierPro {
		base = domain.ProConfig()
	}
	setDefaults(v, base)

	var cfg domain.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, c *domain.Config) {
	v.SetDefault("tier", string(c.Tier))

	// Server
	v.SetDefault("server.host", c.Server.Host)
	v.SetDefault("server.port", c.Server.Port)
	v.SetDefault("server.readTimeout", c.Server.ReadTimeout)
	v.SetDefault("server.writeTimeout", c.Server.WriteTimeout)

	// Repository
	v.SetDefault("repository.driver", c.Repository.Driver)
	v.SetDefault("repository.sqlitePath", c.Repository.SQLitePath)
	v.SetDefault("repository.postgresHost", c.Repository.PostgresHost)
	v.SetDefault("repository.postgresPort", c.Repository.PostgresPort)
	v.SetDefault("repository.postgresUser", c.Repository.PostgresUser)
	v.SetDefault("repository.postgresPassword", c.Repository.PostgresPassword)
	v.SetDefault("repository.postgresDb", c.Repository.PostgresDB)
	v.SetDefault("repository.postgresSslMode", c.Repository.PostgresSSLMode)
	v.SetDefault("repository.maxOpenConns", c.Repository.MaxOpenConns)
	v.SetDefault("repository.maxIdleConns", c.Repository.MaxIdleConns)
	v.SetDefault("repository.connMaxLifetime", c.Repository.ConnMaxLifetime)

	// Cache
	v.SetDefault("cache.type", c.Cache.Type)
	v.SetDefault("cache.localMaxSize", c.Cache.LocalMaxSize)
	v.SetDefault("cache.localTtl", c.Cache.LocalTTL)
	v.SetDefault("cache.redisAddr", c.Cache.RedisAddr)
	v.SetDefault("cache.redisPassword", c.Cache.RedisPassword)
	v.SetDefault("cache.redisDb", c.Cache.RedisDB)
	v.SetDefault("cache.enableTwoPhase", c.Cache.EnableTwoPhase)

	// Event bus
	v.SetDefault("eventBus.type", c.EventBus.Type)
	v.SetDefault("eventBus.channelBufferSize", c.EventBus.ChannelBufferSize)
	v.SetDefault("eventBus.natsUrl", c.EventBus.NATSUrl)
	v.SetDefault("eventBus.natsToken", c.EventBus.NATSToken)
	v.SetDefault("eventBus.natsMaxReconnects", c.EventBus.NATSMaxReconnects)
	v.SetDefault("eventBus.natsReconnectWait", c.EventBus.NATSReconnectWait)

	// Engine
	v.SetDefault("engine.blacklistBonus", c.Engine.BlacklistBonus)
	v.SetDefault("engine.mediumFrom", c.Engine.MediumFrom)
	v.SetDefault("engine.highFrom", c.Engine.HighFrom)
	v.SetDefault("engine.snapshotTtl", c.Engine.SnapshotTTL)
	v.SetDefault("engine.aggregateTimeout", c.Engine.AggregateTimeout)
	v.SetDefault("engine.recommendationWorkers", c.Engine.RecommendationWorkers)
	v.SetDefault("engine.fraudCategories", c.Engine.FraudCategories)

	// Worker
	v.SetDefault("worker.enabled", c.Worker.Enabled)
	v.SetDefault("worker.tenantIds", c.Worker.TenantIDs)

	// Observability
	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.format", c.Logging.Format)
	v.SetDefault("tracing.enabled", c.Tracing.Enabled)
	v.SetDefault("tracing.serviceName", c.Tracing.ServiceName)
}

func validate(c *domain.Config) error {
	p := c.Engine.Policy()
	if p.BlacklistBonus < 0 || p.MediumFrom < 0 || p.HighFrom < 0 {
		return fmt.Errorf("engine.blacklistBonus, engine.mediumFrom and engine.highFrom must not be negative")
	}
	if p.MediumFrom >= p.HighFrom {
		return fmt.Errorf("engine.mediumFrom (%d) must be below engine.highFrom (%d)", p.MediumFrom, p.HighFrom)
	}
	if c.Engine.AggregateTimeout <= 0 {
		return fmt.Errorf("engine.aggregateTimeout must be positive")
	}
	return nil
}
