package domain

import "time"

// Config holds the complete fraudwatch configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier" mapstructure:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" mapstructure:"repository"`
	Cache      CacheConfig      `json:"cache" mapstructure:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" mapstructure:"eventBus"`
	Engine     EngineConfig     `json:"engine" mapstructure:"engine"`
	Worker     WorkerConfig     `json:"worker" mapstructure:"worker"`

	// Observability
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" mapstructure:"host"`
	Port         int    `json:"port" mapstructure:"port"`
	ReadTimeout  int    `json:"readTimeout" mapstructure:"readTimeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" mapstructure:"writeTimeout"` // seconds
}

// EngineConfig tunes the scoring and recommendation engine.
type EngineConfig struct {
	// Scoring constants
	BlacklistBonus int `json:"blacklistBonus" mapstructure:"blacklistBonus"`
	MediumFrom     int `json:"mediumFrom" mapstructure:"mediumFrom"`
	HighFrom       int `json:"highFrom" mapstructure:"highFrom"`

	// SnapshotTTL bounds how stale a cached rule snapshot may be.
	SnapshotTTL time.Duration `json:"snapshotTtl" mapstructure:"snapshotTtl"`

	// AggregateTimeout bounds store reads for aggregation and recommendations.
	AggregateTimeout time.Duration `json:"aggregateTimeout" mapstructure:"aggregateTimeout"`

	// RecommendationWorkers limits concurrent recipient aggregations.
	RecommendationWorkers int `json:"recommendationWorkers" mapstructure:"recommendationWorkers"`

	// FraudCategories are the case categories counted as fraud-related reporting.
	FraudCategories []string `json:"fraudCategories" mapstructure:"fraudCategories"`
}

// Policy returns the scoring policy described by the engine config. Zero is
// a valid setting; defaults come from the tier config.
func (c EngineConfig) Policy() ScoringPolicy {
	return ScoringPolicy{
		BlacklistBonus: c.BlacklistBonus,
		MediumFrom:     c.MediumFrom,
		HighFrom:       c.HighFrom,
	}
}

// WorkerConfig controls the async evaluation worker.
type WorkerConfig struct {
	Enabled   bool     `json:"enabled" mapstructure:"enabled"`
	TenantIDs []string `json:"tenantIds" mapstructure:"tenantIds"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	ServiceName string `json:"serviceName" mapstructure:"serviceName"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	policy := DefaultScoringPolicy()
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./fraudwatch.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     30 * time.Second,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Engine: EngineConfig{
			BlacklistBonus:        policy.BlacklistBonus,
			MediumFrom:            policy.MediumFrom,
			HighFrom:              policy.HighFrom,
			SnapshotTTL:           30 * time.Second,
			AggregateTimeout:      5 * time.Second,
			RecommendationWorkers: 8,
			FraudCategories:       DefaultFraudCategories(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "fraudwatch",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "fraudwatch",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       5 * time.Second,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Worker.Enabled = true
	cfg.Tracing.Enabled = true
	return cfg
}
