package domain

import "time"

// Config holds the complete Fraudscope configuration.
type Config struct {
	// Server settings
	Server ServerConfig `mapstructure:"server" json:"server"`

	// Tier determines which backing services are used
	Tier Tier `mapstructure:"tier" json:"tier"`

	// Model artifact location
	Model ModelConfig `mapstructure:"model" json:"model"`

	// Component configurations
	Repository RepositoryConfig `mapstructure:"repository" json:"repository"`
	Cache      CacheConfig      `mapstructure:"cache" json:"cache"`
	EventBus   EventBusConfig   `mapstructure:"eventbus" json:"eventBus"`

	// Post-scoring alert policies
	Alerts AlertsConfig `mapstructure:"alerts" json:"alerts"`

	// Observability
	Logging LoggingConfig `mapstructure:"logging" json:"logging"`
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `mapstructure:"host" json:"host"`
	Port         int    `mapstructure:"port" json:"port"`
	ReadTimeout  int    `mapstructure:"readtimeout" json:"readTimeout"`  // seconds
	WriteTimeout int    `mapstructure:"writetimeout" json:"writeTimeout"` // seconds

	// MaxUploadBytes bounds the size of an uploaded CSV.
	MaxUploadBytes int64 `mapstructure:"maxuploadbytes" json:"maxUploadBytes"`

	// UploadsPerMinute limits uploads per client IP. Zero disables the limit.
	UploadsPerMinute int `mapstructure:"uploadsperminute" json:"uploadsPerMinute"`
}

// ModelConfig points at the frozen model artifact.
type ModelConfig struct {
	ArtifactPath string `mapstructure:"artifactpath" json:"artifactPath"`
}

// AlertsConfig holds the alert policies evaluated against every scored row.
type AlertsConfig struct {
	Policies []AlertPolicy `mapstructure:"policies" json:"policies"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level" json:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	ServiceName string `mapstructure:"servicename" json:"serviceName"`
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"` // OTLP gRPC endpoint
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite, an in-process cache and channels
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL, Redis and NATS
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      30,
			WriteTimeout:     30,
			MaxUploadBytes:   32 << 20,
			UploadsPerMinute: 0,
		},
		Tier: TierCommunity,
		Model: ModelConfig{
			ArtifactPath: "./static/model.json",
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./fraudscope.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "fraudscope",
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
		PostgresDB:   "fraudscope",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	cfg.Tracing.Endpoint = "localhost:4317"
	return cfg
}
