// Package config loads Fraudscope configuration from defaults, a .env file,
// an optional YAML file and FRAUDSCOPE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/opensource-finance/fraudscope/internal/domain"
)

// EnvPrefix is the prefix of every environment variable override.
const EnvPrefix = "FRAUDSCOPE"

// DefaultConfigName is the file searched for when no config file is given.
const DefaultConfigName = "fraudscope"

// Load builds the configuration. Later sources override earlier ones:
// tier defaults, .env, config file, environment, then any flags already
// bound to v. An empty configFile searches the working directory for
// fraudscope.yaml and tolerates its absence.
func Load(v *viper.Viper, configFile string) (*domain.Config, error) {
	if v == nil {
		v = viper.New()
	}

	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	cfg := domain.DefaultConfig()
	if domain.Tier(strings.ToLower(v.GetString("tier"))) == domain.TierPro {
		cfg = domain.ProConfig()
	}
	setDefaults(v, cfg)

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if os.Getenv(EnvPrefix+"_DEBUG") == "true" {
		cfg.Logging.Level = "debug"
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks a loaded configuration.
func Validate(cfg *domain.Config) error {
	var errs []error

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", cfg.Server.Port))
	}
	if cfg.Server.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.maxuploadbytes must be positive"))
	}
	if cfg.Server.UploadsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("server.uploadsperminute must not be negative"))
	}
	if cfg.Model.ArtifactPath == "" {
		errs = append(errs, fmt.Errorf("model.artifactpath is required"))
	}
	switch cfg.Tier {
	case domain.TierCommunity, domain.TierPro:
	default:
		errs = append(errs, fmt.Errorf("unknown tier %q", cfg.Tier))
	}
	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unsupported repository driver %q", cfg.Repository.Driver))
	}
	if _, err := ParseLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, err)
	}

	seen := make(map[string]bool, len(cfg.Alerts.Policies))
	for _, p := range cfg.Alerts.Policies {
		if p.ID == "" {
			errs = append(errs, fmt.Errorf("alert policy without id"))
			continue
		}
		if seen[p.ID] {
			errs = append(errs, fmt.Errorf("duplicate alert policy %q", p.ID))
		}
		seen[p.ID] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// setDefaults registers every key so that environment overrides reach
// Unmarshal.
func setDefaults(v *viper.Viper, cfg *domain.Config) {
	v.SetDefault("tier", string(cfg.Tier))

	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.readtimeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.writetimeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.maxuploadbytes", cfg.Server.MaxUploadBytes)
	v.SetDefault("server.uploadsperminute", cfg.Server.UploadsPerMinute)

	v.SetDefault("model.artifactpath", cfg.Model.ArtifactPath)

	v.SetDefault("repository.driver", cfg.Repository.Driver)
	v.SetDefault("repository.sqlitepath", cfg.Repository.SQLitePath)
	v.SetDefault("repository.postgreshost", cfg.Repository.PostgresHost)
	v.SetDefault("repository.postgresport", cfg.Repository.PostgresPort)
	v.SetDefault("repository.postgresuser", cfg.Repository.PostgresUser)
	v.SetDefault("repository.postgrespassword", cfg.Repository.PostgresPassword)
	v.SetDefault("repository.postgresdb", cfg.Repository.PostgresDB)
	v.SetDefault("repository.postgressslmode", cfg.Repository.PostgresSSLMode)
	v.SetDefault("repository.maxopenconns", cfg.Repository.MaxOpenConns)
	v.SetDefault("repository.maxidleconns", cfg.Repository.MaxIdleConns)
	v.SetDefault("repository.connmaxlifetime", cfg.Repository.ConnMaxLifetime)

	v.SetDefault("cache.type", cfg.Cache.Type)
	v.SetDefault("cache.localmaxsize", cfg.Cache.LocalMaxSize)
	v.SetDefault("cache.localttl", cfg.Cache.LocalTTL)
	v.SetDefault("cache.redisaddr", cfg.Cache.RedisAddr)
	v.SetDefault("cache.redispassword", cfg.Cache.RedisPassword)
	v.SetDefault("cache.redisdb", cfg.Cache.RedisDB)
	v.SetDefault("cache.enabletwophase", cfg.Cache.EnableTwoPhase)

	v.SetDefault("eventbus.type", cfg.EventBus.Type)
	v.SetDefault("eventbus.channelbuffersize", cfg.EventBus.ChannelBufferSize)
	v.SetDefault("eventbus.natsurl", cfg.EventBus.NATSUrl)
	v.SetDefault("eventbus.natstoken", cfg.EventBus.NATSToken)
	v.SetDefault("eventbus.natsmaxreconnects", cfg.EventBus.NATSMaxReconnects)
	v.SetDefault("eventbus.natsreconnectwait", cfg.EventBus.NATSReconnectWait)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("tracing.enabled", cfg.Tracing.Enabled)
	v.SetDefault("tracing.servicename", cfg.Tracing.ServiceName)
	v.SetDefault("tracing.endpoint", cfg.Tracing.Endpoint)
}
