// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/twstocklab/stockboard/internal/stocks"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Engine   EngineConfig   `mapstructure:"engine"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// UpstreamConfig points at the remote stock data service.
type UpstreamConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	RPS            float64 `mapstructure:"rps"`
	Burst          int     `mapstructure:"burst"`
}

// EngineConfig supplies default run knobs; a request body can override them
// within the validated bounds.
type EngineConfig struct {
	BatchSize         int `mapstructure:"batch_size"`
	Concurrency       int `mapstructure:"concurrency"`
	InterBatchDelayMs int `mapstructure:"inter_batch_delay_ms"`
	Days              int `mapstructure:"days"`
}

// DBConfig controls access to the relational database; empty DSN selects the
// in-memory run store and disables the price cache.
type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

// PubSubConfig holds metadata for run-completion notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ArchiveConfig selects where run reports are archived.
type ArchiveConfig struct {
	// Provider is one of none, local, gcs.
	Provider  string `mapstructure:"provider"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STOCKBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("upstream.base_url", "http://localhost:5003")
	v.SetDefault("upstream.timeout_seconds", 30)
	v.SetDefault("upstream.rps", 5.0)
	v.SetDefault("upstream.burst", 1)
	v.SetDefault("engine.batch_size", 5)
	v.SetDefault("engine.concurrency", 3)
	v.SetDefault("engine.inter_batch_delay_ms", 1000)
	v.SetDefault("engine.days", 30)
	v.SetDefault("archive.provider", "none")
	v.SetDefault("archive.prefix", "runs")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	if c.Upstream.TimeoutSeconds <= 0 {
		return fmt.Errorf("upstream.timeout_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name are required when pubsub is enabled")
	}
	switch c.Archive.Provider {
	case "none", "":
	case "local":
		if c.Archive.LocalDir == "" {
			return fmt.Errorf("archive.local_dir is required for the local provider")
		}
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket is required for the gcs provider")
		}
	default:
		return fmt.Errorf("unknown archive provider %q", c.Archive.Provider)
	}
	if err := c.JobDefaults().Validate(); err != nil {
		return fmt.Errorf("engine defaults: %w", err)
	}
	return nil
}

// JobDefaults converts the engine section into a JobConfig covering all
// symbols; callers override scope and knobs per run.
func (c Config) JobDefaults() stocks.JobConfig {
	return stocks.JobConfig{
		BatchSize:       c.Engine.BatchSize,
		Concurrency:     c.Engine.Concurrency,
		InterBatchDelay: time.Duration(c.Engine.InterBatchDelayMs) * time.Millisecond,
		Days:            c.Engine.Days,
		Scope:           stocks.Scope{Kind: stocks.ScopeAll},
	}
}

// UpstreamTimeout returns the upstream timeout as a duration.
func (c Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.Upstream.TimeoutSeconds) * time.Second
}
