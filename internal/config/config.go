// Package config assembles the process-level Config from defaults, an
// optional YAML file, and environment overrides — the same three-layer
// load teacher's pkg/config uses, retargeted at this module's sections.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jaxongr/reklamabot/internal/engine"
	"github.com/jaxongr/reklamabot/internal/logging"
	"github.com/jaxongr/reklamabot/internal/sessionclient"
)

// ServerConfig controls the process's health/metrics HTTP surface — the
// only HTTP surface this module owns (spec.md's Non-goals exclude a
// broadcast API of its own).
type ServerConfig struct {
	Host string `json:"host" env:"SERVER_HOST"`
	Port int    `json:"port" env:"SERVER_PORT"`
}

// DatabaseConfig controls the postgres storage backend. Driver="memory"
// selects storage/memory instead, for local runs without a database.
type DatabaseConfig struct {
	Driver string `json:"driver" env:"DATABASE_DRIVER"`
	DSN    string `json:"dsn" env:"DATABASE_DSN"`
}

// EngineSection mirrors engine.Config/sessionclient.ResilientConfig's tuning
// knobs (spec.md §6) so they can be overridden from a config file or env
// without touching code.
type EngineSection struct {
	MinGroupDelaySeconds  int `json:"min_group_delay_seconds" env:"ENGINE_MIN_GROUP_DELAY_SECONDS"`
	MaxGroupDelaySeconds  int `json:"max_group_delay_seconds" env:"ENGINE_MAX_GROUP_DELAY_SECONDS"`
	RoundPauseMinutes     int `json:"round_pause_minutes" env:"ENGINE_ROUND_PAUSE_MINUTES"`
	SessionMessageLimit   int `json:"session_message_limit" env:"ENGINE_SESSION_MESSAGE_LIMIT"`
	ConnectionRetries     int `json:"connection_retries" env:"ENGINE_CONNECTION_RETRIES"`
	MaxJobLogEntries      int `json:"max_job_log_entries" env:"ENGINE_MAX_JOB_LOG_ENTRIES"`
	PriorityTopN          int `json:"priority_top_n" env:"ENGINE_PRIORITY_TOP_N"`
	ConnectsPerSecond     int `json:"connects_per_second" env:"ENGINE_CONNECTS_PER_SECOND"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server   ServerConfig     `json:"server"`
	Database DatabaseConfig   `json:"database"`
	Logging  logging.Config   `json:"logging"`
	Engine   EngineSection    `json:"engine"`
}

// New returns a Config populated with the literal defaults spec.md/§6 names.
func New() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{
			Driver: "memory",
		},
		Logging: logging.Config{Level: "info", Format: "text"},
		Engine: EngineSection{
			MinGroupDelaySeconds: 5,
			MaxGroupDelaySeconds: 20,
			RoundPauseMinutes:    15,
			SessionMessageLimit:  30,
			ConnectionRetries:    3,
			MaxJobLogEntries:     500,
			PriorityTopN:         50,
			ConnectsPerSecond:    1,
		},
	}
}

// Load builds a Config from defaults, an optional CONFIG_FILE (or
// ./configs/config.yaml), then environment variables, then a DATABASE_URL
// override — the same layering order as the teacher's pkg/config.Load.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	path := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	if path == "" {
		path = "configs/config.yaml"
	}
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		cfg.Database.Driver = "postgres"
		cfg.Database.DSN = dsn
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// EngineConfig translates the section into engine.Config, layering the
// section's overrides onto engine.DefaultConfig so any zero-valued field
// (not present in the file/env) falls back to the engine's own default.
func (c *Config) EngineConfig() engine.Config {
	ec := engine.DefaultConfig()
	if c.Engine.MinGroupDelaySeconds > 0 {
		ec.MinGroupDelay = time.Duration(c.Engine.MinGroupDelaySeconds) * time.Second
	}
	if c.Engine.MaxGroupDelaySeconds > 0 {
		ec.MaxGroupDelay = time.Duration(c.Engine.MaxGroupDelaySeconds) * time.Second
	}
	if c.Engine.RoundPauseMinutes > 0 {
		ec.RoundPauseMs = time.Duration(c.Engine.RoundPauseMinutes) * time.Minute
	}
	if c.Engine.SessionMessageLimit > 0 {
		ec.SessionMessageLimit = c.Engine.SessionMessageLimit
	}
	if c.Engine.ConnectionRetries > 0 {
		ec.ConnectionRetries = c.Engine.ConnectionRetries
	}
	if c.Engine.MaxJobLogEntries >= 300 {
		ec.MaxJobLogEntries = c.Engine.MaxJobLogEntries
	}
	if c.Engine.PriorityTopN > 0 {
		ec.PriorityTopN = c.Engine.PriorityTopN
	}
	return ec
}

// ResilientConfig translates the section into sessionclient.ResilientConfig.
func (c *Config) ResilientConfig() sessionclient.ResilientConfig {
	rc := sessionclient.DefaultResilientConfig()
	rc.Retry.MaxAttempts = c.Engine.ConnectionRetries
	if c.Engine.ConnectsPerSecond > 0 {
		rc.ConnectsPerSecond = float64(c.Engine.ConnectsPerSecond)
	}
	return rc
}
