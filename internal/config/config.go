package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure.
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Engine   EngineConfig   `json:"engine" yaml:"engine"`
	Database DatabaseConfig `json:"database" yaml:"database"`
}

type ServerConfig struct {
	Port     int    `json:"port" yaml:"port"`
	LogLevel string `json:"log_level" yaml:"log_level"`
}

// EngineConfig tunes the scheduler. Zero values take the engine defaults.
type EngineConfig struct {
	TargetRetention      float64  `json:"target_retention" yaml:"target_retention"`
	MaxIntervalDays      int      `json:"max_interval_days" yaml:"max_interval_days"`
	MinContextSamples    int      `json:"min_context_samples" yaml:"min_context_samples"`
	ContextWindow        int      `json:"context_window" yaml:"context_window"`
	EmotionWindow        int      `json:"emotion_window" yaml:"emotion_window"`
	ReviewSecondsPerCard int      `json:"review_seconds_per_card" yaml:"review_seconds_per_card"`
	DefaultSleepTime     string   `json:"default_sleep_time" yaml:"default_sleep_time"`
	DefaultWakeTime      string   `json:"default_wake_time" yaml:"default_wake_time"`
	RebuildInterval      Duration `json:"rebuild_interval" yaml:"rebuild_interval"`
	DueWatchInterval     Duration `json:"due_watch_interval" yaml:"due_watch_interval"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres" yaml:"postgres"`
	SQLite   SQLiteConfig   `json:"sqlite" yaml:"sqlite"`
	Neo4j    Neo4jConfig    `json:"neo4j" yaml:"neo4j"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
}

type PostgresConfig struct {
	DSN           string `json:"dsn" yaml:"dsn"`
	MigrationsDir string `json:"migrations_dir" yaml:"migrations_dir"`
}

type SQLiteConfig struct {
	Path string `json:"path" yaml:"path"`
}

type Neo4jConfig struct {
	URI      string `json:"uri" yaml:"uri"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
}

type RedisConfig struct {
	URL string `json:"url" yaml:"url"`
}

// Duration is a time.Duration written as a string such as "30s" or "5m".
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string: %s", data)
	}
	return d.parse(s)
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.parse(node.Value)
}

func (d *Duration) parse(s string) error {
	if strings.TrimSpace(s) == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Defaults for fields left empty.
const (
	DefaultPort             = 8080
	DefaultLogLevel         = "info"
	DefaultRebuildInterval  = time.Minute
	DefaultDueWatchInterval = 5 * time.Minute
	DefaultMigrationsDir    = "migrations"
)

// Default returns a configuration with every default applied and no
// databases configured.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = DefaultLogLevel
	}
	if c.Engine.RebuildInterval <= 0 {
		c.Engine.RebuildInterval = Duration(DefaultRebuildInterval)
	}
	if c.Engine.DueWatchInterval <= 0 {
		c.Engine.DueWatchInterval = Duration(DefaultDueWatchInterval)
	}
	if c.Database.Postgres.MigrationsDir == "" {
		c.Database.Postgres.MigrationsDir = DefaultMigrationsDir
	}
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON or YAML config file (chosen by extension) and
// substitutes environment variable references before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal([]byte(resolved), &cfg)
	default:
		err = json.Unmarshal([]byte(resolved), &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}
