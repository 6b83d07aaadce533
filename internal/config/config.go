package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Audit     AuditConfig     `yaml:"audit"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig selects the storage backend. Driver "postgres" uses the
// connection fields; driver "sqlite" uses Path.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
	Path     string `yaml:"path"`
}

type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

// KafkaConfig configures the synced-record event consumer. Disabled unless
// brokers are set.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

// ReconcileConfig carries the duplicate and conflict detection tolerances.
// Zero values fall back to the detector defaults.
type ReconcileConfig struct {
	Scenario                 string  `yaml:"scenario"`
	TimeToleranceMinutes     float64 `yaml:"time_tolerance_minutes"`
	NameMatchThreshold       float64 `yaml:"name_match_threshold"`
	DurationToleranceMinutes float64 `yaml:"duration_tolerance_minutes"`
	MinOverlapMinutes        int     `yaml:"min_overlap_minutes"`
}

// AuditConfig carries the audit trail retention settings. Zero values fall
// back to the manager defaults.
type AuditConfig struct {
	MaxRecords       int `yaml:"max_records"`
	CleanupThreshold int `yaml:"cleanup_threshold"`
	RetentionDays    int `yaml:"retention_days"`
	UndoWindowHours  int `yaml:"undo_window_hours"`
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// Load reads config from a YAML file, then applies environment variable overrides.
// Env vars use the prefix FITMERGE_ and underscore-separated paths:
//
//	FITMERGE_SERVER_HOST, FITMERGE_SERVER_PORT,
//	FITMERGE_DB_DRIVER, FITMERGE_DB_HOST, FITMERGE_DB_PORT, FITMERGE_DB_NAME,
//	FITMERGE_DB_USER, FITMERGE_DB_PASSWORD, FITMERGE_DB_SSLMODE, FITMERGE_DB_PATH,
//	FITMERGE_AUTH_API_KEY,
//	FITMERGE_KAFKA_BROKERS (comma-separated), FITMERGE_KAFKA_TOPIC,
//	FITMERGE_KAFKA_GROUP_ID
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FITMERGE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("FITMERGE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FITMERGE_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("FITMERGE_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("FITMERGE_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("FITMERGE_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("FITMERGE_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("FITMERGE_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("FITMERGE_DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
	if v := os.Getenv("FITMERGE_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("FITMERGE_AUTH_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("FITMERGE_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("FITMERGE_KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
	if v := os.Getenv("FITMERGE_KAFKA_GROUP_ID"); v != "" {
		cfg.Kafka.GroupID = v
	}
}

func (c *Config) validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	switch c.Database.Driver {
	case "", "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required")
		}
		if c.Database.Port == 0 {
			return fmt.Errorf("database.port is required")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database.name is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	if c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required when kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("kafka.topic is required when kafka is enabled")
		}
	}
	if t := c.Reconcile.NameMatchThreshold; t < 0 || t > 1 {
		return fmt.Errorf("reconcile.name_match_threshold must be between 0 and 1")
	}
	return nil
}
