package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all server settings. Values come from the environment with
// defaults, optionally overlaid by a YAML file.
type Config struct {
	Addr      string         `yaml:"addr"`
	Race      RaceConfig     `yaml:"race"`
	DB        DBConfig       `yaml:"database"`
	NATS      NATSConfig     `yaml:"nats"`
	Auth      AuthConfig     `yaml:"auth"`
	Exercises ExerciseConfig `yaml:"exercises"`
}

// RaceConfig carries the race timing and capacity knobs. The defaults match
// the original product constants; they are tunable, not fixed law.
type RaceConfig struct {
	MaxPlayers        int           `yaml:"max_players"`
	MinPlayersToStart int           `yaml:"min_players_to_start"`
	SoloWait          time.Duration `yaml:"solo_wait"`
	MultiWait         time.Duration `yaml:"multi_wait"`
	LockCutoff        time.Duration `yaml:"lock_cutoff"`
}

// DBConfig holds Postgres connection settings.
type DBConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// NATSConfig holds the optional JetStream relay settings.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Stream  string `yaml:"stream"`
	Subject string `yaml:"subject_prefix"`
}

// AuthConfig holds the token verification settings.
type AuthConfig struct {
	Secret string `yaml:"secret"`
}

// ExerciseConfig points at the optional remote code-sample catalog. When the
// URL is empty only the built-in samples are served.
type ExerciseConfig struct {
	CatalogURL string `yaml:"catalog_url"`
	AuthToken  string `yaml:"auth_token"`
}

// DSN returns the Postgres connection URL.
func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// FromEnv reads SWIFTCODE_* and DB_* environment variables with defaults.
func FromEnv() Config {
	return Config{
		Addr: getEnv("SWIFTCODE_ADDR", ":8080"),
		Race: RaceConfig{
			MaxPlayers:        getEnvAsInt("SWIFTCODE_MAX_PLAYERS", 4),
			MinPlayersToStart: getEnvAsInt("SWIFTCODE_MIN_PLAYERS", 2),
			SoloWait:          getEnvAsDuration("SWIFTCODE_SOLO_WAIT", 6*time.Second),
			MultiWait:         getEnvAsDuration("SWIFTCODE_MULTI_WAIT", 16*time.Second),
			LockCutoff:        getEnvAsDuration("SWIFTCODE_LOCK_CUTOFF", 5*time.Second),
		},
		DB: DBConfig{
			Enabled:  os.Getenv("DB_HOST") != "",
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Database: getEnv("DB_NAME", "swiftcode"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		NATS: NATSConfig{
			Enabled: os.Getenv("NATS_URL") != "",
			URL:     getEnv("NATS_URL", "nats://localhost:4222"),
			Stream:  getEnv("NATS_STREAM", "RACE_EVENTS"),
			Subject: getEnv("NATS_SUBJECT_PREFIX", "race.events"),
		},
		Auth: AuthConfig{
			Secret: getEnv("SWIFTCODE_AUTH_SECRET", ""),
		},
		Exercises: ExerciseConfig{
			CatalogURL: getEnv("SWIFTCODE_CATALOG_URL", ""),
			AuthToken:  getEnv("SWIFTCODE_CATALOG_TOKEN", ""),
		},
	}
}

// Load reads the environment config and, if path is non-empty, overlays the
// YAML file on top of it.
func Load(path string) (Config, error) {
	cfg := FromEnv()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
