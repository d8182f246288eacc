package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// EnvPrefix prefixes every environment override, e.g. SERCHA_MARKS_HTTP_PORT
const EnvPrefix = "SERCHA_MARKS"

type Config struct {
	DataDir  string         `mapstructure:"data_dir"`
	Store    StoreConfig    `mapstructure:"store"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Auth     AuthConfig     `mapstructure:"auth"`
	GitHub   GitHubConfig   `mapstructure:"github"`
	GitLab   GitLabConfig   `mapstructure:"gitlab"`
	Log      LogConfig      `mapstructure:"log"`
}

type StoreConfig struct {
	// Backend is one of memory, redis or postgres
	Backend string `mapstructure:"backend"`
	// EncryptionKey is a hex-encoded 32-byte key. Empty stores auth state unencrypted.
	EncryptionKey string `mapstructure:"encryption_key"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type PostgresConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

type HTTPConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	ControlToken   string   `mapstructure:"control_token"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type AuthConfig struct {
	// StateSecret signs OAuth state parameters
	StateSecret string `mapstructure:"state_secret"`
	// RedirectURL is the loopback URL the launcher listens on
	RedirectURL string        `mapstructure:"redirect_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type GitHubConfig struct {
	APIURL       string `mapstructure:"api_url"`
	WebURL       string `mapstructure:"web_url"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

type GitLabConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// File enables rotation through lumberjack. Empty logs to stderr.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// keys lists every setting so AutomaticEnv can see nested keys during Unmarshal
var keys = []string{
	"data_dir",
	"store.backend", "store.encryption_key",
	"redis.url",
	"postgres.url", "postgres.max_open_conns", "postgres.max_idle_conns",
	"postgres.conn_max_lifetime", "postgres.conn_max_idle_time",
	"http.host", "http.port", "http.control_token", "http.allowed_origins",
	"auth.state_secret", "auth.redirect_url", "auth.timeout",
	"github.api_url", "github.web_url", "github.client_id", "github.client_secret",
	"gitlab.base_url", "gitlab.client_id", "gitlab.client_secret",
	"log.level", "log.format", "log.file", "log.max_size_mb", "log.max_backups", "log.max_age_days",
}

// Load reads defaults, then config.yaml from configFile or the data directory,
// then SERCHA_MARKS_* environment overrides.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	defaultDataDir := ".sercha-marks"
	if home, err := os.UserHomeDir(); err == nil {
		defaultDataDir = filepath.Join(home, ".sercha-marks")
	}
	setDefaults(v, defaultDataDir)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(v.GetString("data_dir"))
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, dataDir string) {
	v.SetDefault("data_dir", dataDir)
	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("postgres.max_open_conns", 25)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("postgres.conn_max_idle_time", time.Minute)
	v.SetDefault("http.host", "127.0.0.1")
	v.SetDefault("http.port", 8380)
	v.SetDefault("auth.state_secret", "development-secret-change-in-production")
	v.SetDefault("auth.redirect_url", "http://127.0.0.1:8381/callback")
	v.SetDefault("auth.timeout", 5*time.Minute)
	v.SetDefault("github.api_url", "https://api.github.com")
	v.SetDefault("github.web_url", "https://github.com")
	v.SetDefault("gitlab.base_url", "https://gitlab.com")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}

// Validate checks that the selected backend has what it needs
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.URL == "" {
			return errors.New("redis.url is required for the redis backend")
		}
	case BackendPostgres:
		if c.Postgres.URL == "" {
			return errors.New("postgres.url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q (use: memory, redis or postgres)", c.Store.Backend)
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http.port %d", c.HTTP.Port)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log.format %q (use: text or json)", c.Log.Format)
	}
	return nil
}
