package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage backends understood by DatabaseConfig.Backend.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

type Config struct {
	ServerConfig   ServerConfig   `json:"server" yaml:"server"`
	DatabaseConfig DatabaseConfig `json:"database" yaml:"database"`
	AuthConfig     AuthConfig     `json:"auth" yaml:"auth"`
	VaultConfig    VaultConfig    `json:"vault" yaml:"vault"`
	RedisConfig    RedisConfig    `json:"redis" yaml:"redis"`
	LoggingConfig  LoggingConfig  `json:"logging" yaml:"logging"`
	RiskConfig     RiskConfig     `json:"risk" yaml:"risk"`
	PlanConfig     PlanConfig     `json:"plans" yaml:"plans"`
	MetricsConfig  MetricsConfig  `json:"metrics" yaml:"metrics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int    `json:"port" yaml:"port"`
	Host            string `json:"host" yaml:"host"`
	AllowedOrigins  string `json:"allowed_origins" yaml:"allowed_origins"` // comma separated, "*" for any
	Production      bool   `json:"production" yaml:"production"`
	ReadTimeout     int    `json:"read_timeout" yaml:"read_timeout"`         // Seconds
	WriteTimeout    int    `json:"write_timeout" yaml:"write_timeout"`       // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout" yaml:"shutdown_timeout"` // Seconds

	// Trade creation token bucket, per user.
	TradeRatePerSecond float64 `json:"trade_rate_per_second" yaml:"trade_rate_per_second"`
	TradeRateBurst     int     `json:"trade_rate_burst" yaml:"trade_rate_burst"`
}

// DatabaseConfig selects and configures the trade/settings store
type DatabaseConfig struct {
	Backend    string `json:"backend" yaml:"backend"`
	Host       string `json:"host" yaml:"host"`
	Port       int    `json:"port" yaml:"port"`
	User       string `json:"user" yaml:"user"`
	Password   string `json:"password" yaml:"password"`
	Name       string `json:"name" yaml:"name"`
	SSLMode    string `json:"sslmode" yaml:"sslmode"`
	MaxConns   int    `json:"max_conns" yaml:"max_conns"`
	MinConns   int    `json:"min_conns" yaml:"min_conns"`
	SQLitePath string `json:"sqlite_path" yaml:"sqlite_path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	Enabled             bool          `json:"enabled" yaml:"enabled"`
	JWTSecret           string        `json:"jwt_secret" yaml:"jwt_secret"`
	AccessTokenDuration time.Duration `json:"access_token_duration" yaml:"access_token_duration"`
	MinPasswordLength   int           `json:"min_password_length" yaml:"min_password_length"`
	BcryptCost          int           `json:"bcrypt_cost" yaml:"bcrypt_cost"`
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Address    string `json:"address" yaml:"address"`
	Token      string `json:"token" yaml:"token"`
	MountPath  string `json:"mount_path" yaml:"mount_path"`   // KV v2 mount
	SecretPath string `json:"secret_path" yaml:"secret_path"` // path holding service secrets
}

// RedisConfig holds Redis configuration for the settings cache
type RedisConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	Address  string        `json:"address" yaml:"address"`
	Password string        `json:"password" yaml:"password"`
	DB       int           `json:"db" yaml:"db"`
	PoolSize int           `json:"pool_size" yaml:"pool_size"`
	TTL      time.Duration `json:"ttl" yaml:"ttl"`
}

type LoggingConfig struct {
	Level       string `json:"level" yaml:"level"`               // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output" yaml:"output"`             // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format" yaml:"json_format"`   // Output as JSON
	IncludeFile bool   `json:"include_file" yaml:"include_file"` // Include file and line number
	MaxSizeMB   int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups  int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays  int    `json:"max_age_days" yaml:"max_age_days"`
}

// RiskConfig holds guardrail defaults
type RiskConfig struct {
	DefaultCooldownMinutes int    `json:"default_cooldown_minutes" yaml:"default_cooldown_minutes"`
	StreakLookback         int    `json:"streak_lookback" yaml:"streak_lookback"`
	Timezone               string `json:"timezone" yaml:"timezone"` // calendar used for daily loss
}

// PlanConfig holds subscription plan limits
type PlanConfig struct {
	FreeTradeLimit int `json:"free_trade_limit" yaml:"free_trade_limit"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

// Load reads .env, then the optional config file (CONFIG_FILE, default config.json),
// then applies environment overrides and defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := loadFromFile(getEnvOrDefault("CONFIG_FILE", "config.json"))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// File values act as the default for each variable.
func applyEnvOverrides(cfg *Config) {
	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", orInt(cfg.ServerConfig.Port, 8080))
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", orString(cfg.ServerConfig.Host, "0.0.0.0"))
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", orString(cfg.ServerConfig.AllowedOrigins, "*"))
	cfg.ServerConfig.Production = getEnvBoolOrDefault("SERVER_PRODUCTION", cfg.ServerConfig.Production)
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", orInt(cfg.ServerConfig.ReadTimeout, 30))
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", orInt(cfg.ServerConfig.WriteTimeout, 30))
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", orInt(cfg.ServerConfig.ShutdownTimeout, 10))
	cfg.ServerConfig.TradeRatePerSecond = getEnvFloatOrDefault("TRADE_RATE_PER_SECOND", orFloat(cfg.ServerConfig.TradeRatePerSecond, 5))
	cfg.ServerConfig.TradeRateBurst = getEnvIntOrDefault("TRADE_RATE_BURST", orInt(cfg.ServerConfig.TradeRateBurst, 20))

	// Database config
	cfg.DatabaseConfig.Backend = strings.ToLower(getEnvOrDefault("DB_BACKEND", orString(cfg.DatabaseConfig.Backend, BackendPostgres)))
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", orString(cfg.DatabaseConfig.Host, "localhost"))
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", orInt(cfg.DatabaseConfig.Port, 5432))
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", orString(cfg.DatabaseConfig.User, "tradevera"))
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Name = getEnvOrDefault("DB_NAME", orString(cfg.DatabaseConfig.Name, "tradevera"))
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", orString(cfg.DatabaseConfig.SSLMode, "disable"))
	cfg.DatabaseConfig.MaxConns = getEnvIntOrDefault("DB_MAX_CONNS", orInt(cfg.DatabaseConfig.MaxConns, 25))
	cfg.DatabaseConfig.MinConns = getEnvIntOrDefault("DB_MIN_CONNS", orInt(cfg.DatabaseConfig.MinConns, 5))
	cfg.DatabaseConfig.SQLitePath = getEnvOrDefault("DB_SQLITE_PATH", orString(cfg.DatabaseConfig.SQLitePath, "tradevera.db"))

	// Auth config
	cfg.AuthConfig.Enabled = getEnvBoolOrDefault("AUTH_ENABLED", cfg.AuthConfig.Enabled)
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.AccessTokenDuration = getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_DURATION", orDuration(cfg.AuthConfig.AccessTokenDuration, 24*time.Hour))
	cfg.AuthConfig.MinPasswordLength = getEnvIntOrDefault("AUTH_MIN_PASSWORD_LENGTH", orInt(cfg.AuthConfig.MinPasswordLength, 8))
	cfg.AuthConfig.BcryptCost = getEnvIntOrDefault("AUTH_BCRYPT_COST", orInt(cfg.AuthConfig.BcryptCost, 12))

	// Vault config
	cfg.VaultConfig.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.VaultConfig.Enabled)
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", orString(cfg.VaultConfig.Address, "http://localhost:8200"))
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", orString(cfg.VaultConfig.MountPath, "secret"))
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", orString(cfg.VaultConfig.SecretPath, "tradevera/service"))

	// Redis config
	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDR", orString(cfg.RedisConfig.Address, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", orInt(cfg.RedisConfig.PoolSize, 10))
	cfg.RedisConfig.TTL = getEnvDurationOrDefault("REDIS_SETTINGS_TTL", orDuration(cfg.RedisConfig.TTL, time.Hour))

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", orString(cfg.LoggingConfig.Level, "INFO"))
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", orString(cfg.LoggingConfig.Output, "stdout"))
	cfg.LoggingConfig.JSONFormat = getEnvBoolOrDefault("LOG_JSON", true)
	cfg.LoggingConfig.IncludeFile = getEnvBoolOrDefault("LOG_INCLUDE_FILE", cfg.LoggingConfig.IncludeFile)
	cfg.LoggingConfig.MaxSizeMB = getEnvIntOrDefault("LOG_MAX_SIZE_MB", orInt(cfg.LoggingConfig.MaxSizeMB, 100))
	cfg.LoggingConfig.MaxBackups = getEnvIntOrDefault("LOG_MAX_BACKUPS", orInt(cfg.LoggingConfig.MaxBackups, 5))
	cfg.LoggingConfig.MaxAgeDays = getEnvIntOrDefault("LOG_MAX_AGE_DAYS", orInt(cfg.LoggingConfig.MaxAgeDays, 30))

	// Risk config
	cfg.RiskConfig.DefaultCooldownMinutes = getEnvIntOrDefault("RISK_DEFAULT_COOLDOWN_MINUTES", orInt(cfg.RiskConfig.DefaultCooldownMinutes, 45))
	cfg.RiskConfig.StreakLookback = getEnvIntOrDefault("RISK_STREAK_LOOKBACK", orInt(cfg.RiskConfig.StreakLookback, 60))
	cfg.RiskConfig.Timezone = getEnvOrDefault("RISK_TIMEZONE", orString(cfg.RiskConfig.Timezone, "UTC"))

	// Plan config
	cfg.PlanConfig.FreeTradeLimit = getEnvIntOrDefault("PLAN_FREE_TRADE_LIMIT", orInt(cfg.PlanConfig.FreeTradeLimit, 50))

	// Metrics config
	cfg.MetricsConfig.Enabled = getEnvBoolOrDefault("METRICS_ENABLED", true)
	cfg.MetricsConfig.Path = getEnvOrDefault("METRICS_PATH", orString(cfg.MetricsConfig.Path, "/metrics"))
}

// Validate rejects configurations the service cannot run with
func (c *Config) Validate() error {
	switch c.DatabaseConfig.Backend {
	case BackendPostgres, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("unknown database backend %q", c.DatabaseConfig.Backend)
	}
	if c.ServerConfig.Port <= 0 || c.ServerConfig.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.ServerConfig.Port)
	}
	if c.RiskConfig.DefaultCooldownMinutes < 1 || c.RiskConfig.DefaultCooldownMinutes > 600 {
		return fmt.Errorf("risk default cooldown must be between 1 and 600 minutes, got %d", c.RiskConfig.DefaultCooldownMinutes)
	}
	if c.RiskConfig.StreakLookback < 1 {
		return fmt.Errorf("risk streak lookback must be positive, got %d", c.RiskConfig.StreakLookback)
	}
	if _, err := time.LoadLocation(c.RiskConfig.Timezone); err != nil {
		return fmt.Errorf("invalid risk timezone %q: %w", c.RiskConfig.Timezone, err)
	}
	if c.PlanConfig.FreeTradeLimit < 1 {
		return fmt.Errorf("free plan trade limit must be positive, got %d", c.PlanConfig.FreeTradeLimit)
	}
	if c.AuthConfig.Enabled && c.AuthConfig.JWTSecret == "" && !c.VaultConfig.Enabled {
		return errors.New("auth is enabled but AUTH_JWT_SECRET is empty")
	}
	return nil
}

// Location returns the calendar used for daily loss aggregation.
func (r RiskConfig) Location() *time.Location {
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(file, &config); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	default:
		if err := json.Unmarshal(file, &config); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func orString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func orFloat(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func orDuration(v, def time.Duration) time.Duration {
	if v == 0 {
		return def
	}
	return v
}

// GenerateSampleConfig writes a sample configuration file; YAML when the name ends in .yaml/.yml.
func GenerateSampleConfig(filename string) error {
	cfg := &Config{}
	applyEnvOverrides(cfg)
	cfg.DatabaseConfig.Password = ""
	cfg.AuthConfig.JWTSecret = "change-me"

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
