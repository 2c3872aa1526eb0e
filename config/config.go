package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Vault    VaultConfig    `mapstructure:"vault"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address of the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig selects the backend for lockboxes and ledger accounts.
type StorageConfig struct {
	Driver string `mapstructure:"driver"` // postgres, memory
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

// AuthConfig controls the signed-login handshake.
type AuthConfig struct {
	MaxClockDrift time.Duration `mapstructure:"max_clock_drift"`
	NonceTTL      time.Duration `mapstructure:"nonce_ttl"`
}

type VaultConfig struct {
	ProgramID       string        `mapstructure:"program_id"`       // 32-byte hex
	EmergencyPolicy string        `mapstructure:"emergency_policy"` // deactivate, close
	IdempotencyTTL  time.Duration `mapstructure:"idempotency_ttl"`
	FaucetEnabled   bool          `mapstructure:"faucet_enabled"`
	FaucetMaxAmount uint64        `mapstructure:"faucet_max_amount"`
	WebhookURL      string        `mapstructure:"webhook_url"`
	WebhookSecret   string        `mapstructure:"webhook_secret"`
}

// ProgramIDBytes decodes the configured program id.
func (v VaultConfig) ProgramIDBytes() ([32]byte, error) {
	var id [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(v.ProgramID, "0x"))
	if err != nil {
		return id, fmt.Errorf("decoding vault.program_id: %w", err)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("vault.program_id must be 32 bytes, got %d", len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// DefaultProgramID is the program id used when none is configured.
const DefaultProgramID = "4c4f434b424f582d5641554c542d50524f4752414d2d49442d5630312d303031"

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: LBX_.
// Nested keys use underscore: LBX_DATABASE_HOST, LBX_VAULT_PROGRAM_ID, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "lockbox")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "savings-lockbox")
	v.SetDefault("auth.max_clock_drift", "5m")
	v.SetDefault("auth.nonce_ttl", "10m")
	v.SetDefault("vault.program_id", DefaultProgramID)
	v.SetDefault("vault.emergency_policy", "deactivate")
	v.SetDefault("vault.idempotency_ttl", "24h")
	v.SetDefault("vault.faucet_enabled", false)
	v.SetDefault("vault.faucet_max_amount", uint64(10_000_000_000))
	v.SetDefault("vault.webhook_url", "")
	v.SetDefault("vault.webhook_secret", "")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// LBX_VAULT_PROGRAM_ID -> vault.program_id
	v.SetEnvPrefix("LBX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional; env vars can suffice.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("storage.driver must be postgres or memory, got %q", c.Storage.Driver)
	}
	switch c.Vault.EmergencyPolicy {
	case "deactivate", "close":
	default:
		return fmt.Errorf("vault.emergency_policy must be deactivate or close, got %q", c.Vault.EmergencyPolicy)
	}
	if _, err := c.Vault.ProgramIDBytes(); err != nil {
		return err
	}
	return nil
}
