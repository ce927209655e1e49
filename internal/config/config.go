package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oryxcart/sentinel/internal/logging"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  logging.Config `yaml:"logging"`
	Security SecurityConfig `yaml:"security"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	ListenAddr      string   `yaml:"listen_addr"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds persistence settings.
type DatabaseConfig struct {
	Driver          string   `yaml:"driver"` // sqlite3 or postgres
	DSN             string   `yaml:"dsn"`
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
}

// SecurityConfig holds engine and classifier settings.
type SecurityConfig struct {
	// JWT verification secret; token issuance belongs to the platform.
	JWTSecret string `yaml:"jwt_secret"`

	// Per-minute request limits by path class.
	AuthRateLimit     int `yaml:"auth_rate_limit"`
	AdminRateLimit    int `yaml:"admin_rate_limit"`
	MerchantRateLimit int `yaml:"merchant_rate_limit"`
	DefaultRateLimit  int `yaml:"default_rate_limit"`

	// Failed-login handling.
	FailedLoginThreshold int      `yaml:"failed_login_threshold"`
	FailedLoginWindow    Duration `yaml:"failed_login_window"`

	// How long an automatic IP block lasts. Manual blocks may be indefinite.
	BlockTTL Duration `yaml:"block_ttl"`

	// Sweep interval for expired blocks and stale counters.
	SweepInterval Duration `yaml:"sweep_interval"`

	// Compliance score penalty per open violation.
	ScorePenalty int `yaml:"score_penalty"`

	// Optional YAML rule file, hot-reloaded on change.
	RuleFile string `yaml:"rule_file"`

	// Admin API token-bucket throttle.
	AdminAPIRate  float64 `yaml:"admin_api_rate"`
	AdminAPIBurst int     `yaml:"admin_api_burst"`
}

// Default returns a configuration with sane defaults applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":8443",
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Database: DatabaseConfig{
			Driver:          "sqlite3",
			DSN:             "sentinel.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: Duration(30 * time.Minute),
		},
		Logging: logging.DefaultConfig(),
		Security: SecurityConfig{
			AuthRateLimit:        5,
			AdminRateLimit:       20,
			MerchantRateLimit:    50,
			DefaultRateLimit:     100,
			FailedLoginThreshold: 5,
			FailedLoginWindow:    Duration(5 * time.Minute),
			BlockTTL:             Duration(24 * time.Hour),
			SweepInterval:        Duration(time.Minute),
			ScorePenalty:         10,
			AdminAPIRate:         25,
			AdminAPIBurst:        50,
		},
	}
}

// Load reads a YAML configuration file over the defaults. A missing path
// returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants the rest of the system assumes.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	if c.Security.FailedLoginThreshold <= 0 {
		return fmt.Errorf("failed_login_threshold must be positive")
	}
	if c.Security.ScorePenalty < 0 {
		return fmt.Errorf("score_penalty must not be negative")
	}
	for name, limit := range map[string]int{
		"auth_rate_limit":     c.Security.AuthRateLimit,
		"admin_rate_limit":    c.Security.AdminRateLimit,
		"merchant_rate_limit": c.Security.MerchantRateLimit,
		"default_rate_limit":  c.Security.DefaultRateLimit,
	} {
		if limit <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}
