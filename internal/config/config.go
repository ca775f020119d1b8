// Package config loads labbook's TOML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

type DeleteMode string

const (
	DeleteModeArchive DeleteMode = "archive"
	DeleteModeHard    DeleteMode = "hard"
)

type Config struct {
	Database      DatabaseConfig      `toml:"database"`
	Delete        DeleteConfig        `toml:"delete"`
	Logging       LoggingConfig       `toml:"logging"`
	Server        ServerConfig        `toml:"server"`
	Store         StoreConfig         `toml:"store"`
	IDs           IDConfig            `toml:"ids"`
	Thresholds    ThresholdsConfig    `toml:"thresholds"`
	Notifications NotificationsConfig `toml:"notifications"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type DeleteConfig struct {
	DefaultMode DeleteMode `toml:"default_mode"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"` // debug | info | warn | error
	DevFile DevFileConfig `toml:"dev_file"`
}

// DevFileConfig controls the logfmt file sink written in dev mode.
type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

type ServerConfig struct {
	HTTPBind        string   `toml:"http_bind"`
	APIEndpoint     string   `toml:"api_endpoint"`
	MCPEndpoint     string   `toml:"mcp_endpoint"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

type StoreConfig struct {
	// CommitTimeout bounds how long an optimistic change waits for the store.
	CommitTimeout Duration `toml:"commit_timeout"`
}

type IDConfig struct {
	MaxAttempts int `toml:"max_attempts"`
}

type ThresholdsConfig struct {
	PlaquetteNearlyFull float64 `toml:"plaquette_nearly_full"`
	BudgetWarn          float64 `toml:"budget_warn"`
	AttendanceMin       float64 `toml:"attendance_min"`
}

type NotificationsConfig struct {
	RingSize int `toml:"ring_size"`
}

// Duration decodes TOML strings such as "8s" or "250ms".
type Duration time.Duration

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText renders the duration in Go notation.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Delete: DeleteConfig{
			DefaultMode: DeleteModeArchive,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Server: ServerConfig{
			HTTPBind:        "127.0.0.1:8080",
			APIEndpoint:     "/api/v1",
			MCPEndpoint:     "/mcp",
			ShutdownTimeout: Duration(5 * time.Second),
		},
		Store: StoreConfig{
			CommitTimeout: Duration(8 * time.Second),
		},
		IDs: IDConfig{
			MaxAttempts: 5,
		},
		Thresholds: ThresholdsConfig{
			PlaquetteNearlyFull: 0.9,
			BudgetWarn:          0.8,
			AttendanceMin:       0.8,
		},
		Notifications: NotificationsConfig{
			RingSize: 100,
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}

	switch c.Delete.DefaultMode {
	case DeleteModeArchive, DeleteModeHard:
	default:
		return fmt.Errorf("invalid delete.default_mode: %q", c.Delete.DefaultMode)
	}

	switch strings.TrimSpace(strings.ToLower(c.Logging.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}

	api := "/" + strings.Trim(strings.TrimSpace(c.Server.APIEndpoint), "/")
	mcp := "/" + strings.Trim(strings.TrimSpace(c.Server.MCPEndpoint), "/")
	if api != "/" && api == mcp {
		return fmt.Errorf("server.api_endpoint and server.mcp_endpoint must differ: %q", api)
	}
	if c.Server.ShutdownTimeout < 0 {
		return errors.New("server.shutdown_timeout must be >= 0")
	}
	if c.Store.CommitTimeout < 0 {
		return errors.New("store.commit_timeout must be >= 0")
	}
	if c.IDs.MaxAttempts < 1 {
		return fmt.Errorf("ids.max_attempts must be >= 1, got %d", c.IDs.MaxAttempts)
	}

	ratios := []struct {
		name  string
		value float64
	}{
		{"thresholds.plaquette_nearly_full", c.Thresholds.PlaquetteNearlyFull},
		{"thresholds.budget_warn", c.Thresholds.BudgetWarn},
		{"thresholds.attendance_min", c.Thresholds.AttendanceMin},
	}
	for _, ratio := range ratios {
		if ratio.value <= 0 || ratio.value > 1 {
			return fmt.Errorf("%s must be in (0, 1], got %v", ratio.name, ratio.value)
		}
	}

	if c.Notifications.RingSize < 0 {
		return errors.New("notifications.ring_size must be >= 0")
	}

	return nil
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
