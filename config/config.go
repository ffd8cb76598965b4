// ABOUTME: Application configuration loaded from TOML or YAML plus environment
// ABOUTME: Reads .env, finds the config file under XDG, applies env overrides and defaults
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/harperreed/dayplan/charm"
	"github.com/harperreed/dayplan/db"
)

const (
	appDir = "dayplan"

	// DefaultSchedule runs scheduled imports every fifteen minutes.
	DefaultSchedule = "*/15 * * * *"

	DefaultServerAddr = "127.0.0.1:8080"
	DefaultUserID     = "local"
)

// GoogleConfig holds the OAuth client and calendar selection.
type GoogleConfig struct {
	ClientID     string `toml:"client_id" yaml:"client_id"`
	ClientSecret string `toml:"client_secret" yaml:"client_secret"`
	RedirectURL  string `toml:"redirect_url" yaml:"redirect_url"`
	CalendarID   string `toml:"calendar_id" yaml:"calendar_id"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `toml:"path" yaml:"path"`
}

// RedisConfig enables the shared import lease. An empty Addr keeps leases
// in process.
type RedisConfig struct {
	Addr     string `toml:"addr" yaml:"addr"`
	Password string `toml:"password" yaml:"password"`
	DB       int    `toml:"db" yaml:"db"`
}

// ServerConfig is for the HTTP server and the OAuth state signer.
type ServerConfig struct {
	Addr        string `toml:"addr" yaml:"addr"`
	StateSecret string `toml:"state_secret" yaml:"state_secret"`
}

// ImportConfig tunes scheduled and manual imports.
type ImportConfig struct {
	Schedule   string        `toml:"schedule" yaml:"schedule"`
	RunTimeout time.Duration `toml:"run_timeout" yaml:"run_timeout"`
}

// LogConfig selects the zap level and encoder.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	// UserID is the local user the CLI acts as.
	UserID string `toml:"user_id" yaml:"user_id"`

	Google   GoogleConfig   `toml:"google" yaml:"google"`
	Database DatabaseConfig `toml:"database" yaml:"database"`
	Charm    charm.Config   `toml:"charm" yaml:"charm"`
	Redis    RedisConfig    `toml:"redis" yaml:"redis"`
	Server   ServerConfig   `toml:"server" yaml:"server"`
	Import   ImportConfig   `toml:"import" yaml:"import"`
	Log      LogConfig      `toml:"log" yaml:"log"`

	// path is where the config was read from, empty when defaults only.
	path string
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{Charm: *charm.DefaultConfig()}
	cfg.Normalize()
	return cfg
}

// Normalize fills zero values with defaults.
func (c *Config) Normalize() {
	if c.UserID == "" {
		c.UserID = DefaultUserID
	}
	if c.Google.CalendarID == "" {
		c.Google.CalendarID = "primary"
	}
	if c.Database.Path == "" {
		c.Database.Path = db.DefaultPath()
	}
	c.Charm.ApplyDefaults()
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Import.Schedule == "" {
		c.Import.Schedule = DefaultSchedule
	}
	if c.Import.RunTimeout <= 0 {
		c.Import.RunTimeout = 5 * time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// Path returns the file the config was loaded from, if any.
func (c *Config) Path() string {
	return c.path
}

// Load reads configuration. An explicit path must exist; otherwise
// DAYPLAN_CONFIG, then dayplan/config.toml and dayplan/config.yaml under the
// XDG config dirs are tried, and defaults are used when none exist.
// Environment variables (including a .env file in the working directory)
// override file values.
func Load(path string) (*Config, error) {
	// Load .env if present; real environment wins
	_ = godotenv.Load()

	cfg := &Config{Charm: *charm.DefaultConfig()}

	if path == "" {
		path = os.Getenv("DAYPLAN_CONFIG")
	}
	if path == "" {
		path = findConfigFile()
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
		cfg.path = path
	}

	applyEnv(cfg)
	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if _, err := cron.ParseStandard(c.Import.Schedule); err != nil {
		return fmt.Errorf("invalid import schedule %q: %w", c.Import.Schedule, err)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log format %q (want console or json)", c.Log.Format)
	}
	if c.Server.StateSecret != "" && len(c.Server.StateSecret) < 32 {
		return errors.New("server.state_secret must be at least 32 characters")
	}
	return nil
}

// RequireGoogle reports whether the OAuth client is configured.
func (c *Config) RequireGoogle() error {
	if c.Google.ClientID == "" || c.Google.ClientSecret == "" {
		return errors.New("google OAuth credentials not configured. Set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET environment variables")
	}
	return nil
}

// StateSecret returns the configured signing secret, or a random one that
// only lives as long as the process.
func (c *Config) StateSecret() []byte {
	if c.Server.StateSecret != "" {
		return []byte(c.Server.StateSecret)
	}
	return processSecret
}

func findConfigFile() string {
	for _, name := range []string{"config.toml", "config.yaml", "config.yml"} {
		if p, err := xdg.SearchConfigFile(filepath.Join(appDir, name)); err == nil {
			return p
		}
	}
	return ""
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config format %q (use .toml or .yaml)", filepath.Ext(path))
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.UserID, "DAYPLAN_USER")
	setString(&cfg.Google.ClientID, "GOOGLE_CLIENT_ID")
	setString(&cfg.Google.ClientSecret, "GOOGLE_CLIENT_SECRET")
	setString(&cfg.Google.RedirectURL, "GOOGLE_REDIRECT_URL")
	setString(&cfg.Google.CalendarID, "GOOGLE_CALENDAR_ID")
	setString(&cfg.Database.Path, "DAYPLAN_DB_PATH")
	setString(&cfg.Charm.Host, "CHARM_HOST")
	setString(&cfg.Redis.Addr, "DAYPLAN_REDIS_ADDR")
	setString(&cfg.Redis.Password, "DAYPLAN_REDIS_PASSWORD")
	setString(&cfg.Server.Addr, "DAYPLAN_SERVER_ADDR")
	setString(&cfg.Server.StateSecret, "DAYPLAN_STATE_SECRET")
	setString(&cfg.Import.Schedule, "DAYPLAN_IMPORT_SCHEDULE")
	setString(&cfg.Log.Level, "DAYPLAN_LOG_LEVEL")
	setString(&cfg.Log.Format, "DAYPLAN_LOG_FORMAT")

	if v := os.Getenv("DAYPLAN_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
	if v := os.Getenv("DAYPLAN_IMPORT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Import.RunTimeout = d
		}
	}
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

// Save writes cfg as TOML or YAML (by extension) atomically with 0600 perms.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	var data []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		var b strings.Builder
		if err := toml.NewEncoder(&b).Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		data = []byte(b.String())
	case ".yaml", ".yml":
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		data = out
	default:
		return fmt.Errorf("unsupported config format %q (use .toml or .yaml)", filepath.Ext(path))
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".dayplan-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// DefaultPath is where `dayplan config init` writes.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, appDir, "config.toml")
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}
