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

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"attendbook/internal/dates"
)

// Storage drivers.
const (
	DriverFile   = "file"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// EnvPrefix prefixes every environment override, e.g. ATTENDBOOK_LISTEN.
const EnvPrefix = "ATTENDBOOK_"

// RedisConfig holds the Redis backend settings.
type RedisConfig struct {
	Addr      string `yaml:"addr" json:"addr"`
	Password  string `yaml:"password" json:"password"`
	DB        int    `yaml:"db" json:"db"`
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	// Driver is one of "file" (default), "redis", "memory".
	Driver string `yaml:"driver" json:"driver"`

	// Dir is the data directory of the file driver.
	Dir string `yaml:"dir" json:"dir"`

	Redis RedisConfig `yaml:"redis" json:"redis"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Locale drives date rendering and export labels ("en", "ar", "fr").
	Locale string `yaml:"locale" json:"locale"`

	// WeekStart is the English name of the first weekday of a week.
	// Defaults to "saturday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	Storage StorageConfig `yaml:"storage" json:"storage"`

	// ReportCron is a cron-style schedule for writing last week's absentee
	// CSV into ReportDir. Empty disables the job.
	ReportCron string `yaml:"report_cron" json:"report_cron"`

	// ReportDir defaults to "reports" under Storage.Dir; see ReportPath.
	ReportDir string `yaml:"report_dir,omitempty" json:"report_dir,omitempty"`

	// BasicAuth, if set, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:    "127.0.0.1:8080",
		Locale:    "en",
		WeekStart: "saturday",
		LogLevel:  "info",
		Storage: StorageConfig{
			Driver: DriverFile,
			Dir:    "/var/lib/attendbook",
			Redis: RedisConfig{
				Addr:      "127.0.0.1:6379",
				KeyPrefix: "attendbook:",
			},
		},
		ReportCron: "",
	}
}

// Normalize fills in missing/zero values so partially-filled configs still
// behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Locale == "" {
		c.Locale = def.Locale
	}
	// Unknown weekday names fall back to saturday rather than failing startup.
	if _, ok := dates.ParseWeekday(c.WeekStart); !ok {
		c.WeekStart = def.WeekStart
	}
	c.WeekStart = strings.ToLower(strings.TrimSpace(c.WeekStart))
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}

	switch c.Storage.Driver {
	case DriverFile, DriverRedis, DriverMemory:
	default:
		c.Storage.Driver = DriverFile
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = def.Storage.Dir
	}
	if c.Storage.Redis.Addr == "" {
		c.Storage.Redis.Addr = def.Storage.Redis.Addr
	}
	if c.BasicAuth != nil && (c.BasicAuth.Username == "" || c.BasicAuth.Password == "") {
		c.BasicAuth = nil
	}
}

// Weekday returns the configured week start.
func (c *Config) Weekday() time.Weekday {
	wd, ok := dates.ParseWeekday(c.WeekStart)
	if !ok {
		return dates.DefaultWeekStart
	}
	return wd
}

// ReportPath is the directory scheduled reports are written to. An unset
// ReportDir follows Storage.Dir, including environment overrides of it.
func (c *Config) ReportPath() string {
	if c.ReportDir != "" {
		return c.ReportDir
	}
	return filepath.Join(c.Storage.Dir, "reports")
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - If the file exists, it is unmarshalled and normalized.
//   - In both cases a ".env" file next to the config (if present) and the
//     process environment are applied on top; see ApplyEnv.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg := DefaultConfig()
		if err := Save(path, cfg); err != nil {
			return cfg, err
		}
		return cfg, ApplyEnv(cfg, filepath.Join(filepath.Dir(path), ".env"))
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	if err := ApplyEnv(&cfg, filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv loads dotEnvPath into the environment if it exists (variables
// already set win) and then overrides fields from ATTENDBOOK_* variables.
func ApplyEnv(c *Config, dotEnvPath string) error {
	if dotEnvPath != "" {
		if _, err := os.Stat(dotEnvPath); err == nil {
			if err := godotenv.Load(dotEnvPath); err != nil {
				return fmt.Errorf("config: load %s: %w", dotEnvPath, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: stat %s: %w", dotEnvPath, err)
		}
	}

	setString := func(name string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}
	setString("LISTEN", &c.Listen)
	setString("LOCALE", &c.Locale)
	setString("WEEK_START", &c.WeekStart)
	setString("LOG_LEVEL", &c.LogLevel)
	setString("STORAGE_DRIVER", &c.Storage.Driver)
	setString("STORAGE_DIR", &c.Storage.Dir)
	setString("REDIS_ADDR", &c.Storage.Redis.Addr)
	setString("REDIS_PASSWORD", &c.Storage.Redis.Password)
	setString("REDIS_KEY_PREFIX", &c.Storage.Redis.KeyPrefix)
	setString("REPORT_CRON", &c.ReportCron)
	setString("REPORT_DIR", &c.ReportDir)

	if v, ok := os.LookupEnv(EnvPrefix + "REDIS_DB"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %sREDIS_DB: %w", EnvPrefix, err)
		}
		c.Storage.Redis.DB = n
	}

	c.Normalize()
	return nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".attendbook-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
