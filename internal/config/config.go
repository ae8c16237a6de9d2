package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// CalendarConfig describes a single ICS subscription source.
type CalendarConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for caching and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
}

// BatteryConfig selects the I2C battery controller of the host, if any.
type BatteryConfig struct {
	// Bus is the periph.io I2C bus name ("" for the default bus).
	Bus string `yaml:"i2c_bus" json:"i2c_bus"`
	// Addr is the 7-bit controller address. Zero disables I2C reads.
	Addr uint16 `yaml:"i2c_addr" json:"i2c_addr"`
}

// Config is the top-level application configuration.
//
// Values are read from YAML first; environment variables listed in the
// env tags override them.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen" env:"KINDLECAL_LISTEN"`

	// AccessKey, when non-empty, must be passed as ?key= on every endpoint
	// except /health.
	AccessKey string `yaml:"access_key" json:"-" env:"KINDLECAL_ACCESS_KEY"`

	// Timezone is the IANA zone used to decide what "today" is.
	Timezone string `yaml:"timezone" json:"timezone" env:"KINDLECAL_TIMEZONE"`

	// RefreshCron is a cron expression for the background preview render.
	RefreshCron string `yaml:"refresh" json:"refresh" env:"KINDLECAL_REFRESH"`

	// CacheDir holds per-feed HTTP cache entries.
	CacheDir string `yaml:"cache_dir" json:"cache_dir" env:"KINDLECAL_CACHE_DIR"`

	// FontDir optionally points at a directory with Regular/Bold/Italic TTFs.
	// Empty means the embedded Go fonts.
	FontDir string `yaml:"font_dir" json:"font_dir" env:"KINDLECAL_FONT_DIR"`

	// OutputPath is where scheduled renders are written.
	OutputPath string `yaml:"output_path" json:"output_path" env:"KINDLECAL_OUTPUT"`

	LogLevel string `yaml:"log_level" json:"log_level" env:"KINDLECAL_LOG_LEVEL"`

	// Calendars is the list of subscribed ICS sources.
	Calendars []CalendarConfig `yaml:"calendars" json:"calendars"`

	// CalendarURLs is a shorthand list of bare feed URLs.
	CalendarURLs []string `yaml:"calendar_urls" json:"calendar_urls" env:"KINDLECAL_CALENDAR_URLS" env-separator:","`

	Battery BatteryConfig `yaml:"battery" json:"battery"`
}

const (
	defaultListen      = "127.0.0.1:8080"
	defaultRefreshCron = "*/15 * * * *"
	defaultCacheDir    = "/var/lib/kindlecal/ics-cache"
	defaultOutputPath  = "/var/lib/kindlecal/image.png"
	defaultLogLevel    = "info"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:       defaultListen,
		Timezone:     "Local",
		RefreshCron:  defaultRefreshCron,
		CacheDir:     defaultCacheDir,
		OutputPath:   defaultOutputPath,
		LogLevel:     defaultLogLevel,
		Calendars:    []CalendarConfig{},
		CalendarURLs: []string{},
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = "Local"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.OutputPath == "" {
		c.OutputPath = defaultOutputPath
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.Calendars == nil {
		c.Calendars = []CalendarConfig{}
	}
	if c.CalendarURLs == nil {
		c.CalendarURLs = []string{}
	}
}

// Location resolves Timezone. "Local" and "" map to time.Local.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Sources merges Calendars and CalendarURLs into one ordered list, dropping
// blank URLs and duplicates. IDs default to Name, then to a positional id.
func (c *Config) Sources() []CalendarConfig {
	out := make([]CalendarConfig, 0, len(c.Calendars)+len(c.CalendarURLs))
	seen := make(map[string]bool)

	add := func(cc CalendarConfig) {
		cc.URL = strings.TrimSpace(cc.URL)
		if cc.URL == "" || seen[cc.URL] {
			return
		}
		seen[cc.URL] = true
		if cc.ID == "" {
			if cc.Name != "" {
				cc.ID = cc.Name
			} else {
				cc.ID = fmt.Sprintf("calendar-%d", len(out)+1)
			}
		}
		out = append(out, cc)
	}

	for _, cc := range c.Calendars {
		add(cc)
	}
	for _, u := range c.CalendarURLs {
		add(CalendarConfig{URL: u})
	}
	return out
}

// Load loads configuration from the given YAML path and applies
// environment overrides.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned (env overrides still apply to the returned value).
//   - Otherwise the YAML is unmarshalled, env overrides applied and
//     defaults normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config: path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		// First run: create default config file.
		cfg := DefaultConfig()
		if err := Save(path, cfg); err != nil {
			return cfg, err
		}
		if err := applyEnv(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return fmt.Errorf("config: read env: %w", err)
	}
	return nil
}

// Save writes the configuration atomically (temp file + rename) with 0600
// permissions, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config: path is empty")
	}
	if cfg == nil {
		return errors.New("config: nil config")
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

	tmp, err := os.CreateTemp(dir, ".kindlecal-config-*.tmp")
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
