// Package config manages global chatcast configuration.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration written as a Go duration string ("2s", "30m")
// in YAML and JSON.
type Duration time.Duration

// Duration returns the value as a time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(b), err)
	}
	*d = Duration(parsed)
	return nil
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" json:"format" validate:"oneof=text json"`

	// File, when set, receives log lines as well as stderr, rotated by size.
	File       string `yaml:"file,omitempty" json:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb" validate:"gte=1"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days" validate:"gte=0"`
}

// Timings groups every delay and timeout the daemon uses.
type Timings struct {
	ReadinessInterval Duration `yaml:"readiness_interval" json:"readiness_interval" validate:"gt=0"`
	ReadinessCeiling  Duration `yaml:"readiness_ceiling" json:"readiness_ceiling" validate:"gt=0,gtefield=ReadinessInterval"`
	SubmitDelay       Duration `yaml:"submit_delay" json:"submit_delay" validate:"gt=0"`
	SettleDelay       Duration `yaml:"settle_delay" json:"settle_delay" validate:"gt=0"`
	URLQuiet          Duration `yaml:"url_quiet" json:"url_quiet" validate:"gt=0"`
	TargetTimeout     Duration `yaml:"target_timeout" json:"target_timeout" validate:"gt=0"`
	LaunchTimeout     Duration `yaml:"launch_timeout" json:"launch_timeout" validate:"gt=0"`
	RequestTimeout    Duration `yaml:"request_timeout" json:"request_timeout" validate:"gt=0"`
}

// Config is the on-disk configuration.
type Config struct {
	// Backend selects the browser driver: auto, chromedp or rod.
	Backend    string            `yaml:"backend" json:"backend" validate:"oneof=auto chromedp rod"`
	Headless   bool              `yaml:"headless" json:"headless"`
	ChromePath string            `yaml:"chrome_path,omitempty" json:"chrome_path,omitempty"`
	ChromeArgs map[string]string `yaml:"chrome_args,omitempty" json:"chrome_args,omitempty"`

	// Listen is the daemon's HTTP address. Keep it on loopback; the API has
	// no authentication.
	Listen string `yaml:"listen" json:"listen" validate:"required,hostname_port"`

	// TargetsFile replaces the built-in target table when set.
	TargetsFile string `yaml:"targets_file,omitempty" json:"targets_file,omitempty"`

	// InboxDir enables the drop-folder watcher when set.
	InboxDir string `yaml:"inbox_dir,omitempty" json:"inbox_dir,omitempty"`

	// InboxInterval is the least time between two inbox broadcasts.
	InboxInterval Duration `yaml:"inbox_interval" json:"inbox_interval" validate:"gte=0"`

	DebugScripts     bool   `yaml:"debug_scripts" json:"debug_scripts"`
	StructuredMarker string `yaml:"structured_marker,omitempty" json:"structured_marker,omitempty"`
	MountConcurrency int    `yaml:"mount_concurrency" json:"mount_concurrency" validate:"gte=1,lte=16"`

	// HistoryRetention bounds the dispatch log; zero keeps everything.
	HistoryRetention Duration `yaml:"history_retention" json:"history_retention" validate:"gte=0"`

	// PruneSchedule is a cron expression for pruning the dispatch log while
	// the daemon runs. Empty prunes only at startup.
	PruneSchedule string `yaml:"prune_schedule" json:"prune_schedule"`

	Log     LogConfig `yaml:"log" json:"log"`
	Timings Timings   `yaml:"timings" json:"timings"`
}

// DefaultListen is the daemon address when none is configured.
const DefaultListen = "127.0.0.1:7733"

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Backend:          "auto",
		Listen:           DefaultListen,
		MountConcurrency: 3,
		HistoryRetention: Duration(30 * 24 * time.Hour),
		PruneSchedule:    "@hourly",
		InboxInterval:    Duration(5 * time.Second),
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
		Timings: Timings{
			ReadinessInterval: Duration(time.Second),
			ReadinessCeiling:  Duration(10 * time.Second),
			SubmitDelay:       Duration(100 * time.Millisecond),
			SettleDelay:       Duration(300 * time.Millisecond),
			URLQuiet:          Duration(2 * time.Second),
			TargetTimeout:     Duration(15 * time.Second),
			LaunchTimeout:     Duration(30 * time.Second),
			RequestTimeout:    Duration(2 * time.Minute),
		},
	}
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "chatcast", "config.yaml")
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "chatcast", "config.yaml")
	}
	return filepath.Join(homeDir, ".config", "chatcast", "config.yaml")
}

// HomeDir returns the chatcast data root: CHATCAST_HOME, or ~/.chatcast.
func HomeDir() string {
	if h := os.Getenv("CHATCAST_HOME"); h != "" {
		return h
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".chatcast"
	}
	return filepath.Join(homeDir, ".chatcast")
}

// ProfilesDir holds one browser user-data directory per storage partition.
func ProfilesDir() string {
	return filepath.Join(HomeDir(), "profiles")
}

// LogDir is the default location for the log file.
func LogDir() string {
	return filepath.Join(HomeDir(), "logs")
}

// Load reads the config from ConfigPath, returning defaults if it does not exist.
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads the config at path. Fields the file omits keep their
// defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.PruneSchedule != "" {
		if _, err := cron.ParseStandard(c.PruneSchedule); err != nil {
			return fmt.Errorf("invalid config: prune_schedule: %w", err)
		}
	}
	return nil
}

// Save writes the config to ConfigPath.
func (c *Config) Save() error {
	return c.SaveTo(ConfigPath())
}

// SaveTo writes the config to path atomically with owner-only permissions.
func (c *Config) SaveTo(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// ResolvePath expands a leading ~ and makes relative paths relative to the
// chatcast home directory.
func ResolvePath(p string) string {
	if p == "" {
		return ""
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		if homeDir, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(homeDir, strings.TrimPrefix(p, "~"))
		}
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(HomeDir(), p)
	}
	return p
}

// ListenIsLoopback reports whether Listen binds only to the local machine.
// An empty host ("":7733) binds every interface.
func (c *Config) ListenIsLoopback() bool {
	host, _, err := net.SplitHostPort(c.Listen)
	if err != nil {
		return false
	}
	return isLoopbackHost(strings.ToLower(host))
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
