// Package config loads the agent configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/org/mdmagent/internal/storage"
)

// DefaultPath is used when AGENT_CONFIG is not set.
const DefaultPath = "agent.yaml"

type Config struct {
	ListenAddr string `yaml:"listen_addr" validate:"required,hostname_port"`
	// APIToken protects mutating API routes when non-empty.
	APIToken string `yaml:"api_token"`
	// Timezone is the IANA zone used to evaluate work time. Empty means local.
	Timezone string `yaml:"timezone"`

	Log     Log            `yaml:"log"`
	Device  Device         `yaml:"device"`
	Servers Servers        `yaml:"servers"`
	Storage storage.Config `yaml:"storage"`
	Policy  Policy         `yaml:"policy"`
	Sync    Sync           `yaml:"sync"`
}

type Log struct {
	Level string `yaml:"level" validate:"oneof=trace debug info warn error"`
	// File enables a rotating JSON log in addition to the console.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"gte=0"`
}

type Device struct {
	ID      string `yaml:"id" validate:"required"`
	Project string `yaml:"project" validate:"required"`
	// ConfigFile is the cached device configuration JSON written by the launcher.
	ConfigFile   string   `yaml:"config_file"`
	Capabilities []string `yaml:"capabilities"`
}

type Servers struct {
	Primary   string        `yaml:"primary" validate:"required,url"`
	Secondary string        `yaml:"secondary" validate:"omitempty,url"`
	Timeout   time.Duration `yaml:"timeout" validate:"gte=0"`
}

type Policy struct {
	MinFetchInterval time.Duration `yaml:"min_fetch_interval" validate:"gte=0"`
	// RefreshSchedule is a cron spec for periodic policy refresh.
	RefreshSchedule string `yaml:"refresh_schedule"`
}

type Sync struct {
	MaxConcurrent        int           `yaml:"max_concurrent" validate:"gte=0"`
	MaxAttempts          int           `yaml:"max_attempts" validate:"gte=0"`
	RetryFloor           time.Duration `yaml:"retry_floor" validate:"gte=0"`
	RetryCeil            time.Duration `yaml:"retry_ceil" validate:"gte=0"`
	UploadDelay          time.Duration `yaml:"upload_delay" validate:"gte=0"`
	CallLogSchedule      string        `yaml:"calllog_schedule"`
	DetailedInfoSchedule string        `yaml:"detailed_info_schedule"`
}

// Default returns the configuration used before the file and environment
// are applied.
func Default() Config {
	return Config{
		ListenAddr: "127.0.0.1:8480",
		Log: Log{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Device: Device{
			ConfigFile:   "device.json",
			Capabilities: []string{"read_call_log"},
		},
		Servers: Servers{Timeout: 30 * time.Second},
		Storage: storage.Config{Driver: storage.DriverSQLite, DSN: "data/agent.db"},
		Policy: Policy{
			MinFetchInterval: 60 * time.Second,
			RefreshSchedule:  "@every 15m",
		},
		Sync: Sync{
			MaxConcurrent:        2,
			MaxAttempts:          5,
			RetryFloor:           5 * time.Second,
			RetryCeil:            5 * time.Minute,
			UploadDelay:          5 * time.Second,
			CallLogSchedule:      "@every 1h",
			DetailedInfoSchedule: "@every 30m",
		},
	}
}

// Path returns the config file location from AGENT_CONFIG or DefaultPath.
func Path() string {
	if v := os.Getenv("AGENT_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. A missing file is not an error; found
// reports whether it existed.
func Load(fsys afero.Fs, path string) (cfg Config, found bool, err error) {
	cfg = Default()

	data, err := afero.ReadFile(fsys, path)
	switch {
	case err == nil:
		found = true
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, found, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return cfg, false, fmt.Errorf("reading %s: %w", path, err)
	}

	applyEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return cfg, found, err
	}
	return cfg, found, nil
}

func applyEnv(cfg *Config) {
	overrides := []struct {
		env string
		dst *string
	}{
		{"AGENT_LISTEN_ADDR", &cfg.ListenAddr},
		{"AGENT_DEVICE_ID", &cfg.Device.ID},
		{"AGENT_SERVER_PROJECT", &cfg.Device.Project},
		{"AGENT_PRIMARY_URL", &cfg.Servers.Primary},
		{"AGENT_SECONDARY_URL", &cfg.Servers.Secondary},
		{"AGENT_DB_DRIVER", &cfg.Storage.Driver},
		{"AGENT_DB_DSN", &cfg.Storage.DSN},
		{"AGENT_API_TOKEN", &cfg.APIToken},
		{"AGENT_LOG_LEVEL", &cfg.Log.Level},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}
}

var validate = validator.New()

// Validate checks field constraints and reports every violation at once.
func Validate(cfg Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return validateLocation(cfg.Timezone)
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// Location resolves the configured timezone.
func (c Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func validateLocation(tz string) error {
	if tz == "" {
		return nil
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return fmt.Errorf("invalid config: timezone: %w", err)
	}
	return nil
}
