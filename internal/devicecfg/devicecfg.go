// Package devicecfg reads the device configuration cached by the launcher.
package devicecfg

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/org/mdmagent/pkg/models"
)

// Loader reads the cached device configuration from a file.
type Loader struct {
	fs     afero.Fs
	path   string
	logger zerolog.Logger
}

func NewLoader(fs afero.Fs, path string, logger zerolog.Logger) *Loader {
	return &Loader{fs: fs, path: path, logger: logger.With().Str("component", "devicecfg").Logger()}
}

// Load decodes the configuration file. Unknown fields are ignored.
func (l *Loader) Load() (*models.DeviceConfig, error) {
	data, err := afero.ReadFile(l.fs, l.path)
	if err != nil {
		return nil, fmt.Errorf("reading device config: %w", err)
	}
	var cfg models.DeviceConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decoding device config: %w", err)
	}
	return &cfg, nil
}

// LocalPayload returns the policy field of the device configuration, or ""
// when the configuration cannot be read.
func (l *Loader) LocalPayload() string {
	cfg, err := l.Load()
	if err != nil {
		l.logger.Debug().Err(err).Str("path", l.path).Msg("no local policy payload")
		return ""
	}
	return cfg.Custom1
}

// Save writes cfg back to the file, keeping it readable by Load.
func (l *Loader) Save(cfg *models.DeviceConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return afero.WriteFile(l.fs, l.path, data, 0o600)
}
