// Package config loads the looper settings from a JSON file.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/chase3718/lou-looper/internal/clock"
	"github.com/chase3718/lou-looper/internal/controller"
	"github.com/chase3718/lou-looper/internal/notelog"
	"github.com/chase3718/lou-looper/internal/transport"
)

// SerialConfig selects the serial line.
type SerialConfig struct {
	Device string `json:"device"`
	Baud   int    `json:"baud"`
}

// StorageConfig selects the note log image.
type StorageConfig struct {
	Path    string `json:"path"`
	MaxAddr uint16 `json:"maxAddr"`
}

// ClockConfig sets the tick counter.
type ClockConfig struct {
	TickPeriod    Duration `json:"tickPeriod"`
	OverflowTicks uint32   `json:"overflowTicks"`
	SaturationMs  uint16   `json:"saturationMs"`
}

// PlaybackConfig holds the playback policy.
type PlaybackConfig struct {
	FallbackSpacingMs uint16 `json:"fallbackSpacingMs"`
	AnalogMax         uint16 `json:"analogMax"`
}

// Config is the main configuration structure.
type Config struct {
	Serial   SerialConfig   `json:"serial"`
	Storage  StorageConfig  `json:"storage"`
	Clock    ClockConfig    `json:"clock"`
	Playback PlaybackConfig `json:"playback"`
}

// Duration is a time.Duration written as a string such as "1ms".
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Default returns a config with the stock device settings.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Device: "/dev/ttyUSB0",
			Baud:   transport.DefaultBaud,
		},
		Storage: StorageConfig{
			Path:    "notes.img",
			MaxAddr: notelog.DefaultMaxAddr,
		},
		Clock: ClockConfig{
			TickPeriod:    Duration(clock.DefaultTickPeriod),
			OverflowTicks: clock.DefaultOverflowTicks,
			SaturationMs:  clock.DefaultSaturationMs,
		},
		Playback: PlaybackConfig{
			FallbackSpacingMs: controller.DefaultFallbackSpacingMs,
			AnalogMax:         controller.DefaultAnalogMax,
		},
	}
}

// Dir returns the config directory path.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "lou-looper"), nil
}

// Path returns the full path to config.json.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config at path, or returns defaults if the file does not
// exist. Fields missing from the file keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to path, creating its directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Controller returns the controller policy.
func (c *Config) Controller() controller.Config {
	return controller.Config{
		FallbackSpacingMs: c.Playback.FallbackSpacingMs,
		SaturationMs:      c.Clock.SaturationMs,
		AnalogMax:         c.Playback.AnalogMax,
	}
}
