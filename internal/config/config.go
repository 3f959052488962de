// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Cache     CacheConfig     `yaml:"cache"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Session   SessionConfig   `yaml:"session"`
	Search    SearchConfig    `yaml:"search"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Save      SaveConfig      `yaml:"save"`
	Log       LogConfig       `yaml:"log"`
}

// CacheConfig controls the on-disk audio artifact cache.
type CacheConfig struct {
	Dir              string `yaml:"dir"`
	TTLMinutes       int    `yaml:"ttl_minutes" default:"60" validate:"gte=1"`
	SweepIntervalSec int    `yaml:"sweep_interval_sec" default:"60" validate:"gte=5"`
}

// FetchConfig controls the download scheduler and worker pool.
type FetchConfig struct {
	WindowSize    int `yaml:"window_size" default:"10" validate:"gte=1,lte=50"`
	MaxConcurrent int `yaml:"max_concurrent" default:"4" validate:"gte=1,lte=30"`
	MaxAttempts   int `yaml:"max_attempts" default:"3" validate:"gte=1,lte=10"`
	CooldownSec   int `yaml:"cooldown_sec" default:"300" validate:"gte=0"`
	TimeoutSec    int `yaml:"timeout_sec" default:"120" validate:"gte=5"`
}

// PlaybackConfig controls the playback engine.
type PlaybackConfig struct {
	Volume      int `yaml:"volume" default:"80" validate:"gte=0,lte=100"`
	SeekStepSec int `yaml:"seek_step_sec" default:"5" validate:"gte=1,lte=60"`
	VolumeStep  int `yaml:"volume_step" default:"5" validate:"gte=1,lte=25"`
}

// SessionConfig controls queue persistence across restarts.
type SessionConfig struct {
	File       string `yaml:"file"`
	HistoryCap int    `yaml:"history_cap" default:"100" validate:"gte=1,lte=1000"`
}

// SearchConfig controls in-app search.
type SearchConfig struct {
	MaxResults int `yaml:"max_results" default:"10" validate:"gte=1,lte=50"`
}

// ExtractorConfig controls the yt-dlp subprocess.
type ExtractorConfig struct {
	Binary      string `yaml:"binary" default:"yt-dlp"`
	CookiesFrom string `yaml:"cookies_from"`
}

// SaveConfig controls exporting tracks to the music library.
type SaveConfig struct {
	Dir string `yaml:"dir"`
}

// LogConfig controls diagnostic logging. The terminal is owned by the UI,
// so logs go to a file or nowhere.
type LogConfig struct {
	Level string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error disabled"`
	File  string `yaml:"file"`
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Fall through to defaults.
	case err != nil:
		return nil, errors.Wrap(err, "failed to read config file")
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	}

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	cfg.fillPaths()

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}
	return &cfg, nil
}

// fillPaths resolves path defaults that depend on the user environment and
// so cannot be struct tags.
func (c *Config) fillPaths() {
	if c.Cache.Dir == "" {
		c.Cache.Dir = filepath.Join(os.TempDir(), "tubeamp")
	}
	if c.Session.File == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			base = os.TempDir()
		}
		c.Session.File = filepath.Join(base, "tubeamp", "session.json")
	}
	if c.Save.Dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		c.Save.Dir = filepath.Join(home, "Music")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// CacheTTL returns the artifact time-to-live.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLMinutes) * time.Minute
}

// SweepInterval returns how often expired artifacts are collected.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Cache.SweepIntervalSec) * time.Second
}

// FetchCooldown returns how long a failed track stays ineligible.
func (c *Config) FetchCooldown() time.Duration {
	return time.Duration(c.Fetch.CooldownSec) * time.Second
}

// FetchTimeout returns the per-fetch deadline.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSec) * time.Second
}

// SeekStep returns the seek increment.
func (c *Config) SeekStep() time.Duration {
	return time.Duration(c.Playback.SeekStepSec) * time.Second
}

// InitialVolume returns the startup volume scaled to [0, 1].
func (c *Config) InitialVolume() float64 {
	return float64(c.Playback.Volume) / 100
}

// VolumeStepFraction returns the volume increment scaled to [0, 1].
func (c *Config) VolumeStepFraction() float64 {
	return float64(c.Playback.VolumeStep) / 100
}

// DefaultPath returns the standard config file location.
func DefaultPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return "tubeamp.yaml"
	}
	return filepath.Join(base, "tubeamp", "config.yaml")
}
