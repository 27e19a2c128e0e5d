package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the loader and uploader.
type Config struct {
	Logging  LoggingConfig  `toml:"logging" yaml:"logging"`
	Transfer TransferConfig `toml:"transfer" yaml:"transfer"`
	Assets   AssetsConfig   `toml:"assets" yaml:"assets"`
	Device   DeviceConfig   `toml:"device" yaml:"device"`
	Jobs     JobsConfig     `toml:"jobs" yaml:"jobs"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `toml:"level" yaml:"level"`
	Prefix     string `toml:"prefix" yaml:"prefix"`
	File       string `toml:"file" yaml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `toml:"compress" yaml:"compress"`
}

// TransferConfig holds staging and fence settings.
type TransferConfig struct {
	// FenceTimeout bounds explicit waits on a transfer fence. Exceeding it
	// means the device is considered lost.
	FenceTimeout Duration `toml:"fence_timeout" yaml:"fence_timeout"`
	// CollectInterval is how often long running tools poll pending fences.
	CollectInterval Duration `toml:"collect_interval" yaml:"collect_interval"`
}

// AssetsConfig holds asset discovery settings.
type AssetsConfig struct {
	Dir   string `toml:"dir" yaml:"dir"`
	Watch bool   `toml:"watch" yaml:"watch"`
}

// DeviceConfig holds headless device bootstrap settings.
type DeviceConfig struct {
	ApplicationName string `toml:"application_name" yaml:"application_name"`
	Validation      bool   `toml:"validation" yaml:"validation"`
}

// JobsConfig sizes the worker pool used for image decoding.
type JobsConfig struct {
	Workers   int `toml:"workers" yaml:"workers"`
	QueueSize int `toml:"queue_size" yaml:"queue_size"`
}

// Duration is a time.Duration written as "5s" or "250ms" in config files.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 7,
			Compress:   true,
		},
		Transfer: TransferConfig{
			FenceTimeout:    Duration{5 * time.Second},
			CollectInterval: Duration{16 * time.Millisecond},
		},
		Assets: AssetsConfig{
			Dir: "assets",
		},
		Device: DeviceConfig{
			ApplicationName: "vkstage",
		},
		Jobs: JobsConfig{
			Workers:   4,
			QueueSize: 64,
		},
	}
}

// LoadConfig reads a TOML or YAML file on top of the defaults. The format
// is picked from the file extension.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("unknown config format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the loader cannot run with.
func (c *Config) Validate() error {
	if c.Transfer.FenceTimeout.Duration <= 0 {
		return fmt.Errorf("transfer.fence_timeout must be positive")
	}
	if c.Jobs.Workers <= 0 {
		return fmt.Errorf("jobs.workers must be at least 1")
	}
	if c.Jobs.QueueSize < 0 {
		return fmt.Errorf("jobs.queue_size must not be negative")
	}
	return nil
}
