package config

import "time"

// Config represents the complete livefetch configuration.
// It can be loaded from .livefetch/config.yaml with environment variable
// overrides.
type Config struct {
	Database     string      `yaml:"database" mapstructure:"database"`         // SQLite file path
	Discipline   string      `yaml:"discipline" mapstructure:"discipline"`     // "eager" or "lazy"
	Declarations string      `yaml:"declarations" mapstructure:"declarations"` // directory of CUE declarations
	Watch        WatchConfig `yaml:"watch" mapstructure:"watch"`
	Log          LogConfig   `yaml:"log" mapstructure:"log"`
}

// WatchConfig controls how `livefetch watch` notices writes.
type WatchConfig struct {
	External bool          `yaml:"external" mapstructure:"external"` // follow commits from other processes
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"` // quiet period before syncing
}

// LogConfig configures the slog handler installed by the CLI.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // text or json
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Database:     "livefetch.db",
		Discipline:   "eager",
		Declarations: "declarations",
		Watch: WatchConfig{
			External: true,
			Debounce: 50 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
