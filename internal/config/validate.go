package config

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDiscipline indicates an unknown refresh discipline
	ErrInvalidDiscipline = errors.New("invalid discipline")

	// ErrEmptyDatabase indicates a missing database path
	ErrEmptyDatabase = errors.New("empty database path")

	// ErrInvalidDebounce indicates a non-positive watch debounce
	ErrInvalidDebounce = errors.New("invalid watch debounce")

	// ErrInvalidLogLevel indicates an unknown log level
	ErrInvalidLogLevel = errors.New("invalid log level")

	// ErrInvalidLogFormat indicates an unknown log format
	ErrInvalidLogFormat = errors.New("invalid log format")
)

var (
	validDisciplines = map[string]bool{"eager": true, "lazy": true}
	validLogLevels   = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats  = map[string]bool{"text": true, "json": true}
)

// Validate checks that the configuration is valid and complete.
// All problems are reported together.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Database == "" {
		errs = append(errs, ErrEmptyDatabase)
	}
	if !validDisciplines[cfg.Discipline] {
		errs = append(errs, fmt.Errorf("%w: %q (must be eager or lazy)", ErrInvalidDiscipline, cfg.Discipline))
	}
	if cfg.Watch.Debounce <= 0 {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidDebounce, cfg.Watch.Debounce))
	}
	if !validLogLevels[cfg.Log.Level] {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidLogLevel, cfg.Log.Level))
	}
	if !validLogFormats[cfg.Log.Format] {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidLogFormat, cfg.Log.Format))
	}

	return errors.Join(errs...)
}
