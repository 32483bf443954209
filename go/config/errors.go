package config

import (
	"errors"
	"fmt"
)

// Kinds of ConfigError. Use errors.Is to test for them.
var (
	ErrMissing   = errors.New("config file missing")
	ErrMalformed = errors.New("config file malformed")
	ErrNoProfile = errors.New("launch profile not found")
	ErrBadArgs   = errors.New("launch profile must have exactly two args")
)

// ConfigError reports why a configuration file could not be used. It is
// always fatal to startup.
type ConfigError struct {
	Path string
	Kind error
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Path, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Path, e.Kind, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func (e *ConfigError) Is(target error) bool {
	return target == e.Kind
}

func configError(path string, kind error, format string, args ...interface{}) *ConfigError {
	e := &ConfigError{Path: path, Kind: kind}
	if format != "" {
		e.Err = fmt.Errorf(format, args...)
	}
	return e
}
