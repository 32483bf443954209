// Package zerror turns the errors that stop devlaunch into messages for the
// person at the terminal.
package zerror

import (
	"errors"

	"github.com/memestack/devlaunch/go/config"
	"github.com/memestack/devlaunch/go/portcheck"
	slog "github.com/memestack/devlaunch/go/shinylog"
)

const (
	ExitOK      = 0
	ExitFailure = 1
)

// Report prints err with a hint about how to fix it and returns the exit
// code devlaunch should finish with. A nil err reports nothing.
func Report(err error) int {
	if err == nil {
		return ExitOK
	}

	var cfg *config.ConfigError
	var timeout *portcheck.StartupTimeoutError

	switch {
	case errors.As(err, &cfg):
		reportConfig(cfg)
	case errors.As(err, &timeout):
		ErrorStartupTimeout(err)
	case errors.Is(err, portcheck.ErrExitedBeforeReady):
		slog.Red(err.Error())
		slog.Red("It exited before it started listening. Its output above should say why.")
	default:
		slog.Red(err.Error())
	}
	return ExitFailure
}

func reportConfig(err *config.ConfigError) {
	switch err.Kind {
	case config.ErrMissing:
		ErrorConfigFileMissing(err.Path)
	case config.ErrNoProfile:
		slog.Red("The config file {yellow}" + err.Path + "{red} has no usable launch profile: " + detail(err))
	case config.ErrBadArgs:
		slog.Red("The launch profile in {yellow}" + err.Path + "{red} must have exactly two {yellow}args{red}: " + detail(err))
	default:
		ErrorConfigFileInvalidFormat(err.Path, errors.New(detail(err)))
	}
}

func detail(err *config.ConfigError) string {
	if err.Err != nil {
		return err.Err.Error()
	}
	return err.Kind.Error()
}

func ErrorConfigFileMissing(path string) {
	slog.Red("Couldn't read {yellow}" + path + "{red}. Run devlaunch from the project root, or pass {yellow}--config{red}.")
}

func ErrorConfigFileInvalidFormat(path string, err error) {
	slog.Red("The config file {yellow}" + path + "{red} is not in the correct format: " + err.Error())
}

func ErrorStartupTimeout(err error) {
	slog.Red(err.Error())
	slog.Red("Raise {yellow}readyTimeout{red} in {yellow}" + config.SettingsFile + "{red} if it just needs longer.")
}
