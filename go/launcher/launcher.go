// Package launcher brings up the backend, frontend and shell in order,
// watches them, and tears everything down when one of them exits.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/memestack/devlaunch/go/config"
	"github.com/memestack/devlaunch/go/filemonitor"
	"github.com/memestack/devlaunch/go/portcheck"
	slog "github.com/memestack/devlaunch/go/shinylog"
	"github.com/memestack/devlaunch/go/statuschart"
	"github.com/memestack/devlaunch/go/supervisor"
	"github.com/memestack/devlaunch/go/zerror"
)

type Options struct {
	// ConfigPath, Profile and PollInterval override the settings file
	// when set.
	ConfigPath   string
	SettingsPath string
	Profile      string
	PollInterval time.Duration

	// Watch relaunches everything when the launch or settings file changes.
	Watch           bool
	FileChangeDelay time.Duration

	PTY       bool
	NoChart   bool
	ChartMode statuschart.Mode

	Out io.Writer
	Err io.Writer

	// Interrupts replaces SIGINT and SIGTERM delivery.
	Interrupts <-chan os.Signal
}

// StartupError is a role that could not be brought up.
type StartupError struct {
	Role supervisor.Role
	Err  error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("starting %v: %v", e.Role, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

// Setup is everything resolved from the settings and launch files.
type Setup struct {
	Settings config.Settings
	Profile  config.LaunchProfile
	Steps    []Step
}

// Load reads the settings and launch files and renders the launch plan.
func Load(opts Options) (*Setup, error) {
	settings, err := config.LoadSettings(opts.SettingsPath)
	if err != nil {
		return nil, err
	}
	if opts.ConfigPath != "" {
		settings.LaunchConfig = opts.ConfigPath
	}
	if opts.Profile != "" {
		settings.Profile = opts.Profile
	}
	if opts.PollInterval > 0 {
		settings.PollInterval = opts.PollInterval
	}

	profile, err := config.Load(settings.LaunchConfig, settings.Profile)
	if err != nil {
		return nil, err
	}

	steps, err := Plan(settings, profile)
	if err != nil {
		return nil, err
	}

	return &Setup{Settings: settings, Profile: profile, Steps: steps}, nil
}

// Run launches everything and supervises it until a process exits or an
// interrupt arrives, then tears every process group down. In watch mode a
// change to the launch or settings file tears down and launches again.
func Run(ctx context.Context, opts Options) error {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}

	interrupts := opts.Interrupts
	if interrupts == nil {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(c)
		interrupts = c
	}

	var changes <-chan []string
	if opts.Watch {
		fm, err := watch(opts)
		if err != nil {
			return err
		}
		defer fm.Close()
		changes = fm.Listen()
	}

	first := true
	for {
		reason, err := runOnce(ctx, opts, interrupts, changes)
		if err != nil {
			if !opts.Watch || first {
				return err
			}
			zerror.Report(err)
			slog.Yellow("Waiting for the configuration to change...")
			select {
			case _, ok := <-changes:
				if !ok {
					return err
				}
				continue
			case <-interrupts:
				return nil
			case <-ctx.Done():
				return nil
			}
		}
		first = false

		if reason.Kind != supervisor.ConfigChanged {
			return nil
		}
		slog.Colorized("{yellow}Configuration changed, relaunching{reset}")
	}
}

func watch(opts Options) (filemonitor.FileMonitor, error) {
	delay := opts.FileChangeDelay
	if delay <= 0 {
		delay = filemonitor.DefaultFileChangeDelay
	}
	fm, err := filemonitor.NewFileMonitor(delay)
	if err != nil {
		return nil, fmt.Errorf("watching configuration: %w", err)
	}

	launchConfig := opts.ConfigPath
	if launchConfig == "" {
		settings, err := config.LoadSettings(opts.SettingsPath)
		if err != nil {
			launchConfig = config.ConfigFile
		} else {
			launchConfig = settings.LaunchConfig
		}
	}

	for _, file := range []string{launchConfig, opts.SettingsPath} {
		if err := fm.Add(file); err != nil {
			fm.Close()
			return nil, fmt.Errorf("watching %s: %w", file, err)
		}
	}
	return fm, nil
}

func runOnce(ctx context.Context, opts Options, interrupts <-chan os.Signal, changes <-chan []string) (supervisor.ExitReason, error) {
	setup, err := Load(opts)
	if err != nil {
		return supervisor.ExitReason{}, err
	}
	settings := setup.Settings

	slog.Colorized("{green}Launching {yellow}" + setup.Profile.MainClass + "{green} from " + settings.LaunchConfig + "{reset}")

	stateChanges := make(chan struct{}, 1)
	spawner := &supervisor.OSSpawner{Stdout: opts.Out, Stderr: opts.Err, PTY: opts.PTY}
	sup := supervisor.New(spawner,
		supervisor.WithKillGrace(settings.KillGrace),
		supervisor.WithStateChanges(stateChanges),
	)

	if !opts.NoChart {
		chart := statuschart.Start(sup, stateChanges, opts.Out, opts.ChartMode)
		defer chart.Stop()
		if opts.ChartMode == statuschart.ModeTTY {
			spawner.Stdout = chart.Writer()
			spawner.Stderr = chart.Writer()
		}
	}
	defer sup.KillAll()

	reason, early, err := launchAll(ctx, sup, setup, interrupts)
	if err != nil {
		slog.Red("Startup failed, stopping everything")
		return supervisor.ExitReason{}, err
	}
	if !early {
		reason = sup.Monitor(ctx, settings.PollInterval, interrupts, changes)
	}
	report(reason)
	return reason, nil
}

// launchAll starts each step in order. It returns early with a reason when
// an interrupt arrives or a role dies before it is ready, and with an
// error when a required role cannot be started.
func launchAll(ctx context.Context, sup *supervisor.Supervisor, setup *Setup, interrupts <-chan os.Signal) (supervisor.ExitReason, bool, error) {
	launchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := make(chan struct{})
	stopped := make(chan struct{})
	received := make(chan os.Signal, 1)
	go func() {
		defer close(stopped)
		select {
		case sig := <-interrupts:
			received <- sig
			cancel()
		case <-stop:
		}
	}()
	var once sync.Once
	interrupted := func() (supervisor.ExitReason, bool) {
		once.Do(func() { close(stop) })
		<-stopped
		select {
		case sig := <-received:
			return supervisor.ExitReason{Kind: supervisor.Interrupted, Signal: sig}, true
		default:
			if ctx.Err() != nil {
				return supervisor.ExitReason{Kind: supervisor.Interrupted}, true
			}
			return supervisor.ExitReason{}, false
		}
	}

	for _, step := range setup.Steps {
		if launchCtx.Err() != nil {
			break
		}
		freePort(step, setup.Settings.KillGrace)

		if _, err := sup.Launch(step.Role, step.CommandLine, step.Settings.Dir); err != nil {
			if step.Settings.Required {
				interrupted()
				return supervisor.ExitReason{}, false, &StartupError{Role: step.Role, Err: err}
			}
			slog.ErrorString(fmt.Sprintf("Couldn't start %v: %v", step.Role, err))
			continue
		}

		err := waitUntilReady(launchCtx, sup, step, setup.Settings.ReadyTimeout)
		switch {
		case err == nil:
		case launchCtx.Err() != nil:
		case errors.Is(err, portcheck.ErrExitedBeforeReady) && !step.Settings.Required:
			// The monitor reports the death and tears everything down.
			if reason, ok := interrupted(); ok {
				return reason, true, nil
			}
			return supervisor.ExitReason{}, false, nil
		default:
			interrupted()
			return supervisor.ExitReason{}, false, &StartupError{Role: step.Role, Err: err}
		}
	}

	reason, ok := interrupted()
	return reason, ok, nil
}

func freePort(step Step, grace time.Duration) {
	port := step.Settings.FreePort
	if port <= 0 {
		return
	}
	pids, err := portcheck.FreePort(port, grace)
	for _, pid := range pids {
		slog.Yellow(fmt.Sprintf("Stopped process %d left listening on port %d", pid, port))
	}
	if err != nil {
		slog.Yellow(fmt.Sprintf("Couldn't free port %d for %v: %v", port, step.Role, err))
	}
}

// waitUntilReady waits for the step's ready port, or for its settle delay
// when it has none.
func waitUntilReady(ctx context.Context, sup *supervisor.Supervisor, step Step, timeout time.Duration) error {
	if port := step.Settings.ReadyPort; port > 0 {
		err := portcheck.WaitReady(ctx, port, timeout, func() bool { return sup.Alive(step.Role) })
		if err == nil {
			slog.Trace("%v is listening on port %d", step.Role, port)
		}
		return err
	}

	if step.Settings.SettleDelay <= 0 {
		return nil
	}
	t := time.NewTimer(step.Settings.SettleDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func report(reason supervisor.ExitReason) {
	switch reason.Kind {
	case supervisor.ProcessDied:
		if reason.Err != nil {
			slog.Red(fmt.Sprintf("%v, stopping everything", reason))
		} else {
			slog.Yellow(fmt.Sprintf("%v, stopping everything", reason))
		}
	case supervisor.Interrupted:
		slog.Yellow("Interrupted, stopping everything")
	case supervisor.ConfigChanged:
		slog.Trace("%v", reason)
	}
}
