package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/memestack/devlaunch/go/config"
	"github.com/memestack/devlaunch/go/launcher"
	slog "github.com/memestack/devlaunch/go/shinylog"
	"github.com/memestack/devlaunch/go/statuschart"
	"github.com/memestack/devlaunch/go/zerror"
)

// Set with -ldflags "-X main.version=..."
var version = "dev"

type flags struct {
	config       string
	settings     string
	profile      string
	logFile      string
	noColor      bool
	watch        bool
	simple       bool
	pty          bool
	noChart      bool
	pollInterval time.Duration
}

func (f *flags) options() launcher.Options {
	return launcher.Options{
		ConfigPath:   f.config,
		SettingsPath: f.settings,
		Profile:      f.profile,
		PollInterval: f.pollInterval,
		Watch:        f.watch,
		PTY:          f.pty,
		NoChart:      f.noChart,
		ChartMode:    statuschart.DetectMode(os.Stdout, f.simple),
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(zerror.Report(err))
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:   "devlaunch",
		Short: "Start the backend, frontend and app shell together",
		Long: `devlaunch reads the first launch profile from .vscode/launch.json, starts
the backend with its main class and arguments, then the frontend proxy, then
the Electron shell. When any of them exits, or on Ctrl-C, every process and
everything it started is stopped.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return f.setupLogging()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return launcher.Run(context.Background(), f.options())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.config, "config", "", "launch configuration file (default from settings, else "+config.ConfigFile+")")
	pf.StringVar(&f.settings, "settings", config.SettingsFile, "launcher settings file")
	pf.StringVar(&f.profile, "profile", "", "launch profile name (default the first one)")
	pf.BoolVar(&f.noColor, "no-color", false, "disable colored output")
	pf.StringVar(&f.logFile, "log", "", "append a trace of process handling to `file`")

	root.Flags().BoolVar(&f.watch, "watch", false, "relaunch everything when the launch or settings file changes")
	root.Flags().BoolVar(&f.simple, "simple", false, "print status changes line by line instead of drawing a chart")
	root.Flags().BoolVar(&f.noChart, "no-status", false, "don't show process status at all")
	root.Flags().BoolVar(&f.pty, "pty", false, "run each process on its own pseudo-terminal")
	root.Flags().DurationVar(&f.pollInterval, "poll-interval", 0, "how often to check the processes (default from settings, 1s)")

	root.AddCommand(newCheckCmd(f), newVersionCmd())
	return root
}

func (f *flags) setupLogging() error {
	if f.noColor {
		slog.DisableColor()
	}
	if f.logFile != "" {
		tracefile, err := os.OpenFile(f.logFile, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0666)
		if err != nil {
			return fmt.Errorf("could not open trace file %s: %w", f.logFile, err)
		}
		slog.SetTraceLogger(slog.NewTraceLogger(tracefile))
	}
	return nil
}

func newCheckCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Print what would be launched without starting anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			setup, err := launcher.Load(f.options())
			if err != nil {
				return err
			}
			printSetup(cmd.OutOrStdout(), setup)
			return nil
		},
	}
}

func printSetup(out io.Writer, setup *launcher.Setup) {
	p := setup.Profile
	fmt.Fprintf(out, "profile   %s (%s)\n", p.Name, setup.Settings.LaunchConfig)
	fmt.Fprintf(out, "main      %s %s %s\n", p.MainClass, p.Args[0], p.Args[1])
	for _, step := range setup.Steps {
		fmt.Fprintf(out, "%-8s  %s\n", step.Role, step.CommandLine)
		if dir := step.Settings.Dir; dir != "" {
			fmt.Fprintf(out, "          in %s\n", dir)
		}
		if port := step.Settings.FreePort; port > 0 {
			fmt.Fprintf(out, "          frees port %d\n", port)
		}
		if port := step.Settings.ReadyPort; port > 0 {
			fmt.Fprintf(out, "          ready when port %d accepts connections\n", port)
		} else if d := step.Settings.SettleDelay; d > 0 {
			fmt.Fprintf(out, "          ready after %v\n", d)
		}
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "devlaunch version "+version)
		},
	}
}
