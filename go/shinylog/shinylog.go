package shinylog

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

type ShinyLogger struct {
	mu             sync.Mutex
	happyLogger    *log.Logger
	sadLogger      *log.Logger
	suppressOutput bool
	disableColor   bool
}

func NewShinyLogger(out, err io.Writer) *ShinyLogger {
	return &ShinyLogger{
		happyLogger: log.New(out, "", 0),
		sadLogger:   log.New(err, "", 0),
	}
}

const (
	red         = "\x1b[31m"
	green       = "\x1b[32m"
	brightgreen = "\x1b[1;32m"
	yellow      = "\x1b[33m"
	blue        = "\x1b[34m"
	magenta     = "\x1b[35m"
	cyan        = "\x1b[36m"
	dim         = "\x1b[2m"
	reset       = "\x1b[0m"
)

var colorCodes = []struct{ tag, code string }{
	{"{red}", red},
	{"{green}", green},
	{"{brightgreen}", brightgreen},
	{"{yellow}", yellow},
	{"{blue}", blue},
	{"{magenta}", magenta},
	{"{cyan}", cyan},
	{"{dim}", dim},
	{"{reset}", reset},
}

var (
	defaultMu     sync.RWMutex
	defaultLogger = NewShinyLogger(os.Stdout, os.Stderr)

	traceMu     sync.RWMutex
	traceLogger *log.Logger
)

func DefaultLogger() *ShinyLogger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefaultLogger replaces the logger used by the package-level helpers.
// The color setting of the previous default is carried over.
func SetDefaultLogger(l *ShinyLogger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger != nil && defaultLogger.colorDisabled() {
		l.DisableColor()
	}
	defaultLogger = l
}

func Suppress()                           { DefaultLogger().Suppress() }
func DisableColor()                       { DefaultLogger().DisableColor() }
func ColorEnabled() bool                  { return !DefaultLogger().colorDisabled() }
func Colorized(msg string) (printed bool) { return DefaultLogger().colorized(msg, false, true) }
func Error(err error) bool                { return DefaultLogger().Error(err) }
func FatalError(err error)                { DefaultLogger().FatalError(err) }
func FatalErrorString(msg string)         { DefaultLogger().FatalErrorString(msg) }
func ErrorString(msg string) bool         { return DefaultLogger().ErrorString(msg) }
func Red(msg string) bool                 { return DefaultLogger().Red(msg) }
func Green(msg string) bool               { return DefaultLogger().Green(msg) }
func Yellow(msg string) bool              { return DefaultLogger().Yellow(msg) }
func Blue(msg string) bool                { return DefaultLogger().Blue(msg) }
func Magenta(msg string) bool             { return DefaultLogger().Magenta(msg) }

// NewTraceLogger returns a logger suitable for SetTraceLogger.
func NewTraceLogger(w io.Writer) *log.Logger {
	return log.New(w, "[devlaunch] ", log.Ldate|log.Lmicroseconds)
}

func SetTraceLogger(l *log.Logger) {
	traceMu.Lock()
	defer traceMu.Unlock()
	traceLogger = l
}

func TraceEnabled() bool {
	traceMu.RLock()
	defer traceMu.RUnlock()
	return traceLogger != nil
}

// Trace writes to the trace logger, if one is configured. It never
// writes to the terminal.
func Trace(format string, args ...interface{}) {
	traceMu.RLock()
	defer traceMu.RUnlock()
	if traceLogger == nil {
		return
	}
	traceLogger.Output(2, fmt.Sprintf(format, args...))
}

func (l *ShinyLogger) Suppress() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.suppressOutput = true
}

func (l *ShinyLogger) DisableColor() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disableColor = true
}

func (l *ShinyLogger) colorDisabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.disableColor
}

func (l *ShinyLogger) Colorized(msg string) (printed bool) {
	return l.colorized(msg, false, true)
}

// ColorizedSansNl is Colorized without the trailing newline, for output that
// is assembled piecewise (like a status line).
func (l *ShinyLogger) ColorizedSansNl(msg string) (printed bool) {
	return l.colorized(msg, false, false)
}

func (l *ShinyLogger) FatalErrorString(msg string) {
	l.colorized("{red}"+msg, true, true)
	os.Exit(1)
}

func (l *ShinyLogger) FatalError(err error) {
	l.colorized("{red}"+err.Error(), true, true)
	os.Exit(1)
}

func (l *ShinyLogger) Error(err error) bool {
	return l.colorized("{red}"+err.Error(), true, true)
}

func (l *ShinyLogger) ErrorString(msg string) bool {
	return l.colorized("{red}"+msg, true, true)
}

func (l *ShinyLogger) Red(msg string) bool {
	return l.colorized("{red}"+msg, false, true)
}

func (l *ShinyLogger) Green(msg string) bool {
	return l.colorized("{green}"+msg, false, true)
}

func (l *ShinyLogger) Yellow(msg string) bool {
	return l.colorized("{yellow}"+msg, false, true)
}

func (l *ShinyLogger) Blue(msg string) bool {
	return l.colorized("{blue}"+msg, false, true)
}

func (l *ShinyLogger) Magenta(msg string) bool {
	return l.colorized("{magenta}"+msg, false, true)
}

// FormatColors expands the {color} tags in msg, or strips them when color
// is disabled.
func (l *ShinyLogger) FormatColors(msg string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.formatColors(msg)
}

func (l *ShinyLogger) formatColors(msg string) string {
	for _, c := range colorCodes {
		if l.disableColor {
			msg = strings.Replace(msg, c.tag, "", -1)
		} else {
			msg = strings.Replace(msg, c.tag, c.code, -1)
		}
	}
	return msg
}

func (l *ShinyLogger) colorized(msg string, isError, newline bool) (printed bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.suppressOutput {
		return false
	}

	msg = l.formatColors(msg)
	if !l.disableColor {
		msg += reset
	}

	target := l.happyLogger
	if isError {
		target = l.sadLogger
	}
	if newline {
		target.Print(msg)
	} else {
		io.WriteString(target.Writer(), msg)
	}
	return true
}
