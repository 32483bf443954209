// Package statuschart shows the state of every launched role while the
// launcher is supervising.
package statuschart

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/burke/ttyutils"
	"github.com/charmbracelet/lipgloss"

	slog "github.com/memestack/devlaunch/go/shinylog"
	"github.com/memestack/devlaunch/go/supervisor"
)

const updateDebounceInterval = 10 * time.Millisecond

type Mode int

const (
	// ModeTTY keeps the chart drawn below the process output.
	ModeTTY Mode = iota
	// ModeStdout prints a status line whenever anything changes.
	ModeStdout
	// ModeSimple prints one line per role state change.
	ModeSimple
)

// DetectMode picks ModeSimple when asked to, ModeTTY when out is a
// terminal, and ModeStdout otherwise.
func DetectMode(out *os.File, simple bool) Mode {
	switch {
	case simple:
		return ModeSimple
	case ttyutils.IsTerminal(out.Fd()):
		return ModeTTY
	default:
		return ModeStdout
	}
}

// Source is anything that can list the managed processes.
// *supervisor.Supervisor is one.
type Source interface {
	Snapshot() []supervisor.ManagedProcess
}

type StatusChart struct {
	L sync.Mutex

	source Source
	mode   Mode
	out    io.Writer
	style  *lipgloss.Renderer
	// color is read once at Start. The chart draws from inside the logger's
	// writer, where asking the logger would deadlock.
	color  bool

	update chan struct{}
	quit   chan struct{}
	done   chan struct{}

	states     map[supervisor.Role]supervisor.State
	drawnLines int
	logged     bool
	termios    *ttyutils.Termios
	prevLogger *slog.ShinyLogger
}

// Start draws the chart to out and redraws it every time something is sent
// on stateChanged. Stop must be called before out is reused.
func Start(source Source, stateChanged <-chan struct{}, out io.Writer, mode Mode) *StatusChart {
	s := &StatusChart{
		source: source,
		mode:   mode,
		out:    out,
		style:  lipgloss.NewRenderer(out),
		color:  slog.ColorEnabled(),
		update: make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		states: make(map[supervisor.Role]supervisor.State),
	}

	if mode == ModeTTY {
		s.ttyStart()
	}

	go s.watchUpdates(stateChanged)
	go s.run()

	s.requestUpdate()
	return s
}

// Writer returns where process output and log lines should go so that
// they do not tear the chart.
func (s *StatusChart) Writer() io.Writer {
	if s.mode == ModeTTY {
		return chartWriter{s}
	}
	return s.out
}

// Stop draws the final state and stops redrawing.
func (s *StatusChart) Stop() {
	select {
	case <-s.quit:
		return
	default:
		close(s.quit)
	}
	<-s.done

	s.redraw()
	if s.mode == ModeTTY {
		s.ttyStop()
	}
}

func (s *StatusChart) run() {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			return
		case <-s.update:
			s.redraw()
		}
	}
}

func (s *StatusChart) redraw() {
	switch s.mode {
	case ModeTTY:
		s.draw()
	case ModeStdout:
		s.logChanges()
	default:
		s.logLines()
	}
}

func (s *StatusChart) requestUpdate() {
	select {
	case s.update <- struct{}{}:
	default:
	}
}

func (s *StatusChart) watchUpdates(updates <-chan struct{}) {
	// Debounce state updates
	for {
		select {
		case <-s.quit:
			return
		case _, ok := <-updates:
			if !ok {
				return
			}
		}

		timeout := time.After(updateDebounceInterval)
		reported := false
		for !reported {
			select {
			case <-updates:
			case <-timeout:
				s.requestUpdate()
				reported = true
			case <-s.quit:
				return
			}
		}
	}
}

// rows returns every role in launch order with its latest snapshot, if
// the role has ever been launched.
func (s *StatusChart) rows() []row {
	byRole := make(map[supervisor.Role]supervisor.ManagedProcess)
	for _, p := range s.source.Snapshot() {
		byRole[p.Role] = p
	}

	rows := make([]row, 0, len(supervisor.Roles))
	for _, role := range supervisor.Roles {
		p, ok := byRole[role]
		rows = append(rows, row{role: role, proc: p, launched: ok})
	}
	return rows
}

type row struct {
	role     supervisor.Role
	proc     supervisor.ManagedProcess
	launched bool
}

func (r row) stateName() string {
	if !r.launched {
		return "waiting"
	}
	switch r.proc.State {
	case supervisor.Running:
		return "running"
	case supervisor.Spawning:
		return "starting"
	case supervisor.Exited:
		return "exited"
	default:
		return "stopped"
	}
}

func (r row) detail() string {
	if !r.launched {
		return ""
	}
	if r.proc.State == supervisor.Exited && r.proc.ExitErr != nil {
		return fmt.Sprintf("pid %d, %v", r.proc.Pid, r.proc.ExitErr)
	}
	return fmt.Sprintf("pid %d", r.proc.Pid)
}

func (s *StatusChart) stateStyle(name string) lipgloss.Style {
	st := s.style.NewStyle()
	if !s.color {
		return st
	}
	switch name {
	case "running":
		return st.Foreground(lipgloss.Color("10"))
	case "starting":
		return st.Foreground(lipgloss.Color("12"))
	case "exited":
		return st.Foreground(lipgloss.Color("9")).Bold(true)
	case "stopped":
		return st.Foreground(lipgloss.Color("8"))
	default:
		return st.Foreground(lipgloss.Color("11"))
	}
}

func (s *StatusChart) renderRow(r row) string {
	name := s.stateStyle(r.stateName()).Width(10).Render(r.stateName())
	line := fmt.Sprintf("%-8s  %s", r.role, name)
	if d := r.detail(); d != "" {
		line += " " + d
	}
	return strings.TrimRight(line, " ")
}
