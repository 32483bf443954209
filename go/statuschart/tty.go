package statuschart

import (
	"fmt"
	"os"
	"strings"

	"github.com/burke/ttyutils"
	"github.com/charmbracelet/lipgloss"

	slog "github.com/memestack/devlaunch/go/shinylog"
)

func (s *StatusChart) ttyStart() {
	s.prevLogger = slog.DefaultLogger()
	w := chartWriter{s}
	slog.SetDefaultLogger(slog.NewShinyLogger(w, w))

	if f, ok := s.out.(*os.File); ok {
		if termios, err := ttyutils.NoEcho(f.Fd()); err == nil {
			s.termios = termios
		}
	}
}

func (s *StatusChart) ttyStop() {
	if f, ok := s.out.(*os.File); ok && s.termios != nil {
		ttyutils.RestoreTerminalState(f.Fd(), s.termios)
	}
	if s.prevLogger != nil {
		slog.SetDefaultLogger(s.prevLogger)
	}
}

func (s *StatusChart) draw() {
	s.L.Lock()
	defer s.L.Unlock()

	s.erase()
	s.drawChart()
}

// erase clears the chart lines printed by the previous drawChart.
func (s *StatusChart) erase() {
	if s.drawnLines > 0 {
		fmt.Fprintf(s.out, "\033[%dA\033[J", s.drawnLines)
		s.drawnLines = 0
	}
}

func (s *StatusChart) drawChart() {
	header := "devlaunch"
	if s.color {
		header = s.style.NewStyle().Underline(true).Render(header)
	}
	lines := []string{header}
	for _, r := range s.rows() {
		lines = append(lines, s.renderRow(r))
	}

	width := s.width()
	for _, line := range lines {
		fmt.Fprint(s.out, line+"\033[K\n")
		s.drawnLines += wrappedLines(lipgloss.Width(line), width)
	}
}

func (s *StatusChart) width() int {
	f, ok := s.out.(*os.File)
	if !ok {
		return 0
	}
	ts, err := ttyutils.Winsize(f)
	if err != nil {
		// This can happen when the output is redirected to a device
		// that blows up on the ioctl Winsize uses.
		return 0
	}
	return int(ts.Columns)
}

// wrappedLines is how many terminal lines a line of n visible cells takes.
func wrappedLines(n, width int) int {
	if width <= 0 || n == 0 {
		return 1
	}
	return (n + width - 1) / width
}

// chartWriter prints output above the chart and redraws the chart below it.
type chartWriter struct {
	s *StatusChart
}

func (w chartWriter) Write(p []byte) (int, error) {
	s := w.s
	s.L.Lock()
	defer s.L.Unlock()

	s.erase()
	out := strings.Replace(string(p), "\n", "\033[K\n", -1)
	if _, err := fmt.Fprint(s.out, out); err != nil {
		return 0, err
	}
	if !strings.HasSuffix(out, "\n") {
		fmt.Fprint(s.out, "\n")
	}
	s.drawChart()
	return len(p), nil
}
