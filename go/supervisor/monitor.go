package supervisor

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	slog "github.com/memestack/devlaunch/go/shinylog"
)

type ExitKind int

const (
	// ProcessDied means a managed process exited, whatever its status.
	ProcessDied ExitKind = iota
	// Interrupted means the operator asked us to stop.
	Interrupted
	// ConfigChanged means a watched configuration file changed.
	ConfigChanged
)

func (k ExitKind) String() string {
	switch k {
	case ProcessDied:
		return "process died"
	case Interrupted:
		return "interrupted"
	case ConfigChanged:
		return "config changed"
	default:
		return fmt.Sprintf("exitkind(%d)", int(k))
	}
}

// ExitReason explains why Monitor returned. Role and Err are set for
// ProcessDied, Signal for Interrupted by a signal, Files for ConfigChanged.
type ExitReason struct {
	Kind   ExitKind
	Role   Role
	Err    error
	Signal os.Signal
	Files  []string
}

func (r ExitReason) String() string {
	switch r.Kind {
	case ProcessDied:
		if r.Err != nil {
			return fmt.Sprintf("%v exited: %v", r.Role, r.Err)
		}
		return fmt.Sprintf("%v exited", r.Role)
	case Interrupted:
		if r.Signal != nil {
			return fmt.Sprintf("interrupted by %v", r.Signal)
		}
		return "interrupted"
	case ConfigChanged:
		return "changed: " + strings.Join(r.Files, ", ")
	default:
		return r.Kind.String()
	}
}

// Monitor checks every running process each interval until one has exited,
// a signal arrives on interrupts, or a batch of changed files arrives on
// changes. Cancelling ctx counts as an interrupt. Nil channels are never
// ready, and a closed changes channel is ignored from then on.
func (s *Supervisor) Monitor(ctx context.Context, interval time.Duration, interrupts <-chan os.Signal, changes <-chan []string) ExitReason {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if reason, died := s.poll(); died {
			slog.Trace("monitor: %v", reason)
			return reason
		}

		select {
		case <-ctx.Done():
			return ExitReason{Kind: Interrupted}
		case sig := <-interrupts:
			slog.Trace("monitor: received %v", sig)
			return ExitReason{Kind: Interrupted, Signal: sig}
		case files, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			slog.Trace("monitor: %d files changed", len(files))
			return ExitReason{Kind: ConfigChanged, Files: files}
		case <-ticker.C:
		}
	}
}

// poll marks every running process that has exited and reports the first
// one in launch order.
func (s *Supervisor) poll() (ExitReason, bool) {
	var (
		reason ExitReason
		died   bool
	)
	for _, role := range Roles {
		s.mu.Lock()
		sl, ok := s.slots[role]
		if !ok || sl.handle == nil || sl.info.State != Running {
			s.mu.Unlock()
			continue
		}
		h := sl.handle
		s.mu.Unlock()

		if !isClosed(h.Exited()) {
			continue
		}
		s.setState(sl, Exited)
		if !died {
			reason = ExitReason{Kind: ProcessDied, Role: role, Err: h.ExitErr()}
			died = true
		}
	}
	return reason, died
}
