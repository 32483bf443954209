package statuschart

import (
	"fmt"
	"strings"
)

// logChanges prints one status line covering every role, but only when
// some role changed since the last one.
func (s *StatusChart) logChanges() {
	s.L.Lock()
	defer s.L.Unlock()

	rows := s.rows()
	if !s.recordStates(rows) {
		return
	}

	parts := make([]string, 0, len(rows))
	for _, r := range rows {
		parts = append(parts, fmt.Sprintf("%v[%s]", r.role, s.stateStyle(r.stateName()).Render(r.stateName())))
	}
	fmt.Fprintf(s.out, "Status: %s\n", strings.Join(parts, " "))
}

// logLines prints a line for each role whose state changed.
func (s *StatusChart) logLines() {
	s.L.Lock()
	defer s.L.Unlock()

	for _, r := range s.rows() {
		if !r.launched {
			continue
		}
		if prev, seen := s.states[r.role]; seen && prev == r.proc.State {
			continue
		}
		s.states[r.role] = r.proc.State
		fmt.Fprintf(s.out, "%v: %s (%s)\n", r.role, r.stateName(), r.detail())
	}
}

func (s *StatusChart) recordStates(rows []row) (changed bool) {
	for _, r := range rows {
		if !r.launched {
			continue
		}
		if prev, seen := s.states[r.role]; !seen || prev != r.proc.State {
			s.states[r.role] = r.proc.State
			changed = true
		}
	}
	if !s.logged {
		s.logged = true
		changed = true
	}
	return changed
}
