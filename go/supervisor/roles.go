package supervisor

import "fmt"

// Role identifies one of the launched processes.
type Role int

const (
	Backend Role = iota
	Frontend
	Shell
)

// Roles lists every role in launch order.
var Roles = []Role{Backend, Frontend, Shell}

func (r Role) String() string {
	switch r {
	case Backend:
		return "backend"
	case Frontend:
		return "frontend"
	case Shell:
		return "shell"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// State is where a managed process is in its lifecycle.
//
//	Spawning -> Running -> Exited -> Reaped
//	                  \______________/
//
// Running goes straight to Reaped when teardown signals a live process.
type State int

const (
	Spawning State = iota
	Running
	Exited
	Reaped
)

func (s State) String() string {
	switch s {
	case Spawning:
		return "spawning"
	case Running:
		return "running"
	case Exited:
		return "exited"
	case Reaped:
		return "reaped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
