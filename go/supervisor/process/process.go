package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/kr/pty"
	"golang.org/x/sys/unix"

	slog "github.com/memestack/devlaunch/go/shinylog"
)

const outputDrainTimeout = 500 * time.Millisecond

// ErrProcessGone is returned by SignalGroup when no process in the group
// exists any more. Callers racing a process's own exit should treat it as
// success.
var ErrProcessGone = errors.New("process group no longer exists")

// Options controls how Start runs a command line.
type Options struct {
	// Dir is the working directory; empty means the current one.
	Dir string
	// Stdout and Stderr receive the process output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer
	// PTY runs the process on a pseudo-terminal so that tools which only
	// color their output on a terminal keep doing so. Stdout and stderr
	// are then merged into Stdout.
	PTY bool
}

// Process is a child started by Start. It leads its own process group, so
// signals sent with SignalGroup also reach anything it spawned.
type Process struct {
	cmd  *exec.Cmd
	pid  int
	pgid int

	exited  chan struct{}
	waitErr error

	pty     *os.File
	copying sync.WaitGroup
}

// Start runs commandLine with /bin/sh -c. The shell and everything it
// starts are placed in a new process group whose id is the shell's pid.
func Start(commandLine string, opts Options) (*Process, error) {
	cmd := exec.Command("/bin/sh", "-c", commandLine)
	cmd.Dir = opts.Dir
	// Grandchildren inherit the output pipes; don't let them keep Wait
	// from reporting the exit.
	cmd.WaitDelay = outputDrainTimeout

	p := &Process{
		cmd:    cmd,
		exited: make(chan struct{}),
	}

	if opts.PTY {
		// pty.Start makes the child a session leader, which also makes it
		// the leader of a new process group. Setpgid on top of that fails
		// with EPERM.
		f, err := pty.Start(cmd)
		if err != nil {
			return nil, err
		}
		p.pty = f
		out := opts.Stdout
		if out == nil {
			out = io.Discard
		}
		p.copying.Add(1)
		go func() {
			defer p.copying.Done()
			// Reading the master returns EIO once the child side closes.
			io.Copy(out, f)
		}()
	} else {
		cmd.Stdout = opts.Stdout
		cmd.Stderr = opts.Stderr
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		if err := cmd.Start(); err != nil {
			return nil, err
		}
	}

	p.pid = cmd.Process.Pid
	pgid, err := unix.Getpgid(p.pid)
	if err != nil {
		// The child may already have exited and been reaped by nobody yet;
		// with Setpgid or Setsid its group id is its pid.
		pgid = p.pid
	}
	p.pgid = pgid

	go p.wait()

	return p, nil
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	if errors.Is(err, exec.ErrWaitDelay) && p.cmd.ProcessState != nil && p.cmd.ProcessState.Success() {
		// Something the command started still holds the output open; the
		// command itself exited cleanly.
		err = nil
	}
	if p.pty != nil {
		drained := make(chan struct{})
		go func() {
			p.copying.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-time.After(outputDrainTimeout):
		}
		p.pty.Close()
	}
	p.waitErr = err
	slog.Trace("pid %d exited: %v", p.pid, describeExit(err))
	close(p.exited)
}

// Pid returns the process ID of the shell running the command line.
func (p *Process) Pid() int { return p.pid }

// Pgid returns the id of the process group the command runs in.
func (p *Process) Pgid() int { return p.pgid }

// Exited returns a channel that is closed once the process has exited and
// been reaped.
func (p *Process) Exited() <-chan struct{} { return p.exited }

// ExitErr returns the error from waiting on the process: nil for a zero
// exit status. It is only meaningful after Exited is closed.
func (p *Process) ExitErr() error {
	select {
	case <-p.exited:
		return p.waitErr
	default:
		return nil
	}
}

// SignalGroup sends sig to every process in the group.
func (p *Process) SignalGroup(sig syscall.Signal) error {
	if err := unix.Kill(-p.pgid, sig); err != nil {
		if err == unix.ESRCH {
			return ErrProcessGone
		}
		return fmt.Errorf("signaling process group %d: %w", p.pgid, err)
	}
	return nil
}

// Signal sends sig to the process alone, not its group.
func (p *Process) Signal(sig syscall.Signal) error {
	if err := unix.Kill(p.pid, sig); err != nil {
		if err == unix.ESRCH {
			return ErrProcessGone
		}
		return fmt.Errorf("signaling pid %d: %w", p.pid, err)
	}
	return nil
}

// GroupAlive reports whether any process in the group still exists. The
// leader may be gone while its children linger.
func (p *Process) GroupAlive() bool {
	err := unix.Kill(-p.pgid, 0)
	return err == nil || err == unix.EPERM
}

func describeExit(err error) string {
	if err == nil {
		return "exit status 0"
	}
	return err.Error()
}
