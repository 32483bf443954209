// Package portcheck probes local TCP ports: whether something is listening,
// who owns the listener, and waiting for a port to come up.
package portcheck

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	slog "github.com/memestack/devlaunch/go/shinylog"
)

const (
	dialTimeout   = 200 * time.Millisecond
	probeInterval = 100 * time.Millisecond
)

// ErrExitedBeforeReady is returned by WaitReady when the process meant to
// bind the port went away first.
var ErrExitedBeforeReady = errors.New("process exited before its port was ready")

// StartupTimeoutError is returned by WaitReady when the port did not accept
// a connection in time. The caller decides whether that is fatal.
type StartupTimeoutError struct {
	Port    int
	Timeout time.Duration
}

func (e *StartupTimeoutError) Error() string {
	return fmt.Sprintf("port %d was not ready after %v", e.Port, e.Timeout)
}

func address(port int) string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
}

// Listening reports whether a TCP connection to port on the loopback
// interface succeeds.
func Listening(port int) bool {
	conn, err := net.DialTimeout("tcp", address(port), dialTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// WaitReady polls port until it accepts a connection, timeout elapses, or
// ctx is done. alive is consulted between probes; when it reports false the
// wait is abandoned since the process meant to bind the port is gone.
func WaitReady(ctx context.Context, port int, timeout time.Duration, alive func() bool) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()

	for {
		if Listening(port) {
			return nil
		}
		if alive != nil && !alive() {
			return fmt.Errorf("port %d: %w", port, ErrExitedBeforeReady)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return &StartupTimeoutError{Port: port, Timeout: timeout}
		case <-ticker.C:
		}
	}
}

// FreePort stops every process listening on port. It is best-effort
// cleanup of leftovers from a previous run: owners get SIGTERM, and those
// still holding the port after grace get SIGKILL. It reports the pids it
// signaled and returns an error when the port is still taken afterwards.
// Nothing listening is not an error.
func FreePort(port int, grace time.Duration) ([]int, error) {
	if !Listening(port) {
		return nil, nil
	}

	signaled, err := signalOwners(port, unix.SIGTERM)
	if err != nil {
		return signaled, err
	}
	if waitReleased(port, grace) {
		return signaled, nil
	}

	killed, err := signalOwners(port, unix.SIGKILL)
	signaled = appendMissing(signaled, killed)
	if err != nil {
		return signaled, err
	}
	if !waitReleased(port, releaseAfterKill) {
		return signaled, fmt.Errorf("port %d is still in use after SIGKILL", port)
	}
	return signaled, nil
}

// releaseAfterKill bounds the wait for the kernel to drop a listener
// whose owner got SIGKILL.
const releaseAfterKill = time.Second

func signalOwners(port int, sig unix.Signal) ([]int, error) {
	pids, err := Owners(port)
	if err != nil {
		return nil, fmt.Errorf("looking up owner of port %d: %w", port, err)
	}
	if len(pids) == 0 {
		if !Listening(port) {
			return nil, nil
		}
		return nil, fmt.Errorf("port %d is in use but its owner could not be found", port)
	}

	var firstErr error
	signaled := make([]int, 0, len(pids))
	for _, pid := range pids {
		err := unix.Kill(pid, sig)
		switch {
		case err == nil:
			slog.Trace("sent %v to pid %d holding port %d", sig, pid, port)
			signaled = append(signaled, pid)
		case err == unix.ESRCH:
			slog.Trace("pid %d holding port %d is already gone", pid, port)
		case firstErr == nil:
			firstErr = fmt.Errorf("killing pid %d on port %d: %w", pid, port, err)
		}
	}
	return signaled, firstErr
}

// waitReleased polls until nothing listens on port or timeout elapses.
func waitReleased(port int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if !Listening(port) {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(probeInterval)
	}
}

func appendMissing(pids, more []int) []int {
	for _, pid := range more {
		found := false
		for _, p := range pids {
			if p == pid {
				found = true
				break
			}
		}
		if !found {
			pids = append(pids, pid)
		}
	}
	return pids
}
