package process_test

import (
	"bytes"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memestack/devlaunch/go/supervisor/process"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitExited(t *testing.T, p *process.Process) {
	t.Helper()
	select {
	case <-p.Exited():
	case <-time.After(5 * time.Second):
		t.Fatalf("pid %d did not exit", p.Pid())
	}
}

func TestStartRunsInOwnProcessGroup(t *testing.T) {
	p, err := process.Start("sleep 10", process.Options{})
	require.NoError(t, err)
	defer p.SignalGroup(syscall.SIGKILL)

	assert.NotZero(t, p.Pid())
	assert.Equal(t, p.Pid(), p.Pgid())
	assert.NotEqual(t, syscall.Getpgrp(), p.Pgid())
	assert.True(t, p.GroupAlive())
}

func TestSignalGroupAfterExit(t *testing.T) {
	p, err := process.Start("exit 0", process.Options{})
	require.NoError(t, err)
	waitExited(t, p)

	assert.False(t, p.GroupAlive())
	assert.Equal(t, process.ErrProcessGone, p.SignalGroup(syscall.SIGTERM))
}

func TestExitErr(t *testing.T) {
	ok, err := process.Start("true", process.Options{})
	require.NoError(t, err)
	waitExited(t, ok)
	assert.NoError(t, ok.ExitErr())

	failed, err := process.Start("exit 3", process.Options{})
	require.NoError(t, err)
	waitExited(t, failed)
	assert.Error(t, failed.ExitErr())
}

func TestCleanExitWithOutputHeldOpen(t *testing.T) {
	var out syncBuffer
	p, err := process.Start("sleep 3 & echo started", process.Options{Stdout: &out})
	require.NoError(t, err)
	defer p.SignalGroup(syscall.SIGKILL)

	waitExited(t, p)
	assert.NoError(t, p.ExitErr())
	assert.Equal(t, "started\n", out.String())
}

func TestSignalLeaderOnly(t *testing.T) {
	p, err := process.Start("exec sleep 10", process.Options{})
	require.NoError(t, err)

	require.NoError(t, p.Signal(syscall.SIGTERM))
	waitExited(t, p)
	assert.Error(t, p.ExitErr())
	assert.Equal(t, process.ErrProcessGone, p.Signal(syscall.SIGTERM))
}

func TestExitErrBeforeExit(t *testing.T) {
	p, err := process.Start("sleep 10", process.Options{})
	require.NoError(t, err)
	defer p.SignalGroup(syscall.SIGKILL)

	assert.NoError(t, p.ExitErr())
}

func TestOutputAndDir(t *testing.T) {
	dir := t.TempDir()
	var stdout, stderr syncBuffer

	p, err := process.Start("pwd; echo oops >&2", process.Options{
		Dir:    dir,
		Stdout: &stdout,
		Stderr: &stderr,
	})
	require.NoError(t, err)
	waitExited(t, p)

	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	have, err := filepath.EvalSymlinks(strings.TrimSpace(stdout.String()))
	require.NoError(t, err)
	assert.Equal(t, want, have)
	assert.Equal(t, "oops\n", stderr.String())
}

func TestPTYOutput(t *testing.T) {
	var stdout syncBuffer

	p, err := process.Start("test -t 1 && echo terminal", process.Options{
		Stdout: &stdout,
		PTY:    true,
	})
	require.NoError(t, err)
	waitExited(t, p)

	assert.NoError(t, p.ExitErr())
	assert.Contains(t, stdout.String(), "terminal")
	assert.Equal(t, p.Pid(), p.Pgid())
}

func TestStartMissingDir(t *testing.T) {
	_, err := process.Start("true", process.Options{Dir: filepath.Join(t.TempDir(), "nope")})
	assert.Error(t, err)
}
