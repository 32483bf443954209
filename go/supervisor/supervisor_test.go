package supervisor_test

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memestack/devlaunch/go/supervisor"
)

const interval = 20 * time.Millisecond

func TestLaunchAllRoles(t *testing.T) {
	spawner := newFakeSpawner()
	sup := supervisor.New(spawner)

	require.NoError(t, launchAll(sup))

	procs := sup.Snapshot()
	require.Len(t, procs, 3)

	groups := make(map[int]bool)
	for i, p := range procs {
		assert.Equal(t, supervisor.Roles[i], p.Role)
		assert.Equal(t, supervisor.Running, p.State)
		assert.Equal(t, "run "+p.Role.String(), p.CommandLine)
		assert.False(t, p.StartedAt.IsZero())
		groups[p.Pgid] = true
	}
	assert.Len(t, groups, 3)
}

func TestLaunchRejectsOccupiedRole(t *testing.T) {
	sup := supervisor.New(newFakeSpawner())

	_, err := sup.Launch(supervisor.Backend, "mvn exec:java", "")
	require.NoError(t, err)

	_, err = sup.Launch(supervisor.Backend, "mvn exec:java", "")
	assert.True(t, errors.Is(err, supervisor.ErrRoleOccupied))
}

func TestLaunchRejectsDuplicateGroup(t *testing.T) {
	spawner := newFakeSpawner()
	spawner.samePid = true
	sup := supervisor.New(spawner)

	_, err := sup.Launch(supervisor.Backend, "mvn exec:java", "")
	require.NoError(t, err)

	_, err = sup.Launch(supervisor.Frontend, "node proxy.js", "")
	assert.True(t, errors.Is(err, supervisor.ErrDuplicateGroup))

	_, ok := sup.Process(supervisor.Frontend)
	assert.False(t, ok)

	// The rejected process is stopped without touching the shared group.
	assert.Equal(t, []syscall.Signal{syscall.SIGTERM}, spawner.handle(supervisor.Frontend).LeaderSignals())
	assert.Empty(t, spawner.handle(supervisor.Backend).Signals())
	assert.True(t, sup.Alive(supervisor.Backend))
}

func TestLaunchSpawnErrorLeavesRoleEmpty(t *testing.T) {
	spawner := newFakeSpawner()
	spawner.fail[supervisor.Frontend] = syscall.EADDRINUSE
	sup := supervisor.New(spawner)

	_, err := sup.Launch(supervisor.Frontend, "node proxy.js", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, syscall.EADDRINUSE))

	_, ok := sup.Process(supervisor.Frontend)
	assert.False(t, ok)
	assert.Empty(t, sup.Snapshot())
}

func TestLaunchAfterReap(t *testing.T) {
	spawner := newFakeSpawner()
	sup := supervisor.New(spawner, supervisor.WithKillGrace(0))

	first, err := sup.Launch(supervisor.Shell, "npx electron app.js", "")
	require.NoError(t, err)
	sup.KillAll()

	second, err := sup.Launch(supervisor.Shell, "npx electron app.js", "")
	require.NoError(t, err)
	assert.NotEqual(t, first.Pgid, second.Pgid)
	assert.Equal(t, supervisor.Running, second.State)
}

func TestStateChangesNotify(t *testing.T) {
	changes := make(chan struct{}, 1)
	sup := supervisor.New(newFakeSpawner(), supervisor.WithStateChanges(changes))

	_, err := sup.Launch(supervisor.Backend, "mvn exec:java", "")
	require.NoError(t, err)

	select {
	case <-changes:
	default:
		t.Fatal("expected a state change notification")
	}
}

func TestAlive(t *testing.T) {
	spawner := newFakeSpawner()
	sup := supervisor.New(spawner)

	assert.False(t, sup.Alive(supervisor.Backend))

	_, err := sup.Launch(supervisor.Backend, "mvn exec:java", "")
	require.NoError(t, err)
	assert.True(t, sup.Alive(supervisor.Backend))

	spawner.handle(supervisor.Backend).exit(nil)
	assert.False(t, sup.Alive(supervisor.Backend))
}

func TestMonitorDetectsExit(t *testing.T) {
	for name, exitErr := range map[string]error{
		"success": nil,
		"failure": errors.New("exit status 1"),
	} {
		t.Run(name, func(t *testing.T) {
			spawner := newFakeSpawner()
			sup := supervisor.New(spawner)
			require.NoError(t, launchAll(sup))

			exitedAt := make(chan time.Time, 1)
			go func() {
				time.Sleep(3 * interval)
				exitedAt <- time.Now()
				spawner.handle(supervisor.Frontend).exit(exitErr)
			}()

			reason := sup.Monitor(context.Background(), interval, nil, nil)
			detected := time.Now()

			assert.Equal(t, supervisor.ProcessDied, reason.Kind)
			assert.Equal(t, supervisor.Frontend, reason.Role)
			assert.Equal(t, exitErr, reason.Err)
			assert.Less(t, int64(detected.Sub(<-exitedAt)), int64(interval+50*time.Millisecond))

			p, ok := sup.Process(supervisor.Frontend)
			require.True(t, ok)
			assert.Equal(t, supervisor.Exited, p.State)
		})
	}
}

func TestMonitorInterrupted(t *testing.T) {
	sup := supervisor.New(newFakeSpawner())
	require.NoError(t, launchAll(sup))

	interrupts := make(chan os.Signal, 1)
	interrupts <- os.Interrupt

	reason := sup.Monitor(context.Background(), interval, interrupts, nil)
	assert.Equal(t, supervisor.Interrupted, reason.Kind)
	assert.Equal(t, os.Interrupt, reason.Signal)
}

func TestMonitorContextCancelled(t *testing.T) {
	sup := supervisor.New(newFakeSpawner())
	require.NoError(t, launchAll(sup))

	ctx, cancel := context.WithTimeout(context.Background(), 3*interval)
	defer cancel()

	reason := sup.Monitor(ctx, interval, nil, nil)
	assert.Equal(t, supervisor.Interrupted, reason.Kind)
	assert.Nil(t, reason.Signal)
}

func TestMonitorConfigChanged(t *testing.T) {
	sup := supervisor.New(newFakeSpawner())
	require.NoError(t, launchAll(sup))

	changes := make(chan []string, 1)
	changes <- []string{".vscode/launch.json"}

	reason := sup.Monitor(context.Background(), interval, nil, changes)
	assert.Equal(t, supervisor.ConfigChanged, reason.Kind)
	assert.Equal(t, []string{".vscode/launch.json"}, reason.Files)
	assert.Contains(t, reason.String(), "launch.json")
}

func TestKillAllAfterDeath(t *testing.T) {
	spawner := newFakeSpawner()
	sup := supervisor.New(spawner)
	require.NoError(t, launchAll(sup))

	spawner.handle(supervisor.Backend).exit(errors.New("exit status 1"))
	reason := sup.Monitor(context.Background(), interval, nil, nil)
	require.Equal(t, supervisor.Backend, reason.Role)

	sup.KillAll()

	assert.Empty(t, spawner.handle(supervisor.Backend).Signals())
	assert.Equal(t, []syscall.Signal{syscall.SIGTERM}, spawner.handle(supervisor.Frontend).Signals())
	assert.Equal(t, []syscall.Signal{syscall.SIGTERM}, spawner.handle(supervisor.Shell).Signals())

	for _, p := range sup.Snapshot() {
		assert.Equal(t, supervisor.Reaped, p.State, p.Role.String())
		assert.False(t, spawner.handle(p.Role).GroupAlive(), p.Role.String())
	}
}

func TestKillAllIdempotent(t *testing.T) {
	spawner := newFakeSpawner()
	sup := supervisor.New(spawner)
	require.NoError(t, launchAll(sup))

	sup.KillAll()
	before := sup.Snapshot()
	sup.KillAll()

	assert.Equal(t, before, sup.Snapshot())
	for _, role := range supervisor.Roles {
		assert.Len(t, spawner.handle(role).Signals(), 1, role.String())
	}
}

func TestKillAllEscalatesToSIGKILL(t *testing.T) {
	spawner := newFakeSpawner()
	sup := supervisor.New(spawner, supervisor.WithKillGrace(50*time.Millisecond))

	_, err := sup.Launch(supervisor.Backend, "mvn exec:java", "")
	require.NoError(t, err)
	spawner.handle(supervisor.Backend).ignoreTerm = true

	sup.KillAll()

	h := spawner.handle(supervisor.Backend)
	assert.Equal(t, []syscall.Signal{syscall.SIGTERM, syscall.SIGKILL}, h.Signals())
	assert.False(t, h.GroupAlive())
}

func TestKillAllWithoutGraceSendsOnlySIGTERM(t *testing.T) {
	spawner := newFakeSpawner()
	sup := supervisor.New(spawner, supervisor.WithKillGrace(0))

	_, err := sup.Launch(supervisor.Backend, "mvn exec:java", "")
	require.NoError(t, err)
	spawner.handle(supervisor.Backend).ignoreTerm = true

	sup.KillAll()

	assert.Equal(t, []syscall.Signal{syscall.SIGTERM}, spawner.handle(supervisor.Backend).Signals())
	p, _ := sup.Process(supervisor.Backend)
	assert.Equal(t, supervisor.Reaped, p.State)
}

func TestKillAllProcessVanishesDuringSignal(t *testing.T) {
	spawner := newFakeSpawner()
	sup := supervisor.New(spawner)

	_, err := sup.Launch(supervisor.Frontend, "node proxy.js", "")
	require.NoError(t, err)
	spawner.handle(supervisor.Frontend).vanish = true

	sup.KillAll()

	p, _ := sup.Process(supervisor.Frontend)
	assert.Equal(t, supervisor.Reaped, p.State)
	assert.Empty(t, spawner.handle(supervisor.Frontend).Signals())
}

func TestKillAllProcessAlreadyExited(t *testing.T) {
	spawner := newFakeSpawner()
	sup := supervisor.New(spawner)

	_, err := sup.Launch(supervisor.Shell, "npx electron app.js", "")
	require.NoError(t, err)
	spawner.handle(supervisor.Shell).exit(nil)

	// Teardown before the monitor noticed the exit.
	sup.KillAll()

	p, _ := sup.Process(supervisor.Shell)
	assert.Equal(t, supervisor.Reaped, p.State)
	assert.Empty(t, spawner.handle(supervisor.Shell).Signals())
}

func TestBackendOnlyScenario(t *testing.T) {
	spawner := newFakeSpawner()
	sup := supervisor.New(spawner)

	_, err := sup.Launch(supervisor.Backend, "mvn exec:java", "")
	require.NoError(t, err)

	go func() {
		time.Sleep(2 * interval)
		spawner.handle(supervisor.Backend).exit(errors.New("signal: killed"))
	}()

	reason := sup.Monitor(context.Background(), interval, nil, nil)
	assert.Equal(t, supervisor.ProcessDied, reason.Kind)
	assert.Equal(t, supervisor.Backend, reason.Role)

	sup.KillAll()

	assert.Nil(t, spawner.handle(supervisor.Frontend))
	assert.Nil(t, spawner.handle(supervisor.Shell))
	_, ok := sup.Process(supervisor.Frontend)
	assert.False(t, ok)
	_, ok = sup.Process(supervisor.Shell)
	assert.False(t, ok)

	p, _ := sup.Process(supervisor.Backend)
	assert.Equal(t, supervisor.Reaped, p.State)
}

func TestExitReasonString(t *testing.T) {
	assert.Equal(t, "backend exited", supervisor.ExitReason{Kind: supervisor.ProcessDied, Role: supervisor.Backend}.String())
	assert.Equal(t, "interrupted by interrupt", supervisor.ExitReason{Kind: supervisor.Interrupted, Signal: os.Interrupt}.String())
	assert.Equal(t, "interrupted", supervisor.ExitReason{Kind: supervisor.Interrupted}.String())
}
