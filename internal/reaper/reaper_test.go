package reaper

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-weaver/kernel/internal/cgroup"
	"github.com/nexus-weaver/kernel/internal/registry"
	"github.com/nexus-weaver/kernel/internal/workload"
)

func fakeRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "cgroup.controllers"), []byte("cpu io memory pids\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "cgroup.subtree_control"), nil, 0o644))
	return root
}

func newTestReaper(t *testing.T) (*registry.Registry, *cgroup.Binding, string) {
	t.Helper()
	reg := registry.New()
	root := fakeRoot(t)
	b, err := cgroup.Init(root, "nw", nil)
	require.NoError(t, err)
	return reg, b, root
}

// startBareChild forks a real child without going through the lifecycle
// engine, simulating what the engine would have already done by the time
// the reaper's tick runs.
func startBareChild(t *testing.T, reg *registry.Registry, cg *cgroup.Binding, root string, id workload.ID, args ...string) *workload.Record {
	t.Helper()

	require.NoError(t, cg.Create(id))

	// a real cgroupfs pre-populates cgroup.procs on mkdir; the fake root
	// only has plain files, so write it by hand before Attach.
	leaf := filepath.Join(root, "nw", string(id), "cgroup.procs")
	require.NoError(t, os.WriteFile(leaf, nil, 0o644))

	cmd := exec.Command(args[0], args[1:]...)
	require.NoError(t, cmd.Start())

	rec := workload.NewRecord(workload.Spec{ID: id, Command: args[0]})
	rec.OSPid = cmd.Process.Pid
	rec.State = workload.StatusRunning
	require.NoError(t, reg.Insert(rec))
	require.NoError(t, cg.Attach(id, rec.OSPid))

	return rec
}

func TestReapExitedProcessMarksTerminated(t *testing.T) {
	t.Parallel()

	reg, cg, root := newTestReaper(t)
	rec := startBareChild(t, reg, cg, root, "a", "/bin/true")

	// give the child a moment to actually exit before the tick
	time.Sleep(50 * time.Millisecond)

	var events []workload.Status
	r := New(reg, cg, time.Hour, nil, func(_ workload.ID, _, to workload.Status) {
		events = append(events, to)
	})
	r.tick()

	rec.Mu.Lock()
	defer rec.Mu.Unlock()
	assert.Equal(t, workload.StatusTerminated, rec.State)
	require.NotNil(t, rec.LastExit)
	assert.Equal(t, 0, rec.LastExit.ExitCode)
	assert.Equal(t, []workload.Status{workload.StatusTerminated}, events)
}

func TestReapSignaledProcessMarksFailed(t *testing.T) {
	t.Parallel()

	reg, cg, root := newTestReaper(t)
	rec := startBareChild(t, reg, cg, root, "b", "/bin/sleep", "30")

	require.NoError(t, syscallKill(rec.OSPid))
	time.Sleep(50 * time.Millisecond)

	r := New(reg, cg, time.Hour, nil, nil)
	r.tick()

	rec.Mu.Lock()
	defer rec.Mu.Unlock()
	assert.Equal(t, workload.StatusFailed, rec.State)
	require.NotNil(t, rec.LastExit)
	assert.True(t, rec.LastExit.Signaled)
}

func TestReapStillRunningLeavesStateAlone(t *testing.T) {
	t.Parallel()

	reg, cg, root := newTestReaper(t)
	rec := startBareChild(t, reg, cg, root, "c", "/bin/sleep", "30")

	r := New(reg, cg, time.Hour, nil, nil)
	r.tick()

	rec.Mu.Lock()
	state := rec.State
	pid := rec.OSPid
	rec.Mu.Unlock()
	assert.Equal(t, workload.StatusRunning, state)

	require.NoError(t, syscallKill(pid))
}

func TestRunStopIsCooperative(t *testing.T) {
	t.Parallel()

	reg, cg, _ := newTestReaper(t)
	r := New(reg, cg, 10*time.Millisecond, nil, nil)

	go r.Run(context.Background())

	time.Sleep(30 * time.Millisecond)
	r.Stop() // must return once Run has observed stopCh and exited
}

func syscallKill(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
