// Package lifecycle implements the fork/exec/signal state machine that
// drives a workload from Init through Running to one of its terminal
// states. It never waits on a child itself -- that is the reaper's job
// (internal/reaper) -- except for the narrow attach-failure path below,
// where a child that was marked Running but could not be placed in its
// resource group is killed and reaped synchronously.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/nexus-weaver/kernel/internal/cgroup"
	"github.com/nexus-weaver/kernel/internal/metrics"
	"github.com/nexus-weaver/kernel/internal/registry"
	"github.com/nexus-weaver/kernel/internal/workload"
)

// DefaultGrace is the interval stop() allows between SIGTERM and the
// forced SIGKILL escalation.
const DefaultGrace = 2 * time.Second

// EventFunc is called once per state transition, outside any record or
// registry lock, to let a caller (the supervisor facade) fan the change out
// to observers without risking re-entrant deadlock.
type EventFunc func(id workload.ID, from, to workload.Status)

// Engine is the Lifecycle Engine: it owns no state of its own beyond a
// reference to the registry and the controller binding, and is safe for
// concurrent use by multiple callers across distinct ids.
type Engine struct {
	reg *registry.Registry
	cg  *cgroup.Binding
	log *slog.Logger

	onEvent EventFunc
}

// New constructs an Engine. onEvent may be nil.
func New(reg *registry.Registry, cg *cgroup.Binding, log *slog.Logger, onEvent EventFunc) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{reg: reg, cg: cg, log: log, onEvent: onEvent}
}

func (e *Engine) emit(id workload.ID, from, to workload.Status) {
	if e.onEvent != nil {
		e.onEvent(id, from, to)
	}
}

// Start validates spec, reserves a record, creates and applies its resource
// group, and forks/execs the command. It returns once the child has either
// reached Running (confined) or failed and been cleaned up; it never waits
// for the workload to exit.
func (e *Engine) Start(_ context.Context, spec workload.Spec) (workload.ID, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.StartDuration)

	if err := spec.Validate(); err != nil {
		return "", err
	}

	spec.Limits.Clamp(hostMemory(), runtime.NumCPU(), e.log)

	rec := workload.NewRecord(spec)
	if err := e.reg.Insert(rec); err != nil {
		return "", err
	}

	if err := e.cg.Create(spec.ID); err != nil {
		_ = e.reg.Remove(spec.ID)
		return "", err
	}

	e.cg.Apply(spec.ID, spec.Limits)

	cmd, err := e.buildCmd(spec)
	if err != nil {
		e.failInit(rec, err)
		return "", workload.NewError(workload.KindProcessFailed, spec.ID, err)
	}

	if err := cmd.Start(); err != nil {
		e.failInit(rec, err)
		if os.IsPermission(err) {
			return "", workload.NewError(workload.KindPermissionDenied, spec.ID, err)
		}
		return "", workload.NewError(workload.KindProcessFailed, spec.ID, err)
	}

	pid := cmd.Process.Pid

	rec.Mu.Lock()
	rec.OSPid = pid
	rec.StartTime = time.Now()
	rec.SetState(workload.StatusRunning)
	rec.Mu.Unlock()
	e.emit(spec.ID, workload.StatusInit, workload.StatusRunning)

	if err := e.cg.Attach(spec.ID, pid); err != nil {
		e.failAttach(rec, pid)
		return "", workload.NewError(workload.KindProcessFailed, spec.ID, err)
	}

	return spec.ID, nil
}

// buildCmd constructs the not-yet-started exec.Cmd for spec: tokenized
// command, optional working directory, and uid/gid identity. A zero UID or
// GID means "inherit" and is resolved to the supervisor's own id, matching
// the skip-the-syscall-if-unset behavior of the process this spec was
// modeled on, since os/exec's Credential has no notion of "change only one
// of uid/gid".
func (e *Engine) buildCmd(spec workload.Spec) (*exec.Cmd, error) {
	tokens := spec.Tokenize()

	path, err := exec.LookPath(tokens[0])
	if err != nil {
		return nil, fmt.Errorf("resolving command: %w", err)
	}

	cmd := exec.Command(path, tokens[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = os.Environ()

	if spec.UID != 0 || spec.GID != 0 {
		uid := spec.UID
		if uid == 0 {
			uid = uint32(os.Getuid()) //nolint:gosec
		}
		gid := spec.GID
		if gid == 0 {
			gid = uint32(os.Getgid()) //nolint:gosec
		}
		cmd.SysProcAttr = &syscall.SysProcAttr{
			Credential: &syscall.Credential{
				Uid:         uid,
				Gid:         gid,
				NoSetGroups: true,
			},
		}
	}

	return cmd, nil
}

// failInit handles both pre-fork (LookPath) and fork/exec failure: the
// resource group is removed and the record, which never left Init, moves
// straight to Failed.
func (e *Engine) failInit(rec *workload.Record, cause error) {
	_ = e.cg.Remove(rec.Spec.ID)

	rec.Mu.Lock()
	rec.LastExit = &workload.LastExit{}
	rec.SetState(workload.StatusFailed)
	rec.Mu.Unlock()

	e.log.Warn("workload failed to start", "id", rec.Spec.ID, "err", cause)
	e.emit(rec.Spec.ID, workload.StatusInit, workload.StatusFailed)
}

// failAttach handles a child that forked successfully, was already marked
// Running, but could not be placed in its resource group. The invariant
// that every Running record is confined must hold, so the child is killed
// and reaped here rather than left for the shared reaper, which only polls
// for running/stopping records by the time this fires they are about to
// become Failed anyway.
func (e *Engine) failAttach(rec *workload.Record, pid int) {
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		e.log.Warn("failed to kill unconfined child", "id", rec.Spec.ID, "pid", pid, "err", err)
	}

	var ws syscall.WaitStatus
	for {
		_, err := syscall.Wait4(pid, &ws, 0, nil)
		if err == nil || !errors.Is(err, syscall.EINTR) {
			break
		}
	}

	_ = e.cg.Remove(rec.Spec.ID)

	rec.Mu.Lock()
	rec.LastExit = &workload.LastExit{Signaled: true, Signal: int(syscall.SIGKILL)}
	rec.SetState(workload.StatusFailed)
	rec.Mu.Unlock()

	e.log.Warn("workload could not be confined, killed", "id", rec.Spec.ID, "pid", pid)
	e.emit(rec.Spec.ID, workload.StatusRunning, workload.StatusFailed)
}

// Stop signals the workload identified by id to terminate: SIGTERM first,
// then -- if it has not reached a terminal state within grace -- SIGKILL.
// The final state transition (Terminated/Failed) is always performed by the
// reaper, not here. Stop on a workload that is not Running (already
// Stopping or terminal) is idempotent success and sends no signal; stop on
// an unknown id is NotFound.
func (e *Engine) Stop(id workload.ID, grace time.Duration) error {
	rec, err := e.reg.Lookup(id)
	if err != nil {
		return err
	}

	rec.Mu.Lock()
	state := rec.State
	rec.Mu.Unlock()
	if state != workload.StatusRunning {
		return nil
	}

	return e.stopRecord(rec, grace)
}

func (e *Engine) stopRecord(rec *workload.Record, grace time.Duration) error {
	rec.Mu.Lock()
	state := rec.State
	pid := rec.OSPid
	rec.Mu.Unlock()

	switch state {
	case workload.StatusRunning:
		rec.Mu.Lock()
		rec.SetState(workload.StatusStopping)
		rec.Mu.Unlock()
		e.emit(rec.Spec.ID, state, workload.StatusStopping)

		if err := syscall.Kill(pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
			e.log.Warn("failed to send SIGTERM", "id", rec.Spec.ID, "pid", pid, "err", err)
		}
	case workload.StatusStopping:
		// already signaled by a prior call; fall through to the wait below.
	default:
		return nil
	}

	select {
	case <-rec.Done():
		return nil
	case <-time.After(grace):
	}

	rec.Mu.Lock()
	stillStopping := rec.State == workload.StatusStopping
	rec.Mu.Unlock()
	if !stillStopping {
		return nil
	}

	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		e.log.Warn("failed to send SIGKILL", "id", rec.Spec.ID, "pid", pid, "err", err)
	}

	return nil
}

// UpdateLimits re-applies limits to id's resource group and, on success,
// stores them on the record. It is rejected with InvalidState once the
// record has reached a terminal state.
func (e *Engine) UpdateLimits(id workload.ID, limits workload.ResourceLimits) error {
	rec, err := e.reg.Lookup(id)
	if err != nil {
		return err
	}

	rec.Mu.Lock()
	defer rec.Mu.Unlock()

	if rec.State.Terminal() {
		return workload.NewError(workload.KindInvalidState, id, nil)
	}

	limits.Clamp(hostMemory(), runtime.NumCPU(), e.log)

	e.cg.Apply(id, limits)
	rec.Limits = limits
	return nil
}

// StopAll signals every currently Running or Stopping workload and waits up
// to grace for each, escalating survivors to SIGKILL, in parallel across
// records. It returns once every targeted record has left Stopping (or the
// grace+escalation sequence has completed for it).
func (e *Engine) StopAll(grace time.Duration) {
	ids := e.reg.RunningAndStopping()

	var wg sync.WaitGroup
	for _, id := range ids {
		rec, err := e.reg.Lookup(id)
		if err != nil {
			continue
		}
		wg.Add(1)
		go func(rec *workload.Record) {
			defer wg.Done()
			_ = e.stopRecord(rec, grace)
		}(rec)
	}
	wg.Wait()
}
