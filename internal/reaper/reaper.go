// Package reaper runs the single background task that reaps exited
// workload processes. The lifecycle engine signals children but leaves
// collecting their exit status to this poll loop; the one exception is a
// child the engine kills because it could not be attached to its resource
// group, which the engine reaps itself.
package reaper

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"syscall"
	"time"

	"github.com/nexus-weaver/kernel/internal/cgroup"
	"github.com/nexus-weaver/kernel/internal/metrics"
	"github.com/nexus-weaver/kernel/internal/registry"
	"github.com/nexus-weaver/kernel/internal/workload"
)

// DefaultInterval is the poll cadence between reap attempts.
const DefaultInterval = time.Second

// EventFunc is called once per transition a tick performs, outside any
// record or registry lock.
type EventFunc func(id workload.ID, from, to workload.Status)

// Reaper polls the registry's running/stopping records at a fixed cadence
// and reaps any that have exited, using a non-blocking wait so that a
// hung or long-lived child never stalls the poll loop.
type Reaper struct {
	reg      *registry.Registry
	cg       *cgroup.Binding
	interval time.Duration
	log      *slog.Logger
	onEvent  EventFunc

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New constructs a Reaper. interval <= 0 uses DefaultInterval. onEvent may
// be nil.
func New(reg *registry.Registry, cg *cgroup.Binding, interval time.Duration, log *slog.Logger, onEvent EventFunc) *Reaper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reaper{
		reg:      reg,
		cg:       cg,
		interval: interval,
		log:      log,
		onEvent:  onEvent,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Run blocks, ticking every interval until ctx is done or Stop is called,
// whichever comes first. It is meant to be run in its own goroutine.
func (r *Reaper) Run(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

// Stop signals Run to exit after it finishes any tick in progress, and
// blocks until it has. Calling Stop more than once is safe.
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.doneCh
}

// tick snapshots the ids with a record in Running or Stopping, releases the
// registry lock, and attempts a non-blocking reap of each in turn. It never
// holds the registry lock across a wait syscall.
func (r *Reaper) tick() {
	defer metrics.ReaperTicks.Inc()

	for _, id := range r.reg.RunningAndStopping() {
		rec, err := r.reg.Lookup(id)
		if err != nil {
			continue // removed between snapshot and lookup; nothing to do
		}
		r.reapOne(rec)
	}
}

// reapOne performs a single WNOHANG wait on rec's pid and, if it has
// exited, classifies the result and advances the record to its terminal
// state.
func (r *Reaper) reapOne(rec *workload.Record) {
	rec.Mu.Lock()
	pid := rec.OSPid
	from := rec.State
	rec.Mu.Unlock()

	if pid <= 0 {
		return
	}

	var status syscall.WaitStatus
	waitedPID, err := syscall.Wait4(pid, &status, syscall.WNOHANG, nil)

	switch {
	case err != nil && errors.Is(err, syscall.ECHILD):
		r.finish(rec, from, workload.StatusTerminated, nil)
	case err != nil:
		r.log.Warn("wait4 failed", "id", rec.Spec.ID, "pid", pid, "err", err)
	case waitedPID == 0:
		// still running, nothing changed this tick
	case status.Exited():
		code := status.ExitStatus()
		r.finish(rec, from, workload.StatusTerminated, &workload.LastExit{ExitCode: code})
	case status.Signaled():
		sig := int(status.Signal())
		r.finish(rec, from, workload.StatusFailed, &workload.LastExit{Signaled: true, Signal: sig})
	default:
		// stopped/continued (job-control signal delivered to a traced
		// process); not a terminal change, ignore.
	}
}

// finish records the terminal transition, removes the resource group, and
// emits the event.
func (r *Reaper) finish(rec *workload.Record, from, to workload.Status, lastExit *workload.LastExit) {
	rec.Mu.Lock()
	if rec.State.Terminal() {
		rec.Mu.Unlock()
		return
	}
	rec.LastExit = lastExit
	ok := rec.SetState(to)
	rec.Mu.Unlock()

	if !ok {
		r.log.Warn("illegal reaper transition", "id", rec.Spec.ID, "from", from, "to", to)
		return
	}

	if err := r.cg.Remove(rec.Spec.ID); err != nil && !workload.IsKind(err, workload.KindNotFound) {
		r.log.Warn("failed to remove resource group", "id", rec.Spec.ID, "err", err)
	}

	if r.onEvent != nil {
		r.onEvent(rec.Spec.ID, from, to)
	}
}
