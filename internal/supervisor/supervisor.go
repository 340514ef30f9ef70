package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nexus-weaver/kernel/internal/cgroup"
	"github.com/nexus-weaver/kernel/internal/lifecycle"
	"github.com/nexus-weaver/kernel/internal/reaper"
	"github.com/nexus-weaver/kernel/internal/registry"
	"github.com/nexus-weaver/kernel/internal/workload"
)

// Version is the string returned by Health, overridden at build time via
// -ldflags in the real release process.
var Version = "dev"

// EventFunc is invoked once per workload state transition, outside any
// record or registry lock, so it may safely call back into the Supervisor.
type EventFunc func(id workload.ID, from, to workload.Status)

// Supervisor wires together the registry, controller binding, lifecycle
// engine and reaper into a single Handler implementation.
type Supervisor struct {
	reg *registry.Registry
	cg  *cgroup.Binding
	eng *lifecycle.Engine
	rp  *reaper.Reaper
	log *slog.Logger

	grace time.Duration

	mu      sync.RWMutex
	onEvent EventFunc
}

// ensure Supervisor implements Handler.
var _ Handler = (*Supervisor)(nil)

// Options configures New.
type Options struct {
	ReaperInterval time.Duration // default reaper.DefaultInterval
	StopGrace      time.Duration // default lifecycle.DefaultGrace
	Log            *slog.Logger
	OnEvent        EventFunc // optional
}

// New builds a Supervisor over an already-initialized controller Binding
// and starts its reaper goroutine. Callers must call Shutdown to stop it
// cleanly.
func New(ctx context.Context, cg *cgroup.Binding, opts Options) *Supervisor {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = lifecycle.DefaultGrace
	}

	reg := registry.New()

	s := &Supervisor{
		reg:     reg,
		cg:      cg,
		log:     opts.Log,
		grace:   opts.StopGrace,
		onEvent: opts.OnEvent,
	}

	s.eng = lifecycle.New(reg, cg, opts.Log, s.emit)
	s.rp = reaper.New(reg, cg, opts.ReaperInterval, opts.Log, s.emit)

	go s.rp.Run(ctx)

	return s
}

func (s *Supervisor) emit(id workload.ID, from, to workload.Status) {
	s.mu.RLock()
	cb := s.onEvent
	s.mu.RUnlock()
	if cb != nil {
		cb(id, from, to)
	}
}

// SetEventFunc replaces the registered observer. Pass nil to unregister.
func (s *Supervisor) SetEventFunc(fn EventFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvent = fn
}

// Health returns the running build's version string.
func (s *Supervisor) Health(_ context.Context) (string, error) {
	return Version, nil
}

// Start launches a new workload.
func (s *Supervisor) Start(ctx context.Context, spec workload.Spec) (workload.ID, error) {
	return s.eng.Start(ctx, spec)
}

// Stop requests termination of id using the supervisor's configured grace
// period.
func (s *Supervisor) Stop(_ context.Context, id workload.ID) error {
	return s.eng.Stop(id, s.grace)
}

// UpdateLimits re-applies resource limits to a live workload.
func (s *Supervisor) UpdateLimits(_ context.Context, id workload.ID, limits workload.ResourceLimits) error {
	return s.eng.UpdateLimits(id, limits)
}

// Get returns id's current snapshot.
func (s *Supervisor) Get(_ context.Context, id workload.ID) (workload.Snapshot, error) {
	rec, err := s.reg.Lookup(id)
	if err != nil {
		return workload.Snapshot{}, err
	}
	return rec.Snapshot(), nil
}

// List returns a snapshot of every known workload.
func (s *Supervisor) List(_ context.Context) ([]workload.Snapshot, error) {
	return s.reg.Snapshot(), nil
}

// Stats returns id's resource-group accounting, or NotFound if id is
// unknown to the registry (the underlying cgroup stats read is always
// best-effort and zero-valued on its own).
func (s *Supervisor) Stats(_ context.Context, id workload.ID) (cgroup.Stats, error) {
	if _, err := s.reg.Lookup(id); err != nil {
		return cgroup.Stats{}, err
	}
	return s.cg.Stats(id), nil
}

// Shutdown performs the engine-wide teardown sequence: stop the reaper,
// SIGTERM-then-SIGKILL every live workload, and leave the registry drained
// of running work. It never removes the controller binding's own root
// group -- that is an operator concern, since other supervisor instances
// or residue from a prior run may still reference it.
func (s *Supervisor) Shutdown(grace time.Duration) {
	s.rp.Stop()
	if grace <= 0 {
		grace = s.grace
	}
	s.eng.StopAll(grace)
}
