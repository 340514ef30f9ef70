package workload

import (
	"sync"
	"time"
)

// doneSignal is embedded in Record to let callers (Stop, StopAll) wait for a
// terminal transition without polling: whoever performs the transition to a
// terminal state calls MarkDone exactly once.
type doneSignal struct {
	once sync.Once
	ch   chan struct{}
}

func newDoneSignal() *doneSignal {
	return &doneSignal{ch: make(chan struct{})}
}

// LastExit records why a workload's process ended: either an exit code (for
// a normal exit) or a terminating signal number.
type LastExit struct {
	ExitCode int
	Signal   int // 0 if the process exited normally rather than being signaled
	Signaled bool
}

// Record is a registry entry: a workload's immutable spec plus the mutable
// tail the Lifecycle Engine and Reaper advance. Spec is never mutated after
// creation; everything else is guarded by Mu and must only be touched while
// holding it.
type Record struct {
	Spec Spec // immutable after creation

	Mu        sync.Mutex
	OSPid     int
	StartTime time.Time
	State     Status
	LastExit  *LastExit
	Limits    ResourceLimits

	done *doneSignal
}

// NewRecord creates a freshly-inserted record in StatusInit, with no pid yet.
func NewRecord(spec Spec) *Record {
	return &Record{
		Spec:   spec,
		State:  StatusInit,
		Limits: spec.Limits,
		done:   newDoneSignal(),
	}
}

// Done returns a channel that is closed exactly once, when the record
// reaches a terminal state (Stopped, Terminated or Failed).
func (r *Record) Done() <-chan struct{} {
	return r.done.ch
}

// MarkDone closes the Done channel if it has not been closed already. It is
// safe to call multiple times and from multiple goroutines.
func (r *Record) MarkDone() {
	r.done.once.Do(func() { close(r.done.ch) })
}

// Snapshot is a point-in-time copy of a record's fields, safe to read and
// share without holding any lock.
type Snapshot struct {
	Spec      Spec
	OSPid     int
	StartTime time.Time
	State     Status
	LastExit  *LastExit
	Limits    ResourceLimits
}

// Snapshot copies the record's current fields under its lock.
func (r *Record) Snapshot() Snapshot {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	var lastExit *LastExit
	if r.LastExit != nil {
		le := *r.LastExit
		lastExit = &le
	}

	return Snapshot{
		Spec:      r.Spec,
		OSPid:     r.OSPid,
		StartTime: r.StartTime,
		State:     r.State,
		LastExit:  lastExit,
		Limits:    r.Limits,
	}
}

// transitions enumerates the only edges a record's State may advance along,
// per the lifecycle state machine. The zero value of the "from" side (using
// StatusInit as a stand-in for "record just created") is handled by callers
// directly since there is no prior state to check.
var transitions = map[Status]map[Status]bool{
	StatusInit: {
		StatusRunning: true,
		StatusFailed:  true,
	},
	StatusRunning: {
		StatusStopping:   true,
		StatusTerminated: true,
		StatusFailed:     true,
	},
	StatusStopping: {
		StatusStopping:   true, // grace elapsed & alive: re-send SIGKILL, stays Stopping
		StatusStopped:    true,
		StatusTerminated: true,
		StatusFailed:     true,
	},
}

// CanTransition reports whether moving from `from` to `to` is a legal edge.
func CanTransition(from, to Status) bool {
	edges, ok := transitions[from]
	return ok && edges[to]
}

// SetState advances r.State to to if the transition is legal, returning
// whether it did. The caller must hold r.Mu. If to is a terminal status,
// Done is closed as part of the same call.
func (r *Record) SetState(to Status) bool {
	if !CanTransition(r.State, to) {
		return false
	}
	r.State = to
	if to.Terminal() {
		r.MarkDone()
	}
	return true
}
