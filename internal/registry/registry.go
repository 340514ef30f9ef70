// Package registry holds the set of known workloads: live ones being
// supervised and recently-terminated ones retained for inspection. It
// provides lookup by id, atomic snapshotting for listing, and serializes
// mutation per-record, following the two-tier locking discipline described
// in the supervision engine's concurrency model: the registry lock is only
// ever held for list traversal/insert/remove, never across I/O, and it is
// always acquired before any per-record lock, never the reverse.
package registry

import (
	"sync"

	"github.com/nexus-weaver/kernel/internal/workload"
)

// Registry is a keyed, concurrency-safe store of *workload.Record.
type Registry struct {
	mu      sync.RWMutex
	records map[workload.ID]*workload.Record
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{records: map[workload.ID]*workload.Record{}}
}

// Insert adds a record if its id is absent, or returns AlreadyExists.
func (r *Registry) Insert(rec *workload.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[rec.Spec.ID]; ok {
		return workload.NewError(workload.KindAlreadyExists, rec.Spec.ID, nil)
	}
	r.records[rec.Spec.ID] = rec
	return nil
}

// Lookup returns the record for id, or NotFound.
func (r *Registry) Lookup(id workload.ID) (*workload.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, workload.NewError(workload.KindNotFound, id, nil)
	}
	return rec, nil
}

// Remove deletes the record for id, or returns NotFound.
func (r *Registry) Remove(id workload.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[id]; !ok {
		return workload.NewError(workload.KindNotFound, id, nil)
	}
	delete(r.records, id)
	return nil
}

// Snapshot acquires the registry lock, then takes each record's own lock one
// at a time to copy its fields, releasing every lock before returning. The
// result is a point-in-time capture; no returned entry is ever torn, but the
// set as a whole may miss an in-flight Insert or include an in-flight Remove
// that raced with the traversal. Ordering among entries is unspecified.
func (r *Registry) Snapshot() []workload.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]workload.Snapshot, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.Snapshot())
	}
	return out
}

// RunningAndStopping returns the ids of every record currently in
// StatusRunning or StatusStopping. It is used by the reaper to take a
// wait-candidate snapshot without holding the registry lock across any wait
// syscall.
func (r *Registry) RunningAndStopping() []workload.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]workload.ID, 0, len(r.records))
	for id, rec := range r.records {
		rec.Mu.Lock()
		st := rec.State
		rec.Mu.Unlock()
		if st == workload.StatusRunning || st == workload.StatusStopping {
			out = append(out, id)
		}
	}
	return out
}

// Len returns the number of entries currently held, live or terminated.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
