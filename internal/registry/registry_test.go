package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-weaver/kernel/internal/workload"
)

func newRec(id workload.ID) *workload.Record {
	return workload.NewRecord(workload.Spec{ID: id, Command: "/bin/true"})
}

func TestInsertLookupRemove(t *testing.T) {
	t.Parallel()

	reg := New()
	rec := newRec("a")

	require.NoError(t, reg.Insert(rec))

	err := reg.Insert(rec)
	require.Error(t, err)
	assert.True(t, workload.IsKind(err, workload.KindAlreadyExists))

	got, err := reg.Lookup("a")
	require.NoError(t, err)
	assert.Same(t, rec, got)

	_, err = reg.Lookup("nope")
	require.Error(t, err)
	assert.True(t, workload.IsKind(err, workload.KindNotFound))

	require.NoError(t, reg.Remove("a"))
	err = reg.Remove("a")
	require.Error(t, err)
	assert.True(t, workload.IsKind(err, workload.KindNotFound))
}

func TestSnapshotNeverTorn(t *testing.T) {
	t.Parallel()

	reg := New()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		id := workload.ID(string(rune('a' + i)))
		wg.Add(1)
		go func(id workload.ID) {
			defer wg.Done()
			rec := newRec(id)
			_ = reg.Insert(rec)
			rec.Mu.Lock()
			rec.SetState(workload.StatusRunning)
			rec.OSPid = 100
			rec.Mu.Unlock()
		}(id)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			for _, snap := range reg.Snapshot() {
				if snap.State == workload.StatusRunning {
					assert.Greater(t, snap.OSPid, 0, "never Running with pid==0")
				} else {
					assert.Equal(t, workload.StatusInit, snap.State)
				}
			}
		}
	}()

	wg.Wait()
	<-done
}

func TestRunningAndStopping(t *testing.T) {
	t.Parallel()

	reg := New()

	a := newRec("a")
	a.State = workload.StatusRunning
	require.NoError(t, reg.Insert(a))

	b := newRec("b")
	require.NoError(t, reg.Insert(b)) // still Init

	ids := reg.RunningAndStopping()
	require.Len(t, ids, 1)
	assert.Equal(t, workload.ID("a"), ids[0])
}
