package workload

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpecValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		spec    Spec
		wantErr bool
	}{
		{"ok", Spec{ID: "a", Command: "/bin/sleep 60"}, false},
		{"empty id", Spec{ID: "", Command: "/bin/true"}, true},
		{"path separator in id", Spec{ID: "a/b", Command: "/bin/true"}, true},
		{"empty command", Spec{ID: "a", Command: "   "}, true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.spec.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSpecTokenize(t *testing.T) {
	t.Parallel()
	s := Spec{Command: "/bin/sh  -c   'true'"}
	assert.Equal(t, []string{"/bin/sh", "-c", "'true'"}, s.Tokenize())
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	assert.True(t, CanTransition(StatusInit, StatusRunning))
	assert.True(t, CanTransition(StatusInit, StatusFailed))
	assert.False(t, CanTransition(StatusInit, StatusStopping))

	assert.True(t, CanTransition(StatusRunning, StatusStopping))
	assert.True(t, CanTransition(StatusRunning, StatusTerminated))
	assert.True(t, CanTransition(StatusRunning, StatusFailed))
	assert.False(t, CanTransition(StatusRunning, StatusStopped))

	assert.True(t, CanTransition(StatusStopping, StatusStopping))
	assert.True(t, CanTransition(StatusStopping, StatusStopped))
	assert.True(t, CanTransition(StatusStopping, StatusTerminated))

	assert.False(t, CanTransition(StatusStopped, StatusRunning))
	assert.False(t, CanTransition(StatusTerminated, StatusRunning))
	assert.False(t, CanTransition(StatusFailed, StatusRunning))
}

func TestRecordSetState(t *testing.T) {
	t.Parallel()

	r := NewRecord(Spec{ID: "a", Command: "/bin/true"})
	assert.Equal(t, StatusInit, r.State)

	ok := r.SetState(StatusRunning)
	assert.True(t, ok)
	assert.Equal(t, StatusRunning, r.State)

	// illegal edge is rejected and state is unchanged
	ok = r.SetState(StatusInit)
	assert.False(t, ok)
	assert.Equal(t, StatusRunning, r.State)
}

func TestRecordSnapshotIsIndependentCopy(t *testing.T) {
	t.Parallel()

	r := NewRecord(Spec{ID: "a", Command: "/bin/true"})
	r.OSPid = 123
	r.LastExit = &LastExit{ExitCode: 0}

	snap := r.Snapshot()
	r.LastExit.ExitCode = 99

	assert.Equal(t, 0, snap.LastExit.ExitCode, "snapshot must not alias the record's LastExit")
	assert.Equal(t, 123, snap.OSPid)
}

func TestErrorIsAndKind(t *testing.T) {
	t.Parallel()

	err := NewError(KindNotFound, "a", nil)
	assert.True(t, IsKind(err, KindNotFound))
	assert.False(t, IsKind(err, KindAlreadyExists))
	assert.Equal(t, "not_found: a", err.Error())
}
