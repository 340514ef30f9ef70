package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/nexus-weaver/kernel/internal/workload"
)

func TestOnTransitionCountsStartAndTerminate(t *testing.T) {
	startedBefore := testutil.ToFloat64(WorkloadsStarted)
	terminatedBefore := testutil.ToFloat64(WorkloadsTerminated)
	activeBefore := testutil.ToFloat64(ActiveWorkloads)

	OnTransition("x", workload.StatusInit, workload.StatusRunning)
	assert.Equal(t, startedBefore+1, testutil.ToFloat64(WorkloadsStarted))
	assert.Equal(t, activeBefore+1, testutil.ToFloat64(ActiveWorkloads))

	OnTransition("x", workload.StatusRunning, workload.StatusTerminated)
	assert.Equal(t, terminatedBefore+1, testutil.ToFloat64(WorkloadsTerminated))
	assert.Equal(t, activeBefore, testutil.ToFloat64(ActiveWorkloads))
}

func TestOnTransitionRunningToStoppingDoesNotChangeActiveCount(t *testing.T) {
	before := testutil.ToFloat64(ActiveWorkloads)
	OnTransition("y", workload.StatusInit, workload.StatusRunning)
	afterStart := testutil.ToFloat64(ActiveWorkloads)
	assert.Equal(t, before+1, afterStart)

	OnTransition("y", workload.StatusRunning, workload.StatusStopping)
	assert.Equal(t, afterStart, testutil.ToFloat64(ActiveWorkloads))

	OnTransition("y", workload.StatusStopping, workload.StatusFailed)
	assert.Equal(t, before, testutil.ToFloat64(ActiveWorkloads))
}

func TestOnTransitionInitToFailedDoesNotTouchActiveCount(t *testing.T) {
	before := testutil.ToFloat64(ActiveWorkloads)
	OnTransition("z", workload.StatusInit, workload.StatusFailed)
	assert.Equal(t, before, testutil.ToFloat64(ActiveWorkloads))
}
