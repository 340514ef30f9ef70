// Package metrics collects Prometheus counters for the supervision engine.
// Nothing in this package exposes an HTTP endpoint or talks to a
// Prometheus registry's exposition format -- wiring a scrape handler is a
// transport concern, out of scope here. Callers that do own a transport
// can still register these collectors with their own
// prometheus.Registerer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nexus-weaver/kernel/internal/workload"
)

var (
	// WorkloadsStarted counts every workload that reached Running.
	WorkloadsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nexus_weaver_workloads_started_total",
		Help: "Total number of workloads that reached the Running state.",
	})

	// WorkloadsTerminated counts workloads that exited normally.
	WorkloadsTerminated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nexus_weaver_workloads_terminated_total",
		Help: "Total number of workloads that exited with a normal status.",
	})

	// WorkloadsFailed counts workloads that exited via signal or never
	// started at all.
	WorkloadsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nexus_weaver_workloads_failed_total",
		Help: "Total number of workloads that failed to start or exited via signal.",
	})

	// WorkloadsStopped counts transitions to Stopped. The reaper records a
	// workload ended by a caller's stop as Terminated or Failed, according
	// to how it exited, so such workloads are counted there instead.
	WorkloadsStopped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nexus_weaver_workloads_stopped_total",
		Help: "Total number of workloads that reached the Stopped state.",
	})

	// ReaperTicks counts completed reaper poll iterations.
	ReaperTicks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nexus_weaver_reaper_ticks_total",
		Help: "Total number of reaper poll iterations completed.",
	})

	// ActiveWorkloads tracks the current count of Running or Stopping
	// workloads.
	ActiveWorkloads = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nexus_weaver_active_workloads",
		Help: "Current number of workloads in the Running or Stopping state.",
	})

	// StartDuration observes the wall-clock time of Start, from spec
	// validation through confinement (or failure).
	StartDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "nexus_weaver_start_duration_seconds",
		Help:    "Time taken by start(), from validation through confinement.",
		Buckets: prometheus.DefBuckets,
	})
)

// Collectors returns every collector this package defines, for a caller
// that owns a prometheus.Registerer to register in one call.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		WorkloadsStarted,
		WorkloadsTerminated,
		WorkloadsFailed,
		WorkloadsStopped,
		ReaperTicks,
		ActiveWorkloads,
		StartDuration,
	}
}

// Timer is a convenience wrapper for observing an operation's duration to
// a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time since NewTimer to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// OnTransition is an EventFunc-shaped hook (matching
// lifecycle.EventFunc/reaper.EventFunc/supervisor.EventFunc's signature)
// that updates counters from a workload state transition. Wire it in
// alongside, or instead of, any other observer -- it is side-effect-free
// beyond incrementing its own counters.
func OnTransition(_ workload.ID, from, to workload.Status) {
	wasActive := from == workload.StatusRunning || from == workload.StatusStopping

	switch to {
	case workload.StatusRunning:
		WorkloadsStarted.Inc()
		ActiveWorkloads.Inc()
	case workload.StatusStopped:
		WorkloadsStopped.Inc()
		if wasActive {
			ActiveWorkloads.Dec()
		}
	case workload.StatusTerminated:
		WorkloadsTerminated.Inc()
		if wasActive {
			ActiveWorkloads.Dec()
		}
	case workload.StatusFailed:
		WorkloadsFailed.Inc()
		if wasActive {
			ActiveWorkloads.Dec()
		}
	}
}
