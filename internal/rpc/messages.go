// Package rpc defines the message shapes for the five request-handler
// operations, hand-written rather than generated: no .proto is checked in
// and protoc is never run as part of building this repository. These
// structs exist so a transport shim has concrete Go types to decode into
// and encode from; they carry no wire-format tags and are never registered
// as a live gRPC service here (see internal/server for what is actually
// bootstrapped).
package rpc

import (
	"time"

	"github.com/nexus-weaver/kernel/internal/cgroup"
	"github.com/nexus-weaver/kernel/internal/workload"
)

// HealthResponse is the payload of Health.
type HealthResponse struct {
	Version string
}

// StartRequest is the payload of Start.
type StartRequest struct {
	ID      string
	Name    string
	Command string
	Dir     string
	UID     uint32
	GID     uint32
	Limits  ResourceLimits
}

// ResourceLimits mirrors workload.ResourceLimits in wire-friendly form.
type ResourceLimits struct {
	MemoryBytes uint64
	CPUQuotaUS  uint64
	CPUPeriodUS uint64
	CPUShares   uint64
	PIDsLimit   uint64
}

// StartResponse is the payload returned by Start.
type StartResponse struct {
	ID string
}

// StopRequest is the payload of Stop.
type StopRequest struct {
	ID string
}

// GetRequest is the payload of Get.
type GetRequest struct {
	ID string
}

// ListRequest is the (empty) payload of List.
type ListRequest struct{}

// Record is the wire shape of a workload.Snapshot.
type Record struct {
	ID        string
	Name      string
	State     string
	OSPid     int
	StartTime time.Time
	ExitCode  *int
	Signal    *int
}

// GetResponse is the payload returned by Get.
type GetResponse struct {
	Record Record
}

// ListResponse is the payload returned by List.
type ListResponse struct {
	Records []Record
}

// FromSnapshot converts an internal workload.Snapshot into its wire shape.
func FromSnapshot(s workload.Snapshot) Record {
	r := Record{
		ID:        s.Spec.ID.String(),
		Name:      s.Spec.Name,
		State:     s.State.String(),
		OSPid:     s.OSPid,
		StartTime: s.StartTime,
	}
	if s.LastExit != nil {
		if s.LastExit.Signaled {
			sig := s.LastExit.Signal
			r.Signal = &sig
		} else {
			code := s.LastExit.ExitCode
			r.ExitCode = &code
		}
	}
	return r
}

// ToSpec converts a StartRequest into the internal Spec Start expects.
func (req StartRequest) ToSpec() workload.Spec {
	return workload.Spec{
		ID:      workload.ID(req.ID),
		Name:    req.Name,
		Command: req.Command,
		Dir:     req.Dir,
		UID:     req.UID,
		GID:     req.GID,
		Limits: workload.ResourceLimits{
			MemoryBytes: req.Limits.MemoryBytes,
			CPUQuotaUS:  req.Limits.CPUQuotaUS,
			CPUPeriodUS: req.Limits.CPUPeriodUS,
			CPUShares:   req.Limits.CPUShares,
			PIDsLimit:   req.Limits.PIDsLimit,
		},
	}
}

// StatsResponse is the wire shape of a cgroup.Stats read.
type StatsResponse struct {
	MemoryCurrent uint64
	MemoryPeak    uint64
	UsageUsec     uint64
	NrPeriods     uint64
	NrThrottled   uint64
	ThrottledUsec uint64
}

// FromStats converts cgroup.Stats into its wire shape.
func FromStats(s cgroup.Stats) StatsResponse {
	return StatsResponse{
		MemoryCurrent: s.MemoryCurrent,
		MemoryPeak:    s.MemoryPeak,
		UsageUsec:     s.UsageUsec,
		NrPeriods:     s.NrPeriods,
		NrThrottled:   s.NrThrottled,
		ThrottledUsec: s.ThrottledUsec,
	}
}
