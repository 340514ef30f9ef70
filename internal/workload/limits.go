package workload

import "log/slog"

// ResourceLimits is the fixed-shape record of controller limits applied to a
// workload's resource group. A zero value in any field means "unset" except
// where noted.
type ResourceLimits struct {
	MemoryBytes uint64 // 0 means unset

	// CPUQuotaUS and CPUPeriodUS both must be > 0 to take effect; otherwise
	// the cpu.max limit is left unset.
	CPUQuotaUS  uint64
	CPUPeriodUS uint64

	// CPUShares is a relative weight. cgroup v2 has no equivalent of v1's
	// cpu.shares (it uses cpu.weight); this field is advisory only and is
	// never written to the controller filesystem.
	CPUShares uint64

	PIDsLimit uint64 // 0 means unset
}

// CPUEnabled reports whether both cpu.max fields are set.
func (l ResourceLimits) CPUEnabled() bool {
	return l.CPUQuotaUS > 0 && l.CPUPeriodUS > 0
}

// Clamp enforces invariant 5: memory.max never exceeds host memory and
// cpu_quota_us never exceeds cpu_period_us * onlineCPUs. Violations are
// clamped, logged as a warning on log when it is non-nil, and never cause
// start to fail.
func (l *ResourceLimits) Clamp(hostMemory uint64, onlineCPUs int, log *slog.Logger) {
	if l.MemoryBytes > 0 && hostMemory > 0 && l.MemoryBytes > hostMemory {
		if log != nil {
			log.Warn("clamping memory limit to host memory", "requested", l.MemoryBytes, "host", hostMemory)
		}
		l.MemoryBytes = hostMemory
	}

	if l.CPUEnabled() && onlineCPUs > 0 {
		max := l.CPUPeriodUS * uint64(onlineCPUs)
		if l.CPUQuotaUS > max {
			if log != nil {
				log.Warn("clamping cpu quota to online cpu capacity", "requested", l.CPUQuotaUS, "max", max)
			}
			l.CPUQuotaUS = max
		}
	}
}
