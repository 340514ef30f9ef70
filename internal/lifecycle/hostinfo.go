package lifecycle

import "github.com/prometheus/procfs"

// hostMemory returns the host's total installed RAM in bytes, or 0 if it
// cannot be determined -- a 0 leaves ResourceLimits.Clamp's memory check a
// no-op rather than failing the caller, since a missing reading is not
// grounds for refusing to start a workload.
func hostMemory() uint64 {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return 0
	}

	info, err := fs.Meminfo()
	if err != nil || info.MemTotal == nil {
		return 0
	}

	return *info.MemTotal * 1024 // /proc/meminfo reports kB
}
