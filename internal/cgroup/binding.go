// Package cgroup binds a workload to limits enforced by the host's
// cgroup v2 unified hierarchy. Every call is a plain filesystem read or
// write; the controller filesystem has no transaction semantics, so neither
// does this package -- Apply is deliberately best-effort, writing whatever
// limit files it can and logging the rest as warnings, matching how a
// partially-confined workload is still more useful than a started-then-
// aborted one.
package cgroup

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/nexus-weaver/kernel/internal/workload"
)

const (
	filePerm = 0o644
	dirPerm  = 0o755

	fileControllers    = "cgroup.controllers"
	fileSubtreeControl = "cgroup.subtree_control"
	fileProcs          = "cgroup.procs"
	fileMemoryMax      = "memory.max"
	fileMemoryCurrent  = "memory.current"
	fileMemoryPeak     = "memory.peak"
	fileCPUMax         = "cpu.max"
	fileCPUStat        = "cpu.stat"
	filePIDsMax        = "pids.max"

	// DefaultPrefix is the name of the supervisor's own subdirectory under
	// the controller root.
	DefaultPrefix = "nexus_weaver"
)

// ErrUnavailable is returned by EnsureAvailable when the host does not
// expose a usable cgroup v2 unified hierarchy at the configured root.
var ErrUnavailable = errors.New("cgroup v2 hierarchy unavailable")

// Stats is the subset of a resource group's accounting files the engine
// surfaces to callers. Missing files yield zero fields, not errors -- the
// group may be transitional (created but not yet populated, or in the
// process of being torn down).
type Stats struct {
	MemoryCurrent uint64
	MemoryPeak    uint64
	UsageUsec     uint64
	NrPeriods     uint64
	NrThrottled   uint64
	ThrottledUsec uint64
}

// Binding owns the supervisor's subtree of the host's cgroup v2 hierarchy.
type Binding struct {
	root   string // e.g. /sys/fs/cgroup
	prefix string // e.g. nexus_weaver
	log    *slog.Logger
}

// EnsureAvailable reports whether root looks like a writable cgroup v2
// unified hierarchy: the directory must exist, expose a cgroup.controllers
// descriptor, and be writable by this process.
func EnsureAvailable(root string) error {
	if _, err := os.Stat(root); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, root, err)
	}
	if _, err := os.Stat(filepath.Join(root, fileControllers)); err != nil {
		return fmt.Errorf("%w: %s: missing %s", ErrUnavailable, root, fileControllers)
	}
	// 0x2 is W_OK: a read-only mount cannot host the supervisor's subtree.
	if err := syscall.Access(root, 0x2); err != nil {
		return fmt.Errorf("%w: %s: not writable: %v", ErrUnavailable, root, err)
	}
	return nil
}

// Init validates availability, creates the supervisor's own subdirectory
// under root (named prefix, defaulting to DefaultPrefix), and enables
// delegation of the memory, cpu and pids controllers into that subtree. It
// is idempotent: an existing directory is reused and already-enabled
// controllers are a no-op.
func Init(root, prefix string, log *slog.Logger) (*Binding, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if log == nil {
		log = slog.Default()
	}

	if err := EnsureAvailable(root); err != nil {
		return nil, err
	}

	b := &Binding{root: root, prefix: prefix, log: log}

	subtreePath := filepath.Join(root, prefix)
	if err := os.MkdirAll(subtreePath, dirPerm); err != nil {
		return nil, fmt.Errorf("creating supervisor cgroup root %s: %w", subtreePath, err)
	}

	if err := enableControllers(root, log); err != nil {
		return nil, err
	}

	return b, nil
}

// enableControllers reads the available controller names from root's
// cgroup.controllers and writes "+name" tokens into root's
// cgroup.subtree_control so that leaf groups may use them.
func enableControllers(root string, log *slog.Logger) error {
	data, err := os.ReadFile(filepath.Join(root, fileControllers))
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", ErrUnavailable, fileControllers, err)
	}

	wanted := map[string]bool{"memory": true, "cpu": true, "pids": true}
	available := strings.Fields(string(data))

	subtreePath := filepath.Join(root, fileSubtreeControl)
	for _, c := range available {
		if !wanted[c] {
			continue
		}
		if err := writeFile(subtreePath, "+"+c); err != nil {
			log.Warn("failed to enable cgroup controller", "controller", c, "err", err)
		}
	}
	return nil
}

// groupPath returns the absolute path of id's resource group directory.
func (b *Binding) groupPath(id workload.ID) string {
	return filepath.Join(b.root, b.prefix, id.String())
}

// Create makes the resource group directory for id.
func (b *Binding) Create(id workload.ID) error {
	path := b.groupPath(id)
	if err := os.Mkdir(path, dirPerm); err != nil {
		switch {
		case os.IsExist(err):
			return workload.NewError(workload.KindAlreadyExists, id, err)
		case os.IsPermission(err):
			return workload.NewError(workload.KindPermissionDenied, id, err)
		default:
			return workload.NewError(workload.KindIOError, id, err)
		}
	}
	return nil
}

// Remove deletes id's resource group directory. It fails NotFound if the
// directory is absent and Busy (surfaced as IOError) if it is non-empty,
// i.e. a live pid is still attached.
func (b *Binding) Remove(id workload.ID) error {
	path := b.groupPath(id)
	err := os.Remove(path)
	switch {
	case err == nil:
		return nil
	case os.IsNotExist(err):
		return workload.NewError(workload.KindNotFound, id, err)
	case os.IsPermission(err):
		return workload.NewError(workload.KindPermissionDenied, id, err)
	default:
		// os.Remove on a non-empty directory fails with ENOTEMPTY, which
		// maps to "busy" in spec terms -- surfaced as an IOError since that
		// is the closest taxonomic kind this engine defines.
		return workload.NewError(workload.KindIOError, id, err)
	}
}

// Apply writes memory/cpu/pids limit files for id. Unset fields are
// skipped. Individual file failures are logged as warnings, never
// returned as an error: by the time Apply is called the caller has already
// committed to starting the workload.
func (b *Binding) Apply(id workload.ID, limits workload.ResourceLimits) {
	path := b.groupPath(id)

	if limits.MemoryBytes > 0 {
		v := strconv.FormatUint(limits.MemoryBytes, 10)
		if err := writeFile(filepath.Join(path, fileMemoryMax), v); err != nil {
			b.log.Warn("failed to set memory.max", "id", id, "err", err)
		}
	}

	if limits.CPUEnabled() {
		v := fmt.Sprintf("%d %d", limits.CPUQuotaUS, limits.CPUPeriodUS)
		if err := writeFile(filepath.Join(path, fileCPUMax), v); err != nil {
			b.log.Warn("failed to set cpu.max", "id", id, "err", err)
		}
	}

	if limits.PIDsLimit > 0 {
		v := strconv.FormatUint(limits.PIDsLimit, 10)
		if err := writeFile(filepath.Join(path, filePIDsMax), v); err != nil {
			b.log.Warn("failed to set pids.max", "id", id, "err", err)
		}
	}
}

// Attach writes pid into id's group's cgroup.procs file. Unlike Apply, a
// failure here is fatal: the caller must treat the child as unconfined and
// terminate it to preserve the invariant that every Running record has a
// corresponding resource group.
func (b *Binding) Attach(id workload.ID, pid int) error {
	path := filepath.Join(b.groupPath(id), fileProcs)
	if err := writeFile(path, strconv.Itoa(pid)); err != nil {
		if os.IsPermission(err) {
			return workload.NewError(workload.KindPermissionDenied, id, err)
		}
		return workload.NewError(workload.KindIOError, id, err)
	}
	return nil
}

// Stats reads id's accounting files. Missing files yield zero fields rather
// than an error.
func (b *Binding) Stats(id workload.ID) Stats {
	path := b.groupPath(id)

	var s Stats
	s.MemoryCurrent = readUint(filepath.Join(path, fileMemoryCurrent))
	s.MemoryPeak = readUint(filepath.Join(path, fileMemoryPeak))

	f, err := os.Open(filepath.Join(path, fileCPUStat))
	if err != nil {
		return s
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		v, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "usage_usec":
			s.UsageUsec = v
		case "nr_periods":
			s.NrPeriods = v
		case "nr_throttled":
			s.NrThrottled = v
		case "throttled_usec":
			s.ThrottledUsec = v
		}
	}
	return s
}

func readUint(path string) uint64 {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func writeFile(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, filePerm)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteString(value); err != nil {
		return err
	}
	return nil
}
