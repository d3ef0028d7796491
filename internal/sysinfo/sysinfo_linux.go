//go:build linux

package sysinfo

import (
	"fmt"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

// Detect reads total and available memory via sysinfo(2), preferring
// MemAvailable from /proc/meminfo because free RAM alone ignores reclaimable cache.
func Detect() (Snapshot, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return Snapshot{}, fmt.Errorf("sysinfo: %w", err)
	}
	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	total := uint64(info.Totalram) * unit
	free := (uint64(info.Freeram) + uint64(info.Bufferram)) * unit

	if avail, ok := memAvailable(); ok && avail <= total {
		free = avail
	}

	return Snapshot{
		TotalRAMMB:   int(total / mb),
		FreeRAMMB:    int(free / mb),
		LogicalCores: logicalCores(),
	}, nil
}

// memAvailable returns MemAvailable in bytes.
func memAvailable() (uint64, bool) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return 0, false
	}
	mi, err := fs.Meminfo()
	if err != nil || mi.MemAvailable == nil {
		return 0, false
	}
	return *mi.MemAvailable * 1024, true
}
