//go:build darwin

package sysinfo

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Detect reads memory via sysctl. Free memory is the free plus inactive page count.
func Detect() (Snapshot, error) {
	total, err := unix.SysctlUint64("hw.memsize")
	if err != nil {
		return Snapshot{}, fmt.Errorf("sysctl hw.memsize: %w", err)
	}

	free := total / 2
	pageSize, err := unix.SysctlUint32("hw.pagesize")
	if err == nil {
		freePages, errFree := unix.SysctlUint32("vm.page_free_count")
		inactive, errInactive := unix.SysctlUint32("vm.page_inactive_count")
		if errFree == nil {
			free = uint64(freePages) * uint64(pageSize)
			if errInactive == nil {
				free += uint64(inactive) * uint64(pageSize)
			}
		}
	}
	if free > total {
		free = total
	}

	return Snapshot{
		TotalRAMMB:   int(total / mb),
		FreeRAMMB:    int(free / mb),
		LogicalCores: logicalCores(),
	}, nil
}
