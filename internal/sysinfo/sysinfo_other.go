//go:build !linux && !darwin

package sysinfo

// defaultTotalRAMMB is the fallback when the platform has no detection.
const defaultTotalRAMMB = 8 * 1024

// Detect falls back to a conservative estimate: 8GB total, half of it free.
func Detect() (Snapshot, error) {
	return Snapshot{
		TotalRAMMB:   defaultTotalRAMMB,
		FreeRAMMB:    defaultTotalRAMMB / 2,
		LogicalCores: logicalCores(),
	}, nil
}
