// Package sysinfo reports the host's memory and CPU at a point in time.
// Nothing is cached: every call reads the OS again.
package sysinfo

import "runtime"

// Snapshot is the host's memory and CPU state at one instant.
type Snapshot struct {
	TotalRAMMB   int
	FreeRAMMB    int
	LogicalCores int
}

// UsedRAMMB returns memory in use by everything on the host.
func (s Snapshot) UsedRAMMB() int {
	return s.TotalRAMMB - s.FreeRAMMB
}

// Provider yields snapshots. Implementations must be safe for concurrent use.
type Provider interface {
	Snapshot() (Snapshot, error)
}

// Host reads snapshots from the running operating system.
type Host struct{}

// Snapshot implements Provider.
func (Host) Snapshot() (Snapshot, error) {
	return Detect()
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func() (Snapshot, error)

// Snapshot implements Provider.
func (f ProviderFunc) Snapshot() (Snapshot, error) { return f() }

const mb = 1024 * 1024

func logicalCores() int {
	return runtime.NumCPU()
}
