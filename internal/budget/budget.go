// Package budget sizes the engine pool against RAM headroom.
//
// Compute is pure: callers pass a fresh sysinfo.Snapshot and the pool's own
// footprint, so it can be exercised with synthetic snapshots.
package budget

import "github.com/freeeve/enginepool/internal/sysinfo"

const (
	// ProcessOverheadMB is the non-hash memory one engine process needs.
	ProcessOverheadMB = 40

	// MinHashMB is the smallest hash table a worker is given.
	MinHashMB = 16

	// reservedInstances is the interactive engine that runs outside the pool.
	reservedInstances = 1
)

// PoolState is the pool's own current footprint.
type PoolState struct {
	WorkerCount     int
	HashPerWorkerMB int
}

// OwnAllocationMB is the memory the pool itself holds right now.
func (p PoolState) OwnAllocationMB() int {
	if p.WorkerCount <= 0 {
		return 0
	}
	return p.WorkerCount * (p.HashPerWorkerMB + ProcessOverheadMB)
}

// Budget is how many workers may run and how much hash each gets.
type Budget struct {
	WorkerCapacity      int
	HashPerWorkerMB     int
	EffectiveHeadroomMB int
}

// Compute derives a Budget.
//
// Headroom is the RAM allowed under maxLoadPercent minus what the host is already
// using, plus what the pool itself holds (that memory is ours to redistribute).
// One instance worth of headroom is kept for the interactive engine. Hash is
// sized for the target worker count so later scale-up never shrinks it below plan.
func Compute(sys sysinfo.Snapshot, maxLoadPercent, maxWorkers, hashCeilingMB int, pool PoolState) Budget {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if hashCeilingMB < MinHashMB {
		hashCeilingMB = MinHashMB
	}
	if maxLoadPercent < 0 {
		maxLoadPercent = 0
	}

	ceiling := sys.TotalRAMMB * maxLoadPercent / 100
	headroom := ceiling - sys.UsedRAMMB() + pool.OwnAllocationMB()

	perInstance := hashCeilingMB + ProcessOverheadMB
	capacity := floorDiv(headroom, perInstance) - reservedInstances
	capacity = max(capacity, 1)
	capacity = min(capacity, maxWorkers)

	share := floorDiv(headroom, capacity+reservedInstances) - ProcessOverheadMB
	hash := min(max(share, MinHashMB), hashCeilingMB)

	return Budget{
		WorkerCapacity:      capacity,
		HashPerWorkerMB:     hash,
		EffectiveHeadroomMB: headroom,
	}
}

// floorDiv rounds toward negative infinity so negative headroom never rounds up.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
