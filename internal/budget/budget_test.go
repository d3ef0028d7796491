package budget

import (
	"testing"

	"github.com/freeeve/enginepool/internal/sysinfo"
)

func snap(total, free int) sysinfo.Snapshot {
	return sysinfo.Snapshot{TotalRAMMB: total, FreeRAMMB: free, LogicalCores: 8}
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name       string
		sys        sysinfo.Snapshot
		maxLoad    int
		maxWorkers int
		hash       int
		pool       PoolState
		want       Budget
	}{
		{
			name:       "plenty of RAM caps at maxWorkers",
			sys:        snap(32768, 30000),
			maxLoad:    80,
			maxWorkers: 4,
			hash:       256,
			want:       Budget{WorkerCapacity: 4, HashPerWorkerMB: 256, EffectiveHeadroomMB: 26214 - 2768},
		},
		{
			name:       "headroom fits two instances, one reserved",
			sys:        snap(10000, 2592),
			maxLoad:    80,
			maxWorkers: 4,
			hash:       256,
			// ceiling 8000, used 7408, headroom 592 = 2 * 296
			want: Budget{WorkerCapacity: 1, HashPerWorkerMB: 256, EffectiveHeadroomMB: 592},
		},
		{
			name:       "own allocation is added back",
			sys:        snap(10000, 2000),
			maxLoad:    80,
			maxWorkers: 8,
			hash:       256,
			pool:       PoolState{WorkerCount: 3, HashPerWorkerMB: 256},
			// ceiling 8000, used 8000, own 888 => headroom 888 = 3 instances, capacity 2
			want: Budget{WorkerCapacity: 2, HashPerWorkerMB: 256, EffectiveHeadroomMB: 888},
		},
		{
			name:       "starved host still gets one worker with minimum hash",
			sys:        snap(4096, 100),
			maxLoad:    50,
			maxWorkers: 4,
			hash:       512,
			want:       Budget{WorkerCapacity: 1, HashPerWorkerMB: MinHashMB, EffectiveHeadroomMB: 2048 - 3996},
		},
		{
			name:       "hash ceiling below minimum is raised",
			sys:        snap(32768, 32768),
			maxLoad:    100,
			maxWorkers: 2,
			hash:       4,
			want:       Budget{WorkerCapacity: 2, HashPerWorkerMB: MinHashMB, EffectiveHeadroomMB: 32768},
		},
		{
			name:       "non-positive maxWorkers means one",
			sys:        snap(32768, 32768),
			maxLoad:    100,
			maxWorkers: 0,
			hash:       64,
			want:       Budget{WorkerCapacity: 1, HashPerWorkerMB: 64, EffectiveHeadroomMB: 32768},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(tt.sys, tt.maxLoad, tt.maxWorkers, tt.hash, tt.pool)
			if got != tt.want {
				t.Errorf("Compute() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestComputeMonotonicInFreeRAM(t *testing.T) {
	for _, hash := range []int{16, 64, 256, 1024} {
		prev := 0
		for free := 0; free <= 65536; free += 97 {
			got := Compute(snap(65536, free), 80, 64, hash, PoolState{}).WorkerCapacity
			if got < prev {
				t.Fatalf("hash=%d: capacity dropped from %d to %d when free rose to %d", hash, prev, got, free)
			}
			prev = got
		}
	}
}

func TestComputeMonotonicInHashCeiling(t *testing.T) {
	for _, free := range []int{1024, 8192, 30000, 60000} {
		prev := 1 << 30
		for hash := 1; hash <= 4096; hash += 13 {
			got := Compute(snap(65536, free), 80, 64, hash, PoolState{WorkerCount: 2, HashPerWorkerMB: 128}).WorkerCapacity
			if got > prev {
				t.Fatalf("free=%d: capacity rose from %d to %d when hash ceiling rose to %d", free, prev, got, hash)
			}
			prev = got
		}
	}
}

func TestComputeBounds(t *testing.T) {
	for free := 0; free <= 16384; free += 512 {
		for _, maxWorkers := range []int{1, 3, 16} {
			b := Compute(snap(16384, free), 75, maxWorkers, 128, PoolState{})
			if b.WorkerCapacity < 1 || b.WorkerCapacity > maxWorkers {
				t.Errorf("free=%d maxWorkers=%d: capacity %d out of range", free, maxWorkers, b.WorkerCapacity)
			}
			if b.HashPerWorkerMB < MinHashMB || b.HashPerWorkerMB > 128 {
				t.Errorf("free=%d: hash %d out of range", free, b.HashPerWorkerMB)
			}
		}
	}
}

func TestFloorDiv(t *testing.T) {
	tests := []struct{ a, b, want int }{
		{7, 2, 3},
		{-7, 2, -4},
		{-8, 2, -4},
		{0, 5, 0},
	}
	for _, tt := range tests {
		if got := floorDiv(tt.a, tt.b); got != tt.want {
			t.Errorf("floorDiv(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
