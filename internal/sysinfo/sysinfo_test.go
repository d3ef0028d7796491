package sysinfo

import (
	"runtime"
	"testing"
)

func TestDetect(t *testing.T) {
	snap, err := Detect()
	if err != nil {
		t.Fatalf("Detect() returned error: %v", err)
	}

	if snap.LogicalCores != runtime.NumCPU() {
		t.Errorf("LogicalCores = %d, want %d (runtime.NumCPU())", snap.LogicalCores, runtime.NumCPU())
	}
	if snap.TotalRAMMB < 64 {
		t.Errorf("TotalRAMMB = %d, want >= 64", snap.TotalRAMMB)
	}
	if snap.FreeRAMMB < 0 || snap.FreeRAMMB > snap.TotalRAMMB {
		t.Errorf("FreeRAMMB = %d outside [0, %d]", snap.FreeRAMMB, snap.TotalRAMMB)
	}
	if snap.UsedRAMMB() != snap.TotalRAMMB-snap.FreeRAMMB {
		t.Errorf("UsedRAMMB = %d, want %d", snap.UsedRAMMB(), snap.TotalRAMMB-snap.FreeRAMMB)
	}
}

func TestProviderFunc(t *testing.T) {
	want := Snapshot{TotalRAMMB: 1000, FreeRAMMB: 400, LogicalCores: 2}
	var p Provider = ProviderFunc(func() (Snapshot, error) { return want, nil })
	got, err := p.Snapshot()
	if err != nil || got != want {
		t.Errorf("Snapshot() = %+v, %v; want %+v", got, err, want)
	}
}
