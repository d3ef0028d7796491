package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/freeeve/enginepool/internal/budget"
)

// errSpawnFailed means a scale-up spawn was attempted and did not start.
var errSpawnFailed = errors.New("analysis: scale-up spawn failed")

// maxScaleBackoff caps the doubling of the poll interval after failed spawns.
const maxScaleBackoff = 4

// scaleLoop adds one worker per tick while the budget allows more than are
// running, attaching each to run. It ends when MaxWorkers is reached or the
// generation ends. Exhausted headroom keeps it polling; failed spawns slow it
// down, and a failed spawn with no worker left abandons run.
func (p *Pool) scaleLoop(ctx context.Context, run *evalRun) {
	failures := 0
	timer := time.NewTimer(p.cfg.ScaleInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if !p.isCurrent(run.gen) {
			return
		}
		if p.WorkerCount() >= p.cfg.MaxWorkers {
			p.log.Debug().Uint64("generation", run.gen).Msg("scale-up target reached")
			return
		}

		added, err := p.scaleOnce(ctx)
		switch {
		case errors.Is(err, errSpawnFailed):
			failures++
			p.mu.Lock()
			if len(p.workers) == 0 {
				p.abandonLocked(run, err)
				p.mu.Unlock()
				return
			}
			p.mu.Unlock()
		case err != nil:
			p.log.Debug().Err(err).Msg("scale-up check failed")
		default:
			failures = 0
			if added > 0 {
				p.attachIdle(ctx, run)
			}
		}
		timer.Reset(p.scaleDelay(failures))
	}
}

// scaleDelay doubles the poll interval per consecutive failed spawn.
func (p *Pool) scaleDelay(failures int) time.Duration {
	return p.cfg.ScaleInterval << min(failures, maxScaleBackoff)
}

// scaleOnce spawns one worker if the budget has room for it.
func (p *Pool) scaleOnce(ctx context.Context) (int, error) {
	p.spawnMu.Lock()
	defer p.spawnMu.Unlock()
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	snap, err := p.cfg.System.Snapshot()
	if err != nil {
		return 0, fmt.Errorf("system snapshot: %w", err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrClosed
	}
	n := len(p.workers)
	b := budget.Compute(snap, p.cfg.MaxLoadPercent, p.cfg.MaxWorkers, p.cfg.HashCeilingMB,
		budget.PoolState{WorkerCount: n, HashPerWorkerMB: p.hashMB})
	if b.WorkerCapacity <= n {
		p.mu.Unlock()
		return 0, nil
	}
	id := p.nextID
	p.nextID++
	p.hashMB = b.HashPerWorkerMB
	p.mu.Unlock()

	recordBudget(b)
	spawned := p.spawn([]int{id}, b.HashPerWorkerMB)
	p.rebalance(b.HashPerWorkerMB)

	p.mu.Lock()
	p.publishStatusLocked()
	p.mu.Unlock()
	if len(spawned) == 0 {
		return 0, errSpawnFailed
	}
	p.log.Info().Int("worker_id", id).Int("workers", n+1).Msg("scaled up")
	return len(spawned), nil
}
