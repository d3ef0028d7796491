// Package analysis runs candidate-move analysis on a pool of engine workers
// sized against the host's free memory.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"runtime"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/freeeve/enginepool/internal/board"
	"github.com/freeeve/enginepool/internal/budget"
	"github.com/freeeve/enginepool/internal/ease"
	"github.com/freeeve/enginepool/internal/engine"
	"github.com/freeeve/enginepool/internal/explorer"
	"github.com/freeeve/enginepool/internal/predict"
	"github.com/freeeve/enginepool/internal/sysinfo"
)

// Codec validates positions, applies moves and reads the side to move.
type Codec interface {
	Validate(fen string) error
	ApplyMove(fen, move string) (string, bool)
	SideToMove(fen string) (board.Color, error)
}

// Config configures the pool.
type Config struct {
	Launcher engine.Launcher
	Logger   zerolog.Logger
	System   sysinfo.Provider // default: the running host
	Codec    Codec            // default: board.Codec
	Stats    explorer.Source  // optional, for ease
	Oracle   predict.Oracle   // optional, for ease

	MaxLoadPercent int           // RAM load ceiling in percent (default 80)
	MaxWorkers     int           // default NumCPU-1, at least 1
	HashCeilingMB  int           // per-worker hash ceiling (default 256)
	ScaleInterval  time.Duration // scale-up poll interval (default 3s)
	RatingBand     int           // oracle rating (default 1500)
	StopGrace      time.Duration // default engine.DefaultStopGrace
	Ease           ease.Config
}

// Pool owns the workers and the current request generation. Only one request
// (discovery or evaluation) is current at a time; starting another, Cancel
// and Dispose all bump the generation, and anything published for an older
// generation is dropped.
type Pool struct {
	cfg    Config
	log    zerolog.Logger
	codec  Codec
	scorer *ease.Scorer

	ctx    context.Context // pool lifetime
	cancel context.CancelFunc
	wg     sync.WaitGroup

	spawnMu sync.Mutex // one ensureWorkers or scale-up spawn at a time

	mu          sync.Mutex
	workers     []*engine.Worker // ordered by ID
	nextID      int
	hashMB      int
	gen         uint64
	genCancel   context.CancelFunc
	phase       Phase
	run         *evalRun
	results     map[string]Result
	unavailable bool
	closed      bool

	resultsObs *Observable[map[string]Result]
	statusObs  *Observable[Status]
}

// New creates a pool. No processes start until WarmUp or the first request.
func New(cfg Config) (*Pool, error) {
	if cfg.Launcher == nil {
		return nil, errors.New("engine launcher required")
	}
	if cfg.System == nil {
		cfg.System = sysinfo.Host{}
	}
	if cfg.Codec == nil {
		cfg.Codec = board.Codec{}
	}
	if cfg.MaxLoadPercent <= 0 {
		cfg.MaxLoadPercent = 80
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = max(1, runtime.NumCPU()-1)
	}
	if cfg.HashCeilingMB <= 0 {
		cfg.HashCeilingMB = 256
	}
	if cfg.ScaleInterval <= 0 {
		cfg.ScaleInterval = 3 * time.Second
	}
	if cfg.RatingBand <= 0 {
		cfg.RatingBand = 1500
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = engine.DefaultStopGrace
	}
	cfg.Ease.RatingBand = cfg.RatingBand

	log := cfg.Logger.With().Str("component", "pool").Logger()
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		cfg:        cfg,
		log:        log,
		codec:      cfg.Codec,
		scorer:     ease.NewScorer(cfg.Ease, cfg.Stats, cfg.Oracle, cfg.Codec, cfg.Logger),
		ctx:        ctx,
		cancel:     cancel,
		phase:      PhaseIdle,
		results:    map[string]Result{},
		resultsObs: NewObservable(map[string]Result{}),
		statusObs:  NewObservable(Status{Phase: PhaseIdle}),
	}
	return p, nil
}

// WarmUp checks that an engine can run here and starts the planned workers.
// When the check fails the pool stays idle for good and every request is a
// no-op.
func (p *Pool) WarmUp(ctx context.Context) error {
	if prober, ok := p.cfg.Launcher.(engine.Prober); ok {
		if err := prober.Probe(ctx); err != nil {
			p.mu.Lock()
			p.unavailable = true
			p.mu.Unlock()
			p.log.Warn().Err(err).Msg("no engine available, pool disabled")
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	p.mu.Lock()
	unavailable, closed := p.unavailable, p.closed
	p.mu.Unlock()
	if unavailable {
		return ErrUnavailable
	}
	if closed {
		return ErrClosed
	}

	start := time.Now()
	if err := p.ensureWorkers(ctx); err != nil {
		return err
	}
	p.log.Info().
		Int("workers", p.WorkerCount()).
		Dur("elapsed", time.Since(start)).
		Msg("pool warmed up")
	return nil
}

// Available reports whether the pool can run requests.
func (p *Pool) Available() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.unavailable && !p.closed
}

// WorkerCount returns the number of live workers.
func (p *Pool) WorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// Generation returns the current request generation.
func (p *Pool) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen
}

// Results returns the latest result per move of the current request.
func (p *Pool) Results() map[string]Result { return p.resultsObs.Get() }

// SubscribeResults streams result maps, latest wins.
func (p *Pool) SubscribeResults() (<-chan map[string]Result, func()) {
	return p.resultsObs.Subscribe()
}

// Status returns the latest pool status.
func (p *Pool) Status() Status { return p.statusObs.Get() }

// SubscribeStatus streams statuses, latest wins.
func (p *Pool) SubscribeStatus() (<-chan Status, func()) {
	return p.statusObs.Subscribe()
}

// Cancel abandons the current request. Workers stop searching but stay
// alive for the next request.
func (p *Pool) Cancel() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	gen := p.bumpLocked()
	p.phase = PhaseIdle
	p.publishStatusLocked()
	workers := slices.Clone(p.workers)
	p.mu.Unlock()

	for _, w := range workers {
		w.Stop()
	}
	p.log.Info().Uint64("generation", gen).Msg("analysis cancelled")
}

// cancelGeneration cancels gen if it is still the running request.
func (p *Pool) cancelGeneration(gen uint64) {
	p.mu.Lock()
	running := p.gen == gen && p.phase != PhaseIdle && p.phase != PhaseComplete
	p.mu.Unlock()
	if running {
		p.Cancel()
	}
}

// Dispose stops every worker process and waits for background work.
func (p *Pool) Dispose() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.bumpLocked()
	p.phase = PhaseIdle
	workers := p.workers
	p.workers = nil
	p.publishStatusLocked()
	p.mu.Unlock()

	p.cancel()
	var g errgroup.Group
	for _, w := range workers {
		g.Go(func() error {
			w.Dispose()
			return nil
		})
	}
	_ = g.Wait()
	p.wg.Wait()
	workersGauge.Set(0)
	p.log.Info().Int("workers", len(workers)).Msg("pool disposed")
}

// bumpLocked starts a new generation and cancels the previous one's context.
func (p *Pool) bumpLocked() uint64 {
	if p.phase == PhaseDiscovering || p.phase == PhaseEvaluating {
		cancellations.Inc()
	}
	p.gen++
	if p.genCancel != nil {
		p.genCancel()
		p.genCancel = nil
	}
	if p.run != nil {
		p.run.queue.Clear()
		p.run = nil
	}
	generationGauge.Set(float64(p.gen))
	return p.gen
}

// genContextLocked returns a context cancelled when the current generation ends.
func (p *Pool) genContextLocked() context.Context {
	ctx, cancel := context.WithCancel(p.ctx)
	p.genCancel = cancel
	return ctx
}

func (p *Pool) isCurrent(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen == gen
}

func (p *Pool) statusLocked() Status {
	st := Status{
		Phase:           p.phase,
		Generation:      p.gen,
		ActiveWorkers:   len(p.workers),
		HashPerWorkerMB: p.hashMB,
		Evaluating:      []string{},
	}
	if r := p.run; r != nil {
		st.TotalMoves = r.total
		st.CompletedMoves = r.completed
		for mv := range r.inFlight {
			st.Evaluating = append(st.Evaluating, mv)
		}
		sort.Strings(st.Evaluating)
	}
	return st
}

func (p *Pool) publishStatusLocked() {
	workersGauge.Set(float64(len(p.workers)))
	p.statusObs.Publish(p.statusLocked())
}

func (p *Pool) publishResultsLocked() {
	p.resultsObs.Publish(maps.Clone(p.results))
}

// ensureWorkers sizes the pool to the current budget: excess workers are
// disposed, missing ones are spawned in parallel and hash is rebalanced.
func (p *Pool) ensureWorkers(ctx context.Context) error {
	p.spawnMu.Lock()
	defer p.spawnMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	snap, err := p.cfg.System.Snapshot()
	if err != nil {
		return fmt.Errorf("system snapshot: %w", err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	b := budget.Compute(snap, p.cfg.MaxLoadPercent, p.cfg.MaxWorkers, p.cfg.HashCeilingMB,
		budget.PoolState{WorkerCount: len(p.workers), HashPerWorkerMB: p.hashMB})
	var excess []*engine.Worker
	if len(p.workers) > b.WorkerCapacity {
		excess = slices.Clone(p.workers[b.WorkerCapacity:])
		p.workers = p.workers[:b.WorkerCapacity]
	}
	ids := make([]int, b.WorkerCapacity-len(p.workers))
	for i := range ids {
		ids[i] = p.nextID
		p.nextID++
	}
	p.hashMB = b.HashPerWorkerMB
	p.mu.Unlock()

	recordBudget(b)
	p.log.Debug().
		Int("free_mb", snap.FreeRAMMB).
		Int("total_mb", snap.TotalRAMMB).
		Int("headroom_mb", b.EffectiveHeadroomMB).
		Int("capacity", b.WorkerCapacity).
		Int("hash_mb", b.HashPerWorkerMB).
		Msg("budget computed")

	for _, w := range excess {
		p.log.Info().Int("worker_id", w.ID()).Msg("trimming worker over budget")
		w.Dispose()
	}
	p.spawn(ids, b.HashPerWorkerMB)
	p.rebalance(b.HashPerWorkerMB)
	p.adviseCPU(snap)

	p.mu.Lock()
	n := len(p.workers)
	p.publishStatusLocked()
	p.mu.Unlock()
	if n == 0 {
		return ErrNoWorkers
	}
	return nil
}

// spawn starts one worker per id in parallel. Failures are logged and the
// slot is skipped.
func (p *Pool) spawn(ids []int, hashMB int) []*engine.Worker {
	if len(ids) == 0 {
		return nil
	}
	var (
		g       errgroup.Group
		mu      sync.Mutex
		spawned []*engine.Worker
	)
	for _, id := range ids {
		g.Go(func() error {
			w, err := engine.Spawn(p.ctx, p.cfg.Launcher, id, hashMB, p.log)
			if err != nil {
				spawnTotal.WithLabelValues("failed").Inc()
				p.log.Warn().Err(err).Int("worker_id", id).Msg("worker spawn failed, skipping slot")
				return nil
			}
			w.StopGrace = p.cfg.StopGrace
			spawnTotal.WithLabelValues("ok").Inc()
			mu.Lock()
			spawned = append(spawned, w)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		for _, w := range spawned {
			w.Dispose()
		}
		return nil
	}
	p.workers = append(p.workers, spawned...)
	sort.Slice(p.workers, func(i, j int) bool { return p.workers[i].ID() < p.workers[j].ID() })
	p.mu.Unlock()

	p.log.Info().Int("requested", len(ids)).Int("started", len(spawned)).Int("hash_mb", hashMB).Msg("workers spawned")
	return spawned
}

// rebalance pushes the planned hash size to workers that differ from it.
func (p *Pool) rebalance(hashMB int) {
	p.mu.Lock()
	workers := slices.Clone(p.workers)
	p.mu.Unlock()
	for _, w := range workers {
		if w.HashMB() == hashMB {
			continue
		}
		if err := w.UpdateHash(p.ctx, hashMB); err != nil {
			p.log.Warn().Err(err).Int("worker_id", w.ID()).Int("hash_mb", hashMB).Msg("hash update failed")
		}
	}
}

// adviseCPU logs when engine processes outnumber cores. CPU never limits
// capacity; RAM does.
func (p *Pool) adviseCPU(snap sysinfo.Snapshot) {
	n := p.WorkerCount()
	if snap.LogicalCores > 0 && n+1 > snap.LogicalCores {
		p.log.Debug().Int("workers", n).Int("cores", snap.LogicalCores).Msg("engine processes exceed logical cores")
	}
}

// removeWorker drops a failed worker from the pool and disposes it.
func (p *Pool) removeWorker(w *engine.Worker, cause error) {
	p.mu.Lock()
	i := slices.Index(p.workers, w)
	if i >= 0 {
		p.workers = slices.Delete(p.workers, i, i+1)
	}
	p.publishStatusLocked()
	p.mu.Unlock()

	if i >= 0 {
		workerFailures.WithLabelValues(failureReason(cause)).Inc()
		p.log.Warn().Err(cause).Int("worker_id", w.ID()).Msg("worker removed")
	}
	w.Dispose()
}

func isWorkerFailure(err error) bool {
	return errors.Is(err, engine.ErrProcessExited) ||
		errors.Is(err, engine.ErrUnresponsive) ||
		errors.Is(err, engine.ErrDisposed)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, engine.ErrProcessExited):
		return "exited"
	case errors.Is(err, engine.ErrUnresponsive):
		return "unresponsive"
	case errors.Is(err, engine.ErrDisposed):
		return "disposed"
	default:
		return "other"
	}
}

func recordBudget(b budget.Budget) {
	hashGauge.Set(float64(b.HashPerWorkerMB))
	headroomGauge.Set(float64(b.EffectiveHeadroomMB))
}
