package analysis

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/enginepool/internal/board"
	"github.com/freeeve/enginepool/internal/ease"
	"github.com/freeeve/enginepool/internal/engine"
)

// evalRun is one evaluation request. All fields are guarded by the pool
// mutex.
type evalRun struct {
	gen       uint64
	fen       string
	side      board.Color
	evalDepth int
	easeDepth int

	queue     *moveQueue
	total     int
	settled   int
	completed int
	inFlight  map[string]int // move -> worker id
	attached  map[*engine.Worker]bool
}

// StartEvaluation evaluates every move of moves from fen and returns the new
// generation. Work continues in the background: each move publishes a
// partial result (score) and then a completed one (score and ease). Illegal
// and duplicate moves get no result of their own. Cancelling ctx cancels the
// generation. Returns 0 when the pool is unavailable or fen is invalid.
func (p *Pool) StartEvaluation(ctx context.Context, fen string, moves []string, evalDepth, easeDepth int) uint64 {
	if err := p.codec.Validate(fen); err != nil {
		p.log.Warn().Err(err).Str("fen", fen).Msg("evaluation rejected")
		return 0
	}
	side, err := p.codec.SideToMove(fen)
	if err != nil {
		p.log.Warn().Err(err).Str("fen", fen).Msg("evaluation rejected")
		return 0
	}
	if evalDepth < 1 {
		evalDepth = 1
	}
	if easeDepth < 1 {
		easeDepth = evalDepth
	}

	p.mu.Lock()
	if p.unavailable || p.closed {
		p.mu.Unlock()
		return 0
	}
	gen := p.bumpLocked()
	gctx := p.genContextLocked()

	run := &evalRun{
		gen:       gen,
		fen:       fen,
		side:      side,
		evalDepth: evalDepth,
		easeDepth: easeDepth,
		queue:     newMoveQueue(len(moves)),
		inFlight:  make(map[string]int),
		attached:  make(map[*engine.Worker]bool),
	}
	seen := make(map[string]bool, len(moves))
	for _, mv := range moves {
		if seen[mv] {
			continue
		}
		seen[mv] = true
		run.total++
		child, ok := p.codec.ApplyMove(fen, mv)
		if !ok {
			run.settled++
			movesTotal.WithLabelValues("illegal").Inc()
			p.log.Debug().Str("move", mv).Msg("illegal move skipped")
			continue
		}
		run.queue.Enqueue(queuedMove{move: mv, fen: child})
	}
	p.run = run
	p.results = map[string]Result{}
	p.publishResultsLocked()

	if run.settled == run.total {
		p.phase = PhaseComplete
		p.publishStatusLocked()
		p.mu.Unlock()
		return gen
	}
	// workers may still be spawning; the phase already reflects the request
	p.phase = PhaseEvaluating
	p.publishStatusLocked()
	p.wg.Add(1)
	p.mu.Unlock()

	context.AfterFunc(ctx, func() { p.cancelGeneration(gen) })
	p.log.Info().
		Uint64("generation", gen).
		Int("moves", run.total).
		Int("eval_depth", evalDepth).
		Int("ease_depth", easeDepth).
		Msg("evaluation started")

	go func() {
		defer p.wg.Done()
		p.runEvaluation(gctx, run)
	}()
	return gen
}

func (p *Pool) runEvaluation(ctx context.Context, run *evalRun) {
	err := p.ensureWorkers(ctx)
	if err != nil && !errors.Is(err, ErrNoWorkers) && p.isCurrent(run.gen) {
		p.log.Warn().Err(err).Uint64("generation", run.gen).Msg("ensure workers")
	}

	p.mu.Lock()
	if run.gen != p.gen {
		p.mu.Unlock()
		return
	}
	if len(p.workers) == 0 {
		if err == nil {
			err = ErrNoWorkers
		}
		p.abandonLocked(run, err)
		p.mu.Unlock()
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	p.attachIdle(ctx, run)

	go func() {
		defer p.wg.Done()
		p.scaleLoop(ctx, run)
	}()
}

// abandonLocked ends an unfinished run as idle when no worker is left to
// serve it.
func (p *Pool) abandonLocked(run *evalRun, err error) {
	if run.gen != p.gen || p.run != run || run.settled >= run.total {
		return
	}
	if p.genCancel != nil {
		p.genCancel()
		p.genCancel = nil
	}
	run.queue.Clear()
	p.run = nil
	p.phase = PhaseIdle
	p.publishStatusLocked()
	p.log.Warn().Err(err).
		Uint64("generation", run.gen).
		Int("unfinished", run.total-run.settled).
		Msg("no workers, evaluation abandoned")
}

// attachIdle starts a loop for every live worker not already serving run.
func (p *Pool) attachIdle(ctx context.Context, run *evalRun) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.workers {
		p.attachLocked(ctx, run, w)
	}
}

func (p *Pool) attachLocked(ctx context.Context, run *evalRun, w *engine.Worker) {
	if run.gen != p.gen || p.closed || run.attached[w] || run.queue.Len() == 0 {
		return
	}
	run.attached[w] = true
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.workerLoop(ctx, run, w)
	}()
}

// workerLoop pulls moves from the shared queue until it is empty or the
// generation changes.
func (p *Pool) workerLoop(ctx context.Context, run *evalRun, w *engine.Worker) {
	log := p.log.With().Int("worker_id", w.ID()).Uint64("generation", run.gen).Logger()
	detach := func() {
		p.mu.Lock()
		delete(run.attached, w)
		p.mu.Unlock()
	}

	for {
		p.mu.Lock()
		if run.gen != p.gen {
			delete(run.attached, w)
			p.mu.Unlock()
			return
		}
		// detach under the lock that saw the queue empty so a requeue can reattach
		item, ok := run.queue.Dequeue()
		if !ok {
			delete(run.attached, w)
			p.mu.Unlock()
			return
		}
		run.inFlight[item.move] = w.ID()
		p.publishStatusLocked()
		p.mu.Unlock()

		err := p.evaluateMove(ctx, run, w, item, log)
		if err == nil {
			continue
		}
		if !p.isCurrent(run.gen) {
			log.Debug().Err(err).Str("move", item.move).Msg("abandoned stale evaluation")
			detach()
			return
		}

		failed := isWorkerFailure(err)
		p.mu.Lock()
		delete(run.inFlight, item.move)
		run.queue.Requeue(item)
		p.publishStatusLocked()
		p.mu.Unlock()

		if failed {
			log.Warn().Err(err).Str("move", item.move).Msg("worker failed, move requeued")
			p.removeWorker(w, err)
			p.attachIdle(ctx, run)
			return
		}
		log.Warn().Err(err).Str("move", item.move).Msg("evaluation interrupted, move requeued")
	}
}

// evaluateMove publishes the partial and then the completed result for one
// move. A nil error with a stale generation means the results were dropped.
func (p *Pool) evaluateMove(ctx context.Context, run *evalRun, w *engine.Worker, item queuedMove, log zerolog.Logger) error {
	start := time.Now()
	res, err := w.Evaluate(ctx, engine.Request{FEN: item.fen, Depth: run.evalDepth})
	if err != nil {
		return err
	}
	moveDuration.WithLabelValues("eval").Observe(time.Since(start).Seconds())

	best, ok := res.Best()
	if !ok {
		// nothing scored: settle without a score rather than retry forever
		r := Result{Move: item.move, Depth: 0}
		if res.BestMove != "" {
			r.PV = []string{res.BestMove}
		}
		p.publishResult(run, item.move, r, true)
		return nil
	}

	// best.Score is from the child position's side to move
	ref := best.Score
	if childSide, err := p.codec.SideToMove(item.fen); err != nil || childSide != run.side {
		ref = ref.Negate()
	}
	r := resultFromInfo(item.move, best, ref)
	if !p.publishResult(run, item.move, r, false) {
		return nil
	}

	easeStart := time.Now()
	e, err := p.scorer.Score(ctx, workerEvaluator{w: w}, item.fen, best.Score, run.easeDepth)
	if err != nil {
		return err
	}
	moveDuration.WithLabelValues("ease").Observe(time.Since(easeStart).Seconds())

	r.Ease = e
	if p.publishResult(run, item.move, r, true) {
		ev := log.Debug().Str("move", item.move).Int("depth", r.Depth).Dur("elapsed", time.Since(start))
		if r.ScoreCP != nil {
			ev = ev.Int("cp", *r.ScoreCP)
		}
		if e != nil {
			ev = ev.Float64("ease", *e)
		}
		ev.Msg("move evaluated")
	}
	return nil
}

// publishResult stores r if run is still current. A final result settles
// the move. Returns false for a stale generation.
func (p *Pool) publishResult(run *evalRun, move string, r Result, final bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if run.gen != p.gen || p.run != run {
		return false
	}
	p.results[move] = r
	p.publishResultsLocked()
	if final {
		delete(run.inFlight, move)
		run.settled++
		run.completed++
		movesTotal.WithLabelValues("evaluated").Inc()
		if run.settled >= run.total {
			p.phase = PhaseComplete
			p.log.Info().
				Uint64("generation", run.gen).
				Int("completed", run.completed).
				Int("total", run.total).
				Msg("evaluation complete")
		}
	}
	p.publishStatusLocked()
	return true
}

// workerEvaluator runs ease searches on the worker that owns the move.
type workerEvaluator struct {
	w *engine.Worker
}

func (e workerEvaluator) Evaluate(ctx context.Context, fen string, depth int) (engine.Score, error) {
	res, err := e.w.Evaluate(ctx, engine.Request{FEN: fen, Depth: depth})
	if err != nil {
		return engine.Score{}, err
	}
	best, ok := res.Best()
	if !ok {
		return engine.Score{}, ease.ErrNoScore
	}
	return best.Score, nil
}

var _ ease.Evaluator = workerEvaluator{}
