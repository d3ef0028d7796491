package engine

import (
	"bufio"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultStopGrace is how long a stopped search may take to emit bestmove.
	DefaultStopGrace = 5 * time.Second

	initTimeout = 10 * time.Second
	lineBuffer  = 256
)

// Request describes one search.
type Request struct {
	FEN     string
	Depth   int
	MultiPV int             // default 1
	OnInfo  func(info Info) // called for every scored info line, on the caller's goroutine
}

// SearchResult is the outcome of a completed search.
type SearchResult struct {
	BestMove string
	Lines    []Info // latest line per multipv index, ordered by index
}

// Best returns the principal line, if any.
func (r SearchResult) Best() (Info, bool) {
	if len(r.Lines) == 0 {
		return Info{}, false
	}
	return r.Lines[0], true
}

// Worker owns exactly one engine process. Evaluate is single-flight: a new
// call stops the pending one first.
type Worker struct {
	id   int
	proc Process
	log  zerolog.Logger

	// StopGrace bounds the wait for bestmove after a stop.
	StopGrace time.Duration

	lines chan string
	done  chan struct{}

	writeMu sync.Mutex
	evalMu  sync.Mutex // held by whoever consumes lines

	mu          sync.Mutex
	state       State
	stopCh      chan struct{}
	stopSeq     uint64
	wantHash    int
	appliedHash int
	multiPV     int
	disposeOnce sync.Once
}

// NewWorker wraps a started process. Call Init before Evaluate.
func NewWorker(id int, proc Process, log zerolog.Logger) *Worker {
	w := &Worker{
		id:        id,
		proc:      proc,
		log:       log.With().Int("worker_id", id).Logger(),
		StopGrace: DefaultStopGrace,
		lines:     make(chan string, lineBuffer),
		done:      make(chan struct{}),
		state:     StateSpawning,
	}
	go w.readLoop()
	return w
}

// Spawn launches a process and completes the UCI handshake.
func Spawn(ctx context.Context, l Launcher, id, hashMB int, log zerolog.Logger) (*Worker, error) {
	proc, err := l.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("launch worker %d: %w", id, err)
	}
	w := NewWorker(id, proc, log)
	if err := w.Init(ctx, hashMB); err != nil {
		w.Dispose()
		return nil, fmt.Errorf("init worker %d: %w", id, err)
	}
	return w, nil
}

// ID returns the worker's pool index.
func (w *Worker) ID() int { return w.id }

// State returns the current lifecycle state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// HashMB returns the hash size the worker is configured for. A pending
// change counts as configured.
func (w *Worker) HashMB() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.wantHash
}

// AppliedHashMB returns the hash size last sent to the engine.
func (w *Worker) AppliedHashMB() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.appliedHash
}

func (w *Worker) readLoop() {
	defer close(w.lines)
	sc := bufio.NewScanner(w.proc)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		select {
		case <-w.done:
			// disposed: keep reading to EOF so the process can be reaped
			continue
		default:
		}
		select {
		case w.lines <- line:
		case <-w.done:
		}
	}
}

func (w *Worker) send(cmd string) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if _, err := w.proc.Write([]byte(cmd + "\n")); err != nil {
		return fmt.Errorf("%w: write %q: %v", ErrProcessExited, cmd, err)
	}
	w.log.Trace().Str("cmd", cmd).Msg("engine <")
	return nil
}

// waitFor consumes lines until one equals token. Caller holds evalMu.
func (w *Worker) waitFor(ctx context.Context, token string, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case line, ok := <-w.lines:
			if !ok {
				w.setState(StateStopped)
				return ErrProcessExited
			}
			if line == token {
				return nil
			}
		case <-timer.C:
			w.setState(StateStopped)
			return fmt.Errorf("%w: no %s after %s", ErrUnresponsive, token, timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	if w.state != StateDisposed {
		w.state = s
	}
	w.mu.Unlock()
}

// Init performs the UCI handshake and sets Threads, Hash and MultiPV.
func (w *Worker) Init(ctx context.Context, hashMB int) error {
	w.evalMu.Lock()
	defer w.evalMu.Unlock()

	if err := w.send("uci"); err != nil {
		return err
	}
	if err := w.waitFor(ctx, "uciok", initTimeout); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	for _, cmd := range []string{
		setOptionCmd("Threads", 1),
		setOptionCmd("Hash", hashMB),
		setOptionCmd("MultiPV", 1),
	} {
		if err := w.send(cmd); err != nil {
			return err
		}
	}
	if err := w.send("isready"); err != nil {
		return err
	}
	if err := w.waitFor(ctx, "readyok", initTimeout); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	w.mu.Lock()
	w.wantHash = hashMB
	w.appliedHash = hashMB
	w.multiPV = 1
	if w.state == StateSpawning {
		w.state = StateReady
	}
	w.mu.Unlock()
	w.log.Debug().Int("hash_mb", hashMB).Msg("engine ready")
	return nil
}

// UpdateHash changes the hash size without restarting the process. It is
// applied now when the worker is idle, otherwise before its next search.
func (w *Worker) UpdateHash(ctx context.Context, mb int) error {
	w.mu.Lock()
	if w.state == StateDisposed {
		w.mu.Unlock()
		return ErrDisposed
	}
	w.wantHash = mb
	w.mu.Unlock()

	if !w.evalMu.TryLock() {
		return nil
	}
	defer w.evalMu.Unlock()
	w.mu.Lock()
	pv := w.multiPV
	w.mu.Unlock()
	changed, err := w.applyOptions(pv)
	if err != nil || !changed {
		return err
	}
	if err := w.send("isready"); err != nil {
		return err
	}
	return w.waitFor(ctx, "readyok", w.StopGrace)
}

// applyOptions sends pending option changes. Caller holds evalMu.
func (w *Worker) applyOptions(multiPV int) (bool, error) {
	w.mu.Lock()
	hash, applied, curPV := w.wantHash, w.appliedHash, w.multiPV
	w.mu.Unlock()

	changed := false
	if hash != applied {
		if err := w.send(setOptionCmd("Hash", hash)); err != nil {
			return false, err
		}
		w.mu.Lock()
		w.appliedHash = hash
		w.mu.Unlock()
		w.log.Debug().Int("hash_mb", hash).Msg("hash updated")
		changed = true
	}
	if multiPV != curPV {
		if err := w.send(setOptionCmd("MultiPV", multiPV)); err != nil {
			return false, err
		}
		w.mu.Lock()
		w.multiPV = multiPV
		w.mu.Unlock()
		changed = true
	}
	return changed, nil
}

// Stop cancels the pending evaluation, which then returns ErrCancelled once
// the engine has acknowledged with bestmove.
func (w *Worker) Stop() {
	w.mu.Lock()
	w.stopSeq++
	if w.stopCh != nil {
		close(w.stopCh)
		w.stopCh = nil
	}
	w.mu.Unlock()
}

// Evaluate runs a depth-limited search and blocks until bestmove.
func (w *Worker) Evaluate(ctx context.Context, req Request) (SearchResult, error) {
	if req.MultiPV < 1 {
		req.MultiPV = 1
	}
	if req.Depth < 1 {
		req.Depth = 1
	}

	w.Stop()
	w.mu.Lock()
	seq := w.stopSeq
	w.mu.Unlock()

	w.evalMu.Lock()
	defer w.evalMu.Unlock()

	if err := ctx.Err(); err != nil {
		return SearchResult{}, fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	w.mu.Lock()
	switch {
	case w.state == StateDisposed:
		w.mu.Unlock()
		return SearchResult{}, ErrDisposed
	case w.state == StateStopped:
		w.mu.Unlock()
		return SearchResult{}, ErrUnresponsive
	case w.stopSeq != seq:
		w.mu.Unlock()
		return SearchResult{}, ErrCancelled
	}
	stopCh := make(chan struct{})
	w.stopCh = stopCh
	w.state = StateEvaluating
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		if w.stopCh == stopCh {
			w.stopCh = nil
		}
		if w.state == StateEvaluating {
			w.state = StateReady
		}
		w.mu.Unlock()
	}()

	if err := w.prepare(ctx, req.MultiPV); err != nil {
		return SearchResult{}, err
	}
	if err := w.send("position fen " + req.FEN); err != nil {
		return SearchResult{}, err
	}
	if err := w.send(fmt.Sprintf("go depth %d", req.Depth)); err != nil {
		return SearchResult{}, err
	}

	latest := make(map[int]Info, req.MultiPV)
	for {
		select {
		case line, ok := <-w.lines:
			if !ok {
				w.setState(StateStopped)
				return SearchResult{}, ErrProcessExited
			}
			if info, ok := parseInfo(line); ok {
				if info.MultiPV > req.MultiPV {
					continue
				}
				latest[info.MultiPV] = info
				if req.OnInfo != nil {
					req.OnInfo(info)
				}
				continue
			}
			if mv, ok := parseBestMove(line); ok {
				return collect(mv, latest), nil
			}
		case <-stopCh:
			if err := w.abort(); err != nil {
				return SearchResult{}, err
			}
			return SearchResult{}, ErrCancelled
		case <-ctx.Done():
			if err := w.abort(); err != nil {
				return SearchResult{}, err
			}
			return SearchResult{}, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}
	}
}

// prepare applies pending options and syncs with the engine so stale output
// from an earlier search cannot leak into this one.
func (w *Worker) prepare(ctx context.Context, multiPV int) error {
	if err := w.send("stop"); err != nil {
		return err
	}
	if _, err := w.applyOptions(multiPV); err != nil {
		return err
	}
	if err := w.send("isready"); err != nil {
		return err
	}
	return w.waitFor(ctx, "readyok", w.StopGrace)
}

// abort sends stop and drains until bestmove.
func (w *Worker) abort() error {
	if err := w.send("stop"); err != nil {
		return err
	}
	timer := time.NewTimer(w.StopGrace)
	defer timer.Stop()
	for {
		select {
		case line, ok := <-w.lines:
			if !ok {
				w.setState(StateStopped)
				return ErrProcessExited
			}
			if _, ok := parseBestMove(line); ok {
				return nil
			}
		case <-timer.C:
			w.setState(StateStopped)
			w.log.Warn().Dur("grace", w.StopGrace).Msg("engine ignored stop")
			return ErrUnresponsive
		}
	}
}

func collect(best string, latest map[int]Info) SearchResult {
	res := SearchResult{BestMove: best, Lines: make([]Info, 0, len(latest))}
	for _, info := range latest {
		res.Lines = append(res.Lines, info)
	}
	sort.Slice(res.Lines, func(i, j int) bool { return res.Lines[i].MultiPV < res.Lines[j].MultiPV })
	return res
}

// Dispose sends quit and terminates the process. Safe to call repeatedly.
func (w *Worker) Dispose() {
	w.disposeOnce.Do(func() {
		w.Stop()
		w.mu.Lock()
		w.state = StateDisposed
		w.mu.Unlock()

		_ = w.send("quit")
		// output still buffered in lines is dropped; nobody evaluates after
		// this. Close waits up to its grace for the engine to exit, then kills.
		close(w.done)
		if err := w.proc.Close(); err != nil {
			w.log.Debug().Err(err).Msg("close engine")
		}
	})
}
