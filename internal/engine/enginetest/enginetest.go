// Package enginetest provides an in-memory UCI engine for tests. It speaks
// enough of the protocol to drive engine.Worker: the handshake, options,
// depth-limited searches with MultiPV, stop and quit.
package enginetest

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/freeeve/enginepool/internal/board"
	"github.com/freeeve/enginepool/internal/engine"
)

// ErrLaunch is returned by Launch when FailLaunches is set.
var ErrLaunch = errors.New("enginetest: launch failed")

// Engine is a Launcher of scripted engine processes. The zero value is
// usable; fields must be set before the first Launch.
type Engine struct {
	// DepthDelay is slept per completed depth.
	DepthDelay time.Duration
	// Score returns the centipawn score of fen from the side to move's view.
	// Defaults to a deterministic hash of the position.
	Score func(fen string) int
	// Mate, when it returns non-zero, reports a mate score instead.
	Mate func(fen string) int
	// FailLaunches fails the first n launches.
	FailLaunches int
	// IgnoreStop keeps searching after stop until the depth is reached.
	IgnoreStop bool
	// CrashOn closes the process output when a search starts on a matching fen.
	CrashOn func(fen string) bool

	mu       sync.Mutex
	launches int
	procs    []*Process
}

// Launch implements engine.Launcher.
func (e *Engine) Launch(ctx context.Context) (engine.Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.launches++
	if e.launches <= e.FailLaunches {
		return nil, ErrLaunch
	}
	p := newProcess(e)
	e.procs = append(e.procs, p)
	return p, nil
}

// Launches counts Launch calls, including failed ones.
func (e *Engine) Launches() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.launches
}

// Processes returns every process started so far.
func (e *Engine) Processes() []*Process {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Process(nil), e.procs...)
}

// Alive counts processes that have not been closed.
func (e *Engine) Alive() int {
	n := 0
	for _, p := range e.Processes() {
		if !p.Closed() {
			n++
		}
	}
	return n
}

func (e *Engine) score(fen string) (int, bool) {
	if e.Mate != nil {
		if m := e.Mate(fen); m != 0 {
			return m, true
		}
	}
	if e.Score != nil {
		return e.Score(fen), false
	}
	return HashScore(fen), false
}

// HashScore is the default score: a stable value in [-150, 150).
func HashScore(fen string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(fen))
	return int(h.Sum32()%300) - 150
}

// Process is one scripted engine instance.
type Process struct {
	eng *Engine

	in   chan string
	quit chan struct{}
	outR *io.PipeReader
	outW *io.PipeWriter

	outMu     sync.Mutex
	closeOnce sync.Once

	mu       sync.Mutex
	commands []string
	options  map[string]string
	fen      string
	search   *search
	closed   bool
}

type search struct {
	stop chan struct{}
	done chan struct{}
}

func newProcess(e *Engine) *Process {
	p := &Process{
		eng:     e,
		in:      make(chan string, 1024),
		quit:    make(chan struct{}),
		options: map[string]string{},
		fen:     board.StartFEN,
	}
	p.outR, p.outW = io.Pipe()
	go p.run()
	return p
}

// Read returns engine output.
func (p *Process) Read(b []byte) (int, error) { return p.outR.Read(b) }

// Write feeds engine input. Like an OS pipe it does not wait for the engine
// to read.
func (p *Process) Write(b []byte) (int, error) {
	for _, line := range strings.Split(string(b), "\n") {
		if line == "" {
			continue
		}
		select {
		case <-p.quit:
			return 0, io.ErrClosedPipe
		case p.in <- line:
		}
	}
	return len(b), nil
}

// Close terminates the engine.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.quit)
		_ = p.outR.Close()
	})
	return nil
}

// Closed reports whether Close was called.
func (p *Process) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Commands returns every command received, in order.
func (p *Process) Commands() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.commands...)
}

// Option returns the last value set for name.
func (p *Process) Option(name string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.options[name]
}

// Crash closes the engine output as if the process died.
func (p *Process) Crash() {
	_ = p.outW.CloseWithError(io.EOF)
}

func (p *Process) emit(line string) {
	p.outMu.Lock()
	defer p.outMu.Unlock()
	_, _ = io.WriteString(p.outW, line+"\n")
}

func (p *Process) run() {
	defer p.outW.Close()
	for {
		var line string
		select {
		case <-p.quit:
			p.stopSearch()
			return
		case line = <-p.in:
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		p.mu.Lock()
		p.commands = append(p.commands, line)
		p.mu.Unlock()

		fields := strings.Fields(line)
		switch fields[0] {
		case "uci":
			p.emit("id name enginetest")
			p.emit("option name Hash type spin default 16 min 1 max 33554432")
			p.emit("uciok")
		case "isready":
			p.emit("readyok")
		case "setoption":
			p.setOption(line)
		case "position":
			if len(fields) > 2 && fields[1] == "fen" {
				p.mu.Lock()
				p.fen = strings.Join(fields[2:], " ")
				p.mu.Unlock()
			} else if len(fields) > 1 && fields[1] == "startpos" {
				p.mu.Lock()
				p.fen = board.StartFEN
				p.mu.Unlock()
			}
		case "go":
			p.stopSearch()
			depth := 1
			if len(fields) > 2 && fields[1] == "depth" {
				if d, err := strconv.Atoi(fields[2]); err == nil && d > 0 {
					depth = d
				}
			}
			p.startSearch(depth)
		case "stop":
			p.stopSearch()
		case "quit":
			p.stopSearch()
			return
		}
	}
}

func (p *Process) setOption(line string) {
	rest := strings.TrimPrefix(line, "setoption name ")
	name, value, _ := strings.Cut(rest, " value ")
	p.mu.Lock()
	p.options[strings.TrimSpace(name)] = strings.TrimSpace(value)
	p.mu.Unlock()
}

func (p *Process) startSearch(depth int) {
	p.mu.Lock()
	fen := p.fen
	multiPV, _ := strconv.Atoi(p.options["MultiPV"])
	s := &search{stop: make(chan struct{}), done: make(chan struct{})}
	p.search = s
	p.mu.Unlock()

	if multiPV < 1 {
		multiPV = 1
	}
	if p.eng.CrashOn != nil && p.eng.CrashOn(fen) {
		close(s.done)
		p.Crash()
		return
	}
	go p.think(s, fen, depth, multiPV)
}

// stopSearch interrupts the running search and waits for its bestmove.
func (p *Process) stopSearch() {
	p.mu.Lock()
	s := p.search
	p.search = nil
	p.mu.Unlock()
	if s == nil {
		return
	}
	if !p.eng.IgnoreStop {
		close(s.stop)
	}
	select {
	case <-s.done:
	case <-p.quit:
	}
}

func (p *Process) think(s *search, fen string, depth, multiPV int) {
	defer close(s.done)

	moves, err := board.LegalMoves(fen)
	if err != nil || len(moves) == 0 {
		p.emit("info depth 0 score cp 0")
		p.emit("bestmove (none)")
		return
	}
	if multiPV > len(moves) {
		multiPV = len(moves)
	}
	base, mate := p.eng.score(fen)

	best := moves[0]
	for d := 1; d <= depth; d++ {
		if p.eng.DepthDelay > 0 {
			select {
			case <-s.stop:
				p.emit("bestmove " + best)
				return
			case <-p.quit:
				return
			case <-time.After(p.eng.DepthDelay):
			}
		} else {
			select {
			case <-s.stop:
				p.emit("bestmove " + best)
				return
			default:
			}
		}
		for k := 1; k <= multiPV; k++ {
			score := fmt.Sprintf("cp %d", base-10*(k-1))
			if mate {
				score = fmt.Sprintf("mate %d", base)
			}
			p.emit(fmt.Sprintf("info depth %d seldepth %d multipv %d score %s nodes %d nps 100000 time %d pv %s",
				d, d+2, k, score, d*1000*k, d, moves[k-1]))
		}
		p.emit(fmt.Sprintf("info depth %d currmove %s currmovenumber 1", d, best))
	}
	p.emit("bestmove " + best)
}
