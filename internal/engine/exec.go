package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/freeeve/uci"
	"github.com/rs/zerolog"
)

// ExecLauncher starts an engine binary as a child process.
type ExecLauncher struct {
	Path string
	Args []string
	Nice int // nice value for engine processes (0 = disabled)
}

// Launch starts the binary. The process outlives ctx; only Close ends it.
func (l ExecLauncher) Launch(ctx context.Context) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.Path == "" {
		return nil, errors.New("engine path required")
	}

	cmd := exec.Command(l.Path, l.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", l.Path, err)
	}

	if l.Nice > 0 {
		// best effort: a failed renice still leaves a usable engine
		_ = setNice(cmd.Process.Pid, min(l.Nice, 19))
	}

	return &execProcess{cmd: cmd, stdin: stdin, stdout: stdout, eof: make(chan struct{})}, nil
}

// Probe checks that the binary exists and answers a depth-1 search. The
// probe engine runs as a throwaway worker, so cancelling ctx stops the
// search and closes the process.
func (l ExecLauncher) Probe(ctx context.Context) error {
	if l.Path == "" {
		return errors.New("engine path required")
	}
	if _, err := exec.LookPath(l.Path); err != nil {
		return fmt.Errorf("engine not found: %w", err)
	}

	w, err := Spawn(ctx, l, 0, probeHashMB, zerolog.Nop())
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	defer w.Dispose()
	w.StopGrace = probeStopGrace

	res, err := w.Evaluate(ctx, Request{FEN: startFEN, Depth: 1})
	if err != nil {
		return fmt.Errorf("probe search: %w", err)
	}
	if _, ok := res.Best(); !ok {
		return errors.New("probe search returned no score")
	}
	return nil
}

// Search runs one standalone search through a fresh engine process and
// returns the deepest principal line with the engine's best move. It blocks
// until the engine answers, so it suits one-shot command-line checks rather
// than pool work.
func (l ExecLauncher) Search(fen string, depth int) (Info, string, error) {
	if l.Path == "" {
		return Info{}, "", errors.New("engine path required")
	}
	eng, err := l.uciEngine()
	if err != nil {
		return Info{}, "", fmt.Errorf("create engine: %w", err)
	}
	defer eng.Close()

	if err := eng.SetOptions(uci.Options{Hash: probeHashMB, Threads: 1, MultiPV: 1}); err != nil {
		return Info{}, "", fmt.Errorf("set options: %w", err)
	}
	if err := eng.SetFEN(fen); err != nil {
		return Info{}, "", fmt.Errorf("set FEN: %w", err)
	}
	res, err := eng.GoDepth(max(depth, 1))
	if err != nil {
		return Info{}, "", fmt.Errorf("search: %w", err)
	}

	var (
		best  uci.ScoreResult
		found bool
	)
	for _, r := range res.Results {
		if r.MultiPV > 1 {
			continue
		}
		if !found || r.Depth > best.Depth {
			best, found = r, true
		}
	}
	if !found {
		return Info{}, res.BestMove, errors.New("search returned no scored line")
	}
	return infoFromUCI(best), res.BestMove, nil
}

func (l ExecLauncher) uciEngine() (*uci.Engine, error) {
	if l.Nice > 0 {
		if eng, err := uci.NewEngineNice(min(l.Nice, 19), l.Path, l.Args...); err == nil {
			return eng, nil
		}
	}
	return uci.NewEngine(l.Path, l.Args...)
}

func infoFromUCI(r uci.ScoreResult) Info {
	info := Info{
		Depth:    r.Depth,
		SelDepth: r.SelDepth,
		MultiPV:  max(r.MultiPV, 1),
		Nodes:    int64(r.Nodes),
		NPS:      int64(r.NodesPerSecond),
		TimeMs:   int64(r.Time),
		PV:       r.BestMoves,
	}
	if r.Mate {
		info.Score = Score{Mate: r.Score, IsMate: true}
	} else {
		info.Score = Score{CP: r.Score}
	}
	return info
}

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

const (
	probeHashMB    = 16
	probeStopGrace = time.Second
	exitGrace      = 2 * time.Second
)

type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	eof     chan struct{} // closed once Read has returned an error
	eofOnce sync.Once

	closeOnce sync.Once
	closeErr  error
}

func (p *execProcess) Read(b []byte) (int, error) {
	n, err := p.stdout.Read(b)
	if err != nil {
		p.eofOnce.Do(func() { close(p.eof) })
	}
	return n, err
}

func (p *execProcess) Write(b []byte) (int, error) { return p.stdin.Write(b) }

// Close closes stdin (engines exit on EOF after quit) and kills the process
// if its output has not ended within exitGrace. Wait runs only after the
// reader has seen EOF, since it closes stdout.
func (p *execProcess) Close() error {
	p.closeOnce.Do(func() {
		_ = p.stdin.Close()
		select {
		case <-p.eof:
		case <-time.After(exitGrace):
			p.closeErr = p.cmd.Process.Kill()
			select {
			case <-p.eof:
			case <-time.After(exitGrace):
				// no reader drained the output; reap anyway
			}
		}
		_ = p.cmd.Wait()
	})
	return p.closeErr
}
