package analysis

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/freeeve/enginepool/internal/engine"
)

// RunDiscovery searches fen on worker #0 for the topN best lines. Progress
// goes to onProgress (may be nil) while the request is current. It returns
// ErrStale when a newer request or Cancel superseded it.
func (p *Pool) RunDiscovery(ctx context.Context, fen string, depth, topN int, onProgress func(DiscoveryProgress)) (DiscoveryResult, error) {
	if topN < 1 {
		topN = 1
	}
	if depth < 1 {
		depth = 1
	}

	p.mu.Lock()
	switch {
	case p.unavailable:
		p.mu.Unlock()
		return DiscoveryResult{}, ErrUnavailable
	case p.closed:
		p.mu.Unlock()
		return DiscoveryResult{}, ErrClosed
	}
	gen := p.bumpLocked()
	gctx := p.genContextLocked()
	p.phase = PhaseDiscovering
	p.publishStatusLocked()
	p.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { p.cancelGeneration(gen) })
	defer stop()

	if err := p.ensureWorkers(gctx); err != nil && !errors.Is(err, ErrNoWorkers) {
		p.log.Warn().Err(err).Uint64("generation", gen).Msg("ensure workers")
	}

	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return DiscoveryResult{}, p.staleErr(ctx)
	}
	if len(p.workers) == 0 {
		p.phase = PhaseIdle
		p.publishStatusLocked()
		p.mu.Unlock()
		return DiscoveryResult{}, ErrNoWorkers
	}
	w := p.workers[0]
	p.mu.Unlock()

	p.log.Info().Uint64("generation", gen).Int("depth", depth).Int("top", topN).Int("worker_id", w.ID()).Msg("discovery started")

	latest := make(map[int]engine.Info, topN)
	var last engine.Info
	res, err := w.Evaluate(gctx, engine.Request{
		FEN:     fen,
		Depth:   depth,
		MultiPV: topN,
		OnInfo: func(info engine.Info) {
			latest[info.MultiPV] = info
			last = info
			if onProgress == nil || !p.isCurrent(gen) {
				return
			}
			onProgress(DiscoveryProgress{Depth: last.Depth, Nodes: last.Nodes, Lines: discoveryLines(latest)})
		},
	})
	if !p.isCurrent(gen) {
		return DiscoveryResult{}, p.staleErr(ctx)
	}
	if err != nil {
		if isWorkerFailure(err) {
			p.removeWorker(w, err)
		}
		p.mu.Lock()
		if gen == p.gen {
			p.phase = PhaseIdle
			p.publishStatusLocked()
		}
		p.mu.Unlock()
		return DiscoveryResult{}, fmt.Errorf("discovery: %w", err)
	}

	out := DiscoveryResult{Nodes: last.Nodes, Lines: make([]DiscoveryLine, 0, len(res.Lines))}
	for _, info := range res.Lines {
		out.Lines = append(out.Lines, discoveryLine(info))
		out.Depth = max(out.Depth, info.Depth)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		return DiscoveryResult{}, p.staleErr(ctx)
	}
	p.phase = PhaseComplete
	p.publishStatusLocked()
	p.log.Info().Uint64("generation", gen).Int("depth", out.Depth).Int("lines", len(out.Lines)).Msg("discovery complete")
	return out, nil
}

// staleErr prefers the caller's own cancellation over ErrStale.
func (p *Pool) staleErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrStale
}

func discoveryLines(latest map[int]engine.Info) []DiscoveryLine {
	lines := make([]DiscoveryLine, 0, len(latest))
	for _, info := range latest {
		lines = append(lines, discoveryLine(info))
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].Rank < lines[j].Rank })
	return lines
}
