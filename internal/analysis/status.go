package analysis

import (
	"errors"

	"github.com/freeeve/enginepool/internal/engine"
)

var (
	// ErrStale is returned when a newer request superseded this one.
	ErrStale = errors.New("analysis: superseded by a newer request")

	// ErrUnavailable means no engine can run on this host.
	ErrUnavailable = errors.New("analysis: no engine available")

	// ErrClosed is returned after Dispose.
	ErrClosed = errors.New("analysis: pool disposed")

	// ErrNoWorkers means every spawn attempt failed.
	ErrNoWorkers = errors.New("analysis: no workers could be started")
)

// Phase is the pool's request phase.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseDiscovering Phase = "discovering"
	PhaseEvaluating  Phase = "evaluating"
	PhaseComplete    Phase = "complete"
)

// Status is a snapshot of pool progress.
type Status struct {
	Phase           Phase    `json:"phase"`
	Generation      uint64   `json:"generation"`
	TotalMoves      int      `json:"total_moves"`
	CompletedMoves  int      `json:"completed_moves"`
	ActiveWorkers   int      `json:"active_workers"`
	HashPerWorkerMB int      `json:"hash_per_worker_mb"`
	Evaluating      []string `json:"evaluating"`
}

// Result is the latest evaluation of one candidate move. Scores are from the
// point of view of the side to move in the submitted position. A nil Ease is
// a partial result.
type Result struct {
	Move    string   `json:"move"`
	ScoreCP *int     `json:"score_cp,omitempty"`
	MateIn  *int     `json:"mate_in,omitempty"`
	PV      []string `json:"pv"`
	Depth   int      `json:"depth"`
	Ease    *float64 `json:"ease,omitempty"`
}

// Complete reports whether the ease pass has finished.
func (r Result) Complete() bool { return r.Ease != nil }

func resultFromInfo(move string, info engine.Info, score engine.Score) Result {
	r := Result{Move: move, PV: info.PV, Depth: info.Depth}
	if score.IsMate {
		m := score.Mate
		r.MateIn = &m
	} else {
		cp := score.CP
		r.ScoreCP = &cp
	}
	return r
}

// DiscoveryLine is one of the top lines found in discovery.
type DiscoveryLine struct {
	Rank    int      `json:"rank"`
	Move    string   `json:"move"`
	ScoreCP *int     `json:"score_cp,omitempty"`
	MateIn  *int     `json:"mate_in,omitempty"`
	PV      []string `json:"pv"`
	Depth   int      `json:"depth"`
}

// DiscoveryProgress is streamed while discovery runs.
type DiscoveryProgress struct {
	Depth int             `json:"depth"`
	Nodes int64           `json:"nodes"`
	Lines []DiscoveryLine `json:"lines"`
}

// DiscoveryResult is the final discovery output. Scores are from the side to
// move's point of view.
type DiscoveryResult struct {
	Depth int             `json:"depth"`
	Nodes int64           `json:"nodes"`
	Lines []DiscoveryLine `json:"lines"`
}

func discoveryLine(info engine.Info) DiscoveryLine {
	r := resultFromInfo(info.BestMove(), info, info.Score)
	return DiscoveryLine{
		Rank:    info.MultiPV,
		Move:    r.Move,
		ScoreCP: r.ScoreCP,
		MateIn:  r.MateIn,
		PV:      r.PV,
		Depth:   r.Depth,
	}
}
