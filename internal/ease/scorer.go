package ease

import (
	"context"
	"errors"
	"math"

	"github.com/rs/zerolog"

	"github.com/freeeve/enginepool/internal/engine"
	"github.com/freeeve/enginepool/internal/explorer"
	"github.com/freeeve/enginepool/internal/predict"
)

// Evaluator scores a position from its side to move's point of view.
type Evaluator interface {
	Evaluate(ctx context.Context, fen string, depth int) (engine.Score, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, fen string, depth int) (engine.Score, error)

// Evaluate implements Evaluator.
func (f EvaluatorFunc) Evaluate(ctx context.Context, fen string, depth int) (engine.Score, error) {
	return f(ctx, fen, depth)
}

// ErrNoScore is returned by an Evaluator that finished without a score. The
// candidate is skipped.
var ErrNoScore = errors.New("ease: search produced no score")

// Codec applies moves to positions.
type Codec interface {
	ApplyMove(fen, move string) (string, bool)
}

// Config tunes a Scorer. Zero values take the defaults.
type Config struct {
	Beta       float64
	Alpha      float64
	MinGames   int
	Mass       float64
	RatingBand int // passed to the oracle
}

// Scorer computes ease using a statistics source and an oracle. Either may
// be nil.
type Scorer struct {
	cfg    Config
	stats  explorer.Source
	oracle predict.Oracle
	codec  Codec
	log    zerolog.Logger
}

// NewScorer creates a Scorer with defaults applied.
func NewScorer(cfg Config, stats explorer.Source, oracle predict.Oracle, codec Codec, log zerolog.Logger) *Scorer {
	if cfg.Beta <= 0 {
		cfg.Beta = DefaultBeta
	}
	if cfg.Alpha <= 0 {
		cfg.Alpha = DefaultAlpha
	}
	if cfg.MinGames <= 0 {
		cfg.MinGames = DefaultMinGames
	}
	if cfg.Mass <= 0 || cfg.Mass > 1 {
		cfg.Mass = DefaultMass
	}
	if cfg.RatingBand <= 0 {
		cfg.RatingBand = 1500
	}
	return &Scorer{cfg: cfg, stats: stats, oracle: oracle, codec: codec, log: log.With().Str("component", "ease").Logger()}
}

// Distribution picks the reply distribution for fen. Collaborator errors
// count as "no data" from that source.
func (s *Scorer) Distribution(ctx context.Context, fen string) ([]Candidate, Origin) {
	if s.stats != nil {
		stats, err := s.stats.MoveStatistics(ctx, fen)
		if err != nil {
			s.log.Debug().Err(err).Msg("move statistics unavailable")
		} else if cands, ok := FromStats(stats, s.cfg.MinGames, s.cfg.Mass); ok {
			return cands, OriginDatabase
		}
	}
	if s.oracle != nil {
		probs, err := s.oracle.Predict(ctx, fen, s.cfg.RatingBand)
		if err != nil {
			s.log.Debug().Err(err).Msg("prediction unavailable")
		} else if cands := FromOracle(probs, s.cfg.Mass); len(cands) > 0 {
			return cands, OriginOracle
		}
	}
	return nil, OriginNone
}

// Score returns the ease of fen, whose own evaluation is root (side to move's
// view). A nil ease means there was not enough data. Errors come only from ev
// and mean the computation was abandoned.
func (s *Scorer) Score(ctx context.Context, ev Evaluator, fen string, root engine.Score, depth int) (*float64, error) {
	cands, origin := s.Distribution(ctx, fen)
	if len(cands) == 0 {
		return nil, ctx.Err()
	}

	type evaluated struct {
		weight float64
		q      float64
	}
	evals := make([]evaluated, 0, len(cands))
	maxQ := Quality(root)
	for _, c := range cands {
		next, ok := s.codec.ApplyMove(fen, c.Move)
		if !ok {
			continue
		}
		score, err := ev.Evaluate(ctx, next, depth)
		if errors.Is(err, ErrNoScore) {
			continue
		}
		if err != nil {
			return nil, err
		}
		// the reply's score is from the opponent's view
		q := Quality(score.Negate())
		maxQ = math.Max(maxQ, q)
		evals = append(evals, evaluated{weight: c.Weight, q: q})
	}
	if len(evals) == 0 {
		return nil, nil
	}

	sum := 0.0
	for _, e := range evals {
		sum += math.Pow(e.weight, s.cfg.Beta) * math.Max(0, maxQ-e.q)
	}
	v := FromSum(sum, s.cfg.Alpha)
	s.log.Debug().
		Str("origin", string(origin)).
		Int("candidates", len(evals)).
		Float64("regret", sum).
		Float64("ease", v).
		Msg("ease computed")
	return &v, nil
}
