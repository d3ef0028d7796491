package ease

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freeeve/enginepool/internal/board"
	"github.com/freeeve/enginepool/internal/engine"
	"github.com/freeeve/enginepool/internal/explorer"
	"github.com/freeeve/enginepool/internal/predict"
)

func TestQuality(t *testing.T) {
	tests := []struct {
		name  string
		score engine.Score
		want  float64
	}{
		{"even", engine.Score{CP: 0}, 0},
		{"mate for", engine.Score{Mate: 3, IsMate: true}, 1},
		{"mate against", engine.Score{Mate: -2, IsMate: true}, -1},
		{"mated", engine.Score{IsMate: true}, -1},
		{"pawn up", engine.Score{CP: 100}, 2/(1+math.Exp(-K*100)) - 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Quality(tt.score), 1e-12)
		})
	}

	assert.InDelta(t, -Quality(engine.Score{CP: 250}), Quality(engine.Score{CP: -250}), 1e-12)
	assert.Less(t, Quality(engine.Score{CP: 5000}), 1.0)
}

func TestFromSumMonotone(t *testing.T) {
	assert.Equal(t, 1.0, FromSum(0, DefaultAlpha))
	prev := 1.0
	for sum := 0.01; sum <= 4; sum += 0.01 {
		e := FromSum(sum, DefaultAlpha)
		assert.LessOrEqual(t, e, prev, "sum %v", sum)
		assert.GreaterOrEqual(t, e, 0.0)
		prev = e
	}
	assert.InDelta(t, 1-math.Pow(0.25, 1.0/3), FromSum(0.5, DefaultAlpha), 1e-12)
	assert.Equal(t, 0.0, FromSum(2, DefaultAlpha))
	assert.Equal(t, 0.0, FromSum(3, DefaultAlpha))
}

func TestFromStats(t *testing.T) {
	tests := []struct {
		name  string
		stats []explorer.MoveStats
		ok    bool
		moves []string
	}{
		{
			name: "prefix reaches mass",
			stats: []explorer.MoveStats{
				{Move: "a", TotalGames: 60},
				{Move: "b", TotalGames: 35},
				{Move: "c", TotalGames: 5},
			},
			ok:    true,
			moves: []string{"a", "b"},
		},
		{
			name: "thin move inside prefix",
			stats: []explorer.MoveStats{
				{Move: "a", TotalGames: 8},
				{Move: "b", TotalGames: 2},
			},
			ok: false,
		},
		{
			name: "thin tail outside prefix is fine",
			stats: []explorer.MoveStats{
				{Move: "b", TotalGames: 1},
				{Move: "a", TotalGames: 99},
			},
			ok:    true,
			moves: []string{"a"},
		},
		{name: "empty", stats: nil, ok: false},
		{name: "zero games", stats: []explorer.MoveStats{{Move: "a"}}, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cands, ok := FromStats(tt.stats, DefaultMinGames, DefaultMass)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			var moves []string
			for _, c := range cands {
				moves = append(moves, c.Move)
			}
			assert.Equal(t, tt.moves, moves)
		})
	}
}

func TestFromOracle(t *testing.T) {
	cands := FromOracle(map[string]float64{"a": 3, "b": 1, "c": 0.5, "d": 0.5, "e": -1}, DefaultMass)
	require.Len(t, cands, 3)
	assert.Equal(t, "a", cands[0].Move)
	assert.InDelta(t, 0.6, cands[0].Weight, 1e-12)
	assert.InDelta(t, 0.2, cands[1].Weight, 1e-12)
	assert.Equal(t, "c", cands[2].Move)

	assert.Nil(t, FromOracle(nil, DefaultMass))
	assert.Nil(t, FromOracle(map[string]float64{"a": 0}, DefaultMass))
}

type statsFunc func(ctx context.Context, fen string) ([]explorer.MoveStats, error)

func (f statsFunc) MoveStatistics(ctx context.Context, fen string) ([]explorer.MoveStats, error) {
	return f(ctx, fen)
}

// scoreByMove evaluates child positions by looking up the move that led there.
func scoreByMove(t *testing.T, fen string, scores map[string]int) Evaluator {
	byFEN := make(map[string]int, len(scores))
	for mv, cp := range scores {
		next, ok := board.Codec{}.ApplyMove(fen, mv)
		require.True(t, ok, mv)
		byFEN[next] = cp
	}
	return EvaluatorFunc(func(ctx context.Context, fen string, depth int) (engine.Score, error) {
		cp, ok := byFEN[fen]
		if !ok {
			return engine.Score{}, errors.New("unexpected position")
		}
		return engine.Score{CP: cp}, nil
	})
}

func TestScorerDatabase(t *testing.T) {
	fen := board.StartFEN
	stats := statsFunc(func(context.Context, string) ([]explorer.MoveStats, error) {
		return []explorer.MoveStats{
			{Move: "e2e4", TotalGames: 50},
			{Move: "d2d4", TotalGames: 50},
		}, nil
	})
	oracleCalled := false
	oracle := predict.Func(func(context.Context, string, int) (map[string]float64, error) {
		oracleCalled = true
		return nil, nil
	})
	// child scores are from the opponent's view
	ev := scoreByMove(t, fen, map[string]int{"e2e4": -30, "d2d4": 70})

	s := NewScorer(Config{}, stats, oracle, board.Codec{}, zerolog.Nop())
	got, err := s.Score(context.Background(), ev, fen, engine.Score{CP: 30}, 10)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, oracleCalled)

	maxQ := Quality(engine.Score{CP: 30})
	regret := maxQ - Quality(engine.Score{CP: -70})
	want := FromSum(math.Pow(0.5, 1.5)*regret, DefaultAlpha)
	assert.InDelta(t, want, *got, 1e-12)
}

func TestScorerFallsBackToOracle(t *testing.T) {
	fen := board.StartFEN
	stats := statsFunc(func(context.Context, string) ([]explorer.MoveStats, error) {
		return []explorer.MoveStats{{Move: "e2e4", TotalGames: 3}}, nil
	})
	oracle := predict.Func(func(_ context.Context, _ string, rating int) (map[string]float64, error) {
		assert.Equal(t, 1800, rating)
		return map[string]float64{"g1f3": 1}, nil
	})
	ev := scoreByMove(t, fen, map[string]int{"g1f3": 0})

	s := NewScorer(Config{RatingBand: 1800}, stats, oracle, board.Codec{}, zerolog.Nop())
	cands, origin := s.Distribution(context.Background(), fen)
	assert.Equal(t, OriginOracle, origin)
	assert.Len(t, cands, 1)

	got, err := s.Score(context.Background(), ev, fen, engine.Score{CP: 0}, 10)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1.0, *got)
}

func TestScorerNoData(t *testing.T) {
	failing := statsFunc(func(context.Context, string) ([]explorer.MoveStats, error) {
		return nil, errors.New("down")
	})
	oracle := predict.Func(func(context.Context, string, int) (map[string]float64, error) {
		return nil, errors.New("down")
	})
	ev := EvaluatorFunc(func(context.Context, string, int) (engine.Score, error) {
		t.Fatal("no evaluation expected")
		return engine.Score{}, nil
	})

	s := NewScorer(Config{}, failing, oracle, board.Codec{}, zerolog.Nop())
	got, err := s.Score(context.Background(), ev, board.StartFEN, engine.Score{}, 10)
	require.NoError(t, err)
	assert.Nil(t, got)

	s = NewScorer(Config{}, nil, nil, board.Codec{}, zerolog.Nop())
	got, err = s.Score(context.Background(), ev, board.StartFEN, engine.Score{}, 10)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestScorerSkipsIllegalCandidates(t *testing.T) {
	oracle := predict.Func(func(context.Context, string, int) (map[string]float64, error) {
		return map[string]float64{"e2e5": 1}, nil
	})
	s := NewScorer(Config{}, nil, oracle, board.Codec{}, zerolog.Nop())
	got, err := s.Score(context.Background(), scoreByMove(t, board.StartFEN, nil), board.StartFEN, engine.Score{}, 10)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestScorerPropagatesCancellation(t *testing.T) {
	oracle := predict.Func(func(context.Context, string, int) (map[string]float64, error) {
		return map[string]float64{"e2e4": 1}, nil
	})
	ev := EvaluatorFunc(func(context.Context, string, int) (engine.Score, error) {
		return engine.Score{}, engine.ErrCancelled
	})
	s := NewScorer(Config{}, nil, oracle, board.Codec{}, zerolog.Nop())
	got, err := s.Score(context.Background(), ev, board.StartFEN, engine.Score{}, 10)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, engine.ErrCancelled)
}

func TestScorerSkipsScorelessCandidates(t *testing.T) {
	oracle := predict.Func(func(context.Context, string, int) (map[string]float64, error) {
		return map[string]float64{"e2e4": 0.5, "d2d4": 0.5}, nil
	})
	e4, _ := board.Codec{}.ApplyMove(board.StartFEN, "e2e4")
	ev := EvaluatorFunc(func(_ context.Context, fen string, _ int) (engine.Score, error) {
		if fen == e4 {
			return engine.Score{}, ErrNoScore
		}
		return engine.Score{CP: 0}, nil
	})
	s := NewScorer(Config{}, nil, oracle, board.Codec{}, zerolog.Nop())
	got, err := s.Score(context.Background(), ev, board.StartFEN, engine.Score{}, 10)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1.0, *got)
}
