package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInfo(t *testing.T) {
	tests := []struct {
		name string
		line string
		ok   bool
		want Info
	}{
		{
			name: "cp with pv",
			line: "info depth 12 seldepth 18 multipv 2 score cp -35 nodes 123456 nps 900000 time 137 pv e7e5 g1f3 b8c6",
			ok:   true,
			want: Info{Depth: 12, SelDepth: 18, MultiPV: 2, Score: Score{CP: -35}, Nodes: 123456, NPS: 900000, TimeMs: 137, PV: []string{"e7e5", "g1f3", "b8c6"}},
		},
		{
			name: "mate defaults multipv",
			line: "info depth 5 score mate -3 pv h7h8",
			ok:   true,
			want: Info{Depth: 5, MultiPV: 1, Score: Score{Mate: -3, IsMate: true}, PV: []string{"h7h8"}},
		},
		{
			name: "checkmated side",
			line: "info depth 0 score mate 0",
			ok:   true,
			want: Info{MultiPV: 1, Score: Score{IsMate: true}},
		},
		{name: "lowerbound", line: "info depth 10 score cp 40 lowerbound nodes 10 pv e2e4", ok: false},
		{name: "upperbound", line: "info depth 10 score cp 40 upperbound", ok: false},
		{name: "currmove", line: "info depth 20 currmove e2e4 currmovenumber 1", ok: false},
		{name: "string", line: "info string NNUE evaluation using nn-xyz.nnue enabled", ok: false},
		{name: "bad score", line: "info depth 3 score cp x", ok: false},
		{name: "truncated score", line: "info depth 3 score cp", ok: false},
		{name: "not info", line: "bestmove e2e4", ok: false},
		{name: "empty", line: "", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseInfo(tt.line)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseBestMove(t *testing.T) {
	mv, ok := parseBestMove("bestmove e2e4 ponder e7e5")
	assert.True(t, ok)
	assert.Equal(t, "e2e4", mv)

	mv, ok = parseBestMove("bestmove")
	assert.True(t, ok)
	assert.Empty(t, mv)

	_, ok = parseBestMove("readyok")
	assert.False(t, ok)
}

func TestScoreNegate(t *testing.T) {
	assert.Equal(t, Score{CP: -20}, Score{CP: 20}.Negate())
	assert.Equal(t, Score{Mate: 3, IsMate: true}, Score{Mate: -3, IsMate: true}.Negate())
}

func TestSetOptionCmd(t *testing.T) {
	assert.Equal(t, "setoption name Hash value 128", setOptionCmd("Hash", 128))
	assert.Equal(t, "setoption name Ponder value false", setOptionCmd("Ponder", false))
}

func TestInfoBestMove(t *testing.T) {
	assert.Equal(t, "", Info{}.BestMove())
	assert.Equal(t, "d2d4", Info{PV: []string{"d2d4", "d7d5"}}.BestMove())
}
