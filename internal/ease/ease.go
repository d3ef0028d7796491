// Package ease scores how forgiving a position is for the side to move.
//
// Likely replies come from database move frequencies when the sample is big
// enough, otherwise from a move-prediction oracle. Each reply is evaluated,
// mapped to a bounded quality in [-1, 1], and its regret against the best
// available quality is accumulated with weight p^Beta. The result is
// 1 - (sum/2)^Alpha.
package ease

import (
	"math"
	"sort"

	"github.com/freeeve/enginepool/internal/engine"
	"github.com/freeeve/enginepool/internal/explorer"
)

const (
	// K scales centipawns in the logistic quality transform.
	K = 0.00368208

	DefaultBeta     = 1.5
	DefaultAlpha    = 1.0 / 3.0
	DefaultMinGames = 10
	DefaultMass     = 0.9
)

// Quality maps a score to [-1, 1]: 2*sigmoid(K*cp) - 1, mates to ±1.
func Quality(s engine.Score) float64 {
	if s.IsMate {
		if s.Mate > 0 {
			return 1
		}
		return -1
	}
	return 2/(1+math.Exp(-K*float64(s.CP))) - 1
}

// FromSum converts accumulated weighted regret to ease, clamped to [0, 1].
func FromSum(sumWeightedRegret, alpha float64) float64 {
	if sumWeightedRegret <= 0 {
		return 1
	}
	e := 1 - math.Pow(sumWeightedRegret/2, alpha)
	return math.Max(0, math.Min(1, e))
}

// Candidate is a likely reply and its probability.
type Candidate struct {
	Move   string
	Weight float64
}

// Origin names where a distribution came from.
type Origin string

const (
	OriginNone     Origin = "none"
	OriginDatabase Origin = "database"
	OriginOracle   Origin = "oracle"
)

// FromStats builds a distribution from database frequencies. ok is false
// when there are no games or a move inside the mass prefix has fewer than
// minGames games.
func FromStats(stats []explorer.MoveStats, minGames int, mass float64) ([]Candidate, bool) {
	sorted := make([]explorer.MoveStats, 0, len(stats))
	total := 0
	for _, s := range stats {
		if s.TotalGames > 0 {
			sorted = append(sorted, s)
			total += s.TotalGames
		}
	}
	if total == 0 {
		return nil, false
	}
	explorer.SortByGames(sorted)

	weighted := make([]Candidate, len(sorted))
	for i, s := range sorted {
		weighted[i] = Candidate{Move: s.Move, Weight: float64(s.TotalGames) / float64(total)}
	}
	prefix := truncate(weighted, mass)
	for i := range prefix {
		if sorted[i].TotalGames < minGames {
			return nil, false
		}
	}
	return prefix, true
}

// FromOracle normalises predicted probabilities by their sum and truncates
// at mass.
func FromOracle(probs map[string]float64, mass float64) []Candidate {
	sum := 0.0
	for _, p := range probs {
		if p > 0 {
			sum += p
		}
	}
	if sum <= 0 {
		return nil
	}
	out := make([]Candidate, 0, len(probs))
	for mv, p := range probs {
		if p > 0 {
			out = append(out, Candidate{Move: mv, Weight: p / sum})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Move < out[j].Move
	})
	return truncate(out, mass)
}

// truncate keeps the shortest prefix whose cumulative weight reaches mass.
func truncate(c []Candidate, mass float64) []Candidate {
	cum := 0.0
	for i, cand := range c {
		cum += cand.Weight
		if cum >= mass-1e-9 {
			return c[:i+1]
		}
	}
	return c
}
