// Package explorer provides move-frequency statistics for positions.
package explorer

import (
	"context"
	"sort"
)

// MoveStats are game outcomes after one move from a position.
type MoveStats struct {
	Move       string `json:"move"` // UCI
	WhiteWins  int    `json:"white_wins"`
	Draws      int    `json:"draws"`
	BlackWins  int    `json:"black_wins"`
	TotalGames int    `json:"total_games"`
}

// Source looks up move statistics for a position.
type Source interface {
	MoveStatistics(ctx context.Context, fen string) ([]MoveStats, error)
}

// SortByGames orders stats by descending game count, then by move.
func SortByGames(stats []MoveStats) {
	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].TotalGames != stats[j].TotalGames {
			return stats[i].TotalGames > stats[j].TotalGames
		}
		return stats[i].Move < stats[j].Move
	})
}
