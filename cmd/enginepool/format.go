package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/freeeve/enginepool/internal/analysis"
	"github.com/freeeve/enginepool/internal/board"
)

// formatScore renders centipawns as pawns ("+0.35") and mates as "#3".
func formatScore(cp, mate *int) string {
	switch {
	case mate != nil:
		return fmt.Sprintf("#%d", *mate)
	case cp != nil:
		return fmt.Sprintf("%+.2f", float64(*cp)/100)
	default:
		return "-"
	}
}

func formatEase(e *float64) string {
	if e == nil {
		return "-"
	}
	return fmt.Sprintf("%.3f", *e)
}

// sanLine renders a UCI line from fen in SAN, falling back to UCI once a
// move does not apply.
func sanLine(fen string, pv []string, limit int) string {
	var out []string
	pos := fen
	for i, mv := range pv {
		if i == limit {
			out = append(out, "...")
			break
		}
		san, err := board.ToSAN(pos, mv)
		if err != nil {
			out = append(out, pv[i:]...)
			break
		}
		out = append(out, san)
		next, err := board.Apply(pos, mv)
		if err != nil {
			out = append(out, pv[i+1:]...)
			break
		}
		pos = next
	}
	return strings.Join(out, " ")
}

// printResults writes one row per requested move, in request order.
func printResults(w io.Writer, fen string, moves []string, results map[string]analysis.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MOVE\tSAN\tSCORE\tDEPTH\tEASE\tPV")
	seen := make(map[string]bool, len(moves))
	for _, mv := range moves {
		if seen[mv] {
			continue
		}
		seen[mv] = true
		r, ok := results[mv]
		if !ok {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\tillegal or not evaluated\n", mv)
			continue
		}
		san, err := board.ToSAN(fen, mv)
		if err != nil {
			san = mv
		}
		child, err := board.Apply(fen, mv)
		pv := strings.Join(r.PV, " ")
		if err == nil {
			pv = sanLine(child, r.PV, 8)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", mv, san, formatScore(r.ScoreCP, r.MateIn), r.Depth, formatEase(r.Ease), pv)
	}
	return tw.Flush()
}

// printLines writes discovery lines best first.
func printLines(w io.Writer, fen string, res analysis.DiscoveryResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "depth %d, %d nodes\n", res.Depth, res.Nodes)
	fmt.Fprintln(tw, "#\tMOVE\tSCORE\tPV")
	for _, l := range res.Lines {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", l.Rank, l.Move, formatScore(l.ScoreCP, l.MateIn), sanLine(fen, l.PV, 10))
	}
	return tw.Flush()
}
