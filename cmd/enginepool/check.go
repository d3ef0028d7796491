package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/freeeve/enginepool/internal/board"
	"github.com/freeeve/enginepool/internal/engine"
)

var checkCmd = &cobra.Command{
	Use:     "check",
	Short:   "Run one search with the configured engine, outside the pool",
	Example: `  enginepool check --depth 16`,
	RunE:    runCheck,
}

func init() {
	f := checkCmd.Flags()
	f.String("fen", board.StartFEN, "position to search")
	f.Int("depth", 12, "search depth")
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := readConfig()
	if err != nil {
		return err
	}
	fen, _ := cmd.Flags().GetString("fen")
	depth, _ := cmd.Flags().GetInt("depth")
	if _, err := board.Load(fen); err != nil {
		return err
	}

	l := cfg.launcher()
	start := time.Now()
	info, bestMove, err := l.Search(fen, depth)
	if err != nil {
		return fmt.Errorf("check %s: %w", l.Path, err)
	}
	return printCheck(cmd.OutOrStdout(), l.Path, fen, info, bestMove, time.Since(start))
}

func printCheck(w io.Writer, path, fen string, info engine.Info, bestMove string, elapsed time.Duration) error {
	var cp, mate *int
	if info.Score.IsMate {
		mate = &info.Score.Mate
	} else {
		cp = &info.Score.CP
	}
	best := bestMove
	if san, err := board.ToSAN(fen, bestMove); err == nil {
		best = san
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "engine\t%s\n", path)
	fmt.Fprintf(tw, "best move\t%s\n", best)
	fmt.Fprintf(tw, "score\t%s\n", formatScore(cp, mate))
	fmt.Fprintf(tw, "depth\t%d\n", info.Depth)
	fmt.Fprintf(tw, "nodes\t%s\n", humanize.Comma(info.Nodes))
	fmt.Fprintf(tw, "line\t%s\n", sanLine(fen, info.PV, 8))
	fmt.Fprintf(tw, "elapsed\t%s\n", elapsed.Round(time.Millisecond))
	return tw.Flush()
}
