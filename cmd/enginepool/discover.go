package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/freeeve/enginepool/internal/analysis"
	"github.com/freeeve/enginepool/internal/board"
)

var discoverCmd = &cobra.Command{
	Use:     "discover",
	Short:   "Find the best lines of a position with MultiPV",
	Example: `  enginepool discover --top 5 --depth 24`,
	RunE:    runDiscover,
}

func init() {
	f := discoverCmd.Flags()
	f.String("fen", board.StartFEN, "position to search")
	f.Int("top", 0, "number of lines")
	f.Int("depth", 0, "search depth")
	f.Bool("progress", false, "print each completed depth")
	_ = viper.BindPFlag("depth.top", f.Lookup("top"))
	_ = viper.BindPFlag("depth.discover", f.Lookup("depth"))
}

func runDiscover(cmd *cobra.Command, _ []string) error {
	cfg, err := readConfig()
	if err != nil {
		return err
	}
	fen, _ := cmd.Flags().GetString("fen")
	showProgress, _ := cmd.Flags().GetBool("progress")

	log := newLogger(cfg)
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := newPool(cfg, log)
	if err != nil {
		return err
	}
	defer pool.Dispose()

	if err := pool.WarmUp(ctx); err != nil {
		return fmt.Errorf("warm up: %w", err)
	}

	lastDepth := 0
	onProgress := func(p analysis.DiscoveryProgress) {
		if !showProgress || p.Depth == lastDepth || len(p.Lines) == 0 {
			return
		}
		lastDepth = p.Depth
		best := p.Lines[0]
		fmt.Fprintf(cmd.ErrOrStderr(), "depth %2d  %-6s %s\n", p.Depth, best.Move, formatScore(best.ScoreCP, best.MateIn))
	}

	res, err := pool.RunDiscovery(ctx, fen, cfg.Depth.Discover, cfg.Depth.Top, onProgress)
	if err != nil {
		return err
	}
	return printLines(cmd.OutOrStdout(), fen, res)
}
