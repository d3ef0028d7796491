package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/freeeve/enginepool/internal/analysis"
	"github.com/freeeve/enginepool/internal/board"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score candidate moves with engine evaluation and ease",
	Example: `  enginepool evaluate --moves e2e4,d2d4,c2c4
  enginepool evaluate --fen "r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq - 2 3" --moves Bb5,Bc4,d4`,
	RunE: runEvaluate,
}

func init() {
	f := evaluateCmd.Flags()
	f.String("fen", board.StartFEN, "position to evaluate from")
	f.StringSlice("moves", nil, "candidate moves, UCI or SAN (comma separated)")
	f.Int("depth", 0, "evaluation depth per move")
	f.Int("ease-depth", 0, "depth of each ease search")
	_ = evaluateCmd.MarkFlagRequired("moves")
	_ = viper.BindPFlag("depth.eval", f.Lookup("depth"))
	_ = viper.BindPFlag("depth.ease", f.Lookup("ease-depth"))
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	cfg, err := readConfig()
	if err != nil {
		return err
	}
	fen, _ := cmd.Flags().GetString("fen")
	moves, _ := cmd.Flags().GetStringSlice("moves")

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

	statuses, unsubscribe := pool.SubscribeStatus()
	defer unsubscribe()

	start := time.Now()
	gen := pool.StartEvaluation(ctx, fen, moves, cfg.Depth.Eval, cfg.Depth.Ease)
	if gen == 0 {
		return errors.New("evaluation rejected: invalid FEN or engine unavailable")
	}

wait:
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case st := <-statuses:
			if st.Generation < gen {
				continue
			}
			if st.Generation > gen {
				return analysis.ErrStale
			}
			switch st.Phase {
			case analysis.PhaseComplete:
				break wait
			case analysis.PhaseIdle:
				// only an abandoned run goes idle without a new generation
				return analysis.ErrNoWorkers
			}
			log.Debug().
				Int("completed", st.CompletedMoves).
				Int("total", st.TotalMoves).
				Int("workers", st.ActiveWorkers).
				Strs("evaluating", st.Evaluating).
				Msg("progress")
		}
	}

	log.Info().Dur("elapsed", time.Since(start)).Int("moves", len(moves)).Msg("evaluation finished")
	return printResults(cmd.OutOrStdout(), fen, moves, pool.Results())
}
