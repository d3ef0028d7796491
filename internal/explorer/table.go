package explorer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/freeeve/enginepool/internal/board"
)

// Table is an in-memory Source keyed by packed position.
type Table struct {
	mu    sync.RWMutex
	moves map[string]map[string]MoveStats
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{moves: make(map[string]map[string]MoveStats)}
}

// Add records stats for a move from fen, summing with any existing entry.
func (t *Table) Add(fen string, s MoveStats) error {
	key, err := board.Key(fen)
	if err != nil {
		return err
	}
	if s.TotalGames == 0 {
		s.TotalGames = s.WhiteWins + s.Draws + s.BlackWins
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	byMove := t.moves[key]
	if byMove == nil {
		byMove = make(map[string]MoveStats)
		t.moves[key] = byMove
	}
	cur := byMove[s.Move]
	cur.Move = s.Move
	cur.WhiteWins += s.WhiteWins
	cur.Draws += s.Draws
	cur.BlackWins += s.BlackWins
	cur.TotalGames += s.TotalGames
	byMove[s.Move] = cur
	return nil
}

// Len returns the number of positions in the table.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.moves)
}

// MoveStatistics implements Source. Unknown positions yield no stats.
func (t *Table) MoveStatistics(ctx context.Context, fen string) ([]MoveStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := board.Key(fen)
	if err != nil {
		return nil, err
	}

	t.mu.RLock()
	byMove := t.moves[key]
	out := make([]MoveStats, 0, len(byMove))
	for _, s := range byMove {
		out = append(out, s)
	}
	t.mu.RUnlock()

	SortByGames(out)
	return out, nil
}

// LoadFile loads a CSV file (supports .zst and .gz compression) with the
// columns fen, move, white_wins, draws, black_wins. It returns the number of
// rows loaded.
func (t *Table) LoadFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var reader io.Reader = f
	switch {
	case strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return 0, fmt.Errorf("zstd reader: %w", err)
		}
		defer zr.Close()
		reader = zr
	case strings.HasSuffix(path, ".gz"):
		gr, err := gzip.NewReader(f)
		if err != nil {
			return 0, fmt.Errorf("gzip reader: %w", err)
		}
		defer gr.Close()
		reader = gr
	}
	return t.Load(reader)
}

// Load reads CSV rows from r. The first row is a header.
func (t *Table) Load(r io.Reader) (int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, err
	}

	count := 0
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// truncated compressed stream: keep what we have
			if errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			continue
		}
		if len(row) < 5 {
			continue
		}

		white, err1 := strconv.Atoi(strings.TrimSpace(row[2]))
		draws, err2 := strconv.Atoi(strings.TrimSpace(row[3]))
		black, err3 := strconv.Atoi(strings.TrimSpace(row[4]))
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		if err := t.Add(row[0], MoveStats{
			Move:      strings.TrimSpace(row[1]),
			WhiteWins: white,
			Draws:     draws,
			BlackWins: black,
		}); err != nil {
			continue
		}
		count++
	}
	return count, nil
}
