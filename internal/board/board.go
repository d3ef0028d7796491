// Package board applies moves to FEN positions using the pgn move generator.
package board

import (
	"errors"
	"fmt"
	"strings"

	"github.com/freeeve/pgn/v3"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Color is the side to move.
type Color int8

const (
	White Color = iota
	Black
)

func (c Color) String() string {
	if c == Black {
		return "black"
	}
	return "white"
}

// ErrInvalidFEN is returned for positions the move generator cannot load.
var ErrInvalidFEN = errors.New("board: invalid FEN")

// Codec is the board-state codec used by the analysis pool.
type Codec struct{}

// Validate reports whether the move generator can load fen.
func (Codec) Validate(fen string) error {
	_, err := Load(fen)
	return err
}

// ApplyMove plays move (UCI like "e2e4" or SAN like "Nf3") on fen and returns
// the resulting FEN. ok is false for unparseable positions and illegal moves.
func (Codec) ApplyMove(fen, move string) (string, bool) {
	next, err := Apply(fen, move)
	if err != nil {
		return "", false
	}
	return next, true
}

// SideToMove reports whose turn it is in fen.
func (Codec) SideToMove(fen string) (Color, error) {
	return SideToMove(fen)
}

// LegalMoves returns the legal moves of fen in UCI notation.
func (Codec) LegalMoves(fen string) ([]string, error) {
	return LegalMoves(fen)
}

// Load parses fen into a game state.
func Load(fen string) (*pgn.GameState, error) {
	key, err := pgn.PackedPositionFromFEN(strings.TrimSpace(fen))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}
	packed, err := pgn.ParsePackedPosition(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}
	pos := packed.Unpack()
	if pos == nil {
		return nil, fmt.Errorf("%w: unpack failed", ErrInvalidFEN)
	}
	return pos, nil
}

// Normalize returns fen as the move generator prints it, so equal positions
// compare equal as strings.
func Normalize(fen string) (string, error) {
	pos, err := Load(fen)
	if err != nil {
		return "", err
	}
	return pos.ToFEN(), nil
}

// Apply plays move on fen.
func Apply(fen, move string) (string, error) {
	pos, err := Load(fen)
	if err != nil {
		return "", err
	}
	mv, err := Find(pos, move)
	if err != nil {
		return "", err
	}
	if err := pgn.ApplyMove(pos, mv); err != nil {
		return "", fmt.Errorf("apply %s: %w", move, err)
	}
	return pos.ToFEN(), nil
}

// Find resolves move in pos, trying UCI first and then SAN.
func Find(pos *pgn.GameState, move string) (pgn.Mv, error) {
	move = strings.TrimSpace(move)
	if move == "" {
		return pgn.Mv{}, errors.New("empty move")
	}
	if looksUCI(move) {
		want := strings.ToLower(move)
		for _, mv := range pgn.GenerateLegalMoves(pos) {
			if MoveToUCI(mv) == want {
				return mv, nil
			}
		}
		return pgn.Mv{}, fmt.Errorf("illegal move %s", move)
	}
	mv, err := pgn.ParseSAN(pos, move)
	if err != nil {
		return pgn.Mv{}, fmt.Errorf("illegal move %s: %w", move, err)
	}
	return mv, nil
}

// LegalMoves lists the legal moves of fen in UCI notation.
func LegalMoves(fen string) ([]string, error) {
	pos, err := Load(fen)
	if err != nil {
		return nil, err
	}
	moves := pgn.GenerateLegalMoves(pos)
	out := make([]string, 0, len(moves))
	for _, mv := range moves {
		out = append(out, MoveToUCI(mv))
	}
	return out, nil
}

// SideToMove reads the active color field of fen.
func SideToMove(fen string) (Color, error) {
	fields := strings.Fields(fen)
	if len(fields) < 2 {
		return White, fmt.Errorf("%w: missing active color", ErrInvalidFEN)
	}
	switch fields[1] {
	case "w":
		return White, nil
	case "b":
		return Black, nil
	default:
		return White, fmt.Errorf("%w: active color %q", ErrInvalidFEN, fields[1])
	}
}

// ToSAN renders a UCI move in standard algebraic notation.
func ToSAN(fen, uci string) (string, error) {
	pos, err := Load(fen)
	if err != nil {
		return "", err
	}
	mv, err := Find(pos, uci)
	if err != nil {
		return "", err
	}
	return sanOf(pos, mv), nil
}

// Key returns the packed position key of fen. Positions differing only in
// move counters share a key.
func Key(fen string) (string, error) {
	key, err := pgn.PackedPositionFromFEN(strings.TrimSpace(fen))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}
	return key, nil
}
