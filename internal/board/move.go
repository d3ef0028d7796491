package board

import (
	"fmt"
	"strings"

	"github.com/freeeve/pgn/v3"
)

const (
	files = "abcdefgh"
	ranks = "12345678"
)

// MoveToUCI converts a move to UCI notation (e.g. "e2e4", "e7e8q").
func MoveToUCI(mv pgn.Mv) string {
	uci := string(files[mv.From%8]) + string(ranks[mv.From/8]) +
		string(files[mv.To%8]) + string(ranks[mv.To/8])

	switch mv.Promo {
	case pgn.PromoQueen:
		uci += "q"
	case pgn.PromoRook:
		uci += "r"
	case pgn.PromoBishop:
		uci += "b"
	case pgn.PromoKnight:
		uci += "n"
	}
	return uci
}

// ParseUCI splits a UCI move into square indices (a1=0 ... h8=63) and the
// promotion letter, or 0.
func ParseUCI(uci string) (from, to int, promo byte, err error) {
	if len(uci) < 4 || len(uci) > 5 {
		return 0, 0, 0, fmt.Errorf("bad UCI move length: %q", uci)
	}
	uci = strings.ToLower(uci)

	fromFile := int(uci[0] - 'a')
	fromRank := int(uci[1] - '1')
	toFile := int(uci[2] - 'a')
	toRank := int(uci[3] - '1')

	if fromFile < 0 || fromFile > 7 || fromRank < 0 || fromRank > 7 {
		return 0, 0, 0, fmt.Errorf("invalid from square in UCI: %s", uci)
	}
	if toFile < 0 || toFile > 7 || toRank < 0 || toRank > 7 {
		return 0, 0, 0, fmt.Errorf("invalid to square in UCI: %s", uci)
	}

	if len(uci) == 5 {
		switch uci[4] {
		case 'q', 'r', 'b', 'n':
			promo = uci[4]
		default:
			return 0, 0, 0, fmt.Errorf("invalid promotion piece: %c", uci[4])
		}
	}
	return fromRank*8 + fromFile, toRank*8 + toFile, promo, nil
}

func looksUCI(s string) bool {
	_, _, _, err := ParseUCI(s)
	return err == nil
}

// sanOf renders mv in SAN for pos, including check and mate suffixes.
func sanOf(pos *pgn.GameState, mv pgn.Mv) string {
	if mv.Flags == 4 {
		if mv.To > mv.From {
			return "O-O"
		}
		return "O-O-O"
	}

	fromSq := int(mv.From)
	toSq := int(mv.To)
	fromFile := fromSq % 8
	toFile := toSq % 8
	toRank := toSq / 8

	piece := pos.PieceAt(mv.From)
	isPawn := piece == 'P' || piece == 'p'
	isCapture := pos.PieceAt(mv.To) != 0 || (isPawn && mv.Flags == 2)

	var san string
	if isPawn {
		if isCapture {
			san = string(files[fromFile]) + "x"
		}
		san += string(files[toFile]) + string(ranks[toRank])
		switch mv.Promo {
		case pgn.PromoQueen:
			san += "=Q"
		case pgn.PromoRook:
			san += "=R"
		case pgn.PromoBishop:
			san += "=B"
		case pgn.PromoKnight:
			san += "=N"
		}
	} else {
		upper := piece
		if piece >= 'a' && piece <= 'z' {
			upper = piece - 32
		}
		san = string(upper)
		for _, other := range pgn.GenerateLegalMoves(pos) {
			if other.To != mv.To || other.From == mv.From {
				continue
			}
			p := pos.PieceAt(other.From)
			if p >= 'a' && p <= 'z' {
				p -= 32
			}
			if p != upper {
				continue
			}
			switch {
			case fromFile != int(other.From)%8:
				san += string(files[fromFile])
			case fromSq/8 != int(other.From)/8:
				san += string(ranks[fromSq/8])
			default:
				san += string(files[fromFile]) + string(ranks[fromSq/8])
			}
			break
		}
		if isCapture {
			san += "x"
		}
		san += string(files[toFile]) + string(ranks[toRank])
	}

	after := pos.Pack().Unpack()
	if after != nil && pgn.ApplyMove(after, mv) == nil && after.IsInCheck() {
		if len(pgn.GenerateLegalMoves(after)) == 0 {
			return san + "#"
		}
		return san + "+"
	}
	return san
}
