package engine

import (
	"strconv"
	"strings"
)

// Score is an engine evaluation from the side to move's point of view.
type Score struct {
	CP     int
	Mate   int
	IsMate bool
}

// Negate flips the score to the other side's point of view.
func (s Score) Negate() Score {
	return Score{CP: -s.CP, Mate: -s.Mate, IsMate: s.IsMate}
}

// Info is one parsed "info" progress line.
type Info struct {
	Depth    int
	SelDepth int
	MultiPV  int // 1-based line index
	Score    Score
	Nodes    int64
	NPS      int64
	TimeMs   int64
	PV       []string
}

// BestMove returns the first move of the principal variation, if any.
func (i Info) BestMove() string {
	if len(i.PV) == 0 {
		return ""
	}
	return i.PV[0]
}

// parseInfo parses an "info" line. Only lines carrying an exact score are
// reported; bound lines, currmove chatter and "info string" return ok=false.
func parseInfo(line string) (Info, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != "info" {
		return Info{}, false
	}

	info := Info{MultiPV: 1}
	hasScore := false

	for i := 1; i < len(fields); i++ {
		switch fields[i] {
		case "string":
			return Info{}, false
		case "depth":
			info.Depth, i = intField(fields, i)
		case "seldepth":
			info.SelDepth, i = intField(fields, i)
		case "multipv":
			info.MultiPV, i = intField(fields, i)
		case "nodes":
			info.Nodes, i = int64Field(fields, i)
		case "nps":
			info.NPS, i = int64Field(fields, i)
		case "time":
			info.TimeMs, i = int64Field(fields, i)
		case "lowerbound", "upperbound":
			return Info{}, false
		case "score":
			if i+2 >= len(fields) {
				return Info{}, false
			}
			v, err := strconv.Atoi(fields[i+2])
			if err != nil {
				return Info{}, false
			}
			switch fields[i+1] {
			case "cp":
				info.Score = Score{CP: v}
			case "mate":
				info.Score = Score{Mate: v, IsMate: true}
			default:
				return Info{}, false
			}
			hasScore = true
			i += 2
		case "pv":
			info.PV = append([]string(nil), fields[i+1:]...)
			i = len(fields)
		}
	}

	if !hasScore || info.MultiPV < 1 {
		return Info{}, false
	}
	return info, true
}

// parseBestMove returns the move from a "bestmove" line.
func parseBestMove(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != "bestmove" {
		return "", false
	}
	if len(fields) < 2 {
		return "", true
	}
	return fields[1], true
}

func intField(fields []string, i int) (int, int) {
	if i+1 >= len(fields) {
		return 0, i
	}
	v, err := strconv.Atoi(fields[i+1])
	if err != nil {
		return 0, i
	}
	return v, i + 1
}

func int64Field(fields []string, i int) (int64, int) {
	if i+1 >= len(fields) {
		return 0, i
	}
	v, err := strconv.ParseInt(fields[i+1], 10, 64)
	if err != nil {
		return 0, i
	}
	return v, i + 1
}

func setOptionCmd(name string, value any) string {
	return "setoption name " + name + " value " + toString(value)
}

func toString(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}
