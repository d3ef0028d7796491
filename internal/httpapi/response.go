package httpapi

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-playground/validator/v10"

	"github.com/freeeve/enginepool/internal/analysis"
)

var validate = validator.New()

// EvaluateRequest starts an evaluation of candidate moves.
type EvaluateRequest struct {
	FEN       string   `json:"fen" validate:"required"`
	Moves     []string `json:"moves" validate:"required,min=1,max=256,dive,required"`
	EvalDepth int      `json:"eval_depth" validate:"omitempty,min=1,max=60"`
	EaseDepth int      `json:"ease_depth" validate:"omitempty,min=1,max=60"`
}

// DiscoverRequest asks for the top lines of a position.
type DiscoverRequest struct {
	FEN   string `json:"fen" validate:"required"`
	Depth int    `json:"depth" validate:"omitempty,min=1,max=60"`
	Top   int    `json:"top" validate:"omitempty,min=1,max=32"`
}

// GenerationResponse reports the generation a request started.
type GenerationResponse struct {
	Generation uint64 `json:"generation"`
}

// ResultsResponse lists the current generation's results ordered by move.
type ResultsResponse struct {
	Generation uint64            `json:"generation"`
	Phase      analysis.Phase    `json:"phase"`
	Results    []analysis.Result `json:"results"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toResultsResponse(st analysis.Status, results map[string]analysis.Result) ResultsResponse {
	resp := ResultsResponse{
		Generation: st.Generation,
		Phase:      st.Phase,
		Results:    make([]analysis.Result, 0, len(results)),
	}
	for _, r := range results {
		resp.Results = append(resp.Results, r)
	}
	sort.Slice(resp.Results, func(i, j int) bool { return resp.Results[i].Move < resp.Results[j].Move })
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
