// Package httpapi serves the engine pool over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/pprof"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/freeeve/enginepool/internal/analysis"
	"github.com/freeeve/enginepool/internal/board"
)

// Pool is the part of analysis.Pool the API drives.
type Pool interface {
	Available() bool
	Status() analysis.Status
	Results() map[string]analysis.Result
	StartEvaluation(ctx context.Context, fen string, moves []string, evalDepth, easeDepth int) uint64
	RunDiscovery(ctx context.Context, fen string, depth, topN int, onProgress func(analysis.DiscoveryProgress)) (analysis.DiscoveryResult, error)
	Cancel()
}

// Defaults applies zero request fields.
type Defaults struct {
	EvalDepth     int
	EaseDepth     int
	DiscoverDepth int
	DiscoverTop   int
}

// Handler serves pool requests.
type Handler struct {
	pool     Pool
	defaults Defaults
	log      zerolog.Logger
}

// NewRouter builds the API mux wrapped in request-id and access-log
// middleware.
func NewRouter(log zerolog.Logger, pool Pool, defaults Defaults) http.Handler {
	h := &Handler{pool: pool, defaults: defaults, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.health)
	mux.HandleFunc("GET /readyz", h.ready)
	mux.HandleFunc("GET /v1/pool/status", h.status)
	mux.HandleFunc("GET /v1/pool/results", h.results)
	mux.HandleFunc("POST /v1/pool/evaluate", h.evaluate)
	mux.HandleFunc("POST /v1/pool/discover", h.discover)
	mux.HandleFunc("POST /v1/pool/cancel", h.cancel)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return RequestID(AccessLog(log, mux))
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ready fails while no engine can run.
func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	if !h.pool.Available() {
		writeError(w, http.StatusServiceUnavailable, "engine unavailable")
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pool.Status())
}

func (h *Handler) results(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toResultsResponse(h.pool.Status(), h.pool.Results()))
}

func (h *Handler) evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if !h.decode(w, r, &req) {
		return
	}
	if _, err := board.Load(req.FEN); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.EvalDepth == 0 {
		req.EvalDepth = h.defaults.EvalDepth
	}
	if req.EaseDepth == 0 {
		req.EaseDepth = h.defaults.EaseDepth
	}

	// the evaluation outlives this request; it ends on cancel or supersede
	gen := h.pool.StartEvaluation(context.WithoutCancel(r.Context()), req.FEN, req.Moves, req.EvalDepth, req.EaseDepth)
	if gen == 0 {
		writeError(w, http.StatusServiceUnavailable, "engine unavailable")
		return
	}
	h.log.Info().
		Str("rid", GetRequestID(r.Context())).
		Uint64("generation", gen).
		Int("moves", len(req.Moves)).
		Msg("evaluation requested")
	writeJSON(w, http.StatusAccepted, GenerationResponse{Generation: gen})
}

func (h *Handler) discover(w http.ResponseWriter, r *http.Request) {
	var req DiscoverRequest
	if !h.decode(w, r, &req) {
		return
	}
	if _, err := board.Load(req.FEN); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Depth == 0 {
		req.Depth = h.defaults.DiscoverDepth
	}
	if req.Top == 0 {
		req.Top = h.defaults.DiscoverTop
	}

	res, err := h.pool.RunDiscovery(r.Context(), req.FEN, req.Depth, req.Top, nil)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, analysis.ErrStale):
		writeError(w, http.StatusConflict, "superseded by a newer request")
	case errors.Is(err, analysis.ErrUnavailable), errors.Is(err, analysis.ErrNoWorkers), errors.Is(err, analysis.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.Canceled):
		// client went away
	default:
		h.log.Error().Err(err).Str("rid", GetRequestID(r.Context())).Msg("discovery")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.pool.Cancel()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}
