package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freeeve/enginepool/internal/analysis"
	"github.com/freeeve/enginepool/internal/board"
)

type fakePool struct {
	mu          sync.Mutex
	unavailable bool
	gen         uint64
	cancelled   int
	lastFEN     string
	lastMoves   []string
	lastDepths  [2]int
	discoverErr error
	results     map[string]analysis.Result
}

func (f *fakePool) Available() bool { return !f.unavailable }

func (f *fakePool) Status() analysis.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return analysis.Status{Phase: analysis.PhaseEvaluating, Generation: f.gen, TotalMoves: len(f.lastMoves), Evaluating: []string{}}
}

func (f *fakePool) Results() map[string]analysis.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.results
}

func (f *fakePool) StartEvaluation(ctx context.Context, fen string, moves []string, evalDepth, easeDepth int) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable {
		return 0
	}
	f.gen++
	f.lastFEN, f.lastMoves, f.lastDepths = fen, moves, [2]int{evalDepth, easeDepth}
	return f.gen
}

func (f *fakePool) RunDiscovery(ctx context.Context, fen string, depth, topN int, _ func(analysis.DiscoveryProgress)) (analysis.DiscoveryResult, error) {
	if f.discoverErr != nil {
		return analysis.DiscoveryResult{}, f.discoverErr
	}
	cp := 25
	lines := make([]analysis.DiscoveryLine, topN)
	for i := range lines {
		lines[i] = analysis.DiscoveryLine{Rank: i + 1, Move: "e2e4", ScoreCP: &cp, PV: []string{"e2e4"}, Depth: depth}
	}
	return analysis.DiscoveryResult{Depth: depth, Lines: lines}, nil
}

func (f *fakePool) Cancel() {
	f.mu.Lock()
	f.cancelled++
	f.mu.Unlock()
}

func newServer(t *testing.T, pool *fakePool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewRouter(zerolog.Nop(), pool, Defaults{EvalDepth: 18, EaseDepth: 12, DiscoverDepth: 20, DiscoverTop: 3}))
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeJSON(resp *http.Response, v any) error {
	return json.NewDecoder(resp.Body).Decode(v)
}

func TestEvaluate(t *testing.T) {
	pool := &fakePool{}
	srv := newServer(t, pool)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"ok", `{"fen":"` + board.StartFEN + `","moves":["e2e4","d2d4"],"eval_depth":10}`, http.StatusAccepted},
		{"missing moves", `{"fen":"` + board.StartFEN + `"}`, http.StatusBadRequest},
		{"empty move", `{"fen":"` + board.StartFEN + `","moves":[""]}`, http.StatusBadRequest},
		{"bad fen", `{"fen":"not a fen","moves":["e2e4"]}`, http.StatusBadRequest},
		{"depth out of range", `{"fen":"` + board.StartFEN + `","moves":["e2e4"],"eval_depth":500}`, http.StatusBadRequest},
		{"unknown field", `{"fen":"` + board.StartFEN + `","moves":["e2e4"],"threads":4}`, http.StatusBadRequest},
		{"garbage", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, srv.URL+"/v1/pool/evaluate", tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Len(t, resp.Header.Get("X-Request-ID"), 8)
		})
	}

	assert.Equal(t, uint64(1), pool.gen)
	assert.Equal(t, []string{"e2e4", "d2d4"}, pool.lastMoves)
	assert.Equal(t, [2]int{10, 12}, pool.lastDepths)
}

func TestEvaluateUnavailable(t *testing.T) {
	srv := newServer(t, &fakePool{unavailable: true})
	resp := post(t, srv.URL+"/v1/pool/evaluate", `{"fen":"`+board.StartFEN+`","moves":["e2e4"]}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	r, err := http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, r.StatusCode)
}

func TestResultsSorted(t *testing.T) {
	cp1, cp2 := 30, -10
	pool := &fakePool{gen: 4, results: map[string]analysis.Result{
		"g1f3": {Move: "g1f3", ScoreCP: &cp2, Depth: 12},
		"e2e4": {Move: "e2e4", ScoreCP: &cp1, Depth: 12},
	}}
	srv := newServer(t, pool)

	resp, err := http.Get(srv.URL + "/v1/pool/results")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body ResultsResponse
	require.NoError(t, decodeJSON(resp, &body))
	assert.Equal(t, uint64(4), body.Generation)
	require.Len(t, body.Results, 2)
	assert.Equal(t, "e2e4", body.Results[0].Move)
	assert.Equal(t, "g1f3", body.Results[1].Move)
}

func TestDiscover(t *testing.T) {
	pool := &fakePool{}
	srv := newServer(t, pool)

	resp := post(t, srv.URL+"/v1/pool/discover", `{"fen":"`+board.StartFEN+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res analysis.DiscoveryResult
	require.NoError(t, decodeJSON(resp, &res))
	assert.Equal(t, 20, res.Depth)
	assert.Len(t, res.Lines, 3)

	pool.discoverErr = analysis.ErrStale
	resp = post(t, srv.URL+"/v1/pool/discover", `{"fen":"`+board.StartFEN+`","top":2}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	pool.discoverErr = analysis.ErrUnavailable
	resp = post(t, srv.URL+"/v1/pool/discover", `{"fen":"`+board.StartFEN+`"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCancelStatusAndMetrics(t *testing.T) {
	pool := &fakePool{gen: 2}
	srv := newServer(t, pool)

	resp := post(t, srv.URL+"/v1/pool/cancel", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 1, pool.cancelled)

	r, err := http.Get(srv.URL + "/v1/pool/status")
	require.NoError(t, err)
	defer r.Body.Close()
	var st analysis.Status
	require.NoError(t, decodeJSON(r, &st))
	assert.Equal(t, analysis.PhaseEvaluating, st.Phase)
	assert.Equal(t, uint64(2), st.Generation)

	m, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer m.Body.Close()
	assert.Equal(t, http.StatusOK, m.StatusCode)

	g, err := http.Get(srv.URL + "/v1/pool/cancel")
	require.NoError(t, err)
	g.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, g.StatusCode)
}

func TestRequestIDPropagation(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abcd1234")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abcd1234", seen)
	assert.Equal(t, "abcd1234", rec.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "too-long-to-keep")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Len(t, seen, 8)
	assert.NotEqual(t, "too-long-to-keep", seen)
	assert.Empty(t, GetRequestID(context.Background()))
}
