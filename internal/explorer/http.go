package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/time/rate"

	"github.com/freeeve/enginepool/internal/board"
)

// HTTPConfig configures an HTTPClient.
type HTTPConfig struct {
	BaseURL      string        // chessgraph API root, e.g. http://localhost:8080
	Timeout      time.Duration // per request (default 10s)
	RequestsPerS float64       // default 5
	Burst        int           // default 5
	Client       *http.Client  // optional
}

// HTTPClient reads move statistics from a chessgraph API server.
type HTTPClient struct {
	base    string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPClient creates a client with defaults applied.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerS <= 0 {
		cfg.RequestsPerS = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPClient{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerS), cfg.Burst),
	}
}

type fenResponse struct {
	Position string `json:"position"`
	FEN      string `json:"fen"`
}

type positionResponse struct {
	Position string         `json:"position"`
	FEN      string         `json:"fen"`
	Moves    []moveResponse `json:"moves"`
}

type moveResponse struct {
	SAN    string `json:"san"`
	UCI    string `json:"uci"`
	Count  uint32 `json:"count"`
	Wins   uint32 `json:"wins"`
	Draws  uint32 `json:"draws"`
	Losses uint32 `json:"losses"`
}

// MoveStatistics implements Source. Wins and losses reported by the server
// are from the side to move's point of view and are mapped to colors here.
// Moves nobody has played are dropped.
func (c *HTTPClient) MoveStatistics(ctx context.Context, fen string) ([]MoveStats, error) {
	side, err := board.SideToMove(fen)
	if err != nil {
		return nil, err
	}

	var key fenResponse
	if err := c.get(ctx, "/v1/fen?fen="+url.QueryEscape(fen), &key); err != nil {
		return nil, fmt.Errorf("resolve position: %w", err)
	}
	if key.Position == "" {
		return nil, errors.New("resolve position: empty key")
	}

	var pos positionResponse
	err = c.get(ctx, "/v1/position/"+url.PathEscape(key.Position), &pos)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("position stats: %w", err)
	}

	out := make([]MoveStats, 0, len(pos.Moves))
	for _, mv := range pos.Moves {
		if mv.Count == 0 {
			continue
		}
		s := MoveStats{
			Move:       mv.UCI,
			Draws:      int(mv.Draws),
			TotalGames: int(mv.Count),
		}
		if side == board.White {
			s.WhiteWins, s.BlackWins = int(mv.Wins), int(mv.Losses)
		} else {
			s.WhiteWins, s.BlackWins = int(mv.Losses), int(mv.Wins)
		}
		out = append(out, s)
	}
	SortByGames(out)
	return out, nil
}

var errNotFound = errors.New("not found")

func (c *HTTPClient) get(ctx context.Context, path string, v any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "zstd, gzip")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	body, closeBody, err := decodeBody(resp)
	if err != nil {
		return err
	}
	defer closeBody()
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeBody undoes the Content-Encoding of resp.
func decodeBody(resp *http.Response) (io.Reader, func(), error) {
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "zstd":
		zr, err := zstd.NewReader(resp.Body, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, nil, fmt.Errorf("zstd reader: %w", err)
		}
		return zr, zr.Close, nil
	case "gzip":
		gr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip reader: %w", err)
		}
		return gr, func() { _ = gr.Close() }, nil
	default:
		return resp.Body, func() {}, nil
	}
}
