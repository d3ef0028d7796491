// Package predict is a client for a human-move-prediction service.
package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Oracle predicts how likely players of a rating are to play each move.
type Oracle interface {
	Predict(ctx context.Context, fen string, rating int) (map[string]float64, error)
}

// Config configures a Client.
type Config struct {
	URL          string        // POST endpoint
	Timeout      time.Duration // default 10s
	RequestsPerS float64       // default 5
	Client       *http.Client
}

// Client posts {fen, rating} and reads {moves: {uci: probability}}.
type Client struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
}

// New creates a Client with defaults applied.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerS <= 0 {
		cfg.RequestsPerS = 5
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		url:     cfg.URL,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerS), 1),
	}
}

type request struct {
	FEN    string `json:"fen"`
	Rating int    `json:"rating"`
}

type response struct {
	Moves map[string]float64 `json:"moves"`
}

// Predict implements Oracle. Negative probabilities are dropped.
func (c *Client) Predict(ctx context.Context, fen string, rating int) (map[string]float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	body, err := json.Marshal(request{FEN: fen, Rating: rating})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("predict: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("predict: decode: %w", err)
	}
	moves := make(map[string]float64, len(out.Moves))
	for mv, p := range out.Moves {
		if p > 0 {
			moves[mv] = p
		}
	}
	return moves, nil
}

// Func adapts a function to Oracle.
type Func func(ctx context.Context, fen string, rating int) (map[string]float64, error)

// Predict implements Oracle.
func (f Func) Predict(ctx context.Context, fen string, rating int) (map[string]float64, error) {
	return f(ctx, fen, rating)
}
