// Package embedding implements C4: batched text→vector embedding with
// retry/backoff and dimension consistency, grounded on the teacher's
// internal/embedding/client.go HTTP client and internal/rag/embedder's
// Embedder interface (EmbedBatch/Name/Dimension/Ping).
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"

	"nur/internal/config"
	"nur/internal/memory"
)

// Embedder batches text into vectors for C1/C9 callers.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
	Dimension() int
}

type embedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResp struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// httpEmbedder calls a configured HTTP embedding endpoint with exponential
// backoff + full jitter retry, matching C4's "retries with exponential
// backoff on transient failure for at most N attempts, then EmbeddingError."
type httpEmbedder struct {
	cfg        config.EmbeddingConfig
	httpClient *http.Client
}

// NewHTTP builds an Embedder that calls cfg.Endpoint.
func NewHTTP(cfg config.EmbeddingConfig, httpClient *http.Client) Embedder {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	return &httpEmbedder{cfg: cfg, httpClient: httpClient}
}

func (e *httpEmbedder) Name() string   { return e.cfg.Model }
func (e *httpEmbedder) Dimension() int { return e.cfg.Dimensions }

func (e *httpEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		out, err := e.callOnce(ctx, texts)
		if err == nil {
			if err := checkDimensions(out, e.cfg.Dimensions); err != nil {
				return nil, memory.NewEmbeddingError("inconsistent embedding dimension", err)
			}
			return out, nil
		}
		lastErr = err
		if attempt == e.cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, memory.NewEmbeddingError("embedding canceled", ctx.Err())
		case <-time.After(backoff(attempt)):
		}
	}
	return nil, memory.NewEmbeddingError(fmt.Sprintf("embedding failed after %d attempts", e.cfg.MaxRetries), lastErr)
}

func backoff(attempt int) time.Duration {
	base := 250 * time.Millisecond
	cap := 8 * time.Second
	d := base * time.Duration(1<<uint(attempt-1))
	if d > cap {
		d = cap
	}
	return time.Duration(rand.Int63n(int64(d) + 1))
}

func (e *httpEmbedder) callOnce(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody, _ := json.Marshal(embedReq{Model: e.cfg.Model, Input: texts})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("embedding endpoint %s: %s", resp.Status, string(body))
	}
	var er embedResp
	if err := json.Unmarshal(body, &er); err != nil {
		return nil, fmt.Errorf("parse embedding response: %w", err)
	}
	if len(er.Data) != len(texts) {
		return nil, fmt.Errorf("unexpected embedding count: got %d, want %d", len(er.Data), len(texts))
	}
	out := make([][]float32, len(er.Data))
	for i := range er.Data {
		out[i] = er.Data[i].Embedding
	}
	return out, nil
}

func checkDimensions(vecs [][]float32, want int) error {
	if want <= 0 {
		return nil
	}
	for i, v := range vecs {
		if len(v) != want {
			return fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), want)
		}
	}
	return nil
}

// L2Normalize scales v in place to unit length, used by the deterministic
// embedder for cosine-distance stability in tests.
func L2Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
