package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"
)

// CrossEncoderConfig configures the lazily-loaded cross-encoder reranker.
type CrossEncoderConfig struct {
	Host    string // base URL of the rerank server, e.g. http://localhost:11435
	Model   string
	Timeout time.Duration
}

// DefaultCrossEncoderConfig mirrors the embedder's Ollama-style defaults.
func DefaultCrossEncoderConfig() CrossEncoderConfig {
	return CrossEncoderConfig{
		Host:    "http://localhost:11435",
		Model:   "cross-encoder/ms-marco-MiniLM-L-6-v2",
		Timeout: 30 * time.Second,
	}
}

// CrossEncoderReranker scores (query, candidate-text) pairs with a hosted
// cross-encoder model, loaded lazily on first Rerank call so that most
// queries — which never set use_reranker — never pay its startup cost.
type CrossEncoderReranker struct {
	cfg    CrossEncoderConfig
	client *http.Client

	mu     sync.Mutex
	loaded bool
}

var _ Reranker = (*CrossEncoderReranker)(nil)

// NewCrossEncoderReranker constructs a reranker without contacting the
// server; the connection is established lazily on first use.
func NewCrossEncoderReranker(cfg CrossEncoderConfig) *CrossEncoderReranker {
	if cfg.Host == "" || cfg.Timeout == 0 {
		def := DefaultCrossEncoderConfig()
		if cfg.Host == "" {
			cfg.Host = def.Host
		}
		if cfg.Model == "" {
			cfg.Model = def.Model
		}
		if cfg.Timeout == 0 {
			cfg.Timeout = def.Timeout
		}
	}
	return &CrossEncoderReranker{
		cfg:    cfg,
		client: &http.Client{},
	}
}

type rerankRequest struct {
	Model string   `json:"model"`
	Query string   `json:"query"`
	Docs  []string `json:"documents"`
}

type rerankResponseItem struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

type rerankResponse struct {
	Results []rerankResponseItem `json:"results"`
}

// Rerank pairs query with each candidate's best available text, scores all
// pairs with the cross-encoder, and returns the top-k by reranker score. The
// reranker's score is stored in RerankScore and the pre-rerank Score is left
// as is; on any failure to reach the model, candidates keep their original
// order and score and are truncated to topK, exactly as spec §7 requires —
// rerank failure must never fail the query.
func (r *CrossEncoderReranker) Rerank(ctx context.Context, query string, candidates []SemanticResult, topK int) ([]SemanticResult, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}

	r.mu.Lock()
	r.loaded = true
	r.mu.Unlock()

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = bestAvailableText(c)
	}

	scores, err := r.scorePairs(ctx, query, texts)
	if err != nil {
		if topK > 0 && topK < len(candidates) {
			return candidates[:topK], nil
		}
		return candidates, nil
	}

	out := make([]SemanticResult, len(candidates))
	copy(out, candidates)
	for i := range out {
		out[i].RerankScore = scores[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RerankScore > out[j].RerankScore })

	if topK > 0 && topK < len(out) {
		out = out[:topK]
	}
	return out, nil
}

// bestAvailableText picks the text the reranker pairs with query, preferring
// stored content and falling back to a synthetic path+entity description
// when the candidate carries no snippet.
func bestAvailableText(c SemanticResult) string {
	if c.Content != "" {
		return c.Content
	}
	return fmt.Sprintf("%s (chunk %d/%d)", c.Path, c.ChunkIndex+1, c.TotalChunks)
}

func (r *CrossEncoderReranker) scorePairs(ctx context.Context, query string, texts []string) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(rerankRequest{Model: r.cfg.Model, Query: query, Docs: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Host+"/api/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("rerank server returned %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}

	scores := make([]float64, len(texts))
	for _, item := range parsed.Results {
		if item.Index >= 0 && item.Index < len(scores) {
			scores[item.Index] = item.Score
		}
	}
	return scores, nil
}

// Available checks whether the rerank server is reachable.
func (r *CrossEncoderReranker) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.Host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Close releases the reranker's HTTP transport resources.
func (r *CrossEncoderReranker) Close() error {
	r.client.CloseIdleConnections()
	return nil
}

// NoOpReranker returns candidates unchanged, used when reranking is
// disabled or unavailable.
type NoOpReranker struct{}

var _ Reranker = (*NoOpReranker)(nil)

// Rerank truncates to topK without changing order or scores.
func (NoOpReranker) Rerank(_ context.Context, _ string, candidates []SemanticResult, topK int) ([]SemanticResult, error) {
	if topK > 0 && topK < len(candidates) {
		return candidates[:topK], nil
	}
	return candidates, nil
}
