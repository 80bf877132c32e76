package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Defaults for the HTTP client
const (
	DefaultModel   = "rerank-v1"
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 500
)

// ErrEmptyResponse is returned when the service answers without any results
var ErrEmptyResponse = errors.New("rerank response contained no results")

// Document is one candidate sent for scoring
type Document struct {
	Text       string
	DocumentID string
	Filename   string
}

// Score maps a relevance value back to a candidate by its position in the request
type Score struct {
	Index          int
	RelevanceScore float64
}

// Client scores documents against a query
type Client interface {
	Rerank(ctx context.Context, query string, documents []Document, topN int) ([]Score, error)
	ModelName() string
}

// HTTPConfig configures HTTPClient
type HTTPConfig struct {
	BaseURL           string
	APIKey            string
	Model             string
	RequestsPerSecond float64
	Logger            *slog.Logger
	HTTPClient        *http.Client
}

type rerankDocument struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type rerankRequest struct {
	Model     string           `json:"model,omitempty"`
	Query     string           `json:"query"`
	Documents []rerankDocument `json:"documents"`
	TopN      int              `json:"top_n,omitempty"`
}

type rerankResponseResult struct {
	Index          *int     `json:"index"`
	RelevanceScore *float64 `json:"relevance_score"`
}

type rerankResponse struct {
	Results []rerankResponseResult `json:"results"`
	Model   string                 `json:"model"`
}

// HTTPClient calls a Cohere/Jina style POST {base}/v1/rerank endpoint
type HTTPClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewHTTPClient creates an HTTPClient. Request deadlines come from the caller's
// context; the transport timeout is a backstop.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("rerank base URL is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  cfg.HTTPClient,
		limiter: limiter,
		logger:  cfg.Logger,
	}, nil
}

// ModelName returns the model identifier for logging
func (c *HTTPClient) ModelName() string {
	return c.model
}

// Rerank sends query and documents and returns the service's scores as given
func (c *HTTPClient) Rerank(ctx context.Context, query string, documents []Document, topN int) ([]Score, error) {
	if len(documents) == 0 {
		return []Score{}, nil
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	body := rerankRequest{
		Model:     c.model,
		Query:     query,
		Documents: make([]rerankDocument, len(documents)),
		TopN:      topN,
	}
	for i, d := range documents {
		doc := rerankDocument{Text: d.Text}
		if d.DocumentID != "" || d.Filename != "" {
			doc.Metadata = map[string]string{"document_id": d.DocumentID, "filename": d.Filename}
		}
		body.Documents[i] = doc
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/rerank", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call rerank endpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("rerank endpoint returned %d: %s", resp.StatusCode, string(raw))
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}
	if len(parsed.Results) == 0 {
		return nil, ErrEmptyResponse
	}

	scores := make([]Score, 0, len(parsed.Results))
	for i, r := range parsed.Results {
		if r.Index == nil || r.RelevanceScore == nil {
			return nil, fmt.Errorf("malformed rerank result %d: missing index or relevance_score", i)
		}
		scores = append(scores, Score{Index: *r.Index, RelevanceScore: *r.RelevanceScore})
	}

	c.logger.Debug("rerank_call_completed",
		slog.Int("document_count", len(documents)),
		slog.Int("result_count", len(scores)),
		slog.String("model", parsed.Model),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()))
	return scores, nil
}
