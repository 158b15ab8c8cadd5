// Package cohere is a minimal typed client for the Cohere v2 REST API,
// covering the two endpoints the application needs: text embedding and
// chat completion.
//
// Embedding requests are transparently split into batches of at most
// MaxBatchSize texts with a short delay between batches; the call succeeds
// only if every batch succeeds. Transient failures (HTTP 429 and 5xx,
// network errors) are retried with exponential backoff, other API errors
// fail fast.
package cohere

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-docqa-backend/internal/retry"
)

// Input types for the embed endpoint. Documents and queries are embedded
// differently; mixing them up degrades retrieval quality.
const (
	InputSearchDocument = "search_document"
	InputSearchQuery    = "search_query"
)

const (
	// DefaultBaseURL is the public Cohere API endpoint.
	DefaultBaseURL = "https://api.cohere.com"
	// DefaultMaxBatchSize is the embed endpoint's per-request text limit.
	DefaultMaxBatchSize = 96
)

// ErrNoEmbeddings is returned when the API answers 200 but the response
// carries fewer vectors than texts were sent.
var ErrNoEmbeddings = errors.New("cohere: response is missing embeddings")

// APIError is a non-2xx answer from the Cohere API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cohere: api error (status %d): %s", e.StatusCode, e.Message)
}

// Retryable reports whether the failure is worth retrying.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Config carries the knobs for a Client.
type Config struct {
	APIKey       string
	BaseURL      string
	EmbedModel   string
	ChatModel    string
	MaxBatchSize int
	BatchDelay   time.Duration
	Timeout      time.Duration
	Retry        retry.Policy
}

// Client talks to the Cohere v2 API. It is safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
	log  zerolog.Logger
}

// New builds a Client, filling unset Config fields with defaults.
func New(cfg Config, log zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log.With().Str("component", "cohere").Logger(),
	}
}

type embedRequest struct {
	Model          string   `json:"model"`
	Texts          []string `json:"texts"`
	InputType      string   `json:"input_type"`
	EmbeddingTypes []string `json:"embedding_types"`
}

type embedResponse struct {
	Embeddings struct {
		Float [][]float32 `json:"float"`
	} `json:"embeddings"`
}

// EmbedDocuments embeds passages for indexing. The result has exactly one
// vector per input text, in order, or the call fails as a whole.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return c.embed(ctx, texts, InputSearchDocument)
}

// EmbedQuery embeds a single search query.
func (c *Client) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vecs, err := c.embed(ctx, []string{query}, InputSearchQuery)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *Client) embed(ctx context.Context, texts []string, inputType string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.cfg.MaxBatchSize {
		end := start + c.cfg.MaxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		if start > 0 && c.cfg.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.cfg.BatchDelay):
			}
		}

		var resp embedResponse
		err := c.cfg.Retry.Do(ctx, func() error {
			resp = embedResponse{}
			return c.post(ctx, "/v2/embed", embedRequest{
				Model:          c.cfg.EmbedModel,
				Texts:          batch,
				InputType:      inputType,
				EmbeddingTypes: []string{"float"},
			}, &resp)
		})
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if len(resp.Embeddings.Float) != len(batch) {
			return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrNoEmbeddings, len(resp.Embeddings.Float), len(batch))
		}
		out = append(out, resp.Embeddings.Float...)
	}
	return out, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Message struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message"`
}

// Chat sends a single user prompt and returns the assistant's text reply.
func (c *Client) Chat(ctx context.Context, prompt string) (string, error) {
	var resp chatResponse
	err := c.cfg.Retry.Do(ctx, func() error {
		resp = chatResponse{}
		return c.post(ctx, "/v2/chat", chatRequest{
			Model:    c.cfg.ChatModel,
			Messages: []chatMessage{{Role: "user", Content: prompt}},
		}, &resp)
	})
	if err != nil {
		return "", err
	}
	for _, part := range resp.Message.Content {
		if part.Type == "text" && part.Text != "" {
			return part.Text, nil
		}
	}
	return "", errors.New("cohere: chat response contains no text content")
}

// post issues one JSON request and decodes the reply. API errors become
// *APIError; non-retryable statuses are marked permanent so the caller's
// retry loop stops immediately.
func (c *Client) post(ctx context.Context, path string, body, into any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return retry.Permanent(fmt.Errorf("encode request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: res.StatusCode, Message: errorMessage(raw)}
		c.log.Warn().Int("status", res.StatusCode).Str("path", path).Msg("cohere api error")
		if apiErr.Retryable() {
			return apiErr
		}
		return retry.Permanent(apiErr)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return retry.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func errorMessage(raw []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &e) == nil && e.Message != "" {
		return e.Message
	}
	msg := string(raw)
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
