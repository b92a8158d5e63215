// Package embedding adapts an OpenAI-compatible embeddings endpoint to
// ports.EmbeddingProvider (C5).
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/atlasvoice/assistant/internal/adapters/circuitbreaker"
	"github.com/atlasvoice/assistant/internal/adapters/retry"
)

// Timeout is the maximum time to wait for one embedding call.
const Timeout = 30 * time.Second

// Client is an OpenAI-compatible embedding client implementing
// ports.EmbeddingProvider.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	dimensions  int
	httpClient  *http.Client
	retryConfig retry.BackoffConfig
	breaker     *circuitbreaker.CircuitBreaker
	logger      *slog.Logger
}

// NewClient creates a new embedding client.
func NewClient(baseURL, apiKey, model string, dimensions int, logger *slog.Logger) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")
	baseURL = strings.TrimSuffix(baseURL, "/v1")
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:     baseURL,
		apiKey:      apiKey,
		model:       model,
		dimensions:  dimensions,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		retryConfig: retry.HTTPConfig(),
		breaker:     circuitbreaker.New(5, 30*time.Second),
		logger:      logger,
	}
}

type embeddingRequest struct {
	Input any    `json:"input"`
	Model string `json:"model"`
}

type embeddingResponse struct {
	Object string `json:"object"`
	Data   []struct {
		Object    string    `json:"object"`
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// Embed generates an embedding for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	var result []float32
	err := c.breaker.Execute(func() error {
		ctx, cancel := context.WithTimeout(ctx, Timeout)
		defer cancel()

		results, err := c.embedBatchInternal(ctx, []string{text})
		if err != nil {
			c.logger.Error("embed failed", "base_url", c.baseURL, "model", c.model, "error", err)
			return err
		}
		if len(results) == 0 {
			return fmt.Errorf("no embedding returned")
		}
		result = results[0]
		return nil
	})
	return result, err
}

// EmbedBatch generates embeddings for multiple texts in one call.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	var results [][]float32
	err := c.breaker.Execute(func() error {
		ctx, cancel := context.WithTimeout(ctx, Timeout)
		defer cancel()

		var err error
		results, err = c.embedBatchInternal(ctx, texts)
		return err
	})
	return results, err
}

// Dimensions returns the configured embedding dimensionality.
func (c *Client) Dimensions() int {
	return c.dimensions
}

func (c *Client) embedBatchInternal(ctx context.Context, texts []string) ([][]float32, error) {
	req := embeddingRequest{Model: c.model}
	if len(texts) == 1 {
		req.Input = texts[0]
	} else {
		req.Input = texts
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var respBody []byte
	err = retry.WithBackoffHTTP(ctx, c.retryConfig, func() (int, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/embeddings", bytes.NewReader(body))
		if err != nil {
			return 0, fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return 0, fmt.Errorf("send request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return resp.StatusCode, fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return resp.StatusCode, fmt.Errorf("embedding API error: %s - %s", resp.Status, string(respBody))
		}
		return resp.StatusCode, nil
	})
	if err != nil {
		return nil, err
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	results := make([][]float32, len(parsed.Data))
	for _, data := range parsed.Data {
		dims := len(data.Embedding)
		if c.dimensions > 0 && dims != c.dimensions {
			return nil, fmt.Errorf("expected %d dimensions but got %d", c.dimensions, dims)
		}
		results[data.Index] = data.Embedding
	}
	return results, nil
}
