package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	"github.com/voltio/ramsgen/internal/config"
)

// The embedding model caps input length; longer descriptions are clamped
// rather than rejected since the tail rarely changes the vector meaningfully.
const maxInputChars = 8000

// OpenAIClient implements Client using the OpenAI embeddings API.
type OpenAIClient struct {
	cfg    config.EmbeddingConfig
	client *http.Client
}

// NewOpenAIClient creates a new OpenAIClient.
func NewOpenAIClient(cfg config.EmbeddingConfig) *OpenAIClient {
	return &OpenAIClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type embeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed computes an embedding for text, retrying transient failures with
// exponential backoff. Client errors (4xx) are not retried.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if len(text) > maxInputChars {
		text = text[:maxInputChars]
	}

	var vector []float32
	op := func() error {
		v, err := c.embedOnce(ctx, text)
		if err != nil {
			return err
		}
		vector = v
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.cfg.MaxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return vector, nil
}

func (c *OpenAIClient) embedOnce(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Input: text, Model: c.cfg.Model})
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("encoding request: %w", err))
	}

	u := c.cfg.BaseURL + "/v1/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, msg)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	var er embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(er.Data) == 0 || len(er.Data[0].Embedding) == 0 {
		return nil, backoff.Permanent(fmt.Errorf("%w: empty embedding", ErrInvalidResponse))
	}

	return er.Data[0].Embedding, nil
}

var _ Client = (*OpenAIClient)(nil)
