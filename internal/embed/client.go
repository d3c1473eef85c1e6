package embed

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
)

// Client calls a face-embedding HTTP service.
type Client struct {
	BaseURL      string
	APIKey       string
	Model        string
	ExpectedSize int // expected vector size; every response is validated against it
	client       *http.Client
}

var _ Embedder = (*Client)(nil)

// NewClient creates a face-embedding client. expectedSize must match the
// dimensionality of the vector store the embeddings feed into.
func NewClient(baseURL, apiKey, model string, expectedSize int) *Client {
	return &Client{
		BaseURL:      baseURL,
		APIKey:       apiKey,
		Model:        model,
		ExpectedSize: expectedSize,
		client:       http.DefaultClient,
	}
}

// embeddingRequest is the request payload for the embedding service.
type embeddingRequest struct {
	Model string `json:"model"`
	Image string `json:"image"` // base64-encoded image bytes
}

// embeddingResponse is the service response.
type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// EmbedImage reads the image at path and asks the service for its identity
// embedding. A 422 from the service means no detectable face and maps to
// ErrNoFace.
func (c *Client) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image %s: %w", path, err)
	}

	payload := embeddingRequest{
		Model: c.Model,
		Image: base64.StdEncoding.EncodeToString(raw),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/face-embeddings", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusUnprocessableEntity {
		return nil, ErrNoFace
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("bad status %d: %s", resp.StatusCode, string(raw))
	}

	var embResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(embResp.Embedding) == 0 {
		return nil, ErrNoFace
	}
	if len(embResp.Embedding) != c.ExpectedSize {
		return nil, fmt.Errorf("embedding has size %d, expected %d", len(embResp.Embedding), c.ExpectedSize)
	}

	vec := make([]float32, len(embResp.Embedding))
	for i, v := range embResp.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}
