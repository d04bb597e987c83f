package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"nutrition-rag/internal/apperr"
	"nutrition-rag/internal/contextutil"
	"nutrition-rag/internal/retry"
)

const (
	// DefaultEmbeddingBatchSize is the number of texts sent per embeddings request.
	DefaultEmbeddingBatchSize = 32
	// DefaultEmbeddingTimeout bounds a single embeddings request.
	DefaultEmbeddingTimeout = 60 * time.Second

	// InputTypeDocument marks texts embedded for indexing.
	InputTypeDocument = "document"
	// InputTypeQuery marks texts embedded for retrieval.
	InputTypeQuery = "query"
)

// DefaultEmbeddingRetry allows exactly one retry after 30s.
var DefaultEmbeddingRetry = retry.Policy{MaxAttempts: 2, BaseDelay: 30 * time.Second, MaxDelay: 2 * time.Minute}

// EmbeddingsClient calls an OpenAI/Voyage compatible embeddings API.
type EmbeddingsClient struct {
	BaseURL string
	APIKey  string
	Model   string
	// ExpectedSize is the vector dimension. Zero means the first response decides it.
	ExpectedSize int
	BatchSize    int
	// BatchDelay pauses between successful batches. Zero skips the pause.
	BatchDelay time.Duration
	Timeout    time.Duration
	Retry      retry.Policy
	// SendInputType adds "input_type" to requests (Voyage). OpenAI rejects it.
	SendInputType bool

	client *http.Client
	mu     sync.Mutex
}

// NewEmbeddingsClient creates a new embeddings client with default batching,
// timeout and retry settings. expectedSize may be 0 to discover the dimension.
func NewEmbeddingsClient(baseURL, apiKey, model string, expectedSize int) *EmbeddingsClient {
	return &EmbeddingsClient{
		BaseURL:      baseURL,
		APIKey:       apiKey,
		Model:        model,
		ExpectedSize: expectedSize,
		BatchSize:    DefaultEmbeddingBatchSize,
		Timeout:      DefaultEmbeddingTimeout,
		Retry:        DefaultEmbeddingRetry,
		client:       http.DefaultClient,
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *EmbeddingsClient) WithHTTPClient(hc *http.Client) *EmbeddingsClient {
	c.client = hc
	return c
}

// EmbeddingsRequest represents the request payload for embeddings API.
type EmbeddingsRequest struct {
	Model     string   `json:"model"`
	Input     []string `json:"input"`
	InputType string   `json:"input_type,omitempty"`
}

// EmbeddingData represents a single embedding in the response.
type EmbeddingData struct {
	Embedding []float64 `json:"embedding"`
	Index     *int      `json:"index,omitempty"`
}

// EmbeddingsResponse represents the response from the embeddings API.
type EmbeddingsResponse struct {
	Data []EmbeddingData `json:"data"`
}

// Dimension returns the vector size, or 0 if no embedding has been seen yet.
func (c *EmbeddingsClient) Dimension() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ExpectedSize
}

// EmbedBatch embeds texts for indexing. The result has one vector per input,
// in input order. Batches are sent sequentially.
func (c *EmbeddingsClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	size := c.BatchSize
	if size < 1 {
		size = DefaultEmbeddingBatchSize
	}
	batches := (len(texts) + size - 1) / size

	result := make([][]float32, 0, len(texts))
	for b := 0; b < batches; b++ {
		lo := b * size
		hi := min(lo+size, len(texts))

		vecs, err := c.EmbedTexts(ctx, texts[lo:hi], InputTypeDocument)
		if err != nil {
			logger.ErrorContext(ctx, "embedding batch failed", "batch", b+1, "batches", batches, "error", err)
			return nil, fmt.Errorf("failed to embed batch %d of %d: %w", b+1, batches, err)
		}
		result = append(result, vecs...)

		logger.InfoContext(ctx, "embedded batch", "batch", b+1, "batches", batches, "texts", hi-lo)

		if b < batches-1 && c.BatchDelay > 0 {
			if err := retry.Sleep(ctx, c.BatchDelay); err != nil {
				return nil, err
			}
		}
	}

	return result, nil
}

// EmbedQuery embeds a single retrieval query.
func (c *EmbeddingsClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedTexts(ctx, []string{text}, InputTypeQuery)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedTexts sends one embeddings request for texts under the retry policy.
// Returns a slice of float32 vectors, one per input text.
func (c *EmbeddingsClient) EmbedTexts(ctx context.Context, texts []string, inputType string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("empty input array")
	}

	var result [][]float32
	err := retry.Do(ctx, c.Retry, "embeddings", func(ctx context.Context) error {
		vecs, err := c.embedOnce(ctx, texts, inputType)
		if err != nil {
			return err
		}
		result = vecs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *EmbeddingsClient) embedOnce(ctx context.Context, texts []string, inputType string) ([][]float32, error) {
	url := fmt.Sprintf("%s/v1/embeddings", c.BaseURL)

	payload := EmbeddingsRequest{
		Model: c.Model,
		Input: texts,
	}
	if c.SendInputType {
		payload.InputType = inputType
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	reqCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, "embeddings", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("embeddings", resp)
	}

	var embeddingsResp EmbeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingsResp); err != nil {
		return nil, apperr.New(apperr.KindTransientUpstream, "embeddings", fmt.Errorf("failed to decode response: %w", err))
	}

	if len(embeddingsResp.Data) != len(texts) {
		return nil, apperr.Errorf(apperr.KindUpstream, "embeddings", "expected %d embeddings, got %d", len(texts), len(embeddingsResp.Data))
	}

	ordered, err := orderByIndex(embeddingsResp.Data)
	if err != nil {
		return nil, err
	}

	result := make([][]float32, len(ordered))
	for i, data := range ordered {
		if err := c.checkSize(i, len(data.Embedding)); err != nil {
			return nil, err
		}

		vec := make([]float32, len(data.Embedding))
		for j, v := range data.Embedding {
			vec[j] = float32(v)
		}
		result[i] = vec
	}

	return result, nil
}

// orderByIndex puts response items back into request order when the service
// reports indices. Without indices the response order is trusted.
func orderByIndex(data []EmbeddingData) ([]EmbeddingData, error) {
	if len(data) == 0 || data[0].Index == nil {
		return data, nil
	}

	ordered := make([]EmbeddingData, len(data))
	seen := make([]bool, len(data))
	for _, d := range data {
		if d.Index == nil || *d.Index < 0 || *d.Index >= len(data) || seen[*d.Index] {
			return nil, apperr.Errorf(apperr.KindUpstream, "embeddings", "invalid or duplicate embedding index in response")
		}
		seen[*d.Index] = true
		ordered[*d.Index] = d
	}
	return ordered, nil
}

// checkSize fixes the dimension on first use and rejects vectors that differ.
func (c *EmbeddingsClient) checkSize(i, size int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if size == 0 {
		return apperr.Errorf(apperr.KindUpstream, "embeddings", "embedding %d is empty", i)
	}
	if c.ExpectedSize == 0 {
		c.ExpectedSize = size
		return nil
	}
	if size != c.ExpectedSize {
		return apperr.Errorf(apperr.KindDataContract, "embeddings", "embedding %d has size %d, expected %d", i, size, c.ExpectedSize)
	}
	return nil
}
