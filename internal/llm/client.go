package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"nutrition-rag/internal/apperr"
	"nutrition-rag/internal/contextutil"
	"nutrition-rag/internal/retry"
)

const (
	// DefaultSystemPrompt pins the model to the supplied context.
	DefaultSystemPrompt = "Answer ONLY using the provided context. If unknown, say 'I don’t know'."
	// DefaultGenerationTimeout bounds a single chat completion request.
	DefaultGenerationTimeout = 40 * time.Second
)

// Client calls an OpenAI-compatible chat completions API such as OpenRouter.
type Client struct {
	BaseURL string
	APIKey  string
	Model   string
	// Referer and Title are sent as OpenRouter's HTTP-Referer and X-Title headers when set.
	Referer      string
	Title        string
	SystemPrompt string
	Timeout      time.Duration
	// Retry defaults to a single attempt: a question costs exactly one request.
	Retry retry.Policy

	client *http.Client
}

// NewClient creates a new chat completions client.
func NewClient(baseURL, apiKey, model string) *Client {
	return &Client{
		BaseURL:      baseURL,
		APIKey:       apiKey,
		Model:        model,
		SystemPrompt: DefaultSystemPrompt,
		Timeout:      DefaultGenerationTimeout,
		Retry:        retry.Once,
		client:       http.DefaultClient,
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.client = hc
	return c
}

// ChatRequest represents the request payload for chat completions.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float32   `json:"temperature"`
}

// ChatChoice represents a single choice in the chat response.
type ChatChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// ChatError is the error object some gateways return with a 200 status.
type ChatError struct {
	Code    any    `json:"code"`
	Message string `json:"message"`
}

// ChatResponse represents the response from the chat completions API.
type ChatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Error   *ChatError   `json:"error,omitempty"`
}

// Generate answers prompt as the single user turn under the grounding system
// message. Failures are returned as classified errors; the caller decides what
// the user sees.
func (c *Client) Generate(ctx context.Context, prompt string, params GenerateParams) (string, error) {
	logger := contextutil.LoggerFromContext(ctx)

	messages := []Message{
		{Role: "system", Content: c.SystemPrompt},
		{Role: "user", Content: prompt},
	}

	start := time.Now()
	answer, err := c.ChatWithMessages(ctx, messages, ChatParams{
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
	})
	if err != nil {
		logger.ErrorContext(ctx, "generation failed", "error", err, "duration", time.Since(start))
		return "", err
	}

	logger.InfoContext(ctx, "generation completed",
		"prompt_length", len(prompt),
		"answer_length", len(answer),
		"duration", time.Since(start),
	)
	return answer, nil
}

// ChatWithMessages sends a chat completion request and returns the first choice's content.
func (c *Client) ChatWithMessages(ctx context.Context, messages []Message, params ChatParams) (string, error) {
	model := params.Model
	if model == "" {
		model = c.Model
	}

	payload := ChatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var reply string
	err = retry.Do(ctx, c.Retry, "chat", func(ctx context.Context) error {
		content, err := c.chatOnce(ctx, body)
		if err != nil {
			return err
		}
		reply = content
		return nil
	})
	if err != nil {
		return "", err
	}
	return reply, nil
}

func (c *Client) chatOnce(ctx context.Context, body []byte) (string, error) {
	url := fmt.Sprintf("%s/v1/chat/completions", c.BaseURL)

	reqCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
	req.Header.Set("X-API-KEY", c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.Referer != "" {
		req.Header.Set("HTTP-Referer", c.Referer)
	}
	if c.Title != "" {
		req.Header.Set("X-Title", c.Title)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", transportError(ctx, "chat", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", statusError("chat", resp)
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", apperr.New(apperr.KindUpstream, "chat", fmt.Errorf("failed to decode response: %w", err))
	}

	if chatResp.Error != nil {
		return "", apperr.Errorf(apperr.KindUpstream, "chat", "api error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return "", apperr.Errorf(apperr.KindUpstream, "chat", "no choices returned")
	}

	return chatResp.Choices[0].Message.Content, nil
}
