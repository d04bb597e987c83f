package llm

// Message represents a single message in a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatParams holds parameters for chat completion requests.
type ChatParams struct {
	// Model specifies the model to use. If empty, the client's default model is used.
	Model string

	// MaxTokens specifies the maximum number of tokens to generate.
	// If 0, the field is omitted and the service default applies.
	MaxTokens int

	// Temperature controls the randomness of the output. It is always sent.
	Temperature float32
}

// GenerateParams are the per-question knobs exposed to users.
type GenerateParams struct {
	MaxTokens   int
	Temperature float32
}
