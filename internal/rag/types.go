package rag

// ContextItem is a retrieved chunk with its source page and similarity score.
type ContextItem struct {
	Text  string  `json:"text"`
	Page  int     `json:"page"`
	Score float32 `json:"score"`
}

// AskRequest represents a RAG query request.
type AskRequest struct {
	// Question is the user's question to answer.
	Question string `json:"question"`
	// TopK is the number of chunks to retrieve. Zero means DefaultTopK.
	TopK int `json:"top_k,omitempty"`
	// Temperature is the sampling temperature. Nil means DefaultTemperature.
	Temperature *float32 `json:"temperature,omitempty"`
	// MaxTokens caps the answer length. Zero means DefaultMaxTokens.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// AskResponse represents the response from a RAG query.
type AskResponse struct {
	// Answer is the generated answer. Empty when GenerationErr is set.
	Answer string `json:"answer"`
	// Contexts are the retrieved chunks, in retrieval order, used to build the prompt.
	Contexts []ContextItem `json:"contexts"`
	// GenerationErr is the typed failure of the generation call, if any.
	// Retrieval succeeded when it is set, so Contexts are still valid.
	GenerationErr error `json:"-"`
}
