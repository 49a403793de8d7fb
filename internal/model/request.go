package model

// ChatCompletionRequest is the inbound OpenAI-style chat completion body.
type ChatCompletionRequest struct {
	Model          string        `json:"model"`
	Messages       []ChatMessage `json:"messages"`
	Stream         bool          `json:"stream"`
	ConversationID string        `json:"conversation_id"`
}

type ChatMessage struct {
	ID      string         `json:"id,omitempty"`
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
}
