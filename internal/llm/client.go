package llm

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Client is a blocking, non-streaming chat-completion caller. Both pipeline
// stages go through the same endpoint, so one implementation serves both.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}
