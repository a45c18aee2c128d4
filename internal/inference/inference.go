package inference

import "strings"

// Message is a normalized representation of a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat roles understood by providers and prompt templates.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Request represents a normalized model request.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
}

// Response represents a normalized model response.
type Response struct {
	Content string
}

// EstimateTokens approximates the token count of text from its whitespace
// word count. It is intentionally crude; it feeds dashboards and eval
// reports, not billing.
func EstimateTokens(text string) int {
	return int(float64(len(strings.Fields(text))) * 1.3)
}
