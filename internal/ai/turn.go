package ai

// Role attributes a conversational turn; compatible with string.
type Role string

const (
	// RoleUser is an end-user message.
	RoleUser Role = "user"
	// RoleAssistant is a model response.
	RoleAssistant Role = "assistant"
)

// Turn is a single role-attributed utterance used as provider input context.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
