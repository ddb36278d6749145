// Package llms provides the chat-completion abstraction the reasoner
// runs on, plus the Ollama implementation.
package llms

import "context"

// Chat roles as understood by the provider layer.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ChatMessage is one turn of a provider conversation.
type ChatMessage struct {
	Role      string
	Content   string
	ToolCalls []ToolCall
	// ToolName identifies which tool produced a RoleTool message.
	ToolName string
}

// ToolDefinition declares a callable tool to the model.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// ToolCall is a structured tool invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]interface{}
}

// Completion is the provider's answer to a Generate call.
type Completion struct {
	Text       string
	ToolCalls  []ToolCall
	TokensUsed int
}

// Provider produces chat completions.
type Provider interface {
	// Generate runs one completion. A nil or empty tools slice asks
	// for a plain text answer.
	Generate(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (*Completion, error)

	// GetModelName returns the configured model identifier.
	GetModelName() string

	Close() error
}
