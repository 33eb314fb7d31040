// Package llms defines the completion interface the gateway talks to.
package llms

import (
	"context"
)

// ProviderType is the type of provider.
type ProviderType string

const (
	// ProviderAnthropic is the type of provider.
	ProviderAnthropic ProviderType = "ANTHROPIC"
	// ProviderOpenAI is the type of provider.
	ProviderOpenAI ProviderType = "OPENAI"
)

// Role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat message sent to the model.
type Message struct {
	Role    Role
	Content string
}

// Request describes one completion call.
type Request struct {
	Model    string
	Messages []Message
	// Temperature is always set explicitly by the caller.
	Temperature float64
	// MaxCompletionTokens caps the response; 0 uses the provider default.
	MaxCompletionTokens int
	// JSONResponse asks the provider for a JSON object response where
	// the provider supports it.
	JSONResponse bool
}

// Response is the model output.
type Response struct {
	Content      string
	InputTokens  int64
	OutputTokens int64
}

// Completer is a chat completion backend.
type Completer interface {
	// GetProviderType returns the type of provider.
	GetProviderType() ProviderType
	// Complete runs one chat completion.
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// SystemMessage returns a system role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage returns a user role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage returns an assistant role message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}
