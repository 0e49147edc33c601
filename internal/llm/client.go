package llm

import (
	"context"
	"fmt"
	"time"
)

// Message is one role-tagged segment of a prompt.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// System builds a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User builds a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant builds an assistant message.
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// Options bounds a single completion call.
type Options struct {
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
}

// DefaultOptions returns the options used when the caller passes zero values.
func DefaultOptions() Options {
	return Options{
		Timeout:     2 * time.Minute,
		MaxTokens:   2000,
		Temperature: 0.7,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Timeout <= 0 {
		o.Timeout = def.Timeout
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = def.MaxTokens
	}
	if o.Temperature <= 0 {
		o.Temperature = def.Temperature
	}
	return o
}

// Response is the uniform result of a completion call.
type Response struct {
	Content  string
	Provider string
	Model    string
}

// Client is the uniform contract to a local LLM runtime. Whether the
// runtime exposes a chat-style or a completion-style endpoint is resolved
// entirely inside the implementation; callers only see Complete.
//
// A Client performs exactly one outbound call per invocation and never
// retries; retry policy belongs to the orchestrator.
type Client interface {
	Complete(ctx context.Context, messages []Message, opts Options) (*Response, error)
	Provider() string
	Model() string
}

// Config holds configuration for constructing a client.
type Config struct {
	Provider string // "ollama", "lmstudio"
	Model    string
	BaseURL  string
}

// NewClient creates a client for the configured local runtime.
func NewClient(config Config) (Client, error) {
	switch config.Provider {
	case "ollama", "":
		return NewOllamaClient(config)
	case "lmstudio":
		return NewLMStudioClient(config)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", config.Provider)
	}
}
