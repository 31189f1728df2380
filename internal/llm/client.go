// Package llm adapts model providers to the single request/response shape
// the agents use. Providers are constructed once per process and injected.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rogers-f/deliberate/internal/domain"
)

// DefaultMaxTokens is used when a request leaves MaxTokens unset.
const DefaultMaxTokens = 4096

// ToolSpec declares a tool the model may call. Parameters is a JSON Schema
// object with "properties" and "required".
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is one model call.
type Request struct {
	// Agent and Session label the call for accounting only.
	Agent   domain.AgentID
	Session string

	System   string
	Messages []domain.ChatMessage
	Tools    []ToolSpec
	// NoToolCalls keeps Tools declared, so a history holding earlier tool
	// turns stays valid, but forbids new calls.
	NoToolCalls bool
	Temperature *float64
	MaxTokens   int
	// JSON asks providers that support it for a JSON object response.
	JSON bool
}

// Usage is the token cost of one call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Response is a provider-neutral completion.
type Response struct {
	Content   string
	ToolCalls []domain.ToolCall
	Usage     Usage
}

// Client is a reasoning collaborator.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Provider() string
	Model() string
}

// Config selects and configures a provider.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

// Provider names accepted by New.
const (
	ProviderAnthropic  = "anthropic"
	ProviderOpenAI     = "openai"
	ProviderGemini     = "gemini"
	ProviderDeepSeek   = "deepseek"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
	ProviderCompatible = "openai_compatible"
)

// New builds the client for cfg.Provider.
func New(cfg Config) (Client, error) {
	if cfg.Model == "" {
		return nil, domain.NewEngineError(domain.ErrProviderUnknown.Code, "model is required")
	}
	switch strings.ToLower(cfg.Provider) {
	case ProviderAnthropic:
		return NewAnthropic(cfg), nil
	case ProviderOpenAI:
		return NewOpenAI(cfg), nil
	case ProviderGemini:
		return NewGemini(cfg), nil
	case ProviderDeepSeek, ProviderOpenRouter, ProviderOllama, ProviderCompatible:
		return NewCompatible(cfg)
	default:
		return nil, domain.NewEngineError(domain.ErrProviderUnknown.Code, fmt.Sprintf("unknown provider %q", cfg.Provider))
	}
}

func maxTokens(req Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return DefaultMaxTokens
}

func callError(provider string, err error) error {
	return domain.WrapEngineError(domain.ErrProviderCall.Code, provider+" completion", err)
}

func emptyError(provider string) error {
	return domain.NewEngineError(domain.ErrProviderEmpty.Code, provider+" returned no choices")
}
