package llm

import (
	"context"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/rogers-f/deliberate/internal/domain"
)

// Default endpoints for OpenAI-compatible providers.
var compatBaseURLs = map[string]string{
	ProviderDeepSeek:   "https://api.deepseek.com/v1",
	ProviderOpenRouter: "https://openrouter.ai/api/v1",
	ProviderOllama:     "http://localhost:11434/v1",
}

// CompatibleClient talks to any endpoint that speaks the OpenAI chat
// completions wire format.
type CompatibleClient struct {
	client   *openai.Client
	provider string
	model    string
}

// NewCompatible creates a client for DeepSeek, OpenRouter, Ollama or a custom
// base URL. openai_compatible requires BaseURL.
func NewCompatible(cfg Config) (*CompatibleClient, error) {
	provider := strings.ToLower(cfg.Provider)
	base := cfg.BaseURL
	if base == "" {
		base = compatBaseURLs[provider]
	}
	if base == "" {
		return nil, domain.NewEngineError(domain.ErrProviderUnknown.Code, provider+" requires base_url")
	}
	key := cfg.APIKey
	if key == "" && provider == ProviderOllama {
		key = "ollama"
	}
	oc := openai.DefaultConfig(key)
	oc.BaseURL = strings.TrimRight(base, "/")
	if cfg.Timeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &CompatibleClient{
		client:   openai.NewClientWithConfig(oc),
		provider: provider,
		model:    cfg.Model,
	}, nil
}

// Provider implements Client.
func (c *CompatibleClient) Provider() string { return c.provider }

// Model implements Client.
func (c *CompatibleClient) Model() string { return c.model }

// Complete implements Client.
func (c *CompatibleClient) Complete(ctx context.Context, req Request) (*Response, error) {
	creq := openai.ChatCompletionRequest{
		Model:     c.model,
		Messages:  toCompatMessages(req.System, req.Messages),
		MaxTokens: maxTokens(req),
	}
	if req.Temperature != nil {
		creq.Temperature = float32(*req.Temperature)
	}
	for _, t := range req.Tools {
		creq.Tools = append(creq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	if req.NoToolCalls && len(creq.Tools) > 0 {
		creq.ToolChoice = "none"
	}
	if req.JSON && len(req.Tools) == 0 {
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := c.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, callError(c.provider, err)
	}
	if len(resp.Choices) == 0 {
		return nil, emptyError(c.provider)
	}

	msg := resp.Choices[0].Message
	out := &Response{
		Content: msg.Content,
		Usage: Usage{
			InputTokens:  int64(resp.Usage.PromptTokens),
			OutputTokens: int64(resp.Usage.CompletionTokens),
		},
	}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, domain.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: decodeArguments(tc.Function.Arguments),
		})
	}
	return out, nil
}

func toCompatMessages(system string, msgs []domain.ChatMessage) []openai.ChatCompletionMessage {
	var out []openai.ChatCompletionMessage
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range msgs {
		cm := openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
		switch m.Role {
		case domain.ChatTool:
			cm.Role = openai.ChatMessageRoleTool
			cm.ToolCallID = m.ToolCallID
			cm.Name = m.ToolName
		case domain.ChatAssistant:
			for _, tc := range m.ToolCalls {
				cm.ToolCalls = append(cm.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: encodeArguments(tc.Arguments),
					},
				})
			}
		}
		out = append(out, cm)
	}
	return out
}
