package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/rogers-f/deliberate/internal/domain"
)

// AnthropicClient calls the Messages API.
type AnthropicClient struct {
	client anthropic.Client
	model  string
}

// NewAnthropic creates an Anthropic client.
func NewAnthropic(cfg Config) *AnthropicClient {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}
	return &AnthropicClient{client: anthropic.NewClient(opts...), model: cfg.Model}
}

// Provider implements Client.
func (c *AnthropicClient) Provider() string { return ProviderAnthropic }

// Model implements Client.
func (c *AnthropicClient) Model() string { return c.model }

// Complete implements Client.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (*Response, error) {
	system, messages := toAnthropicMessages(req.System, req.Messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens(req)),
		Messages:  messages,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	for _, t := range req.Tools {
		tool := anthropic.ToolUnionParamOfTool(anthropic.ToolInputSchemaParam{
			Properties: t.Parameters["properties"],
			Required:   requiredFields(t.Parameters),
		}, t.Name)
		tool.OfTool.Description = anthropic.String(t.Description)
		params.Tools = append(params.Tools, tool)
	}
	if req.NoToolCalls && len(params.Tools) > 0 {
		none := anthropic.NewToolChoiceNoneParam()
		params.ToolChoice = anthropic.ToolChoiceUnionParam{OfNone: &none}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, callError(ProviderAnthropic, err)
	}

	out := &Response{Usage: Usage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}}
	var text []string
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text = append(text, block.Text)
		case "tool_use":
			var args map[string]any
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &args); err != nil {
					return nil, callError(ProviderAnthropic, err)
				}
			}
			out.ToolCalls = append(out.ToolCalls, domain.ToolCall{ID: block.ID, Name: block.Name, Arguments: args})
		}
	}
	out.Content = strings.Join(text, "\n")
	return out, nil
}

// toAnthropicMessages lifts system turns into the system prompt and merges
// consecutive same-role turns, since the API requires strict alternation.
// Tool results travel as user turns.
func toAnthropicMessages(system string, msgs []domain.ChatMessage) (string, []anthropic.MessageParam) {
	systemParts := []string{}
	if system != "" {
		systemParts = append(systemParts, system)
	}

	var out []anthropic.MessageParam
	push := func(role anthropic.MessageParamRole, blocks ...anthropic.ContentBlockParamUnion) {
		if len(blocks) == 0 {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			return
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: blocks})
	}

	for _, m := range msgs {
		switch m.Role {
		case domain.ChatSystem:
			systemParts = append(systemParts, m.Content)
		case domain.ChatUser:
			push(anthropic.MessageParamRoleUser, anthropic.NewTextBlock(m.Content))
		case domain.ChatTool:
			push(anthropic.MessageParamRoleUser, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false))
		case domain.ChatAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				args := tc.Arguments
				if args == nil {
					args = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, args, tc.Name))
			}
			push(anthropic.MessageParamRoleAssistant, blocks...)
		}
	}
	return strings.Join(systemParts, "\n\n"), out
}

func requiredFields(schema map[string]any) []string {
	switch r := schema["required"].(type) {
	case []string:
		return r
	case []any:
		out := make([]string, 0, len(r))
		for _, v := range r {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
