package llm

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/rogers-f/deliberate/internal/domain"
)

// OpenAIClient calls the official Chat Completions API.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAI creates an OpenAI client.
func NewOpenAI(cfg Config) *OpenAIClient {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}
	return &OpenAIClient{client: openai.NewClient(opts...), model: cfg.Model}
}

// Provider implements Client.
func (c *OpenAIClient) Provider() string { return ProviderOpenAI }

// Model implements Client.
func (c *OpenAIClient) Model() string { return c.model }

// Complete implements Client.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (*Response, error) {
	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(c.model),
		Messages:            toOpenAIMessages(req.System, req.Messages),
		MaxCompletionTokens: openai.Int(int64(maxTokens(req))),
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	for _, t := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  openai.FunctionParameters(t.Parameters),
			},
		})
	}
	if req.NoToolCalls && len(params.Tools) > 0 {
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: openai.String(string(openai.ChatCompletionToolChoiceOptionAutoNone)),
		}
	}
	// JSON mode cannot be combined with tool calls on every model.
	if req.JSON && len(req.Tools) == 0 {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, callError(ProviderOpenAI, err)
	}
	if len(resp.Choices) == 0 {
		return nil, emptyError(ProviderOpenAI)
	}

	msg := resp.Choices[0].Message
	out := &Response{
		Content: msg.Content,
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
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

func toOpenAIMessages(system string, msgs []domain.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	if system != "" {
		out = append(out, openai.SystemMessage(system))
	}
	for _, m := range msgs {
		switch m.Role {
		case domain.ChatSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case domain.ChatUser:
			out = append(out, openai.UserMessage(m.Content))
		case domain.ChatTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		case domain.ChatAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			p := openai.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				p.Content.OfString = openai.String(m.Content)
			}
			for _, tc := range m.ToolCalls {
				p.ToolCalls = append(p.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: encodeArguments(tc.Arguments),
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &p})
		}
	}
	return out
}

// decodeArguments parses tool-call arguments. Malformed JSON is passed to
// the tool as a single "input" argument rather than dropped.
func decodeArguments(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{"input": raw}
	}
	return args
}

func encodeArguments(args map[string]any) string {
	if args == nil {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}
