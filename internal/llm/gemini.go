package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/rogers-f/deliberate/internal/domain"
)

// GeminiClient calls the Gemini API. The underlying genai client is created
// on first use because its constructor needs a context.
type GeminiClient struct {
	cfg Config

	mu     sync.Mutex
	client *genai.Client
}

// NewGemini creates a Gemini client.
func NewGemini(cfg Config) *GeminiClient {
	return &GeminiClient{cfg: cfg}
}

// Provider implements Client.
func (c *GeminiClient) Provider() string { return ProviderGemini }

// Model implements Client.
func (c *GeminiClient) Model() string { return c.cfg.Model }

func (c *GeminiClient) conn(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	cc := &genai.ClientConfig{
		APIKey:  c.cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if c.cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = c.cfg.BaseURL
	}
	if c.cfg.Timeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: c.cfg.Timeout}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	c.client = client
	return client, nil
}

// Complete implements Client.
func (c *GeminiClient) Complete(ctx context.Context, req Request) (*Response, error) {
	client, err := c.conn(ctx)
	if err != nil {
		return nil, callError(ProviderGemini, err)
	}

	system, contents := toGeminiContents(req.System, req.Messages)
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens(req)),
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: t.Parameters,
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
		if req.NoToolCalls {
			config.ToolConfig = &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode: genai.FunctionCallingConfigModeNone,
			}}
		}
	} else if req.JSON {
		config.ResponseMIMEType = "application/json"
	}

	resp, err := client.Models.GenerateContent(ctx, c.cfg.Model, contents, config)
	if err != nil {
		return nil, callError(ProviderGemini, err)
	}
	if len(resp.Candidates) == 0 {
		return nil, emptyError(ProviderGemini)
	}

	out := &Response{Content: resp.Text()}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			InputTokens:  int64(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int64(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	for i, fc := range resp.FunctionCalls() {
		id := fc.ID
		if id == "" {
			id = fmt.Sprintf("call_%s_%d", fc.Name, i)
		}
		out.ToolCalls = append(out.ToolCalls, domain.ToolCall{ID: id, Name: fc.Name, Arguments: fc.Args})
	}
	return out, nil
}

// toGeminiContents maps chat turns to user/model contents. Tool results are
// function responses keyed by tool name.
func toGeminiContents(system string, msgs []domain.ChatMessage) (string, []*genai.Content) {
	systemParts := []string{}
	if system != "" {
		systemParts = append(systemParts, system)
	}

	var out []*genai.Content
	push := func(role genai.Role, parts ...*genai.Part) {
		if len(parts) == 0 {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == string(role) {
			out[n-1].Parts = append(out[n-1].Parts, parts...)
			return
		}
		out = append(out, genai.NewContentFromParts(parts, role))
	}

	for _, m := range msgs {
		switch m.Role {
		case domain.ChatSystem:
			systemParts = append(systemParts, m.Content)
		case domain.ChatUser:
			push(genai.RoleUser, genai.NewPartFromText(m.Content))
		case domain.ChatTool:
			push(genai.RoleUser, genai.NewPartFromFunctionResponse(m.ToolName, map[string]any{"result": m.Content}))
		case domain.ChatAssistant:
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, genai.NewPartFromText(m.Content))
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, genai.NewPartFromFunctionCall(tc.Name, tc.Arguments))
			}
			push(genai.RoleModel, parts...)
		}
	}
	return strings.Join(systemParts, "\n\n"), out
}
