package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rogers-f/deliberate/internal/domain"
	"github.com/rogers-f/deliberate/internal/metrics"
)

var calculatorSpec = ToolSpec{
	Name:        "calculator",
	Description: "Evaluate an arithmetic expression.",
	Parameters: map[string]any{
		"type":       "object",
		"properties": map[string]any{"expression": map[string]any{"type": "string"}},
		"required":   []string{"expression"},
	},
}

// toolRoundTrip is a conversation that has already made one tool call.
func toolRoundTrip() []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: domain.ChatUser, Content: "What is 2+2?"},
		{Role: domain.ChatAssistant, ToolCalls: []domain.ToolCall{{ID: "c1", Name: "calculator", Arguments: map[string]any{"expression": "2+2"}}}},
		{Role: domain.ChatTool, ToolCallID: "c1", ToolName: "calculator", Content: "4"},
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "carrier-pigeon", Model: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrProviderUnknown))

	_, err = New(Config{Provider: ProviderOpenAI})
	assert.True(t, errors.Is(err, domain.ErrProviderUnknown), "missing model should be rejected")
}

func TestNewSelectsAdapter(t *testing.T) {
	cases := []struct {
		provider string
		want     string
	}{
		{ProviderAnthropic, ProviderAnthropic},
		{ProviderOpenAI, ProviderOpenAI},
		{ProviderGemini, ProviderGemini},
		{ProviderDeepSeek, ProviderDeepSeek},
		{ProviderOpenRouter, ProviderOpenRouter},
		{ProviderOllama, ProviderOllama},
		{"OpenAI", ProviderOpenAI},
	}
	for _, tc := range cases {
		c, err := New(Config{Provider: tc.provider, Model: "m", APIKey: "k"})
		require.NoError(t, err, tc.provider)
		assert.Equal(t, tc.want, c.Provider())
		assert.Equal(t, "m", c.Model())
	}

	_, err := New(Config{Provider: ProviderCompatible, Model: "m"})
	assert.Error(t, err, "openai_compatible without base_url")
}

func TestCompatibleComplete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"x","object":"chat.completion","model":"m","choices":[{"index":0,
			"message":{"role":"assistant","content":"","tool_calls":[{"id":"c2","type":"function",
			"function":{"name":"calculator","arguments":"{\"expression\":\"3*3\"}"}}]},
			"finish_reason":"tool_calls"}],"usage":{"prompt_tokens":7,"completion_tokens":3,"total_tokens":10}}`)
	}))
	defer srv.Close()

	c, err := NewCompatible(Config{Provider: ProviderCompatible, Model: "m", APIKey: "secret", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	temp := 0.2
	resp, err := c.Complete(context.Background(), Request{
		System:      "be brief",
		Messages:    toolRoundTrip(),
		Tools:       []ToolSpec{calculatorSpec},
		Temperature: &temp,
	})
	require.NoError(t, err)

	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "c2", resp.ToolCalls[0].ID)
	assert.Equal(t, "calculator", resp.ToolCalls[0].Name)
	assert.Equal(t, "3*3", resp.ToolCalls[0].Arguments["expression"])
	assert.Equal(t, Usage{InputTokens: 7, OutputTokens: 3}, resp.Usage)

	msgs := got["messages"].([]any)
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "tool", msgs[3].(map[string]any)["role"])
	assert.Equal(t, "c1", msgs[3].(map[string]any)["tool_call_id"])
	assert.Len(t, got["tools"], 1)
}

func TestCompatibleJSONMode(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":"{\"ok\":true}"}}]}`)
	}))
	defer srv.Close()

	c, err := NewCompatible(Config{Provider: ProviderOllama, Model: "llama3", BaseURL: srv.URL})
	require.NoError(t, err)
	resp, err := c.Complete(context.Background(), Request{Messages: []domain.ChatMessage{{Role: domain.ChatUser, Content: "hi"}}, JSON: true})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, resp.Content)
	assert.Equal(t, map[string]any{"type": "json_object"}, got["response_format"])
	assert.EqualValues(t, DefaultMaxTokens, got["max_tokens"])
}

func TestCompatibleNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	c, err := NewCompatible(Config{Provider: ProviderDeepSeek, Model: "m", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), Request{Messages: []domain.ChatMessage{{Role: domain.ChatUser, Content: "hi"}}})
	assert.True(t, errors.Is(err, domain.ErrProviderEmpty))
}

func TestOpenAIComplete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"x","object":"chat.completion","created":1,"model":"gpt","choices":[{"index":0,
			"message":{"role":"assistant","content":"{\"answer\":\"4\"}"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":11,"completion_tokens":2,"total_tokens":13}}`)
	}))
	defer srv.Close()

	c := NewOpenAI(Config{Model: "gpt", APIKey: "k", BaseURL: srv.URL + "/v1"})
	resp, err := c.Complete(context.Background(), Request{System: "sys", Messages: toolRoundTrip(), Tools: []ToolSpec{calculatorSpec}})
	require.NoError(t, err)
	assert.Equal(t, `{"answer":"4"}`, resp.Content)
	assert.Equal(t, Usage{InputTokens: 11, OutputTokens: 2}, resp.Usage)

	msgs := got["messages"].([]any)
	require.Len(t, msgs, 4)
	assistant := msgs[2].(map[string]any)
	calls := assistant["tool_calls"].([]any)
	require.Len(t, calls, 1)
	fn := calls[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, `{"expression":"2+2"}`, fn["arguments"])
	assert.Nil(t, got["response_format"], "JSON mode is off when tools are offered")
}

func TestAnthropicComplete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"), r.URL.Path)
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude",
			"content":[{"type":"text","text":"checking"},
			{"type":"tool_use","id":"tu_1","name":"calculator","input":{"expression":"1+1"}}],
			"stop_reason":"tool_use","usage":{"input_tokens":12,"output_tokens":4}}`)
	}))
	defer srv.Close()

	c := NewAnthropic(Config{Model: "claude", APIKey: "k", BaseURL: srv.URL})
	resp, err := c.Complete(context.Background(), Request{System: "sys", Messages: toolRoundTrip(), Tools: []ToolSpec{calculatorSpec}})
	require.NoError(t, err)
	assert.Equal(t, "checking", resp.Content)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, domain.ToolCall{ID: "tu_1", Name: "calculator", Arguments: map[string]any{"expression": "1+1"}}, resp.ToolCalls[0])
	assert.Equal(t, Usage{InputTokens: 12, OutputTokens: 4}, resp.Usage)

	msgs := got["messages"].([]any)
	require.Len(t, msgs, 3, "user, assistant tool_use, user tool_result")
	assert.Equal(t, "user", msgs[2].(map[string]any)["role"])
	assert.EqualValues(t, DefaultMaxTokens, got["max_tokens"])
}

func TestAnthropicNoToolCallsKeepsToolsDeclared(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"msg_2","type":"message","role":"assistant","model":"claude",
			"content":[{"type":"text","text":"{\"answer\":\"2\"}"}],
			"stop_reason":"end_turn","usage":{"input_tokens":20,"output_tokens":6}}`)
	}))
	defer srv.Close()

	c := NewAnthropic(Config{Model: "claude", APIKey: "k", BaseURL: srv.URL})
	_, err := c.Complete(context.Background(), Request{Messages: toolRoundTrip(), Tools: []ToolSpec{calculatorSpec}, NoToolCalls: true})
	require.NoError(t, err)
	assert.Len(t, got["tools"], 1, "history holds tool blocks, so tools must stay declared")
	assert.Equal(t, map[string]any{"type": "none"}, got["tool_choice"])
}

func TestCompatibleNoToolCalls(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":"done"}}]}`)
	}))
	defer srv.Close()

	c, err := NewCompatible(Config{Provider: ProviderOllama, Model: "llama3", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), Request{Messages: toolRoundTrip(), Tools: []ToolSpec{calculatorSpec}, NoToolCalls: true})
	require.NoError(t, err)
	assert.Len(t, got["tools"], 1)
	assert.Equal(t, "none", got["tool_choice"])
}

func TestAnthropicMergesSameRoleTurns(t *testing.T) {
	system, msgs := toAnthropicMessages("base", []domain.ChatMessage{
		{Role: domain.ChatSystem, Content: "extra"},
		{Role: domain.ChatUser, Content: "a"},
		{Role: domain.ChatUser, Content: "b"},
		{Role: domain.ChatAssistant, Content: "c"},
	})
	assert.Equal(t, "base\n\nextra", system)
	require.Len(t, msgs, 2)
	assert.Len(t, msgs[0].Content, 2)
}

func TestGeminiContents(t *testing.T) {
	system, contents := toGeminiContents("sys", toolRoundTrip())
	assert.Equal(t, "sys", system)
	require.Len(t, contents, 3)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	require.NotNil(t, contents[1].Parts[0].FunctionCall)
	assert.Equal(t, "calculator", contents[1].Parts[0].FunctionCall.Name)
	require.NotNil(t, contents[2].Parts[0].FunctionResponse)
	assert.Equal(t, map[string]any{"result": "4"}, contents[2].Parts[0].FunctionResponse.Response)
}

func TestDecodeArguments(t *testing.T) {
	assert.Equal(t, map[string]any{}, decodeArguments(""))
	assert.Equal(t, map[string]any{"a": float64(1)}, decodeArguments(`{"a":1}`))
	assert.Equal(t, map[string]any{"input": "not json"}, decodeArguments("not json"))
}

type stubClient struct {
	resp *Response
	err  error
}

func (s stubClient) Complete(context.Context, Request) (*Response, error) { return s.resp, s.err }
func (s stubClient) Provider() string                                     { return "stub" }
func (s stubClient) Model() string                                        { return "stub-1" }

type usageSink struct{ got []domain.Usage }

func (u *usageSink) RecordUsage(_ context.Context, rec domain.Usage) error {
	u.got = append(u.got, rec)
	return nil
}

func TestMeteredRecordsUsage(t *testing.T) {
	sink := &usageSink{}
	m := NewMetered(stubClient{resp: &Response{Content: "ok", Usage: Usage{InputTokens: 3, OutputTokens: 1}}}, metrics.New(), sink, nil)

	_, err := m.Complete(context.Background(), Request{Agent: domain.AgentExpert, Session: "s1"})
	require.NoError(t, err)
	require.Len(t, sink.got, 1)
	assert.Equal(t, domain.Usage{SessionID: "s1", Agent: domain.AgentExpert, Provider: "stub", Model: "stub-1", InputTokens: 3, OutputTokens: 1}, sink.got[0])

	_, err = m.Complete(context.Background(), Request{Agent: domain.AgentExpert})
	require.NoError(t, err)
	assert.Len(t, sink.got, 1, "calls without a session are not persisted")
}

func TestMeteredPassesErrors(t *testing.T) {
	boom := errors.New("boom")
	sink := &usageSink{}
	m := NewMetered(stubClient{err: boom}, nil, sink, nil)
	_, err := m.Complete(context.Background(), Request{Session: "s1"})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, sink.got)
}

func TestThrottledHonorsContext(t *testing.T) {
	inner := stubClient{resp: &Response{Content: "ok"}}
	assert.Equal(t, Client(inner), NewThrottled(inner, 0, 1, nil))

	th := NewThrottled(inner, 0.001, 1, nil)
	_, err := th.Complete(context.Background(), Request{})
	require.NoError(t, err, "first call uses the burst token")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = th.Complete(ctx, Request{})
	assert.True(t, errors.Is(err, domain.ErrProviderCall))
}
