// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rogers-f/deliberate/internal/domain"
	"github.com/rogers-f/deliberate/internal/llm"
)

// Turn is one scripted reply: a response or an error.
type Turn struct {
	Response *llm.Response
	Err      error
}

// Text is a plain content reply.
func Text(content string) Turn {
	return Turn{Response: &llm.Response{Content: content, Usage: llm.Usage{InputTokens: 10, OutputTokens: 5}}}
}

// JSON marshals v as the reply content.
func JSON(v any) Turn {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return Text(string(b))
}

// Call is a reply requesting one tool call.
func Call(id, name string, args map[string]any) Turn {
	return Turn{Response: &llm.Response{ToolCalls: []domain.ToolCall{{ID: id, Name: name, Arguments: args}}}}
}

// Fail is an error reply.
func Fail(err error) Turn {
	return Turn{Err: err}
}

// Scripted replays turns in order and records every request it receives.
type Scripted struct {
	mu       sync.Mutex
	turns    []Turn
	next     int
	requests []llm.Request

	// Fallback, if set, answers once the script is exhausted.
	Fallback func(req llm.Request) (*llm.Response, error)
}

// New creates a scripted client.
func New(turns ...Turn) *Scripted {
	return &Scripted{turns: turns}
}

// Provider implements llm.Client.
func (s *Scripted) Provider() string { return "scripted" }

// Model implements llm.Client.
func (s *Scripted) Model() string { return "scripted-model" }

// Complete implements llm.Client.
func (s *Scripted) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	if s.next >= len(s.turns) {
		fallback := s.Fallback
		s.mu.Unlock()
		if fallback != nil {
			return fallback(req)
		}
		return nil, domain.ErrScriptExhausted
	}
	t := s.turns[s.next]
	s.next++
	s.mu.Unlock()

	if t.Err != nil {
		return nil, t.Err
	}
	resp := *t.Response
	return &resp, nil
}

// Requests returns a copy of the requests seen so far.
func (s *Scripted) Requests() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Remaining reports how many scripted turns are unused.
func (s *Scripted) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns) - s.next
}
