package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rogers-f/deliberate/internal/domain"
	"github.com/rogers-f/deliberate/internal/llm"
	"github.com/rogers-f/deliberate/internal/tools"
)

// DefaultMaxToolIterations bounds tool rounds per invocation.
const DefaultMaxToolIterations = 10

const (
	wrapUpPrompt      = "You have used all available tool calls. Respond now with the final JSON object only."
	skippedToolResult = "Tool call skipped: iteration limit reached."
)

// ToolLoop alternates model calls and tool executions until the model
// answers without requesting a tool.
type ToolLoop struct {
	Tools         *tools.Registry
	Names         []string
	MaxIterations int
}

// Run extends history in place with every assistant turn and tool result,
// and returns the final assistant content. When the iteration budget is
// spent the model gets one last call without tools.
func (t *ToolLoop) Run(ctx context.Context, client llm.Client, req llm.Request, history *[]domain.ChatMessage, logger *slog.Logger) (string, error) {
	limit := t.MaxIterations
	if limit <= 0 {
		limit = DefaultMaxToolIterations
	}
	specs, err := t.Tools.Specs(t.Names...)
	if err != nil {
		return "", err
	}

	for iteration := 0; iteration < limit; iteration++ {
		req.Messages = *history
		req.Tools = specs
		resp, err := client.Complete(ctx, req)
		if err != nil {
			return "", err
		}
		*history = append(*history, domain.ChatMessage{Role: domain.ChatAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})
		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}

		// Every tool call needs a result before the next model turn.
		for _, call := range resp.ToolCalls {
			out, err := t.Tools.Call(ctx, call.Name, call.Arguments)
			if err != nil {
				logger.Warn("tool failed", "tool", call.Name, "error", err)
				out = fmt.Sprintf("Tool failed: %v", err)
			} else {
				logger.Debug("tool done", "tool", call.Name, "bytes", len(out))
			}
			*history = append(*history, domain.ChatMessage{
				Role:       domain.ChatTool,
				Content:    out,
				ToolCallID: call.ID,
				ToolName:   call.Name,
			})
		}
	}

	logger.Warn("tool iteration limit reached", "iterations", limit)
	*history = append(*history, domain.ChatMessage{Role: domain.ChatUser, Content: wrapUpPrompt})
	req.Messages = *history
	req.Tools = specs
	req.NoToolCalls = true
	resp, err := client.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	*history = append(*history, domain.ChatMessage{Role: domain.ChatAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})
	if len(resp.ToolCalls) > 0 {
		// Answer every call so the history stays replayable on retry.
		for _, call := range resp.ToolCalls {
			*history = append(*history, domain.ChatMessage{
				Role:       domain.ChatTool,
				Content:    skippedToolResult,
				ToolCallID: call.ID,
				ToolName:   call.Name,
			})
		}
		return "", domain.NewEngineError(domain.ErrToolLoopLimit.Code, fmt.Sprintf("still calling tools after %d iterations", limit))
	}
	return resp.Content, nil
}

// runWithTools falls back to a single call when no tools are configured.
func runWithTools(ctx context.Context, loop *ToolLoop, client llm.Client, req llm.Request, history *[]domain.ChatMessage, logger *slog.Logger) (string, error) {
	if loop == nil || len(loop.Names) == 0 {
		req.Messages = *history
		resp, err := client.Complete(ctx, req)
		if err != nil {
			return "", err
		}
		*history = append(*history, domain.ChatMessage{Role: domain.ChatAssistant, Content: resp.Content})
		return resp.Content, nil
	}
	return loop.Run(ctx, client, req, history, logger)
}
