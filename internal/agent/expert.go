package agent

import (
	"context"
	"log/slog"

	"github.com/rogers-f/deliberate/internal/domain"
	"github.com/rogers-f/deliberate/internal/msglog"
	"github.com/rogers-f/deliberate/internal/prompts"
	"github.com/rogers-f/deliberate/internal/review"
)

// Expert answers the question from the research results, keeping a single
// tool-call history across retries.
type Expert struct {
	base
	loop *ToolLoop
}

// NewExpert creates the expert adapter. loop may be nil.
func NewExpert(st Settings, loop *ToolLoop, catalog *prompts.Catalog, logger *slog.Logger) *Expert {
	return &Expert{base: newBase(domain.AgentExpert, st, catalog, logger), loop: loop}
}

// Invoke implements workflow.Agent.
func (e *Expert) Invoke(ctx context.Context, s *domain.SessionState, log *msglog.Log) error {
	inst, ok := log.LastInstruction(domain.AgentExpert)
	if !ok {
		return noInstruction(e.id)
	}
	if s.ExpertState == nil {
		s.ExpertState = &domain.ExpertSlot{}
	}
	slot := s.ExpertState
	slot.History = append(slot.History, domain.ChatMessage{Role: domain.ChatUser, Content: inst.Body})

	content, err := runWithTools(ctx, e.loop, e.settings.Client, e.request(s, nil), &slot.History, e.logger)
	if err != nil {
		return err
	}
	out, err := review.ExpertSchema.Parse(content)
	if err != nil {
		return err
	}

	slot.Answer = out.String("answer")
	slot.Reasoning = out.String("reasoning")
	e.logger.Info("expert answered", "session", s.ID, "turns", len(slot.History))
	return e.respond(log, out, nil)
}
