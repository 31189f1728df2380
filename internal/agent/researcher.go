package agent

import (
	"context"
	"log/slog"

	"github.com/rogers-f/deliberate/internal/domain"
	"github.com/rogers-f/deliberate/internal/msglog"
	"github.com/rogers-f/deliberate/internal/prompts"
	"github.com/rogers-f/deliberate/internal/review"
)

// Researcher works one plan step at a time with its own tool-call history
// per step index.
type Researcher struct {
	base
	loop *ToolLoop
}

// NewResearcher creates the researcher adapter. loop may be nil.
func NewResearcher(st Settings, loop *ToolLoop, catalog *prompts.Catalog, logger *slog.Logger) *Researcher {
	return &Researcher{base: newBase(domain.AgentResearcher, st, catalog, logger), loop: loop}
}

// Invoke implements workflow.Agent.
func (r *Researcher) Invoke(ctx context.Context, s *domain.SessionState, log *msglog.Log) error {
	idx := s.ResearchCursor
	if _, ok := s.ResearchStep(); !ok {
		return domain.NewEngineError(domain.ErrPlanIndex.Code, "researcher invoked without a current research step")
	}
	inst, ok := latestInstruction(log.ConversationFor(domain.AgentResearcher, msglog.WithStepID(idx)))
	if !ok {
		return noInstruction(r.id)
	}

	// A fresh slot starts from the step instruction; a revisit appends the
	// newest instruction, which carries the critic's feedback.
	slot := s.ResearchState[idx]
	if slot == nil {
		slot = &domain.ResearchSlot{}
		s.ResearchState[idx] = slot
	}
	slot.History = append(slot.History, domain.ChatMessage{Role: domain.ChatUser, Content: inst.Body})

	content, err := runWithTools(ctx, r.loop, r.settings.Client, r.request(s, nil), &slot.History, r.logger)
	if err != nil {
		return err
	}
	out, err := review.ResearcherSchema.Parse(content)
	if err != nil {
		return err
	}

	result := out.String("result")
	if err := s.StoreResearchResult(result); err != nil {
		return err
	}
	slot.Result = &result
	r.logger.Info("research step done", "session", s.ID, "index", idx, "turns", len(slot.History))
	return r.respond(log, out, domain.StepIndex(idx))
}
