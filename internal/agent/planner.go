package agent

import (
	"context"
	"log/slog"

	"github.com/rogers-f/deliberate/internal/domain"
	"github.com/rogers-f/deliberate/internal/msglog"
	"github.com/rogers-f/deliberate/internal/prompts"
	"github.com/rogers-f/deliberate/internal/review"
)

// Planner decomposes the question into research and expert steps. It keeps
// no slot of its own: its whole exchange with the orchestrator is replayed
// from the log, so a retry sees the earlier plan and the feedback.
type Planner struct {
	base
}

// NewPlanner creates the planner adapter.
func NewPlanner(st Settings, catalog *prompts.Catalog, logger *slog.Logger) *Planner {
	return &Planner{base: newBase(domain.AgentPlanner, st, catalog, logger)}
}

// Invoke implements workflow.Agent.
func (p *Planner) Invoke(ctx context.Context, s *domain.SessionState, log *msglog.Log) error {
	conv := log.ConversationFor(domain.AgentPlanner)
	if _, ok := latestInstruction(conv); !ok {
		return noInstruction(p.id)
	}

	out, err := p.complete(ctx, s, chatFrom(conv), review.PlannerSchema)
	if err != nil {
		return err
	}

	s.Plan = domain.Plan{
		ResearchSteps: out.List("research_steps"),
		ExpertSteps:   out.List("expert_steps"),
	}
	p.logger.Info("plan drafted", "session", s.ID,
		"research_steps", len(s.Plan.ResearchSteps), "expert_steps", len(s.Plan.ExpertSteps))
	return p.respond(log, out, nil)
}
