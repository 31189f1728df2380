package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rogers-f/deliberate/internal/domain"
	"github.com/rogers-f/deliberate/internal/msglog"
	"github.com/rogers-f/deliberate/internal/prompts"
	"github.com/rogers-f/deliberate/internal/review"
)

// Critic reviews planner, researcher and expert output. One adapter serves
// all three critic steps; the current step selects whose verdict is written.
// Each review is judged on its instruction alone.
type Critic struct {
	base
}

// NewCritic creates the critic adapter.
func NewCritic(st Settings, catalog *prompts.Catalog, logger *slog.Logger) *Critic {
	return &Critic{base: newBase(domain.AgentCritic, st, catalog, logger)}
}

// Invoke implements workflow.Agent.
func (c *Critic) Invoke(ctx context.Context, s *domain.SessionState, log *msglog.Log) error {
	role, ok := s.CurrentStep.ReviewedRole()
	if !ok {
		return domain.NewEngineError(domain.ErrInvalidState.Code, fmt.Sprintf("critic invoked at step %q", s.CurrentStep))
	}
	inst, ok := log.LastInstruction(domain.AgentCritic)
	if !ok {
		return noInstruction(c.id)
	}

	out, err := c.complete(ctx, s, []domain.ChatMessage{{Role: domain.ChatUser, Content: inst.Body}}, review.CriticSchema)
	if err != nil {
		return err
	}

	v := domain.Verdict{Decision: out.Decision("decision"), Feedback: out.String("feedback")}
	s.SetVerdict(role, v)
	c.logger.Info("review done", "session", s.ID, "role", role, "decision", v.Decision)
	return c.respond(log, out, inst.StepID)
}
