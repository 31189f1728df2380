package agent

import (
	"context"
	"log/slog"

	"github.com/rogers-f/deliberate/internal/domain"
	"github.com/rogers-f/deliberate/internal/msglog"
	"github.com/rogers-f/deliberate/internal/prompts"
	"github.com/rogers-f/deliberate/internal/review"
)

// Finalizer synthesizes the final answer. On a failed run it still calls
// the model with the failure instruction and validates the reply, but the
// prefilled failure answer is kept.
type Finalizer struct {
	base
}

// NewFinalizer creates the finalizer adapter.
func NewFinalizer(st Settings, catalog *prompts.Catalog, logger *slog.Logger) *Finalizer {
	return &Finalizer{base: newBase(domain.AgentFinalizer, st, catalog, logger)}
}

// Invoke implements workflow.Agent.
func (f *Finalizer) Invoke(ctx context.Context, s *domain.SessionState, log *msglog.Log) error {
	inst, ok := log.LastInstruction(domain.AgentFinalizer)
	if !ok {
		return noInstruction(f.id)
	}

	out, err := f.complete(ctx, s, []domain.ChatMessage{{Role: domain.ChatUser, Content: inst.Body}}, review.FinalizerSchema)
	if err != nil {
		return err
	}

	if s.Aborted() {
		s.FinalAnswer = domain.FailureAnswer
		s.FinalReasoning = domain.FailureAnswer
	} else {
		s.FinalAnswer = out.String("final_answer")
		s.FinalReasoning = out.String("final_reasoning")
	}
	if err := f.respond(log, out, nil); err != nil {
		return err
	}
	s.Finalized = true
	f.logger.Info("final answer written", "session", s.ID, "failed", s.Aborted())
	return nil
}
