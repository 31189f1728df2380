package workflow

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/rogers-f/deliberate/internal/domain"
	"github.com/rogers-f/deliberate/internal/msglog"
	"github.com/rogers-f/deliberate/internal/prompts"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type agentFunc func(ctx context.Context, s *domain.SessionState, log *msglog.Log) error

func (f agentFunc) Invoke(ctx context.Context, s *domain.SessionState, log *msglog.Log) error {
	return f(ctx, s, log)
}

func reply(log *msglog.Log, from domain.AgentID, body string, step *int) error {
	return log.Append(domain.Message{
		Sender:   from,
		Receiver: domain.AgentOrchestrator,
		Kind:     domain.KindResponse,
		Body:     body,
		StepID:   step,
	})
}

// fakeTeam is a deterministic stand-in for the five agents.
type fakeTeam struct {
	plan   domain.Plan
	answer string
	// decide returns the critic's decision for a review step; n counts
	// reviews of that step so far, starting at 1.
	decide func(step domain.Step, n int) domain.Decision

	reviews     map[domain.Step]int
	calls       map[domain.AgentID]int
	attempts    map[int]int
	cursorTrail []int
	failNext    map[domain.AgentID]error
}

func newFakeTeam(plan domain.Plan, answer string, decide func(domain.Step, int) domain.Decision) *fakeTeam {
	return &fakeTeam{
		plan:     plan,
		answer:   answer,
		decide:   decide,
		reviews:  map[domain.Step]int{},
		calls:    map[domain.AgentID]int{},
		attempts: map[int]int{},
		failNext: map[domain.AgentID]error{},
	}
}

func alwaysApprove(domain.Step, int) domain.Decision { return domain.DecisionApprove }
func alwaysReject(domain.Step, int) domain.Decision  { return domain.DecisionReject }

func (ft *fakeTeam) wrap(id domain.AgentID, fn agentFunc) Agent {
	return agentFunc(func(ctx context.Context, s *domain.SessionState, log *msglog.Log) error {
		ft.calls[id]++
		if err := ft.failNext[id]; err != nil {
			delete(ft.failNext, id)
			return err
		}
		return fn(ctx, s, log)
	})
}

func (ft *fakeTeam) agents() map[domain.AgentID]Agent {
	return map[domain.AgentID]Agent{
		domain.AgentPlanner: ft.wrap(domain.AgentPlanner, func(_ context.Context, s *domain.SessionState, log *msglog.Log) error {
			s.Plan = domain.Plan{
				ResearchSteps: append([]string(nil), ft.plan.ResearchSteps...),
				ExpertSteps:   append([]string(nil), ft.plan.ExpertSteps...),
			}
			return reply(log, domain.AgentPlanner, "plan", nil)
		}),
		domain.AgentResearcher: ft.wrap(domain.AgentResearcher, func(_ context.Context, s *domain.SessionState, log *msglog.Log) error {
			idx := s.ResearchCursor
			ft.cursorTrail = append(ft.cursorTrail, idx)
			ft.attempts[idx]++
			result := fmt.Sprintf("result %d attempt %d", idx, ft.attempts[idx])
			if err := s.StoreResearchResult(result); err != nil {
				return err
			}
			return reply(log, domain.AgentResearcher, result, domain.StepIndex(idx))
		}),
		domain.AgentExpert: ft.wrap(domain.AgentExpert, func(_ context.Context, s *domain.SessionState, log *msglog.Log) error {
			s.ExpertState = &domain.ExpertSlot{Answer: ft.answer, Reasoning: "computed " + ft.answer}
			return reply(log, domain.AgentExpert, ft.answer, nil)
		}),
		domain.AgentCritic: ft.wrap(domain.AgentCritic, func(_ context.Context, s *domain.SessionState, log *msglog.Log) error {
			role, ok := s.CurrentStep.ReviewedRole()
			if !ok {
				return fmt.Errorf("critic invoked at %s", s.CurrentStep)
			}
			ft.reviews[s.CurrentStep]++
			d := ft.decide(s.CurrentStep, ft.reviews[s.CurrentStep])
			s.SetVerdict(role, domain.Verdict{Decision: d, Feedback: "feedback on " + string(role)})
			return reply(log, domain.AgentCritic, string(d), nil)
		}),
		domain.AgentFinalizer: ft.wrap(domain.AgentFinalizer, func(_ context.Context, s *domain.SessionState, log *msglog.Log) error {
			if s.Aborted() {
				s.FinalAnswer, s.FinalReasoning = domain.FailureAnswer, domain.FailureAnswer
			} else {
				s.FinalAnswer = "The answer is " + s.ExpertState.Answer
				s.FinalReasoning = s.ExpertState.Reasoning
			}
			s.Finalized = true
			return reply(log, domain.AgentFinalizer, s.FinalAnswer, nil)
		}),
	}
}

func newTestDriver(ft *fakeTeam, limits map[domain.Role]int) *Driver {
	ctrl := NewController(NewComposerRegistry(prompts.Default()), quietLogger)
	d := NewDriver(ctrl, ft.agents(), limits, quietLogger)
	d.NewID = func() string { return "session-test" }
	return d
}

func standardLimits() map[domain.Role]int {
	return map[domain.Role]int{domain.RolePlanner: 3, domain.RoleResearcher: 5, domain.RoleExpert: 5}
}

// memRecorder captures Recorder calls.
type memRecorder struct {
	started     int
	events      []string
	finished    *domain.SessionState
	checkpoints []int
}

func (m *memRecorder) StartSession(_ context.Context, _ *domain.SessionState) error {
	m.started++
	return nil
}

func (m *memRecorder) RecordTransition(_ context.Context, s *domain.SessionState, from domain.Step, event string) error {
	m.events = append(m.events, fmt.Sprintf("%s:%s->%s", event, from, s.CurrentStep))
	return nil
}

func (m *memRecorder) FinishSession(_ context.Context, s *domain.SessionState) error {
	m.finished = s
	return nil
}

func (m *memRecorder) Checkpoint(_ context.Context, _ *domain.SessionState, messages int) error {
	m.checkpoints = append(m.checkpoints, messages)
	return nil
}
