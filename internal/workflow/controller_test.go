package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rogers-f/deliberate/internal/domain"
	"github.com/rogers-f/deliberate/internal/msglog"
	"github.com/rogers-f/deliberate/internal/prompts"
)

func newTestController() *Controller {
	return NewController(NewComposerRegistry(prompts.Default()), quietLogger)
}

func TestController_FirstStep(t *testing.T) {
	c := newTestController()
	s := newState()
	log := msglog.New(nil)

	if err := c.Step(context.Background(), s, log); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if s.CurrentStep != domain.StepPlanner {
		t.Errorf("CurrentStep = %q, want planner", s.CurrentStep)
	}
	if s.NextStep == nil || *s.NextStep != domain.StepPlanner {
		t.Errorf("NextStep = %v, want planner", s.NextStep)
	}
	if s.Invocations != 1 {
		t.Errorf("Invocations = %d, want 1", s.Invocations)
	}
	if log.Len() != 1 {
		t.Fatalf("log len = %d, want exactly one instruction", log.Len())
	}
	m := log.All()[0]
	if m.Sender != domain.AgentOrchestrator || m.Receiver != domain.AgentPlanner || m.Kind != domain.KindInstruction {
		t.Errorf("message = %+v", m)
	}
}

func TestController_CriticInstructionAddressedToCritic(t *testing.T) {
	c := newTestController()
	s := newState()
	s.CurrentStep = domain.StepPlanner
	s.Plan.ExpertSteps = []string{"Calculate 2+2"}
	log := msglog.New(nil)

	if err := c.Step(context.Background(), s, log); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if s.CurrentStep != domain.StepCriticPlanner {
		t.Fatalf("CurrentStep = %q", s.CurrentStep)
	}
	conv := log.ConversationFor(domain.AgentCritic)
	if len(conv) != 1 || !strings.Contains(conv[0].Body, "Calculate 2+2") {
		t.Errorf("critic conversation = %+v", conv)
	}
}

func TestController_FailureIsIdempotent(t *testing.T) {
	c := newTestController()
	s := newState()
	s.CurrentStep = domain.StepCriticExpert
	s.SetVerdict(domain.RoleExpert, domain.Verdict{Decision: domain.DecisionReject, Feedback: "wrong"})
	s.RetryCount[domain.RoleExpert] = 4
	log := msglog.New(nil)

	// Fifth rejection spends the expert budget.
	if err := c.Step(context.Background(), s, log); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if !s.Failed || s.CurrentStep != domain.StepFinalizer {
		t.Fatalf("Failed=%v CurrentStep=%q, want failed at finalizer", s.Failed, s.CurrentStep)
	}
	if s.RetryCount[domain.RoleExpert] != 5 {
		t.Fatalf("expert count = %d, want 5", s.RetryCount[domain.RoleExpert])
	}

	// Further invocations stay at the finalizer without touching counters.
	s.CurrentStep = domain.StepCriticExpert
	for i := 0; i < 3; i++ {
		if err := c.Step(context.Background(), s, log); err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
		if *s.NextStep != domain.StepFinalizer {
			t.Errorf("NextStep = %q, want finalizer", *s.NextStep)
		}
	}
	if s.RetryCount[domain.RoleExpert] != 5 {
		t.Errorf("expert count = %d after failure, want 5", s.RetryCount[domain.RoleExpert])
	}
	if !s.Failed {
		t.Error("Failed flipped back")
	}
	last, _ := log.LastInstruction(domain.AgentFinalizer)
	if !strings.Contains(last.Body, domain.FailureAnswer) {
		t.Errorf("finalizer instruction = %q", last.Body)
	}
}

func TestController_ErrorForcesFinalizer(t *testing.T) {
	c := newTestController()
	rec := &memRecorder{}
	c.Recorder = rec
	s := newState()
	s.CurrentStep = domain.StepCriticPlanner // no verdict recorded
	log := msglog.New(nil)

	if err := c.Step(context.Background(), s, log); err != nil {
		t.Fatalf("Step returned %v, want nil", err)
	}
	if s.CurrentStep != domain.StepFinalizer {
		t.Errorf("CurrentStep = %q, want finalizer", s.CurrentStep)
	}
	if s.Error == nil || s.Error.Component != "orchestrator" {
		t.Fatalf("Error = %+v", s.Error)
	}
	if s.Failed {
		t.Error("an absorbed error must not mark the budget as failed")
	}
	if s.FinalAnswer != domain.FailureAnswer {
		t.Errorf("FinalAnswer = %q", s.FinalAnswer)
	}
	if len(rec.events) != 1 || rec.events[0] != "error:critic_planner->finalizer" {
		t.Errorf("events = %v", rec.events)
	}
}

func TestController_ComposeErrorForcesFinalizer(t *testing.T) {
	c := newTestController()
	s := newState()
	s.CurrentStep = domain.StepCriticResearcher
	s.Plan.ResearchSteps = []string{"a", "b"}
	s.ResearchCursor = 0
	s.ResearchResults = []string{"ra"}
	s.SetVerdict(domain.RoleResearcher, domain.Verdict{Decision: domain.DecisionApprove})
	c.Composers.Register(domain.StepResearcher, ComposerFunc{Label: "broken", Fn: func(*domain.SessionState) (domain.Message, error) {
		return domain.Message{}, errors.New("template exploded")
	}})
	log := msglog.New(nil)

	if err := c.Step(context.Background(), s, log); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if s.CurrentStep != domain.StepFinalizer {
		t.Errorf("CurrentStep = %q, want finalizer", s.CurrentStep)
	}
	if !strings.Contains(s.Error.Message, "template exploded") {
		t.Errorf("Error = %+v", s.Error)
	}
}

func TestController_InvalidStateEscapes(t *testing.T) {
	c := newTestController()
	s := newState()
	s.CurrentStep = "reviewer"

	err := c.Step(context.Background(), s, msglog.New(nil))
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
	if s.Error != nil {
		t.Errorf("invalid state was absorbed: %+v", s.Error)
	}
}

func TestController_FinalizedSession(t *testing.T) {
	c := newTestController()
	s := newState()
	s.Finalized = true
	if err := c.Step(context.Background(), s, msglog.New(nil)); !errors.Is(err, domain.ErrSessionDone) {
		t.Errorf("err = %v, want ErrSessionDone", err)
	}
}
