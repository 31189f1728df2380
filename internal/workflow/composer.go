package workflow

import (
	"fmt"

	"github.com/rogers-f/deliberate/internal/domain"
	"github.com/rogers-f/deliberate/internal/prompts"
)

// Composer builds the instruction message sent when a step becomes current.
type Composer interface {
	Name() string
	Compose(s *domain.SessionState) (domain.Message, error)
}

// ComposerFunc adapts a function to the Composer interface.
type ComposerFunc struct {
	Label string
	Fn    func(s *domain.SessionState) (domain.Message, error)
}

// Name returns the composer label.
func (c ComposerFunc) Name() string { return c.Label }

// Compose calls Fn.
func (c ComposerFunc) Compose(s *domain.SessionState) (domain.Message, error) { return c.Fn(s) }

// ComposerRegistry maps each step to its instruction composer.
type ComposerRegistry struct {
	composers map[domain.Step]Composer
}

// NewComposerRegistry creates a registry with the standard composers for
// every step, rendering text from catalog.
func NewComposerRegistry(catalog *prompts.Catalog) *ComposerRegistry {
	p := &promptComposers{catalog: catalog}
	return &ComposerRegistry{composers: map[domain.Step]Composer{
		domain.StepPlanner:          ComposerFunc{"planner", p.planner},
		domain.StepCriticPlanner:    ComposerFunc{"critic_planner", p.criticPlanner},
		domain.StepResearcher:       ComposerFunc{"researcher", p.researcher},
		domain.StepCriticResearcher: ComposerFunc{"critic_researcher", p.criticResearcher},
		domain.StepExpert:           ComposerFunc{"expert", p.expert},
		domain.StepCriticExpert:     ComposerFunc{"critic_expert", p.criticExpert},
		domain.StepFinalizer:        ComposerFunc{"finalizer", p.finalizer},
	}}
}

// Register sets a custom composer for a step.
func (r *ComposerRegistry) Register(step domain.Step, c Composer) {
	r.composers[step] = c
}

// Get returns the composer for a step, or an error if none is registered.
func (r *ComposerRegistry) Get(step domain.Step) (Composer, error) {
	c, ok := r.composers[step]
	if !ok {
		return nil, domain.NewEngineError(domain.ErrComposerMissing.Code, fmt.Sprintf("no composer for %s", step))
	}
	return c, nil
}

type promptComposers struct {
	catalog *prompts.Catalog
}

func (p *promptComposers) instruction(to domain.AgentID, key string, data prompts.Data, stepID *int) (domain.Message, error) {
	body, err := p.catalog.Render(key, data)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		Sender:   domain.AgentOrchestrator,
		Receiver: to,
		Kind:     domain.KindInstruction,
		Body:     body,
		StepID:   stepID,
	}, nil
}

func (p *promptComposers) planner(s *domain.SessionState) (domain.Message, error) {
	if v := s.Verdict(domain.RolePlanner); v.Decision == domain.DecisionReject {
		return p.instruction(domain.AgentPlanner, prompts.PlannerRetry, prompts.Data{Feedback: v.Feedback}, nil)
	}
	return p.instruction(domain.AgentPlanner, prompts.PlannerInitial, prompts.Data{
		Question: s.Question,
		File:     s.AttachedFile,
	}, nil)
}

func (p *promptComposers) criticPlanner(s *domain.SessionState) (domain.Message, error) {
	return p.instruction(domain.AgentCritic, prompts.CriticPlanner, prompts.Data{
		Question:      s.Question,
		File:          s.AttachedFile,
		ResearchSteps: s.Plan.ResearchSteps,
		ExpertSteps:   s.Plan.ExpertSteps,
	}, nil)
}

// researcher advances the cursor unless the current step is being retried.
func (p *promptComposers) researcher(s *domain.SessionState) (domain.Message, error) {
	if v := s.Verdict(domain.RoleResearcher); v.Decision == domain.DecisionReject {
		if _, ok := s.ResearchStep(); !ok {
			return domain.Message{}, cursorError(s)
		}
		return p.instruction(domain.AgentResearcher, prompts.ResearcherRetry,
			prompts.Data{Feedback: v.Feedback}, domain.StepIndex(s.ResearchCursor))
	}

	s.ResearchCursor++
	topic, ok := s.ResearchStep()
	if !ok {
		return domain.Message{}, cursorError(s)
	}
	return p.instruction(domain.AgentResearcher, prompts.ResearcherStep,
		prompts.Data{Topic: topic}, domain.StepIndex(s.ResearchCursor))
}

func (p *promptComposers) criticResearcher(s *domain.SessionState) (domain.Message, error) {
	topic, ok := s.ResearchStep()
	if !ok {
		return domain.Message{}, cursorError(s)
	}
	result, ok := s.CurrentResult()
	if !ok {
		return domain.Message{}, domain.NewEngineError(domain.ErrPlanIndex.Code,
			fmt.Sprintf("no research result at index %d", s.ResearchCursor))
	}
	return p.instruction(domain.AgentCritic, prompts.CriticResearcher,
		prompts.Data{Topic: topic, Result: result}, domain.StepIndex(s.ResearchCursor))
}

func (p *promptComposers) expert(s *domain.SessionState) (domain.Message, error) {
	if v := s.Verdict(domain.RoleExpert); v.Decision == domain.DecisionReject {
		return p.instruction(domain.AgentExpert, prompts.ExpertRetry, prompts.Data{Feedback: v.Feedback}, nil)
	}
	return p.instruction(domain.AgentExpert, prompts.ExpertInitial, prompts.Data{
		Question:        s.Question,
		ResearchResults: s.ResearchResults,
		ExpertSteps:     s.Plan.ExpertSteps,
	}, nil)
}

func (p *promptComposers) criticExpert(s *domain.SessionState) (domain.Message, error) {
	answer, reasoning := expertOutput(s)
	return p.instruction(domain.AgentCritic, prompts.CriticExpert, prompts.Data{
		Question:        s.Question,
		ResearchResults: s.ResearchResults,
		Answer:          answer,
		Reasoning:       reasoning,
	}, nil)
}

func (p *promptComposers) finalizer(s *domain.SessionState) (domain.Message, error) {
	if s.Aborted() {
		return p.instruction(domain.AgentFinalizer, prompts.FinalizerFailed, prompts.Data{}, nil)
	}
	answer, reasoning := expertOutput(s)
	return p.instruction(domain.AgentFinalizer, prompts.Finalizer, prompts.Data{
		Question:      s.Question,
		ResearchSteps: s.Plan.ResearchSteps,
		ExpertSteps:   s.Plan.ExpertSteps,
		Answer:        answer,
		Reasoning:     reasoning,
	}, nil)
}

func expertOutput(s *domain.SessionState) (string, string) {
	if s.ExpertState == nil {
		return "", ""
	}
	return s.ExpertState.Answer, s.ExpertState.Reasoning
}

func cursorError(s *domain.SessionState) error {
	return domain.NewEngineError(domain.ErrPlanIndex.Code,
		fmt.Sprintf("research cursor %d outside plan of %d steps", s.ResearchCursor, len(s.Plan.ResearchSteps)))
}
