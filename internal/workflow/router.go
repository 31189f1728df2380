package workflow

import (
	"fmt"

	"github.com/rogers-f/deliberate/internal/domain"
)

// Route maps the controller's current step to the agent that serves it.
// All three review steps share the critic, which dispatches on the step.
func Route(step domain.Step) (domain.AgentID, error) {
	switch step {
	case domain.StepPlanner:
		return domain.AgentPlanner, nil
	case domain.StepResearcher:
		return domain.AgentResearcher, nil
	case domain.StepExpert:
		return domain.AgentExpert, nil
	case domain.StepCriticPlanner, domain.StepCriticResearcher, domain.StepCriticExpert:
		return domain.AgentCritic, nil
	case domain.StepFinalizer:
		return domain.AgentFinalizer, nil
	default:
		return "", domain.NewEngineError(domain.ErrInvalidState.Code, fmt.Sprintf("no agent for step %q", step))
	}
}
