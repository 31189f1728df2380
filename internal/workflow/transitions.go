// Package workflow implements the orchestration state machine: the
// controller, the router, and the driver loop that ties them to agents.
package workflow

import (
	"fmt"

	"github.com/rogers-f/deliberate/internal/domain"
)

// validTransitions defines the legal step transitions.
// Each key is a source step, and the value is the set of valid target steps.
// Any step may also move to the finalizer on a forced finalization.
var validTransitions = map[domain.Step]map[domain.Step]bool{
	domain.StepInput:            {domain.StepPlanner: true},
	domain.StepPlanner:          {domain.StepCriticPlanner: true},
	domain.StepCriticPlanner:    {domain.StepPlanner: true, domain.StepResearcher: true, domain.StepExpert: true},
	domain.StepResearcher:       {domain.StepCriticResearcher: true},
	domain.StepCriticResearcher: {domain.StepResearcher: true, domain.StepExpert: true},
	domain.StepExpert:           {domain.StepCriticExpert: true},
	domain.StepCriticExpert:     {domain.StepExpert: true, domain.StepFinalizer: true},
	domain.StepFinalizer:        {domain.StepFinalizer: true},
}

// IsValidTransition checks if a step transition is legal.
func IsValidTransition(from, to domain.Step) bool {
	if to == domain.StepFinalizer && from.Valid() {
		return true
	}
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// DetermineNext computes the step after s.CurrentStep. Critic rejections
// bump the rejected role's retry counter; a plan approval that enters
// research clears all research state from earlier passes.
func DetermineNext(s *domain.SessionState) (domain.Step, error) {
	current, err := domain.ParseStep(string(s.CurrentStep))
	if err != nil {
		return "", err
	}

	switch current {
	case domain.StepInput:
		return domain.StepPlanner, nil
	case domain.StepPlanner:
		return domain.StepCriticPlanner, nil
	case domain.StepResearcher:
		return domain.StepCriticResearcher, nil
	case domain.StepExpert:
		return domain.StepCriticExpert, nil
	case domain.StepFinalizer:
		return domain.StepFinalizer, nil
	}

	role, _ := current.ReviewedRole()
	switch s.Verdict(role).Decision {
	case domain.DecisionApprove:
		return afterApproval(s, current), nil
	case domain.DecisionReject:
		s.RetryCount[role]++
		return rejectTarget(current), nil
	default:
		return "", domain.NewEngineError(
			domain.ErrMissingVerdict.Code,
			fmt.Sprintf("no %s verdict at step %s", role, current),
		)
	}
}

func afterApproval(s *domain.SessionState, current domain.Step) domain.Step {
	switch current {
	case domain.StepCriticPlanner:
		if len(s.Plan.ResearchSteps) == 0 {
			return domain.StepExpert
		}
		s.ResetResearch()
		return domain.StepResearcher
	case domain.StepCriticResearcher:
		if s.ResearchCursor+1 >= len(s.Plan.ResearchSteps) {
			return domain.StepExpert
		}
		return domain.StepResearcher
	default:
		return domain.StepFinalizer
	}
}

func rejectTarget(current domain.Step) domain.Step {
	switch current {
	case domain.StepCriticPlanner:
		return domain.StepPlanner
	case domain.StepCriticResearcher:
		return domain.StepResearcher
	default:
		return domain.StepExpert
	}
}
