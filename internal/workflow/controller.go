package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rogers-f/deliberate/internal/domain"
	"github.com/rogers-f/deliberate/internal/metrics"
	"github.com/rogers-f/deliberate/internal/msglog"
)

// Recorder persists session progress. Implementations must tolerate being
// called once per controller step.
type Recorder interface {
	StartSession(ctx context.Context, s *domain.SessionState) error
	RecordTransition(ctx context.Context, s *domain.SessionState, from domain.Step, event string) error
	FinishSession(ctx context.Context, s *domain.SessionState) error
}

// Controller is the orchestration state machine. Each Step call decides
// the next step, enforces retry budgets, advances the session, and sends
// the next agent its instruction.
type Controller struct {
	Governor  *RetryGovernor
	Composers *ComposerRegistry
	Recorder  Recorder
	Metrics   *metrics.Recorder
	Logger    *slog.Logger
}

// NewController creates a controller with the given composers and default
// governor.
func NewController(composers *ComposerRegistry, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		Governor:  NewRetryGovernor(logger),
		Composers: composers,
		Logger:    logger,
	}
}

// Step performs one controller invocation on s. Failures while deciding or
// composing are recorded on the session and force the finalizer; the only
// error returned is ErrInvalidState (or ErrSessionDone for a finished run).
func (c *Controller) Step(ctx context.Context, s *domain.SessionState, log *msglog.Log) error {
	if s.Finalized {
		return domain.ErrSessionDone
	}
	from := s.CurrentStep
	if _, err := domain.ParseStep(string(from)); err != nil {
		return err
	}
	s.Invocations++
	// A verdict synthesized from an agent failure is not a critic decision.
	label, event := from, "transition"
	if failed := s.FailedAgentStep; failed != "" {
		label, event = failed, "agent_failed"
		s.FailedAgentStep = ""
	} else if role, ok := from.ReviewedRole(); ok && !s.Aborted() {
		if d := s.Verdict(role).Decision; d != domain.DecisionUnset {
			c.Metrics.ObserveDecision(string(role), string(d))
		}
	}

	if err := c.advance(s, log); err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			return err
		}
		c.Logger.Error("controller step failed", "session", s.ID, "from", from, "error", err)
		c.finalizeOnError(s, log, "orchestrator", err)
		event = "error"
	} else if s.Failed && s.CurrentStep == domain.StepFinalizer && from != domain.StepFinalizer {
		event = "retry_exhausted"
	}

	c.Metrics.ObserveStep(string(s.CurrentStep))
	c.record(ctx, s, label, event)
	c.Logger.Debug("controller step", "session", s.ID, "from", label, "to", s.CurrentStep, "invocation", s.Invocations)
	return nil
}

// Abort forces the session to the finalizer on behalf of component, as if
// the controller had failed with err. Used by the driver for the step
// ceiling and deadline.
func (c *Controller) Abort(ctx context.Context, s *domain.SessionState, log *msglog.Log, component string, err error) {
	from := s.CurrentStep
	s.Invocations++
	s.FailedAgentStep = ""
	c.Logger.Warn("forcing finalization", "session", s.ID, "component", component, "reason", err)
	c.finalizeOnError(s, log, component, err)
	c.Metrics.ObserveStep(string(s.CurrentStep))
	c.record(ctx, s, from, "aborted")
}

func (c *Controller) advance(s *domain.SessionState, log *msglog.Log) error {
	var next domain.Step
	if s.Aborted() {
		next = domain.StepFinalizer
	} else {
		before := snapshotCounts(s)
		var err error
		next, err = DetermineNext(s)
		if err != nil {
			return err
		}
		for _, r := range domain.Roles {
			if s.RetryCount[r] > before[r] {
				c.Metrics.ObserveRetry(string(r))
			}
		}
		next = c.Governor.Enforce(s, next)
	}

	if !IsValidTransition(s.CurrentStep, next) {
		return domain.NewEngineError(domain.ErrInvalidState.Code,
			fmt.Sprintf("illegal transition %s -> %s", s.CurrentStep, next))
	}

	s.NextStep = &next
	s.CurrentStep = next
	return c.send(s, log)
}

func (c *Controller) send(s *domain.SessionState, log *msglog.Log) error {
	composer, err := c.Composers.Get(s.CurrentStep)
	if err != nil {
		return err
	}
	msg, err := composer.Compose(s)
	if err != nil {
		return fmt.Errorf("compose %s: %w", composer.Name(), err)
	}
	return log.Append(msg)
}

func (c *Controller) finalizeOnError(s *domain.SessionState, log *msglog.Log, component string, err error) {
	s.RecordError(component, err)
	next := domain.StepFinalizer
	s.NextStep = &next
	s.CurrentStep = next
	if sendErr := c.send(s, log); sendErr != nil {
		c.Logger.Error("failed to send finalizer instruction", "session", s.ID, "error", sendErr)
	}
}

func (c *Controller) record(ctx context.Context, s *domain.SessionState, from domain.Step, event string) {
	if c.Recorder == nil {
		return
	}
	if err := c.Recorder.RecordTransition(ctx, s, from, event); err != nil {
		c.Logger.Warn("record transition failed", "session", s.ID, "error", err)
	}
}

func snapshotCounts(s *domain.SessionState) map[domain.Role]int {
	out := make(map[domain.Role]int, len(s.RetryCount))
	for r, n := range s.RetryCount {
		out[r] = n
	}
	return out
}
