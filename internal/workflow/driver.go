package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rogers-f/deliberate/internal/domain"
	"github.com/rogers-f/deliberate/internal/metrics"
	"github.com/rogers-f/deliberate/internal/msglog"
)

// DefaultMaxSteps caps controller invocations per session.
const DefaultMaxSteps = 100

// Agent is the contract every role adapter satisfies: read its own
// conversation from log, call its collaborator, validate, update s, and
// append one response.
type Agent interface {
	Invoke(ctx context.Context, s *domain.SessionState, log *msglog.Log) error
}

// SinkProvider is implemented by recorders that also persist messages.
type SinkProvider interface {
	MessageSink(sessionID string) msglog.Sink
}

// Checkpointer is implemented by recorders that snapshot the session after
// every agent invocation. messages is the log length at that point.
type Checkpointer interface {
	Checkpoint(ctx context.Context, s *domain.SessionState, messages int) error
}

// Restorer reloads a persisted session as of its latest checkpoint.
type Restorer interface {
	Restore(ctx context.Context, id string) (*domain.SessionState, []domain.Message, error)
	MessageSink(sessionID string) msglog.Sink
}

// Driver runs sessions to completion with an explicit loop:
// controller step, route, invoke agent, repeat until the finalizer is done.
type Driver struct {
	Controller *Controller
	Agents     map[domain.AgentID]Agent
	Limits     map[domain.Role]int
	MaxSteps   int
	Timeout    time.Duration
	Recorder   Recorder
	Metrics    *metrics.Recorder
	Logger     *slog.Logger
	NewID      func() string
}

// NewDriver creates a driver with default ceilings.
func NewDriver(ctrl *Controller, agents map[domain.AgentID]Agent, limits map[domain.Role]int, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		Controller: ctrl,
		Agents:     agents,
		Limits:     limits,
		MaxSteps:   DefaultMaxSteps,
		Logger:     logger,
		NewID:      uuid.NewString,
	}
}

// Run answers one question. It always returns a well-formed result unless
// the session reaches an invalid step or no agent serves a routed step.
func (d *Driver) Run(ctx context.Context, question, file string) (*domain.RunResult, error) {
	s := domain.NewSessionState(d.NewID(), question, file, d.Limits)
	log := msglog.New(d.sinkFor(s.ID))

	if d.Recorder != nil {
		if err := d.Recorder.StartSession(ctx, s); err != nil {
			d.Logger.Warn("start session record failed", "session", s.ID, "error", err)
		}
	}
	d.Logger.Info("session started", "session", s.ID, "file", file)
	return d.Continue(ctx, s, log)
}

// Continue drives an existing session, such as one restored from a
// checkpoint, until the finalizer has produced output.
func (d *Driver) Continue(ctx context.Context, s *domain.SessionState, log *msglog.Log) (*domain.RunResult, error) {
	start := time.Now()
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}
	maxSteps := d.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	for !s.Finalized {
		switch {
		case s.Aborted() && s.CurrentStep == domain.StepFinalizer:
			// Already headed to the finalizer; invoke it below.
		case s.Invocations >= maxSteps:
			s.Fail()
			d.Controller.Abort(ctx, s, log, "driver", domain.NewEngineError(
				domain.ErrStepCeiling.Code, fmt.Sprintf("%d controller steps without an answer", s.Invocations)))
		case ctx.Err() != nil:
			s.Fail()
			d.Controller.Abort(context.WithoutCancel(ctx), s, log, "driver", domain.WrapEngineError(
				domain.ErrStepCeiling.Code, "run deadline", ctx.Err()))
		default:
			if err := d.Controller.Step(ctx, s, log); err != nil {
				return nil, err
			}
		}

		id, err := Route(s.CurrentStep)
		if err != nil {
			return nil, err
		}
		agent, ok := d.Agents[id]
		if !ok {
			return nil, domain.NewEngineError(domain.ErrAgentNotRegistered.Code, fmt.Sprintf("no agent registered for %s", id))
		}

		if err := agent.Invoke(d.agentContext(ctx, s), s, log); err != nil {
			if errors.Is(err, domain.ErrInvalidState) {
				return nil, err
			}
			d.absorb(s, id, err)
		}
		d.checkpoint(ctx, s, log)
	}

	d.Metrics.ObserveRun(s.Aborted(), time.Since(start))
	if d.Recorder != nil {
		// The run context may already be past its deadline.
		if err := d.Recorder.FinishSession(context.WithoutCancel(ctx), s); err != nil {
			d.Logger.Warn("finish session record failed", "session", s.ID, "error", err)
		}
	}
	d.Logger.Info("session finished", "session", s.ID, "failed", s.Aborted(),
		"steps", s.Invocations, "elapsed", time.Since(start))
	return s.Result(log.All()), nil
}

// Resume continues a persisted session from its latest checkpoint. The
// invocation that was in flight when the session stopped runs again.
func (d *Driver) Resume(ctx context.Context, src Restorer, id string) (*domain.RunResult, error) {
	s, msgs, err := src.Restore(ctx, id)
	if err != nil {
		return nil, err
	}
	d.Logger.Info("session resumed", "session", id, "step", s.CurrentStep, "messages", len(msgs))
	return d.Continue(ctx, s, msglog.FromMessages(msgs, src.MessageSink(id)))
}

// agentContext keeps the finalizer callable after the run deadline so a
// forced finalization still produces output.
func (d *Driver) agentContext(ctx context.Context, s *domain.SessionState) context.Context {
	if s.CurrentStep == domain.StepFinalizer && ctx.Err() != nil {
		return context.WithoutCancel(ctx)
	}
	return ctx
}

// absorb converts an agent failure into a rejection of the responsible
// role, so the controller charges its retry budget and re-invites it.
// A failed finalizer ends the run with the failure answer.
func (d *Driver) absorb(s *domain.SessionState, id domain.AgentID, err error) {
	d.Logger.Warn("agent failed", "session", s.ID, "agent", id, "step", s.CurrentStep, "error", err)

	step := s.CurrentStep
	s.FailedAgentStep = step
	var role domain.Role
	var feedback string
	switch step {
	case domain.StepPlanner, domain.StepResearcher, domain.StepExpert:
		role = domain.Role(step)
		feedback = "Your previous output could not be used: " + err.Error()
		s.CurrentStep = role.CriticStep()
	case domain.StepCriticPlanner, domain.StepCriticResearcher, domain.StepCriticExpert:
		role, _ = step.ReviewedRole()
		feedback = "The review of your previous output failed (" + err.Error() + "). Please try again."
	default:
		s.FailedAgentStep = ""
		s.RecordError(string(id), err)
		s.Finalized = true
		return
	}
	s.SetVerdict(role, domain.Verdict{Decision: domain.DecisionReject, Feedback: feedback})
}

func (d *Driver) checkpoint(ctx context.Context, s *domain.SessionState, log *msglog.Log) {
	cp, ok := d.Recorder.(Checkpointer)
	if !ok {
		return
	}
	if err := cp.Checkpoint(context.WithoutCancel(ctx), s, log.Len()); err != nil {
		d.Logger.Warn("checkpoint failed", "session", s.ID, "error", err)
	}
}

func (d *Driver) sinkFor(sessionID string) msglog.Sink {
	if sp, ok := d.Recorder.(SinkProvider); ok {
		return sp.MessageSink(sessionID)
	}
	return nil
}
