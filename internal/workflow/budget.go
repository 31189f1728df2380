package workflow

import (
	"log/slog"

	"github.com/rogers-f/deliberate/internal/domain"
)

// BudgetAction is the decision from the retry governor.
type BudgetAction string

const (
	BudgetContinue  BudgetAction = "continue"
	BudgetWarn      BudgetAction = "warn"
	BudgetExhausted BudgetAction = "exhausted"
)

// RetryGovernor enforces per-role retry limits.
type RetryGovernor struct {
	// WarnRatio is the fraction of a role's limit at which a warning is logged (default 0.8).
	WarnRatio float64
	Logger    *slog.Logger
}

// NewRetryGovernor creates a governor with standard thresholds.
func NewRetryGovernor(logger *slog.Logger) *RetryGovernor {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryGovernor{WarnRatio: 0.8, Logger: logger}
}

// Check evaluates every role and returns the most severe action together
// with the role that caused it.
func (g *RetryGovernor) Check(s *domain.SessionState) (BudgetAction, domain.Role) {
	action, culprit := BudgetContinue, domain.Role("")
	for _, r := range domain.Roles {
		switch g.evaluate(s.RetryCount[r], s.RetryLimit[r]) {
		case BudgetExhausted:
			return BudgetExhausted, r
		case BudgetWarn:
			if action == BudgetContinue {
				action, culprit = BudgetWarn, r
			}
		}
	}
	return action, culprit
}

// Enforce returns the step that should actually run after next. When any
// budget is spent the session is failed and the finalizer is returned.
func (g *RetryGovernor) Enforce(s *domain.SessionState, next domain.Step) domain.Step {
	action, role := g.Check(s)
	switch action {
	case BudgetExhausted:
		g.Logger.Info("retry limit reached, finalizing",
			"session", s.ID, "role", role,
			"count", s.RetryCount[role], "limit", s.RetryLimit[role],
			"skipped_step", next)
		s.Fail()
		return domain.StepFinalizer
	case BudgetWarn:
		g.Logger.Warn("retry budget nearly spent",
			"session", s.ID, "role", role,
			"count", s.RetryCount[role], "limit", s.RetryLimit[role])
	}
	return next
}

func (g *RetryGovernor) evaluate(count, limit int) BudgetAction {
	if count >= limit {
		return BudgetExhausted
	}
	if float64(count) >= float64(limit)*g.WarnRatio {
		return BudgetWarn
	}
	return BudgetContinue
}
