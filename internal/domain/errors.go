package domain

import (
	"errors"
	"fmt"
	"strings"
)

// EngineError is the unified error type for the orchestrator.
// Each error has a numeric code and human-readable message.
type EngineError struct {
	Code    int
	Message string
	cause   error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("engine error %d: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *EngineError) Unwrap() error {
	return e.cause
}

// Is matches any EngineError carrying the same code, so errors.Is works
// against the sentinels below.
func (e *EngineError) Is(target error) bool {
	var t *EngineError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewEngineError creates a new EngineError.
func NewEngineError(code int, msg string) *EngineError {
	return &EngineError{Code: code, Message: msg}
}

// WrapEngineError creates an EngineError that includes a cause.
func WrapEngineError(code int, msg string, cause error) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf("%s: %v", msg, cause), cause: cause}
}

// CodeOf returns the code of the first EngineError in err's chain, or 0.
func CodeOf(err error) int {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return 0
}

// ---- Controller / Router errors (-32010 to -32039) ----

var (
	ErrInvalidState        = &EngineError{Code: -32010, Message: "invalid step"}
	ErrMissingVerdict      = &EngineError{Code: -32011, Message: "critic verdict missing"}
	ErrPlanIndex           = &EngineError{Code: -32012, Message: "research cursor out of range"}
	ErrComposerMissing     = &EngineError{Code: -32013, Message: "no instruction composer registered for step"}
	ErrStepCeiling         = &EngineError{Code: -32014, Message: "step ceiling reached"}
	ErrRetryBudgetExceeded = &EngineError{Code: -32015, Message: "retry budget exceeded"}
	ErrAgentNotRegistered  = &EngineError{Code: -32016, Message: "no agent registered"}
	ErrMessageInvalid      = &EngineError{Code: -32017, Message: "message is missing required fields"}
	ErrSessionDone         = &EngineError{Code: -32018, Message: "session already completed"}
)

// ---- Agent / Tool errors (-32040 to -32069) ----

var (
	ErrSchemaViolation = &EngineError{Code: -32040, Message: "agent output violates its schema"}
	ErrToolFailure     = &EngineError{Code: -32041, Message: "tool call failed"}
	ErrToolNotFound    = &EngineError{Code: -32042, Message: "tool not found"}
	ErrToolLoopLimit   = &EngineError{Code: -32043, Message: "tool loop iteration limit reached"}
	ErrNoInstruction   = &EngineError{Code: -32044, Message: "agent has no pending instruction"}
)

// ---- LLM provider errors (-32070 to -32099) ----

var (
	ErrProviderUnknown = &EngineError{Code: -32070, Message: "unknown model provider"}
	ErrProviderCall    = &EngineError{Code: -32071, Message: "model call failed"}
	ErrProviderEmpty   = &EngineError{Code: -32072, Message: "model returned no content"}
	ErrScriptExhausted = &EngineError{Code: -32073, Message: "scripted model has no more responses"}
)

// ---- Store / Config errors (-32130 to -32159) ----

var (
	ErrStoreInit         = &EngineError{Code: -32130, Message: "failed to initialize store"}
	ErrStoreQuery        = &EngineError{Code: -32131, Message: "store query failed"}
	ErrStoreWrite        = &EngineError{Code: -32132, Message: "store write failed"}
	ErrSchemaMigration   = &EngineError{Code: -32133, Message: "schema migration failed"}
	ErrCheckpointCorrupt = &EngineError{Code: -32134, Message: "checkpoint checksum mismatch"}
	ErrSessionNotFound   = &EngineError{Code: -32135, Message: "session not found"}
	ErrConfigInvalid     = &EngineError{Code: -32136, Message: "invalid configuration"}
	ErrOptimisticLock    = &EngineError{Code: -32137, Message: "optimistic lock conflict: session was modified concurrently"}
	ErrPromptsInvalid    = &EngineError{Code: -32138, Message: "invalid prompt catalog"}
)

// SchemaViolation reports which required fields an agent's output lacked.
// It matches ErrSchemaViolation under errors.Is.
type SchemaViolation struct {
	Agent   AgentID
	Missing []string
	Detail  string
}

// Error implements the error interface.
func (v *SchemaViolation) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s output invalid", v.Agent)
	if len(v.Missing) > 0 {
		fmt.Fprintf(&b, ": missing %s", strings.Join(v.Missing, ", "))
	}
	if v.Detail != "" {
		fmt.Fprintf(&b, " (%s)", v.Detail)
	}
	return b.String()
}

// Is lets errors.Is(err, ErrSchemaViolation) hold.
func (v *SchemaViolation) Is(target error) bool {
	return target == ErrSchemaViolation
}
