// Package domain defines the core types for the deliberation pipeline.
package domain

import "fmt"

// Step is a position in the orchestration state machine.
type Step string

const (
	StepInput            Step = "input"
	StepPlanner          Step = "planner"
	StepCriticPlanner    Step = "critic_planner"
	StepResearcher       Step = "researcher"
	StepCriticResearcher Step = "critic_researcher"
	StepExpert           Step = "expert"
	StepCriticExpert     Step = "critic_expert"
	StepFinalizer        Step = "finalizer"
)

// Steps lists every valid step in pipeline order.
var Steps = []Step{
	StepInput,
	StepPlanner,
	StepCriticPlanner,
	StepResearcher,
	StepCriticResearcher,
	StepExpert,
	StepCriticExpert,
	StepFinalizer,
}

// ParseStep converts a raw value into a Step. The empty string is input.
func ParseStep(s string) (Step, error) {
	if s == "" {
		return StepInput, nil
	}
	for _, st := range Steps {
		if string(st) == s {
			return st, nil
		}
	}
	return "", NewEngineError(ErrInvalidState.Code, fmt.Sprintf("unknown step %q", s))
}

// Valid reports whether s is a known step.
func (s Step) Valid() bool {
	_, err := ParseStep(string(s))
	return err == nil
}

// IsCritic reports whether s is one of the three review steps.
func (s Step) IsCritic() bool {
	return s == StepCriticPlanner || s == StepCriticResearcher || s == StepCriticExpert
}

// ReviewedRole returns the role a critic step reviews.
func (s Step) ReviewedRole() (Role, bool) {
	switch s {
	case StepCriticPlanner:
		return RolePlanner, true
	case StepCriticResearcher:
		return RoleResearcher, true
	case StepCriticExpert:
		return RoleExpert, true
	}
	return "", false
}

// AgentID identifies a message endpoint.
type AgentID string

const (
	AgentOrchestrator AgentID = "orchestrator"
	AgentPlanner      AgentID = "planner"
	AgentResearcher   AgentID = "researcher"
	AgentExpert       AgentID = "expert"
	AgentCritic       AgentID = "critic"
	AgentFinalizer    AgentID = "finalizer"
)

// Role is a retry-budgeted role. Only roles that can be rejected by the
// critic carry a budget.
type Role string

const (
	RolePlanner    Role = "planner"
	RoleResearcher Role = "researcher"
	RoleExpert     Role = "expert"
)

// Roles lists the budgeted roles in a stable order.
var Roles = []Role{RolePlanner, RoleResearcher, RoleExpert}

// CriticStep returns the review step that follows r.
func (r Role) CriticStep() Step {
	switch r {
	case RolePlanner:
		return StepCriticPlanner
	case RoleResearcher:
		return StepCriticResearcher
	default:
		return StepCriticExpert
	}
}

// MessageKind tags a message as an instruction or a response.
type MessageKind string

const (
	KindInstruction MessageKind = "instruction"
	KindResponse    MessageKind = "response"
)

// Message is one entry of the inter-agent log. Immutable once appended.
type Message struct {
	Sender    AgentID     `json:"sender"`
	Receiver  AgentID     `json:"receiver"`
	Kind      MessageKind `json:"kind"`
	Body      string      `json:"body"`
	StepID    *int        `json:"step_id"`
	Timestamp string      `json:"timestamp"`
}

// StepIndex returns a pointer suitable for Message.StepID.
func StepIndex(i int) *int {
	return &i
}

// Plan is the planner's decomposition of a question.
type Plan struct {
	ResearchSteps []string `json:"research_steps"`
	ExpertSteps   []string `json:"expert_steps"`
}

// Decision is a critic outcome.
type Decision string

const (
	DecisionUnset   Decision = ""
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Verdict is a critic decision with its feedback.
type Verdict struct {
	Decision Decision `json:"decision"`
	Feedback string   `json:"feedback"`
}

// ChatRole tags an entry of an agent's private sub-conversation.
type ChatRole string

const (
	ChatSystem    ChatRole = "system"
	ChatUser      ChatRole = "user"
	ChatAssistant ChatRole = "assistant"
	ChatTool      ChatRole = "tool"
)

// ToolCall is a model request to run a tool.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ChatMessage is one turn of a researcher or expert sub-conversation,
// including tool-use turns.
type ChatMessage struct {
	Role       ChatRole   `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
}

// ResearchSlot is the persistent sub-conversation for one research step.
type ResearchSlot struct {
	History []ChatMessage `json:"history"`
	Result  *string       `json:"result"`
}

// ExpertSlot is the persistent sub-conversation of the expert.
type ExpertSlot struct {
	History   []ChatMessage `json:"history"`
	Answer    string        `json:"answer"`
	Reasoning string        `json:"reasoning"`
}

// SessionError records a failure absorbed by the controller.
type SessionError struct {
	Component string `json:"component"`
	Message   string `json:"message"`
}

// RunResult is what a completed run hands back to its caller.
type RunResult struct {
	SessionID      string    `json:"session_id"`
	FinalAnswer    string    `json:"final_answer"`
	FinalReasoning string    `json:"final_reasoning"`
	Failed         bool      `json:"failed"`
	Error          string    `json:"error,omitempty"`
	Messages       []Message `json:"messages"`
}

// StepEvent records one controller transition.
type StepEvent struct {
	ID        int64
	SessionID string
	SeqNo     int64
	From      Step
	To        Step
	EventType string
	Detail    string
	CreatedAt int64
}

// Checkpoint is a serialized SessionState at a transition boundary.
type Checkpoint struct {
	ID        int64
	SessionID string
	Step      Step
	Seq       int64
	StateJSON string
	Checksum  string
	CreatedAt int64
}

// SessionStatus is the lifecycle status of a persisted session.
type SessionStatus string

const (
	SessionRunning SessionStatus = "running"
	SessionDone    SessionStatus = "completed"
	SessionFailed  SessionStatus = "failed"
)

// SessionRecord is the persisted header of a session.
type SessionRecord struct {
	ID             string
	Question       string
	AttachedFile   string
	Status         SessionStatus
	CurrentStep    Step
	FinalAnswer    string
	FinalReasoning string
	StateVersion   int64
	CreatedAt      int64
	UpdatedAt      int64
}

// Usage records tokens consumed by one model call.
type Usage struct {
	SessionID    string
	Agent        AgentID
	Provider     string
	Model        string
	InputTokens  int64
	OutputTokens int64
}
