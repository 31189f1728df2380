package domain

// FailureAnswer is written to both final fields when a run gives up.
const FailureAnswer = "The question could not be answered."

// SessionState threads through every controller and agent invocation of a
// single run. It is owned by one run and mutated without locking.
type SessionState struct {
	ID           string `json:"id"`
	Question     string `json:"question"`
	AttachedFile string `json:"attached_file,omitempty"`

	Plan Plan `json:"plan"`

	ResearchCursor  int                   `json:"research_cursor"`
	ResearchResults []string              `json:"research_results"`
	ResearchState   map[int]*ResearchSlot `json:"research_state"`
	ExpertState     *ExpertSlot           `json:"expert_state,omitempty"`

	Verdicts map[Role]Verdict `json:"verdicts"`

	FinalAnswer    string `json:"final_answer"`
	FinalReasoning string `json:"final_reasoning"`

	CurrentStep Step  `json:"current_step"`
	NextStep    *Step `json:"next_step"`

	RetryCount map[Role]int `json:"retry_count"`
	RetryLimit map[Role]int `json:"retry_limit"`

	// FailedAgentStep is the step whose agent failed, when the pending
	// reject verdict was written by the driver rather than the critic.
	FailedAgentStep Step `json:"failed_agent_step,omitempty"`

	Failed bool          `json:"failed"`
	Error  *SessionError `json:"error,omitempty"`

	// Invocations counts controller steps taken so far.
	Invocations int `json:"invocations"`
	// Finalized is set once the finalizer has written its output.
	Finalized bool `json:"finalized"`
}

// NewSessionState creates the initial state for a question.
func NewSessionState(id, question, file string, limits map[Role]int) *SessionState {
	s := &SessionState{
		ID:             id,
		Question:       question,
		AttachedFile:   file,
		ResearchCursor: -1,
		ResearchState:  map[int]*ResearchSlot{},
		Verdicts:       map[Role]Verdict{},
		CurrentStep:    StepInput,
		RetryCount:     map[Role]int{},
		RetryLimit:     map[Role]int{},
	}
	for _, r := range Roles {
		s.RetryCount[r] = 0
		s.RetryLimit[r] = limits[r]
	}
	return s
}

// Verdict returns the current verdict for r, unset if none.
func (s *SessionState) Verdict(r Role) Verdict {
	return s.Verdicts[r]
}

// SetVerdict replaces the verdict slot of r.
func (s *SessionState) SetVerdict(r Role, v Verdict) {
	if s.Verdicts == nil {
		s.Verdicts = map[Role]Verdict{}
	}
	s.Verdicts[r] = v
}

// Aborted reports whether the run is headed to a forced finalization,
// either because a retry budget ran out or because an error was absorbed.
func (s *SessionState) Aborted() bool {
	return s.Failed || s.Error != nil
}

// ExhaustedRole returns the first role whose counter has reached its limit.
func (s *SessionState) ExhaustedRole() (Role, bool) {
	for _, r := range Roles {
		if s.RetryCount[r] >= s.RetryLimit[r] {
			return r, true
		}
	}
	return "", false
}

// ResearchStep returns the research step text at the cursor.
func (s *SessionState) ResearchStep() (string, bool) {
	i := s.ResearchCursor
	if i < 0 || i >= len(s.Plan.ResearchSteps) {
		return "", false
	}
	return s.Plan.ResearchSteps[i], true
}

// CurrentResult returns the stored research result at the cursor.
func (s *SessionState) CurrentResult() (string, bool) {
	i := s.ResearchCursor
	if i < 0 || i >= len(s.ResearchResults) {
		return "", false
	}
	return s.ResearchResults[i], true
}

// StoreResearchResult writes result at the cursor: appended when the cursor
// is one past the end, overwritten otherwise.
func (s *SessionState) StoreResearchResult(result string) error {
	i := s.ResearchCursor
	switch {
	case i < 0 || i > len(s.ResearchResults):
		return NewEngineError(ErrPlanIndex.Code, "cannot store result at index out of sequence")
	case i == len(s.ResearchResults):
		s.ResearchResults = append(s.ResearchResults, result)
	default:
		s.ResearchResults[i] = result
	}
	return nil
}

// ResetResearch clears everything derived from a previous plan.
func (s *SessionState) ResetResearch() {
	s.ResearchCursor = -1
	s.ResearchResults = nil
	s.ResearchState = map[int]*ResearchSlot{}
	delete(s.Verdicts, RoleResearcher)
}

// Fail marks the run as given up and prefills the failure answer.
func (s *SessionState) Fail() {
	s.Failed = true
	s.FinalAnswer = FailureAnswer
	s.FinalReasoning = FailureAnswer
}

// RecordError stores an absorbed error and prefills the failure answer.
// The first recorded error wins.
func (s *SessionState) RecordError(component string, err error) {
	if s.Error == nil {
		s.Error = &SessionError{Component: component, Message: err.Error()}
	}
	s.FinalAnswer = FailureAnswer
	s.FinalReasoning = FailureAnswer
}

// Result builds the caller-facing result from the state and a log copy.
func (s *SessionState) Result(messages []Message) *RunResult {
	r := &RunResult{
		SessionID:      s.ID,
		FinalAnswer:    s.FinalAnswer,
		FinalReasoning: s.FinalReasoning,
		Failed:         s.Aborted(),
		Messages:       messages,
	}
	if s.Error != nil {
		r.Error = s.Error.Component + ": " + s.Error.Message
	}
	return r
}
