// Package msglog holds the append-only record of orchestrator <-> agent
// messages. It is the only channel through which agents receive context.
package msglog

import (
	"time"

	"github.com/rogers-f/deliberate/internal/domain"
)

// Sink receives every appended message, for persistence or auditing.
type Sink interface {
	RecordMessage(seq int, m domain.Message) error
}

// Log is a time-ordered message sequence owned by a single session.
type Log struct {
	messages []domain.Message
	sink     Sink
	now      func() time.Time
}

// New creates an empty log. sink may be nil.
func New(sink Sink) *Log {
	return &Log{sink: sink, now: time.Now}
}

// FromMessages rebuilds a log from persisted messages, without re-sinking them.
func FromMessages(msgs []domain.Message, sink Sink) *Log {
	l := New(sink)
	l.messages = append(l.messages, msgs...)
	return l
}

// Append adds m at the end. Only sender, receiver, and kind are required.
func (l *Log) Append(m domain.Message) error {
	if m.Sender == "" || m.Receiver == "" || m.Kind == "" {
		return domain.ErrMessageInvalid
	}
	if m.Timestamp == "" {
		m.Timestamp = l.now().UTC().Format(time.RFC3339Nano)
	}
	if m.StepID != nil {
		m.StepID = domain.StepIndex(*m.StepID)
	}
	l.messages = append(l.messages, m)
	if l.sink != nil {
		if err := l.sink.RecordMessage(len(l.messages), m); err != nil {
			return domain.WrapEngineError(domain.ErrStoreWrite.Code, "record message", err)
		}
	}
	return nil
}

// Filter narrows a conversation query.
type Filter func(*query)

type query struct {
	stepID *int
	kinds  map[domain.MessageKind]bool
}

// WithStepID keeps only messages linked to research step id.
func WithStepID(id int) Filter {
	return func(q *query) { q.stepID = &id }
}

// WithKinds keeps only messages of the given kinds.
func WithKinds(kinds ...domain.MessageKind) Filter {
	return func(q *query) {
		q.kinds = make(map[domain.MessageKind]bool, len(kinds))
		for _, k := range kinds {
			q.kinds[k] = true
		}
	}
}

// ConversationFor returns, oldest first, the messages exchanged between role
// and the orchestrator, narrowed by the given filters.
func (l *Log) ConversationFor(role domain.AgentID, filters ...Filter) []domain.Message {
	var q query
	for _, f := range filters {
		f(&q)
	}

	out := []domain.Message{}
	for _, m := range l.messages {
		if !between(m, role) {
			continue
		}
		if q.stepID != nil && (m.StepID == nil || *m.StepID != *q.stepID) {
			continue
		}
		if q.kinds != nil && !q.kinds[m.Kind] {
			continue
		}
		out = append(out, m)
	}
	return out
}

func between(m domain.Message, role domain.AgentID) bool {
	if role == domain.AgentOrchestrator {
		return false
	}
	return (m.Sender == role && m.Receiver == domain.AgentOrchestrator) ||
		(m.Sender == domain.AgentOrchestrator && m.Receiver == role)
}

// LastInstruction returns the newest instruction addressed to role.
func (l *Log) LastInstruction(role domain.AgentID) (domain.Message, bool) {
	for i := len(l.messages) - 1; i >= 0; i-- {
		m := l.messages[i]
		if m.Kind == domain.KindInstruction && m.Sender == domain.AgentOrchestrator && m.Receiver == role {
			return m, true
		}
	}
	return domain.Message{}, false
}

// All returns a copy of the full log.
func (l *Log) All() []domain.Message {
	out := make([]domain.Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Len returns the number of messages.
func (l *Log) Len() int {
	return len(l.messages)
}
