package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rogers-f/deliberate/internal/domain"
	"github.com/rogers-f/deliberate/internal/msglog"
)

// Recorder persists session progress: the session header, every message,
// every controller transition, a checkpoint after each agent invocation,
// and model token usage. It is safe for concurrent sessions.
type Recorder struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time

	sessions    SessionRepo
	messages    MessageRepo
	events      EventRepo
	checkpoints CheckpointRepo
	usage       UsageRepo

	mu       sync.Mutex
	eventSeq map[string]int64
	versions map[string]int64
}

// NewRecorder wraps an open database.
func NewRecorder(db *sql.DB, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		db:       db,
		logger:   logger,
		now:      time.Now,
		eventSeq: make(map[string]int64),
		versions: make(map[string]int64),
	}
}

// DB exposes the underlying handle for read-only queries.
func (r *Recorder) DB() *sql.DB { return r.db }

// StartSession inserts the session header.
func (r *Recorder) StartSession(ctx context.Context, s *domain.SessionState) error {
	now := r.now().Unix()
	rec := domain.SessionRecord{
		ID:           s.ID,
		Question:     s.Question,
		AttachedFile: s.AttachedFile,
		Status:       domain.SessionRunning,
		CurrentStep:  s.CurrentStep,
		StateVersion: 1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		return r.sessions.CreateTx(ctx, tx, rec)
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.versions[s.ID] = 1
	r.eventSeq[s.ID] = 0
	r.mu.Unlock()
	return nil
}

// RecordTransition appends a step event and moves the session header to
// the new step in one transaction.
func (r *Recorder) RecordTransition(ctx context.Context, s *domain.SessionState, from domain.Step, event string) error {
	now := r.now().Unix()

	r.mu.Lock()
	r.eventSeq[s.ID]++
	seq := r.eventSeq[s.ID]
	r.mu.Unlock()

	detail := ""
	if s.Error != nil {
		detail = s.Error.Component + ": " + s.Error.Message
	}
	ev := domain.StepEvent{
		SessionID: s.ID,
		SeqNo:     seq,
		From:      from,
		To:        s.CurrentStep,
		EventType: event,
		Detail:    detail,
		CreatedAt: now,
	}
	return r.update(ctx, s, domain.SessionRunning, now, func(tx *sql.Tx) error {
		return r.events.AppendTx(ctx, tx, ev)
	})
}

// FinishSession stores the final answer and marks the session completed,
// or failed when it was aborted.
func (r *Recorder) FinishSession(ctx context.Context, s *domain.SessionState) error {
	status := domain.SessionDone
	if s.Aborted() {
		status = domain.SessionFailed
	}
	err := r.update(ctx, s, status, r.now().Unix(), nil)

	r.mu.Lock()
	delete(r.eventSeq, s.ID)
	delete(r.versions, s.ID)
	r.mu.Unlock()
	return err
}

// update writes the header under the optimistic lock, running extra in
// the same transaction. On a version conflict the cached version is
// reloaded so the next write can succeed.
func (r *Recorder) update(ctx context.Context, s *domain.SessionState, status domain.SessionStatus, now int64, extra func(tx *sql.Tx) error) error {
	version, err := r.version(ctx, s.ID)
	if err != nil {
		return err
	}
	rec := domain.SessionRecord{
		ID:             s.ID,
		Status:         status,
		CurrentStep:    s.CurrentStep,
		FinalAnswer:    s.FinalAnswer,
		FinalReasoning: s.FinalReasoning,
		StateVersion:   version,
		UpdatedAt:      now,
	}
	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		if extra != nil {
			if err := extra(tx); err != nil {
				return err
			}
		}
		return r.sessions.UpdateStateTx(ctx, tx, rec)
	})
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case err == nil:
		r.versions[s.ID] = version + 1
	case errors.Is(err, domain.ErrOptimisticLock):
		delete(r.versions, s.ID)
	}
	return err
}

func (r *Recorder) version(ctx context.Context, id string) (int64, error) {
	r.mu.Lock()
	v, ok := r.versions[id]
	r.mu.Unlock()
	if ok {
		return v, nil
	}
	rec, err := r.sessions.GetByID(ctx, r.db, id)
	if err != nil {
		return 0, err
	}
	r.mu.Lock()
	r.versions[id] = rec.StateVersion
	r.mu.Unlock()
	return rec.StateVersion, nil
}

// Checkpoint snapshots the session. messages is the log length the
// snapshot pairs with.
func (r *Recorder) Checkpoint(ctx context.Context, s *domain.SessionState, messages int) error {
	cp, err := NewCheckpoint(s, int64(messages), r.now().Unix())
	if err != nil {
		return err
	}
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		return r.checkpoints.SaveTx(ctx, tx, cp)
	})
}

// RecordUsage stores the token counts of one model call.
func (r *Recorder) RecordUsage(ctx context.Context, u domain.Usage) error {
	return r.usage.Create(ctx, r.db, u, r.now().Unix())
}

// MessageSink returns a sink that persists one session's messages.
func (r *Recorder) MessageSink(sessionID string) msglog.Sink {
	return messageSink{r: r, sessionID: sessionID}
}

type messageSink struct {
	r         *Recorder
	sessionID string
}

func (m messageSink) RecordMessage(seq int, msg domain.Message) error {
	return m.r.messages.Append(context.Background(), m.r.db, m.sessionID, seq, msg)
}

// Restore loads a session from its latest checkpoint. Messages written
// after the checkpoint are discarded, since the invocation that produced
// them will run again.
func (r *Recorder) Restore(ctx context.Context, id string) (*domain.SessionState, []domain.Message, error) {
	rec, err := r.sessions.GetByID(ctx, r.db, id)
	if err != nil {
		return nil, nil, err
	}
	if rec.Status != domain.SessionRunning {
		return nil, nil, domain.NewEngineError(domain.ErrSessionDone.Code,
			fmt.Sprintf("session %s is %s", id, rec.Status))
	}

	cp, err := r.checkpoints.GetLatest(ctx, r.db, id)
	if err != nil {
		return nil, nil, err
	}
	if cp == nil {
		return nil, nil, domain.NewEngineError(domain.ErrSessionNotFound.Code,
			fmt.Sprintf("session %s has no checkpoint", id))
	}
	s, err := Decode(cp)
	if err != nil {
		return nil, nil, err
	}

	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		return r.messages.TruncateTx(ctx, tx, id, int(cp.Seq))
	})
	if err != nil {
		return nil, nil, err
	}
	msgs, err := r.messages.ListBySession(ctx, r.db, id, int(cp.Seq))
	if err != nil {
		return nil, nil, err
	}
	seq, err := r.events.MaxSeq(ctx, r.db, id)
	if err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	r.eventSeq[id] = seq
	r.versions[id] = rec.StateVersion
	r.mu.Unlock()

	r.logger.Info("session restored", "session", id, "step", s.CurrentStep, "messages", len(msgs))
	return s, msgs, nil
}

// Session returns the persisted header of a session.
func (r *Recorder) Session(ctx context.Context, id string) (*domain.SessionRecord, error) {
	return r.sessions.GetByID(ctx, r.db, id)
}

// Sessions lists recent sessions.
func (r *Recorder) Sessions(ctx context.Context, limit int) ([]domain.SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.sessions.List(ctx, r.db, limit)
}

// Messages returns the full message log of a session.
func (r *Recorder) Messages(ctx context.Context, id string) ([]domain.Message, error) {
	if _, err := r.sessions.GetByID(ctx, r.db, id); err != nil {
		return nil, err
	}
	return r.messages.ListBySession(ctx, r.db, id, -1)
}

// Events returns the transition history of a session.
func (r *Recorder) Events(ctx context.Context, id string) ([]domain.StepEvent, error) {
	return r.events.ListBySession(ctx, r.db, id, 0)
}

// Usage returns the summed input and output tokens of a session.
func (r *Recorder) Usage(ctx context.Context, id string) (in, out int64, err error) {
	return r.usage.Totals(ctx, r.db, id)
}
