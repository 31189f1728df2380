package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rogers-f/deliberate/internal/domain"
)

// SessionRepo handles persistence for SessionRecord headers.
type SessionRepo struct{}

// CreateTx inserts a new session within an existing transaction.
func (r *SessionRepo) CreateTx(ctx context.Context, tx *sql.Tx, rec domain.SessionRecord) error {
	const q = `INSERT INTO sessions (session_id, question, attached_file, status, current_step, final_answer, final_reasoning, state_version, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q,
		rec.ID,
		rec.Question,
		rec.AttachedFile,
		string(rec.Status),
		string(rec.CurrentStep),
		rec.FinalAnswer,
		rec.FinalReasoning,
		rec.StateVersion,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// UpdateStateTx updates a session within a transaction using optimistic
// locking: the row is only changed if state_version still matches.
func (r *SessionRepo) UpdateStateTx(ctx context.Context, tx *sql.Tx, rec domain.SessionRecord) error {
	const q = `UPDATE sessions SET
		status = ?,
		current_step = ?,
		final_answer = ?,
		final_reasoning = ?,
		state_version = state_version + 1,
		updated_at = ?
	WHERE session_id = ? AND state_version = ?`

	res, err := tx.ExecContext(ctx, q,
		string(rec.Status),
		string(rec.CurrentStep),
		rec.FinalAnswer,
		rec.FinalReasoning,
		rec.UpdatedAt,
		rec.ID,
		rec.StateVersion,
	)
	if err != nil {
		return fmt.Errorf("update session state: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrOptimisticLock
	}
	return nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepo) GetByID(ctx context.Context, db *sql.DB, id string) (*domain.SessionRecord, error) {
	const q = `SELECT session_id, question, attached_file, status, current_step, final_answer, final_reasoning, state_version, created_at, updated_at
FROM sessions WHERE session_id = ?`

	var s domain.SessionRecord
	var status, step string
	err := db.QueryRowContext(ctx, q, id).Scan(&s.ID, &s.Question, &s.AttachedFile, &status, &step,
		&s.FinalAnswer, &s.FinalReasoning, &s.StateVersion, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	s.Status = domain.SessionStatus(status)
	s.CurrentStep = domain.Step(step)
	return &s, nil
}

// List returns the most recently updated sessions first.
func (r *SessionRepo) List(ctx context.Context, db *sql.DB, limit int) ([]domain.SessionRecord, error) {
	const q = `SELECT session_id, question, attached_file, status, current_step, final_answer, final_reasoning, state_version, created_at, updated_at
FROM sessions ORDER BY updated_at DESC, session_id LIMIT ?`

	rows, err := db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.SessionRecord
	for rows.Next() {
		var s domain.SessionRecord
		var status, step string
		if err := rows.Scan(&s.ID, &s.Question, &s.AttachedFile, &status, &step,
			&s.FinalAnswer, &s.FinalReasoning, &s.StateVersion, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s.Status = domain.SessionStatus(status)
		s.CurrentStep = domain.Step(step)
		out = append(out, s)
	}
	return out, rows.Err()
}
