package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rogers-f/deliberate/internal/domain"
)

// EventRepo handles persistence for StepEvent records.
type EventRepo struct{}

// AppendTx inserts a step event within an existing transaction.
func (r *EventRepo) AppendTx(ctx context.Context, tx *sql.Tx, event domain.StepEvent) error {
	const q = `INSERT INTO step_events (session_id, seq_no, from_step, to_step, event_type, detail, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q,
		event.SessionID,
		event.SeqNo,
		string(event.From),
		string(event.To),
		event.EventType,
		event.Detail,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ListBySession returns events for a session with sequence numbers greater
// than sinceSeq, ordered by sequence number ascending.
func (r *EventRepo) ListBySession(ctx context.Context, db *sql.DB, sessionID string, sinceSeq int64) ([]domain.StepEvent, error) {
	const q = `SELECT id, session_id, seq_no, from_step, to_step, event_type, detail, created_at
FROM step_events
WHERE session_id = ? AND seq_no > ?
ORDER BY seq_no ASC`

	rows, err := db.QueryContext(ctx, q, sessionID, sinceSeq)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []domain.StepEvent
	for rows.Next() {
		var e domain.StepEvent
		var from, to string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.SeqNo, &from, &to, &e.EventType, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.From = domain.Step(from)
		e.To = domain.Step(to)
		events = append(events, e)
	}
	return events, rows.Err()
}

// MaxSeq returns the highest event sequence number for a session, or 0.
func (r *EventRepo) MaxSeq(ctx context.Context, db *sql.DB, sessionID string) (int64, error) {
	var seq sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(seq_no) FROM step_events WHERE session_id = ?`, sessionID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("max event seq: %w", err)
	}
	return seq.Int64, nil
}
