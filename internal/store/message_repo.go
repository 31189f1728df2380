package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rogers-f/deliberate/internal/domain"
)

// MessageRepo persists message logs. seq is the message's 1-based position
// in its session log.
type MessageRepo struct{}

// Append writes one message. Re-appending a seq replaces the row, which
// happens when a resumed session rewrites messages past its checkpoint.
func (r *MessageRepo) Append(ctx context.Context, db *sql.DB, sessionID string, seq int, m domain.Message) error {
	const q = `INSERT OR REPLACE INTO messages (session_id, seq, sender, receiver, kind, body, step_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	var stepID sql.NullInt64
	if m.StepID != nil {
		stepID = sql.NullInt64{Int64: int64(*m.StepID), Valid: true}
	}
	_, err := db.ExecContext(ctx, q,
		sessionID,
		seq,
		string(m.Sender),
		string(m.Receiver),
		string(m.Kind),
		m.Body,
		stepID,
		m.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// ListBySession returns messages with seq up to upTo (all when upTo is
// negative), in log order.
func (r *MessageRepo) ListBySession(ctx context.Context, db *sql.DB, sessionID string, upTo int) ([]domain.Message, error) {
	q := `SELECT sender, receiver, kind, body, step_id, created_at
FROM messages
WHERE session_id = ?`
	args := []any{sessionID}
	if upTo >= 0 {
		q += ` AND seq <= ?`
		args = append(args, upTo)
	}
	q += ` ORDER BY seq ASC`

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	msgs := []domain.Message{}
	for rows.Next() {
		var m domain.Message
		var sender, receiver, kind string
		var stepID sql.NullInt64
		if err := rows.Scan(&sender, &receiver, &kind, &m.Body, &stepID, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Sender = domain.AgentID(sender)
		m.Receiver = domain.AgentID(receiver)
		m.Kind = domain.MessageKind(kind)
		if stepID.Valid {
			m.StepID = domain.StepIndex(int(stepID.Int64))
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// TruncateTx drops messages past seq.
func (r *MessageRepo) TruncateTx(ctx context.Context, tx *sql.Tx, sessionID string, seq int) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ? AND seq > ?`, sessionID, seq); err != nil {
		return fmt.Errorf("truncate messages: %w", err)
	}
	return nil
}
