package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rogers-f/deliberate/internal/domain"
)

// CheckpointRepo handles persistence for serialized session state.
type CheckpointRepo struct{}

// Checksum is the hex SHA-256 of a checkpoint payload.
func Checksum(stateJSON string) string {
	sum := sha256.Sum256([]byte(stateJSON))
	return hex.EncodeToString(sum[:])
}

// NewCheckpoint serializes s. seq is the message log length it pairs with.
func NewCheckpoint(s *domain.SessionState, seq int64, now int64) (domain.Checkpoint, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return domain.Checkpoint{}, fmt.Errorf("encode checkpoint: %w", err)
	}
	state := string(b)
	return domain.Checkpoint{
		SessionID: s.ID,
		Step:      s.CurrentStep,
		Seq:       seq,
		StateJSON: state,
		Checksum:  Checksum(state),
		CreatedAt: now,
	}, nil
}

// SaveTx inserts a checkpoint within an existing transaction.
func (r *CheckpointRepo) SaveTx(ctx context.Context, tx *sql.Tx, cp domain.Checkpoint) error {
	const q = `INSERT INTO checkpoints (session_id, step, seq, state_json, checksum, created_at)
VALUES (?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q,
		cp.SessionID,
		string(cp.Step),
		cp.Seq,
		cp.StateJSON,
		cp.Checksum,
		cp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// GetLatest returns the most recent checkpoint for a session after
// verifying its checksum. Returns nil if none exists.
func (r *CheckpointRepo) GetLatest(ctx context.Context, db *sql.DB, sessionID string) (*domain.Checkpoint, error) {
	const q = `SELECT id, session_id, step, seq, state_json, checksum, created_at
FROM checkpoints
WHERE session_id = ?
ORDER BY id DESC
LIMIT 1`

	var cp domain.Checkpoint
	var step string
	err := db.QueryRowContext(ctx, q, sessionID).Scan(&cp.ID, &cp.SessionID, &step, &cp.Seq, &cp.StateJSON, &cp.Checksum, &cp.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest checkpoint: %w", err)
	}
	cp.Step = domain.Step(step)
	if Checksum(cp.StateJSON) != cp.Checksum {
		return nil, domain.NewEngineError(domain.ErrCheckpointCorrupt.Code,
			fmt.Sprintf("checkpoint %d of session %s", cp.ID, sessionID))
	}
	return &cp, nil
}

// Decode restores the session state held by cp.
func Decode(cp *domain.Checkpoint) (*domain.SessionState, error) {
	var s domain.SessionState
	if err := json.Unmarshal([]byte(cp.StateJSON), &s); err != nil {
		return nil, domain.WrapEngineError(domain.ErrCheckpointCorrupt.Code, "decode checkpoint", err)
	}
	if s.ResearchState == nil {
		s.ResearchState = map[int]*domain.ResearchSlot{}
	}
	if s.Verdicts == nil {
		s.Verdicts = map[domain.Role]domain.Verdict{}
	}
	if s.RetryCount == nil {
		s.RetryCount = map[domain.Role]int{}
	}
	if s.RetryLimit == nil {
		s.RetryLimit = map[domain.Role]int{}
	}
	return &s, nil
}
