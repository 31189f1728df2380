package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rogers-f/deliberate/internal/domain"
)

// UsageRepo handles persistence for per-call token usage.
type UsageRepo struct{}

// Create inserts a usage record.
func (r *UsageRepo) Create(ctx context.Context, db *sql.DB, u domain.Usage, now int64) error {
	const q = `INSERT INTO usage (session_id, agent, provider, model, input_tokens, output_tokens, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q,
		u.SessionID,
		string(u.Agent),
		u.Provider,
		u.Model,
		u.InputTokens,
		u.OutputTokens,
		now,
	)
	if err != nil {
		return fmt.Errorf("create usage: %w", err)
	}
	return nil
}

// ListBySession returns all usage rows for a session in insertion order.
func (r *UsageRepo) ListBySession(ctx context.Context, db *sql.DB, sessionID string) ([]domain.Usage, error) {
	const q = `SELECT session_id, agent, provider, model, input_tokens, output_tokens
FROM usage
WHERE session_id = ?
ORDER BY id ASC`

	rows, err := db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list usage: %w", err)
	}
	defer rows.Close()

	var out []domain.Usage
	for rows.Next() {
		var u domain.Usage
		var agent string
		if err := rows.Scan(&u.SessionID, &agent, &u.Provider, &u.Model, &u.InputTokens, &u.OutputTokens); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		u.Agent = domain.AgentID(agent)
		out = append(out, u)
	}
	return out, rows.Err()
}

// Totals sums usage for a session.
func (r *UsageRepo) Totals(ctx context.Context, db *sql.DB, sessionID string) (in, out int64, err error) {
	const q = `SELECT COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0) FROM usage WHERE session_id = ?`
	if err := db.QueryRowContext(ctx, q, sessionID).Scan(&in, &out); err != nil {
		return 0, 0, fmt.Errorf("usage totals: %w", err)
	}
	return in, out, nil
}
