package storage

import (
	"context"
	"fmt"
	"time"

	"expensync/internal/core"
)

type pushTokenRow struct {
	Token     string    `db:"token"`
	UserID    int64     `db:"user_id"`
	Platform  string    `db:"platform"`
	CreatedAt time.Time `db:"created_at"`
}

// UpsertPushToken registers a device token. A token moving to another
// account is reassigned.
func (r *Repository) UpsertPushToken(ctx context.Context, t core.PushToken) error {
	_, err := r.db.ExecContext(ctx, r.q(`
		INSERT INTO push_tokens (token, user_id, platform, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (token) DO UPDATE SET user_id = excluded.user_id, platform = excluded.platform`),
		t.Token, t.UserID, t.Platform, r.now())
	if err != nil {
		return fmt.Errorf("upsert push token: %w", err)
	}
	return nil
}

// DeletePushToken removes a token owned by userID.
func (r *Repository) DeletePushToken(ctx context.Context, userID int64, token string) error {
	return r.execOne(ctx, "delete push token",
		`DELETE FROM push_tokens WHERE token = ? AND user_id = ?`, token, userID)
}

// ForgetPushToken removes a token regardless of owner. Missing tokens are
// not an error.
func (r *Repository) ForgetPushToken(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, r.q(`DELETE FROM push_tokens WHERE token = ?`), token); err != nil {
		return fmt.Errorf("forget push token: %w", err)
	}
	return nil
}

// ListPushTokens returns the tokens of userID, or of every user when userID
// is 0. Tokens of disabled users are skipped.
func (r *Repository) ListPushTokens(ctx context.Context, userID int64) ([]core.PushToken, error) {
	query := `SELECT t.token, t.user_id, t.platform, t.created_at
		FROM push_tokens t JOIN users u ON u.id = t.user_id
		WHERE NOT u.disabled`
	var args []any
	if userID != 0 {
		query += ` AND t.user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY t.created_at`

	var rows []pushTokenRow
	if err := r.db.SelectContext(ctx, &rows, r.q(query), args...); err != nil {
		return nil, fmt.Errorf("list push tokens: %w", err)
	}
	out := make([]core.PushToken, 0, len(rows))
	for _, row := range rows {
		out = append(out, core.PushToken{
			UserID:    row.UserID,
			Token:     row.Token,
			Platform:  row.Platform,
			CreatedAt: row.CreatedAt.UTC(),
		})
	}
	return out, nil
}

func (r *Repository) CountPushTokens(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM push_tokens`); err != nil {
		return 0, fmt.Errorf("count push tokens: %w", err)
	}
	return n, nil
}
