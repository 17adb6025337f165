package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"expensync/internal/core"
)

type userRow struct {
	ID           int64        `db:"id"`
	Email        string       `db:"email"`
	Name         string       `db:"name"`
	PasswordHash string       `db:"password_hash"`
	Role         string       `db:"role"`
	Disabled     bool         `db:"disabled"`
	CreatedAt    time.Time    `db:"created_at"`
	LastLoginAt  sql.NullTime `db:"last_login_at"`
}

const userColumns = `id, email, name, password_hash, role, disabled, created_at, last_login_at`

func (u userRow) toCore() core.User {
	out := core.User{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		Role:         core.Role(u.Role),
		Disabled:     u.Disabled,
		CreatedAt:    u.CreatedAt.UTC(),
	}
	if u.LastLoginAt.Valid {
		t := u.LastLoginAt.Time.UTC()
		out.LastLoginAt = &t
	}
	return out
}

// CreateUser inserts u and returns it with ID and CreatedAt set. A duplicate
// email yields core.ErrConflict.
func (r *Repository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Role == "" {
		u.Role = core.RoleUser
	}
	u.CreatedAt = r.now()

	var id int64
	err := r.db.QueryRowxContext(ctx, r.q(`
		INSERT INTO users (email, name, password_hash, role, disabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (email) DO NOTHING
		RETURNING id`),
		u.Email, u.Name, u.PasswordHash, string(u.Role), u.Disabled, u.CreatedAt,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, fmt.Errorf("create user %s: %w", u.Email, core.ErrConflict)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	u.ID = id
	return u, nil
}

func (r *Repository) GetUser(ctx context.Context, id int64) (core.User, error) {
	var row userRow
	err := r.db.GetContext(ctx, &row, r.q(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user %d: %w", id, err)
	}
	return row.toCore(), nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	var row userRow
	email = strings.ToLower(strings.TrimSpace(email))
	err := r.db.GetContext(ctx, &row, r.q(`SELECT `+userColumns+` FROM users WHERE email = ?`), email)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user by email: %w", err)
	}
	return row.toCore(), nil
}

func (r *Repository) ListUsers(ctx context.Context) ([]core.User, error) {
	var rows []userRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+userColumns+` FROM users ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := make([]core.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toCore())
	}
	return users, nil
}

func (r *Repository) UpdateUserRole(ctx context.Context, id int64, role core.Role) error {
	return r.execOne(ctx, fmt.Sprintf("update role of user %d", id),
		`UPDATE users SET role = ? WHERE id = ?`, string(role), id)
}

func (r *Repository) SetUserDisabled(ctx context.Context, id int64, disabled bool) error {
	return r.execOne(ctx, fmt.Sprintf("set disabled on user %d", id),
		`UPDATE users SET disabled = ? WHERE id = ?`, disabled, id)
}

// DeleteUser removes the user; expenses and push tokens go with it.
func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	return r.execOne(ctx, fmt.Sprintf("delete user %d", id), `DELETE FROM users WHERE id = ?`, id)
}

// TouchLogin records a successful login.
func (r *Repository) TouchLogin(ctx context.Context, id int64) error {
	return r.execOne(ctx, fmt.Sprintf("touch login of user %d", id),
		`UPDATE users SET last_login_at = ? WHERE id = ?`, r.now(), id)
}

// UserCounts holds aggregate user numbers for the admin dashboard.
type UserCounts struct {
	Total    int `db:"total"`
	Admins   int `db:"admins"`
	Disabled int `db:"disabled"`
}

func (r *Repository) CountUsers(ctx context.Context) (UserCounts, error) {
	var c UserCounts
	err := r.db.GetContext(ctx, &c, r.q(`
		SELECT COUNT(*) AS total,
		       COALESCE(SUM(CASE WHEN role = ? THEN 1 ELSE 0 END), 0) AS admins,
		       COALESCE(SUM(CASE WHEN disabled THEN 1 ELSE 0 END), 0) AS disabled
		FROM users`), string(core.RoleAdmin))
	if err != nil {
		return UserCounts{}, fmt.Errorf("count users: %w", err)
	}
	return c, nil
}

// execOne runs a statement expected to touch exactly one row and maps zero
// affected rows to core.ErrNotFound.
func (r *Repository) execOne(ctx context.Context, what, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, r.q(query), args...)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", what, err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}
