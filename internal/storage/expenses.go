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

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

type expenseRow struct {
	ID          int64           `db:"id"`
	UserID      int64           `db:"user_id"`
	ClientID    string          `db:"client_id"`
	Category    string          `db:"category"`
	Description string          `db:"description"`
	AmountCents int64           `db:"amount_cents"`
	SpentAt     time.Time       `db:"spent_at"`
	PhotoRef    string          `db:"photo_ref"`
	Latitude    sql.NullFloat64 `db:"latitude"`
	Longitude   sql.NullFloat64 `db:"longitude"`
	Address     string          `db:"address"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

const expenseColumns = `id, user_id, client_id, category, description, amount_cents, spent_at,
	photo_ref, latitude, longitude, address, created_at, updated_at`

func (e expenseRow) toCore() core.Expense {
	out := core.Expense{
		ID:          e.ID,
		UserID:      e.UserID,
		ClientID:    e.ClientID,
		Category:    e.Category,
		Description: e.Description,
		Amount:      core.Money{Cents: e.AmountCents},
		Date:        core.Day(e.SpentAt.UTC()),
		PhotoRef:    e.PhotoRef,
		CreatedAt:   e.CreatedAt.UTC(),
		UpdatedAt:   e.UpdatedAt.UTC(),
	}
	if e.Latitude.Valid && e.Longitude.Valid {
		out.Location = &core.Location{
			Latitude:  e.Latitude.Float64,
			Longitude: e.Longitude.Float64,
			Address:   e.Address,
		}
	}
	return out
}

func locationArgs(l *core.Location) (sql.NullFloat64, sql.NullFloat64, string) {
	if l == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}, ""
	}
	return sql.NullFloat64{Float64: l.Latitude, Valid: true},
		sql.NullFloat64{Float64: l.Longitude, Valid: true},
		l.Address
}

// CreateExpense inserts e. When a row with the same (user_id, client_id)
// already exists, the stored row is returned together with core.ErrConflict
// so callers can treat a replayed upload as success.
func (r *Repository) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	now := r.now()
	lat, lon, addr := locationArgs(e.Location)

	var id int64
	err := r.db.QueryRowxContext(ctx, r.q(`
		INSERT INTO expenses (user_id, client_id, category, description, amount_cents, spent_at,
			photo_ref, latitude, longitude, address, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, client_id) DO NOTHING
		RETURNING id`),
		e.UserID, e.ClientID, e.Category, e.Description, e.Amount.Cents, core.Day(e.Date),
		e.PhotoRef, lat, lon, addr, now, now,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		existing, gerr := r.GetExpenseByClientID(ctx, e.UserID, e.ClientID)
		if gerr != nil {
			return core.Expense{}, fmt.Errorf("load existing expense %s: %w", e.ClientID, gerr)
		}
		return existing, core.ErrConflict
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	e.ID = id
	e.Date = core.Day(e.Date)
	e.CreatedAt = now
	e.UpdatedAt = now
	return e, nil
}

func (r *Repository) GetExpense(ctx context.Context, userID, id int64) (core.Expense, error) {
	var row expenseRow
	err := r.db.GetContext(ctx, &row,
		r.q(`SELECT `+expenseColumns+` FROM expenses WHERE id = ? AND user_id = ?`), id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, core.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %d: %w", id, err)
	}
	return row.toCore(), nil
}

func (r *Repository) GetExpenseByClientID(ctx context.Context, userID int64, clientID string) (core.Expense, error) {
	var row expenseRow
	err := r.db.GetContext(ctx, &row,
		r.q(`SELECT `+expenseColumns+` FROM expenses WHERE user_id = ? AND client_id = ?`), userID, clientID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, core.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense by client id: %w", err)
	}
	return row.toCore(), nil
}

// filterClause builds the WHERE clause shared by listings and summaries.
// userID 0 matches every user.
func filterClause(userID int64, f core.ExpenseFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if userID != 0 {
		conds = append(conds, "user_id = ?")
		args = append(args, userID)
	}
	if !f.From.IsZero() {
		conds = append(conds, "spent_at >= ?")
		args = append(args, core.Day(f.From))
	}
	if !f.To.IsZero() {
		conds = append(conds, "spent_at <= ?")
		args = append(args, core.Day(f.To))
	}
	if f.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, f.Category)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListExpenses returns the user's expenses newest first.
func (r *Repository) ListExpenses(ctx context.Context, userID int64, f core.ExpenseFilter) ([]core.Expense, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	where, args := filterClause(userID, f)
	args = append(args, limit, offset)

	var rows []expenseRow
	query := `SELECT ` + expenseColumns + ` FROM expenses` + where + ` ORDER BY spent_at DESC, id DESC LIMIT ? OFFSET ?`
	if err := r.db.SelectContext(ctx, &rows, r.q(query), args...); err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}

	out := make([]core.Expense, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toCore())
	}
	return out, nil
}

// UpdateExpense overwrites the editable fields of e and returns the stored row.
func (r *Repository) UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	lat, lon, addr := locationArgs(e.Location)
	err := r.execOne(ctx, fmt.Sprintf("update expense %d", e.ID), `
		UPDATE expenses
		SET category = ?, description = ?, amount_cents = ?, spent_at = ?,
		    latitude = ?, longitude = ?, address = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		e.Category, e.Description, e.Amount.Cents, core.Day(e.Date),
		lat, lon, addr, r.now(), e.ID, e.UserID)
	if err != nil {
		return core.Expense{}, err
	}
	return r.GetExpense(ctx, e.UserID, e.ID)
}

// SetExpensePhoto replaces the photo reference of an expense.
func (r *Repository) SetExpensePhoto(ctx context.Context, userID, id int64, ref string) error {
	return r.execOne(ctx, fmt.Sprintf("set photo of expense %d", id),
		`UPDATE expenses SET photo_ref = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		ref, r.now(), id, userID)
}

func (r *Repository) DeleteExpense(ctx context.Context, userID, id int64) error {
	return r.execOne(ctx, fmt.Sprintf("delete expense %d", id),
		`DELETE FROM expenses WHERE id = ? AND user_id = ?`, id, userID)
}

// PhotoRefs lists the non-empty photo references owned by a user.
func (r *Repository) PhotoRefs(ctx context.Context, userID int64) ([]string, error) {
	var refs []string
	err := r.db.SelectContext(ctx, &refs,
		r.q(`SELECT photo_ref FROM expenses WHERE user_id = ? AND photo_ref <> ''`), userID)
	if err != nil {
		return nil, fmt.Errorf("list photo refs: %w", err)
	}
	return refs, nil
}

type categoryRow struct {
	Category string `db:"category"`
	Total    int64  `db:"total"`
	Count    int    `db:"n"`
}

// Summary totals expenses in the filter window grouped by category, largest
// first. userID 0 summarises every user.
func (r *Repository) Summary(ctx context.Context, userID int64, f core.ExpenseFilter) (core.Summary, error) {
	where, args := filterClause(userID, f)

	var rows []categoryRow
	query := `SELECT category, COALESCE(SUM(amount_cents), 0) AS total, COUNT(*) AS n
		FROM expenses` + where + ` GROUP BY category ORDER BY total DESC, category`
	if err := r.db.SelectContext(ctx, &rows, r.q(query), args...); err != nil {
		return core.Summary{}, fmt.Errorf("summarise expenses: %w", err)
	}

	s := core.Summary{ByCategory: make([]core.CategoryAmount, 0, len(rows))}
	for _, row := range rows {
		s.Total.Cents += row.Total
		s.Count += row.Count
		s.ByCategory = append(s.ByCategory, core.CategoryAmount{
			Name:   row.Category,
			Amount: core.Money{Cents: row.Total},
			Count:  row.Count,
		})
	}
	return s, nil
}
