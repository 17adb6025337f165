// Package localstore keeps expenses created while the API was unreachable
// in a SQLite file on the client.
package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"expensync/internal/core"
)

var ErrNotFound = errors.New("pending expense not found")

// Pending is a locally stored expense waiting for upload.
type Pending struct {
	ClientID    string
	Category    string
	Description string
	Amount      core.Money
	Date        time.Time
	PhotoPath   string
	Location    *core.Location
	Uploaded    bool
	RemoteID    int64
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type pendingRow struct {
	ClientID    string          `db:"client_id"`
	Category    string          `db:"category"`
	Description string          `db:"description"`
	AmountCents int64           `db:"amount_cents"`
	SpentAt     time.Time       `db:"spent_at"`
	PhotoPath   string          `db:"photo_path"`
	Latitude    sql.NullFloat64 `db:"latitude"`
	Longitude   sql.NullFloat64 `db:"longitude"`
	Address     string          `db:"address"`
	Uploaded    bool            `db:"is_uploaded"`
	RemoteID    int64           `db:"remote_id"`
	LastError   string          `db:"last_error"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

const pendingColumns = `client_id, category, description, amount_cents, spent_at, photo_path,
	latitude, longitude, address, is_uploaded, remote_id, last_error, created_at, updated_at`

func (r pendingRow) toPending() Pending {
	p := Pending{
		ClientID:    r.ClientID,
		Category:    r.Category,
		Description: r.Description,
		Amount:      core.Money{Cents: r.AmountCents},
		Date:        core.Day(r.SpentAt.UTC()),
		PhotoPath:   r.PhotoPath,
		Uploaded:    r.Uploaded,
		RemoteID:    r.RemoteID,
		LastError:   r.LastError,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
	if r.Latitude.Valid && r.Longitude.Valid {
		p.Location = &core.Location{Latitude: r.Latitude.Float64, Longitude: r.Longitude.Float64, Address: r.Address}
	}
	return p
}

type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// Open creates or opens the local database at path and migrates it.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create local db directory: %w", err)
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_time_format=sqlite"

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open local database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping local database: %w", err)
	}
	if err := runMigrations(dsn); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func validate(p Pending) error {
	if strings.TrimSpace(p.ClientID) == "" {
		return fmt.Errorf("%w: client id is required", core.ErrInvalidInput)
	}
	e := core.Expense{Category: p.Category, Description: p.Description, Amount: p.Amount, Date: p.Date, Location: p.Location}
	return e.Validate()
}

func locationArgs(l *core.Location) (sql.NullFloat64, sql.NullFloat64, string) {
	if l == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}, ""
	}
	return sql.NullFloat64{Float64: l.Latitude, Valid: true}, sql.NullFloat64{Float64: l.Longitude, Valid: true}, l.Address
}

// Save inserts p as a pending row. Saving an existing client id fails with
// core.ErrConflict.
func (s *Store) Save(ctx context.Context, p Pending) (Pending, error) {
	if err := validate(p); err != nil {
		return Pending{}, err
	}
	now := s.now()
	lat, lon, addr := locationArgs(p.Location)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_expenses (client_id, category, description, amount_cents, spent_at,
			photo_path, latitude, longitude, address, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (client_id) DO NOTHING`,
		p.ClientID, p.Category, p.Description, p.Amount.Cents, core.Day(p.Date),
		p.PhotoPath, lat, lon, addr, now, now)
	if err != nil {
		return Pending{}, fmt.Errorf("insert pending expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Pending{}, core.ErrConflict
	}
	return s.Get(ctx, p.ClientID)
}

func (s *Store) Get(ctx context.Context, clientID string) (Pending, error) {
	var row pendingRow
	err := s.db.GetContext(ctx, &row, `SELECT `+pendingColumns+` FROM pending_expenses WHERE client_id = ?`, clientID)
	if errors.Is(err, sql.ErrNoRows) {
		return Pending{}, ErrNotFound
	}
	if err != nil {
		return Pending{}, fmt.Errorf("get pending expense: %w", err)
	}
	return row.toPending(), nil
}

// ListPending returns up to limit rows not yet uploaded, oldest first.
func (s *Store) ListPending(ctx context.Context, limit int) ([]Pending, error) {
	if limit <= 0 {
		limit = 25
	}
	return s.list(ctx, `SELECT `+pendingColumns+` FROM pending_expenses
		WHERE is_uploaded = 0 ORDER BY created_at, client_id LIMIT ?`, limit)
}

// ListAll returns every local row, uploaded or not.
func (s *Store) ListAll(ctx context.Context) ([]Pending, error) {
	return s.list(ctx, `SELECT `+pendingColumns+` FROM pending_expenses ORDER BY created_at, client_id`)
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]Pending, error) {
	var rows []pendingRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list pending expenses: %w", err)
	}
	out := make([]Pending, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toPending())
	}
	return out, nil
}

// Update replaces the editable fields of a row that is still pending and
// clears its last error.
func (s *Store) Update(ctx context.Context, p Pending) (Pending, error) {
	if err := validate(p); err != nil {
		return Pending{}, err
	}
	lat, lon, addr := locationArgs(p.Location)
	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_expenses SET category = ?, description = ?, amount_cents = ?, spent_at = ?,
			photo_path = ?, latitude = ?, longitude = ?, address = ?, last_error = '', updated_at = ?
		WHERE client_id = ? AND is_uploaded = 0`,
		p.Category, p.Description, p.Amount.Cents, core.Day(p.Date), p.PhotoPath, lat, lon, addr, s.now(), p.ClientID)
	if err != nil {
		return Pending{}, fmt.Errorf("update pending expense: %w", err)
	}
	if err := expectOne(res); err != nil {
		return Pending{}, err
	}
	return s.Get(ctx, p.ClientID)
}

func (s *Store) MarkUploaded(ctx context.Context, clientID string, remoteID int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_expenses SET is_uploaded = 1, remote_id = ?, last_error = '', updated_at = ?
		WHERE client_id = ?`, remoteID, s.now(), clientID)
	if err != nil {
		return fmt.Errorf("mark expense uploaded: %w", err)
	}
	return expectOne(res)
}

// RecordError stores the reason of the last failed upload attempt.
func (s *Store) RecordError(ctx context.Context, clientID, msg string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_expenses SET last_error = ?, updated_at = ? WHERE client_id = ?`,
		msg, s.now(), clientID)
	if err != nil {
		return fmt.Errorf("record upload error: %w", err)
	}
	return expectOne(res)
}

func (s *Store) Delete(ctx context.Context, clientID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pending_expenses WHERE client_id = ?`, clientID)
	if err != nil {
		return fmt.Errorf("delete pending expense: %w", err)
	}
	return expectOne(res)
}

// PurgeUploaded removes rows already uploaded and returns how many went.
func (s *Store) PurgeUploaded(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pending_expenses WHERE is_uploaded = 1`)
	if err != nil {
		return 0, fmt.Errorf("purge uploaded expenses: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) CountPending(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM pending_expenses WHERE is_uploaded = 0`); err != nil {
		return 0, fmt.Errorf("count pending expenses: %w", err)
	}
	return n, nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
