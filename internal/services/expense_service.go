package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"expensync/internal/amqp"
	"expensync/internal/core"
	"expensync/internal/metrics"
	"expensync/internal/photos"
	"expensync/internal/storage"
)

// ExpenseService owns expense rules on top of the repository, the photo
// store and the event broker.
type ExpenseService struct {
	repo      *storage.Repository
	photos    photos.Store
	maxPhoto  int64
	events    events
	metrics   *metrics.Metrics
	dashboard *DashboardService
	logger    *slog.Logger
}

type ExpenseServiceConfig struct {
	Photos        photos.Store
	PhotoMaxBytes int64
	Publisher     Publisher
	Metrics       *metrics.Metrics
	Dashboard     *DashboardService
	Logger        *slog.Logger
}

func NewExpenseService(repo *storage.Repository, cfg ExpenseServiceConfig) *ExpenseService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	max := cfg.PhotoMaxBytes
	if max <= 0 {
		max = photos.DefaultMaxBytes
	}
	return &ExpenseService{
		repo:      repo,
		photos:    cfg.Photos,
		maxPhoto:  max,
		events:    events{pub: cfg.Publisher, metrics: cfg.Metrics, logger: logger},
		metrics:   cfg.Metrics,
		dashboard: cfg.Dashboard,
		logger:    logger,
	}
}

func normalize(e *core.Expense) {
	e.Category = strings.TrimSpace(e.Category)
	e.Description = strings.TrimSpace(e.Description)
	e.Date = core.Day(e.Date)
	if e.Location != nil {
		e.Location.Address = strings.TrimSpace(e.Location.Address)
	}
}

// Create stores a new expense for userID. When ClientID repeats an earlier
// upload the stored row is returned with created=false.
func (s *ExpenseService) Create(ctx context.Context, userID int64, e core.Expense) (core.Expense, bool, error) {
	e.UserID = userID
	e.ID = 0
	e.PhotoRef = ""
	normalize(&e)
	if e.ClientID == "" {
		e.ClientID = uuid.NewString()
	} else if _, err := uuid.Parse(e.ClientID); err != nil {
		return core.Expense{}, false, fmt.Errorf("%w: client_id must be a UUID", core.ErrInvalidInput)
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, false, err
	}

	saved, err := s.repo.CreateExpense(ctx, e)
	if errors.Is(err, core.ErrConflict) {
		s.logger.InfoContext(ctx, "Replayed expense upload",
			"user_id", userID, "client_id", e.ClientID, "expense_id", saved.ID)
		return saved, false, nil
	}
	if err != nil {
		return core.Expense{}, false, fmt.Errorf("save expense: %w", err)
	}

	s.afterMutation(ctx, amqp.EventExpenseCreated, saved)
	return saved, true, nil
}

func (s *ExpenseService) Get(ctx context.Context, userID, id int64) (core.Expense, error) {
	return s.repo.GetExpense(ctx, userID, id)
}

func (s *ExpenseService) List(ctx context.Context, userID int64, f core.ExpenseFilter) ([]core.Expense, error) {
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return nil, fmt.Errorf("%w: 'to' is before 'from'", core.ErrInvalidDate)
	}
	return s.repo.ListExpenses(ctx, userID, f)
}

// Update replaces the editable fields of an existing expense.
func (s *ExpenseService) Update(ctx context.Context, userID, id int64, changes core.Expense) (core.Expense, error) {
	current, err := s.repo.GetExpense(ctx, userID, id)
	if err != nil {
		return core.Expense{}, err
	}

	current.Category = changes.Category
	current.Description = changes.Description
	current.Amount = changes.Amount
	current.Date = changes.Date
	current.Location = changes.Location
	normalize(&current)
	if err := current.Validate(); err != nil {
		return core.Expense{}, err
	}

	updated, err := s.repo.UpdateExpense(ctx, current)
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}
	s.afterMutation(ctx, amqp.EventExpenseUpdated, updated)
	return updated, nil
}

// Delete removes the expense and its photo.
func (s *ExpenseService) Delete(ctx context.Context, userID, id int64) error {
	current, err := s.repo.GetExpense(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteExpense(ctx, userID, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	s.dropPhoto(ctx, current.PhotoRef)
	s.afterMutation(ctx, amqp.EventExpenseDeleted, current)
	return nil
}

// AttachPhoto stores r as the expense photo, replacing any previous one.
func (s *ExpenseService) AttachPhoto(ctx context.Context, userID, id int64, r io.Reader) (core.Expense, error) {
	if s.photos == nil {
		return core.Expense{}, fmt.Errorf("photo storage: %w", core.ErrUnavailable)
	}
	current, err := s.repo.GetExpense(ctx, userID, id)
	if err != nil {
		return core.Expense{}, err
	}

	data, contentType, err := photos.Sniff(r, s.maxPhoto)
	if err != nil {
		return core.Expense{}, err
	}
	ref, err := s.photos.Save(ctx, contentType, bytes.NewReader(data))
	if err != nil {
		return core.Expense{}, fmt.Errorf("store photo: %w", err)
	}
	if err := s.repo.SetExpensePhoto(ctx, userID, id, ref); err != nil {
		s.dropPhoto(ctx, ref)
		return core.Expense{}, fmt.Errorf("attach photo: %w", err)
	}
	s.metrics.PhotoStored(len(data))
	s.dropPhoto(ctx, current.PhotoRef)

	s.logger.InfoContext(ctx, "Photo attached", "user_id", userID, "expense_id", id, "photo_ref", ref, "bytes", len(data))
	return s.repo.GetExpense(ctx, userID, id)
}

// OpenPhoto streams the photo of an expense. The caller closes the reader.
func (s *ExpenseService) OpenPhoto(ctx context.Context, userID, id int64) (io.ReadCloser, string, error) {
	e, err := s.repo.GetExpense(ctx, userID, id)
	if err != nil {
		return nil, "", err
	}
	if e.PhotoRef == "" || s.photos == nil {
		return nil, "", core.ErrNotFound
	}
	return s.photos.Open(ctx, e.PhotoRef)
}

func (s *ExpenseService) Summary(ctx context.Context, userID int64, f core.ExpenseFilter) (core.Summary, error) {
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return core.Summary{}, fmt.Errorf("%w: 'to' is before 'from'", core.ErrInvalidDate)
	}
	return s.repo.Summary(ctx, userID, f)
}

func (s *ExpenseService) afterMutation(ctx context.Context, t amqp.EventType, e core.Expense) {
	s.metrics.ExpenseMutation(strings.TrimPrefix(string(t), "expense."))
	s.dashboard.Invalidate()

	ev := amqp.NewEvent(t, e.UserID)
	ev.ExpenseID = e.ID
	ev.Category = e.Category
	ev.Description = e.Description
	ev.AmountCents = e.Amount.Cents
	s.events.emit(ctx, ev)
}

func (s *ExpenseService) dropPhoto(ctx context.Context, ref string) {
	if ref == "" || s.photos == nil {
		return
	}
	if err := s.photos.Delete(ctx, ref); err != nil {
		s.logger.WarnContext(ctx, "Failed to delete photo", "photo_ref", ref, "error", err)
	}
}
