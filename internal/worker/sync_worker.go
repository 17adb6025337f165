package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"expensync/internal/apiclient"
	"expensync/internal/localstore"
	applog "expensync/internal/log"
)

// API is what the worker needs from the REST client.
type API interface {
	CreateExpense(ctx context.Context, in apiclient.ExpenseInput) (apiclient.Expense, error)
	UploadPhoto(ctx context.Context, id int64, path string) (apiclient.Expense, error)
}

type Store interface {
	ListPending(ctx context.Context, limit int) ([]localstore.Pending, error)
	MarkUploaded(ctx context.Context, clientID string, remoteID int64) error
	RecordError(ctx context.Context, clientID, msg string) error
	Delete(ctx context.Context, clientID string) error
	PurgeUploaded(ctx context.Context) (int64, error)
}

// Connectivity is satisfied by connectivity.Observer.
type Connectivity interface {
	Online() bool
	Subscribe() <-chan bool
}

type SyncConfig struct {
	Schedule  string // cron spec, e.g. "@every 30s"
	BatchSize int
}

func DefaultSyncConfig() SyncConfig {
	return SyncConfig{Schedule: "@every 30s", BatchSize: 25}
}

// Report summarizes one drain pass.
type Report struct {
	Attempted int  `json:"attempted" yaml:"attempted"`
	Uploaded  int  `json:"uploaded" yaml:"uploaded"`
	Failed    int  `json:"failed" yaml:"failed"`
	Skipped   bool `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Aborted   bool `json:"aborted,omitempty" yaml:"aborted,omitempty"`
}

// SyncWorker uploads expenses queued in the local store.
type SyncWorker struct {
	api    API
	store  Store
	conn   Connectivity
	config SyncConfig
	logger *slog.Logger

	drainMu sync.Mutex

	// Lifecycle management
	mu        sync.Mutex
	running   bool
	scheduler *cron.Cron
	stopCh    chan struct{}
	doneCh    chan struct{}
}

func NewSyncWorker(api API, store Store, conn Connectivity, config SyncConfig, logger *slog.Logger) *SyncWorker {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultSyncConfig().BatchSize
	}
	if config.Schedule == "" {
		config.Schedule = DefaultSyncConfig().Schedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncWorker{api: api, store: store, conn: conn, config: config, logger: logger}
}

// Drain makes one pass over the pending rows. Every row is tried at most
// once. A network error or a 5xx answer stops the pass and leaves the
// remaining rows for the next one. Concurrent calls return immediately with
// Skipped set.
func (w *SyncWorker) Drain(ctx context.Context) (Report, error) {
	if !w.drainMu.TryLock() {
		return Report{Skipped: true}, nil
	}
	defer w.drainMu.Unlock()

	if !w.conn.Online() {
		return Report{Skipped: true}, nil
	}

	if n, err := w.store.PurgeUploaded(ctx); err != nil {
		w.logger.WarnContext(ctx, "Failed to purge uploaded rows", "error", err)
	} else if n > 0 {
		w.logger.DebugContext(ctx, "Purged uploaded rows", "count", n)
	}

	rows, err := w.store.ListPending(ctx, w.config.BatchSize)
	if err != nil {
		return Report{}, fmt.Errorf("list pending expenses: %w", err)
	}
	if len(rows) == 0 {
		return Report{}, nil
	}

	w.logger.InfoContext(ctx, "Syncing pending expenses", "count", len(rows))

	var rep Report
	for _, p := range rows {
		if ctx.Err() != nil {
			rep.Aborted = true
			break
		}
		rep.Attempted++

		if err := w.upload(ctx, p); err != nil {
			rep.Failed++
			if recErr := w.store.RecordError(ctx, p.ClientID, err.Error()); recErr != nil {
				w.logger.ErrorContext(ctx, "Failed to record sync error", applog.FieldClientID, p.ClientID, "error", recErr)
			}
			if apiclient.IsUnavailable(err) {
				w.logger.WarnContext(ctx, "Server unreachable, stopping sync pass", applog.FieldClientID, p.ClientID, "error", err)
				rep.Aborted = true
				break
			}
			w.logger.ErrorContext(ctx, "Failed to sync expense", applog.FieldClientID, p.ClientID, "error", err)
			continue
		}
		rep.Uploaded++
	}

	w.logger.InfoContext(ctx, "Sync pass completed",
		"attempted", rep.Attempted,
		applog.FieldUploaded, rep.Uploaded,
		applog.FieldFailed, rep.Failed,
		"aborted", rep.Aborted)
	return rep, nil
}

// upload creates the expense with its client id, then attaches the photo.
// A row whose photo failed earlier replays the create, which the server
// answers with the stored expense.
func (w *SyncWorker) upload(ctx context.Context, p localstore.Pending) error {
	in := apiclient.ExpenseInput{
		ClientID:    p.ClientID,
		Category:    p.Category,
		Description: p.Description,
		AmountCents: p.Amount.Cents,
		Date:        p.Date.Format("2006-01-02"),
	}
	if p.Location != nil {
		in.Location = &apiclient.Location{Latitude: p.Location.Latitude, Longitude: p.Location.Longitude, Address: p.Location.Address}
	}

	created, err := w.api.CreateExpense(ctx, in)
	if err != nil {
		return fmt.Errorf("create expense: %w", err)
	}
	if p.PhotoPath != "" && !created.HasPhoto {
		if _, err := w.api.UploadPhoto(ctx, created.ID, p.PhotoPath); err != nil {
			return fmt.Errorf("upload photo: %w", err)
		}
	}

	if err := w.store.MarkUploaded(ctx, p.ClientID, created.ID); err != nil {
		return fmt.Errorf("mark uploaded: %w", err)
	}
	if err := w.store.Delete(ctx, p.ClientID); err != nil {
		// Uploaded rows are purged by the next pass.
		w.logger.WarnContext(ctx, "Failed to delete uploaded row", applog.FieldClientID, p.ClientID, "error", err)
	}
	w.logger.DebugContext(ctx, "Expense synced", applog.FieldClientID, p.ClientID, "id", created.ID)
	return nil
}

// Start drains on the cron schedule and on every offline to online
// transition. Returns an error if already running.
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("sync worker is already running")
	}

	triggerCh := make(chan struct{}, 1)
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(w.config.Schedule, func() { trigger(triggerCh) }); err != nil {
		return fmt.Errorf("invalid sync schedule %q: %w", w.config.Schedule, err)
	}

	w.running = true
	w.scheduler = scheduler
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	transitions := w.conn.Subscribe()
	scheduler.Start()
	go w.runLoop(ctx, transitions, triggerCh, w.stopCh, w.doneCh)

	w.logger.InfoContext(ctx, "Sync worker started",
		"schedule", w.config.Schedule,
		"batch_size", w.config.BatchSize)
	return nil
}

// Stop waits for the current pass to finish or ctx to expire.
func (w *SyncWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	scheduler, stopCh, doneCh := w.scheduler, w.stopCh, w.doneCh
	w.mu.Unlock()

	<-scheduler.Stop().Done()
	close(stopCh)

	select {
	case <-doneCh:
		w.logger.InfoContext(ctx, "Sync worker stopped gracefully")
		return nil
	case <-ctx.Done():
		w.logger.WarnContext(ctx, "Sync worker stop timed out")
		return ctx.Err()
	}
}

func (w *SyncWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Run starts the worker and blocks until ctx is cancelled.
func (w *SyncWorker) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return w.Stop(stopCtx)
}

func (w *SyncWorker) runLoop(ctx context.Context, transitions <-chan bool, triggerCh, stopCh <-chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)

	// Drain once on startup
	w.drainLogged(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case online := <-transitions:
			if online {
				w.drainLogged(ctx)
			}
		case <-triggerCh:
			w.drainLogged(ctx)
		}
	}
}

func (w *SyncWorker) drainLogged(ctx context.Context) {
	if _, err := w.Drain(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Sync pass failed", "error", err)
	}
}

func trigger(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
