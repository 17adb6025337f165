package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expensync/internal/apiclient"
	"expensync/internal/core"
	"expensync/internal/localstore"
)

type fakeConn struct {
	online atomic.Bool
	ch     chan bool
}

func newFakeConn(online bool) *fakeConn {
	c := &fakeConn{ch: make(chan bool, 1)}
	c.online.Store(online)
	return c
}

func (c *fakeConn) Online() bool { return c.online.Load() }
func (c *fakeConn) Subscribe() <-chan bool { return c.ch }

// fakeAPI behaves like the server: creates are idempotent on client id.
type fakeAPI struct {
	mu         sync.Mutex
	byClient   map[string]apiclient.Expense
	creates    int
	photos     int
	failNext   map[string]error
	photoErr   error
	nextID     int64
	createHook func()
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{byClient: map[string]apiclient.Expense{}, failNext: map[string]error{}}
}

func (f *fakeAPI) CreateExpense(ctx context.Context, in apiclient.ExpenseInput) (apiclient.Expense, error) {
	if f.createHook != nil {
		f.createHook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if err, ok := f.failNext[in.ClientID]; ok {
		delete(f.failNext, in.ClientID)
		return apiclient.Expense{}, err
	}
	if e, ok := f.byClient[in.ClientID]; ok {
		return e, nil
	}
	f.nextID++
	e := apiclient.Expense{ID: f.nextID, ClientID: in.ClientID, Category: in.Category, AmountCents: in.AmountCents, Date: in.Date}
	f.byClient[in.ClientID] = e
	return e, nil
}

func (f *fakeAPI) UploadPhoto(ctx context.Context, id int64, path string) (apiclient.Expense, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.photos++
	if f.photoErr != nil {
		err := f.photoErr
		f.photoErr = nil
		return apiclient.Expense{}, err
	}
	for k, e := range f.byClient {
		if e.ID == id {
			e.HasPhoto = true
			f.byClient[k] = e
			return e, nil
		}
	}
	return apiclient.Expense{}, &apiclient.APIError{Status: http.StatusNotFound}
}

// unreachable is built the way the client builds transport errors.
func unreachable(t *testing.T) error {
	t.Helper()
	err := apiclient.New("http://127.0.0.1:1", time.Second).Health(context.Background())
	require.True(t, apiclient.IsNetworkError(err))
	return err
}

func newStore(t *testing.T) *localstore.Store {
	t.Helper()
	s, err := localstore.Open(context.Background(), filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func queue(t *testing.T, s *localstore.Store, clientID, photo string) {
	t.Helper()
	_, err := s.Save(context.Background(), localstore.Pending{
		ClientID:    clientID,
		Category:    "Food",
		Description: "lunch " + clientID,
		Amount:      core.Money{Cents: 1000},
		Date:        time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		PhotoPath:   photo,
	})
	require.NoError(t, err)
}

func TestDrain_OfflineIsNoop(t *testing.T) {
	store := newStore(t)
	queue(t, store, "a", "")
	api := newFakeAPI()
	w := NewSyncWorker(api, store, newFakeConn(false), DefaultSyncConfig(), nil)

	rep, err := w.Drain(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.Skipped)
	assert.Zero(t, api.creates)
}

func TestDrain_UploadsAndDeletesRows(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		queue(t, store, fmt.Sprintf("c-%d", i), "")
	}
	api := newFakeAPI()
	w := NewSyncWorker(api, store, newFakeConn(true), SyncConfig{BatchSize: 2}, nil)

	rep, err := w.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Attempted: 2, Uploaded: 2}, rep)

	n, err := store.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1, "uploaded rows are removed")

	rep, err = w.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Uploaded)
	assert.Len(t, api.byClient, 3)
}

func TestDrain_RecordsErrorAndContinues(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	queue(t, store, "bad", "")
	queue(t, store, "good", "")
	api := newFakeAPI()
	api.failNext["bad"] = &apiclient.APIError{Status: http.StatusUnprocessableEntity, Message: "validation failed"}
	w := NewSyncWorker(api, store, newFakeConn(true), DefaultSyncConfig(), nil)

	rep, err := w.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Attempted: 2, Uploaded: 1, Failed: 1}, rep)

	bad, err := store.Get(ctx, "bad")
	require.NoError(t, err)
	assert.Contains(t, bad.LastError, "validation failed")
	assert.False(t, bad.Uploaded)
	_, err = store.Get(ctx, "good")
	assert.ErrorIs(t, err, localstore.ErrNotFound)
}

func TestDrain_NetworkErrorAbortsPass(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	queue(t, store, "first", "")
	queue(t, store, "second", "")
	api := newFakeAPI()
	api.failNext["first"] = unreachable(t)
	w := NewSyncWorker(api, store, newFakeConn(true), DefaultSyncConfig(), nil)

	rep, err := w.Drain(ctx)
	require.NoError(t, err)
	assert.True(t, rep.Aborted)
	assert.Equal(t, 1, rep.Attempted)
	assert.Equal(t, 1, api.creates)

	n, err := store.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDrain_ServerUnavailableAbortsPass(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	queue(t, store, "first", "")
	queue(t, store, "second", "")
	api := newFakeAPI()
	api.failNext["first"] = &apiclient.APIError{Status: http.StatusServiceUnavailable}
	w := NewSyncWorker(api, store, newFakeConn(true), DefaultSyncConfig(), nil)

	rep, err := w.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Attempted: 1, Failed: 1, Aborted: true}, rep)
	assert.Equal(t, 1, api.creates)

	first, err := store.Get(ctx, "first")
	require.NoError(t, err)
	assert.Contains(t, first.LastError, "503")

	rep, err = w.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Uploaded)
}

func TestDrain_PhotoFailureReplaysCreate(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	queue(t, store, "p", "/tmp/receipt.jpg")
	api := newFakeAPI()
	api.photoErr = unreachable(t)
	w := NewSyncWorker(api, store, newFakeConn(true), DefaultSyncConfig(), nil)

	rep, err := w.Drain(ctx)
	require.NoError(t, err)
	assert.True(t, rep.Aborted)

	rep, err = w.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Uploaded)
	assert.Equal(t, 2, api.creates)
	assert.Len(t, api.byClient, 1, "replayed create must not duplicate")
	assert.True(t, api.byClient["p"].HasPhoto)
	assert.Equal(t, 2, api.photos)
}

func TestDrain_NeverOverlaps(t *testing.T) {
	store := newStore(t)
	queue(t, store, "slow", "")
	api := newFakeAPI()
	entered := make(chan struct{})
	release := make(chan struct{})
	api.createHook = func() {
		close(entered)
		<-release
	}
	w := NewSyncWorker(api, store, newFakeConn(true), DefaultSyncConfig(), nil)

	done := make(chan Report)
	go func() {
		rep, _ := w.Drain(context.Background())
		done <- rep
	}()
	<-entered

	rep, err := w.Drain(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.Skipped)

	close(release)
	first := <-done
	assert.Equal(t, 1, first.Uploaded)
}

func TestSyncWorker_StartDrainsOnReconnect(t *testing.T) {
	store := newStore(t)
	conn := newFakeConn(false)
	api := newFakeAPI()
	w := NewSyncWorker(api, store, conn, SyncConfig{Schedule: "@every 1h", BatchSize: 10}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	assert.True(t, w.IsRunning())
	assert.Error(t, w.Start(ctx), "second start must fail")

	queue(t, store, "later", "")
	conn.online.Store(true)
	conn.ch <- true

	require.Eventually(t, func() bool {
		n, err := store.CountPending(context.Background())
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	require.NoError(t, w.Stop(stopCtx))
	assert.False(t, w.IsRunning())
	require.NoError(t, w.Stop(stopCtx))
}

func TestSyncWorker_InvalidSchedule(t *testing.T) {
	w := NewSyncWorker(newFakeAPI(), newStore(t), newFakeConn(true), SyncConfig{Schedule: "sometimes"}, nil)
	err := w.Start(context.Background())
	require.Error(t, err)
	assert.False(t, w.IsRunning())
	assert.False(t, errors.Is(err, context.Canceled))
}
