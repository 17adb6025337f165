package offline

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expensync/internal/apiclient"
	"expensync/internal/core"
	"expensync/internal/localstore"
)

type status bool

func (s status) Online() bool { return bool(s) }

type fakeAPI struct {
	createErr error
	photoErr  error
	listErr   error
	remote    []apiclient.Expense
	created   []apiclient.ExpenseInput
	updated   map[int64]apiclient.ExpenseInput
	deleted   []int64
	photos    []string
}

func (f *fakeAPI) CreateExpense(ctx context.Context, in apiclient.ExpenseInput) (apiclient.Expense, error) {
	if f.createErr != nil {
		return apiclient.Expense{}, f.createErr
	}
	f.created = append(f.created, in)
	return apiclient.Expense{ID: int64(len(f.created)), ClientID: in.ClientID, Category: in.Category,
		Description: in.Description, AmountCents: in.AmountCents, Date: in.Date}, nil
}

func (f *fakeAPI) UploadPhoto(ctx context.Context, id int64, path string) (apiclient.Expense, error) {
	if f.photoErr != nil {
		return apiclient.Expense{}, f.photoErr
	}
	f.photos = append(f.photos, path)
	return apiclient.Expense{ID: id, HasPhoto: true, Date: "2025-05-01"}, nil
}

func (f *fakeAPI) ListExpenses(ctx context.Context, opts apiclient.ListOptions) ([]apiclient.Expense, error) {
	return f.remote, f.listErr
}

func (f *fakeAPI) UpdateExpense(ctx context.Context, id int64, in apiclient.ExpenseInput) (apiclient.Expense, error) {
	if f.updated == nil {
		f.updated = map[int64]apiclient.ExpenseInput{}
	}
	f.updated[id] = in
	return apiclient.Expense{ID: id, Category: in.Category, Description: in.Description, AmountCents: in.AmountCents, Date: in.Date}, nil
}

func (f *fakeAPI) DeleteExpense(ctx context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

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

func lunch() Draft {
	return Draft{
		Category:    "Food",
		Description: "lunch",
		Amount:      core.Money{Cents: 1250},
		Date:        time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		Location:    &core.Location{Latitude: 45.4, Longitude: 9.2},
	}
}

func TestAdd_OnlineCreatesRemotely(t *testing.T) {
	api := &fakeAPI{}
	store := newStore(t)
	repo := NewRepository(api, store, status(true), nil)

	d := lunch()
	d.PhotoPath = "/tmp/r.jpg"
	res, err := repo.Add(context.Background(), d)
	require.NoError(t, err)
	assert.False(t, res.Queued)
	assert.True(t, res.Item.HasPhoto)
	require.Len(t, api.created, 1)
	assert.NotEmpty(t, api.created[0].ClientID)
	assert.Equal(t, "2025-05-01", api.created[0].Date)
	require.NotNil(t, api.created[0].Location)
	assert.Equal(t, []string{"/tmp/r.jpg"}, api.photos)

	n, err := store.CountPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAdd_OfflineQueues(t *testing.T) {
	api := &fakeAPI{}
	store := newStore(t)
	repo := NewRepository(api, store, status(false), nil)

	res, err := repo.Add(context.Background(), lunch())
	require.NoError(t, err)
	assert.True(t, res.Queued)
	assert.True(t, res.Item.Pending)
	assert.Empty(t, api.created)

	p, err := store.Get(context.Background(), res.Item.ClientID)
	require.NoError(t, err)
	assert.Equal(t, int64(1250), p.Amount.Cents)
}

func TestAdd_NetworkErrorQueues(t *testing.T) {
	api := &fakeAPI{createErr: unreachable(t)}
	repo := NewRepository(api, newStore(t), status(true), nil)

	res, err := repo.Add(context.Background(), lunch())
	require.NoError(t, err)
	assert.True(t, res.Queued)
}

func TestAdd_PhotoNetworkErrorQueuesWithPhoto(t *testing.T) {
	api := &fakeAPI{photoErr: unreachable(t)}
	store := newStore(t)
	repo := NewRepository(api, store, status(true), nil)

	d := lunch()
	d.PhotoPath = "/tmp/r.jpg"
	res, err := repo.Add(context.Background(), d)
	require.NoError(t, err)
	assert.True(t, res.Queued)

	p, err := store.Get(context.Background(), res.Item.ClientID)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/r.jpg", p.PhotoPath)
	assert.Equal(t, api.created[0].ClientID, p.ClientID, "queued row reuses the client id of the create")
}

func TestAdd_ServerRejectionIsReturned(t *testing.T) {
	api := &fakeAPI{createErr: &apiclient.APIError{Status: http.StatusUnprocessableEntity, Message: "validation failed"}}
	store := newStore(t)
	repo := NewRepository(api, store, status(true), nil)

	_, err := repo.Add(context.Background(), lunch())
	assert.Equal(t, http.StatusUnprocessableEntity, apiclient.StatusOf(err))
	n, _ := store.CountPending(context.Background())
	assert.Zero(t, n)
}

func TestAdd_ServerUnavailableQueues(t *testing.T) {
	ctx := context.Background()
	unavailable := &apiclient.APIError{Status: http.StatusServiceUnavailable}

	t.Run("create", func(t *testing.T) {
		api := &fakeAPI{createErr: unavailable}
		store := newStore(t)
		res, err := NewRepository(api, store, status(true), nil).Add(ctx, lunch())
		require.NoError(t, err)
		assert.True(t, res.Queued)
		n, err := store.CountPending(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("photo", func(t *testing.T) {
		api := &fakeAPI{photoErr: &apiclient.APIError{Status: http.StatusBadGateway}}
		store := newStore(t)
		d := lunch()
		d.PhotoPath = "/tmp/r.jpg"
		res, err := NewRepository(api, store, status(true), nil).Add(ctx, d)
		require.NoError(t, err)
		assert.True(t, res.Queued)
		p, err := store.Get(ctx, res.Item.ClientID)
		require.NoError(t, err)
		assert.Equal(t, "/tmp/r.jpg", p.PhotoPath)
	})
}

func TestAdd_ValidatesLocally(t *testing.T) {
	repo := NewRepository(&fakeAPI{}, newStore(t), status(false), nil)
	d := lunch()
	d.Amount = core.Money{}
	_, err := repo.Add(context.Background(), d)
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
}

func TestList_MergesPendingRows(t *testing.T) {
	api := &fakeAPI{remote: []apiclient.Expense{{ID: 1, ClientID: "r1", Category: "Food", Date: "2025-04-01", AmountCents: 500}}}
	store := newStore(t)
	offlineRepo := NewRepository(api, store, status(false), nil)
	_, err := offlineRepo.Add(context.Background(), lunch())
	require.NoError(t, err)
	other := lunch()
	other.Category = "Travel"
	_, err = offlineRepo.Add(context.Background(), other)
	require.NoError(t, err)

	repo := NewRepository(api, store, status(true), nil)
	res, err := repo.List(context.Background(), apiclient.ListOptions{Category: "food"})
	require.NoError(t, err)
	assert.False(t, res.Offline)
	require.Len(t, res.Items, 2)
	assert.True(t, res.Items[0].Pending, "newest first")
	assert.Equal(t, "2025-05-01", res.Items[0].Date)
	assert.Equal(t, int64(1), res.Items[1].RemoteID)
	assert.Equal(t, "5.00", res.Items[1].AmountText)

	res, err = offlineRepo.List(context.Background(), apiclient.ListOptions{From: "2025-06-01"})
	require.NoError(t, err)
	assert.True(t, res.Offline)
	assert.Empty(t, res.Items)
}

func TestList_NetworkErrorFallsBackToLocal(t *testing.T) {
	api := &fakeAPI{listErr: unreachable(t)}
	store := newStore(t)
	repo := NewRepository(api, store, status(false), nil)
	_, err := repo.Add(context.Background(), lunch())
	require.NoError(t, err)

	res, err := NewRepository(api, store, status(true), nil).List(context.Background(), apiclient.ListOptions{})
	require.NoError(t, err)
	assert.True(t, res.Offline)
	assert.Len(t, res.Items, 1)
}

func TestList_ServerUnavailableFallsBackToLocal(t *testing.T) {
	api := &fakeAPI{listErr: &apiclient.APIError{Status: http.StatusGatewayTimeout}}
	store := newStore(t)
	_, err := NewRepository(api, store, status(false), nil).Add(context.Background(), lunch())
	require.NoError(t, err)

	res, err := NewRepository(api, store, status(true), nil).List(context.Background(), apiclient.ListOptions{})
	require.NoError(t, err)
	assert.True(t, res.Offline)
	assert.Len(t, res.Items, 1)
}

func TestList_PendingRowsOnFirstPageOnly(t *testing.T) {
	api := &fakeAPI{remote: []apiclient.Expense{{ID: 9, ClientID: "r9", Category: "Food", Date: "2025-04-01", AmountCents: 500}}}
	store := newStore(t)
	_, err := NewRepository(api, store, status(false), nil).Add(context.Background(), lunch())
	require.NoError(t, err)
	repo := NewRepository(api, store, status(true), nil)

	res, err := repo.List(context.Background(), apiclient.ListOptions{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, res.Items, 2)

	res, err = repo.List(context.Background(), apiclient.ListOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.False(t, res.Items[0].Pending)
}

func TestUpdateAndDelete_RouteByRef(t *testing.T) {
	api := &fakeAPI{}
	store := newStore(t)
	repo := NewRepository(api, store, status(false), nil)
	ctx := context.Background()

	d := lunch()
	d.PhotoPath = "/tmp/keep.jpg"
	res, err := repo.Add(ctx, d)
	require.NoError(t, err)

	edit := lunch()
	edit.Description = "dinner"
	item, err := repo.Update(ctx, res.Item.ClientID, edit)
	require.NoError(t, err)
	assert.Equal(t, "dinner", item.Description)
	assert.True(t, item.HasPhoto, "photo is kept when the edit has none")
	assert.Empty(t, api.updated)

	item, err = repo.Update(ctx, "42", edit)
	require.NoError(t, err)
	assert.Equal(t, int64(42), item.RemoteID)
	assert.Equal(t, "dinner", api.updated[42].Description)
	assert.Empty(t, api.updated[42].ClientID)

	_, err = repo.Update(ctx, "not-a-ref", edit)
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, repo.Delete(ctx, res.Item.ClientID))
	_, err = store.Get(ctx, res.Item.ClientID)
	assert.ErrorIs(t, err, localstore.ErrNotFound)

	require.NoError(t, repo.Delete(ctx, "7"))
	assert.Equal(t, []int64{7}, api.deleted)
	assert.ErrorIs(t, repo.Delete(ctx, "-3"), core.ErrNotFound)
}
