package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expensync/internal/core"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func createUser(t *testing.T, repo *Repository, email string) core.User {
	t.Helper()
	u, err := repo.CreateUser(context.Background(), core.User{Email: email, Name: "Test", PasswordHash: "hash"})
	require.NoError(t, err)
	return u
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newExpense(userID int64, category string, cents int64, date time.Time) core.Expense {
	return core.Expense{
		UserID:      userID,
		ClientID:    uuid.NewString(),
		Category:    category,
		Description: category + " expense",
		Amount:      core.Money{Cents: cents},
		Date:        date,
	}
}

func TestOpenRunsMigrationsTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")
	ctx := context.Background()

	r1, err := Open(ctx, DriverSQLite, path)
	require.NoError(t, err)
	require.NoError(t, r1.Close())

	r2, err := Open(ctx, DriverSQLite, path)
	require.NoError(t, err)
	defer r2.Close()
	assert.NoError(t, r2.Ping(ctx))
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "whatever")
	assert.Error(t, err)
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	u := createUser(t, repo, "  Alice@Example.com ")
	assert.NotZero(t, u.ID)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, core.RoleUser, u.Role)

	_, err := repo.CreateUser(ctx, core.User{Email: "alice@example.com", Name: "Dup", PasswordHash: "x"})
	assert.ErrorIs(t, err, core.ErrConflict)

	got, err := repo.GetUserByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Nil(t, got.LastLoginAt)

	require.NoError(t, repo.TouchLogin(ctx, u.ID))
	got, err = repo.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastLoginAt)

	require.NoError(t, repo.UpdateUserRole(ctx, u.ID, core.RoleAdmin))
	require.NoError(t, repo.SetUserDisabled(ctx, u.ID, true))
	got, err = repo.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.IsAdmin())
	assert.True(t, got.Disabled)

	createUser(t, repo, "bob@example.com")
	counts, err := repo.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, UserCounts{Total: 2, Admins: 1, Disabled: 1}, counts)

	users, err := repo.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice@example.com", users[0].Email)

	_, err = repo.GetUser(ctx, 999)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, repo.UpdateUserRole(ctx, 999, core.RoleUser), core.ErrNotFound)
}

func TestExpensesCRUD(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	u := createUser(t, repo, "carol@example.com")

	e := newExpense(u.ID, "Food", 1250, time.Date(2025, 3, 14, 18, 30, 0, 0, time.UTC))
	e.Location = &core.Location{Latitude: 45.46, Longitude: 9.19, Address: "Milano"}

	created, err := repo.CreateExpense(ctx, e)
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, day(2025, 3, 14), created.Date)

	got, err := repo.GetExpense(ctx, u.ID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ClientID, got.ClientID)
	assert.Equal(t, int64(1250), got.Amount.Cents)
	assert.Equal(t, day(2025, 3, 14), got.Date)
	require.NotNil(t, got.Location)
	assert.InDelta(t, 45.46, got.Location.Latitude, 1e-9)
	assert.Equal(t, "Milano", got.Location.Address)

	got.Description = "dinner"
	got.Amount = core.Money{Cents: 2000}
	got.Location = nil
	updated, err := repo.UpdateExpense(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, "dinner", updated.Description)
	assert.Equal(t, int64(2000), updated.Amount.Cents)
	assert.Nil(t, updated.Location)

	require.NoError(t, repo.SetExpensePhoto(ctx, u.ID, created.ID, "disk:abc.jpg"))
	refs, err := repo.PhotoRefs(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"disk:abc.jpg"}, refs)

	other := createUser(t, repo, "mallory@example.com")
	_, err = repo.GetExpense(ctx, other.ID, created.ID)
	assert.ErrorIs(t, err, core.ErrNotFound, "expenses are scoped to their owner")
	assert.ErrorIs(t, repo.DeleteExpense(ctx, other.ID, created.ID), core.ErrNotFound)

	require.NoError(t, repo.DeleteExpense(ctx, u.ID, created.ID))
	_, err = repo.GetExpense(ctx, u.ID, created.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestCreateExpenseIdempotentOnClientID(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	u := createUser(t, repo, "dave@example.com")

	e := newExpense(u.ID, "Travel", 900, day(2025, 1, 2))
	first, err := repo.CreateExpense(ctx, e)
	require.NoError(t, err)

	e.Description = "changed on replay"
	again, err := repo.CreateExpense(ctx, e)
	assert.ErrorIs(t, err, core.ErrConflict)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "Travel expense", again.Description)

	// The same client id is free for another user.
	other := createUser(t, repo, "erin@example.com")
	e.UserID = other.ID
	_, err = repo.CreateExpense(ctx, e)
	assert.NoError(t, err)
}

func TestListExpensesFilterAndOrder(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	u := createUser(t, repo, "frank@example.com")

	for _, e := range []core.Expense{
		newExpense(u.ID, "Food", 100, day(2025, 1, 10)),
		newExpense(u.ID, "Food", 200, day(2025, 2, 10)),
		newExpense(u.ID, "Travel", 300, day(2025, 2, 20)),
		newExpense(u.ID, "Food", 400, day(2025, 3, 1)),
	} {
		_, err := repo.CreateExpense(ctx, e)
		require.NoError(t, err)
	}

	all, err := repo.ListExpenses(ctx, u.ID, core.ExpenseFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, int64(400), all[0].Amount.Cents, "newest first")

	feb, err := repo.ListExpenses(ctx, u.ID, core.ExpenseFilter{From: day(2025, 2, 1), To: day(2025, 2, 28)})
	require.NoError(t, err)
	assert.Len(t, feb, 2)

	food, err := repo.ListExpenses(ctx, u.ID, core.ExpenseFilter{Category: "Food", Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, food, 2)
	assert.Equal(t, int64(200), food[0].Amount.Cents)
	assert.Equal(t, int64(100), food[1].Amount.Cents)
}

func TestSummary(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	a := createUser(t, repo, "gina@example.com")
	b := createUser(t, repo, "hank@example.com")

	for _, e := range []core.Expense{
		newExpense(a.ID, "Food", 100, day(2025, 4, 1)),
		newExpense(a.ID, "Food", 150, day(2025, 4, 2)),
		newExpense(a.ID, "Home", 500, day(2025, 4, 3)),
		newExpense(b.ID, "Food", 1000, day(2025, 4, 3)),
	} {
		_, err := repo.CreateExpense(ctx, e)
		require.NoError(t, err)
	}

	s, err := repo.Summary(ctx, a.ID, core.ExpenseFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(750), s.Total.Cents)
	assert.Equal(t, 3, s.Count)
	require.Len(t, s.ByCategory, 2)
	assert.Equal(t, core.CategoryAmount{Name: "Home", Amount: core.Money{Cents: 500}, Count: 1}, s.ByCategory[0])

	all, err := repo.Summary(ctx, 0, core.ExpenseFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1750), all.Total.Cents)
	assert.Equal(t, "Food", all.ByCategory[0].Name)

	empty, err := repo.Summary(ctx, a.ID, core.ExpenseFilter{From: day(2030, 1, 1)})
	require.NoError(t, err)
	assert.Zero(t, empty.Total.Cents)
	assert.Empty(t, empty.ByCategory)
}

func TestDeleteUserCascades(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	u := createUser(t, repo, "ivan@example.com")

	created, err := repo.CreateExpense(ctx, newExpense(u.ID, "Food", 100, day(2025, 5, 5)))
	require.NoError(t, err)
	require.NoError(t, repo.UpsertPushToken(ctx, core.PushToken{UserID: u.ID, Token: "tok", Platform: core.PlatformAndroid}))

	require.NoError(t, repo.DeleteUser(ctx, u.ID))

	_, err = repo.GetExpense(ctx, u.ID, created.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	n, err := repo.CountPushTokens(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.ErrorIs(t, repo.DeleteUser(ctx, u.ID), core.ErrNotFound)
}

func TestPushTokens(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	a := createUser(t, repo, "jane@example.com")
	b := createUser(t, repo, "kyle@example.com")

	require.NoError(t, repo.UpsertPushToken(ctx, core.PushToken{UserID: a.ID, Token: "t1", Platform: core.PlatformIOS}))
	require.NoError(t, repo.UpsertPushToken(ctx, core.PushToken{UserID: a.ID, Token: "t2", Platform: core.PlatformAndroid}))
	require.NoError(t, repo.UpsertPushToken(ctx, core.PushToken{UserID: b.ID, Token: "t3", Platform: core.PlatformWeb}))
	// Device changes hands.
	require.NoError(t, repo.UpsertPushToken(ctx, core.PushToken{UserID: b.ID, Token: "t2", Platform: core.PlatformAndroid}))

	ta, err := repo.ListPushTokens(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, ta, 1)
	assert.Equal(t, "t1", ta[0].Token)

	all, err := repo.ListPushTokens(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, repo.SetUserDisabled(ctx, b.ID, true))
	all, err = repo.ListPushTokens(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1, "disabled users receive no pushes")

	assert.ErrorIs(t, repo.DeletePushToken(ctx, a.ID, "t3"), core.ErrNotFound)
	require.NoError(t, repo.DeletePushToken(ctx, a.ID, "t1"))
	require.NoError(t, repo.ForgetPushToken(ctx, "t3"))
	require.NoError(t, repo.ForgetPushToken(ctx, "missing"))

	n, err := repo.CountPushTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
