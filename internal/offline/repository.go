// Package offline chooses between the remote API and the local queue for
// every expense operation of the client.
package offline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"expensync/internal/apiclient"
	"expensync/internal/core"
	"expensync/internal/localstore"
	applog "expensync/internal/log"
)

const dateLayout = "2006-01-02"

// API is the subset of the REST client used by the repository.
type API interface {
	CreateExpense(ctx context.Context, in apiclient.ExpenseInput) (apiclient.Expense, error)
	UploadPhoto(ctx context.Context, id int64, path string) (apiclient.Expense, error)
	ListExpenses(ctx context.Context, opts apiclient.ListOptions) ([]apiclient.Expense, error)
	UpdateExpense(ctx context.Context, id int64, in apiclient.ExpenseInput) (apiclient.Expense, error)
	DeleteExpense(ctx context.Context, id int64) error
}

// Status reports the last known connectivity.
type Status interface {
	Online() bool
}

type LocalStore interface {
	Save(ctx context.Context, p localstore.Pending) (localstore.Pending, error)
	Get(ctx context.Context, clientID string) (localstore.Pending, error)
	ListAll(ctx context.Context) ([]localstore.Pending, error)
	Update(ctx context.Context, p localstore.Pending) (localstore.Pending, error)
	Delete(ctx context.Context, clientID string) error
}

// Draft is an expense as entered by the user.
type Draft struct {
	Category    string
	Description string
	Amount      core.Money
	Date        time.Time
	PhotoPath   string
	Location    *core.Location
}

// Item is one row of a merged listing. Pending rows have RemoteID 0.
type Item struct {
	RemoteID    int64               `json:"id,omitempty" yaml:"id,omitempty"`
	ClientID    string              `json:"client_id" yaml:"client_id"`
	Category    string              `json:"category" yaml:"category"`
	Description string              `json:"description" yaml:"description"`
	Amount      core.Money          `json:"-" yaml:"-"`
	AmountText  string              `json:"amount" yaml:"amount"`
	Date        string              `json:"date" yaml:"date"`
	HasPhoto    bool                `json:"has_photo" yaml:"has_photo"`
	Location    *apiclient.Location `json:"location,omitempty" yaml:"location,omitempty"`
	Pending     bool                `json:"pending" yaml:"pending"`
	LastError   string              `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}

type AddResult struct {
	Item   Item `json:"expense" yaml:"expense"`
	Queued bool `json:"queued" yaml:"queued"`
}

type ListResult struct {
	Items []Item
	// Offline is set when only local rows could be listed.
	Offline bool
}

type Repository struct {
	api    API
	store  LocalStore
	status Status
	logger *slog.Logger
}

func NewRepository(api API, store LocalStore, status Status, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{api: api, store: store, status: status, logger: logger}
}

func (d Draft) validate() error {
	e := core.Expense{Category: d.Category, Description: d.Description, Amount: d.Amount, Date: d.Date, Location: d.Location}
	return e.Validate()
}

func (d Draft) input(clientID string) apiclient.ExpenseInput {
	in := apiclient.ExpenseInput{
		ClientID:    clientID,
		Category:    d.Category,
		Description: d.Description,
		AmountCents: d.Amount.Cents,
		Date:        d.Date.Format(dateLayout),
	}
	if d.Location != nil {
		in.Location = &apiclient.Location{Latitude: d.Location.Latitude, Longitude: d.Location.Longitude, Address: d.Location.Address}
	}
	return in
}

func (d Draft) pending(clientID string) localstore.Pending {
	return localstore.Pending{
		ClientID:    clientID,
		Category:    d.Category,
		Description: d.Description,
		Amount:      d.Amount,
		Date:        d.Date,
		PhotoPath:   d.PhotoPath,
		Location:    d.Location,
	}
}

// Add creates the expense on the server when online. When offline, or when
// the server cannot be reached, the expense is queued locally.
func (r *Repository) Add(ctx context.Context, d Draft) (AddResult, error) {
	if err := d.validate(); err != nil {
		return AddResult{}, err
	}
	clientID := uuid.NewString()

	if !r.status.Online() {
		return r.queue(ctx, d, clientID, "")
	}

	created, err := r.api.CreateExpense(ctx, d.input(clientID))
	if apiclient.IsUnavailable(err) {
		return r.queue(ctx, d, clientID, err.Error())
	}
	if err != nil {
		return AddResult{}, fmt.Errorf("create expense: %w", err)
	}

	if d.PhotoPath != "" {
		withPhoto, err := r.api.UploadPhoto(ctx, created.ID, d.PhotoPath)
		switch {
		case apiclient.IsUnavailable(err):
			// Replaying the create is idempotent, so the worker retries both.
			return r.queue(ctx, d, clientID, err.Error())
		case err != nil:
			return AddResult{Item: fromRemote(created)}, fmt.Errorf("upload photo: %w", err)
		default:
			created = withPhoto
		}
	}
	return AddResult{Item: fromRemote(created)}, nil
}

func (r *Repository) queue(ctx context.Context, d Draft, clientID, cause string) (AddResult, error) {
	p, err := r.store.Save(ctx, d.pending(clientID))
	if err != nil {
		return AddResult{}, fmt.Errorf("queue expense: %w", err)
	}
	r.logger.Info("Expense queued for sync", applog.FieldClientID, clientID, "cause", cause)
	return AddResult{Item: fromPending(p), Queued: true}, nil
}

// List merges remote expenses, when reachable, with the local pending rows.
// Limit and Offset page the server rows only.
func (r *Repository) List(ctx context.Context, opts apiclient.ListOptions) (ListResult, error) {
	local, err := r.store.ListAll(ctx)
	if err != nil {
		return ListResult{}, err
	}

	res := ListResult{Items: []Item{}}
	if r.status.Online() {
		remote, err := r.api.ListExpenses(ctx, opts)
		switch {
		case apiclient.IsUnavailable(err):
			res.Offline = true
		case err != nil:
			return ListResult{}, fmt.Errorf("list expenses: %w", err)
		default:
			for _, e := range remote {
				res.Items = append(res.Items, fromRemote(e))
			}
		}
	} else {
		res.Offline = true
	}

	// Pending rows have no server position, so they only join the first page.
	for _, p := range local {
		if opts.Offset > 0 {
			break
		}
		if p.Uploaded || !matches(p, opts) {
			continue
		}
		res.Items = append(res.Items, fromPending(p))
	}
	sort.SliceStable(res.Items, func(i, j int) bool { return res.Items[i].Date > res.Items[j].Date })
	return res, nil
}

func matches(p localstore.Pending, opts apiclient.ListOptions) bool {
	day := p.Date.Format(dateLayout)
	if opts.From != "" && day < opts.From {
		return false
	}
	if opts.To != "" && day > opts.To {
		return false
	}
	if opts.Category != "" && !strings.EqualFold(opts.Category, p.Category) {
		return false
	}
	return true
}

// Update edits a pending row locally when ref is one of its client ids,
// otherwise ref must be the numeric id of a synced expense.
func (r *Repository) Update(ctx context.Context, ref string, d Draft) (Item, error) {
	if err := d.validate(); err != nil {
		return Item{}, err
	}
	p, err := r.pendingByRef(ctx, ref)
	if err == nil {
		next := d.pending(p.ClientID)
		if d.PhotoPath == "" {
			next.PhotoPath = p.PhotoPath
		}
		updated, err := r.store.Update(ctx, next)
		if err != nil {
			return Item{}, err
		}
		return fromPending(updated), nil
	}
	if !errors.Is(err, localstore.ErrNotFound) {
		return Item{}, err
	}

	id, err := remoteID(ref)
	if err != nil {
		return Item{}, err
	}
	updated, err := r.api.UpdateExpense(ctx, id, d.input(""))
	if err != nil {
		return Item{}, fmt.Errorf("update expense: %w", err)
	}
	if d.PhotoPath != "" {
		if updated, err = r.api.UploadPhoto(ctx, id, d.PhotoPath); err != nil {
			return Item{}, fmt.Errorf("upload photo: %w", err)
		}
	}
	return fromRemote(updated), nil
}

// Delete removes a pending row locally or a synced expense remotely.
func (r *Repository) Delete(ctx context.Context, ref string) error {
	p, err := r.pendingByRef(ctx, ref)
	if err == nil {
		return r.store.Delete(ctx, p.ClientID)
	}
	if !errors.Is(err, localstore.ErrNotFound) {
		return err
	}
	id, err := remoteID(ref)
	if err != nil {
		return err
	}
	if err := r.api.DeleteExpense(ctx, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return nil
}

func (r *Repository) pendingByRef(ctx context.Context, ref string) (localstore.Pending, error) {
	p, err := r.store.Get(ctx, ref)
	if err != nil {
		return localstore.Pending{}, err
	}
	if p.Uploaded {
		return localstore.Pending{}, localstore.ErrNotFound
	}
	return p, nil
}

func remoteID(ref string) (int64, error) {
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: no pending expense %q and not a server id", core.ErrNotFound, ref)
	}
	return id, nil
}

func fromRemote(e apiclient.Expense) Item {
	it := Item{
		RemoteID:    e.ID,
		ClientID:    e.ClientID,
		Category:    e.Category,
		Description: e.Description,
		Amount:      core.Money{Cents: e.AmountCents},
		Date:        e.Date,
		HasPhoto:    e.HasPhoto,
	}
	it.AmountText = it.Amount.String()
	it.Location = e.Location
	return it
}

func fromPending(p localstore.Pending) Item {
	it := Item{
		RemoteID:    p.RemoteID,
		ClientID:    p.ClientID,
		Category:    p.Category,
		Description: p.Description,
		Amount:      p.Amount,
		AmountText:  p.Amount.String(),
		Date:        p.Date.Format(dateLayout),
		HasPhoto:    p.PhotoPath != "",
		Pending:     !p.Uploaded,
		LastError:   p.LastError,
	}
	if p.Location != nil {
		it.Location = &apiclient.Location{Latitude: p.Location.Latitude, Longitude: p.Location.Longitude, Address: p.Location.Address}
	}
	return it
}
