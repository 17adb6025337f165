package http

import (
	"time"

	"expensync/internal/core"
)

const dateLayout = "2006-01-02"

type userJSON struct {
	ID          int64      `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Role        string     `json:"role"`
	Disabled    bool       `json:"disabled"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

func toUserJSON(u core.User) userJSON {
	return userJSON{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Role:        string(u.Role),
		Disabled:    u.Disabled,
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
	}
}

type authResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      userJSON  `json:"user"`
}

type locationJSON struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
	Address   string  `json:"address,omitempty" validate:"max=300"`
}

type expenseJSON struct {
	ID          int64         `json:"id"`
	ClientID    string        `json:"client_id"`
	Category    string        `json:"category"`
	Description string        `json:"description"`
	AmountCents int64         `json:"amount_cents"`
	Amount      string        `json:"amount"`
	Date        string        `json:"date"`
	HasPhoto    bool          `json:"has_photo"`
	Location    *locationJSON `json:"location,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func toExpenseJSON(e core.Expense) expenseJSON {
	out := expenseJSON{
		ID:          e.ID,
		ClientID:    e.ClientID,
		Category:    e.Category,
		Description: e.Description,
		AmountCents: e.Amount.Cents,
		Amount:      e.Amount.String(),
		Date:        e.Date.Format(dateLayout),
		HasPhoto:    e.PhotoRef != "",
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
	if e.Location != nil {
		out.Location = &locationJSON{Latitude: e.Location.Latitude, Longitude: e.Location.Longitude, Address: e.Location.Address}
	}
	return out
}

func toExpenseList(list []core.Expense) []expenseJSON {
	out := make([]expenseJSON, 0, len(list))
	for _, e := range list {
		out = append(out, toExpenseJSON(e))
	}
	return out
}

// expenseRequest is the body of create and update. The amount is given in
// cents or as a decimal string.
type expenseRequest struct {
	ClientID    string        `json:"client_id" validate:"omitempty,uuid"`
	Category    string        `json:"category" validate:"required,max=64"`
	Description string        `json:"description" validate:"required,max=200"`
	AmountCents int64         `json:"amount_cents" validate:"gte=0"`
	Amount      string        `json:"amount" validate:"required_without=AmountCents"`
	Date        string        `json:"date" validate:"required,dateformat"`
	Location    *locationJSON `json:"location" validate:"omitempty"`
}

func (req expenseRequest) toCore() (core.Expense, error) {
	cents := req.AmountCents
	if cents == 0 {
		parsed, err := core.ParseDecimalToCents(req.Amount)
		if err != nil {
			return core.Expense{}, err
		}
		cents = parsed
	}
	date, err := core.ParseDay(req.Date)
	if err != nil {
		return core.Expense{}, err
	}
	e := core.Expense{
		ClientID:    req.ClientID,
		Category:    req.Category,
		Description: req.Description,
		Amount:      core.Money{Cents: cents},
		Date:        date,
	}
	if req.Location != nil {
		e.Location = &core.Location{Latitude: req.Location.Latitude, Longitude: req.Location.Longitude, Address: req.Location.Address}
	}
	return e, nil
}

type categoryJSON struct {
	Name        string `json:"name"`
	AmountCents int64  `json:"amount_cents"`
	Amount      string `json:"amount"`
	Count       int    `json:"count"`
}

type summaryJSON struct {
	TotalCents int64          `json:"total_cents"`
	Total      string         `json:"total"`
	Count      int            `json:"count"`
	ByCategory []categoryJSON `json:"by_category"`
}

func toSummaryJSON(s core.Summary) summaryJSON {
	out := summaryJSON{
		TotalCents: s.Total.Cents,
		Total:      s.Total.String(),
		Count:      s.Count,
		ByCategory: make([]categoryJSON, 0, len(s.ByCategory)),
	}
	for _, c := range s.ByCategory {
		out.ByCategory = append(out.ByCategory, categoryJSON{Name: c.Name, AmountCents: c.Amount.Cents, Amount: c.Amount.String(), Count: c.Count})
	}
	return out
}

type dashboardJSON struct {
	Users         int         `json:"users"`
	AdminUsers    int         `json:"admin_users"`
	DisabledUsers int         `json:"disabled_users"`
	PushTokens    int         `json:"push_tokens"`
	Expenses      summaryJSON `json:"expenses"`
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Name     string `json:"name" validate:"max=100"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type pushTokenRequest struct {
	Token    string `json:"token" validate:"required,max=4096"`
	Platform string `json:"platform" validate:"required,max=16"`
}

type roleRequest struct {
	Role string `json:"role" validate:"required,oneof=user admin"`
}

type disabledRequest struct {
	Disabled *bool `json:"disabled" validate:"required"`
}

type broadcastRequest struct {
	Title string `json:"title" validate:"required,max=120"`
	Body  string `json:"body" validate:"required,max=1000"`
}
