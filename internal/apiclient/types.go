package apiclient

import "time"

type User struct {
	ID          int64      `json:"id" yaml:"id"`
	Email       string     `json:"email" yaml:"email"`
	Name        string     `json:"name" yaml:"name"`
	Role        string     `json:"role" yaml:"role"`
	Disabled    bool       `json:"disabled" yaml:"disabled"`
	CreatedAt   time.Time  `json:"created_at" yaml:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty" yaml:"last_login_at,omitempty"`
}

type AuthResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

type Location struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
	Address   string  `json:"address,omitempty" yaml:"address,omitempty"`
}

type Expense struct {
	ID          int64     `json:"id" yaml:"id"`
	ClientID    string    `json:"client_id" yaml:"client_id"`
	Category    string    `json:"category" yaml:"category"`
	Description string    `json:"description" yaml:"description"`
	AmountCents int64     `json:"amount_cents" yaml:"amount_cents"`
	Amount      string    `json:"amount" yaml:"amount"`
	Date        string    `json:"date" yaml:"date"`
	HasPhoto    bool      `json:"has_photo" yaml:"has_photo"`
	Location    *Location `json:"location,omitempty" yaml:"location,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
}

// ExpenseInput is the body of create and update. Date is YYYY-MM-DD.
type ExpenseInput struct {
	ClientID    string    `json:"client_id,omitempty"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	AmountCents int64     `json:"amount_cents"`
	Date        string    `json:"date"`
	Location    *Location `json:"location,omitempty"`
}

// ListOptions filters ListExpenses and Summary. Zero values are omitted.
type ListOptions struct {
	From     string
	To       string
	Category string
	Limit    int
	Offset   int
}

type CategoryAmount struct {
	Name        string `json:"name" yaml:"name"`
	AmountCents int64  `json:"amount_cents" yaml:"amount_cents"`
	Amount      string `json:"amount" yaml:"amount"`
	Count       int    `json:"count" yaml:"count"`
}

type Summary struct {
	TotalCents int64            `json:"total_cents" yaml:"total_cents"`
	Total      string           `json:"total" yaml:"total"`
	Count      int              `json:"count" yaml:"count"`
	ByCategory []CategoryAmount `json:"by_category" yaml:"by_category"`
}

type Dashboard struct {
	Users         int     `json:"users" yaml:"users"`
	AdminUsers    int     `json:"admin_users" yaml:"admin_users"`
	DisabledUsers int     `json:"disabled_users" yaml:"disabled_users"`
	PushTokens    int     `json:"push_tokens" yaml:"push_tokens"`
	Expenses      Summary `json:"expenses" yaml:"expenses"`
}
