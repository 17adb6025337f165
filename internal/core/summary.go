package core

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount Money
	Count  int
}

// Summary totals a set of expenses.
type Summary struct {
	Total      Money
	Count      int
	ByCategory []CategoryAmount
}

// Dashboard is the admin overview across all users.
type Dashboard struct {
	Users         int
	AdminUsers    int
	DisabledUsers int
	PushTokens    int
	Expenses      Summary
}
