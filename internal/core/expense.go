package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

type (
	Money struct {
		Cents int64
	}

	// Location is the optional GPS tag attached to an expense.
	Location struct {
		Latitude  float64
		Longitude float64
		Address   string
	}

	Expense struct {
		ID          int64
		UserID      int64
		ClientID    string // UUID generated on the device, unique per user
		Category    string
		Description string
		Amount      Money
		Date        time.Time
		PhotoRef    string
		Location    *Location
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}

	// ExpenseFilter narrows expense listings. Zero values mean "no constraint".
	ExpenseFilter struct {
		From     time.Time
		To       time.Time
		Category string
		Limit    int
		Offset   int
	}
)

// Length limits count characters, not bytes.
const (
	MaxDescriptionLen = 200
	MaxCategoryLen    = 64
	MaxAddressLen     = 300
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidDate      = errors.New("invalid date")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
	ErrInvalidLocation  = errors.New("invalid location")
	ErrTooLong          = errors.New("value too long")
)

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (l Location) Validate() error {
	if l.Latitude < -90 || l.Latitude > 90 {
		return ErrInvalidLocation
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return ErrInvalidLocation
	}
	if utf8.RuneCountInString(l.Address) > MaxAddressLen {
		return fmt.Errorf("%w: address (max %d characters)", ErrTooLong, MaxAddressLen)
	}
	return nil
}

func (e Expense) Validate() error {
	if e.Date.IsZero() {
		return ErrInvalidDate
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	if utf8.RuneCountInString(e.Category) > MaxCategoryLen {
		return fmt.Errorf("%w: category (max %d characters)", ErrTooLong, MaxCategoryLen)
	}
	if strings.TrimSpace(e.Description) == "" {
		return ErrEmptyDescription
	}
	if utf8.RuneCountInString(e.Description) > MaxDescriptionLen {
		return fmt.Errorf("%w: description (max %d characters)", ErrTooLong, MaxDescriptionLen)
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if e.Location != nil {
		if err := e.Location.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Day truncates t to midnight UTC, which is how expense dates are stored.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD date.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}
