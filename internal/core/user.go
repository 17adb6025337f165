package core

import (
	"errors"
	"time"
)

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

const (
	PlatformAndroid = "android"
	PlatformIOS     = "ios"
	PlatformWeb     = "web"
)

type (
	Role string

	User struct {
		ID           int64
		Email        string
		Name         string
		Role         Role
		Disabled     bool
		PasswordHash string
		CreatedAt    time.Time
		LastLoginAt  *time.Time
	}

	// PushToken is a device registration for push notifications.
	PushToken struct {
		UserID    int64
		Token     string
		Platform  string
		CreatedAt time.Time
	}
)

// Errors shared across storage, services and transport.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrUnavailable  = errors.New("unavailable")

	ErrInvalidRole     = errors.New("invalid role")
	ErrInvalidPlatform = errors.New("invalid platform")
	ErrInvalidInput    = errors.New("invalid input")
)

var validationErrors = []error{
	ErrInvalidAmount, ErrInvalidDate, ErrEmptyDescription, ErrEmptyCategory,
	ErrInvalidLocation, ErrTooLong, ErrInvalidRole, ErrInvalidPlatform, ErrInvalidInput,
}

// IsValidation reports whether err stems from rejected user input.
func IsValidation(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func ValidPlatform(p string) bool {
	switch p {
	case PlatformAndroid, PlatformIOS, PlatformWeb:
		return true
	}
	return false
}
