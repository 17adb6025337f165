package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"expensync/internal/auth"
	"expensync/internal/core"
	"expensync/internal/photos"
	"expensync/internal/storage"
)

// AuthResult is returned by Register and Login.
type AuthResult struct {
	Token     string
	ExpiresAt time.Time
	User      core.User
}

type UserService struct {
	repo      *storage.Repository
	issuer    *auth.Issuer
	photos    photos.Store
	dashboard *DashboardService
	logger    *slog.Logger
}

func NewUserService(repo *storage.Repository, issuer *auth.Issuer, store photos.Store, dashboard *DashboardService, logger *slog.Logger) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{repo: repo, issuer: issuer, photos: store, dashboard: dashboard, logger: logger}
}

// Register creates an account. The first account ever created is an admin.
func (s *UserService) Register(ctx context.Context, email, name, password string) (AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
		return AuthResult{}, fmt.Errorf("%w: invalid email address", core.ErrInvalidInput)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	hash, err := auth.HashPassword(password)
	if errors.Is(err, auth.ErrWeakPassword) {
		return AuthResult{}, fmt.Errorf("%w: %v", core.ErrInvalidInput, err)
	}
	if err != nil {
		return AuthResult{}, err
	}

	counts, err := s.repo.CountUsers(ctx)
	if err != nil {
		return AuthResult{}, err
	}
	role := core.RoleUser
	if counts.Total == 0 {
		role = core.RoleAdmin
	}

	u, err := s.repo.CreateUser(ctx, core.User{Email: email, Name: name, Role: role, PasswordHash: hash})
	if err != nil {
		return AuthResult{}, err
	}
	s.dashboard.Invalidate()
	s.logger.InfoContext(ctx, "User registered", "user_id", u.ID, "role", u.Role)

	return s.issue(u)
}

// Login checks credentials. Unknown emails and wrong passwords are
// indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, email, password string) (AuthResult, error) {
	u, err := s.repo.GetUserByEmail(ctx, email)
	if errors.Is(err, core.ErrNotFound) {
		return AuthResult{}, core.ErrUnauthorized
	}
	if err != nil {
		return AuthResult{}, err
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		s.logger.WarnContext(ctx, "Failed login attempt", "user_id", u.ID)
		return AuthResult{}, core.ErrUnauthorized
	}
	if u.Disabled {
		return AuthResult{}, fmt.Errorf("account disabled: %w", core.ErrForbidden)
	}

	if err := s.repo.TouchLogin(ctx, u.ID); err != nil {
		s.logger.WarnContext(ctx, "Failed to record login", "user_id", u.ID, "error", err)
	}
	return s.issue(u)
}

func (s *UserService) issue(u core.User) (AuthResult, error) {
	token, exp, err := s.issuer.Issue(u)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Token: token, ExpiresAt: exp, User: u}, nil
}

func (s *UserService) Get(ctx context.Context, id int64) (core.User, error) {
	return s.repo.GetUser(ctx, id)
}

func (s *UserService) ListUsers(ctx context.Context) ([]core.User, error) {
	return s.repo.ListUsers(ctx)
}

// SetRole changes the role of target. Admins cannot demote themselves.
func (s *UserService) SetRole(ctx context.Context, actorID, targetID int64, role core.Role) (core.User, error) {
	if !role.Valid() {
		return core.User{}, fmt.Errorf("%w '%s'", core.ErrInvalidRole, role)
	}
	if actorID == targetID && role != core.RoleAdmin {
		return core.User{}, fmt.Errorf("cannot demote yourself: %w", core.ErrForbidden)
	}
	if err := s.repo.UpdateUserRole(ctx, targetID, role); err != nil {
		return core.User{}, err
	}
	s.dashboard.Invalidate()
	s.logger.InfoContext(ctx, "User role changed", "user_id", targetID, "role", role, "actor_id", actorID)
	return s.repo.GetUser(ctx, targetID)
}

func (s *UserService) SetDisabled(ctx context.Context, actorID, targetID int64, disabled bool) (core.User, error) {
	if actorID == targetID && disabled {
		return core.User{}, fmt.Errorf("cannot disable yourself: %w", core.ErrForbidden)
	}
	if err := s.repo.SetUserDisabled(ctx, targetID, disabled); err != nil {
		return core.User{}, err
	}
	s.dashboard.Invalidate()
	s.logger.InfoContext(ctx, "User disabled flag changed", "user_id", targetID, "disabled", disabled, "actor_id", actorID)
	return s.repo.GetUser(ctx, targetID)
}

// DeleteUser removes target with its expenses, tokens and photos.
func (s *UserService) DeleteUser(ctx context.Context, actorID, targetID int64) error {
	if actorID == targetID {
		return fmt.Errorf("cannot delete yourself: %w", core.ErrForbidden)
	}
	if _, err := s.repo.GetUser(ctx, targetID); err != nil {
		return err
	}

	refs, err := s.repo.PhotoRefs(ctx, targetID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteUser(ctx, targetID); err != nil {
		return err
	}
	if s.photos != nil {
		for _, ref := range refs {
			if err := s.photos.Delete(ctx, ref); err != nil {
				s.logger.WarnContext(ctx, "Failed to delete photo", "photo_ref", ref, "error", err)
			}
		}
	}
	s.dashboard.Invalidate()
	s.logger.InfoContext(ctx, "User deleted", "user_id", targetID, "actor_id", actorID, "photos", len(refs))
	return nil
}
