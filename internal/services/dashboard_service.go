package services

import (
	"context"
	"fmt"
	"time"

	"expensync/internal/cache"
	"expensync/internal/core"
	"expensync/internal/storage"
)

const dashboardKey = "overview"

// DashboardService computes the admin overview and caches it until the
// TTL elapses or a mutation invalidates it.
type DashboardService struct {
	repo  *storage.Repository
	cache *cache.LRUCache[core.Dashboard]
}

func NewDashboardService(repo *storage.Repository, ttl time.Duration) *DashboardService {
	return &DashboardService{repo: repo, cache: cache.NewLRUCache[core.Dashboard](1, ttl)}
}

func (s *DashboardService) Overview(ctx context.Context) (core.Dashboard, error) {
	if d, ok := s.cache.Get(dashboardKey); ok {
		return d, nil
	}

	users, err := s.repo.CountUsers(ctx)
	if err != nil {
		return core.Dashboard{}, fmt.Errorf("dashboard users: %w", err)
	}
	tokens, err := s.repo.CountPushTokens(ctx)
	if err != nil {
		return core.Dashboard{}, fmt.Errorf("dashboard push tokens: %w", err)
	}
	summary, err := s.repo.Summary(ctx, 0, core.ExpenseFilter{})
	if err != nil {
		return core.Dashboard{}, fmt.Errorf("dashboard summary: %w", err)
	}

	d := core.Dashboard{
		Users:         users.Total,
		AdminUsers:    users.Admins,
		DisabledUsers: users.Disabled,
		PushTokens:    tokens,
		Expenses:      summary,
	}
	s.cache.Set(dashboardKey, d)
	return d, nil
}

// Invalidate drops the cached overview. Safe on a nil receiver.
func (s *DashboardService) Invalidate() {
	if s == nil {
		return
	}
	s.cache.Purge()
}

// Cache exposes the underlying cache for the janitor.
func (s *DashboardService) Cache() cache.Cleaner {
	return s.cache
}
