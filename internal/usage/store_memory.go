package usage

import (
	"context"
	"sync"
	"time"
)

type memoryStore struct {
	mu    sync.Mutex
	users map[string]Usage
}

func newMemoryStore() *memoryStore {
	return &memoryStore{users: map[string]Usage{}}
}

func (s *memoryStore) Get(ctx context.Context, userID string) (Usage, error) {
	return s.EnsurePeriod(ctx, userID)
}

func (s *memoryStore) EnsurePeriod(ctx context.Context, userID string) (Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked(userID), nil
}

func (s *memoryStore) Consume(ctx context.Context, userID string, n int) (Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.ensureLocked(userID)
	if n <= 0 {
		return u, nil
	}
	if u.Used+n > u.Limit {
		return Usage{}, ErrLimitReached
	}
	u.Used += n
	s.users[userID] = u
	return u, nil
}

func (s *memoryStore) Reset(ctx context.Context, userID string) (Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.ensureLocked(userID)
	u.Used = 0
	u.ResetsAt = nextMonthStart(time.Now().UTC())
	s.users[userID] = u
	return u, nil
}

func (s *memoryStore) SetPlan(ctx context.Context, userID, plan string) (Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.ensureLocked(userID)
	u.Plan = plan
	u.Limit = PlanLimit(plan)
	s.users[userID] = u
	return u, nil
}

func (s *memoryStore) ensureLocked(userID string) Usage {
	u, ok := s.users[userID]
	if !ok {
		u = defaultUsage()
		s.users[userID] = u
		return u
	}
	now := time.Now().UTC()
	if !now.Before(u.ResetsAt) {
		u.Used = 0
		u.ResetsAt = nextMonthStart(now)
		s.users[userID] = u
	}
	return u
}
