package users

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repo for tests and local development.
type MemoryRepo struct {
	mu    sync.Mutex
	users map[string]User
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{users: make(map[string]User)}
}

func (r *MemoryRepo) Upsert(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := r.users[user.ID]; ok {
		existing.Email = user.Email
		existing.Name = user.Name
		existing.UpdatedAt = now
		r.users[user.ID] = existing
		return nil
	}
	if user.Role == "" {
		user.Role = RoleMember
	}
	if user.Plan == "" {
		user.Plan = "free"
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.ID] = user
	return nil
}

func (r *MemoryRepo) GetByID(_ context.Context, userID string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (r *MemoryRepo) GetByStripeCustomer(_ context.Context, customerID string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, user := range r.users {
		if user.StripeCustomerID == customerID {
			return user, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *MemoryRepo) RoleByID(_ context.Context, userID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return "", ErrNotFound
	}
	return user.Role, nil
}

func (r *MemoryRepo) SetPlan(_ context.Context, userID, plan string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return ErrNotFound
	}
	user.Plan = plan
	user.UpdatedAt = time.Now().UTC()
	r.users[userID] = user
	return nil
}

func (r *MemoryRepo) SetStripeCustomer(_ context.Context, userID, customerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return ErrNotFound
	}
	user.StripeCustomerID = customerID
	user.UpdatedAt = time.Now().UTC()
	r.users[userID] = user
	return nil
}
