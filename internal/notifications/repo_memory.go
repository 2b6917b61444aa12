package notifications

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repo for tests and local development.
type MemoryRepo struct {
	mu    sync.Mutex
	items map[string]Notification
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{items: make(map[string]Notification)}
}

func (r *MemoryRepo) Create(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[n.ID] = n
	return nil
}

func (r *MemoryRepo) ListByUser(_ context.Context, userID string, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Notification
	for _, n := range r.items {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) MarkRead(_ context.Context, notificationID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.items[notificationID]
	if !ok || n.UserID != userID || n.ReadAt != nil {
		return ErrNotFound
	}
	now := time.Now().UTC()
	n.ReadAt = &now
	r.items[notificationID] = n
	return nil
}
