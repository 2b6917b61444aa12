package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one append-only user-activity row.
type Entry struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	Action    string         `json:"action"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Repo defines persistence for user activity.
type Repo interface {
	Append(ctx context.Context, entry Entry) error
	ListRecent(ctx context.Context, userID string, limit int) ([]Entry, error)
}

// Service records and lists user activity.
type Service struct {
	Repo Repo
}

// Record appends one activity entry.
func (s *Service) Record(ctx context.Context, userID, action string, metadata map[string]any) error {
	return s.Repo.Append(ctx, Entry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Action:    action,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	})
}

// ListRecent returns the user's newest activity entries.
func (s *Service) ListRecent(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.Repo.ListRecent(ctx, userID, limit)
}

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

var _ Repo = (*PGRepo)(nil)

func (r *PGRepo) Append(ctx context.Context, entry Entry) error {
	var metadata any
	if entry.Metadata != nil {
		payload, err := json.Marshal(entry.Metadata)
		if err != nil {
			return err
		}
		metadata = payload
	}
	const query = `
INSERT INTO user_activity (id, user_id, action, metadata, created_at)
VALUES ($1, $2, $3, $4, $5)`
	_, err := r.DB.ExecContext(ctx, query, entry.ID, entry.UserID, entry.Action, metadata, entry.CreatedAt)
	return err
}

func (r *PGRepo) ListRecent(ctx context.Context, userID string, limit int) ([]Entry, error) {
	const query = `
SELECT id, user_id, action, metadata, created_at
FROM user_activity
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2`
	rows, err := r.DB.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var metadata sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		if metadata.Valid {
			e.Metadata = map[string]any{}
			if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
				e.Metadata = nil
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MemoryRepo implements Repo in memory for tests.
type MemoryRepo struct {
	mu      sync.Mutex
	entries []Entry
}

var _ Repo = (*MemoryRepo)(nil)

// NewMemoryRepo returns an empty repo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{}
}

func (r *MemoryRepo) Append(ctx context.Context, entry Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *MemoryRepo) ListRecent(ctx context.Context, userID string, limit int) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Entry
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if r.entries[i].UserID == userID {
			out = append(out, r.entries[i])
		}
	}
	return out, nil
}

// Entries returns a copy of everything recorded, for assertions in tests.
func (r *MemoryRepo) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
