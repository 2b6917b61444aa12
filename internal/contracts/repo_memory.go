package contracts

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo implements Repo in memory for tests and local development.
type MemoryRepo struct {
	mu        sync.Mutex
	contracts map[string]Contract
}

var _ Repo = (*MemoryRepo)(nil)

// NewMemoryRepo returns an empty repo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{contracts: map[string]Contract{}}
}

func (r *MemoryRepo) Create(ctx context.Context, contract Contract) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contracts[contract.ID] = contract
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, contractID string) (Contract, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	contract, ok := r.contracts[contractID]
	if !ok || contract.DeletedAt != nil {
		return Contract{}, ErrNotFound
	}
	return contract, nil
}

func (r *MemoryRepo) List(ctx context.Context, userID, orgID string, limit, offset int) ([]Contract, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var visible []Contract
	for _, contract := range r.contracts {
		if contract.DeletedAt != nil {
			continue
		}
		if contract.OwnerUserID == userID || (orgID != "" && contract.OrganizationID == orgID) {
			visible = append(visible, contract)
		}
	}
	sort.Slice(visible, func(i, k int) bool {
		return visible[i].CreatedAt.After(visible[k].CreatedAt)
	})
	if offset >= len(visible) {
		return nil, nil
	}
	visible = visible[offset:]
	if len(visible) > limit {
		visible = visible[:limit]
	}
	return visible, nil
}

func (r *MemoryRepo) SoftDelete(ctx context.Context, contractID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	contract, ok := r.contracts[contractID]
	if !ok || contract.DeletedAt != nil || contract.OwnerUserID != userID {
		return ErrNotFound
	}
	now := time.Now().UTC()
	contract.DeletedAt = &now
	contract.UpdatedAt = now
	r.contracts[contractID] = contract
	return nil
}

func (r *MemoryRepo) UpdateExtraction(ctx context.Context, contractID, extractedTextKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	contract, ok := r.contracts[contractID]
	if !ok || contract.DeletedAt != nil {
		return ErrNotFound
	}
	contract.ExtractedTextKey = extractedTextKey
	contract.Status = StatusReady
	contract.UpdatedAt = time.Now().UTC()
	r.contracts[contractID] = contract
	return nil
}

func (r *MemoryRepo) CountByOwner(ctx context.Context, userID, orgID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, contract := range r.contracts {
		if contract.DeletedAt != nil {
			continue
		}
		if contract.OwnerUserID == userID || (orgID != "" && contract.OrganizationID == orgID) {
			n++
		}
	}
	return n, nil
}
