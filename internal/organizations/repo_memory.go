package organizations

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory Repo for tests and local development.
type MemoryRepo struct {
	mu      sync.Mutex
	orgs    map[string]Organization
	members map[string][]Member
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		orgs:    make(map[string]Organization),
		members: make(map[string][]Member),
	}
}

func (r *MemoryRepo) Create(_ context.Context, org Organization) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.orgs[org.ID] = org
	r.members[org.ID] = append(r.members[org.ID], Member{
		OrganizationID: org.ID,
		UserID:         org.OwnerUserID,
		Role:           MemberRoleOwner,
		CreatedAt:      org.CreatedAt,
	})
	return nil
}

func (r *MemoryRepo) GetByID(_ context.Context, orgID string) (Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	org, ok := r.orgs[orgID]
	if !ok {
		return Organization{}, ErrNotFound
	}
	return org, nil
}

func (r *MemoryRepo) AddMember(_ context.Context, member Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.members[member.OrganizationID] {
		if m.UserID == member.UserID {
			return nil
		}
	}
	r.members[member.OrganizationID] = append(r.members[member.OrganizationID], member)
	return nil
}

func (r *MemoryRepo) RemoveMember(_ context.Context, orgID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.members[orgID]
	for i, m := range members {
		if m.UserID == userID {
			r.members[orgID] = append(members[:i], members[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (r *MemoryRepo) ListMembers(_ context.Context, orgID string) ([]Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Member, len(r.members[orgID]))
	copy(out, r.members[orgID])
	return out, nil
}

func (r *MemoryRepo) MembershipFor(_ context.Context, userID string) (Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, members := range r.members {
		for _, m := range members {
			if m.UserID == userID {
				return m, nil
			}
		}
	}
	return Member{}, ErrNotFound
}

func (r *MemoryRepo) IsMember(_ context.Context, orgID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.members[orgID] {
		if m.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}
