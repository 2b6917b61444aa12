package organizations

import (
	"context"
	"errors"
)

var (
	ErrNotFound  = errors.New("organization not found")
	ErrForbidden = errors.New("not an organization member")
)

type Repo interface {
	Create(ctx context.Context, org Organization) error
	GetByID(ctx context.Context, orgID string) (Organization, error)
	AddMember(ctx context.Context, member Member) error
	RemoveMember(ctx context.Context, orgID, userID string) error
	ListMembers(ctx context.Context, orgID string) ([]Member, error)
	// MembershipFor returns the caller's membership in any organization,
	// or ErrNotFound when they belong to none.
	MembershipFor(ctx context.Context, userID string) (Member, error)
	IsMember(ctx context.Context, orgID, userID string) (bool, error)
}
