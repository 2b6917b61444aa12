package organizations

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	Repo Repo
}

func NewService(repo Repo) *Service {
	return &Service{Repo: repo}
}

func (s *Service) Create(ctx context.Context, ownerUserID, name string) (Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Organization{}, errors.New("organization name is required")
	}
	org := Organization{
		ID:          uuid.NewString(),
		Name:        name,
		OwnerUserID: ownerUserID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.Repo.Create(ctx, org); err != nil {
		return Organization{}, err
	}
	return org, nil
}

// AddMember adds userID to the organization. Only existing members may
// grow the roster.
func (s *Service) AddMember(ctx context.Context, orgID, callerID, userID string) error {
	if err := s.requireMember(ctx, orgID, callerID); err != nil {
		return err
	}
	return s.Repo.AddMember(ctx, Member{
		OrganizationID: orgID,
		UserID:         userID,
		Role:           MemberRoleMember,
		CreatedAt:      time.Now().UTC(),
	})
}

// RemoveMember drops userID from the organization. The owner cannot be
// removed.
func (s *Service) RemoveMember(ctx context.Context, orgID, callerID, userID string) error {
	if err := s.requireMember(ctx, orgID, callerID); err != nil {
		return err
	}
	org, err := s.Repo.GetByID(ctx, orgID)
	if err != nil {
		return err
	}
	if org.OwnerUserID == userID {
		return errors.New("organization owner cannot be removed")
	}
	return s.Repo.RemoveMember(ctx, orgID, userID)
}

func (s *Service) ListMembers(ctx context.Context, orgID, callerID string) ([]Member, error) {
	if err := s.requireMember(ctx, orgID, callerID); err != nil {
		return nil, err
	}
	return s.Repo.ListMembers(ctx, orgID)
}

// OrgIDFor resolves the organization id carried in the caller's JWT.
// Returns "" when the user belongs to no organization.
func (s *Service) OrgIDFor(ctx context.Context, userID string) (string, error) {
	if s == nil || s.Repo == nil {
		return "", nil
	}
	m, err := s.Repo.MembershipFor(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return m.OrganizationID, nil
}

func (s *Service) requireMember(ctx context.Context, orgID, userID string) error {
	ok, err := s.Repo.IsMember(ctx, orgID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}
