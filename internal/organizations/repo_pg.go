package organizations

import (
	"context"
	"database/sql"
	"errors"
)

type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) Create(ctx context.Context, org Organization) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const insertOrg = `
INSERT INTO organizations (id, name, owner_user_id, created_at)
VALUES ($1, $2, $3, $4)`
	if _, err := tx.ExecContext(ctx, insertOrg, org.ID, org.Name, org.OwnerUserID, org.CreatedAt); err != nil {
		return err
	}

	const insertOwner = `
INSERT INTO organization_members (organization_id, user_id, role, created_at)
VALUES ($1, $2, $3, $4)`
	if _, err := tx.ExecContext(ctx, insertOwner, org.ID, org.OwnerUserID, MemberRoleOwner, org.CreatedAt); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *PGRepo) GetByID(ctx context.Context, orgID string) (Organization, error) {
	const query = `
SELECT id, name, owner_user_id, created_at
FROM organizations
WHERE id = $1
LIMIT 1`
	var org Organization
	err := r.DB.QueryRowContext(ctx, query, orgID).Scan(&org.ID, &org.Name, &org.OwnerUserID, &org.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Organization{}, ErrNotFound
		}
		return Organization{}, err
	}
	return org, nil
}

func (r *PGRepo) AddMember(ctx context.Context, member Member) error {
	const query = `
INSERT INTO organization_members (organization_id, user_id, role, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (organization_id, user_id) DO NOTHING`
	_, err := r.DB.ExecContext(ctx, query, member.OrganizationID, member.UserID, member.Role, member.CreatedAt)
	return err
}

func (r *PGRepo) RemoveMember(ctx context.Context, orgID, userID string) error {
	const query = `
DELETE FROM organization_members
WHERE organization_id = $1 AND user_id = $2`
	res, err := r.DB.ExecContext(ctx, query, orgID, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) ListMembers(ctx context.Context, orgID string) ([]Member, error) {
	const query = `
SELECT organization_id, user_id, role, created_at
FROM organization_members
WHERE organization_id = $1
ORDER BY created_at`
	rows, err := r.DB.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.OrganizationID, &m.UserID, &m.Role, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *PGRepo) MembershipFor(ctx context.Context, userID string) (Member, error) {
	const query = `
SELECT organization_id, user_id, role, created_at
FROM organization_members
WHERE user_id = $1
ORDER BY created_at
LIMIT 1`
	var m Member
	err := r.DB.QueryRowContext(ctx, query, userID).Scan(&m.OrganizationID, &m.UserID, &m.Role, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Member{}, ErrNotFound
		}
		return Member{}, err
	}
	return m, nil
}

func (r *PGRepo) IsMember(ctx context.Context, orgID, userID string) (bool, error) {
	const query = `
SELECT 1 FROM organization_members
WHERE organization_id = $1 AND user_id = $2
LIMIT 1`
	var one int
	err := r.DB.QueryRowContext(ctx, query, orgID, userID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
