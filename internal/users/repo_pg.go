package users

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) Upsert(ctx context.Context, user User) error {
	const query = `
INSERT INTO users (id, email, name, role, plan, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, now(), now())
ON CONFLICT (id) DO UPDATE SET
  email = EXCLUDED.email,
  name = EXCLUDED.name,
  updated_at = now()`
	role := user.Role
	if role == "" {
		role = RoleMember
	}
	plan := user.Plan
	if plan == "" {
		plan = "free"
	}
	_, err := r.DB.ExecContext(ctx, query, user.ID, user.Email, user.Name, role, plan)
	return err
}

func (r *PGRepo) GetByID(ctx context.Context, userID string) (User, error) {
	const query = `
SELECT id, email, name, role, plan, stripe_customer_id, created_at, updated_at
FROM users
WHERE id = $1
LIMIT 1`
	return r.scanOne(r.DB.QueryRowContext(ctx, query, userID))
}

func (r *PGRepo) GetByStripeCustomer(ctx context.Context, customerID string) (User, error) {
	const query = `
SELECT id, email, name, role, plan, stripe_customer_id, created_at, updated_at
FROM users
WHERE stripe_customer_id = $1
LIMIT 1`
	return r.scanOne(r.DB.QueryRowContext(ctx, query, customerID))
}

func (r *PGRepo) RoleByID(ctx context.Context, userID string) (string, error) {
	const query = `SELECT role FROM users WHERE id = $1 LIMIT 1`
	var role string
	err := r.DB.QueryRowContext(ctx, query, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return role, nil
}

func (r *PGRepo) SetPlan(ctx context.Context, userID, plan string) error {
	const query = `UPDATE users SET plan = $1, updated_at = now() WHERE id = $2`
	res, err := r.DB.ExecContext(ctx, query, plan, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PGRepo) SetStripeCustomer(ctx context.Context, userID, customerID string) error {
	const query = `UPDATE users SET stripe_customer_id = $1, updated_at = now() WHERE id = $2`
	res, err := r.DB.ExecContext(ctx, query, customerID, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PGRepo) scanOne(row *sql.Row) (User, error) {
	var user User
	var stripeCustomerID sql.NullString
	var updatedAt sql.NullTime
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Role,
		&user.Plan,
		&stripeCustomerID,
		&user.CreatedAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	if stripeCustomerID.Valid {
		user.StripeCustomerID = stripeCustomerID.String
	}
	if updatedAt.Valid {
		user.UpdatedAt = updatedAt.Time
	} else {
		user.UpdatedAt = time.Now().UTC()
	}
	return user, nil
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
