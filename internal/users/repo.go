package users

import "context"

var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "user not found" }

type Repo interface {
	Upsert(ctx context.Context, user User) error
	GetByID(ctx context.Context, userID string) (User, error)
	GetByStripeCustomer(ctx context.Context, customerID string) (User, error)
	RoleByID(ctx context.Context, userID string) (string, error)
	SetPlan(ctx context.Context, userID, plan string) error
	SetStripeCustomer(ctx context.Context, userID, customerID string) error
}
