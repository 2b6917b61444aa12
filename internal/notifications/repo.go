package notifications

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("notification not found")

type Repo interface {
	Create(ctx context.Context, n Notification) error
	ListByUser(ctx context.Context, userID string, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, notificationID, userID string) error
}
