package contracts

import "context"

// Repo defines persistence operations for contracts. Reads exclude
// soft-deleted rows.
type Repo interface {
	Create(ctx context.Context, contract Contract) error
	GetByID(ctx context.Context, contractID string) (Contract, error)
	List(ctx context.Context, userID, orgID string, limit, offset int) ([]Contract, error)
	SoftDelete(ctx context.Context, contractID, userID string) error
	UpdateExtraction(ctx context.Context, contractID, extractedTextKey string) error
	CountByOwner(ctx context.Context, userID, orgID string) (int, error)
}
