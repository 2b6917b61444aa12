package contracts

import (
	"context"
	"database/sql"
	"errors"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

var _ Repo = (*PGRepo)(nil)

const contractColumns = `id, owner_user_id, organization_id, title, file_name, mime_type, size_bytes,
       storage_key, extracted_text_key, status, created_at, updated_at`

// Create inserts a new contract.
func (r *PGRepo) Create(ctx context.Context, contract Contract) error {
	const query = `
INSERT INTO contracts (
	id, owner_user_id, organization_id, title, file_name, mime_type, size_bytes,
	storage_key, status, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`
	_, err := r.DB.ExecContext(ctx, query,
		contract.ID,
		contract.OwnerUserID,
		nullableString(contract.OrganizationID),
		contract.Title,
		contract.FileName,
		contract.MimeType,
		contract.SizeBytes,
		contract.StorageKey,
		contract.Status,
		contract.CreatedAt,
	)
	return err
}

// GetByID returns a contract by id.
func (r *PGRepo) GetByID(ctx context.Context, contractID string) (Contract, error) {
	const query = `
SELECT ` + contractColumns + `
FROM contracts
WHERE id = $1 AND deleted_at IS NULL
LIMIT 1`
	contract, err := scanContract(r.DB.QueryRowContext(ctx, query, contractID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Contract{}, ErrNotFound
		}
		return Contract{}, err
	}
	return contract, nil
}

// List returns contracts visible to the caller, newest first. The caller's
// limit is honored as-is; pagination caps belong to the HTTP layer so that
// internal consumers (exports) can read their full window.
func (r *PGRepo) List(ctx context.Context, userID, orgID string, limit, offset int) ([]Contract, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
SELECT ` + contractColumns + `
FROM contracts
WHERE deleted_at IS NULL
  AND (owner_user_id = $1 OR (organization_id IS NOT NULL AND organization_id = $2))
ORDER BY created_at DESC
LIMIT $3 OFFSET $4`
	rows, err := r.DB.QueryContext(ctx, query, userID, nullableString(orgID), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Contract
	for rows.Next() {
		contract, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, contract)
	}
	return out, rows.Err()
}

// SoftDelete marks the owner's contract as deleted.
func (r *PGRepo) SoftDelete(ctx context.Context, contractID, userID string) error {
	const query = `
UPDATE contracts
SET deleted_at = now(), updated_at = now()
WHERE id = $1 AND owner_user_id = $2 AND deleted_at IS NULL`
	res, err := r.DB.ExecContext(ctx, query, contractID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateExtraction records the extracted-text object and flips status.
func (r *PGRepo) UpdateExtraction(ctx context.Context, contractID, extractedTextKey string) error {
	const query = `
UPDATE contracts
SET extracted_text_key = $2, status = 'ready', updated_at = now()
WHERE id = $1 AND deleted_at IS NULL`
	res, err := r.DB.ExecContext(ctx, query, contractID, extractedTextKey)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByOwner counts contracts visible to the caller.
func (r *PGRepo) CountByOwner(ctx context.Context, userID, orgID string) (int, error) {
	const query = `
SELECT count(*)
FROM contracts
WHERE deleted_at IS NULL
  AND (owner_user_id = $1 OR (organization_id IS NOT NULL AND organization_id = $2))`
	var n int
	if err := r.DB.QueryRowContext(ctx, query, userID, nullableString(orgID)).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContract(row rowScanner) (Contract, error) {
	var c Contract
	var orgID sql.NullString
	var extractedTextKey sql.NullString
	err := row.Scan(
		&c.ID,
		&c.OwnerUserID,
		&orgID,
		&c.Title,
		&c.FileName,
		&c.MimeType,
		&c.SizeBytes,
		&c.StorageKey,
		&extractedTextKey,
		&c.Status,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return Contract{}, err
	}
	if orgID.Valid {
		c.OrganizationID = orgID.String
	}
	if extractedTextKey.Valid {
		c.ExtractedTextKey = extractedTextKey.String
	}
	return c, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
