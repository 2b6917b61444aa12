package contracts

import (
	"context"
	"io"
	"path"
	"time"

	"github.com/google/uuid"

	"contracts-backend/internal/shared/metrics"
	"contracts-backend/internal/shared/storage/object"
	"contracts-backend/internal/shared/util"
)

// UploadPresigner issues presigned PUT URLs so large documents can bypass
// the API process. Implemented by the S3 store; local storage has no
// presign path.
type UploadPresigner interface {
	PresignPut(ctx context.Context, storageKey, contentType string, expires time.Duration) (string, error)
}

// Service contains business logic for contracts.
type Service struct {
	Store     object.ObjectStore
	Repo      Repo
	Presigner UploadPresigner
}

// Upload saves the file to object storage and records the contract.
func (s *Service) Upload(ctx context.Context, userID, orgID, title, fileName string, r io.Reader) (Contract, error) {
	if fileName == "" {
		return Contract{}, ErrInvalidInput
	}
	if title == "" {
		title = fileName
	}

	storageKey, size, mimeType, err := s.Store.Save(ctx, userID, fileName, r)
	if err != nil {
		return Contract{}, err
	}

	contract := Contract{
		ID:             uuid.NewString(),
		OwnerUserID:    userID,
		OrganizationID: orgID,
		Title:          title,
		FileName:       fileName,
		MimeType:       mimeType,
		SizeBytes:      size,
		StorageKey:     storageKey,
		Status:         StatusUploaded,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.Repo.Create(ctx, contract); err != nil {
		return Contract{}, err
	}

	metrics.ContractsUploaded.Inc()
	return contract, nil
}

// RegisterUploaded records a contract whose object was uploaded through a
// presigned URL.
func (s *Service) RegisterUploaded(ctx context.Context, userID, orgID, title, fileName, mimeType, storageKey string, sizeBytes int64) (Contract, error) {
	if fileName == "" || storageKey == "" {
		return Contract{}, ErrInvalidInput
	}
	if title == "" {
		title = fileName
	}

	contract := Contract{
		ID:             uuid.NewString(),
		OwnerUserID:    userID,
		OrganizationID: orgID,
		Title:          title,
		FileName:       fileName,
		MimeType:       mimeType,
		SizeBytes:      sizeBytes,
		StorageKey:     storageKey,
		Status:         StatusUploaded,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.Repo.Create(ctx, contract); err != nil {
		return Contract{}, err
	}

	metrics.ContractsUploaded.Inc()
	return contract, nil
}

// PresignUpload issues a presigned PUT URL scoped to the user's namespace.
func (s *Service) PresignUpload(ctx context.Context, userID, fileName, contentType string) (url, storageKey string, err error) {
	if s.Presigner == nil {
		return "", "", ErrPresignUnavailable
	}
	if fileName == "" {
		return "", "", ErrInvalidInput
	}
	storageKey, err = uploadKey(userID, fileName)
	if err != nil {
		return "", "", err
	}
	url, err = s.Presigner.PresignPut(ctx, storageKey, contentType, 15*time.Minute)
	if err != nil {
		return "", "", err
	}
	return url, storageKey, nil
}

// Get returns a contract visible to the caller.
func (s *Service) Get(ctx context.Context, contractID, userID, orgID string) (Contract, error) {
	contract, err := s.Repo.GetByID(ctx, contractID)
	if err != nil {
		return Contract{}, err
	}
	if !accessible(contract, userID, orgID) {
		return Contract{}, ErrNotFound
	}
	return contract, nil
}

// List returns the caller's contracts, newest first.
func (s *Service) List(ctx context.Context, userID, orgID string, limit, offset int) ([]Contract, error) {
	return s.Repo.List(ctx, userID, orgID, limit, offset)
}

// Delete soft-deletes the caller's contract.
func (s *Service) Delete(ctx context.Context, contractID, userID string) error {
	return s.Repo.SoftDelete(ctx, contractID, userID)
}

// OpenDocument streams the stored document for a contract the caller can see.
func (s *Service) OpenDocument(ctx context.Context, contractID, userID, orgID string) (io.ReadCloser, Contract, error) {
	contract, err := s.Get(ctx, contractID, userID, orgID)
	if err != nil {
		return nil, Contract{}, err
	}
	rc, err := s.Store.Open(ctx, contract.StorageKey)
	if err != nil {
		return nil, Contract{}, err
	}
	return rc, contract, nil
}

func accessible(c Contract, userID, orgID string) bool {
	if c.OwnerUserID == userID {
		return true
	}
	return orgID != "" && c.OrganizationID == orgID
}

func uploadKey(userID, fileName string) (string, error) {
	safe, err := util.SanitizeFileName(fileName)
	if err != nil {
		return "", err
	}
	return path.Join(util.HashUserKey(userID), uuid.NewString()+"_"+safe), nil
}
