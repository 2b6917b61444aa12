package contracts

import (
	"context"
	"io"
	"strings"
	"testing"

	localstore "contracts-backend/internal/shared/storage/object/local"
)

func newTestService(t *testing.T) (*Service, *MemoryRepo) {
	t.Helper()
	repo := NewMemoryRepo()
	svc := &Service{
		Store: localstore.New(t.TempDir()),
		Repo:  repo,
	}
	return svc, repo
}

func TestUploadCreatesContract(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	contract, err := svc.Upload(ctx, "user-1", "", "NDA with Acme", "nda.txt", strings.NewReader("confidential terms"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if contract.ID == "" || contract.StorageKey == "" {
		t.Fatalf("missing id or storage key: %+v", contract)
	}
	if contract.Status != StatusUploaded {
		t.Fatalf("expected status %s, got %s", StatusUploaded, contract.Status)
	}
	if contract.SizeBytes != int64(len("confidential terms")) {
		t.Fatalf("unexpected size %d", contract.SizeBytes)
	}

	got, err := svc.Get(ctx, contract.ID, "user-1", "")
	if err != nil {
		t.Fatalf("Get after upload: %v", err)
	}
	if got.Title != "NDA with Acme" {
		t.Fatalf("unexpected title %q", got.Title)
	}
}

func TestUploadDefaultsTitleToFileName(t *testing.T) {
	svc, _ := newTestService(t)

	contract, err := svc.Upload(context.Background(), "user-1", "", "", "msa.txt", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if contract.Title != "msa.txt" {
		t.Fatalf("expected title msa.txt, got %q", contract.Title)
	}
}

func TestGetHidesForeignContracts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	contract, err := svc.Upload(ctx, "user-1", "org-1", "t", "a.txt", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if _, err := svc.Get(ctx, contract.ID, "user-2", ""); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for foreign user, got %v", err)
	}
	// An org member sees it through the shared organization.
	if _, err := svc.Get(ctx, contract.ID, "user-2", "org-1"); err != nil {
		t.Fatalf("expected org member access, got %v", err)
	}
}

func TestDeleteIsOwnerOnly(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	contract, err := svc.Upload(ctx, "user-1", "org-1", "t", "a.txt", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if err := svc.Delete(ctx, contract.ID, "user-2"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for non-owner delete, got %v", err)
	}
	if err := svc.Delete(ctx, contract.ID, "user-1"); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	if _, err := svc.Get(ctx, contract.ID, "user-1", ""); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestOpenDocumentRoundTrips(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	contract, err := svc.Upload(ctx, "user-1", "", "t", "a.txt", strings.NewReader("body bytes"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	rc, got, err := svc.OpenDocument(ctx, contract.ID, "user-1", "")
	if err != nil {
		t.Fatalf("OpenDocument: %v", err)
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(body) != "body bytes" {
		t.Fatalf("unexpected body %q", body)
	}
	if got.ID != contract.ID {
		t.Fatalf("unexpected contract %s", got.ID)
	}
}

func TestPresignUploadWithoutBackend(t *testing.T) {
	svc, _ := newTestService(t)

	if _, _, err := svc.PresignUpload(context.Background(), "user-1", "a.pdf", "application/pdf"); err != ErrPresignUnavailable {
		t.Fatalf("expected ErrPresignUnavailable, got %v", err)
	}
}

func TestRegisterUploadedValidatesInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.RegisterUploaded(ctx, "user-1", "", "t", "", "application/pdf", "key", 10); err != ErrInvalidInput {
		t.Fatalf("expected ErrInvalidInput for empty fileName, got %v", err)
	}
	if _, err := svc.RegisterUploaded(ctx, "user-1", "", "t", "a.pdf", "application/pdf", "", 10); err != ErrInvalidInput {
		t.Fatalf("expected ErrInvalidInput for empty storageKey, got %v", err)
	}

	contract, err := svc.RegisterUploaded(ctx, "user-1", "", "", "a.pdf", "application/pdf", "users/1/a.pdf", 10)
	if err != nil {
		t.Fatalf("RegisterUploaded: %v", err)
	}
	if contract.Status != StatusUploaded || contract.Title != "a.pdf" {
		t.Fatalf("unexpected contract: %+v", contract)
	}
}
