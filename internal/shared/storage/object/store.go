package object

import (
	"context"
	"io"
)

// ObjectStore persists contract documents and derived artifacts. Save
// namespaces the object under the owning user and returns the generated
// storage key; Open streams a previously saved object back.
type ObjectStore interface {
	Save(ctx context.Context, ownerID string, fileName string, r io.Reader) (storageKey string, sizeBytes int64, mimeType string, err error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
}
