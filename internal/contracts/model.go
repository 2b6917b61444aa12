package contracts

import "time"

// Contract statuses. A contract is "uploaded" until text extraction stores
// its extracted-text object, then "ready".
const (
	StatusUploaded = "uploaded"
	StatusReady    = "ready"
)

// Contract represents an uploaded contract document.
type Contract struct {
	ID               string     `json:"id"`
	OwnerUserID      string     `json:"ownerUserId"`
	OrganizationID   string     `json:"organizationId,omitempty"`
	Title            string     `json:"title"`
	FileName         string     `json:"fileName"`
	MimeType         string     `json:"mimeType"`
	SizeBytes        int64      `json:"sizeBytes"`
	StorageKey       string     `json:"-"`
	ExtractedTextKey string     `json:"-"`
	Status           string     `json:"status"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	DeletedAt        *time.Time `json:"-"`
}
