package model

import "time"

// Document represents a stored file in the system.
// This is a pure domain model with no database-specific dependencies or tags.
// It can be used across layers (HTTP, service, storage) without coupling to persistence.
// StorageKey locates the bytes in the object store and is never exposed to clients;
// FileName is the user-facing name.
type Document struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	StorageKey  string    `json:"-"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Category    string    `json:"category,omitempty"`
	Tags        []string  `json:"tags"`
	OwnerID     string    `json:"owner_id"`
	OwnerName   string    `json:"owner_username,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// DocumentShare is a one-way grant letting a recipient see and save a copy of
// a document they do not own. The pair (DocumentID, RecipientID) is unique;
// uniqueness is enforced by the metadata store on write, not pre-checked here.
type DocumentShare struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"document_id"`
	RecipientID string    `json:"recipient_id"`
	SharedAt    time.Time `json:"shared_at"`
}
