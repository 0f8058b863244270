package repository

import (
	"context"
	"errors"

	"docvault/internal/model"
)

// Package repository contains data access layer abstractions.
// Implementations live in subpackages (e.g., postgres) inside this directory.

// ErrDuplicate is returned by Create methods when a unique constraint is
// violated. The constraint check happens at write time so that concurrent
// writers of the same pair cannot race a pre-check.
var ErrDuplicate = errors.New("duplicate record")

// DocumentFilter holds the optional listing predicates. Zero values mean
// "no restriction", never "match nothing".
type DocumentFilter struct {
	// OwnerID restricts results to a single owner (user-scoped listing).
	OwnerID string
	// Category is an exact-match category label.
	Category string
	// Tags matches documents carrying at least one of the given tags.
	Tags []string
	// FileName is a case-insensitive substring match against the display name.
	FileName string
	// OwnerName is a case-insensitive substring match against the owner's
	// username (admin listing only).
	OwnerName string
}

// DocumentRepository defines data access for documents using SQL queries only.
// No business logic here — strictly persistence operations.
type DocumentRepository interface {
	// Create inserts a new document record and returns the stored document.
	Create(ctx context.Context, doc *model.Document) (*model.Document, error)

	// FindByID returns a document by its ID, with the owner username joined.
	FindByID(ctx context.Context, id string) (*model.Document, error)

	// List returns a filtered, paginated list of documents and the total rows
	// count for the filter. Results are in insertion order (created_at, id).
	List(ctx context.Context, f DocumentFilter, pq PageQuery) (*PageResult[model.Document], error)

	// ListSharedWith returns the page of documents that have a share record
	// naming the given user as recipient.
	ListSharedWith(ctx context.Context, recipientID string, pq PageQuery) (*PageResult[model.Document], error)

	// Delete removes a document and its share records in one transaction.
	// Missing rows are not an error.
	Delete(ctx context.Context, id string) error
}

// DocumentShareRepository defines data access for share grants.
type DocumentShareRepository interface {
	// Create inserts a new share record. A (document, recipient) pair that
	// already exists surfaces as ErrDuplicate.
	Create(ctx context.Context, share *model.DocumentShare) (*model.DocumentShare, error)

	// Exists reports whether a share record exists for the pair.
	Exists(ctx context.Context, documentID, recipientID string) (bool, error)

	// Delete removes the share for the pair. Returns sql.ErrNoRows when no
	// such share exists.
	Delete(ctx context.Context, documentID, recipientID string) error
}

// UserRepository reads user accounts. Account creation belongs to the auth
// system and is out of scope here.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
// T is typically a model type.
type PageResult[T any] struct {
	Items []T
	Total int
}
