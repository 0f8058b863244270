package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"docvault/internal/model"
	"docvault/internal/repository"
	"docvault/internal/storage"
)

var (
	ErrIDRequired         = errors.New("id is required")
	ErrReaderNil          = errors.New("reader is nil")
	ErrInvalidFileName    = errors.New("invalid file name")
	ErrInvalidSize        = errors.New("invalid content size")
	ErrInvalidContentType = errors.New("invalid stored content type")
	ErrNotFound           = errors.New("document not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrShareNotFound      = errors.New("share not found")
	ErrForbidden          = errors.New("operation not permitted")
	ErrSelfShare          = errors.New("cannot share a document with yourself")
	ErrAlreadyShared      = errors.New("document already shared with this user")
	ErrOwnDocument        = errors.New("cannot save a document you already own")
)

// UploadInput carries the caller-supplied attributes of a new document.
type UploadInput struct {
	FileName    string
	ContentType string
	Size        int64
	Category    string
	Tags        []string
}

// ListQuery holds the optional listing filters plus zero-based pagination.
// OwnerName is honored by ListAll only.
type ListQuery struct {
	Category  string
	Tags      []string
	FileName  string
	OwnerName string
	Page      int
	Size      int
}

// FileDownload exposes a streamed document to the transport layer. The caller
// owns Content and must close it.
type FileDownload struct {
	FileName    string
	ContentType string
	Size        int64
	Content     io.ReadCloser
}

// DocumentListResult is the service-level DTO for paginated documents.
type DocumentListResult struct {
	Items []model.Document `json:"data"`
	Total int              `json:"total"`
	Page  int              `json:"page"`
	Size  int              `json:"size"`
}

// DocumentService is the document lifecycle manager. It coordinates the blob
// store and the metadata repository so uploads, deletes, shares and copies
// stay consistent under partial failure, and enforces who may see or act on
// which document before any mutation.
//
// The two stores are not transactionally coupled. The ordering rules are:
// metadata is only written after a completed blob write, and blobs are
// removed before metadata on delete. The one accepted inconsistency is an
// orphaned blob left behind when the metadata insert fails after a successful
// blob write; those are logged with their key for operational cleanup.
type DocumentService interface {
	// Upload streams the content to object storage and then persists
	// metadata. The stored key is "<uuid>-<sanitized-original-name>".
	Upload(ctx context.Context, r io.Reader, in UploadInput, owner model.User) (*model.Document, error)

	// ListOwn returns the owner's documents narrowed by the optional filters.
	ListOwn(ctx context.Context, owner model.User, q ListQuery) (*DocumentListResult, error)

	// ListAll returns documents across all owners, additionally filterable by
	// owner username. Restricting it to ADMIN callers is the boundary
	// layer's job (see middleware.RequireAdmin).
	ListAll(ctx context.Context, q ListQuery) (*DocumentListResult, error)

	// Download streams a document's content to its owner or an admin.
	// Share recipients cannot stream the original; they get list visibility
	// and SaveShared only.
	Download(ctx context.Context, id string, caller model.User) (*FileDownload, error)

	// DownloadLink returns a time-limited presigned URL for the document's
	// blob. Same authorization as Download.
	DownloadLink(ctx context.Context, id string, ttl time.Duration, caller model.User) (string, error)

	// Delete removes blob then metadata (cascading shares). A blob already
	// absent from the store is treated as deleted so a previous partial
	// failure cannot wedge the record.
	Delete(ctx context.Context, id string, caller model.User) error

	// Share grants the named user visibility of the document. Owner-only;
	// ADMIN does not bypass this.
	Share(ctx context.Context, documentID, recipientUsername string, sender model.User) (*model.DocumentShare, error)

	// Revoke removes a previously granted share. Owner-only.
	Revoke(ctx context.Context, documentID, recipientUsername string, sender model.User) error

	// SharedWithMe returns the page of documents shared with the user.
	SharedWithMe(ctx context.Context, user model.User, q ListQuery) (*DocumentListResult, error)

	// SaveShared copies a shared document into the caller's own collection:
	// a store-level blob copy plus a new metadata record owned by the
	// caller. The source document and its shares are untouched.
	SaveShared(ctx context.Context, sourceDocumentID string, user model.User) (*model.Document, error)
}

// documentService is a concrete implementation of DocumentService.
type documentService struct {
	store  storage.Storage
	docs   repository.DocumentRepository
	shares repository.DocumentShareRepository
	users  repository.UserRepository
	log    *zap.Logger
}

// NewDocumentService constructs a new DocumentService.
func NewDocumentService(store storage.Storage, docs repository.DocumentRepository, shares repository.DocumentShareRepository, users repository.UserRepository, log *zap.Logger) DocumentService {
	if log == nil {
		log = zap.NewNop()
	}
	return &documentService{store: store, docs: docs, shares: shares, users: users, log: log}
}

// sanitizeFileName strips any path component from the client-supplied name.
// The result is used both for display and inside the storage key.
func sanitizeFileName(name string) (string, error) {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Base(name)
	if name == "" || name == "." || name == ".." || name == "/" {
		return "", ErrInvalidFileName
	}
	return name, nil
}

// normalizeTags drops blanks, deduplicates and sorts.
func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func pageQuery(q ListQuery) (repository.PageQuery, int, int) {
	size := q.Size
	if size <= 0 {
		size = 10
	}
	page := q.Page
	if page < 0 {
		page = 0
	}
	return repository.PageQuery{Limit: size, Offset: page * size}, page, size
}

// canAccess covers the owner-or-admin rule shared by Download and Delete.
func canAccess(doc *model.Document, caller model.User) bool {
	return doc.OwnerID == caller.ID || caller.IsAdmin()
}

func (s *documentService) Upload(ctx context.Context, r io.Reader, in UploadInput, owner model.User) (*model.Document, error) {
	if r == nil {
		return nil, ErrReaderNil
	}
	if in.Size < 0 {
		return nil, ErrInvalidSize
	}
	// Re-resolve the owner; the identity may be stale by the time the
	// request reaches us.
	if _, err := s.users.FindByID(ctx, owner.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	name, err := sanitizeFileName(in.FileName)
	if err != nil {
		return nil, err
	}
	// Unique per blob, traceable back to the original name.
	key := uuid.NewString() + "-" + name

	objInfo, err := s.store.Put(ctx, key, r, storage.PutObjectOptions{
		Size:        in.Size,
		ContentType: in.ContentType,
		Metadata: map[string]string{
			"original-filename": name,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("upload to storage: %w", err)
	}

	doc := &model.Document{
		ID:          uuid.NewString(),
		FileName:    name,
		StorageKey:  objInfo.Key,
		ContentType: in.ContentType,
		Size:        objInfo.Size,
		Category:    strings.TrimSpace(in.Category),
		Tags:        normalizeTags(in.Tags),
		OwnerID:     owner.ID,
		OwnerName:   owner.Username,
		CreatedAt:   time.Now().UTC(),
	}
	stored, err := s.docs.Create(ctx, doc)
	if err != nil {
		// The blob write already completed; leave it as a known orphan for
		// operational cleanup instead of attempting a synchronous rollback.
		s.log.Warn("metadata save failed, blob orphaned",
			zap.String("storage_key", key),
			zap.String("owner_id", owner.ID),
			zap.Error(err))
		return nil, fmt.Errorf("save metadata: %w", err)
	}

	s.log.Info("document uploaded",
		zap.String("document_id", stored.ID),
		zap.String("file_name", stored.FileName),
		zap.String("owner", owner.Username))
	return stored, nil
}

func (s *documentService) ListOwn(ctx context.Context, owner model.User, q ListQuery) (*DocumentListResult, error) {
	f := repository.DocumentFilter{
		OwnerID:  owner.ID,
		Category: q.Category,
		Tags:     q.Tags,
		FileName: q.FileName,
	}
	return s.list(ctx, f, q)
}

func (s *documentService) ListAll(ctx context.Context, q ListQuery) (*DocumentListResult, error) {
	f := repository.DocumentFilter{
		Category:  q.Category,
		Tags:      q.Tags,
		FileName:  q.FileName,
		OwnerName: q.OwnerName,
	}
	return s.list(ctx, f, q)
}

func (s *documentService) list(ctx context.Context, f repository.DocumentFilter, q ListQuery) (*DocumentListResult, error) {
	pq, page, size := pageQuery(q)
	res, err := s.docs.List(ctx, f, pq)
	if err != nil {
		return nil, err
	}
	return &DocumentListResult{Items: res.Items, Total: res.Total, Page: page, Size: size}, nil
}

func (s *documentService) Download(ctx context.Context, id string, caller model.User) (*FileDownload, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	doc, err := s.docs.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !canAccess(doc, caller) {
		return nil, ErrForbidden
	}

	// A stored content type that no longer parses is a defect worth
	// surfacing, not something to coerce silently.
	if _, _, err := mime.ParseMediaType(doc.ContentType); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidContentType, doc.ContentType)
	}

	rc, _, err := s.store.Get(ctx, doc.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("fetch from storage: %w", err)
	}
	return &FileDownload{
		FileName:    doc.FileName,
		ContentType: doc.ContentType,
		Size:        doc.Size,
		Content:     rc,
	}, nil
}

// Presigned link expiry bounds. A zero ttl falls back to the default.
const (
	defaultLinkTTL = 15 * time.Minute
	maxLinkTTL     = time.Hour
)

func (s *documentService) DownloadLink(ctx context.Context, id string, ttl time.Duration, caller model.User) (string, error) {
	if id == "" {
		return "", ErrIDRequired
	}
	if ttl <= 0 {
		ttl = defaultLinkTTL
	}
	if ttl > maxLinkTTL {
		ttl = maxLinkTTL
	}

	doc, err := s.docs.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	if !canAccess(doc, caller) {
		return "", ErrForbidden
	}

	u, err := s.store.PresignGet(ctx, doc.StorageKey, ttl)
	if err != nil {
		return "", fmt.Errorf("presign storage url: %w", err)
	}
	return u, nil
}

func (s *documentService) Delete(ctx context.Context, id string, caller model.User) error {
	if id == "" {
		return ErrIDRequired
	}
	doc, err := s.docs.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if !canAccess(doc, caller) {
		return ErrForbidden
	}

	// Blob first. A blob that is already gone means an earlier partial
	// failure resolved itself; only a real storage error blocks the
	// metadata delete.
	if err := s.store.Delete(ctx, doc.StorageKey); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("delete storage: %w", err)
		}
		s.log.Warn("blob already absent, deleting metadata anyway",
			zap.String("document_id", id),
			zap.String("storage_key", doc.StorageKey))
	}
	if err := s.docs.Delete(ctx, id); err != nil {
		return err
	}

	s.log.Info("document deleted",
		zap.String("document_id", id),
		zap.String("file_name", doc.FileName),
		zap.String("caller", caller.Username))
	return nil
}

func (s *documentService) Share(ctx context.Context, documentID, recipientUsername string, sender model.User) (*model.DocumentShare, error) {
	if documentID == "" {
		return nil, ErrIDRequired
	}
	doc, err := s.docs.FindByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	// Sharing is an owner-only right; ADMIN does not bypass it.
	if doc.OwnerID != sender.ID {
		return nil, ErrForbidden
	}

	recipient, err := s.users.FindByUsername(ctx, recipientUsername)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if recipient.ID == sender.ID {
		return nil, ErrSelfShare
	}

	// No pre-check for an existing share: the unique constraint decides, so
	// concurrent shares of the same pair cannot both succeed.
	share, err := s.shares.Create(ctx, &model.DocumentShare{
		ID:          uuid.NewString(),
		DocumentID:  doc.ID,
		RecipientID: recipient.ID,
		SharedAt:    time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrAlreadyShared
		}
		return nil, err
	}

	s.log.Info("document shared",
		zap.String("document_id", doc.ID),
		zap.String("file_name", doc.FileName),
		zap.String("sender", sender.Username),
		zap.String("recipient", recipient.Username))
	return share, nil
}

func (s *documentService) Revoke(ctx context.Context, documentID, recipientUsername string, sender model.User) error {
	if documentID == "" {
		return ErrIDRequired
	}
	doc, err := s.docs.FindByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if doc.OwnerID != sender.ID {
		return ErrForbidden
	}

	recipient, err := s.users.FindByUsername(ctx, recipientUsername)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}

	if err := s.shares.Delete(ctx, doc.ID, recipient.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrShareNotFound
		}
		return err
	}

	s.log.Info("share revoked",
		zap.String("document_id", doc.ID),
		zap.String("sender", sender.Username),
		zap.String("recipient", recipient.Username))
	return nil
}

func (s *documentService) SharedWithMe(ctx context.Context, user model.User, q ListQuery) (*DocumentListResult, error) {
	pq, page, size := pageQuery(q)
	res, err := s.docs.ListSharedWith(ctx, user.ID, pq)
	if err != nil {
		return nil, err
	}
	return &DocumentListResult{Items: res.Items, Total: res.Total, Page: page, Size: size}, nil
}

func (s *documentService) SaveShared(ctx context.Context, sourceDocumentID string, user model.User) (*model.Document, error) {
	if sourceDocumentID == "" {
		return nil, ErrIDRequired
	}
	src, err := s.docs.FindByID(ctx, sourceDocumentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	// Authorized when a share names the caller, or when the caller already
	// owns the document (re-saving from a stale shared view).
	if src.OwnerID != user.ID {
		shared, err := s.shares.Exists(ctx, src.ID, user.ID)
		if err != nil {
			return nil, err
		}
		if !shared {
			return nil, ErrForbidden
		}
	}
	if src.OwnerID == user.ID {
		return nil, ErrOwnDocument
	}

	// Store-level copy, never a re-upload through this process.
	newKey, err := s.store.Copy(ctx, src.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("copy in storage: %w", err)
	}

	doc := &model.Document{
		ID:          uuid.NewString(),
		FileName:    src.FileName,
		StorageKey:  newKey,
		ContentType: src.ContentType,
		Size:        src.Size,
		Category:    src.Category,
		Tags:        append([]string(nil), src.Tags...),
		OwnerID:     user.ID,
		OwnerName:   user.Username,
		CreatedAt:   time.Now().UTC(),
	}
	stored, err := s.docs.Create(ctx, doc)
	if err != nil {
		s.log.Warn("metadata save failed, copied blob orphaned",
			zap.String("storage_key", newKey),
			zap.String("owner_id", user.ID),
			zap.Error(err))
		return nil, fmt.Errorf("save metadata: %w", err)
	}

	s.log.Info("shared document saved",
		zap.String("source_document_id", src.ID),
		zap.String("document_id", stored.ID),
		zap.String("owner", user.Username))
	return stored, nil
}
